package db

import (
	"context"
	"log/slog"
	"time"
)

// Pinger is the connectivity probe the reconnector drives. *Pool implements
// it; tests substitute fakes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Reconnector is the background worker that re-establishes database
// connectivity. Trigger is safe to call redundantly from any number of
// failing requests: pending triggers collapse into a single attempt loop.
type Reconnector struct {
	pinger  Pinger
	retry   *RetryState
	trigger chan struct{}

	// OnRecovered runs after connectivity returns, typically to wake the
	// schema reloader.
	OnRecovered func()

	// OnStateChange, when set, observes transitions of the down state.
	OnStateChange func(down bool)
}

// NewReconnector wires a reconnection worker around a connectivity probe.
func NewReconnector(pinger Pinger, retry *RetryState) *Reconnector {
	return &Reconnector{
		pinger:  pinger,
		retry:   retry,
		trigger: make(chan struct{}, 1),
	}
}

// Trigger requests a reconnection attempt. Non-blocking and idempotent;
// duplicate triggers while an attempt loop runs do not stack retries.
func (r *Reconnector) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run loops until the context is cancelled, waiting for triggers and then
// probing with incremental backoff until the database answers.
func (r *Reconnector) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.trigger:
			r.reconnect(ctx)
		}
	}
}

// reconnect probes until success or cancellation.
func (r *Reconnector) reconnect(ctx context.Context) {
	if r.ping(ctx) == nil {
		// A stray trigger raced with an already-healthy pool.
		r.retry.Reset()
		return
	}

	if r.OnStateChange != nil {
		r.OnStateChange(true)
	}

	for ctx.Err() == nil {
		delay := r.retry.NextDelay()
		slog.Warn("database unreachable, retrying", "delay", delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if err := r.ping(ctx); err != nil {
			r.retry.Bump()
			continue
		}

		r.retry.Reset()
		slog.Info("database connection restored")
		if r.OnStateChange != nil {
			r.OnStateChange(false)
		}
		if r.OnRecovered != nil {
			r.OnRecovered()
		}
		return
	}
}

func (r *Reconnector) ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.pinger.Ping(pingCtx)
}
