package schema

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Reloader keeps the cache fresh. It refreshes on a fixed interval, when
// woken explicitly (Wake), and when the database sends a notification on the
// configured channel. Each refresh swaps a complete snapshot; a failed load
// keeps the previous one.
type Reloader struct {
	cache    *Cache
	loader   Loader
	pool     *pgxpool.Pool
	interval time.Duration
	channel  string
	wake     chan struct{}

	// OnReload, when set, observes the outcome of every load attempt.
	OnReload func(ok bool)
}

// NewReloader wires a reloader; pool may be nil to disable LISTEN support.
func NewReloader(cache *Cache, loader Loader, pool *pgxpool.Pool, interval time.Duration, channel string) *Reloader {
	return &Reloader{
		cache:    cache,
		loader:   loader,
		pool:     pool,
		interval: interval,
		channel:  channel,
		wake:     make(chan struct{}, 1),
	}
}

// Wake requests a refresh. Safe to call concurrently and redundantly;
// pending wakes collapse into one.
func (r *Reloader) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run loops until the context is cancelled. It performs an initial load
// immediately so the cache leaves the unloaded state as soon as the database
// is reachable.
func (r *Reloader) Run(ctx context.Context) {
	if r.pool != nil && r.channel != "" {
		go r.listen(ctx)
	}

	r.refresh(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		case <-r.wake:
			r.refresh(ctx)
		}
	}
}

// refresh loads a snapshot and swaps it in on success.
func (r *Reloader) refresh(ctx context.Context) {
	snap, err := r.loader.Load(ctx)
	if err != nil {
		slog.Warn("schema reload failed", "error", err)
		if r.OnReload != nil {
			r.OnReload(false)
		}
		return
	}

	r.cache.Swap(snap)
	slog.Info("schema cache loaded",
		"relations", len(snap.Relations),
		"procedures", len(snap.Procedures))
	if r.OnReload != nil {
		r.OnReload(true)
	}
}

// listen holds a dedicated connection on the notification channel and turns
// each NOTIFY into a wake. The connection is re-acquired after errors with a
// short pause so a flapping database does not spin.
func (r *Reloader) listen(ctx context.Context) {
	for ctx.Err() == nil {
		if err := r.listenOnce(ctx); err != nil && ctx.Err() == nil {
			slog.Debug("schema notification listener interrupted", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
		}
	}
}

func (r *Reloader) listenOnce(ctx context.Context) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+sanitizeChannel(r.channel)); err != nil {
		return err
	}

	for {
		if _, err := conn.Conn().WaitForNotification(ctx); err != nil {
			return err
		}
		r.Wake()
	}
}

// sanitizeChannel quotes the channel name as an identifier.
func sanitizeChannel(name string) string {
	out := make([]byte, 0, len(name)+2)
	out = append(out, '"')
	for i := 0; i < len(name); i++ {
		if name[i] == '"' {
			out = append(out, '"', '"')
		} else {
			out = append(out, name[i])
		}
	}
	return string(append(out, '"'))
}
