package db

import (
	"sync/atomic"
	"time"
)

const (
	retryBase = time.Second
	retryCap  = 32 * time.Second
)

// RetryState tracks the reconnection backoff ladder. It is written only by
// the reconnection worker and read by every unavailability response to fill
// the Retry-After header.
type RetryState struct {
	attempts atomic.Int32
}

// NextDelay returns the wait before the next reconnection attempt:
// 1s, 2s, 4s, ... capped at 32s.
func (s *RetryState) NextDelay() time.Duration {
	n := s.attempts.Load()
	if n > 5 {
		return retryCap
	}
	d := retryBase << n
	if d > retryCap {
		return retryCap
	}
	return d
}

// RetryAfterSeconds returns NextDelay rounded up to whole seconds, never
// below 1, in the form the Retry-After header wants.
func (s *RetryState) RetryAfterSeconds() int {
	secs := int((s.NextDelay() + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// Bump records a failed attempt, lengthening the next delay.
func (s *RetryState) Bump() {
	// Saturate well below the shift overflow point.
	if s.attempts.Load() < 30 {
		s.attempts.Add(1)
	}
}

// Reset clears the ladder after a successful reconnection.
func (s *RetryState) Reset() {
	s.attempts.Store(0)
}
