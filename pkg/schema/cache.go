package schema

import "sync/atomic"

// Cache holds the process-wide schema snapshot behind an atomic pointer.
// Current returns nil until the first successful load; Swap replaces the
// whole snapshot so in-flight readers keep the one they started with.
type Cache struct {
	snap atomic.Pointer[Snapshot]
}

// NewCache returns an empty cache in the unloaded state.
func NewCache() *Cache { return &Cache{} }

// Current returns the latest complete snapshot, or nil when none has loaded.
func (c *Cache) Current() *Snapshot { return c.snap.Load() }

// Loaded reports whether a snapshot is available.
func (c *Cache) Loaded() bool { return c.snap.Load() != nil }

// Swap atomically installs a new snapshot.
func (c *Cache) Swap(s *Snapshot) { c.snap.Store(s) }
