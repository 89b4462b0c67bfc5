package client

import (
	"sync"
	"time"
)

// Override holds one field as either server truth or a pending local
// override. The override wins until the next server update for the field
// arrives, or until it expires.
type Override[T any] struct {
	mu      sync.Mutex
	server  T
	local   T
	pending bool
	expires time.Time
	now     func() time.Time
}

// NewOverride returns an Override seeded with the server's value.
func NewOverride[T any](server T) *Override[T] {
	return &Override[T]{server: server, now: time.Now}
}

// Set records a local override. A ttl of zero never expires; the override
// then lasts until Observe.
func (o *Override[T]) Set(v T, ttl time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.local = v
	o.pending = true
	o.expires = time.Time{}
	if ttl > 0 {
		o.expires = o.now().Add(ttl)
	}
}

// Observe records a server update and drops any pending override.
func (o *Override[T]) Observe(v T) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.server = v
	o.pending = false
}

// Value returns the override while pending, else server truth.
func (o *Override[T]) Value() T {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.pendingLocked() {
		return o.local
	}
	return o.server
}

// Pending reports whether a local override is in effect.
func (o *Override[T]) Pending() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pendingLocked()
}

func (o *Override[T]) pendingLocked() bool {
	if !o.pending {
		return false
	}
	if !o.expires.IsZero() && !o.now().Before(o.expires) {
		o.pending = false
	}
	return o.pending
}
