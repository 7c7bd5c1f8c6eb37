// Package session provides the shared mutable context one replay chain's
// tasks reuse during execution: a lazily created session handle, an
// auth-state cache, and a generic result cache with per-entry TTLs.
//
// A Context is scoped to a single chain execution. Concurrent chain
// executions each get their own instance; the internal mutex only protects
// against a dispatcher spawning its own goroutines.
package session

import (
	"context"
	"sync"
	"time"
)

// AuthTTL is how long a cached authentication state stays valid.
const AuthTTL = time.Hour

// Handle is an opaque external session resource (a browser session, an API
// client, ...). The engine only creates and releases it.
type Handle interface {
	// Release frees the underlying resource.
	Release(ctx context.Context) error
}

// Factory creates the session handle on first use.
type Factory func(ctx context.Context) (Handle, error)

type entry struct {
	value    any
	storedAt time.Time
	ttl      time.Duration // 0 means no expiry
}

func (e entry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.storedAt) > e.ttl
}

// Context is the chain-scoped shared state.
type Context struct {
	mu      sync.Mutex
	factory Factory
	handle  Handle
	auth    map[string]entry
	results map[string]entry
	now     func() time.Time
}

// New creates an empty shared context. factory may be nil if no task in the
// chain needs a session handle.
func New(factory Factory) *Context {
	return &Context{
		factory: factory,
		auth:    make(map[string]entry),
		results: make(map[string]entry),
		now:     time.Now,
	}
}

// Session returns the shared session handle, creating it on first use.
// The same handle is reused for the remainder of the chain.
func (c *Context) Session(ctx context.Context) (Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle != nil {
		return c.handle, nil
	}
	if c.factory == nil {
		return nil, nil
	}
	h, err := c.factory(ctx)
	if err != nil {
		return nil, err
	}
	c.handle = h
	return h, nil
}

// SetAuth caches the authentication state for an external service.
func (c *Context) SetAuth(service string, state any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.auth[service] = entry{value: state, storedAt: c.now(), ttl: AuthTTL}
}

// Auth returns the cached authentication state for a service. Expired
// entries are evicted on access.
func (c *Context) Auth(service string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.auth[service]
	if !ok {
		return nil, false
	}
	if e.expired(c.now()) {
		delete(c.auth, service)
		return nil, false
	}
	return e.value, true
}

// SetResult caches an arbitrary value under key with the given ttl so a
// later task in the chain can skip a redundant external call. ttl 0 means
// the entry never expires.
func (c *Context) SetResult(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[key] = entry{value: value, storedAt: c.now(), ttl: ttl}
}

// Result returns a cached value. Expiry is checked lazily on read; expired
// entries are evicted.
func (c *Context) Result(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.results[key]
	if !ok {
		return nil, false
	}
	if e.expired(c.now()) {
		delete(c.results, key)
		return nil, false
	}
	return e.value, true
}

// Snapshot returns a shallow copy of the non-expired result cache, used to
// stamp a chain with the context it ran against.
func (c *Context) Snapshot() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	out := make(map[string]any, len(c.results))
	for k, e := range c.results {
		if !e.expired(now) {
			out[k] = e.value
		}
	}
	return out
}

// Cleanup releases the session handle and clears both caches. The context
// is reusable afterwards; the handle will be recreated on demand.
func (c *Context) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	handle := c.handle
	c.handle = nil
	c.auth = make(map[string]entry)
	c.results = make(map[string]entry)
	c.mu.Unlock()

	if handle != nil {
		return handle.Release(ctx)
	}
	return nil
}
