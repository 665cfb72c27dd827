package services

import (
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const defaultCartIdleTTL = 24 * time.Hour

// CartRegistryDeps configures session cart bookkeeping.
type CartRegistryDeps struct {
	IdleTTL     time.Duration
	Clock       func() time.Time
	IDGenerator func() string
}

type cartEntry struct {
	store    *CartStore
	lastSeen time.Time
}

// CartRegistry owns one CartStore per storefront session.
type CartRegistry struct {
	mu      sync.Mutex
	carts   map[string]*cartEntry
	idleTTL time.Duration
	now     func() time.Time
	newID   func() string
}

// NewCartRegistry constructs an empty registry.
func NewCartRegistry(deps CartRegistryDeps) *CartRegistry {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	ttl := deps.IdleTTL
	if ttl <= 0 {
		ttl = defaultCartIdleTTL
	}
	return &CartRegistry{
		carts:   make(map[string]*cartEntry),
		idleTTL: ttl,
		now:     func() time.Time { return clock().UTC() },
		newID:   idGen,
	}
}

// NewSessionID issues an identifier for a new session.
func (r *CartRegistry) NewSessionID() string {
	return r.newID()
}

// ValidSessionID reports whether id looks like an identifier this registry issues.
func ValidSessionID(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	_, err := ulid.ParseStrict(id)
	return err == nil
}

// Cart returns the session's cart, creating an empty one on first use, and marks the
// session active.
func (r *CartRegistry) Cart(sessionID string) *CartStore {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.carts[sessionID]
	if !ok {
		entry = &cartEntry{store: NewCartStore()}
		r.carts[sessionID] = entry
	}
	entry.lastSeen = r.now()
	return entry.store
}

// Peek returns the session's cart without creating or touching it.
func (r *CartRegistry) Peek(sessionID string) (*CartStore, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.carts[sessionID]
	if !ok {
		return nil, false
	}
	return entry.store, true
}

// Drop forgets the session's cart.
func (r *CartRegistry) Drop(sessionID string) {
	r.mu.Lock()
	delete(r.carts, sessionID)
	r.mu.Unlock()
}

// Sweep evicts carts idle for longer than the TTL and reports how many were evicted and
// how many remain.
func (r *CartRegistry) Sweep() (evicted, active int) {
	cutoff := r.now().Add(-r.idleTTL)
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, entry := range r.carts {
		if entry.lastSeen.Before(cutoff) {
			delete(r.carts, id)
			evicted++
		}
	}
	return evicted, len(r.carts)
}

// Len is the number of live carts.
func (r *CartRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.carts)
}
