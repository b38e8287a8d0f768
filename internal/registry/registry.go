// Package registry tracks which users currently hold a live delivery handle.
package registry

import (
	"sync"

	"chat-router/internal/models"
)

// Handle is a live delivery channel for one connected user.
// Implementations must be comparable; pointer receivers are expected.
type Handle interface {
	Deliver(msg models.ChatMessage) error
}

// Entry pairs a user with the handle registered for it.
type Entry struct {
	UserID string
	Handle Handle
}

// Registry maps user ids to their current handle. At most one handle is held per user.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Handle
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{conns: make(map[string]Handle)}
}

// Register installs handle for userID and returns the handle it superseded, if any.
// The superseded handle is not closed here; in-flight deliveries holding it finish on their own.
func (r *Registry) Register(userID string, handle Handle) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.conns[userID]
	r.conns[userID] = handle
	if prev == handle {
		return nil
	}
	return prev
}

// Unregister removes userID only while handle is still the registered one.
// It reports whether a mapping was removed.
func (r *Registry) Unregister(userID string, handle Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.conns[userID]
	if !ok || cur != handle {
		return false
	}
	delete(r.conns, userID)
	return true
}

// Resolve returns the handle registered for userID.
func (r *Registry) Resolve(userID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.conns[userID]
	return h, ok
}

// Snapshot copies every registered entry at call time.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]Entry, 0, len(r.conns))
	for userID, h := range r.conns {
		entries = append(entries, Entry{UserID: userID, Handle: h})
	}
	return entries
}

// Len returns the number of registered users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
