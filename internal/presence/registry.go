package presence

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Handle is the transport-owned side of a live connection. The registry
// stores and looks up handles; it never creates them, and the core never
// closes them (shutdown and connection cycling are the server's business).
type Handle interface {
	ID() uuid.UUID
	Send(message []byte)
	Close(err error)
}

type entry struct {
	handle   Handle
	identity Identity
}

// Change captures the registry state immediately after a mutation, read
// under the same lock that applied it. Broadcasting from a Change keeps
// presence updates consistent with the order mutations were processed.
type Change struct {
	Users   []Identity
	Targets []Handle
}

// Registry maps live connection handles to registered user identities.
// It is the single source of truth for who is online. Entries keep
// registration order so lookups and snapshots are deterministic.
type Registry struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*entry
	order   []uuid.UUID

	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		entries: make(map[uuid.UUID]*entry),
		logger:  logger.With(slog.String("component", "presence_registry")),
	}
}

// Register inserts or replaces the entry for the handle. Re-registering
// an existing handle overwrites its identity in place and keeps its
// position in registration order.
func (r *Registry) Register(h Handle, id Identity) Change {
	r.mu.Lock()
	defer r.mu.Unlock()

	connID := h.ID()
	if e, exists := r.entries[connID]; exists {
		e.identity = id
		r.logger.Debug("re-registered handle", slog.String("connID", connID.String()), slog.String("userID", id.UserID))
		return r.changeLocked()
	}

	r.entries[connID] = &entry{handle: h, identity: id}
	r.order = append(r.order, connID)
	r.logger.Debug("handle registered", slog.String("connID", connID.String()), slog.String("userID", id.UserID))
	return r.changeLocked()
}

// Remove deletes the entry for the handle if present. The boolean reports
// whether an entry was actually removed; callers must broadcast presence
// only when it is true.
func (r *Registry) Remove(h Handle) (Change, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	connID := h.ID()
	if _, exists := r.entries[connID]; !exists {
		return Change{}, false
	}
	delete(r.entries, connID)
	for i, id := range r.order {
		if id == connID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.logger.Debug("handle removed", slog.String("connID", connID.String()))
	return r.changeLocked(), true
}

// IdentityOf returns the identity registered for a connection.
func (r *Registry) IdentityOf(connID uuid.UUID) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[connID]
	if !ok {
		return Identity{}, false
	}
	return e.identity, true
}

// FindHandleByUser returns the first live handle registered for the user,
// in registration order, so the oldest session wins when a user has
// several. The linear scan is fine at chat-room scale.
func (r *Registry) FindHandleByUser(userID string) (Handle, Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, connID := range r.order {
		e := r.entries[connID]
		if e.identity.UserID == userID {
			return e.handle, e.identity, true
		}
	}
	return nil, Identity{}, false
}

// OldestSession returns the earliest-registered handle for the user.
func (r *Registry) OldestSession(userID string) (Handle, bool) {
	h, _, ok := r.FindHandleByUser(userID)
	return h, ok
}

// SessionCount reports how many live handles the user has registered.
func (r *Registry) SessionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.entries {
		if e.identity.UserID == userID {
			n++
		}
	}
	return n
}

// Snapshot returns the identities of all live entries in registration order.
func (r *Registry) Snapshot() []Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.usersLocked()
}

// Handles returns all live handles.
func (r *Registry) Handles() []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := make([]Handle, 0, len(r.order))
	for _, connID := range r.order {
		handles = append(handles, r.entries[connID].handle)
	}
	return handles
}

func (r *Registry) usersLocked() []Identity {
	users := make([]Identity, 0, len(r.order))
	for _, connID := range r.order {
		users = append(users, r.entries[connID].identity)
	}
	return users
}

func (r *Registry) changeLocked() Change {
	handles := make([]Handle, 0, len(r.order))
	for _, connID := range r.order {
		handles = append(handles, r.entries[connID].handle)
	}
	return Change{Users: r.usersLocked(), Targets: handles}
}
