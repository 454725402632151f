// Package presence tracks which identity owns which live connection and
// publishes the online set to every connection when it changes.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"go-realtime-chat/internal/logging"
)

// Handle is a live transport-level connection. ID must be unique per
// connection; Send must not block.
type Handle interface {
	ID() string
	Send(payload []byte) bool
}

// LastSeenRecorder persists the moment an identity went offline.
type LastSeenRecorder interface {
	RecordLastSeen(ctx context.Context, identity string, at time.Time) error
}

// Connection is the binding of one identity to one handle.
type Connection struct {
	Identity    string
	Handle      Handle
	ConnectedAt time.Time
}

// Registry maps identity -> connection and handle id -> identity. At most one
// handle per identity is tracked; a new Bind replaces the previous one.
type Registry struct {
	mu         sync.RWMutex
	byIdentity map[string]*Connection
	byHandle   map[string]string

	lastSeen LastSeenRecorder
	logger   logging.Logger
	now      func() time.Time
	onChange func()

	wg sync.WaitGroup
}

func NewRegistry(lastSeen LastSeenRecorder, logger logging.Logger) *Registry {
	return &Registry{
		byIdentity: make(map[string]*Connection),
		byHandle:   make(map[string]string),
		lastSeen:   lastSeen,
		logger:     logger,
		now:        time.Now,
		onChange:   func() {},
	}
}

func (r *Registry) setChangeHook(fn func()) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Bind registers handle for identity, superseding any earlier handle. The
// superseded handle is not closed; it just stops receiving routed events.
func (r *Registry) Bind(identity string, h Handle) *Connection {
	conn := &Connection{Identity: identity, Handle: h, ConnectedAt: r.now()}

	r.mu.Lock()
	if prev, ok := r.byIdentity[identity]; ok && prev.Handle.ID() != h.ID() {
		delete(r.byHandle, prev.Handle.ID())
		r.logger.Debug(context.Background(), "connection superseded",
			"identity", identity, "old_handle", prev.Handle.ID(), "new_handle", h.ID())
	}
	// A handle re-binding under a different identity releases the old one.
	if owner, ok := r.byHandle[h.ID()]; ok && owner != identity {
		delete(r.byIdentity, owner)
	}
	r.byIdentity[identity] = conn
	r.byHandle[h.ID()] = identity
	notify := r.onChange
	r.mu.Unlock()

	notify()
	return conn
}

// Unbind removes the mapping owned by h. It is a no-op when h was never
// bound or has already been replaced by a newer Bind for the same identity.
func (r *Registry) Unbind(h Handle) bool {
	r.mu.Lock()
	identity, ok := r.byHandle[h.ID()]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.byHandle, h.ID())
	if cur, ok := r.byIdentity[identity]; ok && cur.Handle.ID() == h.ID() {
		delete(r.byIdentity, identity)
	}
	notify := r.onChange
	r.mu.Unlock()

	notify()
	r.recordLastSeen(identity, r.now())
	return true
}

func (r *Registry) recordLastSeen(identity string, at time.Time) {
	if r.lastSeen == nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.lastSeen.RecordLastSeen(ctx, identity, at); err != nil {
			r.logger.Warn(ctx, "last seen write failed", "identity", identity, "error", err)
		}
	}()
}

// Wait blocks until pending last-seen writes finish.
func (r *Registry) Wait() {
	r.wg.Wait()
}

func (r *Registry) Lookup(identity string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byIdentity[identity]
	if !ok {
		return nil, false
	}
	return conn.Handle, true
}

// Connection returns the tracked binding for identity.
func (r *Registry) Connection(identity string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byIdentity[identity]
	if !ok {
		return Connection{}, false
	}
	return *conn, true
}

func (r *Registry) IsOnline(identity string) bool {
	_, ok := r.Lookup(identity)
	return ok
}

// OnlineIdentities returns a sorted snapshot of the presence set.
func (r *Registry) OnlineIdentities() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.byIdentity))
	for identity := range r.byIdentity {
		out = append(out, identity)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Deliver sends payload to the handle bound to identity. The read lock is held
// across lookup and send so nothing is routed to a handle after its Unbind.
func (r *Registry) Deliver(identity string, payload []byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byIdentity[identity]
	if !ok {
		return false
	}
	return conn.Handle.Send(payload)
}

// Broadcast sends payload to every bound handle and returns how many accepted it.
func (r *Registry) Broadcast(payload []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, conn := range r.byIdentity {
		if conn.Handle.Send(payload) {
			n++
		}
	}
	return n
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity)
}
