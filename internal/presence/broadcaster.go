package presence

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"go-realtime-chat/internal/logging"
)

// EventOnlineUsers is the server->client event carrying the full online set.
const EventOnlineUsers = "online-users"

// Broadcaster publishes the full online set to every connection whenever the
// registry changes. Change signals coalesce: a burst of binds and unbinds
// produces at least one broadcast, and each broadcast reads the set at send
// time, so an older snapshot never lands after a newer one.
type Broadcaster struct {
	registry *Registry
	logger   logging.Logger

	signal    chan struct{}
	requested atomic.Uint64
	published atomic.Uint64
}

type onlineUsersEvent struct {
	Type string   `json:"type"`
	Data []string `json:"data"`
}

// NewBroadcaster attaches a broadcaster to registry. Call Run to start publishing.
func NewBroadcaster(registry *Registry, logger logging.Logger) *Broadcaster {
	b := &Broadcaster{
		registry: registry,
		logger:   logger,
		signal:   make(chan struct{}, 1),
	}
	registry.setChangeHook(b.Notify)
	return b
}

// Notify requests a broadcast. It never blocks.
func (b *Broadcaster) Notify() {
	b.requested.Add(1)
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// Run publishes snapshots until ctx is done. Only one Run may be active.
func (b *Broadcaster) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.signal:
			b.publish(ctx)
		}
	}
}

func (b *Broadcaster) publish(ctx context.Context) {
	version := b.requested.Load()
	online := b.registry.OnlineIdentities()

	payload, err := json.Marshal(onlineUsersEvent{Type: EventOnlineUsers, Data: online})
	if err != nil {
		b.logger.Error(ctx, "encode online users", "error", err)
		return
	}
	n := b.registry.Broadcast(payload)
	b.published.Store(version)
	b.logger.Debug(ctx, "presence broadcast", "version", version, "online", len(online), "delivered", n)
}

// Version returns the highest change version covered by a published snapshot.
func (b *Broadcaster) Version() uint64 {
	return b.published.Load()
}

// Pending reports whether a change has not yet been published.
func (b *Broadcaster) Pending() bool {
	return b.requested.Load() != b.published.Load()
}
