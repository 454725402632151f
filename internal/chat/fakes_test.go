package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go-realtime-chat/internal/common"
	"go-realtime-chat/internal/notification"
	"go-realtime-chat/internal/user"
)

// fakeHandle is a presence.Handle that records what it is sent.
type fakeHandle struct {
	id string

	mu  sync.Mutex
	got [][]byte
}

func newFakeHandle(id string) *fakeHandle { return &fakeHandle{id: id} }

func (h *fakeHandle) ID() string { return h.id }

func (h *fakeHandle) Send(p []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.got = append(h.got, p)
	return true
}

// events returns the received events of the given type.
func (h *fakeHandle) events(eventType string) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Event
	for _, p := range h.got {
		var ev Event
		if err := json.Unmarshal(p, &ev); err == nil && ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// countingDeliverer wraps a Deliverer and counts every routing attempt.
type countingDeliverer struct {
	Deliverer
	calls atomic.Int64
}

func (c *countingDeliverer) Deliver(identity string, payload []byte) bool {
	c.calls.Add(1)
	return c.Deliverer.Deliver(identity, payload)
}

func (c *countingDeliverer) Broadcast(payload []byte) int {
	c.calls.Add(1)
	return c.Deliverer.Broadcast(payload)
}

type memMessages struct {
	mu         sync.Mutex
	messages   []*Message
	failCreate bool
	lastLimit  int
}

func (m *memMessages) CreateMessage(_ context.Context, msg *Message) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate {
		return nil, errors.New("db error: connection refused")
	}
	now := time.Now()
	msg.SenderUsername = "user-" + msg.SenderID
	msg.CreatedAt, msg.UpdatedAt = now, now
	cp := *msg
	m.messages = append(m.messages, &cp)
	return msg, nil
}

func (m *memMessages) find(id string) (int, *Message) {
	for i, msg := range m.messages {
		if msg.ID == id {
			return i, msg
		}
	}
	return -1, nil
}

func (m *memMessages) EditOwned(_ context.Context, id, senderID, content string) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, msg := m.find(id)
	if msg == nil {
		return nil, common.ErrNotFound
	}
	if msg.SenderID != senderID {
		return nil, common.ErrForbidden
	}
	msg.Content, msg.Edited, msg.UpdatedAt = content, true, time.Now()
	cp := *msg
	return &cp, nil
}

func (m *memMessages) DeleteOwned(_ context.Context, id, senderID string) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, msg := m.find(id)
	if msg == nil {
		return nil, common.ErrNotFound
	}
	if msg.SenderID != senderID {
		return nil, common.ErrForbidden
	}
	m.messages = append(m.messages[:i], m.messages[i+1:]...)
	return msg, nil
}

func (m *memMessages) MarkConversationRead(_ context.Context, conversationID, readerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID && msg.ReceiverID == readerID && !msg.Read {
			msg.Read = true
			n++
		}
	}
	return n, nil
}

func (m *memMessages) History(_ context.Context, conversationID string, before time.Time, limit int) ([]*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	var out []*Message
	for _, msg := range m.messages {
		if msg.ConversationID != conversationID {
			continue
		}
		if !before.IsZero() && !msg.CreatedAt.Before(before) {
			continue
		}
		cp := *msg
		out = append(out, &cp)
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memMessages) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

type fakeUsers struct {
	known   map[string]bool
	blocked map[[2]string]bool
}

func newFakeUsers(ids ...string) *fakeUsers {
	u := &fakeUsers{known: map[string]bool{}, blocked: map[[2]string]bool{}}
	for _, id := range ids {
		u.known[id] = true
	}
	return u
}

func (f *fakeUsers) GetUser(_ context.Context, id string) (*user.User, error) {
	if !f.known[id] {
		return nil, common.ErrNotFound
	}
	return &user.User{ID: id, Username: "user-" + id}, nil
}

func (f *fakeUsers) IsBlockedEither(_ context.Context, a, b string) (bool, error) {
	return f.blocked[[2]string{a, b}] || f.blocked[[2]string{b, a}], nil
}

// memNotifications is a notification.Store kept in memory.
type memNotifications struct {
	mu   sync.Mutex
	rows map[string]*notification.Notification
	fail bool
}

func newMemNotifications() *memNotifications {
	return &memNotifications{rows: map[string]*notification.Notification{}}
}

func (m *memNotifications) Create(_ context.Context, n *notification.Notification) (*notification.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errors.New("db error: down")
	}
	n.CreatedAt = time.Now()
	cp := *n
	m.rows[n.ID] = &cp
	return n, nil
}

func (m *memNotifications) List(_ context.Context, receiverID string, _ int) ([]*notification.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*notification.Notification
	for _, n := range m.rows {
		if n.ReceiverID == receiverID {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memNotifications) update(id, receiverID string, fn func(*notification.Notification)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok || n.ReceiverID != receiverID {
		return common.ErrNotFound
	}
	fn(n)
	return nil
}

func (m *memNotifications) MarkRead(_ context.Context, id, receiverID string) error {
	return m.update(id, receiverID, func(n *notification.Notification) { n.MarkRead() })
}

func (m *memNotifications) MarkDelivered(_ context.Context, id, receiverID string) error {
	return m.update(id, receiverID, func(n *notification.Notification) { n.MarkDelivered() })
}

func (m *memNotifications) MarkAllRead(context.Context, string) (int64, error) { return 0, nil }

func (m *memNotifications) UnreadCount(context.Context, string) (int, error) { return 0, nil }

func (m *memNotifications) Delete(_ context.Context, id, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *memNotifications) UpsertSubscription(_ context.Context, s *notification.PushSubscription) (*notification.PushSubscription, error) {
	return s, nil
}

func (m *memNotifications) DeleteSubscription(context.Context, string, string) error { return nil }

func (m *memNotifications) DeleteSubscriptionByEndpoint(context.Context, string) error { return nil }

func (m *memNotifications) ListSubscriptions(context.Context, string) ([]*notification.PushSubscription, error) {
	return nil, nil
}

func (m *memNotifications) forReceiver(receiverID string) []notification.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notification.Notification
	for _, n := range m.rows {
		if n.ReceiverID == receiverID {
			out = append(out, *n)
		}
	}
	return out
}
