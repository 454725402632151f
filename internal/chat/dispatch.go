package chat

import (
	"context"
	"time"

	"go-realtime-chat/internal/logging"
)

// Deliverer routes encoded events to live connections. *presence.Registry implements it.
type Deliverer interface {
	Deliver(identity string, payload []byte) bool
	Broadcast(payload []byte) int
}

type MutationKind string

const (
	MutationEdited  MutationKind = "edited"
	MutationDeleted MutationKind = "deleted"
)

// Mutation describes an edit or delete of an already persisted message.
type Mutation struct {
	Kind           MutationKind
	MessageID      string
	ConversationID string
	NewContent     string
	UpdatedAt      time.Time

	// Global mutations go to everybody; private ones only to Counterpart.
	Global      bool
	Counterpart string
}

// Dispatcher pushes already-persisted events to live connections. It never
// fails its caller; encoding problems are logged and offline recipients are skipped.
type Dispatcher struct {
	conns  Deliverer
	logger logging.Logger
}

func NewDispatcher(conns Deliverer, logger logging.Logger) *Dispatcher {
	return &Dispatcher{conns: conns, logger: logger}
}

// DispatchPrivate delivers msg to its receiver's connection, if any.
func (d *Dispatcher) DispatchPrivate(msg *Message) bool {
	return d.deliver(msg.ReceiverID, EventPrivateMessage, privateMessageOut{From: msg.SenderID, Message: msg})
}

// DispatchGlobal delivers msg to every connection, the sender's included.
func (d *Dispatcher) DispatchGlobal(msg *Message) int {
	return d.broadcast(EventGlobalMessage, msg)
}

// RelayTyping forwards a typing indicator. Dropped silently when to is offline.
func (d *Dispatcher) RelayTyping(from, to string, isTyping bool) bool {
	if to == "" || to == from {
		return false
	}
	return d.deliver(to, EventTyping, typingOut{From: from, IsTyping: isTyping})
}

// RelayMutation announces an edit or delete and returns how many connections got it.
func (d *Dispatcher) RelayMutation(m Mutation) int {
	var (
		eventType string
		data      any
	)
	switch m.Kind {
	case MutationDeleted:
		eventType = EventMessageDeleted
		data = deletePayload{MessageID: m.MessageID, ConversationID: m.ConversationID}
		if m.Global {
			eventType = EventGlobalMessageDeleted
			data = deletePayload{MessageID: m.MessageID}
		}
	case MutationEdited:
		eventType = EventMessageEdited
		if m.Global {
			eventType = EventGlobalMessageEdited
		}
		data = editedOut{
			MessageID:      m.MessageID,
			NewContent:     m.NewContent,
			ConversationID: m.ConversationID,
			UpdatedAt:      m.UpdatedAt,
		}
	default:
		d.logger.Warn(context.Background(), "unknown mutation kind", "kind", m.Kind, "message_id", m.MessageID)
		return 0
	}

	if m.Global {
		return d.broadcast(eventType, data)
	}
	if d.deliver(m.Counterpart, eventType, data) {
		return 1
	}
	return 0
}

// RelayRead tells counterpart that reader has read their messages.
func (d *Dispatcher) RelayRead(reader, counterpart string) bool {
	return d.deliver(counterpart, EventMessagesRead, readOut{By: reader})
}

func (d *Dispatcher) deliver(identity, eventType string, data any) bool {
	if identity == "" {
		return false
	}
	payload, err := encodeEvent(eventType, data)
	if err != nil {
		d.logger.Error(context.Background(), "encode event", "type", eventType, "error", err)
		return false
	}
	ok := d.conns.Deliver(identity, payload)
	if !ok {
		d.logger.Debug(context.Background(), "recipient offline", "type", eventType, "to", identity)
	}
	return ok
}

func (d *Dispatcher) broadcast(eventType string, data any) int {
	payload, err := encodeEvent(eventType, data)
	if err != nil {
		d.logger.Error(context.Background(), "encode event", "type", eventType, "error", err)
		return 0
	}
	return d.conns.Broadcast(payload)
}
