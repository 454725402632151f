package chat

import (
	"encoding/json"
	"time"
)

// ---------------------------------------------
// ⚡ Websocket wire events
// ---------------------------------------------

// Client -> server.
const (
	EventSetup                 = "setup"
	EventSendPrivate           = "private_message"
	EventSendGlobal            = "global_message"
	EventTyping                = "typing"
	EventMessageDeleted        = "message_deleted"
	EventGlobalMessageDeleted  = "global_message_deleted"
	EventMessageEdited         = "message_edited"
	EventMarkMessagesAsRead    = "mark_messages_as_read"
	EventNotificationDelivered = "notification_delivered"
)

// Server -> client. Typing, deletions and edits reuse the names above.
const (
	EventPrivateMessage      = "private_message"
	EventGlobalMessage       = "global_message"
	EventGlobalMessageEdited = "global_message_edited"
	EventMessagesRead        = "messages_read"
	EventError               = "error"
)

// Event is the envelope of every websocket frame in both directions.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func encodeEvent(eventType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Type: eventType, Data: raw})
}

type setupPayload struct {
	Identity string `json:"identity"`
}

type sendPrivatePayload struct {
	To      string `json:"to"`
	Message string `json:"message"`
	Kind    Kind   `json:"kind"`
	FileURL string `json:"fileUrl"`
}

type sendGlobalPayload struct {
	Message string `json:"message"`
	Kind    Kind   `json:"kind"`
	FileURL string `json:"fileUrl"`
}

type typingIn struct {
	To       string `json:"to"`
	IsTyping bool   `json:"isTyping"`
}

type deletePayload struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId,omitempty"`
}

type editPayload struct {
	MessageID  string `json:"messageId"`
	NewContent string `json:"newContent"`
	To         string `json:"to,omitempty"`
}

type markReadPayload struct {
	From string `json:"from"`
}

type deliveredPayload struct {
	ID string `json:"id"`
}

type privateMessageOut struct {
	From    string   `json:"from"`
	Message *Message `json:"message"`
}

type typingOut struct {
	From     string `json:"from"`
	IsTyping bool   `json:"isTyping"`
}

type editedOut struct {
	MessageID      string    `json:"messageId"`
	NewContent     string    `json:"newContent"`
	ConversationID string    `json:"conversationId,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type readOut struct {
	By string `json:"by"`
}

type errorOut struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}
