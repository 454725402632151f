package chat

import (
	"fmt"
	"strings"
	"time"

	"go-realtime-chat/internal/common"
)

// ---------------------------------------------
// 🗄️ Database & API Models
// ---------------------------------------------

type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindFile  Kind = "file"
)

func (k Kind) Valid() bool {
	switch k {
	case KindText, KindImage, KindVideo, KindFile:
		return true
	}
	return false
}

// GlobalConversationID is the conversation bucket of the global room.
const GlobalConversationID = "global"

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	SenderUsername string    `json:"sender_username"` // 🟢 Denormalized for UI speed (Fetched via JOIN)
	ReceiverID     string    `json:"receiver_id,omitempty"`
	IsGlobal       bool      `json:"is_global"`
	Content        string    `json:"content"`
	Kind           Kind      `json:"kind"`
	FileURL        string    `json:"file_url,omitempty"`
	Read           bool      `json:"read"`
	Edited         bool      `json:"edited"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Counterpart returns the other participant of a private message.
func (m *Message) Counterpart(identity string) string {
	if m.SenderID == identity {
		return m.ReceiverID
	}
	return m.SenderID
}

// ConversationID returns the private conversation key shared by both directions.
func ConversationID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// SendRequest is what a client submits to send a message.
type SendRequest struct {
	To      string `json:"to"`
	Content string `json:"content"`
	Kind    Kind   `json:"kind"`
	FileURL string `json:"file_url"`
}

// normalize trims the content, defaults the kind and validates the request.
// Receiver checks are left to the caller since global sends ignore To.
func (r *SendRequest) normalize() error {
	r.Content = strings.TrimSpace(r.Content)
	r.FileURL = strings.TrimSpace(r.FileURL)
	if r.Content == "" {
		return fmt.Errorf("%w: content must not be empty", common.ErrValidation)
	}
	if r.Kind == "" {
		r.Kind = KindText
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown message kind %q", common.ErrValidation, r.Kind)
	}
	if r.Kind != KindText && r.FileURL == "" {
		return fmt.Errorf("%w: %s messages need a file_url", common.ErrValidation, r.Kind)
	}
	return nil
}

type EditRequest struct {
	Content string `json:"content"`
}
