// Package notification persists per-message notifications, pushes them to live
// connections and keeps the browser push subscriptions used when the receiver
// is offline.
package notification

import "time"

type Notification struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Message    string    `json:"message"`
	Read       bool      `json:"read"`
	Delivered  bool      `json:"delivered"`
	CreatedAt  time.Time `json:"created_at"`
}

// MarkRead sets the read flag. Flags only move from false to true; the return
// value reports whether anything changed.
func (n *Notification) MarkRead() bool {
	if n.Read {
		return false
	}
	n.Read = true
	return true
}

// MarkDelivered sets the delivered flag, with the same monotonic rule as MarkRead.
func (n *Notification) MarkDelivered() bool {
	if n.Delivered {
		return false
	}
	n.Delivered = true
	return true
}

// PushSubscription is a browser push endpoint registered by one identity.
type PushSubscription struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Endpoint  string    `json:"endpoint"`
	Keys      PushKeys  `json:"keys"`
	CreatedAt time.Time `json:"created_at"`
}

type PushKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// SubscribeRequest mirrors the browser's PushSubscription.toJSON().
type SubscribeRequest struct {
	Endpoint string   `json:"endpoint"`
	Keys     PushKeys `json:"keys"`
}

type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// EventNewNotification is the server->client event for a fresh notification.
const EventNewNotification = "new_notification"

type newNotificationOut struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// PushPayload is the body handed to the push provider.
type PushPayload struct {
	NotificationID string    `json:"notification_id"`
	From           string    `json:"from"`
	Body           string    `json:"body"`
	Timestamp      time.Time `json:"timestamp"`
}
