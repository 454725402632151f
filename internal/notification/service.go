package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-realtime-chat/internal/common"
	"go-realtime-chat/internal/logging"
)

const (
	defaultListLimit = 50
	pushTimeout      = 10 * time.Second
)

type Store interface {
	Create(ctx context.Context, n *Notification) (*Notification, error)
	List(ctx context.Context, receiverID string, limit int) ([]*Notification, error)
	MarkRead(ctx context.Context, id, receiverID string) error
	MarkDelivered(ctx context.Context, id, receiverID string) error
	MarkAllRead(ctx context.Context, receiverID string) (int64, error)
	UnreadCount(ctx context.Context, receiverID string) (int, error)
	Delete(ctx context.Context, id, receiverID string) error

	UpsertSubscription(ctx context.Context, sub *PushSubscription) (*PushSubscription, error)
	DeleteSubscription(ctx context.Context, userID, endpoint string) error
	DeleteSubscriptionByEndpoint(ctx context.Context, endpoint string) error
	ListSubscriptions(ctx context.Context, userID string) ([]*PushSubscription, error)
}

// Deliverer routes an encoded event to a bound identity. *presence.Registry implements it.
type Deliverer interface {
	Deliver(identity string, payload []byte) bool
}

type Service struct {
	store         Store
	conns         Deliverer
	pusher        Pusher
	logger        logging.Logger
	snippetLength int

	wg sync.WaitGroup
}

// NewService builds the fan-out service. pusher may be nil, in which case offline
// receivers only get the persisted row.
func NewService(store Store, conns Deliverer, pusher Pusher, logger logging.Logger, snippetLength int) *Service {
	return &Service{
		store:         store,
		conns:         conns,
		pusher:        pusher,
		logger:        logger,
		snippetLength: snippetLength,
	}
}

// Fanout persists a notification for a private message and tells the receiver
// about it: live when bound, through push subscriptions otherwise.
func (s *Service) Fanout(ctx context.Context, senderID, receiverID, content string) (*Notification, error) {
	n, err := s.store.Create(ctx, &Notification{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Message:    Snippet(content, s.snippetLength),
	})
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(struct {
		Type string             `json:"type"`
		Data newNotificationOut `json:"data"`
	}{
		Type: EventNewNotification,
		Data: newNotificationOut{ID: n.ID, From: n.SenderID, Message: n.Message, Timestamp: n.CreatedAt},
	})
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}

	if s.conns.Deliver(receiverID, payload) {
		return n, nil
	}
	if s.pusher != nil {
		s.wg.Add(1)
		go func(n Notification) {
			defer s.wg.Done()
			s.pushAll(&n)
		}(*n)
	}
	return n, nil
}

// Wait blocks until in-flight push fallbacks finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) pushAll(n *Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()

	subs, err := s.store.ListSubscriptions(ctx, n.ReceiverID)
	if err != nil {
		s.logger.Warn(ctx, "list push subscriptions", "receiver", n.ReceiverID, "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	body, err := json.Marshal(PushPayload{
		NotificationID: n.ID,
		From:           n.SenderID,
		Body:           n.Message,
		Timestamp:      n.CreatedAt,
	})
	if err != nil {
		s.logger.Error(ctx, "encode push payload", "error", err)
		return
	}

	for _, sub := range subs {
		err := s.pusher.Push(ctx, sub, body)
		switch {
		case err == nil:
		case errors.Is(err, ErrSubscriptionGone):
			s.logger.Info(ctx, "removing gone push subscription", "receiver", n.ReceiverID, "endpoint", sub.Endpoint)
			if err := s.store.DeleteSubscriptionByEndpoint(ctx, sub.Endpoint); err != nil {
				s.logger.Warn(ctx, "remove push subscription", "endpoint", sub.Endpoint, "error", err)
			}
		default:
			s.logger.Warn(ctx, "push failed", "receiver", n.ReceiverID, "endpoint", sub.Endpoint, "error", err)
		}
	}
}

func (s *Service) List(ctx context.Context, receiverID string) ([]*Notification, error) {
	return s.store.List(ctx, receiverID, defaultListLimit)
}

func (s *Service) MarkRead(ctx context.Context, receiverID, id string) error {
	return s.store.MarkRead(ctx, id, receiverID)
}

func (s *Service) MarkDelivered(ctx context.Context, receiverID, id string) error {
	return s.store.MarkDelivered(ctx, id, receiverID)
}

func (s *Service) MarkAllRead(ctx context.Context, receiverID string) (int64, error) {
	return s.store.MarkAllRead(ctx, receiverID)
}

func (s *Service) UnreadCount(ctx context.Context, receiverID string) (int, error) {
	return s.store.UnreadCount(ctx, receiverID)
}

func (s *Service) Delete(ctx context.Context, receiverID, id string) error {
	return s.store.Delete(ctx, id, receiverID)
}

func (s *Service) Subscribe(ctx context.Context, userID string, req *SubscribeRequest) (*PushSubscription, error) {
	endpoint := strings.TrimSpace(req.Endpoint)
	if endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		return nil, fmt.Errorf("%w: endpoint and keys are required", common.ErrValidation)
	}
	return s.store.UpsertSubscription(ctx, &PushSubscription{
		ID:       uuid.NewString(),
		UserID:   userID,
		Endpoint: endpoint,
		Keys:     req.Keys,
	})
}

func (s *Service) Unsubscribe(ctx context.Context, userID, endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", common.ErrValidation)
	}
	return s.store.DeleteSubscription(ctx, userID, endpoint)
}

func (s *Service) Subscriptions(ctx context.Context, userID string) ([]*PushSubscription, error) {
	return s.store.ListSubscriptions(ctx, userID)
}

// Snippet shortens content to at most n runes, marking the cut with an ellipsis.
func Snippet(content string, n int) string {
	content = strings.TrimSpace(content)
	if n <= 0 {
		return content
	}
	runes := []rune(content)
	if len(runes) <= n {
		return content
	}
	return string(runes[:n]) + "…"
}
