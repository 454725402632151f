package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"go-realtime-chat/internal/common"
	"go-realtime-chat/internal/logging"
	"go-realtime-chat/internal/notification"
	"go-realtime-chat/internal/user"
)

type Store interface {
	CreateMessage(ctx context.Context, msg *Message) (*Message, error)
	EditOwned(ctx context.Context, id, senderID, content string) (*Message, error)
	DeleteOwned(ctx context.Context, id, senderID string) (*Message, error)
	MarkConversationRead(ctx context.Context, conversationID, readerID string) (int64, error)
	History(ctx context.Context, conversationID string, before time.Time, limit int) ([]*Message, error)
}

// Users is the slice of the user service the chat flows depend on.
type Users interface {
	GetUser(ctx context.Context, id string) (*user.User, error)
	IsBlockedEither(ctx context.Context, a, b string) (bool, error)
}

// Notifier creates the notification that accompanies a private message.
type Notifier interface {
	Fanout(ctx context.Context, senderID, receiverID, content string) (*notification.Notification, error)
}

// Service runs the persist-then-dispatch flows shared by the HTTP API and the
// websocket gateway.
type Service struct {
	store        Store
	users        Users
	notifier     Notifier
	dispatcher   *Dispatcher
	logger       logging.Logger
	historyLimit int
}

func NewService(store Store, users Users, notifier Notifier, dispatcher *Dispatcher, logger logging.Logger, historyLimit int) *Service {
	return &Service{
		store:        store,
		users:        users,
		notifier:     notifier,
		dispatcher:   dispatcher,
		logger:       logger,
		historyLimit: historyLimit,
	}
}

// SendPrivate stores a message from senderID to req.To, delivers it to the
// receiver if bound and creates its notification. Blocked pairs get
// common.ErrBlocked and nothing is stored or dispatched.
func (s *Service) SendPrivate(ctx context.Context, senderID string, req SendRequest) (*Message, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	req.To = strings.TrimSpace(req.To)
	if req.To == "" {
		return nil, fmt.Errorf("%w: receiver is required", common.ErrValidation)
	}
	if req.To == senderID {
		return nil, fmt.Errorf("%w: cannot message yourself", common.ErrValidation)
	}

	if _, err := s.users.GetUser(ctx, req.To); err != nil {
		return nil, err
	}
	blocked, err := s.users.IsBlockedEither(ctx, senderID, req.To)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, common.ErrBlocked
	}

	msg, err := s.store.CreateMessage(ctx, &Message{
		ID:             uuid.NewString(),
		ConversationID: ConversationID(senderID, req.To),
		SenderID:       senderID,
		ReceiverID:     req.To,
		Content:        req.Content,
		Kind:           req.Kind,
		FileURL:        req.FileURL,
	})
	if err != nil {
		return nil, err
	}

	s.dispatcher.DispatchPrivate(msg)

	if _, err := s.notifier.Fanout(ctx, senderID, msg.ReceiverID, msg.Content); err != nil {
		s.logger.Error(ctx, "notification fan-out failed", "message_id", msg.ID, "receiver", msg.ReceiverID, "error", err)
	}
	return msg, nil
}

// SendGlobal stores a message in the global room and broadcasts it to every
// bound connection, the sender's included.
func (s *Service) SendGlobal(ctx context.Context, senderID string, req SendRequest) (*Message, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	msg, err := s.store.CreateMessage(ctx, &Message{
		ID:             uuid.NewString(),
		ConversationID: GlobalConversationID,
		SenderID:       senderID,
		IsGlobal:       true,
		Content:        req.Content,
		Kind:           req.Kind,
		FileURL:        req.FileURL,
	})
	if err != nil {
		return nil, err
	}
	s.dispatcher.DispatchGlobal(msg)
	return msg, nil
}

func (s *Service) Edit(ctx context.Context, userID, messageID, content string) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: content must not be empty", common.ErrValidation)
	}
	msg, err := s.store.EditOwned(ctx, messageID, userID, content)
	if err != nil {
		return nil, err
	}
	s.dispatcher.RelayMutation(Mutation{
		Kind:           MutationEdited,
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		NewContent:     msg.Content,
		UpdatedAt:      msg.UpdatedAt,
		Global:         msg.IsGlobal,
		Counterpart:    msg.Counterpart(userID),
	})
	return msg, nil
}

func (s *Service) Delete(ctx context.Context, userID, messageID string) (*Message, error) {
	msg, err := s.store.DeleteOwned(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	s.dispatcher.RelayMutation(Mutation{
		Kind:           MutationDeleted,
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Global:         msg.IsGlobal,
		Counterpart:    msg.Counterpart(userID),
	})
	return msg, nil
}

// MarkConversationRead marks the messages peerID sent to readerID as read and
// tells peerID about it.
func (s *Service) MarkConversationRead(ctx context.Context, readerID, peerID string) (int64, error) {
	peerID = strings.TrimSpace(peerID)
	if peerID == "" || peerID == readerID {
		return 0, fmt.Errorf("%w: invalid peer", common.ErrValidation)
	}
	n, err := s.store.MarkConversationRead(ctx, ConversationID(readerID, peerID), readerID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.dispatcher.RelayRead(readerID, peerID)
	}
	return n, nil
}

// History returns the private conversation between userID and peerID, oldest first.
func (s *Service) History(ctx context.Context, userID, peerID string, before time.Time, limit int) ([]*Message, error) {
	peerID = strings.TrimSpace(peerID)
	if peerID == "" {
		return nil, fmt.Errorf("%w: peer is required", common.ErrValidation)
	}
	return s.store.History(ctx, ConversationID(userID, peerID), before, s.clampLimit(limit))
}

func (s *Service) GlobalHistory(ctx context.Context, before time.Time, limit int) ([]*Message, error) {
	return s.store.History(ctx, GlobalConversationID, before, s.clampLimit(limit))
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 || limit > s.historyLimit {
		return s.historyLimit
	}
	return limit
}
