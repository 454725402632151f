package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go-realtime-chat/internal/common"
	"go-realtime-chat/internal/logging"
	"go-realtime-chat/internal/presence"
)

// EventMessageSent acknowledges a private message sent over the websocket with
// its stored form.
const EventMessageSent = "message_sent"

// Binder is the registry side of a connection's lifecycle.
type Binder interface {
	Bind(identity string, h presence.Handle) *presence.Connection
	Unbind(h presence.Handle) bool
}

// DeliveryAcker records that a notification reached its receiver.
type DeliveryAcker interface {
	MarkDelivered(ctx context.Context, receiverID, id string) error
}

// Gateway routes client events of a websocket connection to the chat service.
type Gateway struct {
	registry   Binder
	service    *Service
	dispatcher *Dispatcher
	acks       DeliveryAcker
	logger     logging.Logger
}

func NewGateway(registry Binder, service *Service, dispatcher *Dispatcher, acks DeliveryAcker, logger logging.Logger) *Gateway {
	return &Gateway{
		registry:   registry,
		service:    service,
		dispatcher: dispatcher,
		acks:       acks,
		logger:     logger,
	}
}

// Disconnected releases the connection's registry entry, if it still owns one.
func (g *Gateway) Disconnected(c *Client) {
	if c.bound {
		g.registry.Unbind(c)
	}
}

// HandleEvent decodes one frame and runs it. Failures are answered with an
// error event on the same connection.
func (g *Gateway) HandleEvent(ctx context.Context, c *Client, raw []byte) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		g.replyError(c, "", "malformed event")
		return
	}

	if ev.Type == EventSetup {
		g.setup(c, ev.Data)
		return
	}
	if !c.bound {
		g.replyError(c, ev.Type, "setup required")
		return
	}

	var err error
	switch ev.Type {
	case EventSendPrivate:
		var p sendPrivatePayload
		if err = decode(ev.Data, &p); err == nil {
			var msg *Message
			msg, err = g.service.SendPrivate(ctx, c.identity, SendRequest{To: p.To, Content: p.Message, Kind: p.Kind, FileURL: p.FileURL})
			if err == nil {
				g.reply(c, EventMessageSent, msg)
			}
		}

	case EventSendGlobal:
		var p sendGlobalPayload
		if err = decode(ev.Data, &p); err == nil {
			_, err = g.service.SendGlobal(ctx, c.identity, SendRequest{Content: p.Message, Kind: p.Kind, FileURL: p.FileURL})
		}

	case EventTyping:
		var p typingIn
		if err = decode(ev.Data, &p); err == nil {
			g.dispatcher.RelayTyping(c.identity, p.To, p.IsTyping)
		}

	case EventMessageDeleted, EventGlobalMessageDeleted:
		var p deletePayload
		if err = decode(ev.Data, &p); err == nil {
			_, err = g.service.Delete(ctx, c.identity, p.MessageID)
			// Already removed through the HTTP API, which relayed it.
			if errors.Is(err, common.ErrNotFound) {
				err = nil
			}
		}

	case EventMessageEdited:
		var p editPayload
		if err = decode(ev.Data, &p); err == nil {
			_, err = g.service.Edit(ctx, c.identity, p.MessageID, p.NewContent)
		}

	case EventMarkMessagesAsRead:
		var p markReadPayload
		if err = decode(ev.Data, &p); err == nil {
			_, err = g.service.MarkConversationRead(ctx, c.identity, p.From)
		}

	case EventNotificationDelivered:
		var p deliveredPayload
		if err = decode(ev.Data, &p); err == nil {
			err = g.acks.MarkDelivered(ctx, c.identity, p.ID)
		}

	default:
		g.replyError(c, ev.Type, "unknown event")
		return
	}

	if err != nil {
		msg := err.Error()
		if common.StatusFor(err) == http.StatusInternalServerError {
			g.logger.Error(ctx, "event failed", "type", ev.Type, "identity", c.identity, "error", err)
			msg = "internal error"
		} else {
			g.logger.Debug(ctx, "event rejected", "type", ev.Type, "identity", c.identity, "error", err)
		}
		g.replyError(c, ev.Type, msg)
	}
}

func (g *Gateway) setup(c *Client, data json.RawMessage) {
	var p setupPayload
	if err := decode(data, &p); err != nil {
		g.replyError(c, EventSetup, err.Error())
		return
	}
	if p.Identity != c.identity {
		g.replyError(c, EventSetup, "identity does not match token")
		return
	}
	g.registry.Bind(c.identity, c)
	c.bound = true
}

func (g *Gateway) reply(c *Client, eventType string, data any) {
	payload, err := encodeEvent(eventType, data)
	if err != nil {
		g.logger.Error(context.Background(), "encode event", "type", eventType, "error", err)
		return
	}
	c.Send(payload)
}

func (g *Gateway) replyError(c *Client, eventType, msg string) {
	g.reply(c, EventError, errorOut{Event: eventType, Message: msg})
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", common.ErrValidation)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	return nil
}
