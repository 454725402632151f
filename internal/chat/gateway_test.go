package chat

import (
	"context"
	"encoding/json"
	"testing"

	"go-realtime-chat/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// offlineClient is a Client without a socket; queued events stay in send.
func offlineClient(identity string, gw *Gateway) *Client {
	return &Client{
		id:       "c-" + identity,
		identity: identity,
		send:     make(chan []byte, 8),
		done:     make(chan struct{}),
		gateway:  gw,
		logger:   logging.Discard(),
	}
}

func queued(t *testing.T, c *Client) []Event {
	t.Helper()
	var out []Event
	for {
		select {
		case raw := <-c.send:
			var ev Event
			require.NoError(t, json.Unmarshal(raw, &ev))
			out = append(out, ev)
		default:
			return out
		}
	}
}

func newTestGateway(t *testing.T, users ...string) (*Gateway, *testEnv) {
	env := newTestEnv(t, users...)
	logger := logging.Discard()
	return NewGateway(env.registry, env.service, NewDispatcher(env.registry, logger), env.notifier, logger), env
}

func TestGatewayRejectsBadFrames(t *testing.T) {
	gw, _ := newTestGateway(t, "u1")
	c := offlineClient("u1", gw)
	ctx := context.Background()

	gw.HandleEvent(ctx, c, []byte("not json"))
	gw.HandleEvent(ctx, c, []byte(`{"type":"setup","data":{"identity":"u1"}}`))
	gw.HandleEvent(ctx, c, []byte(`{"type":"dance"}`))
	gw.HandleEvent(ctx, c, []byte(`{"type":"private_message"}`))

	evs := queued(t, c)
	require.Len(t, evs, 3)
	for _, ev := range evs {
		assert.Equal(t, EventError, ev.Type)
	}
	var e errorOut
	require.NoError(t, json.Unmarshal(evs[1].Data, &e))
	assert.Equal(t, "dance", e.Event)
}

func TestGatewayDisconnect(t *testing.T) {
	gw, env := newTestGateway(t, "u1")
	ctx := context.Background()

	old := offlineClient("u1", gw)
	gw.HandleEvent(ctx, old, []byte(`{"type":"setup","data":{"identity":"u1"}}`))
	require.True(t, env.registry.IsOnline("u1"))

	// A reconnect supersedes the old handle; its late disconnect must not log u1 out.
	fresh := offlineClient("u1", gw)
	fresh.id = "c-u1-2"
	gw.HandleEvent(ctx, fresh, []byte(`{"type":"setup","data":{"identity":"u1"}}`))
	gw.Disconnected(old)
	assert.True(t, env.registry.IsOnline("u1"))

	gw.Disconnected(fresh)
	assert.False(t, env.registry.IsOnline("u1"))

	never := offlineClient("u2", gw)
	gw.Disconnected(never)
}

func TestGatewayDeleteAlreadyGoneIsQuiet(t *testing.T) {
	gw, _ := newTestGateway(t, "u1")
	c := offlineClient("u1", gw)
	ctx := context.Background()

	gw.HandleEvent(ctx, c, []byte(`{"type":"setup","data":{"identity":"u1"}}`))
	gw.HandleEvent(ctx, c, []byte(`{"type":"message_deleted","data":{"messageId":"gone"}}`))
	assert.Empty(t, queued(t, c))
}
