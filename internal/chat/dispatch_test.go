package chat

import (
	"encoding/json"
	"testing"
	"time"

	"go-realtime-chat/internal/logging"
	"go-realtime-chat/internal/presence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(identities ...string) (*Dispatcher, map[string]*fakeHandle) {
	reg := presence.NewRegistry(nil, logging.Discard())
	handles := map[string]*fakeHandle{}
	for _, id := range identities {
		h := newFakeHandle("h-" + id)
		reg.Bind(id, h)
		handles[id] = h
	}
	return NewDispatcher(reg, logging.Discard()), handles
}

func TestDispatchPrivateOnlyReachesReceiver(t *testing.T) {
	d, hs := newTestDispatcher("a", "b", "c")

	ok := d.DispatchPrivate(&Message{ID: "m1", SenderID: "a", ReceiverID: "b", Content: "hi"})
	assert.True(t, ok)
	assert.Len(t, hs["b"].events(EventPrivateMessage), 1)
	assert.Empty(t, hs["a"].events(EventPrivateMessage))
	assert.Empty(t, hs["c"].events(EventPrivateMessage))

	assert.False(t, d.DispatchPrivate(&Message{ID: "m2", SenderID: "a", ReceiverID: "offline"}))
}

func TestDispatchGlobal(t *testing.T) {
	d, hs := newTestDispatcher("a", "b", "c")

	assert.Equal(t, 3, d.DispatchGlobal(&Message{ID: "m1", SenderID: "a", IsGlobal: true}))
	for id, h := range hs {
		assert.Len(t, h.events(EventGlobalMessage), 1, id)
	}
}

func TestRelayTyping(t *testing.T) {
	d, hs := newTestDispatcher("a", "b")

	assert.True(t, d.RelayTyping("a", "b", true))
	got := hs["b"].events(EventTyping)
	require.Len(t, got, 1)
	var p typingOut
	require.NoError(t, json.Unmarshal(got[0].Data, &p))
	assert.Equal(t, typingOut{From: "a", IsTyping: true}, p)

	assert.False(t, d.RelayTyping("a", "nobody", true))
	assert.False(t, d.RelayTyping("a", "a", true))
	assert.False(t, d.RelayTyping("a", "", false))
	assert.Empty(t, hs["a"].events(EventTyping))
}

func TestRelayMutation(t *testing.T) {
	now := time.Now()

	t.Run("private delete goes to the counterpart", func(t *testing.T) {
		d, hs := newTestDispatcher("a", "b", "c")
		n := d.RelayMutation(Mutation{Kind: MutationDeleted, MessageID: "m1", ConversationID: "a:b", Counterpart: "b"})
		assert.Equal(t, 1, n)

		got := hs["b"].events(EventMessageDeleted)
		require.Len(t, got, 1)
		var p deletePayload
		require.NoError(t, json.Unmarshal(got[0].Data, &p))
		assert.Equal(t, deletePayload{MessageID: "m1", ConversationID: "a:b"}, p)
		assert.Empty(t, hs["c"].events(EventMessageDeleted))
	})

	t.Run("global edit goes to everybody", func(t *testing.T) {
		d, hs := newTestDispatcher("a", "b", "c")
		n := d.RelayMutation(Mutation{
			Kind: MutationEdited, MessageID: "m1", ConversationID: GlobalConversationID,
			NewContent: "fixed", UpdatedAt: now, Global: true,
		})
		assert.Equal(t, 3, n)
		for id, h := range hs {
			assert.Len(t, h.events(EventGlobalMessageEdited), 1, id)
		}
	})

	t.Run("offline counterpart", func(t *testing.T) {
		d, _ := newTestDispatcher("a")
		assert.Zero(t, d.RelayMutation(Mutation{Kind: MutationEdited, MessageID: "m1", Counterpart: "b"}))
	})

	t.Run("unknown kind", func(t *testing.T) {
		d, hs := newTestDispatcher("a")
		assert.Zero(t, d.RelayMutation(Mutation{Kind: "pinned", Global: true}))
		assert.Empty(t, hs["a"].got)
	})
}

func TestConversationIDIsSymmetric(t *testing.T) {
	assert.Equal(t, ConversationID("x", "y"), ConversationID("y", "x"))
	assert.Equal(t, "x:y", ConversationID("y", "x"))
}
