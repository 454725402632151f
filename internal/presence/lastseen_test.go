package presence

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go-realtime-chat/internal/logging"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLastSeen(t *testing.T) (*RedisLastSeen, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLastSeen(client), mr
}

func TestRedisLastSeen_RoundTrip(t *testing.T) {
	s, mr := newRedisLastSeen(t)
	ctx := context.Background()
	at := time.UnixMilli(1_760_000_000_123)

	require.NoError(t, s.RecordLastSeen(ctx, "alice", at))
	assert.Equal(t, "1760000000123", mr.HGet(lastSeenKey, "alice"))

	got, err := s.LastSeen(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Contains(t, got, "alice")
	assert.True(t, got["alice"].Equal(at))
	assert.NotContains(t, got, "bob")
}

func TestRedisLastSeen_Empty(t *testing.T) {
	s, _ := newRedisLastSeen(t)
	got, err := s.LastSeen(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisLastSeen_ServerDown(t *testing.T) {
	s, mr := newRedisLastSeen(t)
	mr.Close()

	err := s.RecordLastSeen(context.Background(), "alice", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis error")
}

func TestHandler_LastSeen(t *testing.T) {
	store, _ := newRedisLastSeen(t)
	r := NewRegistry(store, logging.Discard())
	h := NewHandler(r, store)

	r.Bind("alice", newFakeHandle("ha"))
	bob := newFakeHandle("hb")
	r.Bind("bob", bob)
	r.Unbind(bob)
	r.Wait()

	rec := httptest.NewRecorder()
	h.LastSeen(rec, httptest.NewRequest(http.MethodGet, "/api/presence/last-seen?ids=alice,bob,carol", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out []Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 3)
	assert.True(t, out[0].Online)
	assert.Nil(t, out[0].LastSeen)
	assert.False(t, out[1].Online)
	assert.NotNil(t, out[1].LastSeen)
	assert.False(t, out[2].Online)
	assert.Nil(t, out[2].LastSeen)

	rec = httptest.NewRecorder()
	h.LastSeen(rec, httptest.NewRequest(http.MethodGet, "/api/presence/last-seen", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Online(rec, httptest.NewRequest(http.MethodGet, "/api/presence/online", nil))
	assert.JSONEq(t, `["alice"]`, rec.Body.String())
}
