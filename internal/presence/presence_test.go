package presence

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// fakeHandle records every payload it is sent.
type fakeHandle struct {
	id string

	mu     sync.Mutex
	got    [][]byte
	closed bool
}

func newFakeHandle(id string) *fakeHandle { return &fakeHandle{id: id} }

func (h *fakeHandle) ID() string { return h.id }

func (h *fakeHandle) Send(p []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.got = append(h.got, p)
	return true
}

func (h *fakeHandle) payloads() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]byte(nil), h.got...)
}

// lastOnline decodes the most recent online-users event.
func (h *fakeHandle) lastOnline() ([]string, bool) {
	ps := h.payloads()
	for i := len(ps) - 1; i >= 0; i-- {
		var ev onlineUsersEvent
		if err := json.Unmarshal(ps[i], &ev); err == nil && ev.Type == EventOnlineUsers {
			return ev.Data, true
		}
	}
	return nil, false
}

type recordedSeen struct {
	identity string
	at       time.Time
}

type fakeRecorder struct {
	mu   sync.Mutex
	seen []recordedSeen
	err  error
}

func (f *fakeRecorder) RecordLastSeen(_ context.Context, identity string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, recordedSeen{identity, at})
	return f.err
}

func (f *fakeRecorder) calls() []recordedSeen {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedSeen(nil), f.seen...)
}
