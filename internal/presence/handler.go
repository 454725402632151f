package presence

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go-realtime-chat/internal/common"
)

// LastSeenReader looks up recorded last-seen times.
type LastSeenReader interface {
	LastSeen(ctx context.Context, identities ...string) (map[string]time.Time, error)
}

type Handler struct {
	registry *Registry
	lastSeen LastSeenReader
}

func NewHandler(registry *Registry, lastSeen LastSeenReader) *Handler {
	return &Handler{registry: registry, lastSeen: lastSeen}
}

type Status struct {
	ID       string     `json:"id"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// Online answers GET /api/presence/online.
func (h *Handler) Online(w http.ResponseWriter, r *http.Request) {
	common.WriteJSON(w, http.StatusOK, h.registry.OnlineIdentities())
}

// LastSeen answers GET /api/presence/last-seen?ids=a,b.
func (h *Handler) LastSeen(w http.ResponseWriter, r *http.Request) {
	var ids []string
	for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		http.Error(w, "ids is required", http.StatusBadRequest)
		return
	}

	seen, err := h.lastSeen.LastSeen(r.Context(), ids...)
	if err != nil {
		common.WriteError(w, err)
		return
	}

	out := make([]Status, 0, len(ids))
	for _, id := range ids {
		st := Status{ID: id, Online: h.registry.IsOnline(id)}
		if t, ok := seen[id]; ok && !st.Online {
			st.LastSeen = &t
		}
		out = append(out, st)
	}
	common.WriteJSON(w, http.StatusOK, out)
}
