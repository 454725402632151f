package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go-realtime-chat/internal/common"
	"go-realtime-chat/internal/logging"
	myMiddleware "go-realtime-chat/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

type Handler struct {
	service    *Service
	gateway    *Gateway
	upgrader   websocket.Upgrader
	logger     logging.Logger
	sendBuffer int
}

// NewHandler builds the websocket and message endpoints. An empty
// allowedOrigins accepts every origin.
func NewHandler(service *Service, gateway *Gateway, logger logging.Logger, sendBuffer int, allowedOrigins []string) *Handler {
	return &Handler{
		service: service,
		gateway: gateway,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger:     logger,
		sendBuffer: sendBuffer,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeWs upgrades an authenticated request. The connection is routed only
// after the client sends setup.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	me, ok := myMiddleware.Identity(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade failed", "identity", me, "error", err)
		return
	}

	client := newClient(conn, me, h.gateway, h.logger, h.sendBuffer)
	h.logger.Debug(context.Background(), "websocket connected", "identity", me, "conn_id", client.ID())

	go client.writePump()
	go client.readPump()
}

func (h *Handler) SendPrivate(w http.ResponseWriter, r *http.Request) {
	me, ok := myMiddleware.Identity(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	msg, err := h.service.SendPrivate(r.Context(), me, req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusCreated, msg)
}

func (h *Handler) SendGlobal(w http.ResponseWriter, r *http.Request) {
	me, ok := myMiddleware.Identity(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	msg, err := h.service.SendGlobal(r.Context(), me, req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusCreated, msg)
}

// History answers GET /api/messages?with=<peer>&before=<RFC3339>&limit=<n>.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	me, ok := myMiddleware.Identity(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	before, limit, err := pageParams(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	msgs, err := h.service.History(r.Context(), me, r.URL.Query().Get("with"), before, limit)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, msgs)
}

func (h *Handler) GlobalHistory(w http.ResponseWriter, r *http.Request) {
	before, limit, err := pageParams(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	msgs, err := h.service.GlobalHistory(r.Context(), before, limit)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, msgs)
}

func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	me, ok := myMiddleware.Identity(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	msg, err := h.service.Edit(r.Context(), me, chi.URLParam(r, "id"), req.Content)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, msg)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	me, ok := myMiddleware.Identity(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if _, err := h.service.Delete(r.Context(), me, chi.URLParam(r, "id")); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkRead answers POST /api/messages/read?from=<peer>.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	me, ok := myMiddleware.Identity(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	n, err := h.service.MarkConversationRead(r.Context(), me, r.URL.Query().Get("from"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func pageParams(r *http.Request) (time.Time, int, error) {
	var (
		before time.Time
		limit  int
		err    error
	)
	q := r.URL.Query()
	if v := q.Get("before"); v != "" {
		if before, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return time.Time{}, 0, fmt.Errorf("%w: before must be RFC3339", common.ErrValidation)
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return time.Time{}, 0, fmt.Errorf("%w: limit must be a number", common.ErrValidation)
		}
	}
	return before, limit, nil
}
