package chat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"parley/cmd/internal/notify"
	"parley/cmd/internal/session"
)

const defaultMaxBodyBytes = 1 << 20

// Handler wires the chat HTTP endpoints to the directory, ingestor, and
// reconciler.
type Handler struct {
	log      *slog.Logger
	store    Store
	verifier session.TokenVerifier

	maxBodyBytes int64

	directory  *Directory
	ingestor   *Ingestor
	reconciler *Reconciler
}

// HandlerOption configures optional handler behavior.
type HandlerOption func(*Handler)

// WithMaxBodyBytes overrides the request body size limit.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if h == nil || n <= 0 {
			return
		}
		h.maxBodyBytes = n
	}
}

// NewHandler constructs the chat Handler and its three core components.
func NewHandler(log *slog.Logger, store Store, verifier session.TokenVerifier, fanout *notify.Fanout, opts ...HandlerOption) (*Handler, error) {
	if store == nil || verifier == nil || fanout == nil {
		return nil, ErrInvalidInput
	}
	if log == nil {
		log = slog.Default()
	}

	directory, err := NewDirectory(log, store, fanout)
	if err != nil {
		return nil, err
	}
	ingestor, err := NewIngestor(log, store, fanout)
	if err != nil {
		return nil, err
	}
	reconciler, err := NewReconciler(log, store, fanout)
	if err != nil {
		return nil, err
	}

	h := &Handler{
		log:          log,
		store:        store,
		verifier:     verifier,
		maxBodyBytes: defaultMaxBodyBytes,
		directory:    directory,
		ingestor:     ingestor,
		reconciler:   reconciler,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires chat routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/conversations", h.handleConversations)
	mux.HandleFunc("/conversations/", h.handleConversationSeen)
	mux.HandleFunc("/messages", h.handleMessages)
}

// currentUser resolves the request's bearer token to a stored user.
// A valid token whose user row is missing is treated as unauthenticated:
// this server never fabricates user records.
func (h *Handler) currentUser(ctx context.Context, r *http.Request) (User, bool) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return User{}, false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return User{}, false
	}

	claims, err := h.verifier.Verify(token, time.Now().UTC())
	if err != nil {
		return User{}, false
	}

	u, err := h.store.GetUser(ctx, claims.UserID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			h.log.Error("chat.auth.user_lookup_fail", "user_id", claims.UserID, "err", err)
		}
		return User{}, false
	}
	return u, true
}

// POST /conversations
// Direct: {"userId": "..."}; group: {"isGroup": true, "name": "...",
// "members": [{"value": "..."}, ...]}.
func (h *Handler) handleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	caller, ok := h.currentUser(r.Context(), r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	var req createConversationRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	var (
		conv Conversation
		err  error
	)
	if req.IsGroup {
		members := make([]string, 0, len(req.Members))
		for _, m := range req.Members {
			members = append(members, m.Value)
		}
		conv, err = h.directory.CreateGroup(r.Context(), caller.ID, members, req.Name)
	} else {
		conv, err = h.directory.ResolveOrCreateDirect(r.Context(), caller.ID, req.UserID)
	}
	if err != nil {
		h.writeChatError(w, "conversations", err)
		return
	}

	users, err := h.store.ListUsers(r.Context(), conv.UserIDs)
	if err != nil {
		h.writeChatError(w, "conversations", err)
		return
	}
	writeJSON(w, http.StatusOK, conversationPayload(conv, users))
}

// POST /messages
// Body: {"conversationId": "...", "message": "...", "image": "..."}.
func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	caller, ok := h.currentUser(r.Context(), r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	var req appendMessageRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	msg, err := h.ingestor.Append(r.Context(), caller.ID, req.ConversationID, req.Message, req.Image)
	if err != nil {
		h.writeChatError(w, "messages", err)
		return
	}

	conv, err := h.store.GetConversation(r.Context(), msg.ConversationID)
	if err != nil {
		h.writeChatError(w, "messages", err)
		return
	}
	users, err := h.store.ListUsers(r.Context(), conv.UserIDs)
	if err != nil {
		h.writeChatError(w, "messages", err)
		return
	}
	writeJSON(w, http.StatusOK, messagePayload(msg, usersByID(users)))
}

// POST /conversations/{id}/seen
func (h *Handler) handleConversationSeen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/conversations/")
	conversationID, ok := strings.CutSuffix(rest, "/seen")
	if !ok || conversationID == "" || strings.Contains(conversationID, "/") {
		writeError(w, http.StatusNotFound, "not_found", "unknown route")
		return
	}

	caller, authed := h.currentUser(r.Context(), r)
	if !authed {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	updated, err := h.reconciler.MarkConversationSeen(r.Context(), caller.ID, conversationID)
	if err != nil {
		h.writeChatError(w, "seen", err)
		return
	}

	// An already-read conversation yields an empty batch, no writes, and no
	// notifications; the response is an empty array rather than an error.
	resp := make([]messageResponse, 0, len(updated))
	if len(updated) > 0 {
		conv, err := h.store.GetConversation(r.Context(), conversationID)
		if err != nil {
			h.writeChatError(w, "seen", err)
			return
		}
		users, err := h.store.ListUsers(r.Context(), conv.UserIDs)
		if err != nil {
			h.writeChatError(w, "seen", err)
			return
		}
		byID := usersByID(users)
		for _, m := range updated {
			resp = append(resp, messagePayload(m, byID))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeChatError maps domain sentinels onto the HTTP error taxonomy:
// invalid input 400, forbidden 403, not found 404, anything else 500.
func (h *Handler) writeChatError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request data")
	case errors.Is(err, ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "not a conversation member")
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "conversation not found")
	default:
		h.log.Error("chat.http.internal", "op", op, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
