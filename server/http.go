package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/puyokura/foodfortalk/chat"
	"github.com/puyokura/foodfortalk/model"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type credentialStore interface {
	FindByEmail(ctx context.Context, email string) (*model.Identity, string, error)
	GetUserByID(ctx context.Context, id uint) (*model.Identity, error)
}

type transcriptStore interface {
	ListRecentPublic(ctx context.Context, limit int) ([]model.Message, error)
	ListConversation(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
}

type tokenService interface {
	IssueChatToken(id model.Identity) (string, error)
	Verify(token string) (*model.Claims, error)
}

type passwordChecker interface {
	Verify(password, hash string) bool
}

type presence interface {
	OnlineUsers() []model.PresenceEntry
	Count() int
}

// api serves the HTTP side of the chat: health, token issue and read-only transcripts.
type api struct {
	name      string
	users     credentialStore
	messages  transcriptStore
	tokens    tokenService
	passwords passwordChecker
	online    presence
	logger    *slog.Logger
}

func (a *api) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", a.health)
	mux.HandleFunc("POST /food-for-talk/token", a.issueToken)
	mux.HandleFunc("GET /food-for-talk/messages", a.publicMessages)
	mux.HandleFunc("GET /food-for-talk/conversations/{id}/messages", a.conversationMessages)
	mux.HandleFunc("GET /food-for-talk/online", a.onlineUsers)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"server": a.name,
		"online": a.online.Count(),
	})
}

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token       string `json:"token"`
	UserID      uint   `json:"userId"`
	DisplayName string `json:"displayName"`
}

func (a *api) issueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	identity, hash, err := a.users.FindByEmail(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, model.ErrUserNotFound) {
			a.logger.Error("login lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "login failed")
			return
		}
		writeError(w, http.StatusUnauthorized, "wrong email/password")
		return
	}
	if !a.passwords.Verify(req.Password, hash) {
		a.logger.Info("failed login", "userId", identity.UserID)
		writeError(w, http.StatusUnauthorized, "wrong email/password")
		return
	}

	token, err := a.tokens.IssueChatToken(*identity)
	if err != nil {
		a.logger.Error("failed to issue token", "userId", identity.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:       token,
		UserID:      identity.UserID,
		DisplayName: model.DisplayName(*identity),
	})
}

func pageSize(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

func (a *api) publicMessages(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	messages, err := a.messages.ListRecentPublic(r.Context(), pageSize(r))
	if err != nil {
		a.logger.Error("failed to list messages", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	writeJSON(w, http.StatusOK, a.views(r.Context(), messages))
}

// conversationMessages returns a private transcript to one of its two participants.
func (a *api) conversationMessages(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		writeError(w, http.StatusUnauthorized, "authorization required")
		return
	}
	claims, err := a.tokens.Verify(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	conversationID := r.PathValue("id")
	if !isParticipant(conversationID, claims.UserID) {
		writeError(w, http.StatusForbidden, "not a participant")
		return
	}

	messages, err := a.messages.ListConversation(r.Context(), conversationID, pageSize(r))
	if err != nil {
		a.logger.Error("failed to list conversation", "conversationId", conversationID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	writeJSON(w, http.StatusOK, a.views(r.Context(), messages))
}

func isParticipant(conversationID string, userID uint) bool {
	a, b, ok := strings.Cut(conversationID, "_")
	if !ok {
		return false
	}
	first, err1 := strconv.ParseUint(a, 10, 64)
	second, err2 := strconv.ParseUint(b, 10, 64)
	if err1 != nil || err2 != nil {
		return false
	}
	if model.ConversationID(uint(first), uint(second)) != conversationID {
		return false
	}
	return uint(first) == userID || uint(second) == userID
}

func (a *api) onlineUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"count": a.online.Count(),
		"users": a.online.OnlineUsers(),
	})
}

func (a *api) views(ctx context.Context, messages []model.Message) []model.MessageView {
	names := map[uint]string{0: "System"}
	out := make([]model.MessageView, 0, len(messages))
	for _, m := range messages {
		name, ok := names[m.SenderID]
		if !ok {
			name = "Guest"
			if identity, err := a.users.GetUserByID(ctx, m.SenderID); err == nil {
				name = model.DisplayName(*identity)
			}
			names[m.SenderID] = name
		}
		out = append(out, model.NewMessageView(m, name))
	}
	return out
}

var _ presence = (*chat.Server)(nil)
