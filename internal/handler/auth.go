package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/cleanwarts/internal/account"
	"github.com/dukerupert/cleanwarts/internal/auth"
	"github.com/dukerupert/cleanwarts/internal/middleware"
	"github.com/dukerupert/cleanwarts/internal/model"
	"github.com/dukerupert/cleanwarts/internal/realtime"
)

type SessionStore interface {
	Create(userID string, ttl time.Duration) (*model.Session, error)
	Delete(token string) error
}

type AuthHandler struct {
	accounts     *account.Service
	sessions     SessionStore
	users        UserLookup
	live         *realtime.Tracker
	sessionTTL   time.Duration
	secureCookie bool
	logger       *slog.Logger
}

func NewAuthHandler(accounts *account.Service, sessions SessionStore, users UserLookup, live *realtime.Tracker, sessionTTL time.Duration, baseURL string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		accounts:     accounts,
		sessions:     sessions,
		users:        users,
		live:         live,
		sessionTTL:   sessionTTL,
		secureCookie: strings.HasPrefix(baseURL, "https://"),
		logger:       logger,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles POST /api/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req account.RegisterInput
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, "failed to register", err)
		return
	}

	if !h.startSession(w, user.ID) {
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// Login handles POST /api/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, h.logger, "failed to log in", err)
		return
	}

	if !h.startSession(w, user.ID) {
		return
	}
	h.logger.Info("user logged in", "user_id", user.ID)
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, userID string) bool {
	sess, err := h.sessions.Create(userID, h.sessionTTL)
	if err != nil {
		h.logger.Error("create session", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return true
}

// Logout handles POST /api/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if ok && ac.SessionToken != "" {
		if err := h.sessions.Delete(ac.SessionToken); err != nil {
			h.logger.Error("delete session", "error", err)
		}
		if n := h.live.CloseAll(ac.SessionToken, "logged out"); n > 0 {
			h.logger.Info("closed live sessions", "user_id", ac.UserID, "count", n)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r, h.users, h.logger)
	if user == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":     user,
		"is_admin": auth.IsAdmin(r.Context()),
		"houses":   model.Houses,
	})
}
