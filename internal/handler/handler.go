// Package handler implements the JSON HTTP API.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/cleanwarts/internal/account"
	"github.com/dukerupert/cleanwarts/internal/auth"
	"github.com/dukerupert/cleanwarts/internal/backup"
	"github.com/dukerupert/cleanwarts/internal/blob"
	"github.com/dukerupert/cleanwarts/internal/chat"
	"github.com/dukerupert/cleanwarts/internal/cleanup"
	"github.com/dukerupert/cleanwarts/internal/model"
	"github.com/dukerupert/cleanwarts/internal/review"
)

const maxJSONBody = 1 << 20

// UserLookup loads the full record of the authenticated user.
type UserLookup interface {
	GetByID(id string) (*model.User, error)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// statusFor maps domain errors to HTTP status codes. Unknown errors are
// server failures.
func statusFor(err error) int {
	switch {
	case errors.Is(err, cleanup.ErrInvalid),
		errors.Is(err, account.ErrInvalid),
		errors.Is(err, review.ErrInvalidDecision),
		errors.Is(err, review.ErrPointsOutOfRange),
		errors.Is(err, chat.ErrEmpty),
		errors.Is(err, chat.ErrTooLong),
		errors.Is(err, chat.ErrUnknownHouse),
		errors.Is(err, blob.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, cleanup.ErrUnauthenticated),
		errors.Is(err, chat.ErrUnauthenticated),
		errors.Is(err, account.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, cleanup.ErrProfileNotFound),
		errors.Is(err, review.ErrCompletionNotFound):
		return http.StatusNotFound
	case errors.Is(err, account.ErrEmailTaken),
		errors.Is(err, account.ErrReservedEmail),
		errors.Is(err, backup.ErrInProgress):
		return http.StatusConflict
	case errors.Is(err, backup.ErrDisabled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeServiceError reports err to the client. Server failures are logged
// and their details withheld.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(msg, "error", err)
		writeError(w, status, msg)
		return
	}
	writeError(w, status, err.Error())
}

// currentUser loads the authenticated user, writing an error response and
// returning nil when that is not possible.
func currentUser(w http.ResponseWriter, r *http.Request, users UserLookup, logger *slog.Logger) *model.User {
	id := auth.UserID(r.Context())
	if id == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return nil
	}
	u, err := users.GetByID(id)
	if err != nil {
		logger.Error("load current user", "user_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return nil
	}
	if u == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return nil
	}
	return u
}

func houseOrDefault(house string) string {
	if house == "" {
		return model.DefaultHouse
	}
	return house
}
