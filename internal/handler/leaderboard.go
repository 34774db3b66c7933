package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/cleanwarts/internal/auth"
	"github.com/dukerupert/cleanwarts/internal/leaderboard"
	"github.com/dukerupert/cleanwarts/internal/model"
)

type LeaderboardHandler struct {
	projector *leaderboard.Projector
	logger    *slog.Logger
}

func NewLeaderboardHandler(p *leaderboard.Projector, logger *slog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{projector: p, logger: logger}
}

// Houses handles GET /api/leaderboard/houses
func (h *LeaderboardHandler) Houses(w http.ResponseWriter, r *http.Request) {
	ranking, err := h.projector.HouseRanking(r.Context())
	if err != nil {
		h.logger.Error("house ranking", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load house ranking")
		return
	}
	writeJSON(w, http.StatusOK, ranking)
}

// Individuals handles GET /api/leaderboard/individuals?house=
// Without a house parameter the caller's own house is used.
func (h *LeaderboardHandler) Individuals(w http.ResponseWriter, r *http.Request) {
	house := r.URL.Query().Get("house")
	if house == "" {
		house = houseOrDefault(auth.House(r.Context()))
	}
	if !model.IsHouse(house) {
		writeError(w, http.StatusBadRequest, "unknown house")
		return
	}

	ranking, err := h.projector.IndividualRanking(r.Context(), house)
	if err != nil {
		h.logger.Error("individual ranking", "house", house, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"house": house, "members": ranking})
}
