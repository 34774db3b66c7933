package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/cleanwarts/internal/dashboard"
)

type DashboardHandler struct {
	aggregator *dashboard.Aggregator
	users      UserLookup
	logger     *slog.Logger
}

func NewDashboardHandler(agg *dashboard.Aggregator, users UserLookup, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{aggregator: agg, users: users, logger: logger}
}

// Get handles GET /api/dashboard
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r, h.users, h.logger)
	if user == nil {
		return
	}
	writeJSON(w, http.StatusOK, h.aggregator.Summary(r.Context(), user))
}

// InitializeHouses handles POST /api/admin/houses/initialize
func (h *DashboardHandler) InitializeHouses(w http.ResponseWriter, r *http.Request) {
	created, err := h.aggregator.InitializeHouses(r.Context())
	if err != nil {
		h.logger.Error("initialize houses", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to initialize houses")
		return
	}
	if created == nil {
		created = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"created": created})
}

// SyncMemberCounts handles POST /api/admin/houses/sync-members
func (h *DashboardHandler) SyncMemberCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.aggregator.SyncMemberCounts(r.Context())
	if err != nil {
		h.logger.Error("sync member counts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to sync member counts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"member_counts": counts})
}

// Recalculate handles POST /api/admin/houses/recalculate
func (h *DashboardHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	aggs, err := h.aggregator.Recalculate(r.Context())
	if err != nil {
		h.logger.Error("recalculate houses", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to recalculate houses")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"houses": aggs})
}
