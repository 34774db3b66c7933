package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/cleanwarts/internal/auth"
	"github.com/dukerupert/cleanwarts/internal/cleanup"
	"github.com/dukerupert/cleanwarts/internal/model"
)

type TaskHandler struct {
	cleanup *cleanup.Service
	logger  *slog.Logger
}

func NewTaskHandler(svc *cleanup.Service, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{cleanup: svc, logger: logger}
}

type taskRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Location    *model.Location `json:"location"`
	Area        *model.Area     `json:"area"`
}

// List handles GET /api/tasks
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.cleanup.ListOpenTasks(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "failed to list tasks", err)
		return
	}
	if tasks == nil {
		tasks = []model.CleaningTask{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// Create handles POST /api/tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	task, err := h.cleanup.RequestCleaning(r.Context(), cleanup.RequestInput{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Area:        req.Area,
		RequesterID: auth.UserID(r.Context()),
	})
	if err != nil {
		writeServiceError(w, h.logger, "failed to create task", err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// Nearby handles GET /api/tasks/nearby?lat=&lng=
func (h *TaskHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	lat, lng, ok := parseLatLng(r.URL.Query().Get("lat"), r.URL.Query().Get("lng"))
	if !ok {
		writeError(w, http.StatusBadRequest, "lat and lng are required numbers")
		return
	}

	nearby, err := h.cleanup.NearestTasks(r.Context(), lat, lng)
	if err != nil {
		writeServiceError(w, h.logger, "failed to find nearby tasks", err)
		return
	}
	if nearby == nil {
		nearby = []cleanup.Nearby{}
	}
	writeJSON(w, http.StatusOK, nearby)
}

func parseLatLng(latStr, lngStr string) (lat, lng float64, ok bool) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return 0, 0, false
	}
	lng, err = strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lng, true
}
