package handler

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/cleanwarts/internal/auth"
	"github.com/dukerupert/cleanwarts/internal/cleanup"
	"github.com/dukerupert/cleanwarts/internal/model"
	"github.com/dukerupert/cleanwarts/internal/review"
)

// multipart bookkeeping on top of the two photos
const formOverhead = 1 << 20

type CompletionStore interface {
	GetByID(id string) (*model.TaskCompletion, error)
	ListPending() ([]model.TaskCompletion, error)
}

type CompletionHandler struct {
	cleanup     *cleanup.Service
	propagator  *review.Propagator
	completions CompletionStore
	maxUpload   int64
	logger      *slog.Logger

	// completions with a review in flight
	mu        sync.Mutex
	reviewing map[string]struct{}
}

func NewCompletionHandler(svc *cleanup.Service, prop *review.Propagator, cs CompletionStore, maxUpload int64, logger *slog.Logger) *CompletionHandler {
	return &CompletionHandler{
		cleanup:     svc,
		propagator:  prop,
		completions: cs,
		maxUpload:   maxUpload,
		logger:      logger,
		reviewing:   make(map[string]struct{}),
	}
}

// Submit handles POST /api/completions (multipart/form-data).
// The task is named by task_id, or located by lat and lng.
func (h *CompletionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 2*h.maxUpload+formOverhead)
	if err := r.ParseMultipartForm(formOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	taskID := strings.TrimSpace(r.FormValue("task_id"))
	if taskID == "" {
		lat, lng, ok := parseLatLng(r.FormValue("lat"), r.FormValue("lng"))
		if !ok {
			writeError(w, http.StatusBadRequest, "task_id or lat and lng are required")
			return
		}
		id, err := h.cleanup.ResolveTaskID(r.Context(), lat, lng, time.Now())
		if err != nil {
			writeServiceError(w, h.logger, "failed to resolve task", err)
			return
		}
		taskID = id
	}

	before, beforeFile, ok := h.formImage(w, r, "before")
	if !ok {
		return
	}
	defer beforeFile.Close()
	after, afterFile, ok := h.formImage(w, r, "after")
	if !ok {
		return
	}
	defer afterFile.Close()

	c, err := h.cleanup.SubmitCompletion(r.Context(), cleanup.SubmitInput{
		TaskID:      taskID,
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Before:      before,
		After:       after,
		UserID:      userID,
	})
	if err != nil {
		writeServiceError(w, h.logger, "failed to submit completion", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *CompletionHandler) formImage(w http.ResponseWriter, r *http.Request, field string) (*cleanup.Image, multipart.File, bool) {
	file, hdr, err := r.FormFile(field)
	if err != nil {
		writeError(w, http.StatusBadRequest, field+" image is required")
		return nil, nil, false
	}
	if hdr.Size > h.maxUpload {
		file.Close()
		writeError(w, http.StatusRequestEntityTooLarge, field+" image is too large")
		return nil, nil, false
	}
	img := &cleanup.Image{
		Filename:    hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Size:        hdr.Size,
		Body:        file,
	}
	return img, file, true
}

// Mine handles GET /api/completions/mine
func (h *CompletionHandler) Mine(w http.ResponseWriter, r *http.Request) {
	list, err := h.cleanup.ListUserCompletions(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, "failed to list completions", err)
		return
	}
	if list == nil {
		list = []model.TaskCompletion{}
	}
	writeJSON(w, http.StatusOK, list)
}

// Pending handles GET /api/admin/completions/pending
func (h *CompletionHandler) Pending(w http.ResponseWriter, r *http.Request) {
	list, err := h.completions.ListPending()
	if err != nil {
		h.logger.Error("list pending completions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list pending completions")
		return
	}
	if list == nil {
		list = []model.TaskCompletion{}
	}
	writeJSON(w, http.StatusOK, list)
}

type approveRequest struct {
	Points int `json:"points"`
}

// Approve handles POST /api/admin/completions/{id}/approve
func (h *CompletionHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.decide(w, r, review.Approve, req.Points)
}

// Reject handles POST /api/admin/completions/{id}/reject
func (h *CompletionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, review.Reject, 0)
}

func (h *CompletionHandler) decide(w http.ResponseWriter, r *http.Request, decision review.Decision, points int) {
	id := r.PathValue("id")

	// Decide itself does not guard against reviewing twice, so the
	// pending check and the decision run under a claim on the id.
	if !h.claim(id) {
		writeError(w, http.StatusConflict, "completion review already in progress")
		return
	}
	defer h.release(id)

	c, err := h.completions.GetByID(id)
	if err != nil {
		h.logger.Error("load completion", "completion_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load completion")
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "completion not found")
		return
	}
	if c.Status != model.CompletionPending {
		writeError(w, http.StatusConflict, "completion already "+string(c.Status))
		return
	}

	out, err := h.propagator.Decide(r.Context(), id, decision, points)
	if err != nil {
		if out != nil {
			h.logger.Error("review completion", "completion_id", id, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to update completion", "outcome": out})
			return
		}
		writeServiceError(w, h.logger, "failed to review completion", err)
		return
	}
	if out.Err() != nil {
		writeJSON(w, http.StatusMultiStatus, out)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *CompletionHandler) claim(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, busy := h.reviewing[id]; busy {
		return false
	}
	h.reviewing[id] = struct{}{}
	return true
}

func (h *CompletionHandler) release(id string) {
	h.mu.Lock()
	delete(h.reviewing, id)
	h.mu.Unlock()
}
