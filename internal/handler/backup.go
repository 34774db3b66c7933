package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/cleanwarts/internal/backup"
	"github.com/dukerupert/cleanwarts/internal/model"
)

const (
	backupListLimit = 50
	backupTimeout   = 15 * time.Minute
)

type BackupManager interface {
	Status() backup.Status
	List(ctx context.Context, limit int) ([]model.Backup, error)
	Run(ctx context.Context) (*model.Backup, error)
}

type BackupHandler struct {
	manager BackupManager
	logger  *slog.Logger
}

func NewBackupHandler(m BackupManager, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{manager: m, logger: logger}
}

// List handles GET /api/admin/backups
func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.manager.List(r.Context(), backupListLimit)
	if err != nil {
		h.logger.Error("list backups", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list backups")
		return
	}
	if list == nil {
		list = []model.Backup{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": h.manager.Status(), "backups": list})
}

// Run handles POST /api/admin/backups
// The backup outlives a dropped client connection.
func (h *BackupHandler) Run(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), backupTimeout)
	defer cancel()

	b, err := h.manager.Run(ctx)
	if err != nil {
		writeServiceError(w, h.logger, "backup failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}
