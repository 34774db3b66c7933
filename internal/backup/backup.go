// Package backup takes encrypted snapshots of the SQLite database and keeps
// them in object storage for a retention period.
package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/cleanwarts/internal/metrics"
	"github.com/dukerupert/cleanwarts/internal/model"
)

const (
	KeyPrefix        = "backups/"
	DefaultRetention = 14 * 24 * time.Hour
	contentType      = "application/octet-stream"
)

var (
	ErrDisabled   = errors.New("backups not configured")
	ErrInProgress = errors.New("backup already running")
)

// ObjectStore is where encrypted snapshots are written.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

type Store interface {
	Create(key string) (*model.Backup, error)
	List(limit int) ([]model.Backup, error)
	UpdateStatus(id int64, status model.BackupStatus, errorMsg string) error
	UpdateCompleted(id, sizeBytes int64) error
	DeleteOlderThan(before time.Time) ([]string, error)
}

type Config struct {
	Passphrase string
	Retention  time.Duration
	// TempDir holds the plaintext snapshot while it is encrypted.
	TempDir string
}

// State represents the backup manager state.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	Error      string     `json:"error,omitempty"`
	InProgress bool       `json:"in_progress"`
}

// Manager snapshots the database on demand or on schedule. At most one
// snapshot runs at a time.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	status  Status
	db      *sql.DB
	backups Store
	objects ObjectStore
	logger  *slog.Logger
	now     func() time.Time
}

func NewManager(cfg Config, db *sql.DB, backups Store, objects ObjectStore, logger *slog.Logger) *Manager {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	m := &Manager{
		cfg:     cfg,
		db:      db,
		backups: backups,
		objects: objects,
		logger:  logger,
		now:     time.Now,
		status:  Status{State: StateDisabled},
	}
	if cfg.Passphrase != "" && objects != nil {
		m.status.State = StateIdle
	}
	return m
}

func (m *Manager) Enabled() bool {
	return m.Status().State != StateDisabled
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// List returns recent backup records, newest first.
func (m *Manager) List(ctx context.Context, limit int) ([]model.Backup, error) {
	list, err := m.backups.List(limit)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	return list, nil
}

// Run takes one encrypted snapshot and uploads it.
func (m *Manager) Run(ctx context.Context) (*model.Backup, error) {
	m.mu.Lock()
	if m.status.State == StateDisabled {
		m.mu.Unlock()
		return nil, ErrDisabled
	}
	if m.status.InProgress {
		m.mu.Unlock()
		return nil, ErrInProgress
	}
	last := m.status.LastBackup
	m.status = Status{State: StateRunning, InProgress: true, LastBackup: last}
	m.mu.Unlock()

	b, err := m.run(ctx)

	m.mu.Lock()
	if err != nil {
		m.status = Status{State: StateError, Error: err.Error(), LastBackup: last}
	} else {
		m.status = Status{State: StateIdle, LastBackup: b.CompletedAt}
	}
	m.mu.Unlock()

	if err != nil {
		metrics.Backups.WithLabelValues("failed").Inc()
		return nil, err
	}
	metrics.Backups.WithLabelValues("completed").Inc()
	return b, nil
}

func (m *Manager) run(ctx context.Context) (*model.Backup, error) {
	key := KeyPrefix + "backup-" + m.now().UTC().Format("20060102T150405.000Z") + ".db.enc"
	rec, err := m.backups.Create(key)
	if err != nil {
		return nil, fmt.Errorf("create backup record: %w", err)
	}
	fail := func(err error) error {
		if uerr := m.backups.UpdateStatus(rec.ID, model.BackupStatusFailed, err.Error()); uerr != nil {
			m.logger.Error("mark backup failed", "id", rec.ID, "error", uerr)
		}
		m.logger.Error("backup failed", "id", rec.ID, "error", err)
		return err
	}

	snapshot := filepath.Join(m.cfg.TempDir, fmt.Sprintf("cleanwarts-backup-%d.db", rec.ID))
	defer os.Remove(snapshot)
	if err := m.snapshot(ctx, snapshot); err != nil {
		return nil, fail(fmt.Errorf("snapshot database: %w", err))
	}

	plaintext, err := os.ReadFile(snapshot)
	if err != nil {
		return nil, fail(fmt.Errorf("read snapshot: %w", err))
	}
	salt, err := GenerateSalt()
	if err != nil {
		return nil, fail(err)
	}
	sealed, err := Seal(plaintext, m.cfg.Passphrase, salt)
	if err != nil {
		return nil, fail(fmt.Errorf("encrypt: %w", err))
	}

	if err := m.backups.UpdateStatus(rec.ID, model.BackupStatusUploading, ""); err != nil {
		return nil, fail(err)
	}
	if _, err := m.objects.Put(ctx, key, bytes.NewReader(sealed), int64(len(sealed)), contentType); err != nil {
		return nil, fail(fmt.Errorf("upload: %w", err))
	}

	size := int64(len(sealed))
	if err := m.backups.UpdateCompleted(rec.ID, size); err != nil {
		return nil, fail(err)
	}
	completed := m.now().UTC()
	rec.Status = model.BackupStatusCompleted
	rec.SizeBytes = size
	rec.CompletedAt = &completed

	m.logger.Info("backup completed", "id", rec.ID, "key", key, "bytes", size)
	return rec, nil
}

// snapshot writes a consistent copy of the live database to path.
func (m *Manager) snapshot(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	quoted := "'" + strings.ReplaceAll(path, "'", "''") + "'"
	_, err := m.db.ExecContext(ctx, "VACUUM INTO "+quoted)
	return err
}

// Cleanup deletes backups older than the retention period and returns how
// many records were removed. Object deletions that fail are logged.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	if !m.Enabled() {
		return 0, nil
	}
	keys, err := m.backups.DeleteOlderThan(m.now().Add(-m.cfg.Retention))
	if err != nil {
		return 0, fmt.Errorf("delete old backups: %w", err)
	}
	for _, key := range keys {
		if err := m.objects.Delete(ctx, key); err != nil {
			m.logger.Warn("delete backup object", "key", key, "error", err)
		}
	}
	if len(keys) > 0 {
		m.logger.Info("old backups removed", "count", len(keys))
	}
	return len(keys), nil
}
