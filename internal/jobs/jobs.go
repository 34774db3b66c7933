// Package jobs runs the periodic maintenance work of the server.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dukerupert/cleanwarts/internal/model"
	"github.com/dukerupert/cleanwarts/internal/store"
)

const (
	SessionSweepInterval = time.Hour
	RateLimitInterval    = 5 * time.Minute
	DefaultRecalculateAt = "03:00"
	DefaultBackupAt      = "04:00"
	jobTimeout           = 2 * time.Minute
	backupTimeout        = 15 * time.Minute
)

type SessionStore interface {
	DeleteExpired() (int64, error)
}

type RateLimiter interface {
	Cleanup() int
}

type Recalculator interface {
	Recalculate(ctx context.Context) ([]store.HouseAggregate, error)
}

type Backupper interface {
	Run(ctx context.Context) (*model.Backup, error)
	Cleanup(ctx context.Context) (int, error)
}

// Scheduler wraps cron-based jobs.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

func NewScheduler(loc *time.Location, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc), cron.WithSeconds()),
		logger: logger,
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// ScheduleInterval registers a periodic job every given duration.
func (s *Scheduler) ScheduleInterval(interval time.Duration, job func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return s.cron.AddFunc(fmt.Sprintf("@every %ds", seconds), job)
}

// ScheduleDaily registers a daily job at the given HH:MM time string.
func (s *Scheduler) ScheduleDaily(timeStr string, job func()) (cron.EntryID, error) {
	spec, err := buildDailySpec(timeStr)
	if err != nil {
		return 0, err
	}
	return s.cron.AddFunc(spec, job)
}

func buildDailySpec(timeStr string) (string, error) {
	parts := strings.Split(timeStr, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time %q, expected HH:MM", timeStr)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", timeStr)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", timeStr)
	}
	// second minute hour dom month dow
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}

// SweepSessions deletes expired login sessions.
func SweepSessions(sessions SessionStore, logger *slog.Logger) func() {
	return func() {
		n, err := sessions.DeleteExpired()
		if err != nil {
			logger.Error("delete expired sessions", "error", err)
			return
		}
		if n > 0 {
			logger.Info("expired sessions deleted", "count", n)
		}
	}
}

// PruneRateLimits drops rate limiter windows that have expired.
func PruneRateLimits(limiters []RateLimiter, logger *slog.Logger) func() {
	return func() {
		total := 0
		for _, rl := range limiters {
			total += rl.Cleanup()
		}
		if total > 0 {
			logger.Debug("rate limiter entries pruned", "count", total)
		}
	}
}

// RecalculateHouses rebuilds the stored house aggregates from user records.
func RecalculateHouses(r Recalculator, logger *slog.Logger) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		aggs, err := r.Recalculate(ctx)
		if err != nil {
			logger.Error("nightly house recalculation", "error", err)
			return
		}
		logger.Info("house aggregates recalculated", "houses", len(aggs))
	}
}

// BackupDatabase snapshots the database, then drops backups past retention.
func BackupDatabase(b Backupper, logger *slog.Logger) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), backupTimeout)
		defer cancel()

		if _, err := b.Run(ctx); err != nil {
			logger.Error("scheduled backup", "error", err)
		}
		if _, err := b.Cleanup(ctx); err != nil {
			logger.Error("backup cleanup", "error", err)
		}
	}
}

type Deps struct {
	Sessions      SessionStore
	RateLimiters  []RateLimiter
	Recalculator  Recalculator
	RecalculateAt string
	// Backups is optional.
	Backups  Backupper
	BackupAt string
}

// RegisterDefaults schedules the standard maintenance jobs.
func (s *Scheduler) RegisterDefaults(d Deps) error {
	if _, err := s.ScheduleInterval(SessionSweepInterval, SweepSessions(d.Sessions, s.logger)); err != nil {
		return fmt.Errorf("schedule session sweep: %w", err)
	}
	if _, err := s.ScheduleInterval(RateLimitInterval, PruneRateLimits(d.RateLimiters, s.logger)); err != nil {
		return fmt.Errorf("schedule rate limit cleanup: %w", err)
	}
	at := d.RecalculateAt
	if at == "" {
		at = DefaultRecalculateAt
	}
	if _, err := s.ScheduleDaily(at, RecalculateHouses(d.Recalculator, s.logger)); err != nil {
		return fmt.Errorf("schedule house recalculation: %w", err)
	}
	if d.Backups == nil {
		return nil
	}
	at = d.BackupAt
	if at == "" {
		at = DefaultBackupAt
	}
	if _, err := s.ScheduleDaily(at, BackupDatabase(d.Backups, s.logger)); err != nil {
		return fmt.Errorf("schedule backup: %w", err)
	}
	return nil
}
