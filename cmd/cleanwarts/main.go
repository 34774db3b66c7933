package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/dukerupert/cleanwarts/internal/backup"
	"github.com/dukerupert/cleanwarts/internal/blob"
	"github.com/dukerupert/cleanwarts/internal/config"
	"github.com/dukerupert/cleanwarts/internal/database"
	"github.com/dukerupert/cleanwarts/internal/jobs"
	"github.com/dukerupert/cleanwarts/internal/logging"
	"github.com/dukerupert/cleanwarts/internal/metrics"
	"github.com/dukerupert/cleanwarts/internal/realtime"
	"github.com/dukerupert/cleanwarts/internal/server"
	"github.com/dukerupert/cleanwarts/internal/store"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) > 1 && os.Args[1] == "decrypt-backup" {
		if err := decryptBackup(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "decrypt-backup: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	metrics.Register()

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broker := realtime.NewBroker(logger.With("component", "broker"))
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		bridge := realtime.NewRedisBridge(rdb, broker, logger.With("component", "redis"))
		if err := bridge.Start(ctx); err != nil {
			return fmt.Errorf("start redis bridge: %w", err)
		}
	}

	var blobs blob.Store
	var uploads *blob.LocalStore
	var backupObjects backup.ObjectStore
	if cfg.S3.Enabled() {
		s3Store := blob.NewS3Store(blob.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			PublicURL: cfg.S3.PublicURL,
		})
		blobs, backupObjects = s3Store, s3Store
		logger.Info("photo storage", "backend", "s3", "bucket", cfg.S3.Bucket)
	} else {
		uploads = blob.NewLocalStore(cfg.UploadDir, "/uploads")
		blobs = uploads
		logger.Info("photo storage", "backend", "local", "dir", cfg.UploadDir)
		// kept out of the served upload tree
		backupObjects = blob.NewLocalStore(cfg.BackupDir, "")
	}

	backups := backup.NewManager(backup.Config{
		Passphrase: cfg.BackupPassphrase,
		Retention:  cfg.BackupRetention,
	}, db, store.NewBackupStore(db), backupObjects, logger.With("component", "backup"))

	srv := server.New(db, cfg, blobs, uploads, backups, broker, logger)

	if cfg.AdminPassword != "" {
		if _, err := srv.Accounts().EnsureAdmin(ctx, cfg.AdminPassword); err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
	}
	if _, err := srv.Aggregator().InitializeHouses(ctx); err != nil {
		logger.Warn("initialize houses", "error", err)
	}

	deps := jobs.Deps{
		Sessions:     srv.SessionStore(),
		RateLimiters: []jobs.RateLimiter{srv.RateLimiter()},
		Recalculator: srv.Aggregator(),
	}
	if backups.Enabled() {
		deps.Backups = backups
		deps.BackupAt = cfg.BackupAt
	} else {
		logger.Info("database backups disabled")
	}

	scheduler := jobs.NewScheduler(time.UTC, logger.With("component", "jobs"))
	err = scheduler.RegisterDefaults(deps)
	if err != nil {
		return fmt.Errorf("schedule jobs: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("cleanwarts running", "addr", "http://localhost:"+cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// decryptBackup turns a downloaded backup back into a SQLite file:
//
//	cleanwarts decrypt-backup <backup.db.enc> <out.db>
//
// The passphrase is read from CLEANWARTS_BACKUP_PASSPHRASE.
func decryptBackup(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: cleanwarts decrypt-backup <in> <out>")
	}
	passphrase := os.Getenv("CLEANWARTS_BACKUP_PASSPHRASE")
	if passphrase == "" {
		return errors.New("CLEANWARTS_BACKUP_PASSPHRASE is not set")
	}
	return backup.DecryptFile(args[0], args[1], passphrase)
}
