package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/dukerupert/cleanwarts/internal/account"
	"github.com/dukerupert/cleanwarts/internal/auth"
	"github.com/dukerupert/cleanwarts/internal/backup"
	"github.com/dukerupert/cleanwarts/internal/blob"
	"github.com/dukerupert/cleanwarts/internal/chat"
	"github.com/dukerupert/cleanwarts/internal/cleanup"
	"github.com/dukerupert/cleanwarts/internal/config"
	"github.com/dukerupert/cleanwarts/internal/dashboard"
	"github.com/dukerupert/cleanwarts/internal/handler"
	"github.com/dukerupert/cleanwarts/internal/leaderboard"
	"github.com/dukerupert/cleanwarts/internal/middleware"
	"github.com/dukerupert/cleanwarts/internal/push"
	"github.com/dukerupert/cleanwarts/internal/realtime"
	"github.com/dukerupert/cleanwarts/internal/review"
	"github.com/dukerupert/cleanwarts/internal/store"
)

const (
	loginLimit  = 10
	loginWindow = time.Minute
	postLimit   = 30
	postWindow  = time.Minute
)

type Server struct {
	db           *sql.DB
	cfg          *config.Config
	broker       *realtime.Broker
	authH        *handler.AuthHandler
	taskH        *handler.TaskHandler
	completionH  *handler.CompletionHandler
	leaderboardH *handler.LeaderboardHandler
	dashboardH   *handler.DashboardHandler
	chatH        *handler.ChatHandler
	pushH        *handler.PushHandler
	backupH      *handler.BackupHandler
	streamH      *handler.StreamHandler
	sessionStore *store.SessionStore
	userStore    *store.UserStore
	accounts     *account.Service
	aggregator   *dashboard.Aggregator
	rateLimiter  *middleware.RateLimiter
	uploads      *blob.LocalStore
	logger       *slog.Logger
}

// New wires stores, services and handlers. uploads is non-nil when photos
// are kept on local disk and must be served by this process.
func New(db *sql.DB, cfg *config.Config, blobs blob.Store, uploads *blob.LocalStore, backups *backup.Manager, broker *realtime.Broker, logger *slog.Logger) *Server {
	userStore := store.NewUserStore(db)
	houseStore := store.NewHouseStore(db)
	taskStore := store.NewTaskStore(db)
	completionStore := store.NewCompletionStore(db)
	chatStore := store.NewChatStore(db)
	sessionStore := store.NewSessionStore(db)
	pushStore := store.NewPushStore(db)

	projector := leaderboard.NewProjector(houseStore, userStore, broker, cfg.AdminEmail, logger.With("component", "leaderboard"))
	aggregator := dashboard.NewAggregator(userStore, houseStore, completionStore, projector, broker, cfg.AdminEmail, logger.With("component", "dashboard"))
	cleanupSvc := cleanup.NewService(taskStore, completionStore, userStore, blobs, broker, logger.With("component", "cleanup"))
	chatSvc := chat.NewService(chatStore, broker, logger.With("component", "chat"))
	accounts := account.NewService(userStore, houseStore, broker, cfg.AdminEmail, logger.With("component", "account"))

	// Push notification service
	var notifier *push.Notifier
	var pushH *handler.PushHandler
	if cfg.PushEnabled() {
		pushLogger := logger.With("component", "push")
		pushSvc := push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.BaseURL)
		notifier = push.NewNotifier(pushSvc, pushStore, pushLogger)
		pushH = handler.NewPushHandler(pushStore, pushSvc.VAPIDPublicKey(), notifier, pushLogger)
	}

	var reviewNotifier review.Notifier
	if notifier != nil {
		reviewNotifier = notifier
	}
	live := realtime.NewTracker()
	propagator := review.NewPropagator(completionStore, taskStore, userStore, houseStore, aggregator, reviewNotifier, broker, logger.With("component", "review"))

	return &Server{
		db:           db,
		cfg:          cfg,
		broker:       broker,
		authH:        handler.NewAuthHandler(accounts, sessionStore, userStore, live, cfg.SessionTTL, cfg.BaseURL, logger.With("component", "auth")),
		taskH:        handler.NewTaskHandler(cleanupSvc, logger.With("component", "task")),
		completionH:  handler.NewCompletionHandler(cleanupSvc, propagator, completionStore, cfg.MaxUploadBytes, logger.With("component", "completion")),
		leaderboardH: handler.NewLeaderboardHandler(projector, logger.With("component", "leaderboard")),
		dashboardH:   handler.NewDashboardHandler(aggregator, userStore, logger.With("component", "dashboard")),
		chatH:        handler.NewChatHandler(chatSvc, userStore, logger.With("component", "chat")),
		pushH:        pushH,
		backupH:      handler.NewBackupHandler(backups, logger.With("component", "backup")),
		streamH:      handler.NewStreamHandler(broker, aggregator, projector, chatSvc, cleanupSvc, completionStore, live, logger.With("component", "stream")),
		sessionStore: sessionStore,
		userStore:    userStore,
		accounts:     accounts,
		aggregator:   aggregator,
		rateLimiter:  middleware.NewRateLimiter(),
		uploads:      uploads,
		logger:       logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Accounts returns the account service for the admin bootstrap.
func (s *Server) Accounts() *account.Service {
	return s.accounts
}

// Aggregator returns the dashboard aggregator for scheduled recalculation.
func (s *Server) Aggregator() *dashboard.Aggregator {
	return s.aggregator
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /api/register", s.rateLimitedHandler(s.authH.Register))
	outerMux.HandleFunc("POST /api/login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.Handle("GET /metrics", promhttp.Handler())
	if s.uploads != nil {
		outerMux.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.uploads.Dir()))))
	}

	// Protected routes, wrapped with RequireAuth middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.userStore, s.cfg.AdminEmail)
	outerMux.Handle("/", authMiddleware(protectedMux))

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})

	// Apply request logging middleware
	return middleware.RequestLogger(s.logger.With("component", "http"))(corsMiddleware.Handler(outerMux))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, loginLimit, loginWindow)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

// userLimitedHandler limits write-heavy routes per authenticated user.
func (s *Server) userLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, userIDKey, postLimit, postWindow)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func adminOnly(h http.HandlerFunc) http.Handler {
	return middleware.RequireAdmin(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Session
	mux.HandleFunc("POST /api/logout", s.authH.Logout)
	mux.HandleFunc("GET /api/me", s.authH.Me)

	mux.HandleFunc("GET /api/dashboard", s.dashboardH.Get)

	// Cleaning tasks and completions
	mux.HandleFunc("GET /api/tasks", s.taskH.List)
	mux.HandleFunc("POST /api/tasks", s.taskH.Create)
	mux.HandleFunc("GET /api/tasks/nearby", s.taskH.Nearby)
	mux.HandleFunc("POST /api/completions", s.userLimitedHandler(s.completionH.Submit))
	mux.HandleFunc("GET /api/completions/mine", s.completionH.Mine)

	// Leaderboards
	mux.HandleFunc("GET /api/leaderboard/houses", s.leaderboardH.Houses)
	mux.HandleFunc("GET /api/leaderboard/individuals", s.leaderboardH.Individuals)

	// House chat
	mux.HandleFunc("GET /api/chat", s.chatH.List)
	mux.HandleFunc("POST /api/chat", s.userLimitedHandler(s.chatH.Post))

	// Push notification API routes
	if s.pushH != nil {
		mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
		mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
		mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
		mux.HandleFunc("POST /api/push/test", s.pushH.TestNotification)
	}

	// Admin
	mux.Handle("GET /api/admin/completions/pending", adminOnly(s.completionH.Pending))
	mux.Handle("POST /api/admin/completions/{id}/approve", adminOnly(s.completionH.Approve))
	mux.Handle("POST /api/admin/completions/{id}/reject", adminOnly(s.completionH.Reject))
	mux.Handle("POST /api/admin/houses/initialize", adminOnly(s.dashboardH.InitializeHouses))
	mux.Handle("POST /api/admin/houses/sync-members", adminOnly(s.dashboardH.SyncMemberCounts))
	mux.Handle("POST /api/admin/houses/recalculate", adminOnly(s.dashboardH.Recalculate))
	mux.Handle("GET /api/admin/backups", adminOnly(s.backupH.List))
	mux.Handle("POST /api/admin/backups", adminOnly(s.backupH.Run))

	// WebSocket
	mux.HandleFunc("GET /ws", realtime.HandleWebSocket(s.logger.With("component", "websocket"), s.cfg.CORSOrigins, s.streamH.Setup))
}

func userIDKey(r *http.Request) string {
	if id := auth.UserID(r.Context()); id != "" {
		return "user:" + id + ":" + r.URL.Path
	}
	return middleware.RealIP(r)
}
