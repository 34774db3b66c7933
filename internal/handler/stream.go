package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dukerupert/cleanwarts/internal/auth"
	"github.com/dukerupert/cleanwarts/internal/chat"
	"github.com/dukerupert/cleanwarts/internal/cleanup"
	"github.com/dukerupert/cleanwarts/internal/dashboard"
	"github.com/dukerupert/cleanwarts/internal/leaderboard"
	"github.com/dukerupert/cleanwarts/internal/model"
	"github.com/dukerupert/cleanwarts/internal/realtime"
)

// Stream names used in websocket frames.
const (
	StreamDashboard          = "dashboard"
	StreamHouseRanking       = "house_ranking"
	StreamIndividualRanking  = "individual_ranking"
	StreamChat               = "chat"
	StreamMyCompletions      = "my_completions"
	StreamPendingCompletions = "pending_completions"
)

// StreamHandler attaches the live views of a user to a websocket session.
type StreamHandler struct {
	broker      *realtime.Broker
	dashboard   *dashboard.Aggregator
	projector   *leaderboard.Projector
	chat        *chat.Service
	cleanup     *cleanup.Service
	completions CompletionStore
	live        *realtime.Tracker
	logger      *slog.Logger
}

func NewStreamHandler(broker *realtime.Broker, agg *dashboard.Aggregator, proj *leaderboard.Projector,
	chatSvc *chat.Service, cleanupSvc *cleanup.Service, cs CompletionStore, live *realtime.Tracker, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		broker:      broker,
		dashboard:   agg,
		projector:   proj,
		chat:        chatSvc,
		cleanup:     cleanupSvc,
		completions: cs,
		live:        live,
		logger:      logger,
	}
}

// Setup registers every stream the session's user may watch. All of them
// are disposed together when the session ends or its login is logged out.
func (h *StreamHandler) Setup(r *http.Request, s *realtime.Session) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		return
	}
	ctx := r.Context()
	house := houseOrDefault(ac.House)
	reg := s.Registry()
	if ac.SessionToken != "" {
		reg.Register(h.live.Track(ac.SessionToken, s))
	}

	reg.Register(h.dashboard.WatchSummary(ctx, ac.UserID, func(v dashboard.Summary) {
		s.Push(StreamDashboard, v)
	}))
	reg.Register(h.projector.WatchHouses(ctx, func(v []leaderboard.HouseStanding) {
		s.Push(StreamHouseRanking, v)
	}))
	reg.Register(h.projector.WatchIndividuals(ctx, house, func(v []leaderboard.MemberStanding) {
		s.Push(StreamIndividualRanking, v)
	}))
	reg.Register(h.chat.Watch(ctx, house, func(v []model.ChatMessage) {
		s.Push(StreamChat, v)
	}))
	reg.Register(realtime.Watch(ctx, h.broker, realtime.Stream[[]model.TaskCompletion]{
		Entities: []string{realtime.EntityCompletion},
		Match: func(e realtime.Event) bool {
			uid, _ := e.Extra["user_id"].(string)
			return uid == ac.UserID
		},
		Load: func(ctx context.Context) ([]model.TaskCompletion, error) {
			return h.cleanup.ListUserCompletions(ctx, ac.UserID)
		},
		Emit: func(v []model.TaskCompletion) { s.Push(StreamMyCompletions, v) },
		OnError: func(err error) {
			h.logger.Error("reload user completions", "user_id", ac.UserID, "error", err)
		},
	}))

	if ac.Admin {
		reg.Register(realtime.Watch(ctx, h.broker, realtime.Stream[[]model.TaskCompletion]{
			Entities: []string{realtime.EntityCompletion},
			Load: func(context.Context) ([]model.TaskCompletion, error) {
				return h.completions.ListPending()
			},
			Emit: func(v []model.TaskCompletion) { s.Push(StreamPendingCompletions, v) },
			OnError: func(err error) {
				h.logger.Error("reload pending completions", "error", err)
			},
		}))
	}

	h.logger.Debug("streams registered", "user_id", ac.UserID, "count", reg.Len())
}
