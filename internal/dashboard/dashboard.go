// Package dashboard builds the per-user summary shown on the home screen and
// keeps the stored house aggregates consistent with user records.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukerupert/cleanwarts/internal/model"
	"github.com/dukerupert/cleanwarts/internal/realtime"
	"github.com/dukerupert/cleanwarts/internal/store"
)

var ErrUserNotFound = errors.New("user not found")

type UserStore interface {
	GetByID(id string) (*model.User, error)
	ListNonAdmin(adminEmail string) ([]model.User, error)
}

type HouseStore interface {
	GetByID(id string) (*model.House, error)
	Create(id, name string, memberCount int) (bool, error)
	List() ([]model.House, error)
	ReplaceAggregates(aggs []store.HouseAggregate) error
	InitializeMissing(houses []model.HouseInfo) ([]string, error)
	SyncMemberCounts(houses []string, adminEmail string) (map[string]int, error)
}

type CompletionStore interface {
	CountApproved() (int, error)
}

// Ranker resolves the position of a house among all stored houses.
type Ranker interface {
	HouseRank(ctx context.Context, house string) (rank, total int, err error)
}

type Summary struct {
	Points                    int    `json:"points"`
	TaskCount                 int    `json:"task_count"`
	HouseID                   string `json:"house_id"`
	HouseName                 string `json:"house_name"`
	HousePoints               int    `json:"house_points"`
	HouseRank                 int    `json:"house_rank"`
	HouseCount                int    `json:"house_count"`
	PlatformApprovedTaskCount int    `json:"platform_approved_task_count"`
	Degraded                  bool   `json:"degraded,omitempty"`
}

type Aggregator struct {
	users       UserStore
	houses      HouseStore
	completions CompletionStore
	ranker      Ranker
	broker      *realtime.Broker
	adminEmail  string
	logger      *slog.Logger
}

func NewAggregator(users UserStore, houses HouseStore, completions CompletionStore, ranker Ranker,
	broker *realtime.Broker, adminEmail string, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		users:       users,
		houses:      houses,
		completions: completions,
		ranker:      ranker,
		broker:      broker,
		adminEmail:  adminEmail,
		logger:      logger,
	}
}

// EnsureHouse returns the stored row for a recognized house, creating it with
// zero points and zero members when it is missing. Member counts are
// repaired by Recalculate and SyncMemberCounts. Unknown ids yield
// nil without error.
func (a *Aggregator) EnsureHouse(ctx context.Context, id string) (*model.House, error) {
	info, ok := model.LookupHouse(id)
	if !ok {
		return nil, nil
	}

	h, err := a.houses.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("get house: %w", err)
	}
	if h != nil {
		return h, nil
	}

	created, err := a.houses.Create(info.ID, info.Name, 0)
	if err != nil {
		return nil, fmt.Errorf("create house: %w", err)
	}
	if created {
		a.logger.Info("house created", "house", id)
		a.broker.Publish(realtime.NewEvent(realtime.EntityHouse, "created", id, nil))
	}

	h, err = a.houses.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("get house: %w", err)
	}
	return h, nil
}

// Recalculate rebuilds every recognized house's points and member count
// from non-admin user records and stores them in one transaction.
func (a *Aggregator) Recalculate(ctx context.Context) ([]store.HouseAggregate, error) {
	users, err := a.users.ListNonAdmin(a.adminEmail)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	byHouse := make(map[string]*store.HouseAggregate, len(model.Houses))
	aggs := make([]store.HouseAggregate, len(model.Houses))
	for i, h := range model.Houses {
		aggs[i] = store.HouseAggregate{ID: h.ID, Name: h.Name}
		byHouse[h.ID] = &aggs[i]
	}
	for _, u := range users {
		if u.IsPrivileged(a.adminEmail) {
			continue
		}
		agg, ok := byHouse[u.House]
		if !ok {
			continue
		}
		agg.Points += u.Points
		agg.MemberCount++
	}

	before, err := a.houses.List()
	if err != nil {
		return nil, fmt.Errorf("list houses: %w", err)
	}
	if err := a.houses.ReplaceAggregates(aggs); err != nil {
		return nil, fmt.Errorf("replace house aggregates: %w", err)
	}

	stored := make(map[string]model.House, len(before))
	for _, h := range before {
		stored[h.ID] = h
	}
	for _, agg := range aggs {
		old, ok := stored[agg.ID]
		if ok && old.Points == agg.Points && old.MemberCount == agg.MemberCount {
			continue
		}
		a.broker.Publish(realtime.NewEvent(realtime.EntityHouse, "updated", agg.ID, nil))
	}
	return aggs, nil
}

// Summary returns the dashboard for user. Admins trigger a full
// recalculation first; a failed recalculation falls back to stored values.
// Read failures degrade to placeholder values instead of an error.
func (a *Aggregator) Summary(ctx context.Context, user *model.User) Summary {
	if user.IsPrivileged(a.adminEmail) {
		if _, err := a.Recalculate(ctx); err != nil {
			a.logger.Error("recalculate house aggregates", "error", err)
		}
	}
	return a.readSummary(ctx, user)
}

func (a *Aggregator) readSummary(ctx context.Context, user *model.User) Summary {
	house := user.House
	if house == "" {
		house = model.DefaultHouse
	}

	s := Summary{
		Points:    user.Points,
		TaskCount: user.Tasks,
		HouseID:   house,
		HouseName: house,
	}
	if info, ok := model.LookupHouse(house); ok {
		s.HouseName = info.Name
	}
	log := a.logger.With("user_id", user.ID, "house", house)

	h, err := a.EnsureHouse(ctx, house)
	if err != nil {
		log.Warn("load house for dashboard", "error", err)
		s.Degraded = true
	} else if h != nil {
		s.HousePoints = h.Points
	}

	rank, total, err := a.ranker.HouseRank(ctx, house)
	if err != nil {
		log.Warn("rank house for dashboard", "error", err)
		s.Degraded = true
	} else {
		s.HouseRank, s.HouseCount = rank, total
	}

	approved, err := a.completions.CountApproved()
	if err != nil {
		log.Warn("count approved completions", "error", err)
		s.Degraded = true
	} else {
		s.PlatformApprovedTaskCount = approved
	}
	return s
}

// WatchSummary emits the user's dashboard now and after every user, house
// or completion change. The watch always uses stored aggregates.
func (a *Aggregator) WatchSummary(ctx context.Context, userID string, emit func(Summary)) context.CancelFunc {
	return realtime.Watch(ctx, a.broker, realtime.Stream[Summary]{
		Entities: []string{realtime.EntityUser, realtime.EntityHouse, realtime.EntityCompletion},
		Load: func(ctx context.Context) (Summary, error) {
			u, err := a.users.GetByID(userID)
			if err != nil {
				return Summary{}, fmt.Errorf("get user: %w", err)
			}
			if u == nil {
				return Summary{}, ErrUserNotFound
			}
			return a.readSummary(ctx, u), nil
		},
		Emit: emit,
		OnError: func(err error) {
			a.logger.Error("reload dashboard", "user_id", userID, "error", err)
		},
	})
}

// InitializeHouses creates any missing house rows and returns their ids.
func (a *Aggregator) InitializeHouses(ctx context.Context) ([]string, error) {
	created, err := a.houses.InitializeMissing(model.Houses)
	if err != nil {
		return nil, fmt.Errorf("initialize houses: %w", err)
	}
	for _, id := range created {
		a.broker.Publish(realtime.NewEvent(realtime.EntityHouse, "created", id, nil))
	}
	if len(created) > 0 {
		a.logger.Info("houses initialized", "created", created)
	}
	return created, nil
}

// SyncMemberCounts recounts the members of every stored house.
func (a *Aggregator) SyncMemberCounts(ctx context.Context) (map[string]int, error) {
	ids := make([]string, len(model.Houses))
	for i, h := range model.Houses {
		ids[i] = h.ID
	}
	counts, err := a.houses.SyncMemberCounts(ids, a.adminEmail)
	if err != nil {
		return nil, fmt.Errorf("sync member counts: %w", err)
	}
	for id := range counts {
		a.broker.Publish(realtime.NewEvent(realtime.EntityHouse, "updated", id, nil))
	}
	return counts, nil
}
