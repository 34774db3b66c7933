// Package leaderboard projects stored points into house and member rankings.
package leaderboard

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dukerupert/cleanwarts/internal/model"
	"github.com/dukerupert/cleanwarts/internal/realtime"
)

// IndividualLimit is the number of members shown on a house leaderboard.
const IndividualLimit = 20

type HouseStore interface {
	List() ([]model.House, error)
}

type UserStore interface {
	RankedMembers(house, adminEmail string, limit int) ([]model.User, error)
}

type HouseStanding struct {
	Rank        int    `json:"rank"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	Points      int    `json:"points"`
	MemberCount int    `json:"member_count"`
	Color       string `json:"color,omitempty"`
}

type MemberStanding struct {
	Rank   int    `json:"rank"`
	ID     string `json:"id"`
	Name   string `json:"name"`
	Points int    `json:"points"`
	Tasks  int    `json:"tasks"`
}

type Projector struct {
	houses     HouseStore
	users      UserStore
	broker     *realtime.Broker
	adminEmail string
	logger     *slog.Logger
}

func NewProjector(houses HouseStore, users UserStore, broker *realtime.Broker, adminEmail string, logger *slog.Logger) *Projector {
	return &Projector{
		houses:     houses,
		users:      users,
		broker:     broker,
		adminEmail: adminEmail,
		logger:     logger,
	}
}

// RankHouses orders houses by points, highest first, breaking ties by id.
// Only the houses passed in are ranked.
func RankHouses(houses []model.House) []HouseStanding {
	sorted := slices.Clone(houses)
	slices.SortStableFunc(sorted, func(a, b model.House) int {
		if c := cmp.Compare(b.Points, a.Points); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	out := make([]HouseStanding, len(sorted))
	for i, h := range sorted {
		out[i] = HouseStanding{
			Rank:        i + 1,
			ID:          h.ID,
			Name:        h.Name,
			Points:      h.Points,
			MemberCount: h.MemberCount,
		}
		if info, ok := model.LookupHouse(h.ID); ok {
			out[i].Color = info.PrimaryColor
		}
	}
	return out
}

func (p *Projector) HouseRanking(ctx context.Context) ([]HouseStanding, error) {
	houses, err := p.houses.List()
	if err != nil {
		return nil, fmt.Errorf("list houses: %w", err)
	}
	return RankHouses(houses), nil
}

// HouseRank returns the 1-based rank of a house and the number of ranked
// houses. The rank is 0 when the house has no stored row.
func (p *Projector) HouseRank(ctx context.Context, house string) (rank, total int, err error) {
	ranking, err := p.HouseRanking(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, s := range ranking {
		if s.ID == house {
			return s.Rank, len(ranking), nil
		}
	}
	return 0, len(ranking), nil
}

// IndividualRanking returns the top members of a house. The admin account
// never appears, whether identified by role or by its reserved email.
func (p *Projector) IndividualRanking(ctx context.Context, house string) ([]MemberStanding, error) {
	if !model.IsHouse(house) {
		return []MemberStanding{}, nil
	}
	users, err := p.users.RankedMembers(house, p.adminEmail, IndividualLimit)
	if err != nil {
		return nil, fmt.Errorf("list members of %s: %w", house, err)
	}

	users = slices.DeleteFunc(users, func(u model.User) bool {
		return u.House != house || u.IsPrivileged(p.adminEmail)
	})
	slices.SortStableFunc(users, func(a, b model.User) int {
		if c := cmp.Compare(b.Points, a.Points); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(users) > IndividualLimit {
		users = users[:IndividualLimit]
	}

	out := make([]MemberStanding, len(users))
	for i, u := range users {
		out[i] = MemberStanding{Rank: i + 1, ID: u.ID, Name: u.Name, Points: u.Points, Tasks: u.Tasks}
	}
	return out, nil
}

// WatchHouses emits the house ranking now and after every user or house change.
func (p *Projector) WatchHouses(ctx context.Context, emit func([]HouseStanding)) context.CancelFunc {
	return realtime.Watch(ctx, p.broker, realtime.Stream[[]HouseStanding]{
		Entities: []string{realtime.EntityHouse, realtime.EntityUser},
		Load:     p.HouseRanking,
		Emit:     emit,
		OnError: func(err error) {
			p.logger.Error("reload house ranking", "error", err)
		},
	})
}

// WatchIndividuals emits the member ranking of a house now and after every
// user or house change.
func (p *Projector) WatchIndividuals(ctx context.Context, house string, emit func([]MemberStanding)) context.CancelFunc {
	return realtime.Watch(ctx, p.broker, realtime.Stream[[]MemberStanding]{
		Entities: []string{realtime.EntityUser, realtime.EntityHouse},
		Load: func(ctx context.Context) ([]MemberStanding, error) {
			return p.IndividualRanking(ctx, house)
		},
		Emit: emit,
		OnError: func(err error) {
			p.logger.Error("reload individual ranking", "house", house, "error", err)
		},
	})
}
