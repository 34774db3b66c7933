// Package chat implements the per-house message rooms.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"unicode/utf8"

	"github.com/dukerupert/cleanwarts/internal/metrics"
	"github.com/dukerupert/cleanwarts/internal/model"
	"github.com/dukerupert/cleanwarts/internal/realtime"
	"github.com/dukerupert/cleanwarts/internal/sanitize"
)

const (
	MaxMessageLen = 500
	HistoryLimit  = 100
)

var (
	ErrEmpty           = errors.New("message is empty")
	ErrTooLong         = fmt.Errorf("message is longer than %d characters", MaxMessageLen)
	ErrUnauthenticated = errors.New("not authenticated")
	ErrUnknownHouse    = errors.New("unknown house")
)

type Store interface {
	Create(house, sender, senderID, text string) (*model.ChatMessage, error)
	Recent(house string, limit int) ([]model.ChatMessage, error)
}

type Service struct {
	store  Store
	broker *realtime.Broker
	logger *slog.Logger
}

func NewService(store Store, broker *realtime.Broker, logger *slog.Logger) *Service {
	return &Service{store: store, broker: broker, logger: logger}
}

func houseOf(user *model.User) string {
	if user.House == "" {
		return model.DefaultHouse
	}
	return user.House
}

// Post stores text in the sender's own house room.
func (s *Service) Post(ctx context.Context, user *model.User, text string) (*model.ChatMessage, error) {
	if user == nil || user.ID == "" {
		return nil, ErrUnauthenticated
	}
	house := houseOf(user)
	if !model.IsHouse(house) {
		return nil, ErrUnknownHouse
	}

	text = sanitize.Text(text)
	if text == "" {
		return nil, ErrEmpty
	}
	if utf8.RuneCountInString(text) > MaxMessageLen {
		return nil, ErrTooLong
	}

	msg, err := s.store.Create(house, user.Name, user.ID, text)
	if err != nil {
		return nil, fmt.Errorf("create chat message: %w", err)
	}

	metrics.ChatMessages.Inc()
	s.broker.Publish(realtime.NewEvent(realtime.EntityChat, "created", strconv.FormatInt(msg.ID, 10),
		map[string]any{"house": house}))
	s.logger.Debug("chat message posted", "house", house, "user_id", user.ID)
	return msg, nil
}

// Recent returns the latest messages of a house room, oldest first.
func (s *Service) Recent(ctx context.Context, house string) ([]model.ChatMessage, error) {
	if !model.IsHouse(house) {
		return nil, ErrUnknownHouse
	}
	msgs, err := s.store.Recent(house, HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	return msgs, nil
}

// Watch emits the room history now and after every message posted to house.
func (s *Service) Watch(ctx context.Context, house string, emit func([]model.ChatMessage)) context.CancelFunc {
	return realtime.Watch(ctx, s.broker, realtime.Stream[[]model.ChatMessage]{
		Entities: []string{realtime.EntityChat},
		Match: func(e realtime.Event) bool {
			h, _ := e.Extra["house"].(string)
			return h == house
		},
		Load: func(ctx context.Context) ([]model.ChatMessage, error) {
			return s.Recent(ctx, house)
		},
		Emit: emit,
		OnError: func(err error) {
			s.logger.Error("reload chat", "house", house, "error", err)
		},
	})
}
