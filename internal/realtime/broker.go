package realtime

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dukerupert/cleanwarts/internal/metrics"
)

const subscriptionBufferSize = 16

// Entity names carried by change events.
const (
	EntityUser       = "user"
	EntityHouse      = "house"
	EntityTask       = "cleaning_task"
	EntityCompletion = "task_completion"
	EntityChat       = "chat_message"
)

// Event is a change notification for one stored record.
type Event struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     string         `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
	Origin string         `json:"origin,omitempty"`
}

// NewEvent creates an Event with the Type field derived from entity and action.
func NewEvent(entity, action, id string, extra map[string]any) Event {
	return Event{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// Subscription receives the events of the entities it was opened for.
type Subscription struct {
	broker   *Broker
	entities []string
	ch       chan Event
}

// Events returns the delivery channel. It is closed when the subscription is.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

func (s *Subscription) wants(e Event) bool {
	return len(s.entities) == 0 || slices.Contains(s.entities, e.Entity)
}

// Close detaches the subscription from its broker. Safe to call twice.
func (s *Subscription) Close() {
	s.broker.unsubscribe(s)
}

// Broker fans change events out to in-process subscribers.
type Broker struct {
	mu       sync.RWMutex
	subs     map[*Subscription]struct{}
	outbound func(Event)
	logger   *slog.Logger
}

func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{
		subs:   make(map[*Subscription]struct{}),
		logger: logger,
	}
}

// Subscribe opens a subscription for the given entities, or for every
// entity when none are given.
func (b *Broker) Subscribe(entities ...string) *Subscription {
	s := &Subscription{
		broker:   b,
		entities: entities,
		ch:       make(chan Event, subscriptionBufferSize),
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

func (b *Broker) unsubscribe(s *Subscription) {
	b.mu.Lock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
	b.mu.Unlock()
}

// SetOutbound installs a hook that receives every locally published event.
func (b *Broker) SetOutbound(fn func(Event)) {
	b.mu.Lock()
	b.outbound = fn
	b.mu.Unlock()
}

// Publish delivers e to local subscribers and hands it to the outbound hook.
func (b *Broker) Publish(e Event) {
	b.Deliver(e)

	b.mu.RLock()
	out := b.outbound
	b.mu.RUnlock()
	if out != nil {
		out(e)
	}
}

// Deliver sends e to local subscribers only. A subscriber whose buffer is
// full misses the event; it already has a pending change to react to.
func (b *Broker) Deliver(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for s := range b.subs {
		if !s.wants(e) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			metrics.DroppedEvents.Inc()
			b.logger.Debug("subscriber buffer full, event dropped", "type", e.Type, "id", e.ID)
		}
	}
}

// SubscriberCount returns the number of open subscriptions.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
