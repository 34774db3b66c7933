package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisChannel is the pub/sub channel shared by every instance.
const RedisChannel = "cleanwarts:events"

const outboxSize = 256

// RedisBridge relays broker events between instances over Redis pub/sub.
type RedisBridge struct {
	client     *redis.Client
	broker     *Broker
	instanceID string
	outbox     chan Event
	logger     *slog.Logger
}

func NewRedisBridge(client *redis.Client, broker *Broker, logger *slog.Logger) *RedisBridge {
	return &RedisBridge{
		client:     client,
		broker:     broker,
		instanceID: uuid.NewString(),
		outbox:     make(chan Event, outboxSize),
		logger:     logger,
	}
}

// Start subscribes to the shared channel and begins relaying in both
// directions until ctx is cancelled.
func (rb *RedisBridge) Start(ctx context.Context) error {
	pubsub := rb.client.Subscribe(ctx, RedisChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", RedisChannel, err)
	}

	rb.broker.SetOutbound(rb.enqueue)

	go rb.publishLoop(ctx)
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				rb.broker.SetOutbound(nil)
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				rb.handlePayload(msg.Payload)
			}
		}
	}()

	rb.logger.Info("redis bridge started", "channel", RedisChannel, "instance", rb.instanceID)
	return nil
}

func (rb *RedisBridge) enqueue(e Event) {
	if e.Origin != "" {
		return
	}
	select {
	case rb.outbox <- e:
	default:
		rb.logger.Warn("redis outbox full, event not relayed", "type", e.Type)
	}
}

func (rb *RedisBridge) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-rb.outbox:
			e.Origin = rb.instanceID
			data, err := json.Marshal(e)
			if err != nil {
				rb.logger.Error("marshal event", "error", err)
				continue
			}
			if err := rb.client.Publish(ctx, RedisChannel, data).Err(); err != nil {
				rb.logger.Error("publish event", "type", e.Type, "error", err)
			}
		}
	}
}

// handlePayload delivers a remote event locally, skipping our own echoes.
func (rb *RedisBridge) handlePayload(payload string) {
	var e Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		rb.logger.Warn("invalid event payload", "error", err)
		return
	}
	if e.Origin == rb.instanceID {
		return
	}
	rb.broker.Deliver(e)
}
