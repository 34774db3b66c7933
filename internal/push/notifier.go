package push

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukerupert/cleanwarts/internal/metrics"
	"github.com/dukerupert/cleanwarts/internal/model"
)

// Sender delivers one notification to one subscription.
type Sender interface {
	Send(ctx context.Context, sub *model.PushSubscription, payload Payload) error
}

// SubscriptionStore is the slice of the push store the notifier needs.
type SubscriptionStore interface {
	ListByUser(userID string) ([]model.PushSubscription, error)
	DeleteByEndpoint(endpoint string) error
}

// Notifier fans a notification out to every device of a user.
type Notifier struct {
	sender Sender
	subs   SubscriptionStore
	logger *slog.Logger
}

func NewNotifier(sender Sender, subs SubscriptionStore, logger *slog.Logger) *Notifier {
	return &Notifier{sender: sender, subs: subs, logger: logger}
}

// NotifyUser sends payload to each of the user's subscriptions and returns
// how many deliveries succeeded. Expired subscriptions are removed.
func (n *Notifier) NotifyUser(ctx context.Context, userID string, payload Payload) int {
	subs, err := n.subs.ListByUser(userID)
	if err != nil {
		n.logger.Error("list push subscriptions", "user_id", userID, "error", err)
		return 0
	}

	sent := 0
	for i := range subs {
		sub := &subs[i]
		err := n.sender.Send(ctx, sub, payload)
		switch {
		case err == nil:
			sent++
			metrics.PushSent.WithLabelValues("ok").Inc()
		case errors.Is(err, ErrExpired):
			metrics.PushSent.WithLabelValues("expired").Inc()
			if err := n.subs.DeleteByEndpoint(sub.Endpoint); err != nil {
				n.logger.Error("delete expired subscription", "id", sub.ID, "error", err)
			} else {
				n.logger.Info("removed expired push subscription", "id", sub.ID, "user_id", userID)
			}
		default:
			metrics.PushSent.WithLabelValues("error").Inc()
			n.logger.Warn("send push", "id", sub.ID, "user_id", userID, "error", err)
		}
	}
	return sent
}
