package services

import (
	"context"

	"heartsync-backend/internal/metrics"
	"heartsync-backend/internal/repository"

	"github.com/rs/zerolog/log"
)

// Notifier tells a user about something their partner did. Failures are logged, never returned.
type Notifier interface {
	Notify(ctx context.Context, userID string, msg WSMessage, alert string)
}

// PartnerNotifier sends over the user's websocket and falls back to a push
// notification when they are offline and alert is set
type PartnerNotifier struct {
	hub    *WSHub
	pusher Pusher
	store  repository.Store
}

// NewPartnerNotifier creates a notifier; pusher may be nil when APNs is disabled
func NewPartnerNotifier(hub *WSHub, pusher Pusher, store repository.Store) *PartnerNotifier {
	return &PartnerNotifier{hub: hub, pusher: pusher, store: store}
}

func (n *PartnerNotifier) Notify(ctx context.Context, userID string, msg WSMessage, alert string) {
	if err := n.hub.SendToUser(userID, msg); err == nil {
		metrics.PushNotificationsTotal.WithLabelValues("websocket", "sent").Inc()
		return
	}

	if alert == "" || n.pusher == nil {
		return
	}

	user, err := n.store.Users().GetByID(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to load user for push")
		return
	}
	if user.PushToken == nil {
		return
	}

	if err := n.pusher.Push(ctx, *user.PushToken, alert, msg.Type); err != nil {
		metrics.PushNotificationsTotal.WithLabelValues("apns", "failed").Inc()
		log.Error().Err(err).Str("user_id", userID).Str("type", msg.Type).Msg("Failed to send push notification")
		return
	}
	metrics.PushNotificationsTotal.WithLabelValues("apns", "sent").Inc()
}
