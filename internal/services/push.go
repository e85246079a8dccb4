package services

import (
	"context"
	"fmt"

	"heartsync-backend/internal/config"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// Pusher delivers a device push notification
type Pusher interface {
	Push(ctx context.Context, deviceToken, alert, eventType string) error
}

// APNSPusher sends notifications through Apple's token-based APNs API
type APNSPusher struct {
	client *apns2.Client
	topic  string
}

// NewAPNSPusher loads the .p8 signing key from cfg.KeyFile
func NewAPNSPusher(cfg config.APNSConfig) (*APNSPusher, error) {
	authKey, err := token.AuthKeyFromFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &APNSPusher{client: client, topic: cfg.Topic}, nil
}

func (p *APNSPusher) Push(ctx context.Context, deviceToken, alert, eventType string) error {
	notification := &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       p.topic,
		Payload:     payload.NewPayload().Alert(alert).Sound("default").Custom("type", eventType),
	}

	res, err := p.client.PushWithContext(ctx, notification)
	if err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}
	if !res.Sent() {
		return fmt.Errorf("apns rejected notification: %d %s", res.StatusCode, res.Reason)
	}
	return nil
}
