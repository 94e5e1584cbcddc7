package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/outbox"
	"github.com/angelmondragon/settlement-engine/pkg/outbox/payloads"
)

type writer interface {
	Create(ctx context.Context, notification *models.Notification) error
}

type deliveryLedger interface {
	CheckAndMark(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

type recipients interface {
	Active(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Consumer turns notification_requested events into stored notifications.
type Consumer struct {
	repo         writer
	users        recipients
	subscription *pubsub.Subscriber
	deliveries   deliveryLedger
	logg         *logger.Logger
}

// NewConsumer builds the notification consumer.
func NewConsumer(repo writer, users recipients, subscription *pubsub.Subscriber, deliveries deliveryLedger, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if deliveries == nil {
		return nil, fmt.Errorf("delivery ledger required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		users:        users,
		subscription: subscription,
		deliveries:   deliveries,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if eventType != string(enums.EventNotificationRequested) {
		c.logg.Info(logCtx, "skipping non-notification event")
		return processResult{ack: true}
	}

	envelope, err := outbox.DecodeEnvelope(msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	var payload payloads.NotificationRequestedEvent
	if err := envelope.DecodeData(&payload); err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return processResult{ack: true}
	}
	if payload.UserID == uuid.Nil || !payload.Kind.IsValid() {
		c.logg.Warn(logCtx, "notification payload missing user or kind")
		return processResult{ack: true}
	}

	already, err := c.deliveries.CheckAndMark(ctx, eventID.String())
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"user_id": payload.UserID.String(),
		"kind":    payload.Kind,
	})
	if err := c.store(ctx, payload); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			c.logg.Warn(logCtx, "notification recipient not found")
			return processResult{ack: true}
		}
		c.logg.Error(logCtx, "notification handling failed", err)
		_ = c.deliveries.Delete(ctx, eventID.String())
		return processResult{nack: true}
	}

	c.logg.Info(logCtx, "notification stored")
	return processResult{ack: true}
}

func (c *Consumer) store(ctx context.Context, payload payloads.NotificationRequestedEvent) error {
	user, err := c.users.Active(ctx, payload.UserID)
	if err != nil {
		return err
	}

	title, message := Render(payload.Kind, payload.TrackingNumber, payload.Data)
	var raw json.RawMessage
	if len(payload.Data) > 0 {
		raw, err = json.Marshal(payload.Data)
		if err != nil {
			return err
		}
	}
	return c.repo.Create(ctx, &models.Notification{
		ID:      uuid.New(),
		UserID:  user.ID,
		Kind:    payload.Kind,
		Title:   title,
		Message: message,
		OrderID: payload.OrderID,
		Payload: raw,
	})
}
