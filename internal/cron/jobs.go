package cron

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
)

type staleOrderReader interface {
	FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type orderExpirer interface {
	ExpireOrder(ctx context.Context, orderID uuid.UUID, ttl time.Duration) (bool, error)
}
