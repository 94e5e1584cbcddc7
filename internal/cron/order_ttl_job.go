package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

const (
	defaultPendingTTL      = 24 * time.Hour
	defaultExpiryBatchSize = 100
	maxExpiryBatches       = 50
)

// OrderTTLJobParams configure the pending order expiry job.
type OrderTTLJobParams struct {
	Logger    *logger.Logger
	Orders    staleOrderReader
	Expirer   orderExpirer
	TTL       time.Duration
	BatchSize int
}

// NewOrderTTLJob builds the cron job that cancels orders left pending and
// unpaid past the TTL.
func NewOrderTTLJob(params OrderTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Expirer == nil {
		return nil, fmt.Errorf("order expirer required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatchSize
	}
	return &orderTTLJob{
		logg:    params.Logger,
		orders:  params.Orders,
		expirer: params.Expirer,
		ttl:     ttl,
		batch:   batch,
		now:     time.Now,
	}, nil
}

type orderTTLJob struct {
	logg    *logger.Logger
	orders  staleOrderReader
	expirer orderExpirer
	ttl     time.Duration
	batch   int
	now     func() time.Time
}

func (j *orderTTLJob) Name() string { return "order-ttl" }

// Run expires stale orders batch by batch. One failing order does not stop
// the rest; every failure is returned combined.
func (j *orderTTLJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	attempted := make(map[uuid.UUID]struct{})
	var (
		errs    error
		expired int
		skipped int
	)
	for round := 0; round < maxExpiryBatches; round++ {
		stale, err := j.orders.FindStalePending(ctx, cutoff, j.batch)
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("query stale orders: %w", err))
		}
		fresh := 0
		for _, order := range stale {
			if _, seen := attempted[order.ID]; seen {
				continue
			}
			attempted[order.ID] = struct{}{}
			fresh++
			ok, err := j.expirer.ExpireOrder(ctx, order.ID, j.ttl)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
				continue
			}
			if ok {
				expired++
			} else {
				skipped++
			}
		}
		if fresh == 0 || len(stale) < j.batch {
			break
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"expired": expired,
		"skipped": skipped,
		"failed":  len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "pending order expiry complete")
	return errs
}
