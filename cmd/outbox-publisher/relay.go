package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/pkg/config"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/metrics"
	"github.com/angelmondragon/settlement-engine/pkg/outbox/registry"
)

type transactor interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pinger interface {
	Ping(context.Context) error
}

type eventStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// topicPublishers hands out the publisher for a topic, nil when none exists.
type topicPublishers func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// relayOptions are the knobs read once from config.
type relayOptions struct {
	batchSize      int
	maxAttempts    int
	pollInterval   time.Duration
	publishTimeout time.Duration
}

func optionsFrom(cfg config.OutboxConfig) relayOptions {
	opts := relayOptions{
		batchSize:      cfg.BatchSize,
		maxAttempts:    cfg.MaxAttempts,
		pollInterval:   time.Duration(cfg.PollIntervalMS) * time.Millisecond,
		publishTimeout: cfg.PublishTimeout,
	}
	if opts.batchSize <= 0 {
		opts.batchSize = 50
	}
	if opts.maxAttempts <= 0 {
		opts.maxAttempts = 10
	}
	if opts.pollInterval <= 0 {
		opts.pollInterval = 500 * time.Millisecond
	}
	if opts.publishTimeout <= 0 {
		opts.publishTimeout = 15 * time.Second
	}
	return opts
}

type RelayParams struct {
	Outbox      config.OutboxConfig
	Logger      *logger.Logger
	DB          transactor
	PubSub      pinger
	Events      eventStore
	DeadLetters deadLetterStore
	Registry    resolver
	Publishers  topicPublishers
	Metrics     *metrics.OutboxMetrics
}

// Relay moves committed outbox rows to Pub/Sub. Each batch is claimed and
// settled inside one transaction so concurrent relays never double-publish.
type Relay struct {
	logg       *logger.Logger
	db         transactor
	pubsub     pinger
	events     eventStore
	dlq        deadLetterStore
	registry   resolver
	publishers topicPublishers
	metrics    *metrics.OutboxMetrics
	opts       relayOptions
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case p.Events == nil:
		return nil, errors.New("outbox repository is required")
	case p.DeadLetters == nil:
		return nil, errors.New("dlq repository is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	case p.Publishers == nil:
		return nil, errors.New("publisher source is required")
	}
	return &Relay{
		logg:       p.Logger,
		db:         p.DB,
		pubsub:     p.PubSub,
		events:     p.Events,
		dlq:        p.DeadLetters,
		registry:   p.Registry,
		publishers: p.Publishers,
		metrics:    p.Metrics,
		opts:       optionsFrom(p.Outbox),
	}, nil
}

// Run polls until ctx is canceled. A full batch triggers an immediate
// follow-up; an empty one waits one poll interval; a failed one backs off.
func (r *Relay) Run(ctx context.Context) error {
	for name, dep := range map[string]pinger{"database": r.db, "pubsub": r.pubsub} {
		if err := dep.Ping(ctx); err != nil {
			return fmt.Errorf("%s not ready: %w", name, err)
		}
	}

	wait := newPollBackoff(r.opts.pollInterval)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		claimed, err := r.relayBatch(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch failed", err)
			if err := sleepCtx(ctx, wait.failure()); err != nil {
				return err
			}
		case claimed >= r.opts.batchSize:
			wait.reset()
		default:
			wait.reset()
			if err := sleepCtx(ctx, wait.idle()); err != nil {
				return err
			}
		}
	}
}

type verdict int

const (
	verdictPublished verdict = iota
	verdictRetry
	verdictDeadLetter
)

// delivery is the outcome of one publish attempt.
type delivery struct {
	event   models.OutboxEvent
	topic   string
	verdict verdict
	reason  enums.OutboxDLQErrorReason
	err     error
}

func (r *Relay) relayBatch(ctx context.Context) (int, error) {
	claimed := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.events.FetchUnpublishedForPublish(tx, r.opts.batchSize, r.opts.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(rows)
		r.metrics.ObserveBatch(claimed)

		for _, row := range rows {
			if err := r.settle(ctx, tx, r.deliver(ctx, row)); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (r *Relay) deliver(ctx context.Context, row models.OutboxEvent) delivery {
	d := delivery{event: row}

	resolved, err := r.registry.Resolve(row)
	if err != nil {
		d.verdict, d.reason, d.err = verdictDeadLetter, enums.OutboxDLQReasonNonRetryable, err
		return d
	}
	d.topic = resolved.Descriptor.Topic

	err = r.publish(ctx, row, resolved)
	switch {
	case err == nil:
		d.verdict = verdictPublished
	case registry.IsNonRetryable(err):
		d.verdict, d.reason, d.err = verdictDeadLetter, enums.OutboxDLQReasonNonRetryable, err
	case row.AttemptCount+1 >= r.opts.maxAttempts:
		d.verdict, d.reason = verdictDeadLetter, enums.OutboxDLQReasonMaxAttempts
		d.err = fmt.Errorf("gave up after %d attempts: %w", row.AttemptCount+1, err)
	default:
		d.verdict, d.err = verdictRetry, err
	}
	return d
}

func (r *Relay) publish(ctx context.Context, row models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := r.publishers(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %q", topic))
	}

	msg := &gcppubsub.Message{
		Data:        row.Payload,
		OrderingKey: row.AggregateID.String(),
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, r.opts.publishTimeout)
	defer cancel()

	started := time.Now()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher for %q returned no result", topic))
	}
	_, err := result.Get(publishCtx)
	r.metrics.ObservePublish(topic, time.Since(started))
	return err
}

// settle persists the verdict on the claimed row.
func (r *Relay) settle(ctx context.Context, tx *gorm.DB, d delivery) error {
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":     d.event.ID.String(),
		"event_type":    d.event.EventType,
		"aggregate_id":  d.event.AggregateID.String(),
		"attempt_count": d.event.AttemptCount,
		"topic":         d.topic,
	})

	switch d.verdict {
	case verdictPublished:
		if err := r.events.MarkPublishedTx(tx, d.event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", d.event.ID, err)
		}
		r.metrics.IncDelivery(string(d.event.EventType), metrics.DeliveryPublished)
		r.logg.Info(logCtx, "outbox event published")

	case verdictRetry:
		if err := r.events.MarkFailedTx(tx, d.event.ID, d.err); err != nil {
			return fmt.Errorf("mark failed %s: %w", d.event.ID, err)
		}
		r.metrics.IncDelivery(string(d.event.EventType), metrics.DeliveryRetry)
		r.logg.Warn(r.logg.WithField(logCtx, "error", d.err.Error()), "outbox publish failed, will retry")

	case verdictDeadLetter:
		entry := models.OutboxDLQ{
			EventID:       d.event.ID,
			EventType:     d.event.EventType,
			AggregateType: d.event.AggregateType,
			AggregateID:   d.event.AggregateID,
			Payload:       d.event.Payload,
			ErrorReason:   d.reason,
			AttemptCount:  d.event.AttemptCount,
			FailedAt:      time.Now().UTC(),
		}
		if d.err != nil {
			msg := d.err.Error()
			entry.ErrorMessage = &msg
		}
		if err := r.dlq.InsertTx(tx, entry); err != nil {
			return fmt.Errorf("insert dlq %s: %w", d.event.ID, err)
		}
		if err := r.events.MarkTerminalTx(tx, d.event.ID, d.err, r.opts.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", d.event.ID, err)
		}
		r.metrics.IncDelivery(string(d.event.EventType), metrics.DeliveryDeadLettered)
		r.logg.Warn(r.logg.WithFields(logCtx, map[string]any{
			"error_reason": d.reason,
			"error":        errString(d.err),
		}), "outbox event dead-lettered")
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
