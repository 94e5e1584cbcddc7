package notifications

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/pkg/enums"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/outbox"
	"github.com/angelmondragon/settlement-engine/pkg/outbox/payloads"
)

// Request is one notification addressed to a user.
type Request struct {
	UserID         uuid.UUID
	Kind           enums.NotificationKind
	OrderID        *uuid.UUID
	TrackingNumber string
	Data           map[string]any
}

// Sink accepts notifications. Notify must not block the caller.
type Sink interface {
	Notify(ctx context.Context, req Request)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, req Request)

func (f SinkFunc) Notify(ctx context.Context, req Request) {
	f(ctx, req)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type dropRecorder interface {
	IncNotificationDropped()
}

// DispatcherParams wires a Dispatcher.
type DispatcherParams struct {
	DB             txRunner
	Outbox         emitter
	Logger         *logger.Logger
	Metrics        dropRecorder
	QueueSize      int
	Workers        int
	PublishTimeout time.Duration
}

type job struct {
	ctx context.Context
	req Request
}

// Dispatcher is the in-process Sink. Requests are queued and turned into
// notification_requested outbox rows by a fixed pool of workers.
type Dispatcher struct {
	db      txRunner
	outbox  emitter
	logg    *logger.Logger
	metrics dropRecorder
	timeout time.Duration
	workers int

	mu     sync.RWMutex
	closed bool
	queue  chan job
	wg     sync.WaitGroup
	start  sync.Once
}

// NewDispatcher validates params and allocates the queue. Call Start to run workers.
func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.DB == nil {
		return nil, errors.New("database client required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox service required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	size := params.QueueSize
	if size <= 0 {
		size = 256
	}
	workers := params.Workers
	if workers <= 0 {
		workers = 1
	}
	timeout := params.PublishTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		db:      params.DB,
		outbox:  params.Outbox,
		logg:    params.Logger,
		metrics: params.Metrics,
		timeout: timeout,
		workers: workers,
		queue:   make(chan job, size),
	}, nil
}

// Start launches the worker pool. It is safe to call more than once.
func (d *Dispatcher) Start() {
	d.start.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.work()
		}
	})
}

// Notify enqueues req. A full or closed queue drops it with a warning.
func (d *Dispatcher) Notify(ctx context.Context, req Request) {
	if ctx == nil {
		ctx = context.Background()
	}
	fields := map[string]any{
		"kind":    req.Kind,
		"user_id": req.UserID.String(),
	}
	if req.OrderID != nil {
		fields["order_id"] = req.OrderID.String()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logg.Warn(d.logg.WithFields(ctx, fields), "notification dropped: dispatcher closed")
		return
	}
	select {
	case d.queue <- job{ctx: context.WithoutCancel(ctx), req: req}:
	default:
		if d.metrics != nil {
			d.metrics.IncNotificationDropped()
		}
		d.logg.Warn(d.logg.WithFields(ctx, fields), "notification dropped: queue full")
	}
}

// Close stops accepting requests and waits for queued ones to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for j := range d.queue {
		if err := d.deliver(j.ctx, j.req); err != nil {
			d.logg.Error(d.logg.WithField(j.ctx, "kind", j.req.Kind), "notification dispatch failed", err)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, req Request) error {
	if req.UserID == uuid.Nil {
		return errors.New("notification recipient required")
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	aggregateID := req.UserID
	if req.OrderID != nil {
		aggregateID = *req.OrderID
	}
	return d.db.WithTx(ctx, func(tx *gorm.DB) error {
		return d.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventNotificationRequested,
			AggregateType: enums.AggregateNotification,
			AggregateID:   aggregateID,
			Data: payloads.NotificationRequestedEvent{
				UserID:         req.UserID,
				Kind:           req.Kind,
				OrderID:        req.OrderID,
				TrackingNumber: req.TrackingNumber,
				Data:           req.Data,
			},
		})
	})
}
