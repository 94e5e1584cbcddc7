package notifications

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/pkg/db"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/db/testdb"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/outbox"
	"github.com/angelmondragon/settlement-engine/pkg/outbox/payloads"
)

type dropCounter struct {
	mu    sync.Mutex
	drops int
}

func (d *dropCounter) IncNotificationDropped() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drops++
}

type blockingEmitter struct {
	release chan struct{}
}

func (b *blockingEmitter) Emit(ctx context.Context, _ *gorm.DB, _ outbox.DomainEvent) error {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}

type noopTx struct{}

func (noopTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func TestDispatcherWritesOutboxRows(t *testing.T) {
	conn := testdb.Open(t)
	logg := testLogger()
	dispatcher, err := NewDispatcher(DispatcherParams{
		DB:     db.Wrap(conn),
		Outbox: outbox.NewService(outbox.NewRepository(conn), logg),
		Logger: logg,
	})
	require.NoError(t, err)
	dispatcher.Start()

	orderID := uuid.New()
	userID := uuid.New()
	dispatcher.Notify(context.Background(), Request{
		UserID:         userID,
		Kind:           enums.NotificationOrderPlaced,
		OrderID:        &orderID,
		TrackingNumber: "ORD-20260101-00000001",
		Data:           map[string]any{"total": "145.97"},
	})
	dispatcher.Close()

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventNotificationRequested, rows[0].EventType)
	assert.Equal(t, enums.AggregateNotification, rows[0].AggregateType)
	assert.Equal(t, orderID, rows[0].AggregateID)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	var payload payloads.NotificationRequestedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	assert.Equal(t, userID, payload.UserID)
	assert.Equal(t, "145.97", payload.Data["total"])
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	emitter := &blockingEmitter{release: make(chan struct{})}
	counter := &dropCounter{}
	dispatcher, err := NewDispatcher(DispatcherParams{
		DB:        noopTx{},
		Outbox:    emitter,
		Logger:    testLogger(),
		Metrics:   counter,
		QueueSize: 1,
	})
	require.NoError(t, err)

	req := Request{UserID: uuid.New(), Kind: enums.NotificationOrderPlaced}
	// Workers are not started, so the second request finds the queue full.
	dispatcher.Notify(context.Background(), req)
	dispatcher.Notify(context.Background(), req)
	assert.Equal(t, 1, counter.drops)

	dispatcher.Start()
	close(emitter.release)
	dispatcher.Close()

	dispatcher.Notify(context.Background(), req)
	assert.Equal(t, 1, counter.drops)
}

func TestNewDispatcherValidates(t *testing.T) {
	_, err := NewDispatcher(DispatcherParams{})
	require.Error(t, err)
}
