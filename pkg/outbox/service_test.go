package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/db/testdb"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

func newTestService(t *testing.T) (*Service, *Repository, *gorm.DB) {
	t.Helper()
	db := testdb.Open(t)
	repo := NewRepository(db)
	logg := logger.New(logger.Options{ServiceName: "outbox-test", Output: io.Discard})
	return NewService(repo, logg), repo, db
}

func TestEmitWritesEnvelope(t *testing.T) {
	svc, _, db := newTestService(t)
	orderID := uuid.New()
	actor := &ActorRef{UserID: uuid.New(), Role: "customer"}

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         actor,
			Data:          map[string]string{"tracking_number": "TRK-1"},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, orderID, rows[0].AggregateID)
	assert.False(t, rows[0].Published())

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, EnvelopeVersion, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	assert.Equal(t, string(enums.EventOrderCreated), envelope.EventType)
	assert.Equal(t, orderID.String(), envelope.AggregateID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, actor.UserID, envelope.Actor.UserID)
	assert.JSONEq(t, `{"tracking_number":"TRK-1"}`, string(envelope.Data))
}

func TestEmitRolledBackWithCaller(t *testing.T) {
	svc, _, db := newTestService(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCanceled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Data:          map[string]string{},
		}); err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderCreated})
	assert.ErrorIs(t, err, ErrTxRequired)
}

func TestEmitRejectsIncompleteEvents(t *testing.T) {
	svc, _, db := newTestService(t)
	cases := map[string]DomainEvent{
		"event type":     {EventType: "order_teleported", AggregateType: enums.AggregateOrder, AggregateID: uuid.New()},
		"aggregate type": {EventType: enums.EventOrderCreated, AggregateType: "warehouse", AggregateID: uuid.New()},
		"aggregate id":   {EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder},
	}
	for name, event := range cases {
		err := db.Transaction(func(tx *gorm.DB) error {
			return svc.Emit(context.Background(), tx, event)
		})
		assert.Error(t, err, name)
	}

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDecodeEnvelope(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"version":2,"eventId":"e1","data":{}}`))
	assert.ErrorIs(t, err, ErrEnvelopeVersion)

	_, err = DecodeEnvelope([]byte(`{"version":1,"data":{}}`))
	assert.ErrorIs(t, err, ErrEnvelopeEventID)

	_, err = DecodeEnvelope([]byte(`{"version":1,"eventId":"e1","data":null}`))
	assert.ErrorIs(t, err, ErrEnvelopeData)

	_, err = DecodeEnvelope([]byte(`not json`))
	assert.Error(t, err)

	env, err := DecodeEnvelope([]byte(`{"version":1,"eventId":"e1","eventType":"order_created","data":{"n":3}}`))
	require.NoError(t, err)
	var body struct{ N int }
	require.NoError(t, env.DecodeData(&body))
	assert.Equal(t, 3, body.N)
}

func TestFetchMarkAndPrune(t *testing.T) {
	svc, repo, db := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			return svc.Emit(ctx, tx, DomainEvent{
				EventType:     enums.EventOrderStatusChanged,
				AggregateType: enums.AggregateOrder,
				AggregateID:   uuid.New(),
				Data:          map[string]int{"seq": i},
			})
		}))
	}

	var rows []models.OutboxEvent
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		rows, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		if err != nil {
			return err
		}
		if err := repo.MarkPublishedTx(tx, rows[0].ID); err != nil {
			return err
		}
		if err := repo.MarkFailedTx(tx, rows[1].ID, errors.New("transient")); err != nil {
			return err
		}
		return repo.MarkTerminalTx(tx, rows[2].ID, errors.New("bad payload"), 3)
	}))
	require.Len(t, rows, 3)

	var remaining []models.OutboxEvent
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		remaining, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		return err
	}))
	require.Len(t, remaining, 1)
	assert.Equal(t, rows[1].ID, remaining[0].ID)
	assert.Equal(t, 1, remaining[0].AttemptCount)
	require.NotNil(t, remaining[0].LastError)
	assert.Equal(t, "transient", *remaining[0].LastError)

	var published models.OutboxEvent
	require.NoError(t, db.Take(&published, "id = ?", rows[0].ID).Error)
	assert.True(t, published.Published())

	deleted, err := repo.DeletePublishedBefore(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestDLQInsertTruncatesMessage(t *testing.T) {
	db := testdb.Open(t)
	dlq := NewDLQRepository(db)
	long := strings.Repeat("é", maxErrorText)
	eventID := uuid.New()

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return dlq.InsertTx(tx, models.OutboxDLQ{
			EventID:       eventID,
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregatePayment,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			ErrorReason:   enums.OutboxDLQReasonNonRetryable,
			ErrorMessage:  &long,
		})
	}))

	entry, err := dlq.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.NotNil(t, entry.ErrorMessage)
	assert.LessOrEqual(t, len(*entry.ErrorMessage), maxErrorText)
	assert.True(t, utf8.ValidString(*entry.ErrorMessage))

	pruned, err := dlq.DeleteBefore(context.Background(), time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)
	gone, err := dlq.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestClipKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "ab", clip("ab", 4))
	assert.Equal(t, "a", clip("aé", 2))
	assert.Equal(t, "aé", clip("aéz", 3))
}
