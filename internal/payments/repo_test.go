package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/db/testdb"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
)

func seedOrderRow(t *testing.T, db *gorm.DB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, db.Exec(
		`INSERT INTO orders (id, tracking_number, user_id, status, payment_status, payment_method, subtotal, tax, shipping, total, currency, shipping_address, created_at, updated_at)
		 VALUES (?, ?, ?, 'pending', 'pending', 'gateway_a', '10.00', '1.00', '25.00', '36.00', 'USD', '1 Main St', ?, ?)`,
		id.String(), "ORD-"+id.String()[:8], uuid.NewString(), time.Now().UTC(), time.Now().UTC(),
	).Error)
	return id
}

func newPayment(orderID uuid.UUID, method enums.PaymentMethod) *models.Payment {
	return &models.Payment{
		OrderID:       orderID,
		Method:        method,
		TransactionID: NewTransactionID(),
		Amount:        decimal.RequireFromString("36.00"),
	}
}

func TestRepositorySettleIsOneShot(t *testing.T) {
	db := testdb.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()
	orderID := seedOrderRow(t, db)

	payment := newPayment(orderID, enums.PaymentMethodGatewayA)
	require.NoError(t, repo.Create(ctx, payment))
	assert.Equal(t, enums.PaymentStatusPending, payment.Status)

	ref := "GA-1"
	require.NoError(t, repo.Settle(ctx, payment.ID, Settlement{
		Status:      enums.PaymentStatusPaid,
		ExternalRef: &ref,
		ProcessedAt: time.Now().UTC(),
	}))

	reason := "late"
	err := repo.Settle(ctx, payment.ID, Settlement{
		Status:        enums.PaymentStatusFailed,
		FailureReason: &reason,
		ProcessedAt:   time.Now().UTC(),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	stored, err := repo.FindByTransactionID(ctx, payment.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, stored.Status)
	require.NotNil(t, stored.ExternalRef)
	assert.Equal(t, "GA-1", *stored.ExternalRef)
	assert.Nil(t, stored.FailureReason)

	byRef, err := repo.FindByExternalRefForUpdate(ctx, "GA-1")
	require.NoError(t, err)
	assert.Equal(t, payment.ID, byRef.ID)

	err = repo.Settle(ctx, payment.ID, Settlement{Status: enums.PaymentStatusPending})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRepositoryHasPaid(t *testing.T) {
	db := testdb.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()
	orderID := seedOrderRow(t, db)

	first := newPayment(orderID, enums.PaymentMethodGatewayB)
	second := newPayment(orderID, enums.PaymentMethodGatewayB)
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	paid, err := repo.HasPaid(ctx, orderID, uuid.Nil)
	require.NoError(t, err)
	assert.False(t, paid)

	require.NoError(t, repo.Settle(ctx, first.ID, Settlement{Status: enums.PaymentStatusPaid, ProcessedAt: time.Now().UTC()}))

	paid, err = repo.HasPaid(ctx, orderID, second.ID)
	require.NoError(t, err)
	assert.True(t, paid)

	paid, err = repo.HasPaid(ctx, orderID, first.ID)
	require.NoError(t, err)
	assert.False(t, paid)
}

func TestRepositoryFailPendingForOrder(t *testing.T) {
	db := testdb.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()
	orderID := seedOrderRow(t, db)

	pending := newPayment(orderID, enums.PaymentMethodCOD)
	settled := newPayment(orderID, enums.PaymentMethodCOD)
	require.NoError(t, repo.Create(ctx, pending))
	require.NoError(t, repo.Create(ctx, settled))
	require.NoError(t, repo.Settle(ctx, settled.ID, Settlement{Status: enums.PaymentStatusPaid, ProcessedAt: time.Now().UTC()}))

	n, err := repo.FailPendingForOrder(ctx, orderID, ReasonOrderCanceled, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err := repo.ListByOrder(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	statuses := map[uuid.UUID]enums.PaymentStatus{}
	for _, row := range rows {
		statuses[row.ID] = row.Status
	}
	assert.Equal(t, enums.PaymentStatusFailed, statuses[pending.ID])
	assert.Equal(t, enums.PaymentStatusPaid, statuses[settled.ID])
}

func TestRepositoryRecordIntentAndLookups(t *testing.T) {
	db := testdb.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()
	orderID := seedOrderRow(t, db)

	payment := newPayment(orderID, enums.PaymentMethodGatewayB)
	require.NoError(t, repo.Create(ctx, payment))

	redirect := "https://pay.test/x"
	require.NoError(t, repo.RecordIntent(ctx, payment.ID, nil, &redirect, []byte(`{"payUrl":"https://pay.test/x"}`)))

	locked, err := repo.FindPendingForUpdate(ctx, orderID, enums.PaymentMethodGatewayB)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, locked.ID)
	require.NotNil(t, locked.RedirectURL)
	assert.Equal(t, redirect, *locked.RedirectURL)

	_, err = repo.FindPendingForUpdate(ctx, orderID, enums.PaymentMethodCOD)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = repo.FindByTransactionIDForUpdate(ctx, "TXN-missing")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	dup := newPayment(orderID, enums.PaymentMethodGatewayB)
	dup.TransactionID = payment.TransactionID
	assert.True(t, pkgerrors.IsCode(repo.Create(ctx, dup), pkgerrors.CodeConflict))
}
