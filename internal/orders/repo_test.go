package orders

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/db/testdb"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/pagination"
)

func TestCreateAndFindByTrackingNumber(t *testing.T) {
	db := testdb.Open(t)
	repo := NewRepository(db)
	order := seedOrder(t, db, orderSeed{items: []models.OrderItem{item(uuid.New(), "", 2)}})

	found, err := repo.FindByTrackingNumber(context.Background(), order.TrackingNumber)
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)
	require.Len(t, found.Items, 1)
	assert.Equal(t, 2, found.Items[0].Quantity)
	assert.Equal(t, "10.00", found.Items[0].LineTotal.StringFixed(2))
	assert.Equal(t, "36.00", found.Total.StringFixed(2))

	_, err = repo.FindByTrackingNumber(context.Background(), "ORD-19700101-00000000")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCreateRejectsDuplicateTrackingNumber(t *testing.T) {
	db := testdb.Open(t)
	repo := NewRepository(db)
	first := seedOrder(t, db, orderSeed{})

	dup := *first
	dup.ID = uuid.Nil
	dup.Items = nil
	err := repo.Create(context.Background(), &dup)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestListFiltersAndPaginates(t *testing.T) {
	db := testdb.Open(t)
	repo := NewRepository(db)
	user := uuid.New()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	var mine []*models.Order
	for i := 0; i < 5; i++ {
		mine = append(mine, seedOrder(t, db, orderSeed{userID: user, createdAt: base.Add(time.Duration(i) * time.Hour)}))
	}
	seedOrder(t, db, orderSeed{userID: user, status: enums.OrderStatusCanceled, createdAt: base.Add(10 * time.Hour)})
	seedOrder(t, db, orderSeed{createdAt: base.Add(11 * time.Hour)})

	pending := enums.OrderStatusPending
	ctx := context.Background()
	page, err := repo.List(ctx, ListParams{
		UserID:     &user,
		Filters:    ListFilters{Status: &pending},
		Pagination: pagination.Params{Limit: 2},
	})
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	assert.Equal(t, mine[4].ID, page.Orders[0].ID)
	assert.Equal(t, mine[3].ID, page.Orders[1].ID)
	require.NotEmpty(t, page.NextCursor)

	page, err = repo.List(ctx, ListParams{
		UserID:     &user,
		Filters:    ListFilters{Status: &pending},
		Pagination: pagination.Params{Limit: 2, Cursor: page.NextCursor},
	})
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	assert.Equal(t, mine[2].ID, page.Orders[0].ID)
	assert.Equal(t, mine[1].ID, page.Orders[1].ID)

	page, err = repo.List(ctx, ListParams{
		UserID:     &user,
		Filters:    ListFilters{Status: &pending},
		Pagination: pagination.Params{Limit: 2, Cursor: page.NextCursor},
	})
	require.NoError(t, err)
	require.Len(t, page.Orders, 1)
	assert.Equal(t, mine[0].ID, page.Orders[0].ID)
	assert.Empty(t, page.NextCursor)

	all, err := repo.List(ctx, ListParams{Pagination: pagination.Params{Limit: 50}})
	require.NoError(t, err)
	assert.Len(t, all.Orders, 7)
}

func TestListDateRange(t *testing.T) {
	db := testdb.Open(t)
	repo := NewRepository(db)
	user := uuid.New()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		seedOrder(t, db, orderSeed{userID: user, createdAt: base.AddDate(0, 0, i)})
	}

	from := base.AddDate(0, 0, 1)
	to := base.AddDate(0, 0, 2)
	page, err := repo.List(context.Background(), ListParams{
		UserID:  &user,
		Filters: ListFilters{DateFrom: &from, DateTo: &to},
	})
	require.NoError(t, err)
	assert.Len(t, page.Orders, 2)
}

func TestListPaymentStatusFilter(t *testing.T) {
	db := testdb.Open(t)
	repo := NewRepository(db)
	paid := enums.PaymentStatusPaid
	seedOrder(t, db, orderSeed{paymentStatus: enums.PaymentStatusPaid})
	seedOrder(t, db, orderSeed{})

	page, err := repo.List(context.Background(), ListParams{Filters: ListFilters{PaymentStatus: &paid}})
	require.NoError(t, err)
	require.Len(t, page.Orders, 1)
	assert.Equal(t, enums.PaymentStatusPaid, page.Orders[0].PaymentStatus)
}

func TestListRejectsBadCursor(t *testing.T) {
	db := testdb.Open(t)
	_, err := NewRepository(db).List(context.Background(), ListParams{Pagination: pagination.Params{Cursor: "not-a-cursor"}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestFindStalePending(t *testing.T) {
	db := testdb.Open(t)
	repo := NewRepository(db)
	now := time.Now().UTC()
	stale := seedOrder(t, db, orderSeed{createdAt: now.Add(-48 * time.Hour)})
	seedOrder(t, db, orderSeed{createdAt: now.Add(-48 * time.Hour), paymentStatus: enums.PaymentStatusPaid})
	seedOrder(t, db, orderSeed{createdAt: now.Add(-48 * time.Hour), status: enums.OrderStatusConfirmed})
	seedOrder(t, db, orderSeed{createdAt: now.Add(-time.Hour)})

	rows, err := repo.FindStalePending(context.Background(), now.Add(-24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, stale.ID, rows[0].ID)
}

func TestFindStalePendingHonorsLimit(t *testing.T) {
	db := testdb.Open(t)
	repo := NewRepository(db)
	now := time.Now().UTC()
	oldest := seedOrder(t, db, orderSeed{createdAt: now.Add(-72 * time.Hour)})
	next := seedOrder(t, db, orderSeed{createdAt: now.Add(-60 * time.Hour)})
	seedOrder(t, db, orderSeed{createdAt: now.Add(-48 * time.Hour)})

	rows, err := repo.FindStalePending(context.Background(), now.Add(-24*time.Hour), 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, oldest.ID, rows[0].ID)
	assert.Equal(t, next.ID, rows[1].ID)
}

func TestUpdatePaymentStatus(t *testing.T) {
	db := testdb.Open(t)
	repo := NewRepository(db)
	order := seedOrder(t, db, orderSeed{})

	require.NoError(t, repo.UpdatePaymentStatus(context.Background(), order.ID, enums.PaymentStatusPaid))
	reloaded, err := repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, reloaded.PaymentStatus)

	err = repo.UpdatePaymentStatus(context.Background(), uuid.New(), enums.PaymentStatusPaid)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestNewTrackingNumberFormat(t *testing.T) {
	tn := NewTrackingNumber(time.Date(2026, 10, 18, 23, 0, 0, 0, time.UTC))
	assert.True(t, strings.HasPrefix(tn, "ORD-20261018-"), tn)
	assert.Len(t, tn, len("ORD-20261018-")+8)
	assert.Equal(t, strings.ToUpper(tn), tn)
}

func TestToViewFormatsMoney(t *testing.T) {
	db := testdb.Open(t)
	order := seedOrder(t, db, orderSeed{items: []models.OrderItem{item(uuid.New(), "", 1)}})

	view := ToView(order)
	assert.Equal(t, "36.00", view.Total)
	assert.Equal(t, "25.00", view.Shipping)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "5.00", view.Items[0].UnitPrice)
}
