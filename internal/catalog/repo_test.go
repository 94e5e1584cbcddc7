package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/db/testdb"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
)

func TestGetProductsSkipsUnknownIDs(t *testing.T) {
	db := testdb.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	product := &models.Product{
		Name:     "Tee",
		Price:    decimal.RequireFromString("29.99"),
		IsActive: true,
		Sizes:    pq.StringArray{"S", "M"},
		Colors:   pq.StringArray{"Red"},
	}
	require.NoError(t, repo.Create(ctx, product))

	missing := uuid.New()
	got, err := repo.GetProducts(ctx, []uuid.UUID{product.ID, missing})
	require.NoError(t, err)
	require.Len(t, got, 1)
	loaded := got[product.ID]
	assert.Equal(t, "29.99", loaded.Price.StringFixed(2))
	assert.Equal(t, []string{"S", "M"}, []string(loaded.Sizes))
	_, ok := got[missing]
	assert.False(t, ok)

	empty, err := repo.GetProducts(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCheckVariant(t *testing.T) {
	product := models.Product{ID: uuid.New(), Sizes: pq.StringArray{"S", "M"}, Colors: pq.StringArray{"Red"}}

	require.NoError(t, CheckVariant(product, "", ""))
	require.NoError(t, CheckVariant(product, "m", "RED"))
	assert.True(t, pkgerrors.IsCode(CheckVariant(product, "XL", ""), pkgerrors.CodeValidation))
	assert.True(t, pkgerrors.IsCode(CheckVariant(product, "S", "Blue"), pkgerrors.CodeValidation))
	assert.True(t, pkgerrors.IsCode(CheckVariant(models.Product{}, "S", ""), pkgerrors.CodeValidation))
}
