// Package catalog is the read side of the product catalog that order creation
// prices and validates against.
package catalog

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
)

// Reader loads products by id.
type Reader interface {
	GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

// Repository is the gorm-backed Reader.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the catalog to db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetProducts returns the requested products keyed by id. Unknown ids are
// simply absent from the map.
func (r *Repository) GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// Create inserts a product. Used by seed tooling and tests.
func (r *Repository) Create(ctx context.Context, product *models.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert product")
	}
	return nil
}

// CheckVariant verifies that a chosen size and color, when given, are among
// the product's declared options.
func CheckVariant(product models.Product, size, color string) error {
	if size = strings.TrimSpace(size); size != "" && !containsFold(product.Sizes, size) {
		return pkgerrors.New(pkgerrors.CodeValidation, "size not available for product").
			WithDetails(map[string]any{"product_id": product.ID.String(), "size": size})
	}
	if color = strings.TrimSpace(color); color != "" && !containsFold(product.Colors, color) {
		return pkgerrors.New(pkgerrors.CodeValidation, "color not available for product").
			WithDetails(map[string]any{"product_id": product.ID.String(), "color": color})
	}
	return nil
}

func containsFold(options []string, value string) bool {
	for _, option := range options {
		if strings.EqualFold(strings.TrimSpace(option), value) {
			return true
		}
	}
	return false
}
