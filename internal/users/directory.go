// Package users reads recipients from the users table. The identity service
// owns the rows; nothing here writes them.
package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
)

type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// Active loads an active user. Missing and deactivated users both come back
// as CodeNotFound so callers can drop work addressed to them.
func (d *Directory) Active(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", id, true).
		Take(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "recipient not found").
			WithDetails(map[string]any{"user_id": id.String()})
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load recipient")
	}
	return &user, nil
}
