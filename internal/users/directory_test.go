package users

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/db/testdb"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
)

func TestDirectoryActive(t *testing.T) {
	db := testdb.Open(t)
	ctx := context.Background()

	active := models.User{ID: uuid.New(), Email: "ana@example.com", DisplayName: "Ana", Role: enums.UserRoleCustomer, IsActive: true}
	gone := models.User{ID: uuid.New(), Email: "leo@example.com", DisplayName: "Leo", Role: enums.UserRoleCustomer, IsActive: true}
	require.NoError(t, db.Create(&active).Error)
	require.NoError(t, db.Create(&gone).Error)
	// is_active has a column default, so false has to be written explicitly.
	require.NoError(t, db.Model(&gone).Update("is_active", false).Error)

	dir := NewDirectory(db)

	got, err := dir.Active(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.DisplayName)

	_, err = dir.Active(ctx, gone.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = dir.Active(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
