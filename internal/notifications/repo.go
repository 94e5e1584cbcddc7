package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/pagination"
)

// Repository persists in-app notifications.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// pageQuery selects one keyset page of a user's notifications.
type pageQuery struct {
	UserID     uuid.UUID
	Size       int
	Cursor     *pagination.Cursor
	UnreadOnly bool
}

func (r *Repository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(n).Error
}

// Page returns notifications newest first plus the cursor for the following
// page, nil on the last one.
func (r *Repository) Page(ctx context.Context, q pageQuery) ([]models.Notification, *pagination.Cursor, error) {
	size := pagination.NormalizeLimit(q.Size)
	tx := r.db.WithContext(ctx).Where("user_id = ?", q.UserID)
	if q.UnreadOnly {
		tx = tx.Where("read_at IS NULL")
	}

	var rows []models.Notification
	err := q.Cursor.After(tx).
		Order("created_at DESC, id DESC").
		Limit(size + 1).
		Find(&rows).Error
	if err != nil {
		return nil, nil, err
	}
	page, next := pagination.Split(rows, size, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	return page, next, nil
}

// Get loads one notification owned by userID. Missing rows come back as nil.
func (r *Repository) Get(ctx context.Context, userID, id uuid.UUID) (*models.Notification, error) {
	var n models.Notification
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Take(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// MarkRead stamps read_at on unread rows of userID. An empty ids slice marks
// all of them.
func (r *Repository) MarkRead(ctx context.Context, userID uuid.UUID, at time.Time, ids ...uuid.UUID) (int64, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID)
	if len(ids) > 0 {
		tx = tx.Where("id IN ?", ids)
	}
	res := tx.UpdateColumn("read_at", at)
	return res.RowsAffected, res.Error
}

// DeleteReadBefore drops notifications read before cutoff. Unread rows are
// kept regardless of age.
func (r *Repository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("read_at IS NOT NULL AND read_at < ?", cutoff).
		Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}
