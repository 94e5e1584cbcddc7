package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/pagination"
)

type fakeStore struct {
	rows    []models.Notification
	next    *pagination.Cursor
	err     error
	lastQ   pageQuery
	marked  [][]uuid.UUID
	updated int64
}

func (f *fakeStore) Page(_ context.Context, q pageQuery) ([]models.Notification, *pagination.Cursor, error) {
	f.lastQ = q
	return f.rows, f.next, f.err
}

func (f *fakeStore) Get(_ context.Context, userID, id uuid.UUID) (*models.Notification, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.rows {
		if f.rows[i].ID == id && f.rows[i].UserID == userID {
			return &f.rows[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) MarkRead(_ context.Context, _ uuid.UUID, _ time.Time, ids ...uuid.UUID) (int64, error) {
	f.marked = append(f.marked, ids)
	return f.updated, f.err
}

func newTestService(t *testing.T, store *fakeStore) Service {
	t.Helper()
	svc, err := NewService(store)
	require.NoError(t, err)
	return svc
}

func TestServiceListEncodesNextCursor(t *testing.T) {
	last := models.Notification{ID: uuid.New(), CreatedAt: time.Now().UTC()}
	store := &fakeStore{
		rows: []models.Notification{last},
		next: &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID},
	}
	svc := newTestService(t, store)

	result, err := svc.List(context.Background(), ListParams{UserID: uuid.New(), Limit: 1, UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, 1, store.lastQ.Size)
	assert.True(t, store.lastQ.UnreadOnly)
	assert.Nil(t, store.lastQ.Cursor)

	decoded, err := pagination.ParseCursor(result.Cursor)
	require.NoError(t, err)
	assert.Equal(t, last.ID, decoded.ID)

	_, err = svc.List(context.Background(), ListParams{UserID: uuid.New(), Cursor: result.Cursor})
	require.NoError(t, err)
	require.NotNil(t, store.lastQ.Cursor)
	assert.Equal(t, last.ID, store.lastQ.Cursor.ID)
}

func TestServiceListValidation(t *testing.T) {
	svc := newTestService(t, &fakeStore{})

	_, err := svc.List(context.Background(), ListParams{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.List(context.Background(), ListParams{UserID: uuid.New(), Cursor: "%%%"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestServiceListWrapsStoreError(t *testing.T) {
	svc := newTestService(t, &fakeStore{err: errors.New("db down")})
	_, err := svc.List(context.Background(), ListParams{UserID: uuid.New()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestServiceMarkRead(t *testing.T) {
	userID := uuid.New()
	readAt := time.Now().UTC()
	unread := models.Notification{ID: uuid.New(), UserID: userID}
	read := models.Notification{ID: uuid.New(), UserID: userID, ReadAt: &readAt}
	store := &fakeStore{rows: []models.Notification{unread, read}, updated: 1}
	svc := newTestService(t, store)
	ctx := context.Background()

	require.NoError(t, svc.MarkRead(ctx, userID, unread.ID))
	require.Len(t, store.marked, 1)
	assert.Equal(t, []uuid.UUID{unread.ID}, store.marked[0])

	require.NoError(t, svc.MarkRead(ctx, userID, read.ID))
	assert.Len(t, store.marked, 1, "already-read notification should not be written")

	err := svc.MarkRead(ctx, uuid.New(), unread.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	err = svc.MarkRead(ctx, userID, uuid.Nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestServiceMarkAllRead(t *testing.T) {
	store := &fakeStore{updated: 3}
	svc := newTestService(t, store)

	count, err := svc.MarkAllRead(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
	require.Len(t, store.marked, 1)
	assert.Empty(t, store.marked[0])

	store.err = errors.New("boom")
	_, err = svc.MarkAllRead(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}
