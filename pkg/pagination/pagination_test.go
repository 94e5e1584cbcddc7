package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, DefaultLimit, Params{Limit: -4}.PageSize())
	require.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+1))
	require.Equal(t, 7, NormalizeLimit(7))
}

func TestCursorRoundTripIsURLSafe(t *testing.T) {
	want := Cursor{CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 123, time.UTC), ID: uuid.New()}
	encoded := want.Encode()
	require.NotContains(t, encoded, "+")
	require.NotContains(t, encoded, "/")
	require.NotContains(t, encoded, "=")

	got, err := ParseCursor(encoded)
	require.NoError(t, err)
	require.True(t, want.CreatedAt.Equal(got.CreatedAt))
	require.Equal(t, want.ID, got.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	c, err := ParseCursor("  ")
	require.NoError(t, err)
	require.Nil(t, c)

	for _, raw := range []string{"not-a-cursor!", "e30"} {
		_, err := ParseCursor(raw)
		require.Error(t, err, raw)
	}
}

func TestSplit(t *testing.T) {
	type row struct {
		at time.Time
		id uuid.UUID
	}
	base := time.Now().UTC()
	rows := []row{{base, uuid.New()}, {base.Add(-time.Second), uuid.New()}, {base.Add(-2 * time.Second), uuid.New()}}
	position := func(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

	page, next := Split(rows, 2, position)
	require.Len(t, page, 2)
	require.NotNil(t, next)
	require.Equal(t, rows[1].id, next.ID)

	page, next = Split(rows, 3, position)
	require.Len(t, page, 3)
	require.Nil(t, next)
}
