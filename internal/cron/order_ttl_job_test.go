package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

type fakeStaleReader struct {
	pending    []models.Order
	lastCutoff time.Time
	calls      int
}

func (f *fakeStaleReader) FindStalePending(_ context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	f.calls++
	f.lastCutoff = cutoff
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

// fakeExpirer removes expired orders from the reader, like the real cancel does.
type fakeExpirer struct {
	reader *fakeStaleReader
	fail   map[uuid.UUID]error
	calls  []uuid.UUID
}

func (f *fakeExpirer) ExpireOrder(_ context.Context, orderID uuid.UUID, _ time.Duration) (bool, error) {
	f.calls = append(f.calls, orderID)
	if err := f.fail[orderID]; err != nil {
		return false, err
	}
	kept := f.reader.pending[:0]
	for _, order := range f.reader.pending {
		if order.ID != orderID {
			kept = append(kept, order)
		}
	}
	f.reader.pending = kept
	return true, nil
}

func staleOrders(n int) []models.Order {
	out := make([]models.Order, n)
	for i := range out {
		out[i] = models.Order{ID: uuid.New()}
	}
	return out
}

func newOrderTTLJob(t *testing.T, reader *fakeStaleReader, expirer *fakeExpirer, batch int) *orderTTLJob {
	t.Helper()
	jobIface, err := NewOrderTTLJob(OrderTTLJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Orders:    reader,
		Expirer:   expirer,
		TTL:       24 * time.Hour,
		BatchSize: batch,
	})
	if err != nil {
		t.Fatalf("NewOrderTTLJob: %v", err)
	}
	return jobIface.(*orderTTLJob)
}

func TestOrderTTLJobExpiresAcrossBatches(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reader := &fakeStaleReader{pending: staleOrders(5)}
	expirer := &fakeExpirer{reader: reader}
	job := newOrderTTLJob(t, reader, expirer, 2)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(expirer.calls) != 5 {
		t.Fatalf("expected 5 expirations, got %d", len(expirer.calls))
	}
	if !reader.lastCutoff.Equal(now.Add(-24 * time.Hour)) {
		t.Fatalf("unexpected cutoff %s", reader.lastCutoff)
	}
	if len(reader.pending) != 0 {
		t.Fatalf("expected no pending orders left, got %d", len(reader.pending))
	}
}

func TestOrderTTLJobCombinesFailures(t *testing.T) {
	orders := staleOrders(3)
	reader := &fakeStaleReader{pending: orders}
	expirer := &fakeExpirer{reader: reader, fail: map[uuid.UUID]error{
		orders[0].ID: errors.New("lock timeout"),
		orders[2].ID: errors.New("deadlock"),
	}}
	job := newOrderTTLJob(t, reader, expirer, 10)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected combined error")
	}
	if got := len(multierr.Errors(err)); got != 2 {
		t.Fatalf("expected 2 errors, got %d", got)
	}
	if len(expirer.calls) != 3 {
		t.Fatalf("expected every order attempted once, got %d", len(expirer.calls))
	}
}

func TestOrderTTLJobStopsWhenOnlyFailuresRemain(t *testing.T) {
	orders := staleOrders(2)
	reader := &fakeStaleReader{pending: orders}
	expirer := &fakeExpirer{reader: reader, fail: map[uuid.UUID]error{
		orders[0].ID: errors.New("boom"),
		orders[1].ID: errors.New("boom"),
	}}
	job := newOrderTTLJob(t, reader, expirer, 2)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(expirer.calls) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(expirer.calls))
	}
	if reader.calls != 2 {
		t.Fatalf("expected the second query to end the loop, got %d queries", reader.calls)
	}
}

func TestNewOrderTTLJobValidates(t *testing.T) {
	if _, err := NewOrderTTLJob(OrderTTLJobParams{}); err == nil {
		t.Fatal("expected error")
	}
}
