package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

type recordingPruner struct {
	cutoffs []time.Time
	deleted int64
	err     error
}

func (p *recordingPruner) prune(_ context.Context, cutoff time.Time) (int64, error) {
	p.cutoffs = append(p.cutoffs, cutoff)
	return p.deleted, p.err
}

func newRetentionJob(t *testing.T, targets ...RetentionTarget) *retentionJob {
	t.Helper()
	job, err := NewRetentionJob(RetentionJobParams{
		Name:    "retention",
		Logger:  logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Targets: targets,
	})
	require.NoError(t, err)
	return job.(*retentionJob)
}

func TestRetentionJobUsesPerTargetCutoff(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	events := &recordingPruner{deleted: 3}
	dlq := &recordingPruner{}
	job := newRetentionJob(t,
		RetentionTarget{Table: "outbox_events", Keep: 48 * time.Hour, Prune: events.prune},
		RetentionTarget{Table: "outbox_dlq", Keep: 90 * 24 * time.Hour, Prune: dlq.prune},
	)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, events.cutoffs, 1)
	require.Len(t, dlq.cutoffs, 1)
	assert.Equal(t, now.Add(-48*time.Hour), events.cutoffs[0])
	assert.Equal(t, now.Add(-90*24*time.Hour), dlq.cutoffs[0])
	assert.Equal(t, "retention", job.Name())
}

func TestRetentionJobContinuesPastFailures(t *testing.T) {
	boom := errors.New("boom")
	broken := &recordingPruner{err: boom}
	healthy := &recordingPruner{}
	job := newRetentionJob(t,
		RetentionTarget{Table: "notifications", Keep: time.Hour, Prune: broken.prune},
		RetentionTarget{Table: "outbox_events", Keep: time.Hour, Prune: healthy.prune},
	)

	err := job.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "prune notifications")
	assert.Len(t, healthy.cutoffs, 1)
}

func TestNewRetentionJobValidates(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	noop := func(context.Context, time.Time) (int64, error) { return 0, nil }

	cases := map[string]RetentionJobParams{
		"name":    {Logger: logg, Targets: []RetentionTarget{{Table: "t", Keep: time.Hour, Prune: noop}}},
		"logger":  {Name: "r", Targets: []RetentionTarget{{Table: "t", Keep: time.Hour, Prune: noop}}},
		"targets": {Name: "r", Logger: logg},
		"prune":   {Name: "r", Logger: logg, Targets: []RetentionTarget{{Table: "t", Keep: time.Hour}}},
		"keep":    {Name: "r", Logger: logg, Targets: []RetentionTarget{{Table: "t", Prune: noop}}},
	}
	for name, params := range cases {
		_, err := NewRetentionJob(params)
		assert.Error(t, err, name)
	}
}
