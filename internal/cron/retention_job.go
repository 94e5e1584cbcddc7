package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/settlement-engine/pkg/logger"
)

// PruneFunc deletes rows older than cutoff and reports how many went.
type PruneFunc func(ctx context.Context, cutoff time.Time) (int64, error)

// RetentionTarget is one table the retention job keeps trimmed.
type RetentionTarget struct {
	Table string
	Keep  time.Duration
	Prune PruneFunc
}

type RetentionJobParams struct {
	Name    string
	Logger  *logger.Logger
	Targets []RetentionTarget
}

type retentionJob struct {
	name    string
	logg    *logger.Logger
	targets []RetentionTarget
	now     func() time.Time
}

// NewRetentionJob builds a job that prunes each target on every run.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	if params.Name == "" {
		return nil, errors.New("job name required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if len(params.Targets) == 0 {
		return nil, errors.New("at least one retention target required")
	}
	for _, t := range params.Targets {
		if t.Prune == nil {
			return nil, fmt.Errorf("%s: prune func required", t.Table)
		}
		if t.Keep <= 0 {
			return nil, fmt.Errorf("%s: retention must be positive", t.Table)
		}
	}
	return &retentionJob{
		name:    params.Name,
		logg:    params.Logger,
		targets: params.Targets,
		now:     time.Now,
	}, nil
}

func (j *retentionJob) Name() string { return j.name }

// Run prunes every target even when an earlier one fails; the failures are
// joined into the returned error.
func (j *retentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var errs error
	for _, t := range j.targets {
		cutoff := now.Add(-t.Keep)
		deleted, err := t.Prune(ctx, cutoff)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("prune %s: %w", t.Table, err))
			continue
		}
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"table":        t.Table,
			"cutoff":       cutoff,
			"rows_deleted": deleted,
		}), "retention.pruned")
	}
	return errs
}
