package cron

import (
	"context"
	"time"
)

// Job is one unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type entry struct {
	job   Job
	every time.Duration
	next  time.Time
}

// Registry pairs each job with its cadence. A job is due immediately after
// registration, then every `every` after each run.
type Registry struct {
	entries []*entry
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Every schedules job to run at the given cadence. Nil jobs and non-positive
// cadences are ignored.
func (r *Registry) Every(every time.Duration, job Job) *Registry {
	if job == nil || every <= 0 {
		return r
	}
	r.entries = append(r.entries, &entry{job: job, every: every})
	return r
}

// Names lists registered jobs in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		names = append(names, e.job.Name())
	}
	return names
}

func (r *Registry) due(now time.Time) []*entry {
	var out []*entry
	for _, e := range r.entries {
		if !now.Before(e.next) {
			out = append(out, e)
		}
	}
	return out
}
