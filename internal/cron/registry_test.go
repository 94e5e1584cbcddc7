package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type namedJob string

func (n namedJob) Name() string              { return string(n) }
func (n namedJob) Run(context.Context) error { return nil }

func TestRegistryEverySkipsInvalidEntries(t *testing.T) {
	registry := NewRegistry().
		Every(time.Minute, namedJob("order_ttl")).
		Every(0, namedJob("never")).
		Every(time.Hour, nil).
		Every(24*time.Hour, namedJob("outbox_retention"))

	assert.Equal(t, []string{"order_ttl", "outbox_retention"}, registry.Names())
}

func TestRegistryDueHonorsNextRun(t *testing.T) {
	registry := NewRegistry().
		Every(time.Minute, namedJob("fast")).
		Every(time.Hour, namedJob("slow"))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Len(t, registry.due(now), 2)

	registry.entries[0].next = now.Add(time.Minute)
	registry.entries[1].next = now.Add(time.Hour)
	assert.Empty(t, registry.due(now.Add(30*time.Second)))

	due := registry.due(now.Add(time.Minute))
	if assert.Len(t, due, 1) {
		assert.Equal(t, "fast", due[0].job.Name())
	}
}
