package main

import (
	"context"
	"math/rand"
	"time"
)

const (
	maxFailureDelay = 10 * time.Second
	jitterWindow    = 250 * time.Millisecond
)

// pollBackoff doubles the wait after each failed batch, capped at
// maxFailureDelay, and adds jitter so replicas do not poll in lockstep.
type pollBackoff struct {
	base    time.Duration
	current time.Duration
	rnd     *rand.Rand
}

func newPollBackoff(base time.Duration) *pollBackoff {
	return &pollBackoff{
		base:    base,
		current: base,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *pollBackoff) idle() time.Duration {
	return b.jitter(b.base)
}

func (b *pollBackoff) failure() time.Duration {
	b.current *= 2
	if b.current > maxFailureDelay {
		b.current = maxFailureDelay
	}
	return b.jitter(b.current)
}

func (b *pollBackoff) reset() {
	b.current = b.base
}

func (b *pollBackoff) jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(b.rnd.Int63n(int64(jitterWindow)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
