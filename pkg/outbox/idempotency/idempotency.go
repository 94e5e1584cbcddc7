// Package idempotency lets at-least-once consumers skip deliveries they have
// already handled. Claims are Redis SETNX keys scoped per consumer; dropping a
// claim after a failed attempt lets the redelivery run again.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Scope tracks the deliveries of one consumer, such as the notification
// worker or the payment callback endpoint.
type Scope struct {
	store Store
	name  string
	ttl   time.Duration
}

// NewScope builds a scope whose claims expire after ttl. A zero ttl keeps
// claims forever.
func NewScope(store Store, name string, ttl time.Duration) (*Scope, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case strings.TrimSpace(name) == "":
		return nil, errors.New("scope name is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	}
	return &Scope{store: store, name: strings.TrimSpace(name), ttl: ttl}, nil
}

func (s *Scope) Name() string { return s.name }

// Key is the Redis key holding the claim for id.
func (s *Scope) Key(id string) string {
	return s.store.IdempotencyKey("processed:"+s.name, id)
}

// CheckAndMark claims id. It returns true when id was claimed before, in
// which case the caller should skip the delivery.
func (s *Scope) CheckAndMark(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, errors.New("delivery id is required")
	}
	won, err := s.store.SetNX(ctx, s.Key(id), time.Now().UTC().Format(time.RFC3339), s.ttl)
	if err != nil {
		return false, fmt.Errorf("claim %s/%s: %w", s.name, id, err)
	}
	return !won, nil
}

// Delete drops the claim on id so a retry is processed again.
func (s *Scope) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("delivery id is required")
	}
	return s.store.Del(ctx, s.Key(id))
}
