// Package idempotency remembers which deliveries a consumer has already
// handled. Pub/Sub and the payment provider both deliver at least once, so
// every consumer checks here before producing side effects.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/kiggyshop-backend/pkg/redis"
)

var (
	ErrNoConsumer = errors.New("idempotency: consumer name is required")
	ErrNoEventID  = errors.New("idempotency: event id is required")
)

// Manager marks (consumer, event) pairs as processed for ttl. A ttl of zero
// keeps marks forever.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	now   func() time.Time
}

func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency: store is required")
	}
	if ttl < 0 {
		return nil, fmt.Errorf("idempotency: negative ttl %s", ttl)
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// CheckAndMarkProcessed returns true when eventID was already marked for
// consumer. Otherwise it marks it and returns false; the caller owns the
// event and must Delete the mark if handling fails.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	if eventID == uuid.Nil {
		return false, ErrNoEventID
	}
	return m.mark(ctx, consumer, eventID.String())
}

func (m *Manager) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	if eventID == uuid.Nil {
		return ErrNoEventID
	}
	return m.unmark(ctx, consumer, eventID.String())
}

// Scope binds the manager to one consumer whose event ids are opaque
// strings, such as provider webhook ids.
func (m *Manager) Scope(consumer string) (*Scope, error) {
	if strings.TrimSpace(consumer) == "" {
		return nil, ErrNoConsumer
	}
	return &Scope{manager: m, consumer: consumer}, nil
}

func (m *Manager) mark(ctx context.Context, consumer, id string) (bool, error) {
	key, err := m.key(consumer, id)
	if err != nil {
		return false, err
	}
	created, err := m.store.SetNX(ctx, key, m.now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return false, fmt.Errorf("mark %s: %w", key, err)
	}
	return !created, nil
}

func (m *Manager) unmark(ctx context.Context, consumer, id string) error {
	key, err := m.key(consumer, id)
	if err != nil {
		return err
	}
	if err := m.store.Del(ctx, key); err != nil {
		return fmt.Errorf("unmark %s: %w", key, err)
	}
	return nil
}

// keys: ks:idempotency:evt:processed:<consumer>:<id>
func (m *Manager) key(consumer, id string) (string, error) {
	switch {
	case strings.TrimSpace(consumer) == "":
		return "", ErrNoConsumer
	case strings.TrimSpace(id) == "":
		return "", ErrNoEventID
	}
	return m.store.IdempotencyKey("evt:processed:"+consumer, id), nil
}

// Scope is a Manager view for a single consumer.
type Scope struct {
	manager  *Manager
	consumer string
}

// CheckAndMark reports whether id was already seen, marking it otherwise.
func (s *Scope) CheckAndMark(ctx context.Context, id string) (bool, error) {
	return s.manager.mark(ctx, s.consumer, id)
}

func (s *Scope) Delete(ctx context.Context, id string) error {
	return s.manager.unmark(ctx, s.consumer, id)
}
