package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], m.err
}

func (m *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key], m.ttls[key] = value.(string), ttl
	return m.err
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key], m.ttls[key] = value.(string), ttl
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return m.err
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "ks:idempotency:" + scope + ":" + id
}

func TestCheckAndMarkProcessedOnlyOnce(t *testing.T) {
	store := newMemoryStore()
	manager, err := NewManager(store, 72*time.Hour)
	require.NoError(t, err)
	manager.now = func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) }

	ctx := context.Background()
	eventID := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")
	key := "ks:idempotency:evt:processed:order-email:" + eventID.String()

	seen, err := manager.CheckAndMarkProcessed(ctx, "order-email", eventID)
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Equal(t, "2026-05-01T09:00:00Z", store.values[key])
	assert.Equal(t, 72*time.Hour, store.ttls[key])

	seen, err = manager.CheckAndMarkProcessed(ctx, "order-email", eventID)
	require.NoError(t, err)
	assert.True(t, seen)

	// another consumer has its own marks
	seen, err = manager.CheckAndMarkProcessed(ctx, "order-audit", eventID)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, manager.Delete(ctx, "order-email", eventID))
	seen, err = manager.CheckAndMarkProcessed(ctx, "order-email", eventID)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestCheckAndMarkProcessedPropagatesStoreErrors(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("redis down")
	manager, err := NewManager(store, time.Hour)
	require.NoError(t, err)

	_, err = manager.CheckAndMarkProcessed(context.Background(), "order-email", uuid.New())
	assert.ErrorIs(t, err, store.err)
}

func TestManagerValidation(t *testing.T) {
	_, err := NewManager(nil, time.Hour)
	assert.Error(t, err)
	_, err = NewManager(newMemoryStore(), -time.Second)
	assert.Error(t, err)

	manager, err := NewManager(newMemoryStore(), time.Hour)
	require.NoError(t, err)
	_, err = manager.CheckAndMarkProcessed(context.Background(), "", uuid.New())
	assert.ErrorIs(t, err, ErrNoConsumer)
	_, err = manager.CheckAndMarkProcessed(context.Background(), "order-email", uuid.Nil)
	assert.ErrorIs(t, err, ErrNoEventID)
	_, err = manager.Scope(" ")
	assert.ErrorIs(t, err, ErrNoConsumer)
}

func TestScopeMarksProviderEventIDs(t *testing.T) {
	store := newMemoryStore()
	manager, _ := NewManager(store, time.Hour)
	guard, err := manager.Scope("stripe-webhook")
	require.NoError(t, err)
	ctx := context.Background()

	seen, err := guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)
	seen, _ = guard.CheckAndMark(ctx, "evt_1")
	assert.True(t, seen)

	require.NoError(t, guard.Delete(ctx, "evt_1"))
	seen, _ = guard.CheckAndMark(ctx, "evt_1")
	assert.False(t, seen)

	_, err = guard.CheckAndMark(ctx, "")
	assert.ErrorIs(t, err, ErrNoEventID)
}
