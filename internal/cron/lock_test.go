package cron

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type memoryRedis struct {
	values map[string]string
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *memoryRedis) LockKey(name string) string { return "ks:lock:" + name }

func TestRedisLockIsPerJob(t *testing.T) {
	store := &memoryRedis{values: map[string]string{}}
	first, err := NewRedisLock(store, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	second, _ := NewRedisLock(store, time.Minute)
	ctx := context.Background()

	if ok, _ := first.Acquire(ctx, "checkout_session_expiry"); !ok {
		t.Fatal("expected first worker to acquire")
	}
	if ok, _ := second.Acquire(ctx, "checkout_session_expiry"); ok {
		t.Fatal("expected second worker to be refused")
	}
	if ok, _ := second.Acquire(ctx, "outbox_retention"); !ok {
		t.Fatal("expected other job to be independent")
	}

	// A worker that does not own the job cannot release it.
	if err := second.Release(ctx, "checkout_session_expiry"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, ok := store.values["ks:lock:checkout_session_expiry"]; !ok {
		t.Fatal("lock released by non-owner")
	}

	if err := first.Release(ctx, "checkout_session_expiry"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if ok, _ := second.Acquire(ctx, "checkout_session_expiry"); !ok {
		t.Fatal("expected lock to be free after owner release")
	}
}

func TestRedisLockReleaseAfterExpiryIsNoop(t *testing.T) {
	store := &memoryRedis{values: map[string]string{}}
	lock, _ := NewRedisLock(store, time.Minute)
	ctx := context.Background()

	if ok, _ := lock.Acquire(ctx, "job"); !ok {
		t.Fatal("expected acquire")
	}
	delete(store.values, "ks:lock:job")
	if err := lock.Release(ctx, "job"); err != nil {
		t.Fatalf("expected nil error when key expired, got %v", err)
	}
}
