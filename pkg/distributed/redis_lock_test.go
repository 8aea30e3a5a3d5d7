package distributed

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisClient(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // 테스트용 DB
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available:", err)
	}

	// 테스트 전 DB 초기화
	client.FlushDB(ctx)

	return client
}

func TestRedisLock_AcquireAndRelease(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	manager := NewRedisLockManager(client)
	ctx := context.Background()

	lock, err := manager.AcquireLock(ctx, "matchmaking:lock:1v1-ranked", "instance-1", 5*time.Second)
	require.NoError(t, err)

	held, err := lock.IsHeld(ctx)
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, lock.Release(ctx))

	held, err = lock.IsHeld(ctx)
	require.NoError(t, err)
	assert.False(t, held)
}

func TestRedisLock_Contention(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	manager := NewRedisLockManager(client)
	ctx := context.Background()

	lock, err := manager.AcquireLock(ctx, "matchmaking:lock:1v1-ranked", "instance-1", 5*time.Second)
	require.NoError(t, err)
	defer lock.Release(ctx)

	// 다른 인스턴스는 같은 락을 못 잡는다
	_, err = manager.AcquireLock(ctx, "matchmaking:lock:1v1-ranked", "instance-2", 5*time.Second)
	assert.ErrorIs(t, err, ErrLockNotAcquired)
}

func TestRedisLock_ReleaseOnlyOwn(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	manager := NewRedisLockManager(client)
	ctx := context.Background()

	lock, err := manager.AcquireLock(ctx, "test:lock", "instance-1", 5*time.Second)
	require.NoError(t, err)

	// 소유자가 바뀐 락은 해제할 수 없다 (TTL 만료 후 재획득 시나리오)
	require.NoError(t, client.Set(ctx, "test:lock", "instance-2", 5*time.Second).Err())

	assert.ErrorIs(t, lock.Release(ctx), ErrLockNotHeld)
}

func TestRedisLock_Extend(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	manager := NewRedisLockManager(client)
	ctx := context.Background()

	lock, err := manager.AcquireLock(ctx, "test:lock", "instance-1", time.Second)
	require.NoError(t, err)
	defer lock.Release(ctx)

	require.NoError(t, lock.Extend(ctx, 10*time.Second))

	ttl, err := client.TTL(ctx, "test:lock").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 5*time.Second)
}

func TestRedisLock_TryLockWithRetry(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	manager := NewRedisLockManager(client)
	ctx := context.Background()

	// 짧은 TTL 락을 잡아두면 재시도 중에 풀린다
	first, err := manager.AcquireLock(ctx, "test:lock", "instance-1", 200*time.Millisecond)
	require.NoError(t, err)
	_ = first

	lock, err := manager.TryLockWithRetry(ctx, "test:lock", "instance-2",
		5*time.Second, 10, 100*time.Millisecond)
	require.NoError(t, err)
	defer lock.Release(ctx)

	held, err := lock.IsHeld(ctx)
	require.NoError(t, err)
	assert.True(t, held)
}
