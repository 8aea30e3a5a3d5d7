package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RoomCache 매치별 Room 스냅샷 저장소.
// 프로세스 재시작/수평 확장 시 durable store와 함께 Room 복원에 쓰인다.
type RoomCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRoomCache(client *redis.Client, ttl time.Duration) *RoomCache {
	return &RoomCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *RoomCache) key(matchID string) string {
	return fmt.Sprintf("room:%s", matchID)
}

// Save 스냅샷 저장 (TTL 갱신)
func (c *RoomCache) Save(ctx context.Context, matchID string, snapshot interface{}) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal room snapshot: %w", err)
	}

	if err := c.client.Set(ctx, c.key(matchID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save room snapshot: %w", err)
	}

	return nil
}

// Load 스냅샷 조회. 없으면 (false, nil).
func (c *RoomCache) Load(ctx context.Context, matchID string, out interface{}) (bool, error) {
	data, err := c.client.Get(ctx, c.key(matchID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load room snapshot: %w", err)
	}

	if err := json.Unmarshal([]byte(data), out); err != nil {
		return false, fmt.Errorf("failed to unmarshal room snapshot: %w", err)
	}

	return true, nil
}

// Delete 매치 종료 시 스냅샷 제거
func (c *RoomCache) Delete(ctx context.Context, matchID string) error {
	return c.client.Del(ctx, c.key(matchID)).Err()
}
