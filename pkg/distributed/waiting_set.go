package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/battle-arena/arena-backend/internal/models"
)

// WaitingSet 모드별 매칭 대기열.
// Sorted Set(member=playerID, score=join 시각 ms)이 FIFO 순서를,
// Hash(playerID -> entry JSON)가 엔트리 본문을 가진다.
type WaitingSet struct {
	client    *redis.Client
	keyPrefix string
}

func NewWaitingSet(client *redis.Client) *WaitingSet {
	return &WaitingSet{
		client:    client,
		keyPrefix: "matchmaking",
	}
}

func (w *WaitingSet) zsetKey(mode models.GameMode) string {
	return fmt.Sprintf("%s:%s:waiting", w.keyPrefix, mode)
}

func (w *WaitingSet) hashKey(mode models.GameMode) string {
	return fmt.Sprintf("%s:%s:entries", w.keyPrefix, mode)
}

// Add 대기열에 추가. 같은 플레이어의 재가입은 엔트리를 덮어쓴다.
func (w *WaitingSet) Add(ctx context.Context, entry models.QueueEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal queue entry: %w", err)
	}

	pipe := w.client.TxPipeline()
	pipe.ZAdd(ctx, w.zsetKey(entry.Mode), redis.Z{
		Score:  float64(entry.JoinedAt.UnixMilli()),
		Member: entry.PlayerID,
	})
	pipe.HSet(ctx, w.hashKey(entry.Mode), entry.PlayerID, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add to waiting set: %w", err)
	}

	return nil
}

// Remove 대기열에서 제거. 제거 여부를 반환한다.
func (w *WaitingSet) Remove(ctx context.Context, mode models.GameMode, playerID string) (bool, error) {
	pipe := w.client.TxPipeline()
	zrem := pipe.ZRem(ctx, w.zsetKey(mode), playerID)
	pipe.HDel(ctx, w.hashKey(mode), playerID)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to remove from waiting set: %w", err)
	}

	return zrem.Val() > 0, nil
}

// RemoveBatch 매칭된 플레이어들을 원자적으로 제거한다.
// 매칭 루프가 같은 엔트리를 두 번 쓰는 것을 막는 지점.
func (w *WaitingSet) RemoveBatch(ctx context.Context, mode models.GameMode, playerIDs []string) error {
	if len(playerIDs) == 0 {
		return nil
	}

	members := make([]interface{}, len(playerIDs))
	for i, id := range playerIDs {
		members[i] = id
	}

	pipe := w.client.TxPipeline()
	pipe.ZRem(ctx, w.zsetKey(mode), members...)
	pipe.HDel(ctx, w.hashKey(mode), playerIDs...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove batch: %w", err)
	}

	return nil
}

// List join 시각 순으로 전체 엔트리 조회
func (w *WaitingSet) List(ctx context.Context, mode models.GameMode) ([]models.QueueEntry, error) {
	ids, err := w.client.ZRange(ctx, w.zsetKey(mode), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting set: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	raw, err := w.client.HMGet(ctx, w.hashKey(mode), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load queue entries: %w", err)
	}

	entries := make([]models.QueueEntry, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			// ZSet과 Hash 사이의 일시적 불일치는 건너뛴다
			continue
		}
		var entry models.QueueEntry
		if err := json.Unmarshal([]byte(s), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// Count 대기 인원
func (w *WaitingSet) Count(ctx context.Context, mode models.GameMode) (int64, error) {
	return w.client.ZCard(ctx, w.zsetKey(mode)).Result()
}

// ExpireBefore 오래된 엔트리 정리
func (w *WaitingSet) ExpireBefore(ctx context.Context, mode models.GameMode, cutoff time.Time) (int64, error) {
	max := fmt.Sprintf("%d", cutoff.UnixMilli())

	ids, err := w.client.ZRangeByScore(ctx, w.zsetKey(mode), &redis.ZRangeBy{
		Min: "-inf",
		Max: max,
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := w.RemoveBatch(ctx, mode, ids); err != nil {
		return 0, err
	}

	return int64(len(ids)), nil
}
