package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrQueueEmpty = errors.New("queue is empty")
	ErrQueueFull  = errors.New("queue is full")
)

// JobItem 채점 큐의 아이템. ID가 멱등성 키이며 Payload에 작업 본문이 담긴다.
type JobItem struct {
	ID         string          `json:"id"`
	Payload    json.RawMessage `json:"payload"`
	Retries    int             `json:"retries"`
	MaxRetries int             `json:"max_retries"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// RedisJobQueue Redis 기반 작업 큐.
// 대기열은 제출 시각 순 Sorted Set, 처리 중 아이템은 Hash, 실패 아이템은 DLQ(List).
// ID 멱등성은 별도 Set으로 보장한다.
type RedisJobQueue struct {
	client        *redis.Client
	queueKey      string
	processingKey string
	idSetKey      string
	dlqKey        string
	maxSize       int // 0 = 무제한
}

func NewRedisJobQueue(client *redis.Client, queueName string, maxSize int) *RedisJobQueue {
	return &RedisJobQueue{
		client:        client,
		queueKey:      fmt.Sprintf("queue:%s", queueName),
		processingKey: fmt.Sprintf("queue:%s:processing", queueName),
		idSetKey:      fmt.Sprintf("queue:%s:ids", queueName),
		dlqKey:        fmt.Sprintf("queue:%s:dlq", queueName),
		maxSize:       maxSize,
	}
}

// Enqueue 큐에 아이템 추가. 같은 ID가 대기/처리 중이면 false를 반환한다.
func (q *RedisJobQueue) Enqueue(ctx context.Context, item *JobItem) (bool, error) {
	if q.maxSize > 0 {
		size, err := q.client.ZCard(ctx, q.queueKey).Result()
		if err != nil {
			return false, fmt.Errorf("failed to get queue size: %w", err)
		}

		if int(size) >= q.maxSize {
			return false, ErrQueueFull
		}
	}

	// 멱등성: ID Set에 먼저 등록, 이미 있으면 중복 제출
	added, err := q.client.SAdd(ctx, q.idSetKey, item.ID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to register job id: %w", err)
	}
	if added == 0 {
		return false, nil
	}

	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	data, err := json.Marshal(item)
	if err != nil {
		return false, fmt.Errorf("failed to marshal item: %w", err)
	}

	// 제출 시각을 score로 사용 (FIFO)
	if err := q.client.ZAdd(ctx, q.queueKey, redis.Z{
		Score:  float64(item.CreatedAt.UnixMilli()),
		Member: data,
	}).Err(); err != nil {
		return false, fmt.Errorf("failed to enqueue: %w", err)
	}

	return true, nil
}

// Dequeue 가장 오래 기다린 아이템을 가져온다.
// Lua 스크립트로 원자적 Pop + Processing Hash 등록.
func (q *RedisJobQueue) Dequeue(ctx context.Context) (*JobItem, error) {
	script := redis.NewScript(`
		local queue_key = KEYS[1]
		local processing_key = KEYS[2]
		local timestamp = ARGV[1]

		local items = redis.call('ZPOPMIN', queue_key, 1)
		if #items == 0 then
			return nil
		end

		local item_data = items[1]
		local item_id = cjson.decode(item_data).id

		redis.call('HSET', processing_key, item_id, item_data)
		redis.call('HSET', processing_key, item_id .. ':timestamp', timestamp)

		return item_data
	`)

	result, err := script.Run(ctx, q.client, []string{q.queueKey, q.processingKey}, time.Now().Unix()).Result()
	if err == redis.Nil || result == nil {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	var item JobItem
	if err := json.Unmarshal([]byte(result.(string)), &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}

	return &item, nil
}

// Complete 아이템 처리 완료. ID Set에서도 제거해 재제출이 가능해진다
// (판정 결과 중복은 호출자가 영속 계층에서 걸러낸다).
func (q *RedisJobQueue) Complete(ctx context.Context, itemID string) error {
	pipe := q.client.Pipeline()
	pipe.HDel(ctx, q.processingKey, itemID)
	pipe.HDel(ctx, q.processingKey, itemID+":timestamp")
	pipe.SRem(ctx, q.idSetKey, itemID)
	_, err := pipe.Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to complete item: %w", err)
	}

	return nil
}

// Retry 아이템 재시도. 최대 재시도 초과 시 DLQ로 이동한다.
func (q *RedisJobQueue) Retry(ctx context.Context, item *JobItem) error {
	item.Retries++
	item.UpdatedAt = time.Now()

	if item.Retries >= item.MaxRetries {
		return q.MoveToDLQ(ctx, item, "max retries exceeded")
	}

	if err := q.Complete(ctx, item.ID); err != nil {
		return err
	}

	_, err := q.Enqueue(ctx, item)
	return err
}

// MoveToDLQ Dead Letter Queue로 이동
func (q *RedisJobQueue) MoveToDLQ(ctx context.Context, item *JobItem, reason string) error {
	dlqItem := map[string]interface{}{
		"item":        item,
		"reason":      reason,
		"moved_at":    time.Now(),
		"final_retry": item.Retries,
	}

	data, err := json.Marshal(dlqItem)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ item: %w", err)
	}

	if err := q.client.LPush(ctx, q.dlqKey, data).Err(); err != nil {
		return fmt.Errorf("failed to move to DLQ: %w", err)
	}

	return q.Complete(ctx, item.ID)
}

// RecoverStale 일정 시간 이상 처리 중인 아이템 복구
// (워커 프로세스가 죽었을 때의 안전망)
func (q *RedisJobQueue) RecoverStale(ctx context.Context, staleTimeout time.Duration) (int, error) {
	items, err := q.client.HGetAll(ctx, q.processingKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get processing items: %w", err)
	}

	recovered := 0
	now := time.Now().Unix()

	for key, value := range items {
		if len(key) > 10 && key[len(key)-10:] == ":timestamp" {
			continue
		}

		timestampStr, exists := items[key+":timestamp"]
		if !exists {
			continue
		}

		var timestamp int64
		if _, err := fmt.Sscanf(timestampStr, "%d", &timestamp); err != nil {
			continue
		}

		if now-timestamp > int64(staleTimeout.Seconds()) {
			var item JobItem
			if err := json.Unmarshal([]byte(value), &item); err != nil {
				continue
			}

			if err := q.Retry(ctx, &item); err != nil {
				continue
			}

			recovered++
		}
	}

	return recovered, nil
}

// Size 대기 중 아이템 개수
func (q *RedisJobQueue) Size(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.queueKey).Result()
}

// ProcessingCount 처리 중 아이템 개수
func (q *RedisJobQueue) ProcessingCount(ctx context.Context) (int64, error) {
	count, err := q.client.HLen(ctx, q.processingKey).Result()
	if err != nil {
		return 0, err
	}
	// timestamp 키 제외 (실제 아이템 수의 2배)
	return count / 2, nil
}

// DLQSize DLQ 크기
func (q *RedisJobQueue) DLQSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.dlqKey).Result()
}

// PeekDLQ DLQ 아이템 확인 (제거하지 않음)
func (q *RedisJobQueue) PeekDLQ(ctx context.Context, count int64) ([]map[string]interface{}, error) {
	items, err := q.client.LRange(ctx, q.dlqKey, 0, count-1).Result()
	if err != nil {
		return nil, err
	}

	result := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		var dlqItem map[string]interface{}
		if err := json.Unmarshal([]byte(item), &dlqItem); err != nil {
			continue
		}
		result = append(result, dlqItem)
	}

	return result, nil
}

// ClearDLQ DLQ 비우기
func (q *RedisJobQueue) ClearDLQ(ctx context.Context) error {
	return q.client.Del(ctx, q.dlqKey).Err()
}
