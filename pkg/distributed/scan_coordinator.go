package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ScanEvent 매칭 스캔 트리거 이벤트
type ScanEvent struct {
	Type      string    `json:"type"` // "player_enqueued", "scan_requested"
	Mode      string    `json:"mode"`
	PlayerID  string    `json:"player_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ScanCoordinator Redis Pub/Sub 기반 매칭 스캔 조정자.
// 큐 가입 직후 즉시 스캔을 트리거하고, 여러 인스턴스가 떠 있어도
// 이벤트당 한 인스턴스만 스캔하도록 모드별 분산 락을 잡는다.
type ScanCoordinator struct {
	client      *redis.Client
	lockManager *RedisLockManager
	logger      *zap.Logger
	instanceID  string

	eventChannel string
	stopChan     chan struct{}
	cancelSub    context.CancelFunc
}

func NewScanCoordinator(client *redis.Client, logger *zap.Logger) *ScanCoordinator {
	return &ScanCoordinator{
		client:       client,
		lockManager:  NewRedisLockManager(client),
		logger:       logger,
		instanceID:   uuid.New().String(),
		eventChannel: "matchmaking:events",
		stopChan:     make(chan struct{}),
	}
}

// Start 이벤트 수신 시작. handler는 모드 이름을 받아 스캔을 실행한다.
func (c *ScanCoordinator) Start(ctx context.Context, handler func(mode string) error) error {
	subCtx, cancel := context.WithCancel(ctx)
	c.cancelSub = cancel

	pubsub := c.client.Subscribe(subCtx, c.eventChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	c.logger.Info("Scan coordinator started",
		zap.String("instance_id", c.instanceID),
		zap.String("channel", c.eventChannel))

	ch := pubsub.Channel()
	for {
		select {
		case msg := <-ch:
			if msg == nil {
				continue
			}

			var event ScanEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				c.logger.Error("Failed to unmarshal scan event", zap.Error(err))
				continue
			}

			if err := c.handleEventWithLock(event, handler); err != nil {
				c.logger.Error("Failed to handle scan event", zap.Error(err))
			}

		case <-c.stopChan:
			c.logger.Info("Scan coordinator stopped")
			return nil

		case <-subCtx.Done():
			return subCtx.Err()
		}
	}
}

// Stop 이벤트 수신 중지
func (c *ScanCoordinator) Stop() {
	close(c.stopChan)
	if c.cancelSub != nil {
		c.cancelSub()
	}
}

// NotifyEnqueued 플레이어 큐 가입 알림
func (c *ScanCoordinator) NotifyEnqueued(ctx context.Context, mode, playerID string) error {
	return c.publish(ctx, ScanEvent{
		Type:     "player_enqueued",
		Mode:     mode,
		PlayerID: playerID,
	})
}

func (c *ScanCoordinator) publish(ctx context.Context, event ScanEvent) error {
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := c.client.Publish(ctx, c.eventChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// handleEventWithLock 모드별 분산 락 하에서 스캔 실행
func (c *ScanCoordinator) handleEventWithLock(event ScanEvent, handler func(mode string) error) error {
	lockKey := fmt.Sprintf("matchmaking:lock:%s", event.Mode)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	lock, err := c.lockManager.AcquireLock(ctx, lockKey, c.instanceID, 5*time.Second)
	if err == ErrLockNotAcquired {
		// 다른 인스턴스가 이미 스캔 중
		c.logger.Debug("Scan lock held by another instance",
			zap.String("mode", event.Mode))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to acquire scan lock: %w", err)
	}

	defer func() {
		if err := lock.Release(context.Background()); err != nil && err != ErrLockNotHeld {
			c.logger.Error("Failed to release scan lock", zap.Error(err))
		}
	}()

	return handler(event.Mode)
}
