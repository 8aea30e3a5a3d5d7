package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket 토큰 버킷 하나. capacity가 버스트 상한, refillRate가 초당 충전량.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   int64
	tokens     float64
	refillRate int64
	lastRefill time.Time
}

func NewTokenBucket(capacity, refillRate int64) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow 토큰 하나를 소비할 수 있으면 소비하고 true
func (tb *TokenBucket) Allow() bool {
	return tb.AllowN(1)
}

func (tb *TokenBucket) AllowN(n int64) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked(time.Now())

	if tb.tokens >= float64(n) {
		tb.tokens -= float64(n)
		return true
	}

	return false
}

// Remaining 현재 남은 토큰 수 (응답 헤더용)
func (tb *TokenBucket) Remaining() int64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked(time.Now())
	return int64(tb.tokens)
}

// refillLocked 경과 시간 비례 충전. 초 단위 절사가 아니라 연속 충전이라
// refillRate가 낮아도 짧은 간격의 토큰이 유실되지 않는다.
func (tb *TokenBucket) refillLocked(now time.Time) {
	elapsed := now.Sub(tb.lastRefill)
	if elapsed <= 0 {
		return
	}

	tb.tokens += elapsed.Seconds() * float64(tb.refillRate)
	if tb.tokens > float64(tb.capacity) {
		tb.tokens = float64(tb.capacity)
	}
	tb.lastRefill = now
}

// RateLimiter 키(플레이어 ID, IP)별 토큰 버킷 모음.
// 한동안 쓰이지 않은 키의 버킷은 백그라운드에서 정리된다.
type RateLimiter struct {
	mu         sync.RWMutex
	buckets    map[string]*keyedBucket
	capacity   int64
	refillRate int64
	idleAfter  time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
}

type keyedBucket struct {
	bucket   *TokenBucket
	lastSeen time.Time
}

func NewRateLimiter(capacity, refillRate int64) *RateLimiter {
	rl := &RateLimiter{
		buckets:    make(map[string]*keyedBucket),
		capacity:   capacity,
		refillRate: refillRate,
		idleAfter:  10 * time.Minute,
		stopChan:   make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow 키의 버킷에서 토큰 하나 소비 시도
func (rl *RateLimiter) Allow(key string) bool {
	return rl.AllowN(key, 1)
}

func (rl *RateLimiter) AllowN(key string, n int64) bool {
	return rl.getBucket(key).AllowN(n)
}

// Remaining 키의 남은 토큰 수
func (rl *RateLimiter) Remaining(key string) int64 {
	return rl.getBucket(key).Remaining()
}

func (rl *RateLimiter) getBucket(key string) *TokenBucket {
	now := time.Now()

	rl.mu.RLock()
	entry, exists := rl.buckets[key]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		// write 락 획득 사이에 다른 고루틴이 만들었을 수 있다
		entry, exists = rl.buckets[key]
		if !exists {
			entry = &keyedBucket{
				bucket: NewTokenBucket(rl.capacity, rl.refillRate),
			}
			rl.buckets[key] = entry
		}
		entry.lastSeen = now
		rl.mu.Unlock()
		return entry.bucket
	}

	rl.mu.Lock()
	entry.lastSeen = now
	rl.mu.Unlock()

	return entry.bucket
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.idleAfter)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopChan:
			return
		}
	}
}

// cleanup idleAfter 이상 쓰이지 않은 키 제거
func (rl *RateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, entry := range rl.buckets {
		if now.Sub(entry.lastSeen) > rl.idleAfter {
			delete(rl.buckets, key)
		}
	}
}

// Reset 키의 제한 초기화 (운영 개입용)
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, key)
}

// ActiveKeys 현재 추적 중인 키 수
func (rl *RateLimiter) ActiveKeys() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.buckets)
}

// Close 정리 고루틴 중지
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() {
		close(rl.stopChan)
	})
}
