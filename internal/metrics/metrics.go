package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/battle-arena/arena-backend/internal/models"
)

var (
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arena_matchmaking_queue_depth",
		Help: "Players currently waiting in the matchmaking queue.",
	}, []string{"mode"})

	ActiveMatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_active_matches",
		Help: "Matches currently in countdown or in progress.",
	})

	JobsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_judge_jobs_enqueued_total",
		Help: "Submissions accepted into the judging pipeline.",
	})

	JobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_judge_jobs_completed_total",
		Help: "Judged submissions by final verdict.",
	}, []string{"verdict"})

	JobsRetried = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_judge_jobs_retried_total",
		Help: "Executor attempts retried after a transient failure.",
	})

	JobsDeadLettered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_judge_jobs_dead_lettered_total",
		Help: "Jobs moved to the dead letter queue.",
	})

	JudgeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_judge_duration_seconds",
		Help:    "Wall time spent judging one submission, retries included.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)

// PipelineCollector service.PipelineMetrics 구현
type PipelineCollector struct{}

func (PipelineCollector) JobEnqueued()                         { JobsEnqueued.Inc() }
func (PipelineCollector) JobCompleted(verdict string)          { JobsCompleted.WithLabelValues(verdict).Inc() }
func (PipelineCollector) JobRetried()                          { JobsRetried.Inc() }
func (PipelineCollector) JobDeadLettered()                     { JobsDeadLettered.Inc() }
func (PipelineCollector) ObserveJudgeDuration(seconds float64) { JudgeDuration.Observe(seconds) }

// QueueCounter 대기열 크기 조회
type QueueCounter interface {
	Count(ctx context.Context, mode models.GameMode) (int64, error)
}

// RoomCounter 진행 중 룸 수 조회
type RoomCounter interface {
	ActiveRooms() int
}

// Sampler 게이지를 주기적으로 갱신하는 백그라운드 루프
type Sampler struct {
	queue    QueueCounter
	rooms    RoomCounter
	interval time.Duration
	logger   *zap.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewSampler(queue QueueCounter, rooms RoomCounter, interval time.Duration, logger *zap.Logger) *Sampler {
	return &Sampler{
		queue:    queue,
		rooms:    rooms,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

func (s *Sampler) Start() {
	s.wg.Add(1)
	go s.loop()
}

func (s *Sampler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

func (s *Sampler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	modes := []models.GameMode{models.ModeCasual1v1, models.ModeRanked1v1, models.ModeTeam3v3}

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			for _, mode := range modes {
				count, err := s.queue.Count(ctx, mode)
				if err != nil {
					s.logger.Warn("Failed to sample queue depth", zap.Error(err))
					continue
				}
				QueueDepth.WithLabelValues(string(mode)).Set(float64(count))
			}
			cancel()

			ActiveMatches.Set(float64(s.rooms.ActiveRooms()))
		case <-s.stopChan:
			return
		}
	}
}
