package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/battle-arena/arena-backend/internal/models"
	"github.com/battle-arena/arena-backend/pkg/distributed"
	"github.com/battle-arena/arena-backend/pkg/executor"
)

// JobQueue 채점 작업 큐
type JobQueue interface {
	Enqueue(ctx context.Context, item *distributed.JobItem) (bool, error)
	Dequeue(ctx context.Context) (*distributed.JobItem, error)
	Complete(ctx context.Context, itemID string) error
	MoveToDLQ(ctx context.Context, item *distributed.JobItem, reason string) error
	RecoverStale(ctx context.Context, staleTimeout time.Duration) (int, error)
	Size(ctx context.Context) (int64, error)
	ProcessingCount(ctx context.Context) (int64, error)
	DLQSize(ctx context.Context) (int64, error)
}

// CodeExecutor 외부 채점 백엔드
type CodeExecutor interface {
	Execute(ctx context.Context, req executor.ExecuteRequest) (*executor.ExecuteResponse, error)
}

// SubmissionStore 제출 영속화
type SubmissionStore interface {
	Create(s *models.Submission) error
	FindByID(id string) (*models.Submission, error)
	MarkExecuting(id string) error
	SaveVerdict(id string, verdict models.Verdict, testsPassed, testsTotal, executionTimeMs int,
		fingerprint, structureFingerprint string, judgedAt time.Time) error
	FindJudgedByMatchProblem(matchID, problemID, excludeSubmissionID string) ([]*models.Submission, error)
}

// ResultHandler 판정 결과 수신자 (GameServer가 구현)
type ResultHandler interface {
	HandleSubmissionResult(res JudgedResult) error
}

// PlagiarismChecker 판정 후 비동기 표절 비교
type PlagiarismChecker interface {
	CheckPlagiarism(sub *models.Submission, others []*models.Submission) []models.PlagiarismFinding
}

type FindingStore interface {
	SaveFinding(f *models.PlagiarismFinding) error
}

// PipelineMetrics 파이프라인 계측 (nil이면 비활성)
type PipelineMetrics interface {
	JobEnqueued()
	JobCompleted(verdict string)
	JobRetried()
	JobDeadLettered()
	ObserveJudgeDuration(seconds float64)
}

type PipelineConfig struct {
	Workers      int
	MaxAttempts  int           // 제출당 실행 시도 횟수 상한
	BackoffBase  time.Duration // 시도 간 대기: BackoffBase << attempt
	PollInterval time.Duration // 큐가 비었을 때 대기
	StaleTimeout time.Duration // 처리 중 아이템 복구 기준
	ExecTimeout  time.Duration // 실행 백엔드 호출 타임아웃
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Workers:      4,
		MaxAttempts:  3,
		BackoffBase:  500 * time.Millisecond,
		PollInterval: 200 * time.Millisecond,
		StaleTimeout: 5 * time.Minute,
		ExecTimeout:  2 * time.Minute,
	}
}

// SubmissionPipeline 비동기 채점 파이프라인.
// 제출은 큐에 쌓이고, 워커 풀이 꺼내 실행 백엔드로 보낸다.
// 일시 장애는 지수 백오프로 재시도하고, 소진되면 internal_error로 확정한다.
type SubmissionPipeline struct {
	queue       JobQueue
	exec        CodeExecutor
	submissions SubmissionStore
	results     ResultHandler
	plagiarism  PlagiarismChecker
	findings    FindingStore
	metrics     PipelineMetrics
	cfg         PipelineConfig
	logger      *zap.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup

	// 처리 결과 누계. 재시도 소진으로 internal_error가 된 작업은 큐에서는
	// 정상 완료되므로 큐 지표만으로는 실패 수가 드러나지 않는다.
	completed atomic.Int64
	failed    atomic.Int64
}

func NewSubmissionPipeline(
	queue JobQueue,
	exec CodeExecutor,
	submissions SubmissionStore,
	results ResultHandler,
	plagiarism PlagiarismChecker,
	findings FindingStore,
	metrics PipelineMetrics,
	cfg PipelineConfig,
	logger *zap.Logger,
) *SubmissionPipeline {
	return &SubmissionPipeline{
		queue:       queue,
		exec:        exec,
		submissions: submissions,
		results:     results,
		plagiarism:  plagiarism,
		findings:    findings,
		metrics:     metrics,
		cfg:         cfg,
		logger:      logger,
		stopChan:    make(chan struct{}),
	}
}

// Submit 제출 접수. SubmissionID가 멱등성 키이며,
// 같은 ID가 이미 대기/처리 중이면 (false, nil)을 반환한다.
func (p *SubmissionPipeline) Submit(ctx context.Context, job *models.SubmissionJob) (bool, error) {
	if job.SubmissionID == "" || job.MatchID == "" || job.PlayerID == "" ||
		job.ProblemID == "" || job.Code == "" || job.Language == "" {
		return false, ErrInvalidInput
	}

	if err := p.submissions.Create(&models.Submission{
		ID:        job.SubmissionID,
		MatchID:   job.MatchID,
		PlayerID:  job.PlayerID,
		ProblemID: job.ProblemID,
		Language:  job.Language,
		Code:      job.Code,
		Verdict:   models.VerdictPending,
	}); err != nil {
		return false, fmt.Errorf("failed to record submission: %w", err)
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("failed to marshal job: %w", err)
	}

	accepted, err := p.queue.Enqueue(ctx, &distributed.JobItem{
		ID:         job.SubmissionID,
		Payload:    payload,
		MaxRetries: p.cfg.MaxAttempts,
	})
	if err != nil {
		return false, fmt.Errorf("failed to enqueue submission: %w", err)
	}
	if !accepted {
		p.logger.Debug("Duplicate submission ignored",
			zap.String("submissionId", job.SubmissionID))
		return false, nil
	}

	if p.metrics != nil {
		p.metrics.JobEnqueued()
	}

	p.logger.Info("Submission enqueued",
		zap.String("submissionId", job.SubmissionID),
		zap.String("matchId", job.MatchID),
		zap.String("playerId", job.PlayerID))

	return true, nil
}

// Start 워커 풀과 복구 루프 기동
func (p *SubmissionPipeline) Start() {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.wg.Add(1)
	go p.recoveryLoop()

	p.logger.Info("Submission pipeline started",
		zap.Int("workers", p.cfg.Workers))
}

// Stop 워커 중지 (처리 중 작업 완료 대기)
func (p *SubmissionPipeline) Stop() {
	close(p.stopChan)
	p.wg.Wait()
	p.logger.Info("Submission pipeline stopped")
}

func (p *SubmissionPipeline) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		item, err := p.queue.Dequeue(ctx)
		cancel()

		if err == distributed.ErrQueueEmpty {
			select {
			case <-time.After(p.cfg.PollInterval):
			case <-p.stopChan:
				return
			}
			continue
		}
		if err != nil {
			p.logger.Error("Failed to dequeue job",
				zap.Int("worker", id), zap.Error(err))
			select {
			case <-time.After(p.cfg.PollInterval):
			case <-p.stopChan:
				return
			}
			continue
		}

		p.process(item)
	}
}

func (p *SubmissionPipeline) process(item *distributed.JobItem) {
	var job models.SubmissionJob
	if err := json.Unmarshal(item.Payload, &job); err != nil {
		p.logger.Error("Malformed job payload",
			zap.String("itemId", item.ID), zap.Error(err))
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.queue.MoveToDLQ(ctx, item, "malformed payload"); err != nil {
			p.logger.Error("Failed to dead-letter job", zap.Error(err))
		}
		if p.metrics != nil {
			p.metrics.JobDeadLettered()
		}
		p.failed.Add(1)
		return
	}

	if err := p.submissions.MarkExecuting(job.SubmissionID); err != nil {
		p.logger.Error("Failed to mark submission executing",
			zap.String("submissionId", job.SubmissionID), zap.Error(err))
	}

	started := time.Now()
	resp := p.execute(&job)
	if p.metrics != nil {
		p.metrics.ObserveJudgeDuration(time.Since(started).Seconds())
	}

	verdict := mapVerdict(resp.Status)

	// 핑거프린트는 판정 결과와 무관하게 저장한다
	fp := Fingerprint(job.Code, job.Language)
	sfp := StructureFingerprint(job.Code, job.Language)

	if err := p.submissions.SaveVerdict(
		job.SubmissionID, verdict,
		resp.TestsPassed, resp.TestsTotal, resp.ExecutionTimeMs,
		fp, sfp, time.Now(),
	); err != nil {
		p.logger.Error("Failed to save verdict",
			zap.String("submissionId", job.SubmissionID), zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := p.queue.Complete(ctx, item.ID); err != nil {
		p.logger.Error("Failed to complete job",
			zap.String("itemId", item.ID), zap.Error(err))
	}
	cancel()

	if p.metrics != nil {
		p.metrics.JobCompleted(string(verdict))
	}
	if verdict == models.VerdictInternalError {
		p.failed.Add(1)
	} else {
		p.completed.Add(1)
	}

	if err := p.results.HandleSubmissionResult(JudgedResult{
		SubmissionID: job.SubmissionID,
		MatchID:      job.MatchID,
		PlayerID:     job.PlayerID,
		ProblemID:    job.ProblemID,
		Verdict:      verdict,
		TestsPassed:  resp.TestsPassed,
		TestsTotal:   resp.TestsTotal,
		SubmittedAt:  item.CreatedAt,
	}); err != nil {
		p.logger.Error("Failed to deliver judged result",
			zap.String("submissionId", job.SubmissionID), zap.Error(err))
	}

	p.logger.Info("Submission judged",
		zap.String("submissionId", job.SubmissionID),
		zap.String("verdict", string(verdict)),
		zap.Int("passed", resp.TestsPassed),
		zap.Int("total", resp.TestsTotal))

	if p.plagiarism != nil && p.findings != nil {
		go p.runPlagiarismCheck(job.SubmissionID, job.MatchID, job.ProblemID)
	}
}

// execute 실행 백엔드 호출. 일시 장애는 지수 백오프로 재시도하고,
// 시도 소진/영구 실패는 internal_error 응답으로 수렴한다.
func (p *SubmissionPipeline) execute(job *models.SubmissionJob) *executor.ExecuteResponse {
	req := executor.ExecuteRequest{
		Code:          job.Code,
		Language:      job.Language,
		TestCases:     job.TestCases,
		TimeLimitSec:  job.TimeLimitSec,
		MemoryLimitKB: job.MemoryLimitKB,
	}

	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := p.cfg.BackoffBase << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-p.stopChan:
			}
			if p.metrics != nil {
				p.metrics.JobRetried()
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ExecTimeout)
		resp, err := p.exec.Execute(ctx, req)
		cancel()

		if err == nil {
			resp.TestsTotal = len(job.TestCases)
			if resp.TestsTotal == 0 {
				resp.TestsTotal = resp.TestsPassed
			}
			return resp
		}

		lastErr = err
		if !executor.IsTransient(err) {
			break
		}

		p.logger.Warn("Executor attempt failed",
			zap.String("submissionId", job.SubmissionID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	p.logger.Error("Judging failed after retries",
		zap.String("submissionId", job.SubmissionID),
		zap.Int("attempts", p.cfg.MaxAttempts),
		zap.Error(lastErr))

	return &executor.ExecuteResponse{
		Status:     executor.StatusInternalError,
		TestsTotal: len(job.TestCases),
	}
}

// recoveryLoop 죽은 워커가 잡고 있던 아이템을 주기적으로 복구
func (p *SubmissionPipeline) recoveryLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			recovered, err := p.queue.RecoverStale(ctx, p.cfg.StaleTimeout)
			cancel()

			if err != nil {
				p.logger.Error("Failed to recover stale jobs", zap.Error(err))
			} else if recovered > 0 {
				p.logger.Warn("Recovered stale jobs", zap.Int("count", recovered))
			}
		case <-p.stopChan:
			return
		}
	}
}

// runPlagiarismCheck 판정 완료 후 비동기 표절 비교.
// 실패해도 판정/매치 진행에는 영향을 주지 않는다.
func (p *SubmissionPipeline) runPlagiarismCheck(submissionID, matchID, problemID string) {
	sub, err := p.submissions.FindByID(submissionID)
	if err != nil || sub == nil {
		p.logger.Error("Failed to load submission for plagiarism check",
			zap.String("submissionId", submissionID), zap.Error(err))
		return
	}

	others, err := p.submissions.FindJudgedByMatchProblem(matchID, problemID, submissionID)
	if err != nil {
		p.logger.Error("Failed to load peer submissions",
			zap.String("submissionId", submissionID), zap.Error(err))
		return
	}
	if len(others) == 0 {
		return
	}

	for _, f := range p.plagiarism.CheckPlagiarism(sub, others) {
		finding := f
		if err := p.findings.SaveFinding(&finding); err != nil {
			p.logger.Error("Failed to save plagiarism finding",
				zap.String("submissionId", submissionID), zap.Error(err))
		}
	}
}

// Stats 파이프라인 상태 (운영 조회용)
type PipelineStats struct {
	Waiting      int64 `json:"waiting"`      // 큐 대기 중
	Active       int64 `json:"active"`       // 워커 처리 중
	Completed    int64 `json:"completed"`    // 판정 완료 누계
	Failed       int64 `json:"failed"`       // internal_error 확정 + DLQ 이동 누계
	DeadLettered int64 `json:"deadLettered"` // 현재 DLQ 크기
	Workers      int   `json:"workers"`
}

func (p *SubmissionPipeline) Stats(ctx context.Context) (*PipelineStats, error) {
	queued, err := p.queue.Size(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue size: %w", err)
	}

	processing, err := p.queue.ProcessingCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read processing count: %w", err)
	}

	dlq, err := p.queue.DLQSize(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read DLQ size: %w", err)
	}

	return &PipelineStats{
		Waiting:      queued,
		Active:       processing,
		Completed:    p.completed.Load(),
		Failed:       p.failed.Load(),
		DeadLettered: dlq,
		Workers:      p.cfg.Workers,
	}, nil
}

// mapVerdict 실행 백엔드 status -> 판정
func mapVerdict(status string) models.Verdict {
	switch status {
	case executor.StatusAccepted:
		return models.VerdictAccepted
	case executor.StatusWrongAnswer:
		return models.VerdictWrongAnswer
	case executor.StatusTimeLimitExceeded:
		return models.VerdictTimeLimit
	case executor.StatusMemoryLimitExceeded:
		return models.VerdictMemoryLimit
	case executor.StatusRuntimeError:
		return models.VerdictRuntimeError
	case executor.StatusCompileError:
		return models.VerdictCompileError
	default:
		return models.VerdictInternalError
	}
}
