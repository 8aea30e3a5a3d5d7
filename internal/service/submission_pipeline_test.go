package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/battle-arena/arena-backend/internal/models"
	"github.com/battle-arena/arena-backend/pkg/distributed"
	"github.com/battle-arena/arena-backend/pkg/executor"
)

type memJobQueue struct {
	mu        sync.Mutex
	seen      map[string]bool
	queued    []*distributed.JobItem
	completed []string
	dlq       map[string]string
}

func newMemJobQueue() *memJobQueue {
	return &memJobQueue{seen: make(map[string]bool), dlq: make(map[string]string)}
}

func (q *memJobQueue) Enqueue(ctx context.Context, item *distributed.JobItem) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.seen[item.ID] {
		return false, nil
	}
	q.seen[item.ID] = true
	item.CreatedAt = time.Now()
	q.queued = append(q.queued, item)
	return true, nil
}

func (q *memJobQueue) Dequeue(ctx context.Context) (*distributed.JobItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queued) == 0 {
		return nil, distributed.ErrQueueEmpty
	}
	item := q.queued[0]
	q.queued = q.queued[1:]
	return item, nil
}

func (q *memJobQueue) Complete(ctx context.Context, itemID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, itemID)
	return nil
}

func (q *memJobQueue) MoveToDLQ(ctx context.Context, item *distributed.JobItem, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dlq[item.ID] = reason
	return nil
}

func (q *memJobQueue) RecoverStale(ctx context.Context, staleTimeout time.Duration) (int, error) {
	return 0, nil
}

func (q *memJobQueue) Size(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.queued)), nil
}

func (q *memJobQueue) ProcessingCount(ctx context.Context) (int64, error) { return 0, nil }

func (q *memJobQueue) DLQSize(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.dlq)), nil
}

type execStep struct {
	resp *executor.ExecuteResponse
	err  error
}

// scriptedExecutor 호출 순서대로 steps를 소비하고, 모자라면 마지막을 반복한다
type scriptedExecutor struct {
	mu    sync.Mutex
	calls int
	steps []execStep
}

func (s *scriptedExecutor) Execute(ctx context.Context, req executor.ExecuteRequest) (*executor.ExecuteResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.calls
	if idx >= len(s.steps) {
		idx = len(s.steps) - 1
	}
	s.calls++

	step := s.steps[idx]
	if step.err != nil {
		return nil, step.err
	}
	cp := *step.resp
	return &cp, nil
}

func (s *scriptedExecutor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type savedVerdict struct {
	verdict     models.Verdict
	passed      int
	total       int
	fingerprint string
	structure   string
}

type memSubmissionStore struct {
	mu        sync.Mutex
	subs      map[string]*models.Submission
	executing []string
	verdicts  map[string]savedVerdict
	peers     []*models.Submission
}

func newMemSubmissionStore() *memSubmissionStore {
	return &memSubmissionStore{
		subs:     make(map[string]*models.Submission),
		verdicts: make(map[string]savedVerdict),
	}
}

func (m *memSubmissionStore) Create(s *models.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// 중복 생성은 조용히 무시 (ON CONFLICT DO NOTHING)
	if _, exists := m.subs[s.ID]; !exists {
		m.subs[s.ID] = s
	}
	return nil
}

func (m *memSubmissionStore) FindByID(id string) (*models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs[id], nil
}

func (m *memSubmissionStore) MarkExecuting(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executing = append(m.executing, id)
	return nil
}

func (m *memSubmissionStore) SaveVerdict(id string, verdict models.Verdict, testsPassed, testsTotal, executionTimeMs int,
	fingerprint, structureFingerprint string, judgedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verdicts[id] = savedVerdict{
		verdict:     verdict,
		passed:      testsPassed,
		total:       testsTotal,
		fingerprint: fingerprint,
		structure:   structureFingerprint,
	}
	return nil
}

func (m *memSubmissionStore) FindJudgedByMatchProblem(matchID, problemID, excludeSubmissionID string) ([]*models.Submission, error) {
	return m.peers, nil
}

type resultSink struct {
	mu      sync.Mutex
	results []JudgedResult
}

func (r *resultSink) HandleSubmissionResult(res JudgedResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return nil
}

func (r *resultSink) all() []JudgedResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]JudgedResult{}, r.results...)
}

type pipelineFixture struct {
	pipeline *SubmissionPipeline
	queue    *memJobQueue
	exec     *scriptedExecutor
	store    *memSubmissionStore
	sink     *resultSink
}

func newPipelineFixture(t *testing.T, steps ...execStep) *pipelineFixture {
	t.Helper()

	fx := &pipelineFixture{
		queue: newMemJobQueue(),
		exec:  &scriptedExecutor{steps: steps},
		store: newMemSubmissionStore(),
		sink:  &resultSink{},
	}

	cfg := PipelineConfig{
		Workers:      1,
		MaxAttempts:  3,
		BackoffBase:  time.Millisecond,
		PollInterval: 5 * time.Millisecond,
		StaleTimeout: time.Minute,
		ExecTimeout:  time.Second,
	}

	fx.pipeline = NewSubmissionPipeline(
		fx.queue, fx.exec, fx.store, fx.sink, nil, nil, nil, cfg, zap.NewNop(),
	)

	return fx
}

func testJob(subID string) *models.SubmissionJob {
	return &models.SubmissionJob{
		SubmissionID: subID,
		MatchID:      "match-1",
		PlayerID:     "p1",
		ProblemID:    "problem-1",
		Code:         "int main() { return 0; }",
		Language:     "cpp",
		TestCases: []models.TestCase{
			{Input: "1", Expected: "1"},
			{Input: "2", Expected: "2"},
		},
		TimeLimitSec:  2,
		MemoryLimitKB: 262144,
	}
}

func acceptedStep() execStep {
	return execStep{resp: &executor.ExecuteResponse{
		Status:          executor.StatusAccepted,
		TestsPassed:     2,
		TestsTotal:      2,
		ExecutionTimeMs: 40,
	}}
}

func (fx *pipelineFixture) submitAndDequeue(t *testing.T, job *models.SubmissionJob) *distributed.JobItem {
	t.Helper()

	accepted, err := fx.pipeline.Submit(context.Background(), job)
	require.NoError(t, err)
	require.True(t, accepted)

	item, err := fx.queue.Dequeue(context.Background())
	require.NoError(t, err)
	return item
}

func TestPipeline_SubmitValidation(t *testing.T) {
	fx := newPipelineFixture(t, acceptedStep())

	job := testJob("sub-1")
	job.Code = ""

	_, err := fx.pipeline.Submit(context.Background(), job)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPipeline_SubmitRecordsPendingRow(t *testing.T) {
	fx := newPipelineFixture(t, acceptedStep())

	accepted, err := fx.pipeline.Submit(context.Background(), testJob("sub-1"))
	require.NoError(t, err)
	assert.True(t, accepted)

	sub, _ := fx.store.FindByID("sub-1")
	require.NotNil(t, sub)
	assert.Equal(t, models.VerdictPending, sub.Verdict)

	size, _ := fx.queue.Size(context.Background())
	assert.Equal(t, int64(1), size)
}

func TestPipeline_SubmitDuplicateIgnored(t *testing.T) {
	fx := newPipelineFixture(t, acceptedStep())

	first, err := fx.pipeline.Submit(context.Background(), testJob("sub-1"))
	require.NoError(t, err)
	assert.True(t, first)

	second, err := fx.pipeline.Submit(context.Background(), testJob("sub-1"))
	require.NoError(t, err)
	assert.False(t, second, "same submission id must not enqueue twice")

	size, _ := fx.queue.Size(context.Background())
	assert.Equal(t, int64(1), size)
}

func TestPipeline_ProcessDeliversVerdict(t *testing.T) {
	fx := newPipelineFixture(t, acceptedStep())

	item := fx.submitAndDequeue(t, testJob("sub-1"))
	fx.pipeline.process(item)

	saved := fx.store.verdicts["sub-1"]
	assert.Equal(t, models.VerdictAccepted, saved.verdict)
	assert.Equal(t, 2, saved.passed)
	assert.Equal(t, 2, saved.total)
	assert.NotEmpty(t, saved.fingerprint, "fingerprint is stored regardless of verdict")

	assert.Equal(t, []string{"sub-1"}, fx.queue.completed)
	assert.Equal(t, []string{"sub-1"}, fx.store.executing)

	results := fx.sink.all()
	require.Len(t, results, 1)
	assert.Equal(t, models.VerdictAccepted, results[0].Verdict)
	assert.Equal(t, item.CreatedAt, results[0].SubmittedAt, "scoring uses the submission time, not the judging time")
}

func TestPipeline_TransientFailureIsRetried(t *testing.T) {
	fx := newPipelineFixture(t,
		execStep{err: executor.ErrUnavailable},
		acceptedStep(),
	)

	item := fx.submitAndDequeue(t, testJob("sub-1"))
	fx.pipeline.process(item)

	assert.Equal(t, 2, fx.exec.callCount())
	assert.Equal(t, models.VerdictAccepted, fx.store.verdicts["sub-1"].verdict)
}

func TestPipeline_RetriesExhaustedBecomeInternalError(t *testing.T) {
	fx := newPipelineFixture(t, execStep{err: executor.ErrUnavailable})

	item := fx.submitAndDequeue(t, testJob("sub-1"))
	fx.pipeline.process(item)

	assert.Equal(t, 3, fx.exec.callCount(), "MaxAttempts bounds the retries")

	saved := fx.store.verdicts["sub-1"]
	assert.Equal(t, models.VerdictInternalError, saved.verdict)
	assert.Equal(t, 0, saved.passed)
	assert.Equal(t, 2, saved.total)

	// 실패로 확정돼도 결과는 전달된다
	results := fx.sink.all()
	require.Len(t, results, 1)
	assert.Equal(t, models.VerdictInternalError, results[0].Verdict)
}

func TestPipeline_PermanentFailureSkipsRetries(t *testing.T) {
	fx := newPipelineFixture(t, execStep{err: errors.New("bad request")})

	item := fx.submitAndDequeue(t, testJob("sub-1"))
	fx.pipeline.process(item)

	assert.Equal(t, 1, fx.exec.callCount(), "non-transient errors must not be retried")
	assert.Equal(t, models.VerdictInternalError, fx.store.verdicts["sub-1"].verdict)
}

func TestPipeline_MalformedPayloadDeadLettered(t *testing.T) {
	fx := newPipelineFixture(t, acceptedStep())

	fx.pipeline.process(&distributed.JobItem{
		ID:      "broken",
		Payload: json.RawMessage(`{not json`),
	})

	assert.Equal(t, "malformed payload", fx.queue.dlq["broken"])
	assert.Zero(t, fx.exec.callCount())
	assert.Empty(t, fx.sink.all())
}

func TestPipeline_VerdictMapping(t *testing.T) {
	tests := []struct {
		status  string
		verdict models.Verdict
	}{
		{executor.StatusAccepted, models.VerdictAccepted},
		{executor.StatusWrongAnswer, models.VerdictWrongAnswer},
		{executor.StatusTimeLimitExceeded, models.VerdictTimeLimit},
		{executor.StatusMemoryLimitExceeded, models.VerdictMemoryLimit},
		{executor.StatusRuntimeError, models.VerdictRuntimeError},
		{executor.StatusCompileError, models.VerdictCompileError},
		{"something else", models.VerdictInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.verdict, mapVerdict(tt.status))
		})
	}
}

func TestPipeline_WorkerDrainsQueue(t *testing.T) {
	fx := newPipelineFixture(t, acceptedStep())

	_, err := fx.pipeline.Submit(context.Background(), testJob("sub-1"))
	require.NoError(t, err)
	_, err = fx.pipeline.Submit(context.Background(), testJob("sub-2"))
	require.NoError(t, err)

	fx.pipeline.Start()
	defer fx.pipeline.Stop()

	assert.Eventually(t, func() bool {
		return len(fx.sink.all()) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPipeline_PlagiarismFindingsSaved(t *testing.T) {
	fx := newPipelineFixture(t, acceptedStep())

	findings := &memFindingStore{}
	fx.pipeline.plagiarism = newTestAntiCheat(nil)
	fx.pipeline.findings = findings

	require.NoError(t, fx.store.Create(makeSubmission("sub-1", "player-1", solutionA)))
	fx.store.peers = []*models.Submission{makeSubmission("sub-2", "player-2", solutionACopy)}

	fx.pipeline.runPlagiarismCheck("sub-1", "match-1", "problem-1")

	require.Len(t, findings.saved, 1)
	assert.Equal(t, "sub-1", findings.saved[0].SubmissionID)
	assert.True(t, findings.saved[0].Flagged)
}

type memFindingStore struct {
	mu    sync.Mutex
	saved []models.PlagiarismFinding
}

func (m *memFindingStore) SaveFinding(f *models.PlagiarismFinding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, *f)
	return nil
}

func TestPipeline_Stats(t *testing.T) {
	fx := newPipelineFixture(t, acceptedStep())

	_, err := fx.pipeline.Submit(context.Background(), testJob("sub-1"))
	require.NoError(t, err)

	stats, err := fx.pipeline.Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.Waiting)
	assert.Equal(t, 1, stats.Workers)
}

func TestPipeline_StatsCountsOutcomes(t *testing.T) {
	fx := newPipelineFixture(t,
		execStep{err: executor.ErrUnavailable},
		execStep{err: executor.ErrUnavailable},
		execStep{err: executor.ErrUnavailable},
		acceptedStep(),
	)

	// 재시도 소진 -> internal_error 확정. 큐에서는 정상 완료되지만 실패로 집계된다.
	fx.pipeline.process(fx.submitAndDequeue(t, testJob("sub-1")))
	// 정상 판정
	fx.pipeline.process(fx.submitAndDequeue(t, testJob("sub-2")))

	stats, err := fx.pipeline.Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.Completed)
	assert.Equal(t, int64(1), stats.Failed, "retry-exhausted jobs must show up as failed")
	assert.Equal(t, int64(0), stats.DeadLettered)
}
