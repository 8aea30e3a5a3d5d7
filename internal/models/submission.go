package models

import "time"

type Verdict string

const (
	VerdictPending       Verdict = "pending"
	VerdictExecuting     Verdict = "executing"
	VerdictAccepted      Verdict = "accepted"
	VerdictWrongAnswer   Verdict = "wrong_answer"
	VerdictTimeLimit     Verdict = "time_limit"
	VerdictMemoryLimit   Verdict = "memory_limit"
	VerdictRuntimeError  Verdict = "runtime_error"
	VerdictCompileError  Verdict = "compile_error"
	VerdictInternalError Verdict = "internal_error"
)

// Terminal 판정이 끝난 상태인지
func (v Verdict) Terminal() bool {
	return v != VerdictPending && v != VerdictExecuting
}

// SubmissionJob 채점 파이프라인에 넘기는 작업. SubmissionID가 멱등성 키.
type SubmissionJob struct {
	SubmissionID  string     `json:"submissionId"`
	MatchID       string     `json:"matchId"`
	PlayerID      string     `json:"playerId"`
	ProblemID     string     `json:"problemId"`
	Code          string     `json:"code"`
	Language      string     `json:"language"`
	TestCases     []TestCase `json:"testCases"`
	TimeLimitSec  int        `json:"timeLimitSec"`
	MemoryLimitKB int        `json:"memoryLimitKb"`
}

type Submission struct {
	ID        string  `json:"id" db:"id"`
	MatchID   string  `json:"matchId" db:"match_id"`
	PlayerID  string  `json:"playerId" db:"player_id"`
	ProblemID string  `json:"problemId" db:"problem_id"`
	Language  string  `json:"language" db:"language"`
	Code      string  `json:"code" db:"code"`
	Verdict   Verdict `json:"verdict" db:"verdict"`

	TestsPassed     int `json:"testsPassed" db:"tests_passed"`
	TestsTotal      int `json:"testsTotal" db:"tests_total"`
	ExecutionTimeMs int `json:"executionTimeMs" db:"execution_time_ms"`

	// 핑거프린트는 판정 결과와 무관하게 항상 저장된다 (표절 비교용)
	Fingerprint          string `json:"fingerprint" db:"fingerprint"`
	StructureFingerprint string `json:"structureFingerprint" db:"structure_fingerprint"`

	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	JudgedAt  *time.Time `json:"judgedAt,omitempty" db:"judged_at"`
}
