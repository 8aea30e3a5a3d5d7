package models

import "time"

// PlagiarismFinding 같은 매치+문제의 두 제출 간 유사도 판정.
// 임계값 이상일 때만 생성되며, 항상 사람의 검토 대상이다.
type PlagiarismFinding struct {
	ID                string    `json:"id" db:"id"`
	MatchID           string    `json:"matchId" db:"match_id"`
	ProblemID         string    `json:"problemId" db:"problem_id"`
	SubmissionID      string    `json:"submissionId" db:"submission_id"`
	OtherSubmissionID string    `json:"otherSubmissionId" db:"other_submission_id"`
	PlayerID          string    `json:"playerId" db:"player_id"`
	OtherPlayerID     string    `json:"otherPlayerId" db:"other_player_id"`
	Similarity        float64   `json:"similarity" db:"similarity"`
	Method            string    `json:"method" db:"method"`
	MatchedLines      []string  `json:"matchedLines" db:"matched_lines"`
	Flagged           bool      `json:"flagged" db:"flagged"`
	CreatedAt         time.Time `json:"createdAt" db:"created_at"`
}

const (
	AnomalySolveSpeed       = "unrealistic_solve_speed"
	AnomalyPerformanceSpike = "performance_spike"
)

// BehavioralAnomaly 행동 기반 이상 징후. 자동 제재 없이 기록만 한다.
type BehavioralAnomaly struct {
	ID        string    `json:"id" db:"id"`
	PlayerID  string    `json:"playerId" db:"player_id"`
	MatchID   *string   `json:"matchId,omitempty" db:"match_id"`
	Kind      string    `json:"kind" db:"kind"`
	Details   string    `json:"details" db:"details"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
