package models

import "time"

type MatchStatus string

const (
	MatchStatusWaiting    MatchStatus = "waiting"
	MatchStatusCountdown  MatchStatus = "countdown"
	MatchStatusInProgress MatchStatus = "in_progress"
	MatchStatusFinished   MatchStatus = "finished"
	MatchStatusCancelled  MatchStatus = "cancelled"
)

type GameMode string

const (
	ModeCasual1v1 GameMode = "1v1-casual"
	ModeRanked1v1 GameMode = "1v1-ranked"
	ModeTeam3v3   GameMode = "3v3-team"
)

// TeamSize 모드별 팀 인원
func (m GameMode) TeamSize() int {
	if m == ModeTeam3v3 {
		return 3
	}
	return 1
}

// ProblemCount 모드별 출제 문제 수
func (m GameMode) ProblemCount() int {
	if m == ModeTeam3v3 {
		return 3
	}
	return 1
}

// Ranked 레이팅 변동이 적용되는 모드인지
func (m GameMode) Ranked() bool {
	return m == ModeRanked1v1
}

func (m GameMode) Valid() bool {
	switch m {
	case ModeCasual1v1, ModeRanked1v1, ModeTeam3v3:
		return true
	}
	return false
}

type Match struct {
	ID          string      `json:"id" db:"id"`
	Mode        GameMode    `json:"mode" db:"mode"`
	Status      MatchStatus `json:"status" db:"status"`
	ProblemIDs  []string    `json:"problemIds" db:"problem_ids"`
	DurationSec int         `json:"durationSec" db:"duration_sec"`
	StartedAt   *time.Time  `json:"startedAt,omitempty" db:"started_at"`
	EndedAt     *time.Time  `json:"endedAt,omitempty" db:"ended_at"`
	CreatedAt   time.Time   `json:"createdAt" db:"created_at"`
}

func (m *Match) Duration() time.Duration {
	return time.Duration(m.DurationSec) * time.Second
}

// MatchPlayer 매치 참가자의 영속 상태 (write-through 대상)
type MatchPlayer struct {
	MatchID       string  `json:"matchId" db:"match_id"`
	PlayerID      string  `json:"playerId" db:"player_id"`
	TeamID        *string `json:"teamId,omitempty" db:"team_id"`
	Rating        int     `json:"rating" db:"rating"`
	Score         int     `json:"score" db:"score"`
	FullSolves    int     `json:"fullSolves" db:"full_solves"`
	PartialSolves int     `json:"partialSolves" db:"partial_solves"`
	Submissions   int     `json:"submissions" db:"submissions"`
	Result        *string `json:"result,omitempty" db:"result"`
	Rank          *int    `json:"rank,omitempty" db:"rank"`
	Connected     bool    `json:"connected" db:"connected"`
}
