package events

import (
	"time"

	"github.com/battle-arena/arena-backend/internal/models"
)

type Type string

const (
	TypeCountdownTick   Type = "countdown_tick"
	TypeMatchStart      Type = "match_start"
	TypeScoreUpdate     Type = "score_update"
	TypeTeamScoreUpdate Type = "team_score_update"
	TypeMatchEnd        Type = "match_end"
	TypeMatchCancelled  Type = "match_cancelled"
)

// Event 게임 서버가 발행하는 실시간 이벤트.
// 클라이언트까지의 전달/순서 보장은 트랜스포트(websocket hub)의 몫이다.
type Event struct {
	MatchID string      `json:"matchId"`
	Type    Type        `json:"type"`
	Payload interface{} `json:"payload"`
}

// Emitter 엔진의 아웃바운드 이벤트 채널. 구현체가 트랜스포트를 결정한다.
type Emitter interface {
	Emit(ev Event)
}

// NopEmitter 테스트용 무시 구현
type NopEmitter struct{}

func (NopEmitter) Emit(Event) {}

type CountdownTick struct {
	Remaining int `json:"remaining"`
}

type MatchStart struct {
	Mode        models.GameMode `json:"mode"`
	ProblemIDs  []string        `json:"problemIds"`
	DurationSec int             `json:"durationSec"`
	StartedAt   time.Time       `json:"startedAt"`
	EndsAt      time.Time       `json:"endsAt"`
}

type ScoreUpdate struct {
	PlayerID   string         `json:"playerId"`
	ProblemID  string         `json:"problemId"`
	Verdict    models.Verdict `json:"verdict"`
	Awarded    int            `json:"awarded"`
	Score      int            `json:"score"`
	FirstSolve bool           `json:"firstSolve"`
}

type TeamScoreUpdate struct {
	TeamID string `json:"teamId"`
	Score  int    `json:"score"`
}

// Standing 최종 순위표의 한 줄
type Standing struct {
	PlayerID    string  `json:"playerId"`
	TeamID      *string `json:"teamId,omitempty"`
	Score       int     `json:"score"`
	FullSolves  int     `json:"fullSolves"`
	Submissions int     `json:"submissions"`
	Rank        int     `json:"rank"`
	Result      string  `json:"result"`
}

type MatchCancelled struct {
	Reason string `json:"reason"`
}

type MatchEnd struct {
	Standings     []Standing            `json:"standings"`
	RatingChanges []models.RatingChange `json:"ratingChanges,omitempty"`
	WinningTeam   *string               `json:"winningTeam,omitempty"`
}
