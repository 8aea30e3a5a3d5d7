package models

import "time"

// RatingChange 랭크 매치 종료 후의 레이팅 변동. append-only 이력.
type RatingChange struct {
	ID        string    `json:"id" db:"id"`
	PlayerID  string    `json:"playerId" db:"player_id"`
	MatchID   string    `json:"matchId" db:"match_id"`
	Before    int       `json:"before" db:"rating_before"`
	After     int       `json:"after" db:"rating_after"`
	Delta     int       `json:"delta" db:"delta"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
