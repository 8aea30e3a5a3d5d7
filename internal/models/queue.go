package models

import "time"

// QueueEntry 매칭 대기열의 플레이어 (팀 모드에서는 팀 슬롯)
type QueueEntry struct {
	PlayerID string    `json:"playerId"`
	Mode     GameMode  `json:"mode"`
	Rating   int       `json:"rating"`
	TeamID   string    `json:"teamId,omitempty"`
	JoinedAt time.Time `json:"joinedAt"`
}

// QueueStatus 대기열 현황
type QueueStatus struct {
	Mode      GameMode `json:"mode"`
	Count     int      `json:"count"`
	AvgWaitMs int64    `json:"avgWaitMs"`
}
