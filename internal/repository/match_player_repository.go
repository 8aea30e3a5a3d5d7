package repository

import (
	"fmt"

	"github.com/battle-arena/arena-backend/internal/models"
	"github.com/battle-arena/arena-backend/pkg/database"
)

type MatchPlayerRepository struct {
	db *database.DB
}

func NewMatchPlayerRepository(db *database.DB) *MatchPlayerRepository {
	return &MatchPlayerRepository{db: db}
}

// CreateBatch 매치 참가자 일괄 등록
func (r *MatchPlayerRepository) CreateBatch(players []models.MatchPlayer) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO match_players (match_id, player_id, team_id, rating, connected)
		VALUES ($1, $2, $3, $4, $5)
	`

	for _, p := range players {
		if _, err := tx.Exec(query, p.MatchID, p.PlayerID, p.TeamID, p.Rating, p.Connected); err != nil {
			return fmt.Errorf("failed to insert match player: %w", err)
		}
	}

	return tx.Commit()
}

// FindByMatchID 매치 참가자 전체 조회
func (r *MatchPlayerRepository) FindByMatchID(matchID string) ([]models.MatchPlayer, error) {
	query := `
		SELECT match_id, player_id, team_id, rating, score,
		       full_solves, partial_solves, submissions, result, rank, connected
		FROM match_players
		WHERE match_id = $1
		ORDER BY player_id
	`

	rows, err := r.db.Query(query, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query match players: %w", err)
	}
	defer rows.Close()

	var players []models.MatchPlayer
	for rows.Next() {
		var p models.MatchPlayer
		if err := rows.Scan(
			&p.MatchID,
			&p.PlayerID,
			&p.TeamID,
			&p.Rating,
			&p.Score,
			&p.FullSolves,
			&p.PartialSolves,
			&p.Submissions,
			&p.Result,
			&p.Rank,
			&p.Connected,
		); err != nil {
			return nil, fmt.Errorf("failed to scan match player: %w", err)
		}
		players = append(players, p)
	}

	return players, nil
}

// UpdateScore 점수/풀이 카운터 write-through.
// 라이브 판정은 Room이 내리고, 이 기록은 크래시 복구용이다.
func (r *MatchPlayerRepository) UpdateScore(matchID, playerID string, score, fullSolves, partialSolves, submissions int) error {
	query := `
		UPDATE match_players
		SET score = $1, full_solves = $2, partial_solves = $3, submissions = $4
		WHERE match_id = $5 AND player_id = $6
	`

	if _, err := r.db.Exec(query, score, fullSolves, partialSolves, submissions, matchID, playerID); err != nil {
		return fmt.Errorf("failed to update player score: %w", err)
	}

	return nil
}

// SetResult 최종 결과(win/loss/draw)와 순위 기록
func (r *MatchPlayerRepository) SetResult(matchID, playerID, result string, rank int) error {
	query := `
		UPDATE match_players
		SET result = $1, rank = $2
		WHERE match_id = $3 AND player_id = $4
	`

	if _, err := r.db.Exec(query, result, rank, matchID, playerID); err != nil {
		return fmt.Errorf("failed to set player result: %w", err)
	}

	return nil
}

// SetConnected 접속 플래그 갱신
func (r *MatchPlayerRepository) SetConnected(matchID, playerID string, connected bool) error {
	query := `
		UPDATE match_players
		SET connected = $1
		WHERE match_id = $2 AND player_id = $3
	`

	if _, err := r.db.Exec(query, connected, matchID, playerID); err != nil {
		return fmt.Errorf("failed to set connected flag: %w", err)
	}

	return nil
}
