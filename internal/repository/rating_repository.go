package repository

import (
	"fmt"

	"github.com/battle-arena/arena-backend/internal/models"
	"github.com/battle-arena/arena-backend/pkg/database"
)

type RatingRepository struct {
	db *database.DB
}

func NewRatingRepository(db *database.DB) *RatingRepository {
	return &RatingRepository{db: db}
}

// Append 레이팅 변동 이력 추가 (append-only)
func (r *RatingRepository) Append(c *models.RatingChange) error {
	query := `
		INSERT INTO rating_history (player_id, match_id, rating_before, rating_after, delta)
		VALUES ($1, $2, $3, $4, $5)
	`

	if _, err := r.db.Exec(query, c.PlayerID, c.MatchID, c.Before, c.After, c.Delta); err != nil {
		return fmt.Errorf("failed to append rating change: %w", err)
	}

	return nil
}

// TrailingAverage 최근 n개 매치의 평균 레이팅.
// 이력이 없으면 (0, false).
func (r *RatingRepository) TrailingAverage(playerID string, n int) (float64, bool, error) {
	query := `
		SELECT AVG(rating_after), COUNT(*)
		FROM (
			SELECT rating_after
			FROM rating_history
			WHERE player_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
	`

	var avg *float64
	var count int
	if err := r.db.QueryRow(query, playerID, n).Scan(&avg, &count); err != nil {
		return 0, false, fmt.Errorf("failed to compute trailing average: %w", err)
	}

	if avg == nil || count == 0 {
		return 0, false, nil
	}

	return *avg, true, nil
}

// FindByPlayer 플레이어의 레이팅 변동 이력
func (r *RatingRepository) FindByPlayer(playerID string, limit int) ([]models.RatingChange, error) {
	query := `
		SELECT id, player_id, match_id, rating_before, rating_after, delta, created_at
		FROM rating_history
		WHERE player_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(query, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query rating history: %w", err)
	}
	defer rows.Close()

	var changes []models.RatingChange
	for rows.Next() {
		var c models.RatingChange
		if err := rows.Scan(
			&c.ID,
			&c.PlayerID,
			&c.MatchID,
			&c.Before,
			&c.After,
			&c.Delta,
			&c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rating change: %w", err)
		}
		changes = append(changes, c)
	}

	return changes, nil
}
