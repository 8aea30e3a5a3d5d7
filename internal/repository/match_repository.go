package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/battle-arena/arena-backend/internal/models"
	"github.com/battle-arena/arena-backend/pkg/database"
)

type MatchRepository struct {
	db *database.DB
}

func NewMatchRepository(db *database.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

// Create 새 매치 생성
func (r *MatchRepository) Create(mode models.GameMode, problemIDs []string, durationSec int) (*models.Match, error) {
	query := `
		INSERT INTO matches (mode, status, problem_ids, duration_sec)
		VALUES ($1, 'waiting', $2, $3)
		RETURNING id, mode, status, problem_ids, duration_sec, created_at
	`

	match := &models.Match{}
	err := r.db.QueryRow(query, mode, pq.Array(problemIDs), durationSec).Scan(
		&match.ID,
		&match.Mode,
		&match.Status,
		pq.Array(&match.ProblemIDs),
		&match.DurationSec,
		&match.CreatedAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to create match: %w", err)
	}

	return match, nil
}

// FindByID ID로 매치 찾기
func (r *MatchRepository) FindByID(id string) (*models.Match, error) {
	query := `
		SELECT id, mode, status, problem_ids, duration_sec,
		       started_at, ended_at, created_at
		FROM matches
		WHERE id = $1
	`

	match := &models.Match{}
	err := r.db.QueryRow(query, id).Scan(
		&match.ID,
		&match.Mode,
		&match.Status,
		pq.Array(&match.ProblemIDs),
		&match.DurationSec,
		&match.StartedAt,
		&match.EndedAt,
		&match.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to find match: %w", err)
	}

	return match, nil
}

// FindActive 종료되지 않은 매치 목록 (재시작 후 룸 복원용)
func (r *MatchRepository) FindActive() ([]*models.Match, error) {
	query := `
		SELECT id, mode, status, problem_ids, duration_sec,
		       started_at, ended_at, created_at
		FROM matches
		WHERE status IN ('countdown', 'in_progress')
		ORDER BY created_at
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to find active matches: %w", err)
	}
	defer rows.Close()

	var matches []*models.Match
	for rows.Next() {
		match := &models.Match{}
		if err := rows.Scan(
			&match.ID,
			&match.Mode,
			&match.Status,
			pq.Array(&match.ProblemIDs),
			&match.DurationSec,
			&match.StartedAt,
			&match.EndedAt,
			&match.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, match)
	}

	return matches, rows.Err()
}

// UpdateStatus 상태 전이 기록
func (r *MatchRepository) UpdateStatus(id string, status models.MatchStatus) error {
	query := `UPDATE matches SET status = $1 WHERE id = $2`

	if _, err := r.db.Exec(query, status, id); err != nil {
		return fmt.Errorf("failed to update match status: %w", err)
	}

	return nil
}

// SetStarted in_progress 전이와 시작 시각 기록
func (r *MatchRepository) SetStarted(id string, startedAt time.Time) error {
	query := `
		UPDATE matches
		SET status = 'in_progress', started_at = $1
		WHERE id = $2
	`

	if _, err := r.db.Exec(query, startedAt, id); err != nil {
		return fmt.Errorf("failed to mark match started: %w", err)
	}

	return nil
}

// SetFinished finished 전이와 종료 시각 기록
func (r *MatchRepository) SetFinished(id string, endedAt time.Time) error {
	query := `
		UPDATE matches
		SET status = 'finished', ended_at = $1
		WHERE id = $2
	`

	if _, err := r.db.Exec(query, endedAt, id); err != nil {
		return fmt.Errorf("failed to mark match finished: %w", err)
	}

	return nil
}
