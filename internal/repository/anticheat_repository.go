package repository

import (
	"fmt"

	"github.com/lib/pq"

	"github.com/battle-arena/arena-backend/internal/models"
	"github.com/battle-arena/arena-backend/pkg/database"
)

type AntiCheatRepository struct {
	db *database.DB
}

func NewAntiCheatRepository(db *database.DB) *AntiCheatRepository {
	return &AntiCheatRepository{db: db}
}

// SaveFinding 표절 의심 기록 저장
func (r *AntiCheatRepository) SaveFinding(f *models.PlagiarismFinding) error {
	query := `
		INSERT INTO plagiarism_findings
			(match_id, problem_id, submission_id, other_submission_id,
			 player_id, other_player_id, similarity, method, matched_lines, flagged)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	if _, err := r.db.Exec(query,
		f.MatchID,
		f.ProblemID,
		f.SubmissionID,
		f.OtherSubmissionID,
		f.PlayerID,
		f.OtherPlayerID,
		f.Similarity,
		f.Method,
		pq.Array(f.MatchedLines),
		f.Flagged,
	); err != nil {
		return fmt.Errorf("failed to save plagiarism finding: %w", err)
	}

	return nil
}

// FindByMatch 매치의 표절 의심 기록 조회 (검토 화면용)
func (r *AntiCheatRepository) FindByMatch(matchID string) ([]models.PlagiarismFinding, error) {
	query := `
		SELECT id, match_id, problem_id, submission_id, other_submission_id,
		       player_id, other_player_id, similarity, method, matched_lines, flagged, created_at
		FROM plagiarism_findings
		WHERE match_id = $1
		ORDER BY similarity DESC
	`

	rows, err := r.db.Query(query, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query findings: %w", err)
	}
	defer rows.Close()

	var findings []models.PlagiarismFinding
	for rows.Next() {
		var f models.PlagiarismFinding
		if err := rows.Scan(
			&f.ID,
			&f.MatchID,
			&f.ProblemID,
			&f.SubmissionID,
			&f.OtherSubmissionID,
			&f.PlayerID,
			&f.OtherPlayerID,
			&f.Similarity,
			&f.Method,
			pq.Array(&f.MatchedLines),
			&f.Flagged,
			&f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		findings = append(findings, f)
	}

	return findings, nil
}

// SaveAnomaly 행동 이상 징후 저장
func (r *AntiCheatRepository) SaveAnomaly(a *models.BehavioralAnomaly) error {
	query := `
		INSERT INTO behavioral_anomalies (player_id, match_id, kind, details)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := r.db.Exec(query, a.PlayerID, a.MatchID, a.Kind, a.Details); err != nil {
		return fmt.Errorf("failed to save anomaly: %w", err)
	}

	return nil
}
