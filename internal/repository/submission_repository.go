package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/battle-arena/arena-backend/internal/models"
	"github.com/battle-arena/arena-backend/pkg/database"
)

type SubmissionRepository struct {
	db *database.DB
}

func NewSubmissionRepository(db *database.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create pending 제출 기록. 같은 ID가 이미 있으면 조용히 건너뛴다 (멱등성).
func (r *SubmissionRepository) Create(s *models.Submission) error {
	query := `
		INSERT INTO submissions (id, match_id, player_id, problem_id, language, code, verdict)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')
		ON CONFLICT (id) DO NOTHING
	`

	if _, err := r.db.Exec(query, s.ID, s.MatchID, s.PlayerID, s.ProblemID, s.Language, s.Code); err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}

	return nil
}

// FindByID ID로 제출 조회
func (r *SubmissionRepository) FindByID(id string) (*models.Submission, error) {
	query := `
		SELECT id, match_id, player_id, problem_id, language, code, verdict,
		       tests_passed, tests_total, execution_time_ms,
		       fingerprint, structure_fingerprint, created_at, judged_at
		FROM submissions
		WHERE id = $1
	`

	s := &models.Submission{}
	err := r.db.QueryRow(query, id).Scan(
		&s.ID,
		&s.MatchID,
		&s.PlayerID,
		&s.ProblemID,
		&s.Language,
		&s.Code,
		&s.Verdict,
		&s.TestsPassed,
		&s.TestsTotal,
		&s.ExecutionTimeMs,
		&s.Fingerprint,
		&s.StructureFingerprint,
		&s.CreatedAt,
		&s.JudgedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to find submission: %w", err)
	}

	return s, nil
}

// MarkExecuting 작업 시작 표시
func (r *SubmissionRepository) MarkExecuting(id string) error {
	query := `UPDATE submissions SET verdict = 'executing' WHERE id = $1`

	if _, err := r.db.Exec(query, id); err != nil {
		return fmt.Errorf("failed to mark submission executing: %w", err)
	}

	return nil
}

// SaveVerdict 최종 판정 기록. 핑거프린트는 판정 결과와 무관하게 항상 채워진다.
func (r *SubmissionRepository) SaveVerdict(
	id string,
	verdict models.Verdict,
	testsPassed, testsTotal, executionTimeMs int,
	fingerprint, structureFingerprint string,
	judgedAt time.Time,
) error {
	query := `
		UPDATE submissions
		SET verdict = $1,
		    tests_passed = $2,
		    tests_total = $3,
		    execution_time_ms = $4,
		    fingerprint = $5,
		    structure_fingerprint = $6,
		    judged_at = $7
		WHERE id = $8
	`

	if _, err := r.db.Exec(query, verdict, testsPassed, testsTotal, executionTimeMs,
		fingerprint, structureFingerprint, judgedAt, id); err != nil {
		return fmt.Errorf("failed to save verdict: %w", err)
	}

	return nil
}

// FindJudgedByMatchProblem 같은 매치+문제의 판정 완료된 다른 제출들 (표절 비교용)
func (r *SubmissionRepository) FindJudgedByMatchProblem(matchID, problemID, excludeSubmissionID string) ([]*models.Submission, error) {
	query := `
		SELECT id, match_id, player_id, problem_id, language, code, verdict,
		       tests_passed, tests_total, execution_time_ms,
		       fingerprint, structure_fingerprint, created_at, judged_at
		FROM submissions
		WHERE match_id = $1
		  AND problem_id = $2
		  AND id != $3
		  AND verdict NOT IN ('pending', 'executing')
	`

	rows, err := r.db.Query(query, matchID, problemID, excludeSubmissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var subs []*models.Submission
	for rows.Next() {
		s := &models.Submission{}
		if err := rows.Scan(
			&s.ID,
			&s.MatchID,
			&s.PlayerID,
			&s.ProblemID,
			&s.Language,
			&s.Code,
			&s.Verdict,
			&s.TestsPassed,
			&s.TestsTotal,
			&s.ExecutionTimeMs,
			&s.Fingerprint,
			&s.StructureFingerprint,
			&s.CreatedAt,
			&s.JudgedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, s)
	}

	return subs, nil
}
