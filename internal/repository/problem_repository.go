package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/battle-arena/arena-backend/internal/models"
	"github.com/battle-arena/arena-backend/pkg/database"
)

type ProblemRepository struct {
	db *database.DB
}

func NewProblemRepository(db *database.DB) *ProblemRepository {
	return &ProblemRepository{db: db}
}

func scanProblem(row interface {
	Scan(dest ...interface{}) error
}) (*models.Problem, error) {
	p := &models.Problem{}
	var testCases []byte
	if err := row.Scan(
		&p.ID,
		&p.Title,
		&p.Difficulty,
		&p.TimeLimitSec,
		&p.MemoryLimitKB,
		&testCases,
		&p.CreatedAt,
	); err != nil {
		return nil, err
	}

	if len(testCases) > 0 {
		if err := json.Unmarshal(testCases, &p.TestCases); err != nil {
			return nil, fmt.Errorf("failed to unmarshal test cases: %w", err)
		}
	}

	return p, nil
}

// FindByID ID로 문제 조회
func (r *ProblemRepository) FindByID(id string) (*models.Problem, error) {
	query := `
		SELECT id, title, difficulty, time_limit_sec, memory_limit_kb, test_cases, created_at
		FROM problems
		WHERE id = $1
	`

	p, err := scanProblem(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find problem: %w", err)
	}

	return p, nil
}

// FindByIDs 여러 문제 조회 (Room 초기화용)
func (r *ProblemRepository) FindByIDs(ids []string) ([]*models.Problem, error) {
	query := `
		SELECT id, title, difficulty, time_limit_sec, memory_limit_kb, test_cases, created_at
		FROM problems
		WHERE id = ANY($1)
	`

	rows, err := r.db.Query(query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query problems: %w", err)
	}
	defer rows.Close()

	var problems []*models.Problem
	for rows.Next() {
		p, err := scanProblem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan problem: %w", err)
		}
		problems = append(problems, p)
	}

	return problems, nil
}

// FindByDifficulty 난이도 버킷에서 무작위 N개 선택
func (r *ProblemRepository) FindByDifficulty(difficulty models.Difficulty, limit int) ([]*models.Problem, error) {
	query := `
		SELECT id, title, difficulty, time_limit_sec, memory_limit_kb, test_cases, created_at
		FROM problems
		WHERE difficulty = $1
		ORDER BY random()
		LIMIT $2
	`

	rows, err := r.db.Query(query, difficulty, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query problems by difficulty: %w", err)
	}
	defer rows.Close()

	var problems []*models.Problem
	for rows.Next() {
		p, err := scanProblem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan problem: %w", err)
		}
		problems = append(problems, p)
	}

	return problems, nil
}

// FindAny 난이도 무관 무작위 N개 (버킷이 비었을 때의 fallback)
func (r *ProblemRepository) FindAny(limit int) ([]*models.Problem, error) {
	query := `
		SELECT id, title, difficulty, time_limit_sec, memory_limit_kb, test_cases, created_at
		FROM problems
		ORDER BY random()
		LIMIT $1
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query problems: %w", err)
	}
	defer rows.Close()

	var problems []*models.Problem
	for rows.Next() {
		p, err := scanProblem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan problem: %w", err)
		}
		problems = append(problems, p)
	}

	return problems, nil
}
