package models

import "time"

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Points 난이도별 기본 배점
func (d Difficulty) Points() int {
	switch d {
	case DifficultyEasy:
		return 100
	case DifficultyHard:
		return 300
	default:
		return 200
	}
}

// ExpectedSolveTime 난이도별 기준 풀이 시간 (이상 행동 탐지용)
func (d Difficulty) ExpectedSolveTime() time.Duration {
	switch d {
	case DifficultyEasy:
		return 5 * time.Minute
	case DifficultyHard:
		return 20 * time.Minute
	default:
		return 10 * time.Minute
	}
}

type TestCase struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
}

type Problem struct {
	ID            string     `json:"id" db:"id"`
	Title         string     `json:"title" db:"title"`
	Difficulty    Difficulty `json:"difficulty" db:"difficulty"`
	TimeLimitSec  int        `json:"timeLimitSec" db:"time_limit_sec"`
	MemoryLimitKB int        `json:"memoryLimitKb" db:"memory_limit_kb"`
	TestCases     []TestCase `json:"testCases" db:"test_cases"`
	CreatedAt     time.Time  `json:"createdAt" db:"created_at"`
}
