package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// CORS
	CORSAllowedOrigins []string

	// Matchmaking
	MatchmakingInterval time.Duration
	WindowBase          int           // 기본 허용 레이팅 차이
	WindowStep          int           // 대기 시간에 따른 확장 폭
	WindowWidenEvery    time.Duration // 확장 주기
	QueueTTL            time.Duration

	// Match engine
	CountdownSeconds int
	FirstSolveBonus  int
	Duration1v1      time.Duration
	Duration3v3      time.Duration
	RoomSnapshotTTL  time.Duration

	// Submission pipeline
	ExecutorURL      string
	PipelineWorkers  int
	MaxJudgeAttempts int
	JudgeBackoffBase time.Duration

	// Anti-cheat
	PlagiarismThreshold float64
	TokenWeight         float64
	StructureWeight     float64
	FingerprintWeight   float64

	// Rate limiting (제출 API)
	SubmitBurst      int64
	SubmitPerSecond  int64
}

func Load() (*Config, error) {
	// .env 파일 로드 (있는 경우)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		CORSAllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},

		MatchmakingInterval: parseDuration(getEnv("MATCHMAKING_INTERVAL", "5s"), 5*time.Second),
		WindowBase:          parseInt(getEnv("MATCH_WINDOW_BASE", "100"), 100),
		WindowStep:          parseInt(getEnv("MATCH_WINDOW_STEP", "50"), 50),
		WindowWidenEvery:    parseDuration(getEnv("MATCH_WINDOW_WIDEN_EVERY", "10s"), 10*time.Second),
		QueueTTL:            parseDuration(getEnv("QUEUE_TTL", "24h"), 24*time.Hour),

		CountdownSeconds: parseInt(getEnv("COUNTDOWN_SECONDS", "5"), 5),
		FirstSolveBonus:  parseInt(getEnv("FIRST_SOLVE_BONUS", "20"), 20),
		Duration1v1:      parseDuration(getEnv("MATCH_DURATION_1V1", "15m"), 15*time.Minute),
		Duration3v3:      parseDuration(getEnv("MATCH_DURATION_3V3", "30m"), 30*time.Minute),
		RoomSnapshotTTL:  parseDuration(getEnv("ROOM_SNAPSHOT_TTL", "2h"), 2*time.Hour),

		ExecutorURL:      getEnv("EXECUTOR_URL", "http://localhost:8081"),
		PipelineWorkers:  parseInt(getEnv("PIPELINE_WORKERS", "4"), 4),
		MaxJudgeAttempts: parseInt(getEnv("MAX_JUDGE_ATTEMPTS", "3"), 3),
		JudgeBackoffBase: parseDuration(getEnv("JUDGE_BACKOFF_BASE", "500ms"), 500*time.Millisecond),

		PlagiarismThreshold: parseFloat(getEnv("PLAGIARISM_THRESHOLD", "85"), 85),
		TokenWeight:         parseFloat(getEnv("PLAGIARISM_TOKEN_WEIGHT", "0.3"), 0.3),
		StructureWeight:     parseFloat(getEnv("PLAGIARISM_STRUCTURE_WEIGHT", "0.4"), 0.4),
		FingerprintWeight:   parseFloat(getEnv("PLAGIARISM_FINGERPRINT_WEIGHT", "0.3"), 0.3),

		SubmitBurst:     int64(parseInt(getEnv("SUBMIT_BURST", "5"), 5)),
		SubmitPerSecond: int64(parseInt(getEnv("SUBMIT_PER_SECOND", "1"), 1)),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(s string, fallback float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return f
}
