package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/battle-arena/arena-backend/internal/api"
	"github.com/battle-arena/arena-backend/internal/config"
	"github.com/battle-arena/arena-backend/internal/metrics"
	"github.com/battle-arena/arena-backend/internal/models"
	"github.com/battle-arena/arena-backend/internal/repository"
	"github.com/battle-arena/arena-backend/internal/service"
	"github.com/battle-arena/arena-backend/internal/websocket"
	"github.com/battle-arena/arena-backend/pkg/database"
	"github.com/battle-arena/arena-backend/pkg/distributed"
	"github.com/battle-arena/arena-backend/pkg/executor"
	"github.com/battle-arena/arena-backend/pkg/logger"
)

func main() {
	// 설정 로드
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 로거 초기화
	logger.Init(cfg.LogLevel)
	defer logger.Sync()
	zlog := logger.Desugar()

	logger.Info("Starting Battle Arena Backend",
		"port", cfg.Port,
		"env", cfg.Env,
	)

	// 데이터베이스 연결
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	logger.Info("Database connection established")

	// Redis 연결
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("Invalid Redis URL", "error", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", "error", err)
	}

	logger.Info("Redis connection established")

	// Repository 초기화
	matchRepo := repository.NewMatchRepository(db)
	playerRepo := repository.NewMatchPlayerRepository(db)
	problemRepo := repository.NewProblemRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	antiCheatRepo := repository.NewAntiCheatRepository(db)
	ratingRepo := repository.NewRatingRepository(db)

	// 분산 프리미티브
	waitingSet := distributed.NewWaitingSet(redisClient)
	jobQueue := distributed.NewRedisJobQueue(redisClient, "judging", 0)
	roomCache := distributed.NewRoomCache(redisClient, cfg.RoomSnapshotTTL)

	// 게임 엔진
	ratingService := service.NewRatingService()
	gameServer := service.NewGameServer(
		matchRepo,
		playerRepo,
		ratingRepo,
		roomCache,
		ratingService,
		nil, // Hub 생성 후 연결
		service.GameServerConfig{
			CountdownSeconds: cfg.CountdownSeconds,
			FirstSolveBonus:  cfg.FirstSolveBonus,
		},
		zlog,
	)

	// WebSocket Hub (게임 이벤트의 아웃바운드 채널)
	wsHub := websocket.NewHub(gameServer, zlog)
	gameServer.SetEmitter(wsHub)
	go wsHub.Run()

	// 안티치트
	antiCheat := service.NewAntiCheatService(service.AntiCheatConfig{
		SimilarityThreshold: cfg.PlagiarismThreshold,
		TokenWeight:         cfg.TokenWeight,
		StructureWeight:     cfg.StructureWeight,
		FingerprintWeight:   cfg.FingerprintWeight,
		MinMatchedRun:       3,
	}, ratingRepo, zlog)
	gameServer.SetAnomalyDetector(antiCheat, antiCheatRepo)

	// 재시작 전에 진행 중이던 매치 복원
	restoreRooms(matchRepo, problemRepo, roomCache, gameServer)

	// 채점 파이프라인
	executorClient := executor.NewClient(cfg.ExecutorURL)
	pipeline := service.NewSubmissionPipeline(
		jobQueue,
		executorClient,
		submissionRepo,
		gameServer,
		antiCheat,
		antiCheatRepo,
		metrics.PipelineCollector{},
		service.PipelineConfig{
			Workers:      cfg.PipelineWorkers,
			MaxAttempts:  cfg.MaxJudgeAttempts,
			BackoffBase:  cfg.JudgeBackoffBase,
			PollInterval: 200 * time.Millisecond,
			StaleTimeout: 5 * time.Minute,
			ExecTimeout:  2 * time.Minute,
		},
		zlog,
	)
	pipeline.Start()

	// 매칭 서비스
	scanCoordinator := distributed.NewScanCoordinator(redisClient, zlog)
	matchmaking := service.NewMatchmakingService(
		waitingSet,
		problemRepo,
		matchRepo,
		playerRepo,
		gameServer,
		scanCoordinator,
		service.MatchmakingConfig{
			Interval:         cfg.MatchmakingInterval,
			WindowBase:       cfg.WindowBase,
			WindowStep:       cfg.WindowStep,
			WindowWidenEvery: cfg.WindowWidenEvery,
			QueueTTL:         cfg.QueueTTL,
			Duration1v1:      cfg.Duration1v1,
			Duration3v3:      cfg.Duration3v3,
		},
		zlog,
	)
	matchmaking.Start()

	// 큐 가입 이벤트 기반 즉시 스캔 (주기 스캔 보완)
	go func() {
		if err := scanCoordinator.Start(context.Background(), matchmaking.HandleScanEvent); err != nil && err != context.Canceled {
			logger.Error("Scan coordinator exited", "error", err)
		}
	}()

	// 메트릭 샘플러
	sampler := metrics.NewSampler(waitingSet, gameServer, 10*time.Second, zlog)
	sampler.Start()

	// 라우터 설정
	router := api.SetupRouter(api.Deps{
		Cfg:         cfg,
		Matchmaking: matchmaking,
		Game:        gameServer,
		Pipeline:    pipeline,
		Hub:         wsHub,
		Matches:     matchRepo,
		Players:     playerRepo,
		Problems:    problemRepo,
		Submissions: submissionRepo,
		Findings:    antiCheatRepo,
	})

	// 서버 설정
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 서버 시작 (고루틴)
	go func() {
		logger.Info("Server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown 대기
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 신규 유입 차단 순서: 매칭 -> 채점 -> HTTP
	scanCoordinator.Stop()
	matchmaking.Stop()
	sampler.Stop()
	pipeline.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}

// restoreRooms 스냅샷이 남아 있는 in_progress 매치를 룸으로 되살린다.
// 스냅샷이 없거나 카운트다운 중이던 매치는 취소 처리한다.
func restoreRooms(
	matches *repository.MatchRepository,
	problems *repository.ProblemRepository,
	cache *distributed.RoomCache,
	game *service.GameServer,
) {
	active, err := matches.FindActive()
	if err != nil {
		logger.Error("Failed to list active matches for restore", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, match := range active {
		restored := false

		if match.Status == models.MatchStatusInProgress {
			var snap service.RoomSnapshot
			found, err := cache.Load(ctx, match.ID, &snap)
			if err != nil {
				logger.Error("Failed to load room snapshot", "matchId", match.ID, "error", err)
			} else if found {
				probs, err := problems.FindByIDs(match.ProblemIDs)
				if err != nil {
					logger.Error("Failed to load match problems", "matchId", match.ID, "error", err)
				} else if err := game.RestoreRoom(&snap, probs); err != nil {
					logger.Error("Failed to restore room", "matchId", match.ID, "error", err)
				} else {
					restored = true
				}
			}
		}

		if !restored {
			if err := matches.UpdateStatus(match.ID, models.MatchStatusCancelled); err != nil {
				logger.Error("Failed to cancel unrestorable match", "matchId", match.ID, "error", err)
			} else {
				logger.Warn("Cancelled unrestorable match", "matchId", match.ID)
			}
		}
	}

	if len(active) > 0 {
		logger.Info("Room restore pass finished", "candidates", len(active))
	}
}
