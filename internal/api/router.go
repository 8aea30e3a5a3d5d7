package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/battle-arena/arena-backend/internal/api/handlers"
	"github.com/battle-arena/arena-backend/internal/api/middleware"
	"github.com/battle-arena/arena-backend/internal/config"
	"github.com/battle-arena/arena-backend/internal/repository"
	"github.com/battle-arena/arena-backend/internal/service"
	"github.com/battle-arena/arena-backend/internal/websocket"
)

// Deps 라우터가 쓰는 구성요소. 수명 관리는 main이 한다.
type Deps struct {
	Cfg         *config.Config
	Matchmaking *service.MatchmakingService
	Game        *service.GameServer
	Pipeline    *service.SubmissionPipeline
	Hub         *websocket.Hub
	Matches     *repository.MatchRepository
	Players     *repository.MatchPlayerRepository
	Problems    *repository.ProblemRepository
	Submissions *repository.SubmissionRepository
	Findings    *repository.AntiCheatRepository
}

// SetupRouter API 라우터 설정
func SetupRouter(deps Deps) *gin.Engine {
	if deps.Cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 전역 미들웨어
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(deps.Cfg.CORSAllowedOrigins))

	// Handler 초기화
	queueHandler := handlers.NewQueueHandler(deps.Matchmaking)
	matchHandler := handlers.NewMatchHandler(deps.Game, deps.Matches, deps.Players, deps.Findings)
	submissionHandler := handlers.NewSubmissionHandler(deps.Pipeline, deps.Matches, deps.Problems, deps.Submissions)
	wsHandler := handlers.NewWebSocketHandler(deps.Hub)

	// Health check / metrics
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket endpoint
	router.GET("/ws/:matchId", wsHandler.HandleWebSocket)

	// API v1
	v1 := router.Group("/api/v1")
	v1.Use(middleware.GeneralAPIRateLimit())
	{
		queue := v1.Group("/queue")
		{
			queue.POST("/join", middleware.QueueRateLimit(), queueHandler.JoinQueue)
			queue.POST("/leave", middleware.QueueRateLimit(), queueHandler.LeaveQueue)
			queue.GET("/status", queueHandler.QueueStatus)
		}

		matches := v1.Group("/matches")
		{
			matches.GET("/:id", matchHandler.GetMatch)
			matches.GET("/:id/standings", matchHandler.GetStandings)
			matches.GET("/:id/findings", matchHandler.GetFindings)
		}

		submissions := v1.Group("/submissions")
		{
			submissions.POST("",
				middleware.SubmissionRateLimit(deps.Cfg.SubmitBurst, deps.Cfg.SubmitPerSecond),
				submissionHandler.CreateSubmission)
			submissions.GET("/:id", submissionHandler.GetSubmission)
		}

		v1.GET("/pipeline/stats", submissionHandler.PipelineStats)
	}

	return router
}
