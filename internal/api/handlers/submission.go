package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/battle-arena/arena-backend/internal/models"
	"github.com/battle-arena/arena-backend/internal/repository"
	"github.com/battle-arena/arena-backend/internal/service"
)

type SubmissionHandler struct {
	pipeline    *service.SubmissionPipeline
	matches     *repository.MatchRepository
	problems    *repository.ProblemRepository
	submissions *repository.SubmissionRepository
}

func NewSubmissionHandler(
	pipeline *service.SubmissionPipeline,
	matches *repository.MatchRepository,
	problems *repository.ProblemRepository,
	submissions *repository.SubmissionRepository,
) *SubmissionHandler {
	return &SubmissionHandler{
		pipeline:    pipeline,
		matches:     matches,
		problems:    problems,
		submissions: submissions,
	}
}

type createSubmissionRequest struct {
	SubmissionID string `json:"submissionId"` // 클라이언트 재시도 멱등성 키 (없으면 생성)
	MatchID      string `json:"matchId" binding:"required"`
	PlayerID     string `json:"playerId" binding:"required"`
	ProblemID    string `json:"problemId" binding:"required"`
	Language     string `json:"language" binding:"required"`
	Code         string `json:"code" binding:"required"`
}

// CreateSubmission 제출 접수. 채점은 비동기이며 202를 반환한다.
func (h *SubmissionHandler) CreateSubmission(c *gin.Context) {
	var req createSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	match, err := h.matches.FindByID(req.MatchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load match"})
		return
	}
	if match == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Match not found"})
		return
	}
	if match.Status != models.MatchStatusInProgress {
		c.JSON(http.StatusConflict, gin.H{"error": "Match is not in progress"})
		return
	}

	inMatch := false
	for _, pid := range match.ProblemIDs {
		if pid == req.ProblemID {
			inMatch = true
			break
		}
	}
	if !inMatch {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Problem is not part of this match"})
		return
	}

	problem, err := h.problems.FindByID(req.ProblemID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load problem"})
		return
	}
	if problem == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Problem not found"})
		return
	}

	submissionID := req.SubmissionID
	if submissionID == "" {
		submissionID = uuid.New().String()
	}

	accepted, err := h.pipeline.Submit(c.Request.Context(), &models.SubmissionJob{
		SubmissionID:  submissionID,
		MatchID:       req.MatchID,
		PlayerID:      req.PlayerID,
		ProblemID:     req.ProblemID,
		Code:          req.Code,
		Language:      req.Language,
		TestCases:     problem.TestCases,
		TimeLimitSec:  problem.TimeLimitSec,
		MemoryLimitKB: problem.MemoryLimitKB,
	})
	if err == service.ErrInvalidInput {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"submissionId": submissionID,
		"accepted":     accepted,
		"verdict":      models.VerdictPending,
	})
}

// GetSubmission 제출 상태/판정 조회
func (h *SubmissionHandler) GetSubmission(c *gin.Context) {
	id := c.Param("id")

	sub, err := h.submissions.FindByID(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load submission"})
		return
	}
	if sub == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Submission not found"})
		return
	}

	// 코드 본문은 응답에서 제외
	c.JSON(http.StatusOK, gin.H{
		"id":              sub.ID,
		"matchId":         sub.MatchID,
		"playerId":        sub.PlayerID,
		"problemId":       sub.ProblemID,
		"language":        sub.Language,
		"verdict":         sub.Verdict,
		"testsPassed":     sub.TestsPassed,
		"testsTotal":      sub.TestsTotal,
		"executionTimeMs": sub.ExecutionTimeMs,
		"createdAt":       sub.CreatedAt,
		"judgedAt":        sub.JudgedAt,
	})
}

// PipelineStats 채점 파이프라인 상태 조회 (운영용)
func (h *SubmissionHandler) PipelineStats(c *gin.Context) {
	stats, err := h.pipeline.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read pipeline stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}
