package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/battle-arena/arena-backend/internal/models"
	"github.com/battle-arena/arena-backend/internal/service"
)

type QueueHandler struct {
	matchmaking *service.MatchmakingService
}

func NewQueueHandler(matchmaking *service.MatchmakingService) *QueueHandler {
	return &QueueHandler{matchmaking: matchmaking}
}

type joinQueueRequest struct {
	PlayerID string `json:"playerId" binding:"required"`
	Mode     string `json:"mode" binding:"required"`
	Rating   int    `json:"rating"`
	TeamID   string `json:"teamId"`
}

// JoinQueue 매칭 대기열 가입
func (h *QueueHandler) JoinQueue(c *gin.Context) {
	var req joinQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.matchmaking.Join(c.Request.Context(), req.PlayerID, models.GameMode(req.Mode), req.Rating, req.TeamID)
	if err == service.ErrInvalidMode || err == service.ErrInvalidInput {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to join queue"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"playerId": req.PlayerID,
		"mode":     req.Mode,
		"queued":   true,
	})
}

type leaveQueueRequest struct {
	PlayerID string `json:"playerId" binding:"required"`
	Mode     string `json:"mode" binding:"required"`
}

// LeaveQueue 매칭 대기열 이탈
func (h *QueueHandler) LeaveQueue(c *gin.Context) {
	var req leaveQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.matchmaking.Leave(c.Request.Context(), req.PlayerID, models.GameMode(req.Mode))
	if err == service.ErrInvalidMode {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err == service.ErrNotInQueue {
		c.JSON(http.StatusNotFound, gin.H{"error": "Player is not in the queue"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to leave queue"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"playerId": req.PlayerID,
		"mode":     req.Mode,
		"queued":   false,
	})
}

// QueueStatus 모드별 대기열 현황 조회
func (h *QueueHandler) QueueStatus(c *gin.Context) {
	mode := c.Query("mode")
	if mode == "" {
		statuses := make([]*models.QueueStatus, 0, 3)
		for _, m := range []models.GameMode{models.ModeCasual1v1, models.ModeRanked1v1, models.ModeTeam3v3} {
			status, err := h.matchmaking.QueueStatus(c.Request.Context(), m)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read queue status"})
				return
			}
			statuses = append(statuses, status)
		}
		c.JSON(http.StatusOK, gin.H{"queues": statuses})
		return
	}

	status, err := h.matchmaking.QueueStatus(c.Request.Context(), models.GameMode(mode))
	if err == service.ErrInvalidMode {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read queue status"})
		return
	}

	c.JSON(http.StatusOK, status)
}
