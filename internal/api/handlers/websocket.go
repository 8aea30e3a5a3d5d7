package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/battle-arena/arena-backend/internal/websocket"
)

type WebSocketHandler struct {
	hub *websocket.Hub
}

func NewWebSocketHandler(hub *websocket.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// HandleWebSocket 매치 룸 WebSocket 연결
// GET /ws/:matchId?playerId=...
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	matchID := c.Param("matchId")
	playerID := c.Query("playerId")

	if matchID == "" || playerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "matchId and playerId are required"})
		return
	}

	websocket.ServeWs(h.hub, c.Writer, c.Request, matchID, playerID)
}
