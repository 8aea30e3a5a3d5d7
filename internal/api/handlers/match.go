package handlers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/battle-arena/arena-backend/internal/events"
	"github.com/battle-arena/arena-backend/internal/repository"
	"github.com/battle-arena/arena-backend/internal/service"
)

type MatchHandler struct {
	game     *service.GameServer
	matches  *repository.MatchRepository
	players  *repository.MatchPlayerRepository
	findings *repository.AntiCheatRepository
}

func NewMatchHandler(
	game *service.GameServer,
	matches *repository.MatchRepository,
	players *repository.MatchPlayerRepository,
	findings *repository.AntiCheatRepository,
) *MatchHandler {
	return &MatchHandler{
		game:     game,
		matches:  matches,
		players:  players,
		findings: findings,
	}
}

// GetMatch 매치 상세 조회
func (h *MatchHandler) GetMatch(c *gin.Context) {
	id := c.Param("id")

	match, err := h.matches.FindByID(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load match"})
		return
	}
	if match == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Match not found"})
		return
	}

	players, err := h.players.FindByMatchID(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load match players"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"match":   match,
		"players": players,
		"live":    h.game.HasRoom(id),
	})
}

// GetStandings 순위표 조회. 진행 중이면 라이브 상태, 끝났으면 확정 결과.
func (h *MatchHandler) GetStandings(c *gin.Context) {
	id := c.Param("id")

	if standings, err := h.game.Standings(id); err == nil {
		c.JSON(http.StatusOK, gin.H{"matchId": id, "standings": standings, "live": true})
		return
	}

	match, err := h.matches.FindByID(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load match"})
		return
	}
	if match == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Match not found"})
		return
	}

	players, err := h.players.FindByMatchID(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load match players"})
		return
	}

	standings := make([]events.Standing, 0, len(players))
	for _, p := range players {
		st := events.Standing{
			PlayerID:    p.PlayerID,
			TeamID:      p.TeamID,
			Score:       p.Score,
			FullSolves:  p.FullSolves,
			Submissions: p.Submissions,
		}
		if p.Rank != nil {
			st.Rank = *p.Rank
		}
		if p.Result != nil {
			st.Result = *p.Result
		}
		standings = append(standings, st)
	}
	sort.Slice(standings, func(i, j int) bool {
		if standings[i].Rank != standings[j].Rank {
			return standings[i].Rank < standings[j].Rank
		}
		return standings[i].PlayerID < standings[j].PlayerID
	})

	c.JSON(http.StatusOK, gin.H{"matchId": id, "standings": standings, "live": false})
}

// GetFindings 매치의 표절 의심 기록 조회 (검토용)
func (h *MatchHandler) GetFindings(c *gin.Context) {
	id := c.Param("id")

	findings, err := h.findings.FindByMatch(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load findings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"matchId":  id,
		"findings": findings,
		"total":    len(findings),
	})
}
