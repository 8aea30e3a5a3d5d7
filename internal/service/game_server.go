package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/battle-arena/arena-backend/internal/events"
	"github.com/battle-arena/arena-backend/internal/models"
)

// MatchLifecycleStore 매치 상태 전이 영속화
type MatchLifecycleStore interface {
	UpdateStatus(id string, status models.MatchStatus) error
	SetStarted(id string, startedAt time.Time) error
	SetFinished(id string, endedAt time.Time) error
}

// PlayerStateStore 참가자 상태 write-through
type PlayerStateStore interface {
	UpdateScore(matchID, playerID string, score, fullSolves, partialSolves, submissions int) error
	SetResult(matchID, playerID, result string, rank int) error
	SetConnected(matchID, playerID string, connected bool) error
}

// RatingLedger 레이팅 변동 이력 (append-only)
type RatingLedger interface {
	Append(c *models.RatingChange) error
}

// RoomSnapshotStore Room 스냅샷 캐시
type RoomSnapshotStore interface {
	Save(ctx context.Context, matchID string, snapshot interface{}) error
	Delete(ctx context.Context, matchID string) error
}

// AnomalyDetector 완전 풀이에 대한 행동 이상 징후 탐지
type AnomalyDetector interface {
	CheckBehavioralAnomalies(playerID, matchID string, difficulty models.Difficulty,
		solveTime time.Duration, currentRating int) []models.BehavioralAnomaly
}

// AnomalyStore 이상 징후 기록
type AnomalyStore interface {
	SaveAnomaly(a *models.BehavioralAnomaly) error
}

// JudgedResult 파이프라인이 엔진에 넘기는 최종 판정
type JudgedResult struct {
	SubmissionID string
	MatchID      string
	PlayerID     string
	ProblemID    string
	Verdict      models.Verdict
	TestsPassed  int
	TestsTotal   int
	SubmittedAt  time.Time
}

type GameServerConfig struct {
	CountdownSeconds int
	FirstSolveBonus  int
}

func DefaultGameServerConfig() GameServerConfig {
	return GameServerConfig{
		CountdownSeconds: 5,
		FirstSolveBonus:  20,
	}
}

// GameServer 진행 중인 매치 룸의 레지스트리이자 상태 머신.
// 라이브 판정은 메모리(Room)가 내리고, DB는 write-through로 따라간다.
// 영속화 실패는 로그만 남기고 매치 진행을 막지 않는다.
type GameServer struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	matches   MatchLifecycleStore
	players   PlayerStateStore
	ratings   RatingLedger
	snapshots RoomSnapshotStore
	rating    *RatingService
	emitter   events.Emitter
	cfg       GameServerConfig
	logger    *zap.Logger

	// 선택 의존성. SetAnomalyDetector로 주입한다.
	anomaly      AnomalyDetector
	anomalyStore AnomalyStore

	now func() time.Time
	wg  sync.WaitGroup
}

func NewGameServer(
	matches MatchLifecycleStore,
	players PlayerStateStore,
	ratings RatingLedger,
	snapshots RoomSnapshotStore,
	rating *RatingService,
	emitter events.Emitter,
	cfg GameServerConfig,
	logger *zap.Logger,
) *GameServer {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	return &GameServer{
		rooms:     make(map[string]*Room),
		matches:   matches,
		players:   players,
		ratings:   ratings,
		snapshots: snapshots,
		rating:    rating,
		emitter:   emitter,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// SetEmitter 이벤트 채널 교체. 서버 기동 시 Hub가 엔진에 의존하고
// 엔진이 Hub로 이벤트를 내보내는 순환을 푸는 용도라 기동 전에만 호출한다.
func (g *GameServer) SetEmitter(emitter events.Emitter) {
	if emitter != nil {
		g.emitter = emitter
	}
}

// SetAnomalyDetector 행동 분석 훅 연결
func (g *GameServer) SetAnomalyDetector(detector AnomalyDetector, store AnomalyStore) {
	g.anomaly = detector
	g.anomalyStore = store
}

// InitializeRoom 매칭 성립 직후 룸을 만들고 카운트다운을 시작한다.
func (g *GameServer) InitializeRoom(match *models.Match, players []models.MatchPlayer, problems []*models.Problem) error {
	room := newRoom(match, players, problems)

	g.mu.Lock()
	if _, exists := g.rooms[match.ID]; exists {
		g.mu.Unlock()
		return ErrRoomExists
	}
	g.rooms[match.ID] = room
	g.mu.Unlock()

	g.logger.Info("Room initialized",
		zap.String("matchId", match.ID),
		zap.String("mode", string(match.Mode)),
		zap.Int("players", len(players)))

	room.mu.Lock()
	room.match.Status = models.MatchStatusCountdown
	room.mu.Unlock()

	if err := g.matches.UpdateStatus(match.ID, models.MatchStatusCountdown); err != nil {
		g.logger.Error("Failed to persist countdown status",
			zap.String("matchId", match.ID), zap.Error(err))
	}
	g.saveSnapshot(room)

	g.wg.Add(1)
	go g.runCountdown(room)

	return nil
}

// RestoreRoom 재시작 후 스냅샷으로 진행 중 매치를 복원한다.
// in_progress 매치만 대상이며, 이미 시간이 다 지났으면 타이머가 바로 종료시킨다.
// 처리 완료된 제출 ID 집합도 복원되므로 재전달된 판정은 다시 점수화되지 않는다.
func (g *GameServer) RestoreRoom(snap *RoomSnapshot, problems []*models.Problem) error {
	if snap == nil || snap.Match == nil {
		return ErrInvalidInput
	}
	if snap.Match.Status != models.MatchStatusInProgress {
		return ErrBadTransition
	}

	room := &Room{
		match:             snap.Match,
		players:           make(map[string]*models.MatchPlayer, len(snap.Players)),
		problems:          make(map[string]*models.Problem, len(problems)),
		solved:            snap.Solved,
		partialAwarded:    snap.PartialAwarded,
		firstSolveClaimed: snap.FirstSolveClaimed,
		processedSubs:     snap.ProcessedSubs,
		startedAt:         snap.StartedAt,
		endsAt:            snap.EndsAt,
	}
	if room.processedSubs == nil {
		room.processedSubs = make(map[string]bool)
	}
	if room.solved == nil {
		room.solved = make(map[string]map[string]bool)
	}
	if room.partialAwarded == nil {
		room.partialAwarded = make(map[string]map[string]int)
	}
	if room.firstSolveClaimed == nil {
		room.firstSolveClaimed = make(map[string]bool)
	}
	for id, p := range snap.Players {
		cp := *p
		room.players[id] = &cp
	}
	for _, prob := range problems {
		room.problems[prob.ID] = prob
		if room.solved[prob.ID] == nil {
			room.solved[prob.ID] = make(map[string]bool)
		}
		if room.partialAwarded[prob.ID] == nil {
			room.partialAwarded[prob.ID] = make(map[string]int)
		}
	}

	matchID := snap.Match.ID

	g.mu.Lock()
	if _, exists := g.rooms[matchID]; exists {
		g.mu.Unlock()
		return ErrRoomExists
	}
	g.rooms[matchID] = room
	g.mu.Unlock()

	remaining := room.endsAt.Sub(g.now())
	if remaining < 0 {
		remaining = 0
	}

	room.mu.Lock()
	room.durationTimer = time.AfterFunc(remaining, func() {
		if err := g.EndMatch(matchID); err != nil && err != ErrRoomNotFound {
			g.logger.Error("Failed to end restored match",
				zap.String("matchId", matchID), zap.Error(err))
		}
	})
	room.mu.Unlock()

	g.logger.Info("Room restored from snapshot",
		zap.String("matchId", matchID),
		zap.Duration("remaining", remaining))

	return nil
}

// runCountdown 1초 간격 카운트다운 후 매치 시작
func (g *GameServer) runCountdown(room *Room) {
	defer g.wg.Done()

	matchID := room.match.ID

	for remaining := g.cfg.CountdownSeconds; remaining > 0; remaining-- {
		g.emitter.Emit(events.Event{
			MatchID: matchID,
			Type:    events.TypeCountdownTick,
			Payload: events.CountdownTick{Remaining: remaining},
		})
		time.Sleep(time.Second)

		room.mu.Lock()
		cancelled := room.match.Status == models.MatchStatusCancelled
		room.mu.Unlock()
		if cancelled {
			return
		}
	}

	if err := g.StartMatch(matchID); err != nil {
		g.logger.Error("Failed to start match",
			zap.String("matchId", matchID), zap.Error(err))
	}
}

// StartMatch countdown -> in_progress 전이. 시작/종료 시각을 확정하고
// 매치 시간 타이머를 건다.
func (g *GameServer) StartMatch(matchID string) error {
	room, err := g.room(matchID)
	if err != nil {
		return err
	}

	room.mu.Lock()
	if room.match.Status != models.MatchStatusCountdown {
		room.mu.Unlock()
		return ErrBadTransition
	}

	started := g.now()
	room.match.Status = models.MatchStatusInProgress
	room.match.StartedAt = &started
	room.startedAt = started
	room.endsAt = started.Add(room.match.Duration())
	room.durationTimer = time.AfterFunc(room.match.Duration(), func() {
		if err := g.EndMatch(matchID); err != nil && err != ErrRoomNotFound {
			g.logger.Error("Failed to end match on timer",
				zap.String("matchId", matchID), zap.Error(err))
		}
	})

	mode := room.match.Mode
	problemIDs := room.match.ProblemIDs
	durationSec := room.match.DurationSec
	endsAt := room.endsAt
	room.mu.Unlock()

	if err := g.matches.SetStarted(matchID, started); err != nil {
		g.logger.Error("Failed to persist match start",
			zap.String("matchId", matchID), zap.Error(err))
	}

	g.emitter.Emit(events.Event{
		MatchID: matchID,
		Type:    events.TypeMatchStart,
		Payload: events.MatchStart{
			Mode:        mode,
			ProblemIDs:  problemIDs,
			DurationSec: durationSec,
			StartedAt:   started,
			EndsAt:      endsAt,
		},
	})

	g.saveSnapshot(room)

	g.logger.Info("Match started",
		zap.String("matchId", matchID),
		zap.Time("endsAt", endsAt))

	return nil
}

// HandleSubmissionResult 판정 결과를 룸에 반영한다.
// 룸이 이미 내려갔으면 (매치 종료 후 도착한 판정) 무시한다.
func (g *GameServer) HandleSubmissionResult(res JudgedResult) error {
	room, err := g.room(res.MatchID)
	if err != nil {
		g.logger.Warn("Late verdict for closed match",
			zap.String("matchId", res.MatchID),
			zap.String("submissionId", res.SubmissionID))
		return nil
	}

	outcome := room.applyVerdict(res, g.cfg.FirstSolveBonus)
	if !outcome.applied {
		return nil
	}

	p := outcome.player
	if err := g.players.UpdateScore(res.MatchID, p.PlayerID, p.Score, p.FullSolves, p.PartialSolves, p.Submissions); err != nil {
		g.logger.Error("Failed to persist player score",
			zap.String("matchId", res.MatchID),
			zap.String("playerId", p.PlayerID),
			zap.Error(err))
	}

	g.emitter.Emit(events.Event{
		MatchID: res.MatchID,
		Type:    events.TypeScoreUpdate,
		Payload: events.ScoreUpdate{
			PlayerID:   res.PlayerID,
			ProblemID:  res.ProblemID,
			Verdict:    res.Verdict,
			Awarded:    outcome.awarded,
			Score:      p.Score,
			FirstSolve: outcome.firstSolve,
		},
	})

	if outcome.teamScore != nil {
		g.emitter.Emit(events.Event{
			MatchID: res.MatchID,
			Type:    events.TypeTeamScoreUpdate,
			Payload: *outcome.teamScore,
		})
	}

	if outcome.fullSolve && g.anomaly != nil {
		go g.runAnomalyCheck(res.MatchID, res.PlayerID, outcome.difficulty, outcome.solveTime, p.Rating)
	}

	g.saveSnapshot(room)

	return nil
}

// runAnomalyCheck 완전 풀이에 대한 비동기 행동 분석
func (g *GameServer) runAnomalyCheck(matchID, playerID string, difficulty models.Difficulty, solveTime time.Duration, rating int) {
	for _, a := range g.anomaly.CheckBehavioralAnomalies(playerID, matchID, difficulty, solveTime, rating) {
		anomaly := a
		if g.anomalyStore == nil {
			continue
		}
		if err := g.anomalyStore.SaveAnomaly(&anomaly); err != nil {
			g.logger.Error("Failed to save behavioral anomaly",
				zap.String("matchId", matchID),
				zap.String("playerId", playerID),
				zap.Error(err))
		}
	}
}

// EndMatch in_progress -> finished 전이, 최종 순위/결과/레이팅 확정.
// 타이머와 명시 호출이 겹쳐도 한 번만 실행된다.
func (g *GameServer) EndMatch(matchID string) error {
	room, err := g.room(matchID)
	if err != nil {
		return err
	}

	room.mu.Lock()
	if room.finishing || room.match.Status != models.MatchStatusInProgress {
		room.mu.Unlock()
		return nil
	}
	room.finishing = true
	room.match.Status = models.MatchStatusFinished
	ended := g.now()
	room.match.EndedAt = &ended
	if room.durationTimer != nil {
		room.durationTimer.Stop()
	}

	standings := room.standingsLocked()
	mode := room.match.Mode
	playerStates := make(map[string]models.MatchPlayer, len(room.players))
	for id, p := range room.players {
		playerStates[id] = *p
	}
	room.mu.Unlock()

	results, winningTeam := decideResults(mode, standings, playerStates)
	for i := range standings {
		standings[i].Result = results[standings[i].PlayerID]
	}

	var ratingChanges []models.RatingChange
	if mode.Ranked() {
		ratingChanges = g.applyRatings(matchID, standings, playerStates)
	}

	if err := g.matches.SetFinished(matchID, ended); err != nil {
		g.logger.Error("Failed to persist match end",
			zap.String("matchId", matchID), zap.Error(err))
	}
	for _, st := range standings {
		if err := g.players.SetResult(matchID, st.PlayerID, st.Result, st.Rank); err != nil {
			g.logger.Error("Failed to persist player result",
				zap.String("matchId", matchID),
				zap.String("playerId", st.PlayerID),
				zap.Error(err))
		}
	}

	g.emitter.Emit(events.Event{
		MatchID: matchID,
		Type:    events.TypeMatchEnd,
		Payload: events.MatchEnd{
			Standings:     standings,
			RatingChanges: ratingChanges,
			WinningTeam:   winningTeam,
		},
	})

	g.removeRoom(matchID)

	g.logger.Info("Match finished",
		zap.String("matchId", matchID),
		zap.Int("players", len(standings)))

	return nil
}

// CancelMatch 매치 중단. 점수/레이팅은 확정하지 않는다.
func (g *GameServer) CancelMatch(matchID, reason string) error {
	room, err := g.room(matchID)
	if err != nil {
		return err
	}

	room.mu.Lock()
	if room.finishing || room.match.Status == models.MatchStatusFinished ||
		room.match.Status == models.MatchStatusCancelled {
		room.mu.Unlock()
		return nil
	}
	room.finishing = true
	room.match.Status = models.MatchStatusCancelled
	if room.durationTimer != nil {
		room.durationTimer.Stop()
	}
	room.mu.Unlock()

	if err := g.matches.UpdateStatus(matchID, models.MatchStatusCancelled); err != nil {
		g.logger.Error("Failed to persist match cancellation",
			zap.String("matchId", matchID), zap.Error(err))
	}

	g.emitter.Emit(events.Event{
		MatchID: matchID,
		Type:    events.TypeMatchCancelled,
		Payload: events.MatchCancelled{Reason: reason},
	})

	g.removeRoom(matchID)

	g.logger.Info("Match cancelled",
		zap.String("matchId", matchID),
		zap.String("reason", reason))

	return nil
}

// SetPlayerConnected 접속 상태 갱신 (websocket hub가 호출)
func (g *GameServer) SetPlayerConnected(matchID, playerID string, connected bool) error {
	room, err := g.room(matchID)
	if err != nil {
		return err
	}

	room.mu.Lock()
	p, ok := room.players[playerID]
	if !ok {
		room.mu.Unlock()
		return ErrPlayerNotInMatch
	}
	p.Connected = connected
	room.mu.Unlock()

	if err := g.players.SetConnected(matchID, playerID, connected); err != nil {
		g.logger.Error("Failed to persist connected flag",
			zap.String("matchId", matchID),
			zap.String("playerId", playerID),
			zap.Error(err))
	}

	return nil
}

// Standings 라이브 순위표. 룸이 없으면 ErrRoomNotFound.
func (g *GameServer) Standings(matchID string) ([]events.Standing, error) {
	room, err := g.room(matchID)
	if err != nil {
		return nil, err
	}
	return room.Standings(), nil
}

// HasRoom 진행 중인 룸 존재 여부
func (g *GameServer) HasRoom(matchID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.rooms[matchID]
	return ok
}

// ActiveRooms 진행 중 룸 수 (메트릭용)
func (g *GameServer) ActiveRooms() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// Shutdown 카운트다운 고루틴 종료 대기
func (g *GameServer) Shutdown() {
	g.wg.Wait()
}

func (g *GameServer) room(matchID string) (*Room, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	room, ok := g.rooms[matchID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

func (g *GameServer) removeRoom(matchID string) {
	g.mu.Lock()
	delete(g.rooms, matchID)
	g.mu.Unlock()

	if g.snapshots != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.snapshots.Delete(ctx, matchID); err != nil {
			g.logger.Warn("Failed to delete room snapshot",
				zap.String("matchId", matchID), zap.Error(err))
		}
	}
}

func (g *GameServer) saveSnapshot(room *Room) {
	if g.snapshots == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := g.snapshots.Save(ctx, room.match.ID, room.snapshot()); err != nil {
		g.logger.Warn("Failed to save room snapshot",
			zap.String("matchId", room.match.ID), zap.Error(err))
	}
}

// decideResults 모드별 win/loss/draw 판정.
// 1v1: 순위 비교, 전원 동률이면 무승부.
// 3v3: 팀 점수 합산, 동점이면 완전 풀이 수가 많은 팀이 이긴다.
// 둘 다 같아야 무승부. 승리 팀 전원이 win.
func decideResults(mode models.GameMode, standings []events.Standing, players map[string]models.MatchPlayer) (map[string]string, *string) {
	results := make(map[string]string, len(standings))

	if mode != models.ModeTeam3v3 {
		if len(standings) == 2 && standings[0].Rank == standings[1].Rank {
			for _, st := range standings {
				results[st.PlayerID] = "draw"
			}
			return results, nil
		}
		for _, st := range standings {
			if st.Rank == 1 {
				results[st.PlayerID] = "win"
			} else {
				results[st.PlayerID] = "loss"
			}
		}
		return results, nil
	}

	teamScores := make(map[string]int)
	teamSolves := make(map[string]int)
	for _, p := range players {
		if p.TeamID != nil {
			teamScores[*p.TeamID] += p.Score
			teamSolves[*p.TeamID] += p.FullSolves
		}
	}

	var winner *string
	bestScore, bestSolves := -1, -1
	tie := false
	for team, score := range teamScores {
		solves := teamSolves[team]
		switch {
		case score > bestScore || (score == bestScore && solves > bestSolves):
			t := team
			winner = &t
			bestScore, bestSolves = score, solves
			tie = false
		case score == bestScore && solves == bestSolves:
			tie = true
		}
	}
	if tie {
		winner = nil
	}

	for _, p := range players {
		switch {
		case winner == nil:
			results[p.PlayerID] = "draw"
		case p.TeamID != nil && *p.TeamID == *winner:
			results[p.PlayerID] = "win"
		default:
			results[p.PlayerID] = "loss"
		}
	}

	return results, winner
}

// applyRatings 랭크 1v1 Elo 적용. 두 변동 모두 매치 전 레이팅 기준.
func (g *GameServer) applyRatings(matchID string, standings []events.Standing, players map[string]models.MatchPlayer) []models.RatingChange {
	if len(standings) != 2 {
		return nil
	}

	p1, ok1 := players[standings[0].PlayerID]
	p2, ok2 := players[standings[1].PlayerID]
	if !ok1 || !ok2 {
		return nil
	}

	outcome := 0.5
	if standings[0].Rank < standings[1].Rank {
		outcome = 1.0
	} else if standings[0].Rank > standings[1].Rank {
		outcome = 0.0
	}

	new1, new2, delta1, delta2 := g.rating.CalculateNewRatings(p1.Rating, p2.Rating, outcome)

	changes := []models.RatingChange{
		{PlayerID: p1.PlayerID, MatchID: matchID, Before: p1.Rating, After: new1, Delta: delta1},
		{PlayerID: p2.PlayerID, MatchID: matchID, Before: p2.Rating, After: new2, Delta: delta2},
	}

	for i := range changes {
		if err := g.ratings.Append(&changes[i]); err != nil {
			g.logger.Error("Failed to append rating change",
				zap.String("matchId", matchID),
				zap.String("playerId", changes[i].PlayerID),
				zap.Error(err))
		}
	}

	return changes
}
