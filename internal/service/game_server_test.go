package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/battle-arena/arena-backend/internal/events"
	"github.com/battle-arena/arena-backend/internal/models"
)

type stubLifecycle struct {
	mu            sync.Mutex
	statusUpdates []models.MatchStatus
	started       int
	finished      int
}

func (s *stubLifecycle) UpdateStatus(id string, status models.MatchStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusUpdates = append(s.statusUpdates, status)
	return nil
}

func (s *stubLifecycle) SetStarted(id string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started++
	return nil
}

func (s *stubLifecycle) SetFinished(id string, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished++
	return nil
}

func (s *stubLifecycle) finishedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

type stubPlayerState struct {
	mu           sync.Mutex
	scoreUpdates int
	results      map[string]string
	ranks        map[string]int
}

func newStubPlayerState() *stubPlayerState {
	return &stubPlayerState{results: make(map[string]string), ranks: make(map[string]int)}
}

func (s *stubPlayerState) UpdateScore(matchID, playerID string, score, fullSolves, partialSolves, submissions int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scoreUpdates++
	return nil
}

func (s *stubPlayerState) SetResult(matchID, playerID, result string, rank int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[playerID] = result
	s.ranks[playerID] = rank
	return nil
}

func (s *stubPlayerState) SetConnected(matchID, playerID string, connected bool) error {
	return nil
}

type stubRatingLedger struct {
	mu       sync.Mutex
	appended []models.RatingChange
}

func (s *stubRatingLedger) Append(c *models.RatingChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appended = append(s.appended, *c)
	return nil
}

type captureEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *captureEmitter) Emit(ev events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureEmitter) ofType(t events.Type) []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []events.Event
	for _, ev := range c.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type captureSnapshotStore struct {
	mu    sync.Mutex
	saved []*RoomSnapshot
}

func (c *captureSnapshotStore) Save(ctx context.Context, matchID string, snapshot interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saved = append(c.saved, snapshot.(*RoomSnapshot))
	return nil
}

func (c *captureSnapshotStore) Delete(ctx context.Context, matchID string) error { return nil }

func (c *captureSnapshotStore) last() *RoomSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.saved) == 0 {
		return nil
	}
	return c.saved[len(c.saved)-1]
}

type gameFixture struct {
	game      *GameServer
	lifecycle *stubLifecycle
	players   *stubPlayerState
	ratings   *stubRatingLedger
	emitter   *captureEmitter
	match     *models.Match
	now       time.Time
}

func newGameFixture(t *testing.T, mode models.GameMode, matchPlayers []models.MatchPlayer) *gameFixture {
	t.Helper()

	fx := &gameFixture{
		lifecycle: &stubLifecycle{},
		players:   newStubPlayerState(),
		ratings:   &stubRatingLedger{},
		emitter:   &captureEmitter{},
		now:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	// 카운트다운 0초로 바로 in_progress까지 간다
	fx.game = NewGameServer(
		fx.lifecycle, fx.players, fx.ratings, nil,
		NewRatingService(), fx.emitter,
		GameServerConfig{CountdownSeconds: 0, FirstSolveBonus: 20},
		zap.NewNop(),
	)
	fx.game.now = func() time.Time { return fx.now }

	probs := problems(models.DifficultyMedium, mode.ProblemCount())
	fx.match = &models.Match{
		ID:          "match-1",
		Mode:        mode,
		Status:      models.MatchStatusWaiting,
		DurationSec: 900,
	}
	for _, p := range probs {
		fx.match.ProblemIDs = append(fx.match.ProblemIDs, p.ID)
	}

	require.NoError(t, fx.game.InitializeRoom(fx.match, matchPlayers, probs))
	fx.game.Shutdown() // 카운트다운 고루틴이 StartMatch까지 끝낸 뒤 진행

	return fx
}

func duoPlayers(mode models.GameMode) []models.MatchPlayer {
	return []models.MatchPlayer{
		{MatchID: "match-1", PlayerID: "p1", Rating: 1200},
		{MatchID: "match-1", PlayerID: "p2", Rating: 1200},
	}
}

func trioTeams() []models.MatchPlayer {
	teamA, teamB := "team-a", "team-b"
	var players []models.MatchPlayer
	for i := 1; i <= 3; i++ {
		players = append(players, models.MatchPlayer{
			MatchID: "match-1", PlayerID: fmt.Sprintf("a%d", i), TeamID: &teamA, Rating: 1200,
		})
	}
	for i := 1; i <= 3; i++ {
		players = append(players, models.MatchPlayer{
			MatchID: "match-1", PlayerID: fmt.Sprintf("b%d", i), TeamID: &teamB, Rating: 1200,
		})
	}
	return players
}

func accepted(subID, playerID string, at time.Time) JudgedResult {
	return JudgedResult{
		SubmissionID: subID,
		MatchID:      "match-1",
		PlayerID:     playerID,
		ProblemID:    "medium-1",
		Verdict:      models.VerdictAccepted,
		TestsPassed:  2,
		TestsTotal:   2,
		SubmittedAt:  at,
	}
}

func TestGameServer_InitializeStartsMatch(t *testing.T) {
	fx := newGameFixture(t, models.ModeRanked1v1, duoPlayers(models.ModeRanked1v1))

	assert.True(t, fx.game.HasRoom("match-1"))
	assert.Equal(t, 1, fx.game.ActiveRooms())
	assert.Len(t, fx.emitter.ofType(events.TypeMatchStart), 1)
	assert.ErrorIs(t, fx.game.InitializeRoom(fx.match, duoPlayers(models.ModeRanked1v1), nil), ErrRoomExists)
}

func TestGameServer_FullSolveScoring(t *testing.T) {
	fx := newGameFixture(t, models.ModeRanked1v1, duoPlayers(models.ModeRanked1v1))

	// 시작 직후 정답: 200 + 시간 보너스 40 + 첫 풀이 20
	require.NoError(t, fx.game.HandleSubmissionResult(accepted("sub-1", "p1", fx.now)))

	updates := fx.emitter.ofType(events.TypeScoreUpdate)
	require.Len(t, updates, 1)
	payload := updates[0].Payload.(events.ScoreUpdate)
	assert.Equal(t, 260, payload.Awarded)
	assert.Equal(t, 260, payload.Score)
	assert.True(t, payload.FirstSolve)

	standings, err := fx.game.Standings("match-1")
	require.NoError(t, err)
	assert.Equal(t, "p1", standings[0].PlayerID)
	assert.Equal(t, 260, standings[0].Score)
	assert.Equal(t, 1, standings[0].Rank)
	assert.Equal(t, 2, standings[1].Rank)
}

func TestGameServer_TimeBonusDecays(t *testing.T) {
	fx := newGameFixture(t, models.ModeRanked1v1, duoPlayers(models.ModeRanked1v1))

	// 경기 절반 지점 정답: 보너스 40 -> 20
	halfway := fx.now.Add(450 * time.Second)
	require.NoError(t, fx.game.HandleSubmissionResult(accepted("sub-1", "p1", halfway)))

	payload := fx.emitter.ofType(events.TypeScoreUpdate)[0].Payload.(events.ScoreUpdate)
	assert.Equal(t, 200+20+20, payload.Awarded)
}

func TestGameServer_DuplicateSubmissionIgnored(t *testing.T) {
	fx := newGameFixture(t, models.ModeRanked1v1, duoPlayers(models.ModeRanked1v1))

	res := accepted("sub-1", "p1", fx.now)
	require.NoError(t, fx.game.HandleSubmissionResult(res))
	require.NoError(t, fx.game.HandleSubmissionResult(res))

	assert.Len(t, fx.emitter.ofType(events.TypeScoreUpdate), 1, "replayed verdict must not re-score")

	standings, _ := fx.game.Standings("match-1")
	assert.Equal(t, 1, standings[0].Submissions)
}

func TestGameServer_PartialThenFullSolve(t *testing.T) {
	fx := newGameFixture(t, models.ModeRanked1v1, duoPlayers(models.ModeRanked1v1))

	partial := JudgedResult{
		SubmissionID: "sub-1",
		MatchID:      "match-1",
		PlayerID:     "p1",
		ProblemID:    "medium-1",
		Verdict:      models.VerdictWrongAnswer,
		TestsPassed:  1,
		TestsTotal:   2,
		SubmittedAt:  fx.now,
	}
	require.NoError(t, fx.game.HandleSubmissionResult(partial))

	// floor(200 * 1/2 * 0.3) = 30
	first := fx.emitter.ofType(events.TypeScoreUpdate)[0].Payload.(events.ScoreUpdate)
	assert.Equal(t, 30, first.Awarded)

	// 같은 테스트 통과 수 재제출은 가산 없음
	partial.SubmissionID = "sub-2"
	require.NoError(t, fx.game.HandleSubmissionResult(partial))
	second := fx.emitter.ofType(events.TypeScoreUpdate)[1].Payload.(events.ScoreUpdate)
	assert.Equal(t, 0, second.Awarded)

	// 절반 지점 완전 풀이: 200 + 20(시간) + 20(첫 풀이) - 30(기지급 부분 점수)
	require.NoError(t, fx.game.HandleSubmissionResult(accepted("sub-3", "p1", fx.now.Add(450*time.Second))))
	full := fx.emitter.ofType(events.TypeScoreUpdate)[2].Payload.(events.ScoreUpdate)
	assert.Equal(t, 210, full.Awarded)
	assert.Equal(t, 240, full.Score)
}

func TestGameServer_FirstSolveBonusClaimedOnce(t *testing.T) {
	fx := newGameFixture(t, models.ModeRanked1v1, duoPlayers(models.ModeRanked1v1))

	var wg sync.WaitGroup
	for i, player := range []string{"p1", "p2"} {
		wg.Add(1)
		go func(subID, playerID string) {
			defer wg.Done()
			_ = fx.game.HandleSubmissionResult(accepted(subID, playerID, fx.now))
		}(fmt.Sprintf("sub-%d", i+1), player)
	}
	wg.Wait()

	updates := fx.emitter.ofType(events.TypeScoreUpdate)
	require.Len(t, updates, 2)

	bonuses := 0
	for _, ev := range updates {
		if ev.Payload.(events.ScoreUpdate).FirstSolve {
			bonuses++
		}
	}
	assert.Equal(t, 1, bonuses, "first-solve bonus must go to exactly one player")
}

func TestGameServer_EndMatchRunsOnce(t *testing.T) {
	fx := newGameFixture(t, models.ModeRanked1v1, duoPlayers(models.ModeRanked1v1))

	require.NoError(t, fx.game.HandleSubmissionResult(accepted("sub-1", "p1", fx.now)))

	require.NoError(t, fx.game.EndMatch("match-1"))
	// 두 번째 호출은 no-op (타이머와 명시 호출이 겹치는 경우)
	assert.ErrorIs(t, fx.game.EndMatch("match-1"), ErrRoomNotFound)

	assert.Equal(t, 1, fx.lifecycle.finishedCount())
	assert.Len(t, fx.emitter.ofType(events.TypeMatchEnd), 1)
	assert.False(t, fx.game.HasRoom("match-1"))
}

func TestGameServer_RankedEloApplied(t *testing.T) {
	fx := newGameFixture(t, models.ModeRanked1v1, duoPlayers(models.ModeRanked1v1))

	require.NoError(t, fx.game.HandleSubmissionResult(accepted("sub-1", "p1", fx.now)))
	require.NoError(t, fx.game.EndMatch("match-1"))

	require.Len(t, fx.ratings.appended, 2)
	byPlayer := map[string]models.RatingChange{}
	for _, c := range fx.ratings.appended {
		byPlayer[c.PlayerID] = c
	}
	assert.Equal(t, 16, byPlayer["p1"].Delta)
	assert.Equal(t, -16, byPlayer["p2"].Delta)
	assert.Equal(t, 1200, byPlayer["p1"].Before)
	assert.Equal(t, 1216, byPlayer["p1"].After)

	assert.Equal(t, "win", fx.players.results["p1"])
	assert.Equal(t, "loss", fx.players.results["p2"])

	end := fx.emitter.ofType(events.TypeMatchEnd)[0].Payload.(events.MatchEnd)
	assert.Len(t, end.RatingChanges, 2)
}

func TestGameServer_ScorelessRankedMatchIsDraw(t *testing.T) {
	fx := newGameFixture(t, models.ModeRanked1v1, duoPlayers(models.ModeRanked1v1))

	require.NoError(t, fx.game.EndMatch("match-1"))

	assert.Equal(t, "draw", fx.players.results["p1"])
	assert.Equal(t, "draw", fx.players.results["p2"])

	for _, c := range fx.ratings.appended {
		assert.Zero(t, c.Delta, "draw between equals must not move ratings")
	}
}

func TestGameServer_CasualMatchSkipsRatings(t *testing.T) {
	fx := newGameFixture(t, models.ModeCasual1v1, duoPlayers(models.ModeCasual1v1))

	require.NoError(t, fx.game.HandleSubmissionResult(accepted("sub-1", "p1", fx.now)))
	require.NoError(t, fx.game.EndMatch("match-1"))

	assert.Empty(t, fx.ratings.appended)
	assert.Equal(t, "win", fx.players.results["p1"])
}

func TestGameServer_TeamMatchDecidesWinningTeam(t *testing.T) {
	fx := newGameFixture(t, models.ModeTeam3v3, trioTeams())

	require.NoError(t, fx.game.HandleSubmissionResult(accepted("sub-1", "a1", fx.now)))

	team := fx.emitter.ofType(events.TypeTeamScoreUpdate)
	require.Len(t, team, 1)
	assert.Equal(t, "team-a", team[0].Payload.(events.TeamScoreUpdate).TeamID)

	require.NoError(t, fx.game.EndMatch("match-1"))

	end := fx.emitter.ofType(events.TypeMatchEnd)[0].Payload.(events.MatchEnd)
	require.NotNil(t, end.WinningTeam)
	assert.Equal(t, "team-a", *end.WinningTeam)

	assert.Equal(t, "win", fx.players.results["a2"], "whole winning team wins")
	assert.Equal(t, "loss", fx.players.results["b1"])
	assert.Empty(t, fx.ratings.appended, "team mode is unrated")
}

func TestGameServer_TeamFullSolvesTieBreak(t *testing.T) {
	teamA, teamB := "team-a", "team-b"
	players := map[string]models.MatchPlayer{
		"a1": {PlayerID: "a1", TeamID: &teamA, Score: 220, FullSolves: 1},
		"a2": {PlayerID: "a2", TeamID: &teamA},
		"b1": {PlayerID: "b1", TeamID: &teamB, Score: 120, PartialSolves: 2},
		"b2": {PlayerID: "b2", TeamID: &teamB, Score: 100, PartialSolves: 1},
	}

	results, winner := decideResults(models.ModeTeam3v3, nil, players)

	require.NotNil(t, winner, "equal team scores fall back to full solves")
	assert.Equal(t, "team-a", *winner)
	assert.Equal(t, "win", results["a2"])
	assert.Equal(t, "loss", results["b1"])
}

func TestGameServer_TeamTieIsDraw(t *testing.T) {
	fx := newGameFixture(t, models.ModeTeam3v3, trioTeams())

	require.NoError(t, fx.game.EndMatch("match-1"))

	end := fx.emitter.ofType(events.TypeMatchEnd)[0].Payload.(events.MatchEnd)
	assert.Nil(t, end.WinningTeam)
	assert.Equal(t, "draw", fx.players.results["a1"])
	assert.Equal(t, "draw", fx.players.results["b3"])
}

func TestGameServer_PartialCreditOnTimeLimit(t *testing.T) {
	fx := newGameFixture(t, models.ModeRanked1v1, duoPlayers(models.ModeRanked1v1))

	res := JudgedResult{
		SubmissionID: "sub-1",
		MatchID:      "match-1",
		PlayerID:     "p1",
		ProblemID:    "medium-1",
		Verdict:      models.VerdictTimeLimit,
		TestsPassed:  1,
		TestsTotal:   2,
		SubmittedAt:  fx.now,
	}
	require.NoError(t, fx.game.HandleSubmissionResult(res))

	// 시간 초과라도 통과한 테스트만큼 부분 점수: floor(200 * 1/2 * 0.3) = 30
	first := fx.emitter.ofType(events.TypeScoreUpdate)[0].Payload.(events.ScoreUpdate)
	assert.Equal(t, 30, first.Awarded)

	// 다른 판정으로 같은 통과 수를 내도 최고치 초과분만 가산된다
	res.SubmissionID = "sub-2"
	res.Verdict = models.VerdictRuntimeError
	require.NoError(t, fx.game.HandleSubmissionResult(res))
	second := fx.emitter.ofType(events.TypeScoreUpdate)[1].Payload.(events.ScoreUpdate)
	assert.Equal(t, 0, second.Awarded)
}

func TestGameServer_SnapshotDetachedFromLiveMatch(t *testing.T) {
	snaps := &captureSnapshotStore{}
	g := NewGameServer(&stubLifecycle{}, newStubPlayerState(), &stubRatingLedger{}, snaps,
		NewRatingService(), &captureEmitter{},
		GameServerConfig{CountdownSeconds: 0, FirstSolveBonus: 20}, zap.NewNop())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	match := &models.Match{
		ID:          "match-1",
		Mode:        models.ModeRanked1v1,
		Status:      models.MatchStatusWaiting,
		ProblemIDs:  []string{"medium-1"},
		DurationSec: 900,
	}
	require.NoError(t, g.InitializeRoom(match, duoPlayers(models.ModeRanked1v1), problems(models.DifficultyMedium, 1)))
	g.Shutdown()

	require.NoError(t, g.HandleSubmissionResult(accepted("sub-1", "p1", now)))
	last := snaps.last()
	require.NotNil(t, last)
	require.Equal(t, models.MatchStatusInProgress, last.Match.Status)
	assert.True(t, last.ProcessedSubs["sub-1"], "processed submission ids survive in the snapshot")

	// 룸이 종료돼도 이미 저장된 스냅샷은 변하지 않아야 한다
	// (직렬화가 룸 락 밖에서 일어나므로 live match를 공유하면 안 된다)
	require.NoError(t, g.EndMatch("match-1"))
	assert.Equal(t, models.MatchStatusInProgress, last.Match.Status)
	assert.Nil(t, last.Match.EndedAt)
}

func TestGameServer_CancelMatchStopsScoring(t *testing.T) {
	fx := newGameFixture(t, models.ModeRanked1v1, duoPlayers(models.ModeRanked1v1))

	require.NoError(t, fx.game.CancelMatch("match-1", "player disconnected"))

	cancelled := fx.emitter.ofType(events.TypeMatchCancelled)
	require.Len(t, cancelled, 1)
	assert.Equal(t, "player disconnected", cancelled[0].Payload.(events.MatchCancelled).Reason)
	assert.False(t, fx.game.HasRoom("match-1"))

	// 룸이 내려간 뒤 도착한 판정은 조용히 버려진다
	require.NoError(t, fx.game.HandleSubmissionResult(accepted("sub-1", "p1", fx.now)))
	assert.Empty(t, fx.emitter.ofType(events.TypeScoreUpdate))
}

func TestGameServer_LateVerdictIsIgnored(t *testing.T) {
	fx := newGameFixture(t, models.ModeRanked1v1, duoPlayers(models.ModeRanked1v1))

	res := accepted("sub-1", "p1", fx.now)
	res.MatchID = "gone"

	assert.NoError(t, fx.game.HandleSubmissionResult(res))
	assert.Empty(t, fx.emitter.ofType(events.TypeScoreUpdate))
}

func TestGameServer_SetPlayerConnected(t *testing.T) {
	fx := newGameFixture(t, models.ModeRanked1v1, duoPlayers(models.ModeRanked1v1))

	assert.NoError(t, fx.game.SetPlayerConnected("match-1", "p1", true))
	assert.ErrorIs(t, fx.game.SetPlayerConnected("match-1", "ghost", true), ErrPlayerNotInMatch)
	assert.ErrorIs(t, fx.game.SetPlayerConnected("no-room", "p1", true), ErrRoomNotFound)
}

func TestGameServer_RestoreRoom(t *testing.T) {
	emitter := &captureEmitter{}
	g := NewGameServer(&stubLifecycle{}, newStubPlayerState(), &stubRatingLedger{}, nil,
		NewRatingService(), emitter,
		GameServerConfig{CountdownSeconds: 0, FirstSolveBonus: 20}, zap.NewNop())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	snap := &RoomSnapshot{
		Match: &models.Match{
			ID:          "match-1",
			Mode:        models.ModeRanked1v1,
			Status:      models.MatchStatusInProgress,
			ProblemIDs:  []string{"medium-1"},
			DurationSec: 900,
		},
		Players: map[string]*models.MatchPlayer{
			"p1": {MatchID: "match-1", PlayerID: "p1", Rating: 1200, Score: 30, PartialSolves: 1, Submissions: 1},
			"p2": {MatchID: "match-1", PlayerID: "p2", Rating: 1200},
		},
		PartialAwarded: map[string]map[string]int{"medium-1": {"p1": 30}},
		ProcessedSubs:  map[string]bool{"sub-1": true},
		StartedAt:      now.Add(-5 * time.Minute),
		EndsAt:         now.Add(10 * time.Minute),
	}

	require.NoError(t, g.RestoreRoom(snap, problems(models.DifficultyMedium, 1)))
	assert.True(t, g.HasRoom("match-1"))

	standings, err := g.Standings("match-1")
	require.NoError(t, err)
	assert.Equal(t, "p1", standings[0].PlayerID)
	assert.Equal(t, 30, standings[0].Score)

	// 스냅샷에 기록된 처리 완료 제출이 재전달돼도 다시 점수화되지 않는다
	require.NoError(t, g.HandleSubmissionResult(accepted("sub-1", "p1", now)))
	assert.Empty(t, emitter.ofType(events.TypeScoreUpdate))

	// 복원된 룸은 판정을 계속 받는다: 경과 5/15분 -> 시간 보너스 26, 첫 풀이 20
	require.NoError(t, g.HandleSubmissionResult(accepted("sub-9", "p2", now)))
	payload := emitter.ofType(events.TypeScoreUpdate)[0].Payload.(events.ScoreUpdate)
	assert.Equal(t, 246, payload.Awarded)
	assert.True(t, payload.FirstSolve)

	assert.ErrorIs(t, g.RestoreRoom(snap, nil), ErrRoomExists)

	require.NoError(t, g.EndMatch("match-1"))
}

func TestGameServer_RestoreRoomRequiresInProgress(t *testing.T) {
	g := NewGameServer(&stubLifecycle{}, newStubPlayerState(), &stubRatingLedger{}, nil,
		NewRatingService(), &captureEmitter{},
		GameServerConfig{CountdownSeconds: 0, FirstSolveBonus: 20}, zap.NewNop())

	snap := &RoomSnapshot{
		Match: &models.Match{ID: "match-1", Status: models.MatchStatusCountdown},
	}

	assert.ErrorIs(t, g.RestoreRoom(snap, nil), ErrBadTransition)
	assert.ErrorIs(t, g.RestoreRoom(nil, nil), ErrInvalidInput)
}

func TestRoom_StandingsTieBreaks(t *testing.T) {
	match := &models.Match{ID: "m", Mode: models.ModeCasual1v1, DurationSec: 900}
	room := newRoom(match, []models.MatchPlayer{
		{PlayerID: "many-subs"},
		{PlayerID: "few-subs"},
		{PlayerID: "fewer-solves"},
		{PlayerID: "low-score"},
	}, problems(models.DifficultyMedium, 1))

	room.players["many-subs"].Score = 300
	room.players["many-subs"].FullSolves = 2
	room.players["many-subs"].Submissions = 5

	room.players["few-subs"].Score = 300
	room.players["few-subs"].FullSolves = 2
	room.players["few-subs"].Submissions = 2

	room.players["fewer-solves"].Score = 300
	room.players["fewer-solves"].FullSolves = 1
	room.players["fewer-solves"].Submissions = 1

	room.players["low-score"].Score = 100

	standings := room.Standings()

	order := []string{standings[0].PlayerID, standings[1].PlayerID, standings[2].PlayerID, standings[3].PlayerID}
	assert.Equal(t, []string{"few-subs", "many-subs", "fewer-solves", "low-score"}, order)
	assert.Equal(t, []int{1, 2, 3, 4}, []int{standings[0].Rank, standings[1].Rank, standings[2].Rank, standings[3].Rank})
}

func TestRoom_DenseRanksOnTies(t *testing.T) {
	match := &models.Match{ID: "m", Mode: models.ModeCasual1v1, DurationSec: 900}
	room := newRoom(match, []models.MatchPlayer{
		{PlayerID: "a"}, {PlayerID: "b"}, {PlayerID: "c"},
	}, problems(models.DifficultyMedium, 1))

	room.players["a"].Score = 200
	room.players["b"].Score = 200
	room.players["c"].Score = 100

	standings := room.Standings()

	assert.Equal(t, 1, standings[0].Rank)
	assert.Equal(t, 1, standings[1].Rank)
	assert.Equal(t, 2, standings[2].Rank, "rank after a tie is dense, not skipped")
}
