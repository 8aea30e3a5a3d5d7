package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/battle-arena/arena-backend/internal/models"
)

// WaitingStore 매칭 대기열 저장소
type WaitingStore interface {
	Add(ctx context.Context, entry models.QueueEntry) error
	Remove(ctx context.Context, mode models.GameMode, playerID string) (bool, error)
	RemoveBatch(ctx context.Context, mode models.GameMode, playerIDs []string) error
	List(ctx context.Context, mode models.GameMode) ([]models.QueueEntry, error)
	Count(ctx context.Context, mode models.GameMode) (int64, error)
	ExpireBefore(ctx context.Context, mode models.GameMode, cutoff time.Time) (int64, error)
}

// ProblemSelector 매치 출제용 문제 선택
type ProblemSelector interface {
	FindByDifficulty(difficulty models.Difficulty, limit int) ([]*models.Problem, error)
	FindAny(limit int) ([]*models.Problem, error)
}

// MatchStore 매치/참가자 영속화
type MatchStore interface {
	Create(mode models.GameMode, problemIDs []string, durationSec int) (*models.Match, error)
}

type MatchPlayerStore interface {
	CreateBatch(players []models.MatchPlayer) error
}

// RoomStarter 매칭 성립 후 매치 룸 기동 (GameServer가 구현)
type RoomStarter interface {
	InitializeRoom(match *models.Match, players []models.MatchPlayer, problems []*models.Problem) error
}

// ScanNotifier 큐 가입을 다른 인스턴스에 알림 (nil이면 비활성)
type ScanNotifier interface {
	NotifyEnqueued(ctx context.Context, mode, playerID string) error
}

// MatchmakingConfig 매칭 파라미터
type MatchmakingConfig struct {
	Interval         time.Duration
	WindowBase       int           // 기본 허용 레이팅 차이
	WindowStep       int           // WindowWidenEvery마다 확장되는 폭
	WindowWidenEvery time.Duration
	QueueTTL         time.Duration
	Duration1v1      time.Duration
	Duration3v3      time.Duration
}

func DefaultMatchmakingConfig() MatchmakingConfig {
	return MatchmakingConfig{
		Interval:         5 * time.Second,
		WindowBase:       100,
		WindowStep:       50,
		WindowWidenEvery: 10 * time.Second,
		QueueTTL:         24 * time.Hour,
		Duration1v1:      15 * time.Minute,
		Duration3v3:      30 * time.Minute,
	}
}

// 문제 난이도 버킷 경계 (매치 평균 레이팅 기준)
const (
	easyBucketBelow = 1000
	hardBucketAbove = 1400
)

// MatchmakingService 레이팅 기반 매칭 서비스.
// 주기 스캔 + 큐 가입 이벤트 스캔 두 경로로 돌며,
// 모드별 뮤텍스로 같은 프로세스 내 중복 스캔을 막는다.
type MatchmakingService struct {
	waiting  WaitingStore
	problems ProblemSelector
	matches  MatchStore
	players  MatchPlayerStore
	rooms    RoomStarter
	notifier ScanNotifier
	cfg      MatchmakingConfig
	logger   *zap.Logger

	// 테스트에서 주입하는 시계
	now func() time.Time

	scanMu   map[models.GameMode]*sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewMatchmakingService(
	waiting WaitingStore,
	problems ProblemSelector,
	matches MatchStore,
	players MatchPlayerStore,
	rooms RoomStarter,
	notifier ScanNotifier,
	cfg MatchmakingConfig,
	logger *zap.Logger,
) *MatchmakingService {
	scanMu := make(map[models.GameMode]*sync.Mutex)
	for _, mode := range allModes() {
		scanMu[mode] = &sync.Mutex{}
	}

	return &MatchmakingService{
		waiting:  waiting,
		problems: problems,
		matches:  matches,
		players:  players,
		rooms:    rooms,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		scanMu:   scanMu,
		stopChan: make(chan struct{}),
	}
}

func allModes() []models.GameMode {
	return []models.GameMode{models.ModeCasual1v1, models.ModeRanked1v1, models.ModeTeam3v3}
}

// Join 대기열 가입. 이미 대기 중이면 엔트리를 덮어쓴다 (JoinedAt 리셋).
func (s *MatchmakingService) Join(ctx context.Context, playerID string, mode models.GameMode, rating int, teamID string) error {
	if !mode.Valid() {
		return ErrInvalidMode
	}
	if playerID == "" {
		return ErrInvalidInput
	}
	if teamID != "" && mode != models.ModeTeam3v3 {
		return ErrInvalidInput
	}

	entry := models.QueueEntry{
		PlayerID: playerID,
		Mode:     mode,
		Rating:   rating,
		TeamID:   teamID,
		JoinedAt: s.now(),
	}

	if err := s.waiting.Add(ctx, entry); err != nil {
		return fmt.Errorf("failed to join queue: %w", err)
	}

	s.logger.Info("Player joined queue",
		zap.String("playerId", playerID),
		zap.String("mode", string(mode)),
		zap.Int("rating", rating))

	if s.notifier != nil {
		if err := s.notifier.NotifyEnqueued(ctx, string(mode), playerID); err != nil {
			// 알림 실패는 치명적이지 않다 — 주기 스캔이 잡는다
			s.logger.Warn("Failed to notify enqueue", zap.Error(err))
		}
	}

	return nil
}

// Leave 대기열 이탈
func (s *MatchmakingService) Leave(ctx context.Context, playerID string, mode models.GameMode) error {
	if !mode.Valid() {
		return ErrInvalidMode
	}

	removed, err := s.waiting.Remove(ctx, mode, playerID)
	if err != nil {
		return fmt.Errorf("failed to leave queue: %w", err)
	}
	if !removed {
		return ErrNotInQueue
	}

	s.logger.Info("Player left queue",
		zap.String("playerId", playerID),
		zap.String("mode", string(mode)))

	return nil
}

// QueueStatus 모드별 대기 현황
func (s *MatchmakingService) QueueStatus(ctx context.Context, mode models.GameMode) (*models.QueueStatus, error) {
	if !mode.Valid() {
		return nil, ErrInvalidMode
	}

	entries, err := s.waiting.List(ctx, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}

	status := &models.QueueStatus{Mode: mode, Count: len(entries)}
	if len(entries) > 0 {
		now := s.now()
		var total int64
		for _, e := range entries {
			total += now.Sub(e.JoinedAt).Milliseconds()
		}
		status.AvgWaitMs = total / int64(len(entries))
	}

	return status, nil
}

// Start 주기 스캔 루프 시작
func (s *MatchmakingService) Start() {
	s.wg.Add(1)
	go s.scanLoop()
	s.logger.Info("Matchmaking service started",
		zap.Duration("interval", s.cfg.Interval))
}

// Stop 스캔 루프 중지 (진행 중 스캔 완료 대기)
func (s *MatchmakingService) Stop() {
	close(s.stopChan)
	s.wg.Wait()
	s.logger.Info("Matchmaking service stopped")
}

func (s *MatchmakingService) scanLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, mode := range allModes() {
				if err := s.ScanMode(context.Background(), mode); err != nil && err != ErrScanInProgress {
					s.logger.Error("Matchmaking scan failed",
						zap.String("mode", string(mode)),
						zap.Error(err))
				}
			}
		case <-s.stopChan:
			return
		}
	}
}

// HandleScanEvent ScanCoordinator 핸들러 어댑터
func (s *MatchmakingService) HandleScanEvent(mode string) error {
	m := models.GameMode(mode)
	if !m.Valid() {
		return ErrInvalidMode
	}

	err := s.ScanMode(context.Background(), m)
	if err == ErrScanInProgress {
		return nil
	}
	return err
}

// ScanMode 한 모드의 대기열을 스캔해 성립 가능한 매치를 전부 만든다.
func (s *MatchmakingService) ScanMode(ctx context.Context, mode models.GameMode) error {
	mu, ok := s.scanMu[mode]
	if !ok {
		return ErrInvalidMode
	}
	if !mu.TryLock() {
		return ErrScanInProgress
	}
	defer mu.Unlock()

	// 만료 엔트리 정리
	if expired, err := s.waiting.ExpireBefore(ctx, mode, s.now().Add(-s.cfg.QueueTTL)); err != nil {
		s.logger.Warn("Failed to expire stale queue entries", zap.Error(err))
	} else if expired > 0 {
		s.logger.Info("Expired stale queue entries",
			zap.String("mode", string(mode)),
			zap.Int64("count", expired))
	}

	entries, err := s.waiting.List(ctx, mode)
	if err != nil {
		return fmt.Errorf("failed to list queue: %w", err)
	}

	units := s.buildUnits(mode, entries)
	if len(units) < 2 {
		return nil
	}

	now := s.now()
	matched := make(map[int]bool)

	// FIFO: 오래 기다린 유닛부터 짝을 찾는다
	for i := 0; i < len(units); i++ {
		if matched[i] {
			continue
		}
		for j := i + 1; j < len(units); j++ {
			if matched[j] {
				continue
			}
			if !s.compatible(units[i], units[j], now) {
				continue
			}

			matched[i], matched[j] = true, true
			if err := s.createMatch(ctx, mode, units[i], units[j]); err != nil {
				s.logger.Error("Failed to create match",
					zap.String("mode", string(mode)),
					zap.Error(err))
			}
			break
		}
	}

	return nil
}

// matchUnit 매칭 단위: 1v1은 플레이어 한 명, 3v3은 세 명 묶음
type matchUnit struct {
	entries   []models.QueueEntry
	avgRating int
	joinedAt  time.Time // 가장 오래 기다린 멤버 기준
}

func newMatchUnit(entries []models.QueueEntry) matchUnit {
	u := matchUnit{entries: entries, joinedAt: entries[0].JoinedAt}
	sum := 0
	for _, e := range entries {
		sum += e.Rating
		if e.JoinedAt.Before(u.joinedAt) {
			u.joinedAt = e.JoinedAt
		}
	}
	u.avgRating = sum / len(entries)
	return u
}

// buildUnits 엔트리를 매칭 단위로 묶는다.
// 3v3: 같은 TeamID의 프리메이드는 정확히 3명일 때만 유닛이 되고,
// 솔로는 대기 순서대로 3명씩 임시 팀을 이룬다.
func (s *MatchmakingService) buildUnits(mode models.GameMode, entries []models.QueueEntry) []matchUnit {
	size := mode.TeamSize()
	if size == 1 {
		units := make([]matchUnit, 0, len(entries))
		for _, e := range entries {
			units = append(units, newMatchUnit([]models.QueueEntry{e}))
		}
		return units
	}

	var units []matchUnit
	premade := make(map[string][]models.QueueEntry)
	var solos []models.QueueEntry

	for _, e := range entries {
		if e.TeamID != "" {
			premade[e.TeamID] = append(premade[e.TeamID], e)
		} else {
			solos = append(solos, e)
		}
	}

	for _, members := range premade {
		if len(members) == size {
			units = append(units, newMatchUnit(members))
		}
		// 인원이 안 맞는 프리메이드는 나머지 멤버가 올 때까지 대기
	}

	for len(solos) >= size {
		units = append(units, newMatchUnit(solos[:size]))
		solos = solos[size:]
	}

	return units
}

// compatible 두 유닛의 레이팅 차이가 양쪽 허용 범위 안인지
func (s *MatchmakingService) compatible(a, b matchUnit, now time.Time) bool {
	diff := a.avgRating - b.avgRating
	if diff < 0 {
		diff = -diff
	}

	return diff <= s.windowFor(a, now) && diff <= s.windowFor(b, now)
}

// windowFor 대기 시간에 따라 넓어지는 허용 레이팅 차이
func (s *MatchmakingService) windowFor(u matchUnit, now time.Time) int {
	waited := now.Sub(u.joinedAt)
	if waited < 0 {
		waited = 0
	}

	steps := int(waited / s.cfg.WindowWidenEvery)

	return s.cfg.WindowBase + steps*s.cfg.WindowStep
}

// createMatch 유닛 쌍을 매치로 전환한다.
// 대기열에서 먼저 원자 제거하고, 이후 실패 시 재등록한다.
func (s *MatchmakingService) createMatch(ctx context.Context, mode models.GameMode, a, b matchUnit) error {
	all := append(append([]models.QueueEntry{}, a.entries...), b.entries...)
	ids := make([]string, len(all))
	for i, e := range all {
		ids[i] = e.PlayerID
	}

	if err := s.waiting.RemoveBatch(ctx, mode, ids); err != nil {
		return fmt.Errorf("failed to dequeue matched players: %w", err)
	}

	if err := s.startMatch(ctx, mode, a, b); err != nil {
		s.requeue(ctx, all)
		return err
	}

	return nil
}

func (s *MatchmakingService) startMatch(ctx context.Context, mode models.GameMode, a, b matchUnit) error {
	problems, err := s.pickProblems(mode, (a.avgRating+b.avgRating)/2)
	if err != nil {
		return err
	}

	problemIDs := make([]string, len(problems))
	for i, p := range problems {
		problemIDs[i] = p.ID
	}

	duration := s.cfg.Duration1v1
	if mode == models.ModeTeam3v3 {
		duration = s.cfg.Duration3v3
	}

	match, err := s.matches.Create(mode, problemIDs, int(duration.Seconds()))
	if err != nil {
		return err
	}

	players := buildMatchPlayers(match.ID, mode, a, b)
	if err := s.players.CreateBatch(players); err != nil {
		return err
	}

	if err := s.rooms.InitializeRoom(match, players, problems); err != nil {
		return err
	}

	s.logger.Info("Match created",
		zap.String("matchId", match.ID),
		zap.String("mode", string(mode)),
		zap.Int("ratingA", a.avgRating),
		zap.Int("ratingB", b.avgRating))

	return nil
}

// pickProblems 매치 평균 레이팅에 맞는 난이도 버킷에서 출제.
// 버킷이 모자라면 전체에서 채우고, 그래도 부족하면 있는 만큼으로 출제한다.
// 문제가 하나도 없을 때만 실패한다.
func (s *MatchmakingService) pickProblems(mode models.GameMode, avgRating int) ([]*models.Problem, error) {
	difficulty := models.DifficultyMedium
	switch {
	case avgRating < easyBucketBelow:
		difficulty = models.DifficultyEasy
	case avgRating > hardBucketAbove:
		difficulty = models.DifficultyHard
	}

	count := mode.ProblemCount()

	problems, err := s.problems.FindByDifficulty(difficulty, count)
	if err != nil {
		return nil, fmt.Errorf("failed to pick problems: %w", err)
	}

	if len(problems) < count {
		fallback, err := s.problems.FindAny(count)
		if err != nil {
			return nil, fmt.Errorf("failed to pick fallback problems: %w", err)
		}
		if len(fallback) > len(problems) {
			problems = fallback
		}
	}

	if len(problems) == 0 {
		return nil, ErrNoProblems
	}

	return problems, nil
}

func buildMatchPlayers(matchID string, mode models.GameMode, a, b matchUnit) []models.MatchPlayer {
	var players []models.MatchPlayer

	appendSide := func(u matchUnit, team string) {
		var teamID *string
		if mode == models.ModeTeam3v3 {
			teamID = &team
		}
		for _, e := range u.entries {
			players = append(players, models.MatchPlayer{
				MatchID:   matchID,
				PlayerID:  e.PlayerID,
				TeamID:    teamID,
				Rating:    e.Rating,
				Connected: false,
			})
		}
	}

	appendSide(a, "team-a")
	appendSide(b, "team-b")

	return players
}

// requeue 매치 생성 실패 시 플레이어 복귀 (JoinedAt 보존)
func (s *MatchmakingService) requeue(ctx context.Context, entries []models.QueueEntry) {
	for _, e := range entries {
		if err := s.waiting.Add(ctx, e); err != nil {
			s.logger.Error("Failed to requeue player",
				zap.String("playerId", e.PlayerID),
				zap.Error(err))
		}
	}
}
