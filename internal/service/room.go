package service

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/battle-arena/arena-backend/internal/events"
	"github.com/battle-arena/arena-backend/internal/models"
)

// 점수 계산 상수
const (
	timeBonusRatio     = 0.2 // 빠른 풀이 보너스 상한 비율
	partialCreditRatio = 0.3 // 부분 점수 비율
)

// Room 진행 중인 매치 한 판의 라이브 상태.
// 모든 변이는 mu 하에서 일어나며, 영속화는 GameServer가 담당한다.
type Room struct {
	mu sync.Mutex

	match    *models.Match
	players  map[string]*models.MatchPlayer
	problems map[string]*models.Problem

	// problemID -> playerID -> 완전 풀이 여부
	solved map[string]map[string]bool
	// problemID -> playerID -> 지금까지 인정된 최고 부분 점수
	partialAwarded map[string]map[string]int
	// problemID -> 첫 풀이 보너스 지급 여부
	firstSolveClaimed map[string]bool
	// 판정 반영 완료된 제출 ID (재전달 멱등성)
	processedSubs map[string]bool

	// 시간 기준
	startedAt time.Time
	endsAt    time.Time

	// EndMatch가 정확히 한 번만 실행되도록 하는 플래그
	finishing bool

	durationTimer *time.Timer
}

func newRoom(match *models.Match, players []models.MatchPlayer, problems []*models.Problem) *Room {
	r := &Room{
		match:             match,
		players:           make(map[string]*models.MatchPlayer, len(players)),
		problems:          make(map[string]*models.Problem, len(problems)),
		solved:            make(map[string]map[string]bool),
		partialAwarded:    make(map[string]map[string]int),
		firstSolveClaimed: make(map[string]bool),
		processedSubs:     make(map[string]bool),
	}

	for i := range players {
		p := players[i]
		r.players[p.PlayerID] = &p
	}
	for _, prob := range problems {
		r.problems[prob.ID] = prob
		r.solved[prob.ID] = make(map[string]bool)
		r.partialAwarded[prob.ID] = make(map[string]int)
	}

	return r
}

// scoreOutcome 한 판정 반영의 결과. Room 락 밖에서 영속화/이벤트 발행에 쓰인다.
type scoreOutcome struct {
	applied    bool
	awarded    int
	firstSolve bool
	fullSolve  bool
	player     models.MatchPlayer // 반영 후 스냅샷
	teamScore  *events.TeamScoreUpdate

	// 완전 풀이일 때만 채워진다 (행동 분석용)
	difficulty models.Difficulty
	solveTime  time.Duration
}

// applyVerdict 판정 결과를 점수에 반영한다.
// 이미 처리된 제출이거나 매치가 진행 중이 아니면 applied=false.
func (r *Room) applyVerdict(res JudgedResult, firstSolveBonus int) scoreOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.match.Status != models.MatchStatusInProgress {
		return scoreOutcome{}
	}
	if r.processedSubs[res.SubmissionID] {
		return scoreOutcome{}
	}

	player, ok := r.players[res.PlayerID]
	if !ok {
		return scoreOutcome{}
	}
	problem, ok := r.problems[res.ProblemID]
	if !ok {
		return scoreOutcome{}
	}

	r.processedSubs[res.SubmissionID] = true
	player.Submissions++

	outcome := scoreOutcome{applied: true}

	switch {
	case res.Verdict == models.VerdictAccepted && !r.solved[res.ProblemID][res.PlayerID]:
		outcome.fullSolve = true
		outcome.difficulty = problem.Difficulty
		outcome.solveTime = res.SubmittedAt.Sub(r.startedAt)
		r.solved[res.ProblemID][res.PlayerID] = true
		player.FullSolves++

		points := problem.Difficulty.Points()
		awarded := points + r.timeBonus(points, res.SubmittedAt)

		if !r.firstSolveClaimed[res.ProblemID] {
			r.firstSolveClaimed[res.ProblemID] = true
			awarded += firstSolveBonus
			outcome.firstSolve = true
		}

		// 이미 인정된 부분 점수는 완전 풀이 점수로 대체된다
		awarded -= r.partialAwarded[res.ProblemID][res.PlayerID]
		if awarded < 0 {
			awarded = 0
		}

		player.Score += awarded
		outcome.awarded = awarded

	case res.Verdict != models.VerdictAccepted && res.TestsPassed > 0 && res.TestsTotal > 0 &&
		!r.solved[res.ProblemID][res.PlayerID]:
		// 부분 점수: 오답/시간초과 등 판정과 무관하게 통과한 테스트가 있으면 인정.
		// 지금까지의 최고치보다 나아진 만큼만 가산
		points := problem.Difficulty.Points()
		partial := int(math.Floor(float64(points) * float64(res.TestsPassed) / float64(res.TestsTotal) * partialCreditRatio))

		if best := r.partialAwarded[res.ProblemID][res.PlayerID]; partial > best {
			awarded := partial - best
			r.partialAwarded[res.ProblemID][res.PlayerID] = partial
			if best == 0 {
				player.PartialSolves++
			}
			player.Score += awarded
			outcome.awarded = awarded
		}
	}

	outcome.player = *player
	if player.TeamID != nil {
		outcome.teamScore = &events.TeamScoreUpdate{
			TeamID: *player.TeamID,
			Score:  r.teamScoreLocked(*player.TeamID),
		}
	}

	return outcome
}

// timeBonus 남은 시간 비례 보너스. 종료 후 도착한 판정은 0.
func (r *Room) timeBonus(points int, submittedAt time.Time) int {
	duration := r.endsAt.Sub(r.startedAt)
	if duration <= 0 {
		return 0
	}

	elapsed := submittedAt.Sub(r.startedAt)
	remaining := 1.0 - float64(elapsed)/float64(duration)
	if remaining < 0 {
		remaining = 0
	}

	return int(math.Floor(float64(points) * timeBonusRatio * remaining))
}

func (r *Room) teamScoreLocked(teamID string) int {
	total := 0
	for _, p := range r.players {
		if p.TeamID != nil && *p.TeamID == teamID {
			total += p.Score
		}
	}
	return total
}

// standings 현재 순위표 (score desc, fullSolves desc, submissions asc), dense rank.
func (r *Room) standingsLocked() []events.Standing {
	list := make([]events.Standing, 0, len(r.players))
	for _, p := range r.players {
		list = append(list, events.Standing{
			PlayerID:    p.PlayerID,
			TeamID:      p.TeamID,
			Score:       p.Score,
			FullSolves:  p.FullSolves,
			Submissions: p.Submissions,
		})
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].Score != list[j].Score {
			return list[i].Score > list[j].Score
		}
		if list[i].FullSolves != list[j].FullSolves {
			return list[i].FullSolves > list[j].FullSolves
		}
		if list[i].Submissions != list[j].Submissions {
			return list[i].Submissions < list[j].Submissions
		}
		return list[i].PlayerID < list[j].PlayerID
	})

	// dense rank: 동률은 같은 순위, 다음 순위는 +1
	rank := 0
	for i := range list {
		if i == 0 || !tied(list[i], list[i-1]) {
			rank++
		}
		list[i].Rank = rank
	}

	return list
}

func tied(a, b events.Standing) bool {
	return a.Score == b.Score && a.FullSolves == b.FullSolves && a.Submissions == b.Submissions
}

// Standings 순위표 스냅샷 (API 조회용)
func (r *Room) Standings() []events.Standing {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.standingsLocked()
}

// Snapshot RoomCache에 저장되는 복원용 상태
type RoomSnapshot struct {
	Match             *models.Match                 `json:"match"`
	Players           map[string]*models.MatchPlayer `json:"players"`
	Solved            map[string]map[string]bool    `json:"solved"`
	PartialAwarded    map[string]map[string]int     `json:"partialAwarded"`
	FirstSolveClaimed map[string]bool               `json:"firstSolveClaimed"`
	ProcessedSubs     map[string]bool               `json:"processedSubs"`
	StartedAt         time.Time                     `json:"startedAt"`
	EndsAt            time.Time                     `json:"endsAt"`
}

func (r *Room) snapshot() *RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	// 직렬화는 락 밖에서 일어나므로 match를 포함해 전부 복사한다
	match := *r.match
	snap := &RoomSnapshot{
		Match:             &match,
		Players:           make(map[string]*models.MatchPlayer, len(r.players)),
		Solved:            make(map[string]map[string]bool, len(r.solved)),
		PartialAwarded:    make(map[string]map[string]int, len(r.partialAwarded)),
		FirstSolveClaimed: make(map[string]bool, len(r.firstSolveClaimed)),
		ProcessedSubs:     make(map[string]bool, len(r.processedSubs)),
		StartedAt:         r.startedAt,
		EndsAt:            r.endsAt,
	}
	for id, p := range r.players {
		cp := *p
		snap.Players[id] = &cp
	}
	for probID, m := range r.solved {
		cp := make(map[string]bool, len(m))
		for k, v := range m {
			cp[k] = v
		}
		snap.Solved[probID] = cp
	}
	for probID, m := range r.partialAwarded {
		cp := make(map[string]int, len(m))
		for k, v := range m {
			cp[k] = v
		}
		snap.PartialAwarded[probID] = cp
	}
	for probID, v := range r.firstSolveClaimed {
		snap.FirstSolveClaimed[probID] = v
	}
	for subID, v := range r.processedSubs {
		snap.ProcessedSubs[subID] = v
	}

	return snap
}
