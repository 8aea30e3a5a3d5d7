package service

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/battle-arena/arena-backend/internal/models"
)

// AntiCheatConfig 유사도 가중치/임계값.
// 경험적으로 정한 상수라 설정으로 노출한다.
type AntiCheatConfig struct {
	SimilarityThreshold float64 // 0-100
	TokenWeight         float64
	StructureWeight     float64
	FingerprintWeight   float64
	MinMatchedRun       int
}

func DefaultAntiCheatConfig() AntiCheatConfig {
	return AntiCheatConfig{
		SimilarityThreshold: 85,
		TokenWeight:         0.3,
		StructureWeight:     0.4,
		FingerprintWeight:   0.3,
		MinMatchedRun:       3,
	}
}

// RatingHistory 행동 분석에 필요한 레이팅 이력 조회
type RatingHistory interface {
	TrailingAverage(playerID string, n int) (float64, bool, error)
}

// AntiCheatService 제출 쌍 유사도와 행동 이상 징후를 점수화한다.
// 모든 판정은 자문용이며 채점/매치 진행을 막지 않는다.
type AntiCheatService struct {
	cfg     AntiCheatConfig
	history RatingHistory
	logger  *zap.Logger
}

func NewAntiCheatService(cfg AntiCheatConfig, history RatingHistory, logger *zap.Logger) *AntiCheatService {
	return &AntiCheatService{
		cfg:     cfg,
		history: history,
		logger:  logger,
	}
}

// 편집 거리 DP 상한. 정규화된 코드가 이보다 길면 잘라서 비교한다.
const maxEditDistanceLen = 4000

// CheckPlagiarism 같은 매치+문제의 다른 제출들과 비교.
// 언어가 같은 쌍만 비교하며, 결합 점수가 임계값 이상이면 finding을 만든다.
func (s *AntiCheatService) CheckPlagiarism(sub *models.Submission, others []*models.Submission) []models.PlagiarismFinding {
	var findings []models.PlagiarismFinding

	for _, other := range others {
		if other.PlayerID == sub.PlayerID {
			continue
		}
		if other.Language != sub.Language {
			continue
		}

		score := s.combinedSimilarity(sub, other)
		if score < s.cfg.SimilarityThreshold {
			continue
		}

		findings = append(findings, models.PlagiarismFinding{
			MatchID:           sub.MatchID,
			ProblemID:         sub.ProblemID,
			SubmissionID:      sub.ID,
			OtherSubmissionID: other.ID,
			PlayerID:          sub.PlayerID,
			OtherPlayerID:     other.PlayerID,
			Similarity:        score,
			Method:            "token-jaccard+keyword-seq+edit-distance",
			MatchedLines:      matchedLineRuns(sub.Code, other.Code, s.cfg.MinMatchedRun),
			Flagged:           true,
		})

		s.logger.Info("Plagiarism finding",
			zap.String("matchId", sub.MatchID),
			zap.String("problemId", sub.ProblemID),
			zap.String("submission", sub.ID),
			zap.String("other", other.ID),
			zap.Float64("similarity", score))
	}

	return findings
}

// combinedSimilarity 세 신호의 가중 결합 (0-100)
func (s *AntiCheatService) combinedSimilarity(a, b *models.Submission) float64 {
	token := tokenJaccard(a.Code, b.Code, a.Language)
	structure := keywordSequenceSimilarity(a.Code, b.Code, a.Language)
	edit := editDistanceSimilarity(a.Code, b.Code, a.Language)

	totalWeight := s.cfg.TokenWeight + s.cfg.StructureWeight + s.cfg.FingerprintWeight
	if totalWeight == 0 {
		return 0
	}

	weighted := token*s.cfg.TokenWeight + structure*s.cfg.StructureWeight + edit*s.cfg.FingerprintWeight

	return 100 * weighted / totalWeight
}

// tokenJaccard 토큰 집합 Jaccard 유사도
func tokenJaccard(code1, code2, language string) float64 {
	t1 := Tokenize(code1, language)
	t2 := Tokenize(code2, language)

	if len(t1) == 0 && len(t2) == 0 {
		return 1.0
	}

	intersection := 0
	for tok := range t1 {
		if _, ok := t2[tok]; ok {
			intersection++
		}
	}

	union := len(t1) + len(t2) - intersection
	if union == 0 {
		return 0
	}

	return float64(intersection) / float64(union)
}

// keywordSequenceSimilarity 제어 흐름 키워드 시퀀스의 LCS 기반 유사도
func keywordSequenceSimilarity(code1, code2, language string) float64 {
	s1 := ControlFlowSequence(code1, language)
	s2 := ControlFlowSequence(code2, language)

	if len(s1) == 0 && len(s2) == 0 {
		return 1.0
	}
	if len(s1) == 0 || len(s2) == 0 {
		return 0
	}

	lcs := lcsLength(s1, s2)

	return 2.0 * float64(lcs) / float64(len(s1)+len(s2))
}

func lcsLength(s1, s2 []string) int {
	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)

	for i := 1; i <= len(s1); i++ {
		for j := 1; j <= len(s2); j++ {
			if s1[i-1] == s2[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}

	return prev[len(s2)]
}

// editDistanceSimilarity 정규화된 코드 본문의 편집 거리 유사도.
// 해시가 아닌 정규화 본문(핑거프린트의 원문)을 비교한다.
func editDistanceSimilarity(code1, code2, language string) float64 {
	n1 := NormalizeCode(code1, language)
	n2 := NormalizeCode(code2, language)

	if len(n1) > maxEditDistanceLen {
		n1 = n1[:maxEditDistanceLen]
	}
	if len(n2) > maxEditDistanceLen {
		n2 = n2[:maxEditDistanceLen]
	}

	if len(n1) == 0 && len(n2) == 0 {
		return 1.0
	}
	if len(n1) == 0 || len(n2) == 0 {
		return 0
	}

	dist := editDistance(n1, n2)
	maxLen := len(n1)
	if len(n2) > maxLen {
		maxLen = len(n2)
	}

	return 1.0 - float64(dist)/float64(maxLen)
}

func editDistance(s1, s2 string) int {
	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)

	for j := 0; j <= len(s2); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(s1); i++ {
		curr[0] = i
		for j := 1; j <= len(s2); j++ {
			if s1[i-1] == s2[j-1] {
				curr[j] = prev[j-1]
			} else {
				m := prev[j-1]
				if prev[j] < m {
					m = prev[j]
				}
				if curr[j-1] < m {
					m = curr[j-1]
				}
				curr[j] = m + 1
			}
		}
		prev, curr = curr, prev
	}

	return prev[len(s2)]
}

// matchedLineRuns 길이 minRun 이상의 연속 일치 라인 구간 추출 (검토 근거)
func matchedLineRuns(code1, code2 string, minRun int) []string {
	lines1 := splitTrimmedLines(code1)
	lines2 := splitTrimmedLines(code2)

	var runs []string
	seen := make(map[string]struct{})

	for i := 0; i < len(lines1); i++ {
		for j := 0; j < len(lines2); j++ {
			if lines1[i] != lines2[j] {
				continue
			}

			length := 0
			for i+length < len(lines1) && j+length < len(lines2) &&
				lines1[i+length] == lines2[j+length] {
				length++
			}

			if length >= minRun {
				run := joinLines(lines1[i : i+length])
				if _, dup := seen[run]; !dup {
					seen[run] = struct{}{}
					runs = append(runs, run)
				}
			}
		}
	}

	return runs
}

func splitTrimmedLines(code string) []string {
	var lines []string
	start := 0
	for i := 0; i <= len(code); i++ {
		if i == len(code) || code[i] == '\n' {
			line := trimSpace(code[start:i])
			if line != "" {
				lines = append(lines, line)
			}
			start = i + 1
		}
	}
	return lines
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t' || s[start] == '\r') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t' || s[end-1] == '\r') {
		end--
	}
	return s[start:end]
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

// 행동 분석 상수
const (
	solveSpeedRatio   = 0.3
	spikeThreshold    = 500.0
	trailingWindow    = 10
	ratingFactorBase  = 1200.0
	ratingFactorFloor = 0.5
	ratingFactorCeil  = 2.0
)

// CheckBehavioralAnomalies 풀이 속도/레이팅 급변 이상 징후 탐지.
// 자동 실격 없음 — 검토용 기록만 남긴다.
func (s *AntiCheatService) CheckBehavioralAnomalies(
	playerID, matchID string,
	difficulty models.Difficulty,
	solveTime time.Duration,
	currentRating int,
) []models.BehavioralAnomaly {
	var anomalies []models.BehavioralAnomaly

	expected := expectedSolveTime(difficulty, currentRating)
	if solveTime < time.Duration(solveSpeedRatio*float64(expected)) {
		anomalies = append(anomalies, models.BehavioralAnomaly{
			PlayerID: playerID,
			MatchID:  &matchID,
			Kind:     models.AnomalySolveSpeed,
			Details: fmt.Sprintf("solved %s problem in %s (expected ~%s)",
				difficulty, solveTime.Round(time.Second), expected.Round(time.Second)),
		})
	}

	if s.history != nil {
		avg, ok, err := s.history.TrailingAverage(playerID, trailingWindow)
		if err != nil {
			s.logger.Error("Failed to load rating history",
				zap.String("playerId", playerID),
				zap.Error(err))
		} else if ok {
			diff := float64(currentRating) - avg
			if diff < 0 {
				diff = -diff
			}
			if diff > spikeThreshold {
				anomalies = append(anomalies, models.BehavioralAnomaly{
					PlayerID: playerID,
					MatchID:  &matchID,
					Kind:     models.AnomalyPerformanceSpike,
					Details: fmt.Sprintf("current rating %d deviates from trailing-%d average %.0f by %.0f",
						currentRating, trailingWindow, avg, diff),
				})
			}
		}
	}

	return anomalies
}

// expectedSolveTime 난이도 기준 시간 × 레이팅 보정 계수.
// 높은 레이팅일수록 기대 시간이 짧아지며 계수는 [0.5, 2.0]으로 제한한다.
func expectedSolveTime(difficulty models.Difficulty, rating int) time.Duration {
	base := difficulty.ExpectedSolveTime()

	factor := ratingFactorCeil
	if rating > 0 {
		factor = ratingFactorBase / float64(rating)
	}
	if factor < ratingFactorFloor {
		factor = ratingFactorFloor
	}
	if factor > ratingFactorCeil {
		factor = ratingFactorCeil
	}

	return time.Duration(float64(base) * factor)
}
