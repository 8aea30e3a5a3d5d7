package service

import "math"

// RatingService Elo 레이팅 계산 서비스
type RatingService struct {
	kFactor float64
}

func NewRatingService() *RatingService {
	return &RatingService{
		kFactor: 32, // K-factor: 레이팅 변동 폭
	}
}

// CalculateNewRatings 랭크 1v1 결과에 따른 새 레이팅 계산.
// outcome: 1.0 (player1 승), 0.5 (무승부), 0.0 (player2 승).
// 두 변동 모두 매치 시작 전 레이팅에서 계산한다 (순차 적용 금지).
func (s *RatingService) CalculateNewRatings(rating1, rating2 int, outcome float64) (new1, new2, delta1, delta2 int) {
	expected1 := s.expectedScore(float64(rating1), float64(rating2))
	expected2 := 1.0 - expected1

	new1 = int(math.Round(float64(rating1) + s.kFactor*(outcome-expected1)))
	new2 = int(math.Round(float64(rating2) + s.kFactor*((1.0-outcome)-expected2)))

	delta1 = new1 - rating1
	delta2 = new2 - rating2

	return
}

// expectedScore Elo 기대 승률
func (s *RatingService) expectedScore(ratingA, ratingB float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (ratingB-ratingA)/400.0))
}
