package app

import (
	"fmt"

	"quiz-checkout-service/internal/domain"
)

// Level thresholds are inclusive lower bounds on the percentage.
const (
	expertThreshold = 80.0
	goodThreshold   = 60.0
	basicThreshold  = 40.0
)

// Score sums one answer per question and classifies the percentage.
// Each answer must be one of its question's option weights.
func Score(quiz domain.Quiz, answers []int) (domain.QuizResult, error) {
	if len(quiz.Questions) == 0 {
		return domain.QuizResult{}, domain.NewValidationError("quiz", "quiz has no questions")
	}
	if len(answers) != len(quiz.Questions) {
		return domain.QuizResult{}, domain.NewValidationError("answers",
			fmt.Sprintf("expected %d answers, got %d", len(quiz.Questions), len(answers)))
	}

	score := 0
	for i, points := range answers {
		if !offersPoints(quiz.Questions[i], points) {
			return domain.QuizResult{}, domain.NewValidationError(
				fmt.Sprintf("answers[%d]", i),
				fmt.Sprintf("%d is not an option of question %q", points, quiz.Questions[i].ID))
		}
		score += points
	}

	maxScore := quiz.MaxScore()
	if maxScore <= 0 {
		return domain.QuizResult{}, domain.NewValidationError("quiz", "quiz has no scoring options")
	}
	percentage := 100 * float64(score) / float64(maxScore)
	return domain.QuizResult{
		Score:      score,
		MaxScore:   maxScore,
		Percentage: percentage,
		Level:      LevelFor(percentage),
	}, nil
}

// LevelFor maps a percentage to its label; a boundary value belongs to the higher tier.
func LevelFor(percentage float64) domain.Level {
	switch {
	case percentage >= expertThreshold:
		return domain.LevelExpert
	case percentage >= goodThreshold:
		return domain.LevelGood
	case percentage >= basicThreshold:
		return domain.LevelBasic
	default:
		return domain.LevelBeginner
	}
}

func offersPoints(q domain.Question, points int) bool {
	for _, opt := range q.Options {
		if opt.Points == points {
			return true
		}
	}
	return false
}
