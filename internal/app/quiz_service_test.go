package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-checkout-service/internal/app"
	"quiz-checkout-service/internal/domain"
	"quiz-checkout-service/internal/infra/memory"
)

func TestQuizServiceScoresAgainstCurrentContent(t *testing.T) {
	ctx := context.Background()
	service := newTestService()

	result, err := service.Score(ctx, "relationship", []int{3, 2, 3, 3, 2})
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	if result.Score != 13 || result.MaxScore != 15 || result.Level != domain.LevelExpert {
		t.Fatalf("unexpected result %+v", result)
	}

	quiz, err := service.GetQuiz(ctx, "relationship")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if len(quiz.Questions) != 5 {
		t.Fatalf("expected 5 questions, got %d", len(quiz.Questions))
	}
}

func TestQuizServiceUnknownQuiz(t *testing.T) {
	service := newTestService()
	if _, err := service.Score(context.Background(), "missing", []int{1}); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func newTestService() *app.QuizService {
	quiz := relationshipQuiz()
	repo := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{quiz.ID: quiz}), time.Minute)
	return app.NewQuizService(repo)
}

func relationshipQuiz() domain.Quiz {
	question := func(id string) domain.Question {
		return domain.Question{
			ID:     id,
			Prompt: "Question " + id,
			Options: []domain.Option{
				{ID: "a", Text: "Rarely", Points: 0},
				{ID: "b", Text: "Sometimes", Points: 1},
				{ID: "c", Text: "Often", Points: 2},
				{ID: "d", Text: "Always", Points: 3},
			},
		}
	}
	return domain.Quiz{
		ID:        "relationship",
		Title:     "Relationship quiz",
		Questions: []domain.Question{question("q1"), question("q2"), question("q3"), question("q4"), question("q5")},
	}
}
