package cli

import (
	"quiz-checkout-service/internal/domain"
	"quiz-checkout-service/internal/infra/memory"
)

func readQuizFile(path string) ([]domain.Quiz, error) {
	loader, err := memory.LoadQuizFile(path)
	if err != nil {
		return nil, err
	}
	return loader.Quizzes(), nil
}

// relationshipQuiz is the built-in quiz served when no quiz file or database is configured.
func relationshipQuiz() domain.Quiz {
	scale := func(texts ...string) []domain.Option {
		opts := make([]domain.Option, len(texts))
		for i, text := range texts {
			opts[i] = domain.Option{ID: string(rune('a' + i)), Text: text, Points: i}
		}
		return opts
	}
	return domain.Quiz{
		ID:    "relationship",
		Title: "How well do you understand relationships?",
		Questions: []domain.Question{
			{
				ID:     "foundation",
				Prompt: "What is the most important foundation of a healthy relationship?",
				Options: scale(
					"Physical attraction",
					"Shared hobbies",
					"Mutual trust",
					"Open communication and mutual respect",
				),
			},
			{
				ID:     "conflict",
				Prompt: "How do you handle a disagreement with your partner?",
				Options: scale(
					"I avoid the subject",
					"I insist until I win",
					"I wait for things to calm down",
					"We talk it through and look for a solution together",
				),
			},
			{
				ID:     "love_language",
				Prompt: "How do you find out what makes your partner feel loved?",
				Options: scale(
					"I assume they feel what I feel",
					"I guess from their reactions",
					"I ask once in a while",
					"I observe, ask and adapt over time",
				),
			},
			{
				ID:     "growth",
				Prompt: "What do you do when your goals and your partner's goals diverge?",
				Options: scale(
					"One of us gives up",
					"We each follow our own path",
					"We negotiate case by case",
					"We build a shared plan that respects both",
				),
			},
			{
				ID:     "routine",
				Prompt: "How do you keep the connection alive in the routine?",
				Options: scale(
					"Routine is inevitable",
					"Special dates only",
					"Occasional surprises",
					"Small daily gestures of attention and quality time",
				),
			},
		},
	}
}
