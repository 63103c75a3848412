package app

import (
	"context"
	"fmt"
	"strconv"

	"quiz-checkout-service/internal/domain"
)

// Verifier is the part of CheckoutService the report gate needs.
type Verifier interface {
	Verify(ctx context.Context, env domain.Environment, sessionID string) (domain.PaymentSession, error)
}

// ReportService unlocks the full result only for verified, paid sessions.
type ReportService struct {
	verifier     Verifier
	maxScore     int
	allowPreview bool
}

// NewReportService builds the gate. maxScore is used to rebuild QuizResult from metadata;
// allowPreview enables the unpaid preview in test environments only.
func NewReportService(verifier Verifier, maxScore int, allowPreview bool) *ReportService {
	return &ReportService{verifier: verifier, maxScore: maxScore, allowPreview: allowPreview}
}

// Report verifies sessionID and renders the result stored in its metadata.
func (s *ReportService) Report(ctx context.Context, env domain.Environment, sessionID string) (domain.ResultReport, error) {
	session, err := s.verifier.Verify(ctx, env, sessionID)
	if err != nil {
		return domain.ResultReport{}, err
	}
	if !session.Paid() {
		return domain.ResultReport{}, fmt.Errorf("%w: session %s is %s", domain.ErrPaymentRequired, session.SessionID, session.Status)
	}
	result, err := resultFromMetadata(session.Metadata, s.maxScore)
	if err != nil {
		return domain.ResultReport{}, err
	}
	report := buildReport(result)
	report.SessionID = session.SessionID
	report.Verified = true
	return report, nil
}

// Preview renders a client-held result without payment. It exists for local
// development and is refused unless env is a test environment and previews are enabled.
func (s *ReportService) Preview(env domain.Environment, result domain.QuizResult) (domain.ResultReport, error) {
	if !s.allowPreview || !env.IsTest {
		return domain.ResultReport{}, domain.ErrPreviewDisabled
	}
	if err := validateResult(result); err != nil {
		return domain.ResultReport{}, err
	}
	result.Level = LevelFor(result.Percentage)
	report := buildReport(result)
	report.Verified = false
	return report, nil
}

func resultFromMetadata(meta map[string]string, maxScore int) (domain.QuizResult, error) {
	score, err := strconv.Atoi(meta[domain.MetaScore])
	if err != nil {
		return domain.QuizResult{}, fmt.Errorf("%w: metadata score %q", domain.ErrPaymentProvider, meta[domain.MetaScore])
	}
	percentage, err := strconv.ParseFloat(meta[domain.MetaPercentage], 64)
	if err != nil {
		return domain.QuizResult{}, fmt.Errorf("%w: metadata percentage %q", domain.ErrPaymentProvider, meta[domain.MetaPercentage])
	}
	level := domain.Level(meta[domain.MetaLevel])
	if !level.Valid() {
		level = LevelFor(percentage)
	}
	return domain.QuizResult{Score: score, MaxScore: maxScore, Percentage: percentage, Level: level}, nil
}

type levelContent struct {
	title        string
	description  string
	feedback     string
	strengths    []string
	improvements []string
	tips         []string
}

var reportContent = map[domain.Level]levelContent{
	domain.LevelExpert: {
		title:       "Relationship Expert",
		description: "You have an exceptional understanding of healthy relationships.",
		feedback:    "You know the pillars of a lasting relationship and how to put them into practice.",
		strengths: []string{
			"Exceptional communication",
			"Mature conflict resolution",
			"Balanced expressions of love",
			"A shared vision of growth",
		},
		improvements: []string{
			"Keep being an example for other couples",
			"Share what you know with friends",
			"Stay up to date on relationship research",
		},
		tips: []string{
			"Consider mentoring other couples",
			"Read advanced books on the psychology of love",
			"Practice daily gratitude for your relationship",
		},
	},
	domain.LevelGood: {
		title:       "Good Understanding",
		description: "You have a solid foundation, with room to grow.",
		feedback:    "Keep developing your communication skills and emotional intelligence.",
		strengths: []string{
			"A solid knowledge base",
			"Awareness of how much communication matters",
			"Interest in improving the relationship",
		},
		improvements: []string{
			"Develop active listening",
			"Learn more about the love languages",
			"Practice constructive conflict resolution",
		},
		tips: []string{
			"Read 'The 5 Love Languages' by Gary Chapman",
			"Set aside weekly time for honest conversation",
			"Practice empathy in everyday situations",
		},
	},
	domain.LevelBasic: {
		title:       "Basic Understanding",
		description: "You know the basics, and there is a lot to learn together.",
		feedback:    "Focus on listening and on sharing needs openly.",
		strengths: []string{
			"Willingness to learn",
			"Awareness that relationships take work",
		},
		improvements: []string{
			"Talk about feelings more openly",
			"Avoid postponing difficult conversations",
			"Grow together instead of apart",
		},
		tips: []string{
			"Start a weekly check-in with your partner",
			"Write down what you appreciate in each other",
			"Look for a communication workshop",
		},
	},
	domain.LevelBeginner: {
		title:       "Beginner",
		description: "Every strong relationship starts somewhere, and this is your starting point.",
		feedback:    "Small daily habits make the biggest difference.",
		strengths: []string{
			"Curiosity about relationships",
		},
		improvements: []string{
			"Listen with an open heart",
			"Express affection through actions",
			"Face conflicts instead of avoiding them",
		},
		tips: []string{
			"Ask your partner one meaningful question a day",
			"Learn your partner's love language",
			"Consider couples counselling as a learning tool",
		},
	},
}

func buildReport(result domain.QuizResult) domain.ResultReport {
	content := reportContent[result.Level]
	return domain.ResultReport{
		Result:       result,
		Title:        content.title,
		Description:  content.description,
		Feedback:     content.feedback,
		Strengths:    content.strengths,
		Improvements: content.improvements,
		Tips:         content.tips,
	}
}
