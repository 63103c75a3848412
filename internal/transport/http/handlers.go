package http

import (
	"crypto/subtle"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"quiz-checkout-service/internal/app"
	"quiz-checkout-service/internal/domain"
)

// maxWebhookBody bounds the raw body read before signature verification.
const maxWebhookBody = 1 << 20

// Handlers serves the quiz and checkout API.
type Handlers struct {
	resolver       app.EnvironmentResolver
	quizzes        *app.QuizService
	checkout       *app.CheckoutService
	webhooks       *app.WebhookService
	reports        *app.ReportService
	analytics      *app.AnalyticsService
	analyticsToken string
	logger         *zap.Logger
}

type createPaymentRequest struct {
	QuizData *quizData `json:"quizData"`
}

type quizData struct {
	Score      *int     `json:"score"`
	MaxScore   int      `json:"maxScore"`
	Level      string   `json:"level"`
	Percentage *float64 `json:"percentage"`
}

func (q *quizData) result() (domain.QuizResult, error) {
	if q == nil {
		return domain.QuizResult{}, domain.NewValidationError("quizData", "quiz data is required")
	}
	if q.Score == nil {
		return domain.QuizResult{}, domain.NewValidationError("quizData.score", "score is required")
	}
	if q.Percentage == nil {
		return domain.QuizResult{}, domain.NewValidationError("quizData.percentage", "percentage is required")
	}
	if q.Level == "" {
		return domain.QuizResult{}, domain.NewValidationError("quizData.level", "level is required")
	}
	return domain.QuizResult{
		Score:      *q.Score,
		MaxScore:   q.MaxScore,
		Percentage: *q.Percentage,
		Level:      domain.Level(q.Level),
	}, nil
}

type createPaymentResponse struct {
	SessionID   string `json:"sessionId"`
	CheckoutURL string `json:"checkoutUrl"`
	Environment string `json:"environment"`
	ProductID   string `json:"productId"`
}

func (h *Handlers) environment(c *gin.Context) domain.Environment {
	return h.resolver.Resolve(c.Request.Host)
}

// CreatePayment issues a checkout session for a completed quiz.
func (h *Handlers) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, domain.NewValidationError("body", "malformed JSON body"))
		return
	}
	result, err := req.QuizData.result()
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	env := h.environment(c)
	session, err := h.checkout.CreateSession(c.Request.Context(), env, result)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, createPaymentResponse{
		SessionID:   session.SessionID,
		CheckoutURL: session.CheckoutURL,
		Environment: env.Name(),
		ProductID:   env.ProductID,
	})
}

// VerifyPayment reports the provider-derived state of a session.
func (h *Handlers) VerifyPayment(c *gin.Context) {
	session, err := h.checkout.Verify(c.Request.Context(), h.environment(c), c.Query("session_id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// StripeWebhook authenticates and dispatches a provider event. Once the signature
// verifies the answer is always {received:true}.
func (h *Handlers) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		writeError(c, h.logger, domain.NewValidationError("body", "unreadable body"))
		return
	}
	err = h.webhooks.Handle(c.Request.Context(), h.environment(c), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// GetQuiz returns quiz content for rendering.
func (h *Handlers) GetQuiz(c *gin.Context) {
	quiz, err := h.quizzes.GetQuiz(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, quiz)
}

type scoreRequest struct {
	Answers []int `json:"answers"`
}

// ScoreQuiz scores a set of answers server-side.
func (h *Handlers) ScoreQuiz(c *gin.Context) {
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, domain.NewValidationError("body", "malformed JSON body"))
		return
	}
	result, err := h.quizzes.Score(c.Request.Context(), c.Param("id"), req.Answers)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Results renders the paywalled report for a paid session.
func (h *Handlers) Results(c *gin.Context) {
	report, err := h.reports.Report(c.Request.Context(), h.environment(c), c.Query("session_id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// PreviewResults renders an unverified report in test environments that allow it.
func (h *Handlers) PreviewResults(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, domain.NewValidationError("body", "malformed JSON body"))
		return
	}
	result, err := req.QuizData.result()
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	report, err := h.reports.Preview(h.environment(c), result)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Analytics summarizes sales for the current product (or ?productId=).
func (h *Handlers) Analytics(c *gin.Context) {
	if h.analyticsToken == "" {
		c.AbortWithStatusJSON(http.StatusNotFound, errorResponse{Error: "Not found"})
		return
	}
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.analyticsToken)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
		return
	}
	productID := c.Query("productId")
	if productID == "" {
		productID = h.environment(c).ProductID
	}
	summary, err := h.analytics.Summary(c.Request.Context(), productID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
