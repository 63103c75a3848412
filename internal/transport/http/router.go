package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"quiz-checkout-service/internal/app"
	"quiz-checkout-service/internal/tracing"
)

// RouterConfig carries everything the HTTP surface depends on.
type RouterConfig struct {
	Resolver       app.EnvironmentResolver
	Quizzes        *app.QuizService
	Checkout       *app.CheckoutService
	Webhooks       *app.WebhookService
	Reports        *app.ReportService
	Analytics      *app.AnalyticsService
	Status         StatusSource
	AnalyticsToken string
	AllowedOrigins []string
	// CreateLimit and CreateWindow bound session creation per client IP.
	CreateLimit  int
	CreateWindow time.Duration
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	Tracing        bool
	Logger         *zap.Logger
}

// NewRouter builds the gin engine with middleware and routes.
func NewRouter(cfg RouterConfig) *gin.Engine {
	h := &Handlers{
		resolver:       cfg.Resolver,
		quizzes:        cfg.Quizzes,
		checkout:       cfg.Checkout,
		webhooks:       cfg.Webhooks,
		reports:        cfg.Reports,
		analytics:      cfg.Analytics,
		analyticsToken: cfg.AnalyticsToken,
		logger:         cfg.Logger,
	}
	ws := NewWSHandler(cfg.Status, cfg.Checkout, cfg.Resolver, cfg.Logger)

	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), RequestLogger(cfg.Logger), Metrics())
	if cfg.Tracing {
		r.Use(tracing.GinMiddleware())
	}
	r.Use(CORS(cfg.AllowedOrigins))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	if cfg.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	api := r.Group("/api")
	api.POST("/create-payment", RateLimiter(cfg.CreateLimit, cfg.CreateWindow), h.CreatePayment)
	api.GET("/verify-payment", h.VerifyPayment)
	api.POST("/webhook/stripe", h.StripeWebhook)
	api.GET("/quizzes/:id", h.GetQuiz)
	api.POST("/quizzes/:id/score", h.ScoreQuiz)
	api.GET("/results", h.Results)
	api.POST("/results/preview", h.PreviewResults)
	api.GET("/analytics", h.Analytics)

	r.GET("/ws/payments", gin.WrapF(ws.ServeWS))
	return r
}
