package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quiz-checkout-service/internal/app"
	"quiz-checkout-service/internal/config"
	"quiz-checkout-service/internal/domain"
	boltstore "quiz-checkout-service/internal/infra/bolt"
	"quiz-checkout-service/internal/infra/memory"
	pgstore "quiz-checkout-service/internal/infra/postgres"
	redisstore "quiz-checkout-service/internal/infra/redis"
	stripegw "quiz-checkout-service/internal/infra/stripe"
	"quiz-checkout-service/internal/logging"
	"quiz-checkout-service/internal/metrics"
	"quiz-checkout-service/internal/tracing"
	transport "quiz-checkout-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz checkout server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.New(cfg)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	tracingOn := cfg.Tracing.Enabled && cfg.Tracing.CollectorEndpoint != ""
	if tracingOn {
		shutdownTracing, err := tracing.Init(cfg.Tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(flushCtx); err != nil {
				logger.Warn("tracer shutdown failed", zap.Error(err))
			}
		}()
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	loader, err := quizLoader(cfg, pool)
	if err != nil {
		return err
	}
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, config.TTLDuration(cfg.Redis.TTL, quizTTL))
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	records, closeRecords, err := paymentStore(cfg, redisClient, logger)
	if err != nil {
		return err
	}
	defer closeRecords()

	hub := memory.NewStatusHub()
	var notifier app.Notifier = hub
	if redisClient != nil {
		queue := redisstore.NewNoticeQueue(redisClient)
		go queue.Relay(ctx, hub, logger.Named("relay"))
		notifier = queue
	}

	resolver := app.EnvironmentResolver{
		DeploymentEnv:   cfg.Server.DeploymentEnv,
		BaseURL:         cfg.Server.PublicBaseURL,
		FallbackBaseURL: "http://localhost:" + finalPort,
		Products:        domain.ProductTable{Test: cfg.Products.Test, Production: cfg.Products.Production},
	}
	if err := resolver.Validate(); err != nil {
		logger.Error("invalid public base url", zap.Error(err))
		return err
	}

	creds := app.Credentials{
		SecretKey:     cfg.Stripe.SecretKey,
		TestSecretKey: cfg.Stripe.TestSecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
	}
	logCredentials(logger, creds)

	gateway := stripegw.NewGateway(stripegw.GatewayConfig{
		APIURL:            cfg.Stripe.APIURL,
		MaxNetworkRetries: cfg.Stripe.MaxNetworkRetries,
	}, logger)

	checkout := app.NewCheckoutService(gateway, creds, checkoutOptions(cfg), logger.Named("checkout"))
	quizzes := app.NewQuizService(quizRepo)
	reports := app.NewReportService(checkout, maxScore(ctx, quizzes, cfg.Quiz.DefaultID, logger), cfg.Checkout.AllowUnpaidPreview)
	webhooks := app.NewWebhookService(stripegw.NewEventVerifier(), records, notifier, creds, checkoutOptions(cfg).SuccessPath, logger.Named("webhook"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(reg)

	gin.SetMode(cfg.Server.Mode)
	router := transport.NewRouter(transport.RouterConfig{
		Resolver:       resolver,
		Quizzes:        quizzes,
		Checkout:       checkout,
		Webhooks:       webhooks,
		Reports:        reports,
		Analytics:      app.NewAnalyticsService(records),
		Status:         hub,
		AnalyticsToken: cfg.Analytics.Token,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		CreateLimit:    cfg.RateLimit.MaxRequests,
		CreateWindow:   time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Tracing:        tracingOn,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting quiz checkout service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// quizLoader reads quizzes from postgres when configured, falling back to the
// quiz file or the built-in quiz for ids the database does not hold yet.
func quizLoader(cfg config.Config, pool *pgxpool.Pool) (memory.QuizLoader, error) {
	quizzes, err := quizSource(cfg)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Quiz, len(quizzes))
	for _, quiz := range quizzes {
		byID[quiz.ID] = quiz
	}
	local := memory.NewStaticQuizLoader(byID)
	if pool != nil {
		return memory.NewFallbackQuizLoader(pgstore.NewQuizLoader(pool), local), nil
	}
	return local, nil
}

// paymentStore picks the most durable configured backend: postgres, redis, bolt, then memory.
func paymentStore(cfg config.Config, redisClient *redis.Client, logger *zap.Logger) (app.PaymentRecordRepository, func(), error) {
	switch {
	case cfg.Postgres.URL != "":
		db := openBunDB(cfg.Postgres.URL)
		logger.Info("payment records stored in postgres")
		return pgstore.NewPaymentStore(db), func() { db.Close() }, nil
	case redisClient != nil:
		logger.Info("payment records stored in redis")
		return redisstore.NewPaymentStore(redisClient), func() {}, nil
	case cfg.Bolt.Path != "":
		store, err := boltstore.Open(cfg.Bolt.Path)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("payment records stored in bolt", zap.String("path", cfg.Bolt.Path))
		return store, func() { store.Close() }, nil
	default:
		logger.Warn("payment records kept in memory; they are lost on restart")
		return memory.NewPaymentStore(), func() {}, nil
	}
}

func checkoutOptions(cfg config.Config) app.CheckoutOptions {
	opts := app.DefaultCheckoutOptions()
	if cfg.Checkout.UnitAmount > 0 {
		opts.UnitAmount = cfg.Checkout.UnitAmount
	}
	if cfg.Checkout.Currency != "" {
		opts.Currency = cfg.Checkout.Currency
	}
	if cfg.Checkout.Locale != "" {
		opts.Locale = cfg.Checkout.Locale
	}
	if cfg.Checkout.SuccessPath != "" {
		opts.SuccessPath = cfg.Checkout.SuccessPath
	}
	if cfg.Checkout.CancelPath != "" {
		opts.CancelPath = cfg.Checkout.CancelPath
	}
	opts.SessionTTL = config.TTLDuration(cfg.Checkout.SessionTTL, opts.SessionTTL)
	opts.ProviderTimeout = config.TTLDuration(cfg.Stripe.Timeout, opts.ProviderTimeout)
	return opts
}

func maxScore(ctx context.Context, quizzes *app.QuizService, quizID string, logger *zap.Logger) int {
	quiz, err := quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		fallback := relationshipQuiz().MaxScore()
		logger.Warn("default quiz unavailable, using built-in max score",
			zap.String("quiz_id", quizID), zap.Int("max_score", fallback), zap.Error(err))
		return fallback
	}
	return quiz.MaxScore()
}

// logCredentials reports configuration problems at startup without logging the secrets.
func logCredentials(logger *zap.Logger, creds app.Credentials) {
	check := func(setting, value string) {
		if value == "" {
			return
		}
		if err := app.ValidateSecretKey(setting, value); err != nil {
			logger.Warn("stripe key rejected", zap.String("setting", setting), zap.Error(err))
		}
	}
	if creds.SecretKey == "" && creds.TestSecretKey == "" {
		logger.Warn("no stripe secret key configured; checkout is unavailable")
	}
	check("STRIPE_SECRET_KEY", creds.SecretKey)
	check("STRIPE_TEST_SECRET_KEY", creds.TestSecretKey)
	if creds.WebhookSecret == "" {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set; webhooks will be rejected")
	}
}
