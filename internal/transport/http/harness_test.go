package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"

	"quiz-checkout-service/internal/app"
	"quiz-checkout-service/internal/domain"
	"quiz-checkout-service/internal/infra/memory"
	stripeinfra "quiz-checkout-service/internal/infra/stripe"
)

const (
	testSecretKey     = "sk_test_51QuizCheckoutUnitTestKey0123456789abcdefghijklmn"
	testWebhookSecret = "whsec_quiz_checkout_unit_tests"
	testAnalytics     = "analytics-token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeGateway struct {
	mu       sync.Mutex
	creates  []domain.CheckoutRequest
	gets     int
	sessions map[string]domain.ProviderSession
	err      error
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, _ string, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.creates = append(g.creates, req)
	if g.err != nil {
		return domain.CheckoutSession{}, g.err
	}
	return domain.CheckoutSession{SessionID: "cs_test_new", CheckoutURL: "https://checkout.stripe.com/c/pay/cs_test_new"}, nil
}

func (g *fakeGateway) GetCheckoutSession(_ context.Context, _ string, sessionID string) (domain.ProviderSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gets++
	if g.err != nil {
		return domain.ProviderSession{}, g.err
	}
	ps, ok := g.sessions[sessionID]
	if !ok {
		return domain.ProviderSession{}, domain.ErrSessionNotFound
	}
	return ps, nil
}

func (g *fakeGateway) put(ps domain.ProviderSession) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sessions == nil {
		g.sessions = make(map[string]domain.ProviderSession)
	}
	g.sessions[ps.ID] = ps
}

func (g *fakeGateway) createCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.creates)
}

type harness struct {
	router  *gin.Engine
	gateway *fakeGateway
	records *memory.PaymentStore
	hub     *memory.StatusHub
}

type harnessOptions struct {
	secretKey    string
	deployment   string
	allowPreview bool
	createLimit  int
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	if opts.secretKey == "" {
		opts.secretKey = testSecretKey
	}
	logger := zap.NewNop()
	gw := &fakeGateway{}
	records := memory.NewPaymentStore()
	hub := memory.NewStatusHub()
	creds := app.Credentials{SecretKey: opts.secretKey, WebhookSecret: testWebhookSecret}
	checkoutOpts := app.DefaultCheckoutOptions()

	checkout := app.NewCheckoutService(gw, creds, checkoutOpts, logger)
	quiz := sampleQuiz()
	router := NewRouter(RouterConfig{
		Resolver: app.EnvironmentResolver{
			DeploymentEnv: opts.deployment,
			Products:      domain.DefaultProducts,
		},
		Quizzes:        app.NewQuizService(memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{quiz.ID: quiz}), time.Minute)),
		Checkout:       checkout,
		Webhooks:       app.NewWebhookService(stripeinfra.NewEventVerifier(), records, app.Notifiers{hub}, creds, checkoutOpts.SuccessPath, logger),
		Reports:        app.NewReportService(checkout, quiz.MaxScore(), opts.allowPreview),
		Analytics:      app.NewAnalyticsService(records),
		Status:         hub,
		AnalyticsToken: testAnalytics,
		CreateLimit:    opts.createLimit,
		CreateWindow:   time.Minute,
		Logger:         logger,
	})
	return &harness{router: router, gateway: gw, records: records, hub: hub}
}

func (h *harness) do(method, target string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Host = "localhost:3000"
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

func signed(t *testing.T, payload string) ([]byte, string) {
	t.Helper()
	s := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return s.Payload, s.Header
}

func paidSession(id string) domain.ProviderSession {
	return domain.ProviderSession{
		ID:            id,
		Status:        "complete",
		PaymentStatus: domain.PaymentStatusPaid,
		CustomerEmail: "ana@example.com",
		AmountTotal:   400,
		Currency:      "brl",
		ProductIDs:    []string{domain.DefaultProducts.Test},
		Metadata: map[string]string{
			domain.MetaScore:       "13",
			domain.MetaLevel:       "Expert",
			domain.MetaPercentage:  "86.66666666666667",
			domain.MetaProductID:   domain.DefaultProducts.Test,
			domain.MetaEnvironment: domain.EnvironmentTest,
		},
		CreatedAt: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func completedEvent(eventID, sessionID, productID string) string {
	return `{
		"id": "` + eventID + `",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "` + sessionID + `",
			"object": "checkout.session",
			"payment_status": "paid",
			"amount_total": 400,
			"currency": "brl",
			"customer_details": {"email": "ana@example.com", "name": "Ana"},
			"metadata": {"productId": "` + productID + `", "score": "13", "level": "Expert", "percentage": "86.67", "environment": "test"}
		}}
	}`
}

func sampleQuiz() domain.Quiz {
	question := func(id string) domain.Question {
		return domain.Question{
			ID:     id,
			Prompt: "Question " + id,
			Options: []domain.Option{
				{ID: "a", Text: "Never", Points: 0},
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
