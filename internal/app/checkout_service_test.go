package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"quiz-checkout-service/internal/app"
	"quiz-checkout-service/internal/domain"
)

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newCheckout(t *testing.T, gw *fakeGateway, creds app.Credentials) *app.CheckoutService {
	t.Helper()
	return app.NewCheckoutServiceWithClock(gw, creds, app.DefaultCheckoutOptions(), zaptest.NewLogger(t), func() time.Time { return fixedNow })
}

func TestCreateSessionBuildsRequest(t *testing.T) {
	gw := &fakeGateway{session: domain.CheckoutSession{SessionID: "cs_test_1", CheckoutURL: "https://checkout.stripe.com/c/pay/cs_test_1"}}
	svc := newCheckout(t, gw, app.Credentials{SecretKey: validKey})

	result := domain.QuizResult{Score: 13, MaxScore: 15, Percentage: 86.66666666666667, Level: domain.LevelExpert}
	session, err := svc.CreateSession(context.Background(), testEnv(), result)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if session.SessionID != "cs_test_1" {
		t.Fatalf("unexpected session %+v", session)
	}

	req := gw.creates[0]
	if req.UnitAmount != 400 || req.Currency != "brl" || req.Quantity != 1 || req.Locale != "pt-BR" {
		t.Fatalf("unexpected pricing %+v", req)
	}
	if len(req.PaymentMethodTypes) != 1 || req.PaymentMethodTypes[0] != "card" {
		t.Fatalf("unexpected payment methods %v", req.PaymentMethodTypes)
	}
	if req.CustomerCreation != "always" || req.BillingAddressCollection != "required" {
		t.Fatalf("customer details not collected: %q %q", req.CustomerCreation, req.BillingAddressCollection)
	}
	if !req.ExpiresAt.Equal(fixedNow.Add(24 * time.Hour)) {
		t.Fatalf("unexpected expiry %v", req.ExpiresAt)
	}
	if req.SuccessURL != "http://localhost:3000/resultado-completo?session_id="+app.SessionIDPlaceholder {
		t.Fatalf("unexpected success url %q", req.SuccessURL)
	}
	if req.CancelURL != "http://localhost:3000/pagamento-cancelado" {
		t.Fatalf("unexpected cancel url %q", req.CancelURL)
	}
	want := map[string]string{
		domain.MetaScore:       "13",
		domain.MetaLevel:       "Expert",
		domain.MetaPercentage:  "86.66666666666667",
		domain.MetaProductID:   domain.DefaultProducts.Test,
		domain.MetaEnvironment: "test",
	}
	for k, v := range want {
		if req.Metadata[k] != v {
			t.Fatalf("metadata %s = %q, want %q", k, req.Metadata[k], v)
		}
	}
}

func TestCreateSessionUsesTestKeyInTestMode(t *testing.T) {
	testKey := "sk_test_" + strings.Repeat("t", 50)
	liveKey := "sk_live_" + strings.Repeat("l", 50)
	gw := &fakeGateway{session: domain.CheckoutSession{SessionID: "cs_1", CheckoutURL: "https://checkout.stripe.com/x"}}
	svc := newCheckout(t, gw, app.Credentials{SecretKey: liveKey, TestSecretKey: testKey})
	result := domain.QuizResult{Score: 9, Percentage: 60, Level: domain.LevelGood}

	if _, err := svc.CreateSession(context.Background(), testEnv(), result); err != nil {
		t.Fatalf("create test: %v", err)
	}
	if _, err := svc.CreateSession(context.Background(), prodEnv(), result); err != nil {
		t.Fatalf("create prod: %v", err)
	}
	if gw.keys[0] != testKey || gw.keys[1] != liveKey {
		t.Fatalf("unexpected key selection")
	}
	if gw.creates[1].ProductID != domain.DefaultProducts.Production {
		t.Fatalf("expected production product, got %s", gw.creates[1].ProductID)
	}
}

func TestCreateSessionRejectsBadKeysWithoutProviderCall(t *testing.T) {
	cases := map[string]struct {
		key    string
		reason domain.ConfigReason
	}{
		"missing":       {"", domain.ConfigMissing},
		"example":       {"sk_test_example_" + strings.Repeat("0", 40), domain.ConfigPlaceholder},
		"your key here": {"sk_test_your_key_here", domain.ConfigPlaceholder},
		"redacted":      {"sk_test_51Habc" + strings.Repeat("x", 40) + "***", domain.ConfigPlaceholder},
		"wrong prefix":  {"pk_test_" + strings.Repeat("a", 60), domain.ConfigMalformed},
		"too short":     {"sk_test_abc123", domain.ConfigMalformed},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			gw := &fakeGateway{}
			svc := newCheckout(t, gw, app.Credentials{SecretKey: tc.key})
			_, err := svc.CreateSession(context.Background(), testEnv(), domain.QuizResult{Score: 1, Percentage: 10, Level: domain.LevelBeginner})

			var cfgErr *domain.ConfigurationError
			if !errors.As(err, &cfgErr) || !errors.Is(err, domain.ErrPaymentConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			if cfgErr.Reason != tc.reason || cfgErr.Setting != "STRIPE_SECRET_KEY" {
				t.Fatalf("unexpected error %+v", cfgErr)
			}
			if tc.key != "" && len(tc.key) > 7 && strings.Contains(err.Error(), tc.key) {
				t.Fatalf("secret leaked into error: %v", err)
			}
			if gw.calls() != 0 {
				t.Fatalf("expected zero provider calls, got %d", gw.calls())
			}
		})
	}
}

func TestCreateSessionProviderFailures(t *testing.T) {
	t.Run("provider error passes through", func(t *testing.T) {
		gw := &fakeGateway{err: &domain.ProviderError{Code: "card_declined", Type: "card_error", Message: "declined"}}
		svc := newCheckout(t, gw, app.Credentials{SecretKey: validKey})
		_, err := svc.CreateSession(context.Background(), testEnv(), domain.QuizResult{Score: 1, Percentage: 10, Level: domain.LevelBeginner})
		var pe *domain.ProviderError
		if !errors.As(err, &pe) || pe.Code != "card_declined" {
			t.Fatalf("expected provider error, got %v", err)
		}
	})

	t.Run("missing checkout url", func(t *testing.T) {
		gw := &fakeGateway{session: domain.CheckoutSession{SessionID: "cs_1"}}
		svc := newCheckout(t, gw, app.Credentials{SecretKey: validKey})
		_, err := svc.CreateSession(context.Background(), testEnv(), domain.QuizResult{Score: 1, Percentage: 10, Level: domain.LevelBeginner})
		if !errors.Is(err, domain.ErrPaymentProvider) {
			t.Fatalf("expected provider error, got %v", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		gw := &fakeGateway{delay: time.Second}
		opts := app.DefaultCheckoutOptions()
		opts.ProviderTimeout = 20 * time.Millisecond
		svc := app.NewCheckoutService(gw, app.Credentials{SecretKey: validKey}, opts, zap.NewNop())
		_, err := svc.CreateSession(context.Background(), testEnv(), domain.QuizResult{Score: 1, Percentage: 10, Level: domain.LevelBeginner})
		var pe *domain.ProviderError
		if !errors.As(err, &pe) || pe.Code != "timeout" {
			t.Fatalf("expected timeout provider error, got %v", err)
		}
	})
}

func TestVerify(t *testing.T) {
	env := testEnv()
	gw := &fakeGateway{sessions: map[string]domain.ProviderSession{
		"cs_paid":      providerSession("cs_paid", "complete", domain.PaymentStatusPaid, env),
		"cs_free":      providerSession("cs_free", "complete", domain.PaymentStatusNoPaymentRequired, env),
		"cs_open":      providerSession("cs_open", "open", domain.PaymentStatusUnpaid, env),
		"cs_unsettled": providerSession("cs_unsettled", "complete", domain.PaymentStatusUnpaid, env),
		"cs_expired":   providerSession("cs_expired", "expired", domain.PaymentStatusUnpaid, env),
	}}
	svc := newCheckout(t, gw, app.Credentials{SecretKey: validKey})

	cases := map[string]domain.SessionStatus{
		"cs_paid":      domain.SessionPaid,
		"cs_free":      domain.SessionPaid,
		"cs_open":      domain.SessionOpen,
		"cs_unsettled": domain.SessionFailed,
		"cs_expired":   domain.SessionExpired,
	}
	for id, want := range cases {
		session, err := svc.Verify(context.Background(), env, id)
		if err != nil {
			t.Fatalf("%s: %v", id, err)
		}
		if session.Status != want {
			t.Fatalf("%s: status %s, want %s", id, session.Status, want)
		}
		if session.Metadata[domain.MetaLevel] != "Expert" || session.ProductID != env.ProductID {
			t.Fatalf("%s: unexpected view %+v", id, session)
		}
	}
}

func TestVerifyRejectsOtherProductEvenWhenPaid(t *testing.T) {
	prodSession := providerSession("cs_prod", "complete", domain.PaymentStatusPaid, prodEnv())
	mislabelled := providerSession("cs_mixed", "complete", domain.PaymentStatusPaid, testEnv())
	mislabelled.Metadata[domain.MetaEnvironment] = "production"

	gw := &fakeGateway{sessions: map[string]domain.ProviderSession{"cs_prod": prodSession, "cs_mixed": mislabelled}}
	svc := newCheckout(t, gw, app.Credentials{SecretKey: validKey})

	for _, id := range []string{"cs_prod", "cs_mixed"} {
		if _, err := svc.Verify(context.Background(), testEnv(), id); !errors.Is(err, domain.ErrWrongProduct) {
			t.Fatalf("%s: expected ErrWrongProduct, got %v", id, err)
		}
	}
}

func TestVerifyInputAndLookupErrors(t *testing.T) {
	gw := &fakeGateway{}
	svc := newCheckout(t, gw, app.Credentials{SecretKey: validKey})

	if _, err := svc.Verify(context.Background(), testEnv(), "  "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if gw.calls() != 0 {
		t.Fatalf("empty id must not reach the provider")
	}
	if _, err := svc.Verify(context.Background(), testEnv(), "cs_unknown"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	gw.err = errors.New("connection reset")
	_, err := svc.Verify(context.Background(), testEnv(), "cs_any")
	var pe *domain.ProviderError
	if !errors.As(err, &pe) || pe.Type != "api_connection_error" {
		t.Fatalf("expected connection provider error, got %v", err)
	}
}

func TestSessionMetadataRoundTripsThroughReport(t *testing.T) {
	env := testEnv()
	result := domain.QuizResult{Score: 11, MaxScore: 15, Percentage: 73.33333333333333, Level: domain.LevelGood}
	meta := app.SessionMetadata(env, result)

	ps := providerSession("cs_rt", "complete", domain.PaymentStatusPaid, env)
	ps.Metadata = meta
	gw := &fakeGateway{sessions: map[string]domain.ProviderSession{"cs_rt": ps}}
	svc := newCheckout(t, gw, app.Credentials{SecretKey: validKey})

	report, err := app.NewReportService(svc, 15, false).Report(context.Background(), env, "cs_rt")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Result != result {
		t.Fatalf("round trip changed result: %+v != %+v", report.Result, result)
	}
}
