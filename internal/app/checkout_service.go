package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"quiz-checkout-service/internal/domain"
	"quiz-checkout-service/internal/metrics"
)

// SessionIDPlaceholder is substituted by the provider in the success URL.
const SessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"

// PaymentGateway is the payment provider's checkout API.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, secretKey string, req domain.CheckoutRequest) (domain.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, secretKey, sessionID string) (domain.ProviderSession, error)
}

// Credentials are the process-wide provider secrets.
type Credentials struct {
	SecretKey     string
	TestSecretKey string
	WebhookSecret string
}

// CheckoutOptions fixes pricing and redirect targets for every session.
type CheckoutOptions struct {
	UnitAmount         int64
	Currency           string
	Locale             string
	PaymentMethodTypes []string
	// CustomerCreation and BillingAddressCollection make the provider collect
	// the customer's name and address, which the receipt and notice greet by.
	CustomerCreation         string
	BillingAddressCollection string
	SessionTTL               time.Duration
	SuccessPath              string
	CancelPath               string
	ProviderTimeout          time.Duration
}

// DefaultCheckoutOptions returns the R$ 4,00 single-purchase setup for the Brazilian market.
func DefaultCheckoutOptions() CheckoutOptions {
	return CheckoutOptions{
		UnitAmount:               400,
		Currency:                 "brl",
		Locale:                   "pt-BR",
		PaymentMethodTypes:       []string{"card"},
		CustomerCreation:         "always",
		BillingAddressCollection: "required",
		SessionTTL:               24 * time.Hour,
		SuccessPath:              "/resultado-completo",
		CancelPath:               "/pagamento-cancelado",
		ProviderTimeout:          8 * time.Second,
	}
}

// CheckoutService issues and verifies checkout sessions.
type CheckoutService struct {
	gateway PaymentGateway
	creds   Credentials
	opts    CheckoutOptions
	logger  *zap.Logger
	now     func() time.Time
}

func NewCheckoutService(gateway PaymentGateway, creds Credentials, opts CheckoutOptions, logger *zap.Logger) *CheckoutService {
	return &CheckoutService{
		gateway: gateway,
		creds:   creds,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// CreateSession turns a quiz result into a hosted checkout session.
func (s *CheckoutService) CreateSession(ctx context.Context, env domain.Environment, result domain.QuizResult) (domain.CheckoutSession, error) {
	key, err := s.secretKey(env)
	if err != nil {
		var cfgErr *domain.ConfigurationError
		if errors.As(err, &cfgErr) {
			s.logger.Error("payment key rejected",
				zap.String("setting", cfgErr.Setting),
				zap.String("reason", string(cfgErr.Reason)),
				zap.String("key_prefix", cfgErr.KeyPrefix),
				zap.Int("key_length", cfgErr.KeyLength))
		}
		return domain.CheckoutSession{}, err
	}
	if err := validateResult(result); err != nil {
		return domain.CheckoutSession{}, err
	}

	req := s.buildRequest(env, result)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	session, err := s.gateway.CreateCheckoutSession(ctx, key, req)
	if err != nil {
		err = providerFailure("create checkout session", err)
		s.logProviderError("checkout session creation failed", err)
		return domain.CheckoutSession{}, err
	}
	if session.SessionID == "" || session.CheckoutURL == "" {
		return domain.CheckoutSession{}, &domain.ProviderError{
			Op:      "create checkout session",
			Code:    "incomplete_response",
			Message: "provider returned no session id or checkout url",
		}
	}

	metrics.SessionsCreated.WithLabelValues(env.Name()).Inc()
	s.logger.Info("checkout session created",
		zap.String("session_id", session.SessionID),
		zap.String("environment", env.Name()),
		zap.String("product_id", env.ProductID),
		zap.String("level", string(result.Level)))
	return session, nil
}

// Verify re-derives a session's state from the provider and checks it belongs to env's product.
func (s *CheckoutService) Verify(ctx context.Context, env domain.Environment, sessionID string) (domain.PaymentSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.PaymentSession{}, domain.NewValidationError("session_id", "session id is required")
	}
	key, err := s.secretKey(env)
	if err != nil {
		return domain.PaymentSession{}, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	ps, err := s.gateway.GetCheckoutSession(ctx, key, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			metrics.Verifications.WithLabelValues("not_found").Inc()
			return domain.PaymentSession{}, err
		}
		err = providerFailure("retrieve checkout session", err)
		metrics.Verifications.WithLabelValues("error").Inc()
		s.logProviderError("checkout session retrieval failed", err)
		return domain.PaymentSession{}, err
	}

	if err := matchesEnvironment(ps, env); err != nil {
		metrics.Verifications.WithLabelValues("wrong_product").Inc()
		s.logger.Warn("checkout session rejected",
			zap.String("session_id", sessionID),
			zap.String("expected_product", env.ProductID),
			zap.Strings("products", ps.ProductIDs),
			zap.Error(err))
		return domain.PaymentSession{}, err
	}

	view := domain.PaymentSession{
		SessionID:     ps.ID,
		Status:        sessionStatus(ps),
		PaymentStatus: ps.PaymentStatus,
		CustomerEmail: ps.CustomerEmail,
		CustomerName:  ps.CustomerName,
		Amount:        ps.AmountTotal,
		Currency:      ps.Currency,
		ProductID:     env.ProductID,
		Environment:   env.Name(),
		Metadata:      ps.Metadata,
		CreatedAt:     ps.CreatedAt,
		ExpiresAt:     ps.ExpiresAt,
	}
	metrics.Verifications.WithLabelValues(string(view.Status)).Inc()
	return view, nil
}

// webhookSecret returns the signing secret or a configuration error.
func (c Credentials) webhookSecret() (string, error) {
	if strings.TrimSpace(c.WebhookSecret) == "" {
		return "", &domain.ConfigurationError{Setting: "STRIPE_WEBHOOK_SECRET", Reason: domain.ConfigMissing}
	}
	return c.WebhookSecret, nil
}

func (s *CheckoutService) secretKey(env domain.Environment) (string, error) {
	if env.IsTest && s.creds.TestSecretKey != "" {
		return s.creds.TestSecretKey, ValidateSecretKey("STRIPE_TEST_SECRET_KEY", s.creds.TestSecretKey)
	}
	return s.creds.SecretKey, ValidateSecretKey("STRIPE_SECRET_KEY", s.creds.SecretKey)
}

func (s *CheckoutService) buildRequest(env domain.Environment, result domain.QuizResult) domain.CheckoutRequest {
	successURL := env.BaseURL + s.opts.SuccessPath
	if strings.Contains(successURL, "?") {
		successURL += "&session_id=" + SessionIDPlaceholder
	} else {
		successURL += "?session_id=" + SessionIDPlaceholder
	}
	return domain.CheckoutRequest{
		ProductID:                env.ProductID,
		UnitAmount:               s.opts.UnitAmount,
		Currency:                 s.opts.Currency,
		Quantity:                 1,
		Locale:                   s.opts.Locale,
		PaymentMethodTypes:       s.opts.PaymentMethodTypes,
		CustomerCreation:         s.opts.CustomerCreation,
		BillingAddressCollection: s.opts.BillingAddressCollection,
		SuccessURL:               successURL,
		CancelURL:                env.BaseURL + s.opts.CancelPath,
		ExpiresAt:                s.now().Add(s.opts.SessionTTL),
		Metadata:                 SessionMetadata(env, result),
	}
}

// SessionMetadata stringifies the quiz result together with the product binding.
func SessionMetadata(env domain.Environment, result domain.QuizResult) map[string]string {
	return map[string]string{
		domain.MetaScore:       strconv.Itoa(result.Score),
		domain.MetaLevel:       string(result.Level),
		domain.MetaPercentage:  strconv.FormatFloat(result.Percentage, 'f', -1, 64),
		domain.MetaProductID:   env.ProductID,
		domain.MetaEnvironment: env.Name(),
	}
}

func (s *CheckoutService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.ProviderTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.ProviderTimeout)
}

func (s *CheckoutService) logProviderError(msg string, err error) {
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		s.logger.Error(msg,
			zap.String("code", pe.Code),
			zap.String("type", pe.Type),
			zap.Int("http_status", pe.HTTPStatus),
			zap.String("message", pe.Message))
		return
	}
	s.logger.Error(msg, zap.Error(err))
}

// placeholderMarkers are substrings that only appear in copied sample keys.
var placeholderMarkers = []string{"here", "your_key", "example"}

const minSecretKeyLength = 50

// ValidateSecretKey rejects missing, placeholder and malformed API keys without calling the provider.
func ValidateSecretKey(setting, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return &domain.ConfigurationError{Setting: setting, Reason: domain.ConfigMissing}
	}
	cfgErr := &domain.ConfigurationError{
		Setting:   setting,
		KeyPrefix: keyPrefix(key),
		KeyLength: len(key),
	}
	lower := strings.ToLower(key)
	for _, marker := range placeholderMarkers {
		if strings.Contains(lower, marker) {
			cfgErr.Reason = domain.ConfigPlaceholder
			cfgErr.Detail = fmt.Sprintf("key contains %q", marker)
			return cfgErr
		}
	}
	if strings.HasSuffix(key, "***") {
		cfgErr.Reason = domain.ConfigPlaceholder
		cfgErr.Detail = "key ends with a redaction marker"
		return cfgErr
	}
	if !strings.HasPrefix(key, "sk_") {
		cfgErr.Reason = domain.ConfigMalformed
		cfgErr.Detail = "key must start with sk_"
		return cfgErr
	}
	if len(key) < minSecretKeyLength {
		cfgErr.Reason = domain.ConfigMalformed
		cfgErr.Detail = fmt.Sprintf("key is %d characters, expected at least %d", len(key), minSecretKeyLength)
		return cfgErr
	}
	return nil
}

func keyPrefix(key string) string {
	const n = 7
	if len(key) <= n {
		return ""
	}
	return key[:n]
}

func validateResult(result domain.QuizResult) error {
	if result.Score < 0 {
		return domain.NewValidationError("quizData.score", "must not be negative")
	}
	if result.Percentage < 0 || result.Percentage > 100 {
		return domain.NewValidationError("quizData.percentage", "must be between 0 and 100")
	}
	if !result.Level.Valid() {
		return domain.NewValidationError("quizData.level", fmt.Sprintf("unknown level %q", result.Level))
	}
	return nil
}

func matchesEnvironment(ps domain.ProviderSession, env domain.Environment) error {
	found := false
	for _, id := range ps.ProductIDs {
		if id == env.ProductID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: session %s has no line item for %s", domain.ErrWrongProduct, ps.ID, env.ProductID)
	}
	if p := ps.Metadata[domain.MetaProductID]; p != "" && p != env.ProductID {
		return fmt.Errorf("%w: session %s was issued for %s", domain.ErrWrongProduct, ps.ID, p)
	}
	if e := ps.Metadata[domain.MetaEnvironment]; e != "" && e != env.Name() {
		return fmt.Errorf("%w: session %s was issued in %s mode", domain.ErrWrongProduct, ps.ID, e)
	}
	return nil
}

func sessionStatus(ps domain.ProviderSession) domain.SessionStatus {
	switch ps.Status {
	case "expired":
		return domain.SessionExpired
	case "complete":
		if domain.IsSettled(ps.PaymentStatus) {
			return domain.SessionPaid
		}
		// checkout finished with a card-only session but nothing settled
		return domain.SessionFailed
	}
	return domain.SessionOpen
}

// providerFailure normalizes gateway errors into the provider error taxonomy.
func providerFailure(op string, err error) error {
	if errors.Is(err, domain.ErrPaymentProvider) || errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.ProviderError{Op: op, Code: "timeout", Type: "timeout", Message: "provider call timed out", Err: err}
	}
	return &domain.ProviderError{Op: op, Code: "unknown", Type: "api_connection_error", Message: err.Error(), Err: err}
}
