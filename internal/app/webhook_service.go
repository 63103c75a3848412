package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"quiz-checkout-service/internal/domain"
	"quiz-checkout-service/internal/metrics"
)

// EventVerifier authenticates a raw webhook body and only then decodes it.
type EventVerifier interface {
	Verify(payload []byte, signatureHeader, secret string) (domain.WebhookEvent, error)
}

// PaymentRecordRepository persists payment records keyed by session id.
// Save must be idempotent: it reports whether anything was written.
type PaymentRecordRepository interface {
	Save(ctx context.Context, rec domain.PaymentRecord) (domain.PaymentRecord, bool, error)
	Get(ctx context.Context, sessionID string) (domain.PaymentRecord, error)
	List(ctx context.Context) ([]domain.PaymentRecord, error)
}

// Notifier dispatches the confirmation notice for a recorded payment.
type Notifier interface {
	Notify(ctx context.Context, notice domain.Notice) error
}

// Notifiers fans a notice out to every notifier and joins their errors.
type Notifiers []Notifier

func (n Notifiers) Notify(ctx context.Context, notice domain.Notice) error {
	var errs []error
	for _, notifier := range n {
		if err := notifier.Notify(ctx, notice); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WebhookService reacts to authenticated provider events. Once the signature
// verifies, downstream failures are logged and never returned.
type WebhookService struct {
	verifier    EventVerifier
	records     PaymentRecordRepository
	notifier    Notifier
	creds       Credentials
	successPath string
	logger      *zap.Logger
	now         func() time.Time
}

func NewWebhookService(verifier EventVerifier, records PaymentRecordRepository, notifier Notifier, creds Credentials, successPath string, logger *zap.Logger) *WebhookService {
	return &WebhookService{
		verifier:    verifier,
		records:     records,
		notifier:    notifier,
		creds:       creds,
		successPath: successPath,
		logger:      logger,
		now:         time.Now,
	}
}

// Handle authenticates payload and dispatches it by event type. A nil error means
// the event must be acknowledged, whether or not its side effects succeeded.
func (s *WebhookService) Handle(ctx context.Context, env domain.Environment, payload []byte, signatureHeader string) error {
	secret, err := s.creds.webhookSecret()
	if err != nil {
		s.logger.Error("webhook secret not configured")
		return err
	}
	event, err := s.verifier.Verify(payload, signatureHeader, secret)
	if err != nil {
		s.logger.Warn("webhook signature verification failed", zap.Error(err))
		if !errors.Is(err, domain.ErrInvalidSignature) {
			err = fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
		}
		return err
	}

	log := s.logger.With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))
	switch event.Type {
	case domain.EventSessionCompleted, domain.EventSessionAsyncSucceeded:
		s.handleCompleted(ctx, env, event, log)
	case domain.EventPaymentIntentFailed, domain.EventSessionAsyncFailed:
		s.handleFailed(event, log)
	case domain.EventSessionExpired:
		sessionID := ""
		if event.Session != nil {
			sessionID = event.Session.ID
		}
		log.Info("checkout session expired", zap.String("session_id", sessionID))
		metrics.WebhookEvents.WithLabelValues(event.Type, "logged").Inc()
	default:
		log.Info("unhandled event")
		metrics.WebhookEvents.WithLabelValues("other", "unhandled").Inc()
	}
	return nil
}

func (s *WebhookService) handleCompleted(ctx context.Context, env domain.Environment, event domain.WebhookEvent, log *zap.Logger) {
	session := event.Session
	if session == nil {
		log.Warn("session event without session payload")
		metrics.WebhookEvents.WithLabelValues(event.Type, "malformed").Inc()
		return
	}
	log = log.With(zap.String("session_id", session.ID))

	if product := session.Metadata[domain.MetaProductID]; product != env.ProductID {
		log.Warn("ignoring session for another product",
			zap.String("product_id", product),
			zap.String("expected_product", env.ProductID))
		metrics.WebhookEvents.WithLabelValues(event.Type, "ignored").Inc()
		return
	}

	incoming := domain.PaymentRecord{
		SessionID:     session.ID,
		ProductID:     env.ProductID,
		Environment:   metaOr(session.Metadata, domain.MetaEnvironment, env.Name()),
		PaymentStatus: session.PaymentStatus,
		CustomerEmail: session.CustomerEmail,
		CustomerName:  session.CustomerName,
		Amount:        session.AmountTotal,
		Currency:      session.Currency,
		Score:         session.Metadata[domain.MetaScore],
		Level:         session.Metadata[domain.MetaLevel],
		Percentage:    session.Metadata[domain.MetaPercentage],
		PaymentMethod: session.PaymentMethod,
	}

	stored, written, err := s.records.Save(ctx, incoming)
	notify := false
	switch {
	case err != nil:
		// the customer has paid either way; the notice still goes out
		log.Error("failed to persist payment record", zap.Error(err))
		metrics.WebhookEvents.WithLabelValues(event.Type, "persist_failed").Inc()
		notify = incoming.Paid()
		stored = incoming
	case written:
		log.Info("payment recorded", zap.String("payment_status", stored.PaymentStatus))
		metrics.WebhookEvents.WithLabelValues(event.Type, "recorded").Inc()
		notify = stored.Paid()
	default:
		log.Info("payment record already up to date", zap.String("payment_status", stored.PaymentStatus))
		metrics.WebhookEvents.WithLabelValues(event.Type, "duplicate").Inc()
	}
	if !notify {
		return
	}

	notice := domain.Notice{
		SessionID: stored.SessionID,
		Email:     stored.CustomerEmail,
		Name:      stored.CustomerName,
		Level:     stored.Level,
		ResultURL: env.BaseURL + s.successPath + "?session_id=" + stored.SessionID,
	}
	if err := s.notifier.Notify(ctx, notice); err != nil {
		log.Error("failed to dispatch confirmation notice", zap.Error(err))
		metrics.WebhookEvents.WithLabelValues(event.Type, "notice_failed").Inc()
	}
}

func (s *WebhookService) handleFailed(event domain.WebhookEvent, log *zap.Logger) {
	failure := event.Failure
	if failure == nil {
		log.Warn("failure event without payment details")
		metrics.WebhookEvents.WithLabelValues(event.Type, "malformed").Inc()
		return
	}
	code := failure.Code
	if code == "" {
		code = "unknown"
	}
	log.Warn("payment failed",
		zap.String("payment_intent_id", failure.PaymentIntentID),
		zap.String("session_id", failure.SessionID),
		zap.Int64("amount", failure.Amount),
		zap.String("failure_code", code),
		zap.String("failure_reason", failure.Reason))
	metrics.PaymentFailures.WithLabelValues(code).Inc()
	metrics.WebhookEvents.WithLabelValues(event.Type, "logged").Inc()
}

func metaOr(meta map[string]string, key, fallback string) string {
	if v := meta[key]; v != "" {
		return v
	}
	return fallback
}
