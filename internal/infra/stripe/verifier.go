package stripe

import (
	"encoding/json"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"quiz-checkout-service/internal/domain"
)

// EventVerifier implements app.EventVerifier with Stripe's signature scheme.
type EventVerifier struct {
	tolerance time.Duration
}

func NewEventVerifier() *EventVerifier {
	return &EventVerifier{tolerance: webhook.DefaultTolerance}
}

// Verify checks the Stripe-Signature header against secret and only then decodes payload.
func (v *EventVerifier) Verify(payload []byte, signatureHeader, secret string) (domain.WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return domain.WebhookEvent{}, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}

	out := domain.WebhookEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Created: time.Unix(event.Created, 0).UTC(),
	}
	if event.Data == nil {
		return out, nil
	}

	switch out.Type {
	case domain.EventSessionCompleted, domain.EventSessionAsyncSucceeded, domain.EventSessionExpired:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return out, nil
		}
		out.Session = sessionPayload(&sess)
	case domain.EventSessionAsyncFailed:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return out, nil
		}
		payload := sessionPayload(&sess)
		out.Failure = &domain.FailurePayload{
			SessionID:     payload.ID,
			CustomerEmail: payload.CustomerEmail,
			Amount:        payload.AmountTotal,
			Code:          "async_payment_failed",
			Reason:        "asynchronous payment failed",
		}
		if sess.PaymentIntent != nil {
			out.Failure.PaymentIntentID = sess.PaymentIntent.ID
		}
	case domain.EventPaymentIntentFailed:
		var intent paymentIntentFailure
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return out, nil
		}
		out.Failure = &domain.FailurePayload{
			PaymentIntentID: intent.ID,
			CustomerEmail:   intent.ReceiptEmail,
			Amount:          intent.Amount,
		}
		if intent.LastPaymentError != nil {
			out.Failure.Code = intent.LastPaymentError.Code
			out.Failure.Reason = intent.LastPaymentError.Message
		}
	}
	return out, nil
}

// paymentIntentFailure is the subset of a PaymentIntent the failure log needs.
type paymentIntentFailure struct {
	ID               string `json:"id"`
	Amount           int64  `json:"amount"`
	ReceiptEmail     string `json:"receipt_email"`
	LastPaymentError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

func sessionPayload(sess *stripe.CheckoutSession) *domain.SessionPayload {
	p := &domain.SessionPayload{
		ID:            sess.ID,
		PaymentStatus: string(sess.PaymentStatus),
		CustomerEmail: sess.CustomerEmail,
		AmountTotal:   sess.AmountTotal,
		Currency:      string(sess.Currency),
		Metadata:      sess.Metadata,
	}
	if sess.CustomerDetails != nil {
		if sess.CustomerDetails.Email != "" {
			p.CustomerEmail = sess.CustomerDetails.Email
		}
		p.CustomerName = sess.CustomerDetails.Name
	}
	if len(sess.PaymentMethodTypes) > 0 {
		p.PaymentMethod = sess.PaymentMethodTypes[0]
	}
	if p.Metadata == nil {
		p.Metadata = map[string]string{}
	}
	return p
}
