// Package stripe adapts the Stripe API and webhook signatures to the checkout services.
package stripe

import (
	"context"
	"errors"
	"net/http"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"quiz-checkout-service/internal/domain"
)

const tracerName = "quiz-checkout-service/stripe"

// GatewayConfig tunes the Stripe HTTP backend.
type GatewayConfig struct {
	// APIURL overrides the Stripe API base URL (tests point it at a stub).
	APIURL            string
	HTTPClient        *http.Client
	MaxNetworkRetries int64
}

// Gateway implements app.PaymentGateway on top of stripe-go.
type Gateway struct {
	backends *stripe.Backends
	tracer   trace.Tracer
}

func NewGateway(cfg GatewayConfig, logger *zap.Logger) *Gateway {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
		LeveledLogger:     logger.Named("stripe").Sugar(),
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
	}
	return &Gateway{
		backends: stripe.NewBackendsWithConfig(backendCfg),
		tracer:   otel.Tracer(tracerName),
	}
}

// CreateCheckoutSession creates a one-item payment session priced inline against req.ProductID.
func (g *Gateway) CreateCheckoutSession(ctx context.Context, secretKey string, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	ctx, span := g.tracer.Start(ctx, "stripe.checkout.sessions.create",
		trace.WithAttributes(attribute.String("stripe.product_id", req.ProductID)))
	defer span.End()

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					Product:    stripe.String(req.ProductID),
					UnitAmount: stripe.Int64(req.UnitAmount),
				},
				Quantity: stripe.Int64(req.Quantity),
			},
		},
		PaymentMethodTypes: stripe.StringSlice(req.PaymentMethodTypes),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		Locale:             stripe.String(req.Locale),
	}
	if req.CustomerCreation != "" {
		params.CustomerCreation = stripe.String(req.CustomerCreation)
	}
	if req.BillingAddressCollection != "" {
		params.BillingAddressCollection = stripe.String(req.BillingAddressCollection)
	}
	if !req.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	sess, err := client.New(secretKey, g.backends).CheckoutSessions.New(params)
	if err != nil {
		err = mapError("create checkout session", err)
		recordError(span, err)
		return domain.CheckoutSession{}, err
	}
	span.SetAttributes(attribute.String("stripe.session_id", sess.ID))
	return domain.CheckoutSession{SessionID: sess.ID, CheckoutURL: sess.URL}, nil
}

// GetCheckoutSession fetches a session with its line item products in one call.
func (g *Gateway) GetCheckoutSession(ctx context.Context, secretKey, sessionID string) (domain.ProviderSession, error) {
	ctx, span := g.tracer.Start(ctx, "stripe.checkout.sessions.retrieve",
		trace.WithAttributes(attribute.String("stripe.session_id", sessionID)))
	defer span.End()

	params := &stripe.CheckoutSessionParams{}
	params.AddExpand("line_items.data.price.product")
	params.Context = ctx

	sess, err := client.New(secretKey, g.backends).CheckoutSessions.Get(sessionID, params)
	if err != nil {
		err = mapError("retrieve checkout session", err)
		recordError(span, err)
		return domain.ProviderSession{}, err
	}
	return providerSession(sess), nil
}

func providerSession(sess *stripe.CheckoutSession) domain.ProviderSession {
	ps := domain.ProviderSession{
		ID:            sess.ID,
		Status:        string(sess.Status),
		PaymentStatus: string(sess.PaymentStatus),
		CustomerEmail: sess.CustomerEmail,
		AmountTotal:   sess.AmountTotal,
		Currency:      string(sess.Currency),
		Metadata:      sess.Metadata,
	}
	if sess.CustomerDetails != nil {
		if sess.CustomerDetails.Email != "" {
			ps.CustomerEmail = sess.CustomerDetails.Email
		}
		ps.CustomerName = sess.CustomerDetails.Name
	}
	if sess.Created > 0 {
		ps.CreatedAt = time.Unix(sess.Created, 0).UTC()
	}
	if sess.ExpiresAt > 0 {
		ps.ExpiresAt = time.Unix(sess.ExpiresAt, 0).UTC()
	}
	if sess.LineItems != nil {
		for _, item := range sess.LineItems.Data {
			if item == nil || item.Price == nil || item.Price.Product == nil {
				continue
			}
			ps.ProductIDs = append(ps.ProductIDs, item.Price.Product.ID)
		}
	}
	if ps.Metadata == nil {
		ps.Metadata = map[string]string{}
	}
	return ps
}

// mapError translates stripe-go errors into the domain taxonomy.
func mapError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.Code == stripe.ErrorCodeResourceMissing || se.HTTPStatusCode == http.StatusNotFound {
			return domain.ErrSessionNotFound
		}
		return &domain.ProviderError{
			Op:         op,
			Code:       string(se.Code),
			Type:       string(se.Type),
			Message:    se.Msg,
			HTTPStatus: se.HTTPStatusCode,
			Err:        err,
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.ProviderError{Op: op, Code: "timeout", Type: "timeout", Message: "provider call timed out", Err: err}
	}
	return &domain.ProviderError{Op: op, Code: "unknown", Type: "api_connection_error", Message: err.Error(), Err: err}
}

func recordError(span trace.Span, err error) {
	if errors.Is(err, domain.ErrSessionNotFound) {
		span.SetStatus(codes.Unset, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
