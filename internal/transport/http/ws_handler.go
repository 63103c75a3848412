package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quiz-checkout-service/internal/app"
	"quiz-checkout-service/internal/domain"
)

// StatusSource delivers confirmation notices for one checkout session.
type StatusSource interface {
	Subscribe(sessionID string) (<-chan domain.Notice, func())
	Subscribers(sessionID string) int
}

// WSHandler streams the payment status of a checkout session until it is paid.
type WSHandler struct {
	status   StatusSource
	checkout *app.CheckoutService
	resolver app.EnvironmentResolver
	logger   *zap.Logger
	upgrader websocket.Upgrader
	// maxWait closes idle streams; the checkout page reconnects if still open.
	maxWait time.Duration
}

func NewWSHandler(status StatusSource, checkout *app.CheckoutService, resolver app.EnvironmentResolver, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		status:   status,
		checkout: checkout,
		resolver: resolver,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		maxWait: 30 * time.Minute,
	}
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type statusPayload struct {
	SessionID string               `json:"sessionId"`
	Status    domain.SessionStatus `json:"status"`
	ResultURL string               `json:"resultUrl,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and sends a "status" message now and a "paid"
// message once the webhook records the payment.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "missing session_id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// subscribe before verifying so a payment landing in between is not missed
	notices, cancel := h.status.Subscribe(sessionID)
	defer cancel()
	h.logger.Debug("status listener attached",
		zap.String("session_id", sessionID),
		zap.Int("listeners", h.status.Subscribers(sessionID)))

	env := h.resolver.Resolve(r.Host)
	session, err := h.checkout.Verify(r.Context(), env, sessionID)
	if err != nil {
		status, body := statusFor(err)
		h.logger.Info("ws verification failed", zap.String("session_id", sessionID), zap.Int("status", status))
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: body.Error}})
		return
	}
	if session.Paid() {
		_ = conn.WriteJSON(outboundMessage[statusPayload]{Type: "paid", Payload: statusPayload{SessionID: sessionID, Status: domain.SessionPaid}})
		return
	}
	if err := conn.WriteJSON(outboundMessage[statusPayload]{Type: "status", Payload: statusPayload{SessionID: sessionID, Status: session.Status}}); err != nil {
		return
	}

	// the reader only detects the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ctx, stop := context.WithTimeout(r.Context(), h.maxWait)
	defer stop()
	select {
	case notice, ok := <-notices:
		if !ok {
			return
		}
		msg := outboundMessage[statusPayload]{Type: "paid", Payload: statusPayload{
			SessionID: notice.SessionID,
			Status:    domain.SessionPaid,
			ResultURL: notice.ResultURL,
		}}
		if err := conn.WriteJSON(msg); err != nil {
			h.logger.Warn("ws write error", zap.Error(err))
		}
	case <-closed:
	case <-ctx.Done():
	}
}
