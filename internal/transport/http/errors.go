package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"quiz-checkout-service/internal/domain"
)

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
}

// statusFor maps a domain error onto its HTTP status and public body.
// Configuration errors expose the setting and reason, never the credential.
func statusFor(err error) (int, errorResponse) {
	var (
		vErr *domain.ValidationError
		cErr *domain.ConfigurationError
		pErr *domain.ProviderError
	)
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest, errorResponse{Error: "Invalid request", Details: vErr.Error()}
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, errorResponse{Error: "Invalid request", Details: err.Error()}
	case errors.Is(err, domain.ErrWrongProduct):
		return http.StatusBadRequest, errorResponse{Error: "Session does not belong to this product", Details: err.Error()}
	case errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusBadRequest, errorResponse{Error: "Invalid signature"}
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound, errorResponse{Error: "Session not found"}
	case errors.Is(err, domain.ErrQuizNotFound):
		return http.StatusNotFound, errorResponse{Error: "Quiz not found"}
	case errors.Is(err, domain.ErrPaymentRequired):
		return http.StatusPaymentRequired, errorResponse{Error: "Payment required", Details: err.Error()}
	case errors.Is(err, domain.ErrPreviewDisabled):
		return http.StatusForbidden, errorResponse{Error: "Preview disabled"}
	case errors.As(err, &cErr):
		return http.StatusInternalServerError, errorResponse{
			Error:   "Payment configuration error",
			Details: cErr.Error(),
			Type:    "configuration_error",
			Code:    string(cErr.Reason),
		}
	case errors.As(err, &pErr):
		return http.StatusInternalServerError, errorResponse{
			Error:   "Payment provider error",
			Details: pErr.Message,
			Type:    pErr.Type,
			Code:    pErr.Code,
		}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "Internal server error"}
	}
}

func writeError(c *gin.Context, logger *zap.Logger, err error) {
	status, body := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("request_id", requestID(c)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}
