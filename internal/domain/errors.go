package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned for bad or missing caller input.
	ErrValidation = errors.New("validation failed")
	// ErrPaymentConfiguration indicates a missing, malformed or placeholder credential.
	ErrPaymentConfiguration = errors.New("payment configuration error")
	// ErrPaymentProvider wraps failures reported by (or while reaching) the payment provider.
	ErrPaymentProvider = errors.New("payment provider error")
	// ErrSessionNotFound is returned when the provider does not know the session reference.
	ErrSessionNotFound = errors.New("checkout session not found")
	// ErrWrongProduct is returned when a session was issued for another product or environment.
	ErrWrongProduct = errors.New("checkout session is for a different product")
	// ErrInvalidSignature rejects webhook bodies whose signature does not verify.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrPaymentRequired is returned when a report is requested for an unpaid session.
	ErrPaymentRequired = errors.New("payment not completed")
	// ErrPreviewDisabled blocks the unpaid preview outside test environments.
	ErrPreviewDisabled = errors.New("unpaid preview is disabled")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrRecordNotFound is returned by payment record stores for unknown session ids.
	ErrRecordNotFound = errors.New("payment record not found")
)

// ValidationError describes which input was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ConfigReason classifies a credential problem.
type ConfigReason string

const (
	ConfigMissing     ConfigReason = "missing"
	ConfigMalformed   ConfigReason = "malformed"
	ConfigPlaceholder ConfigReason = "placeholder"
)

// ConfigurationError reports an unusable credential. It never carries the secret itself,
// only a short prefix and its length.
type ConfigurationError struct {
	Setting   string
	Reason    ConfigReason
	Detail    string
	KeyPrefix string
	KeyLength int
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("%s is %s", e.Setting, e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrPaymentConfiguration }

// ProviderError carries the provider's diagnostic fields for operators.
type ProviderError struct {
	Op         string
	Code       string
	Type       string
	Message    string
	HTTPStatus int
	Err        error
}

func (e *ProviderError) Error() string {
	msg := "payment provider error"
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Type != "" || e.Code != "" {
		msg += fmt.Sprintf(" (type=%s code=%s)", e.Type, e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *ProviderError) Is(target error) bool { return target == ErrPaymentProvider }

func (e *ProviderError) Unwrap() error { return e.Err }
