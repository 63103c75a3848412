package domain

import "time"

// Level is the categorical label derived from a quiz percentage.
type Level string

const (
	LevelExpert   Level = "Expert"
	LevelGood     Level = "Good"
	LevelBasic    Level = "Basic"
	LevelBeginner Level = "Beginner"
)

// Levels lists every label, highest tier first.
var Levels = []Level{LevelExpert, LevelGood, LevelBasic, LevelBeginner}

// Valid reports whether l is one of the known labels.
func (l Level) Valid() bool {
	for _, known := range Levels {
		if l == known {
			return true
		}
	}
	return false
}

// Option represents a possible answer for a question and the points it is worth.
type Option struct {
	ID     string `json:"id" yaml:"id"`
	Text   string `json:"text" yaml:"text"`
	Points int    `json:"points" yaml:"points"`
}

// Question models a survey question; every option carries a weight.
type Question struct {
	ID      string   `json:"id" yaml:"id"`
	Prompt  string   `json:"prompt" yaml:"prompt"`
	Options []Option `json:"options" yaml:"options"`
}

// MaxPoints returns the highest option weight of the question.
func (q Question) MaxPoints() int {
	highest := 0
	for _, opt := range q.Options {
		if opt.Points > highest {
			highest = opt.Points
		}
	}
	return highest
}

// Quiz is a collection of questions.
type Quiz struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// MaxScore is the number of questions times the maximum per-question weight.
func (q Quiz) MaxScore() int {
	highest := 0
	for _, question := range q.Questions {
		if p := question.MaxPoints(); p > highest {
			highest = p
		}
	}
	return len(q.Questions) * highest
}

// QuizResult is the scored outcome of one completed quiz.
type QuizResult struct {
	Score      int     `json:"score"`
	MaxScore   int     `json:"maxScore"`
	Percentage float64 `json:"percentage"`
	Level      Level   `json:"level"`
}

// Environment is the resolved execution context for payment operations.
type Environment struct {
	IsTest    bool   `json:"isTest"`
	ProductID string `json:"productId"`
	BaseURL   string `json:"baseUrl"`
}

const (
	EnvironmentTest       = "test"
	EnvironmentProduction = "production"
)

// Name returns the metadata label of the environment.
func (e Environment) Name() string {
	if e.IsTest {
		return EnvironmentTest
	}
	return EnvironmentProduction
}

// ProductTable maps the test/production distinction to product identifiers.
type ProductTable struct {
	Test       string
	Production string
}

// DefaultProducts are the quiz products registered with the payment provider.
var DefaultProducts = ProductTable{
	Test:       "prod_SnibIHbIfakhda",
	Production: "prod_Sn4hQJD9yvuW8H",
}

// For selects the product for the given mode.
func (t ProductTable) For(isTest bool) string {
	if isTest {
		return t.Test
	}
	return t.Production
}

// Metadata keys written once at session creation.
const (
	MetaScore       = "score"
	MetaLevel       = "level"
	MetaPercentage  = "percentage"
	MetaProductID   = "productId"
	MetaEnvironment = "environment"
)

// CheckoutRequest is what the issuer asks the provider to create.
type CheckoutRequest struct {
	ProductID                string
	UnitAmount               int64
	Currency                 string
	Quantity                 int64
	Locale                   string
	PaymentMethodTypes       []string
	CustomerCreation         string
	BillingAddressCollection string
	SuccessURL               string
	CancelURL                string
	ExpiresAt                time.Time
	Metadata                 map[string]string
}

// CheckoutSession is the issuer's answer: where to send the visitor.
type CheckoutSession struct {
	SessionID   string `json:"sessionId"`
	CheckoutURL string `json:"checkoutUrl"`
}

// ProviderSession is the provider-side view of a checkout session and its line items.
type ProviderSession struct {
	ID            string
	Status        string
	PaymentStatus string
	CustomerEmail string
	CustomerName  string
	AmountTotal   int64
	Currency      string
	Metadata      map[string]string
	ProductIDs    []string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// SessionStatus is the lifecycle state of a payment session.
type SessionStatus string

const (
	SessionOpen    SessionStatus = "open"
	SessionPaid    SessionStatus = "paid"
	SessionExpired SessionStatus = "expired"
	SessionFailed  SessionStatus = "failed"
)

// PaymentSession is the verified view of a checkout attempt.
type PaymentSession struct {
	SessionID     string            `json:"sessionId"`
	Status        SessionStatus     `json:"status"`
	PaymentStatus string            `json:"paymentStatus"`
	CustomerEmail string            `json:"customerEmail,omitempty"`
	CustomerName  string            `json:"customerName,omitempty"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	ProductID     string            `json:"productId"`
	Environment   string            `json:"environment"`
	Metadata      map[string]string `json:"metadata"`
	CreatedAt     time.Time         `json:"createdAt"`
	ExpiresAt     time.Time         `json:"expiresAt"`
}

// Paid reports whether access may be granted.
func (s PaymentSession) Paid() bool {
	return s.Status == SessionPaid
}

// Webhook event types the handler reacts to.
const (
	EventSessionCompleted      = "checkout.session.completed"
	EventSessionAsyncSucceeded = "checkout.session.async_payment_succeeded"
	EventSessionAsyncFailed    = "checkout.session.async_payment_failed"
	EventSessionExpired        = "checkout.session.expired"
	EventPaymentIntentFailed   = "payment_intent.payment_failed"
)

// WebhookEvent is an authenticated provider notification.
type WebhookEvent struct {
	ID      string
	Type    string
	Created time.Time
	Session *SessionPayload
	Failure *FailurePayload
}

// SessionPayload is the checkout session carried by session.* events.
type SessionPayload struct {
	ID            string
	PaymentStatus string
	CustomerEmail string
	CustomerName  string
	AmountTotal   int64
	Currency      string
	PaymentMethod string
	Metadata      map[string]string
}

// FailurePayload describes a failed payment attempt.
type FailurePayload struct {
	PaymentIntentID string
	SessionID       string
	CustomerEmail   string
	Amount          int64
	Code            string
	Reason          string
}

// Provider payment statuses.
const (
	PaymentStatusPaid              = "paid"
	PaymentStatusUnpaid            = "unpaid"
	PaymentStatusNoPaymentRequired = "no_payment_required"
)

// PaymentRecord is the persisted outcome of a completed checkout. SessionID is the idempotency key.
type PaymentRecord struct {
	SessionID     string    `json:"sessionId"`
	ProductID     string    `json:"productId"`
	Environment   string    `json:"environment"`
	PaymentStatus string    `json:"paymentStatus"`
	CustomerEmail string    `json:"customerEmail,omitempty"`
	CustomerName  string    `json:"customerName,omitempty"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Score         string    `json:"score"`
	Level         string    `json:"level"`
	Percentage    string    `json:"percentage"`
	PaymentMethod string    `json:"paymentMethod,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Paid reports whether the record represents a settled payment.
func (r PaymentRecord) Paid() bool {
	return IsSettled(r.PaymentStatus)
}

// IsSettled reports whether a provider payment status grants access.
func IsSettled(paymentStatus string) bool {
	return paymentStatus == PaymentStatusPaid || paymentStatus == PaymentStatusNoPaymentRequired
}

// Notice is the confirmation sent once a payment is recorded.
type Notice struct {
	SessionID string `json:"sessionId"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	Level     string `json:"level"`
	ResultURL string `json:"resultUrl"`
}

// ResultReport is the paywalled content unlocked by a verified payment.
type ResultReport struct {
	SessionID    string     `json:"sessionId,omitempty"`
	Verified     bool       `json:"verified"`
	Result       QuizResult `json:"result"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Feedback     string     `json:"feedback"`
	Strengths    []string   `json:"strengths"`
	Improvements []string   `json:"improvements"`
	Tips         []string   `json:"tips"`
}

// SalesSummary aggregates recorded payments for one product.
type SalesSummary struct {
	ProductID         string          `json:"productId"`
	TotalSales        int             `json:"totalSales"`
	TotalRevenue      int64           `json:"totalRevenue"`
	Currency          string          `json:"currency"`
	AverageScore      float64         `json:"averageQuizScore"`
	LevelDistribution map[string]int  `json:"levelDistribution"`
	RecentSales       []PaymentRecord `json:"recentSales"`
}

// MergePaymentRecord applies a redelivered or newer record onto the stored one.
// It reports whether anything must be written: a settled record is never downgraded
// and an unchanged status is not rewritten.
func MergePaymentRecord(existing *PaymentRecord, incoming PaymentRecord, now time.Time) (PaymentRecord, bool) {
	if existing == nil {
		incoming.CreatedAt = now
		incoming.UpdatedAt = now
		return incoming, true
	}
	if existing.Paid() || existing.PaymentStatus == incoming.PaymentStatus {
		return *existing, false
	}
	incoming.CreatedAt = existing.CreatedAt
	incoming.UpdatedAt = now
	return incoming, true
}
