package app_test

import (
	"context"
	"sync"
	"time"

	"quiz-checkout-service/internal/domain"
)

const validKey = "sk_test_51QuizCheckoutUnitTestKey0123456789abcdefghijklmn"

type fakeGateway struct {
	mu       sync.Mutex
	creates  []domain.CheckoutRequest
	gets     int
	keys     []string
	session  domain.CheckoutSession
	sessions map[string]domain.ProviderSession
	err      error
	delay    time.Duration
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, key string, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	g.mu.Lock()
	g.creates = append(g.creates, req)
	g.keys = append(g.keys, key)
	delay, err, session := g.delay, g.err, g.session
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return domain.CheckoutSession{}, ctx.Err()
		}
	}
	if err != nil {
		return domain.CheckoutSession{}, err
	}
	return session, nil
}

func (g *fakeGateway) GetCheckoutSession(_ context.Context, key, sessionID string) (domain.ProviderSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gets++
	g.keys = append(g.keys, key)
	if g.err != nil {
		return domain.ProviderSession{}, g.err
	}
	ps, ok := g.sessions[sessionID]
	if !ok {
		return domain.ProviderSession{}, domain.ErrSessionNotFound
	}
	return ps, nil
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.creates) + g.gets
}

func testEnv() domain.Environment {
	return domain.Environment{IsTest: true, ProductID: domain.DefaultProducts.Test, BaseURL: "http://localhost:3000"}
}

func prodEnv() domain.Environment {
	return domain.Environment{IsTest: false, ProductID: domain.DefaultProducts.Production, BaseURL: "https://quiz.example.com"}
}

func providerSession(id, status, paymentStatus string, env domain.Environment) domain.ProviderSession {
	return domain.ProviderSession{
		ID:            id,
		Status:        status,
		PaymentStatus: paymentStatus,
		AmountTotal:   400,
		Currency:      "brl",
		ProductIDs:    []string{env.ProductID},
		Metadata: map[string]string{
			domain.MetaScore:       "12",
			domain.MetaLevel:       "Expert",
			domain.MetaPercentage:  "80",
			domain.MetaProductID:   env.ProductID,
			domain.MetaEnvironment: env.Name(),
		},
	}
}
