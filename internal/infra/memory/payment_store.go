package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quiz-checkout-service/internal/domain"
)

// PaymentStore is an in-memory implementation of app.PaymentRecordRepository.
type PaymentStore struct {
	mu      sync.RWMutex
	records map[string]domain.PaymentRecord
	clock   func() time.Time
}

func NewPaymentStore() *PaymentStore {
	return &PaymentStore{
		records: make(map[string]domain.PaymentRecord),
		clock:   time.Now,
	}
}

// Save stores rec under its session id unless an equal or settled record is already there.
func (s *PaymentStore) Save(_ context.Context, rec domain.PaymentRecord) (domain.PaymentRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing *domain.PaymentRecord
	if stored, ok := s.records[rec.SessionID]; ok {
		existing = &stored
	}
	merged, write := domain.MergePaymentRecord(existing, rec, s.clock().UTC())
	if write {
		s.records[rec.SessionID] = merged
	}
	return merged, write, nil
}

func (s *PaymentStore) Get(_ context.Context, sessionID string) (domain.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[sessionID]
	if !ok {
		return domain.PaymentRecord{}, domain.ErrRecordNotFound
	}
	return rec, nil
}

func (s *PaymentStore) List(_ context.Context) ([]domain.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]domain.PaymentRecord, 0, len(s.records))
	for _, rec := range s.records {
		items = append(items, rec)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SessionID < items[j].SessionID })
	return items, nil
}
