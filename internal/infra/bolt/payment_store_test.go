package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"quiz-checkout-service/internal/domain"
)

func newTestStore(t *testing.T) *PaymentStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "payments.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestListEmpty(t *testing.T) {
	s := newTestStore(t)
	items, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil list, got %v", items)
	}
}

func TestSaveIdempotency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := domain.PaymentRecord{
		SessionID:     "cs_test_1",
		ProductID:     domain.DefaultProducts.Test,
		PaymentStatus: domain.PaymentStatusPaid,
		Amount:        400,
		Currency:      "brl",
	}

	first, written, err := s.Save(ctx, rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !written {
		t.Fatal("expected written=true on first call")
	}

	second, written, err := s.Save(ctx, rec)
	if err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}
	if written {
		t.Fatal("expected written=false on retry")
	}
	if !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Fatalf("expected stored record unchanged, got %v vs %v", second.UpdatedAt, first.UpdatedAt)
	}

	items, _ := s.List(ctx)
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
}

func TestSaveUpgradesUnpaidOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, _, _ = s.Save(ctx, domain.PaymentRecord{SessionID: "cs_1", PaymentStatus: domain.PaymentStatusUnpaid})
	if _, written, _ := s.Save(ctx, domain.PaymentRecord{SessionID: "cs_1", PaymentStatus: domain.PaymentStatusPaid}); !written {
		t.Fatal("expected unpaid record upgraded")
	}
	got, err := s.Get(ctx, "cs_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Paid() {
		t.Fatalf("expected paid record, got %+v", got)
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}
