package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"quiz-checkout-service/internal/domain"
)

type paymentRecordModel struct {
	bun.BaseModel `bun:"table:payment_records,alias:pr"`

	SessionID     string    `bun:"session_id,pk"`
	ProductID     string    `bun:"product_id,notnull"`
	Environment   string    `bun:"environment,notnull"`
	PaymentStatus string    `bun:"payment_status,notnull"`
	CustomerEmail string    `bun:"customer_email"`
	CustomerName  string    `bun:"customer_name"`
	Amount        int64     `bun:"amount,notnull"`
	Currency      string    `bun:"currency,notnull"`
	Score         string    `bun:"score"`
	Level         string    `bun:"level"`
	Percentage    string    `bun:"percentage"`
	PaymentMethod string    `bun:"payment_method"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
	UpdatedAt     time.Time `bun:"updated_at,notnull"`
}

func toModel(rec domain.PaymentRecord) *paymentRecordModel {
	return &paymentRecordModel{
		SessionID:     rec.SessionID,
		ProductID:     rec.ProductID,
		Environment:   rec.Environment,
		PaymentStatus: rec.PaymentStatus,
		CustomerEmail: rec.CustomerEmail,
		CustomerName:  rec.CustomerName,
		Amount:        rec.Amount,
		Currency:      rec.Currency,
		Score:         rec.Score,
		Level:         rec.Level,
		Percentage:    rec.Percentage,
		PaymentMethod: rec.PaymentMethod,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}

func (m *paymentRecordModel) record() domain.PaymentRecord {
	return domain.PaymentRecord{
		SessionID:     m.SessionID,
		ProductID:     m.ProductID,
		Environment:   m.Environment,
		PaymentStatus: m.PaymentStatus,
		CustomerEmail: m.CustomerEmail,
		CustomerName:  m.CustomerName,
		Amount:        m.Amount,
		Currency:      m.Currency,
		Score:         m.Score,
		Level:         m.Level,
		Percentage:    m.Percentage,
		PaymentMethod: m.PaymentMethod,
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
}

// PaymentStore persists payment records in the payment_records table.
type PaymentStore struct {
	db    *bun.DB
	clock func() time.Time
}

func NewPaymentStore(db *bun.DB) *PaymentStore {
	return &PaymentStore{db: db, clock: time.Now}
}

// Save merges rec into the stored row inside a transaction. The row lock taken by
// SELECT ... FOR UPDATE serializes concurrent deliveries of the same session. When a
// racing first insert wins, the row is locked again and rec is merged onto it.
func (s *PaymentStore) Save(ctx context.Context, rec domain.PaymentRecord) (domain.PaymentRecord, bool, error) {
	var (
		merged  domain.PaymentRecord
		written bool
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for attempt := 0; attempt < 2; attempt++ {
			var (
				done bool
				err  error
			)
			merged, written, done, err = s.mergeLocked(ctx, tx, rec)
			if err != nil || done {
				return err
			}
		}
		return fmt.Errorf("session %s: concurrent insert did not become visible", rec.SessionID)
	})
	if err != nil {
		return domain.PaymentRecord{}, false, fmt.Errorf("save payment %s: %w", rec.SessionID, err)
	}
	return merged, written, nil
}

// mergeLocked runs one lock, merge, write round. done is false only when the
// insert lost a race against another transaction and the merge must be repeated.
func (s *PaymentStore) mergeLocked(ctx context.Context, tx bun.Tx, rec domain.PaymentRecord) (merged domain.PaymentRecord, written, done bool, err error) {
	existing := new(paymentRecordModel)
	err = tx.NewSelect().
		Model(existing).
		Where("session_id = ?", rec.SessionID).
		For("UPDATE").
		Scan(ctx)
	var current *domain.PaymentRecord
	switch {
	case err == nil:
		r := existing.record()
		current = &r
	case errors.Is(err, sql.ErrNoRows):
	default:
		return domain.PaymentRecord{}, false, false, err
	}

	merged, written = domain.MergePaymentRecord(current, rec, s.clock().UTC())
	if !written {
		return merged, false, true, nil
	}
	model := toModel(merged)
	if current != nil {
		if _, err := tx.NewUpdate().Model(model).WherePK().Exec(ctx); err != nil {
			return domain.PaymentRecord{}, false, false, err
		}
		return merged, true, true, nil
	}
	res, err := tx.NewInsert().Model(model).On("CONFLICT (session_id) DO NOTHING").Exec(ctx)
	if err != nil {
		return domain.PaymentRecord{}, false, false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.PaymentRecord{}, false, false, nil
	}
	return merged, true, true, nil
}

func (s *PaymentStore) Get(ctx context.Context, sessionID string) (domain.PaymentRecord, error) {
	model := new(paymentRecordModel)
	err := s.db.NewSelect().Model(model).Where("session_id = ?", sessionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PaymentRecord{}, domain.ErrRecordNotFound
	}
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	return model.record(), nil
}

func (s *PaymentStore) List(ctx context.Context) ([]domain.PaymentRecord, error) {
	var models []paymentRecordModel
	if err := s.db.NewSelect().Model(&models).Order("created_at DESC").Scan(ctx); err != nil {
		return nil, err
	}
	items := make([]domain.PaymentRecord, 0, len(models))
	for i := range models {
		items = append(items, models[i].record())
	}
	return items, nil
}
