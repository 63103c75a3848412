// Package bolt stores payment records in an embedded BoltDB file, for single-node
// deployments without Redis or Postgres.
package bolt

import (
	"context"
	"encoding/json"
	"time"

	bolt "github.com/boltdb/bolt"

	"quiz-checkout-service/internal/domain"
)

const bucketName = "payment_records"

// PaymentStore is a BoltDB-backed app.PaymentRecordRepository.
type PaymentStore struct {
	db    *bolt.DB
	clock func() time.Time
}

// Open opens (or creates) the database at path and ensures the bucket exists.
func Open(path string) (*PaymentStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &PaymentStore{db: db, clock: time.Now}, nil
}

func (s *PaymentStore) Close() error {
	return s.db.Close()
}

// Save merges rec into the stored value. Bolt serializes writers, so the read and
// the conditional write happen in one transaction.
func (s *PaymentStore) Save(_ context.Context, rec domain.PaymentRecord) (domain.PaymentRecord, bool, error) {
	var (
		merged  domain.PaymentRecord
		written bool
	)
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		var current *domain.PaymentRecord
		if v := b.Get([]byte(rec.SessionID)); v != nil {
			var existing domain.PaymentRecord
			if err := json.Unmarshal(v, &existing); err != nil {
				return err
			}
			current = &existing
		}

		merged, written = domain.MergePaymentRecord(current, rec, s.clock().UTC())
		if !written {
			return nil
		}
		data, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		return b.Put([]byte(rec.SessionID), data)
	})
	if err != nil {
		return domain.PaymentRecord{}, false, err
	}
	return merged, written, nil
}

func (s *PaymentStore) Get(_ context.Context, sessionID string) (domain.PaymentRecord, error) {
	var rec domain.PaymentRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketName)).Get([]byte(sessionID))
		if v == nil {
			return domain.ErrRecordNotFound
		}
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	return rec, nil
}

func (s *PaymentStore) List(_ context.Context) ([]domain.PaymentRecord, error) {
	items := []domain.PaymentRecord{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(_, v []byte) error {
			var rec domain.PaymentRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			items = append(items, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}
