package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-checkout-service/internal/domain"
)

const maxSaveAttempts = 5

// PaymentStore keeps payment records as JSON values keyed by session id,
// with a set indexing every known session:
//
//	SET  payment:{sessionID} {json}
//	SADD payment:index {sessionID}
type PaymentStore struct {
	client *redis.Client
	clock  func() time.Time
}

func NewPaymentStore(client *redis.Client) *PaymentStore {
	return &PaymentStore{client: client, clock: time.Now}
}

// Save merges rec into the stored record under WATCH so concurrent deliveries
// of the same event write at most once.
func (s *PaymentStore) Save(ctx context.Context, rec domain.PaymentRecord) (domain.PaymentRecord, bool, error) {
	key := s.key(rec.SessionID)
	var (
		merged  domain.PaymentRecord
		written bool
	)
	txf := func(tx *redis.Tx) error {
		existing, err := s.read(ctx, tx, key)
		if err != nil && !errors.Is(err, domain.ErrRecordNotFound) {
			return err
		}
		var current *domain.PaymentRecord
		if err == nil {
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
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, s.indexKey(), rec.SessionID)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return domain.PaymentRecord{}, false, fmt.Errorf("save payment %s: %w", rec.SessionID, err)
		}
		return merged, written, nil
	}
	return domain.PaymentRecord{}, false, fmt.Errorf("save payment %s: too much contention", rec.SessionID)
}

func (s *PaymentStore) Get(ctx context.Context, sessionID string) (domain.PaymentRecord, error) {
	return s.read(ctx, s.client, s.key(sessionID))
}

func (s *PaymentStore) List(ctx context.Context) ([]domain.PaymentRecord, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []domain.PaymentRecord{}, nil
	}
	sort.Strings(ids)
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	items := make([]domain.PaymentRecord, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec domain.PaymentRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode payment %s: %w", ids[i], err)
		}
		items = append(items, rec)
	}
	return items, nil
}

func (s *PaymentStore) read(ctx context.Context, cmd redis.Cmdable, key string) (domain.PaymentRecord, error) {
	data, err := cmd.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.PaymentRecord{}, domain.ErrRecordNotFound
	}
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	var rec domain.PaymentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.PaymentRecord{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return rec, nil
}

func (s *PaymentStore) key(sessionID string) string {
	return "payment:" + sessionID
}

func (s *PaymentStore) indexKey() string {
	return "payment:index"
}
