package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"quiz-checkout-service/internal/domain"
)

const (
	noticeQueueKey   = "notices:outbox"
	noticeChannel    = "notices:live"
	noticeQueueLimit = 1000
)

// NoticeQueue implements app.Notifier. Each notice is pushed onto a capped
// outbox list for the mail worker and published for live listeners on every instance.
type NoticeQueue struct {
	client *redis.Client
}

func NewNoticeQueue(client *redis.Client) *NoticeQueue {
	return &NoticeQueue{client: client}
}

func (q *NoticeQueue) Notify(ctx context.Context, notice domain.Notice) error {
	data, err := json.Marshal(notice)
	if err != nil {
		return err
	}
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, noticeQueueKey, data)
		pipe.LTrim(ctx, noticeQueueKey, 0, noticeQueueLimit-1)
		pipe.Publish(ctx, noticeChannel, data)
		return nil
	})
	return err
}

// Pending returns up to n queued notices, newest first, without removing them.
func (q *NoticeQueue) Pending(ctx context.Context, n int64) ([]domain.Notice, error) {
	raw, err := q.client.LRange(ctx, noticeQueueKey, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	notices := make([]domain.Notice, 0, len(raw))
	for _, item := range raw {
		var notice domain.Notice
		if err := json.Unmarshal([]byte(item), &notice); err != nil {
			continue
		}
		notices = append(notices, notice)
	}
	return notices, nil
}

// Local is the in-process side of the relay.
type Local interface {
	Notify(ctx context.Context, notice domain.Notice) error
}

// Relay forwards notices published by any instance to local until ctx is done.
func (q *NoticeQueue) Relay(ctx context.Context, local Local, logger *zap.Logger) {
	sub := q.client.Subscribe(ctx, noticeChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var notice domain.Notice
			if err := json.Unmarshal([]byte(msg.Payload), &notice); err != nil {
				logger.Warn("dropping malformed notice", zap.Error(err))
				continue
			}
			if err := local.Notify(ctx, notice); err != nil {
				logger.Warn("relay notice failed", zap.String("session_id", notice.SessionID), zap.Error(err))
			}
		}
	}
}
