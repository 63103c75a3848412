package memory

import (
	"context"
	"sync"

	"quiz-checkout-service/internal/domain"
)

// StatusHub fans confirmation notices out to in-process subscribers of a
// checkout session (the live status websocket). It implements app.Notifier.
type StatusHub struct {
	mu     sync.Mutex
	topics map[string]map[chan domain.Notice]struct{}
}

func NewStatusHub() *StatusHub {
	return &StatusHub{
		topics: make(map[string]map[chan domain.Notice]struct{}),
	}
}

// Subscribe returns a channel that receives notices for sessionID.
// The caller must invoke the returned cancel function to avoid leaks.
func (h *StatusHub) Subscribe(sessionID string) (<-chan domain.Notice, func()) {
	ch := make(chan domain.Notice, 1)

	h.mu.Lock()
	subs, ok := h.topics[sessionID]
	if !ok {
		subs = make(map[chan domain.Notice]struct{})
		h.topics[sessionID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs, ok := h.topics[sessionID]
		if !ok {
			return
		}
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(h.topics, sessionID)
		}
	}
	return ch, cancel
}

// Notify delivers notice to every current subscriber without blocking.
func (h *StatusHub) Notify(_ context.Context, notice domain.Notice) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.topics[notice.SessionID] {
		select {
		case ch <- notice:
		default:
			// replace the undelivered notice with the newest one
			select {
			case <-ch:
			default:
			}
			ch <- notice
		}
	}
	return nil
}

// Subscribers reports how many listeners sessionID currently has.
func (h *StatusHub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[sessionID])
}
