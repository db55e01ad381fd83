package feed

import (
	"context"
	"encoding/json"
	"fmt"
	gosync "sync"

	log "github.com/sirupsen/logrus"
)

// DefaultBuffer is the per-subscription event buffer.
const DefaultBuffer = 256

// Hub is an in-process Publisher and Source. A subscriber that falls behind
// by more than its buffer loses events; the periodic reload covers the gap.
type Hub struct {
	logger log.FieldLogger

	mu     gosync.Mutex
	subs   map[int]chan []byte
	nextID int
}

var (
	_ Publisher = (*Hub)(nil)
	_ Source    = (*Hub)(nil)
)

// NewHub returns an empty hub.
func NewHub(logger log.FieldLogger) *Hub {
	return &Hub{
		logger: loggerOrStd(logger).WithField("feed", "hub"),
		subs:   make(map[int]chan []byte),
	}
}

// Publish fans e out to every subscriber without blocking.
func (h *Hub) Publish(_ context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding feed event: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- payload:
		default:
			h.logger.WithFields(log.Fields{"subscriber": id, "table": e.Table}).Debug("subscriber buffer full, dropping event")
		}
	}
	return nil
}

// Subscribe registers a subscriber for scope.
func (h *Hub) Subscribe(ctx context.Context, scope Scope) (Subscription, error) {
	in := make(chan []byte, DefaultBuffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = in
	h.mu.Unlock()

	s, sctx := newStream(ctx, DefaultBuffer)
	s.release = func() error {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		return nil
	}
	s.run(sctx, h.logger, scope, func(ctx context.Context) ([]byte, error) {
		select {
		case payload := <-in:
			return payload, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	return s, nil
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
