package notify

import (
	"context"
	"sync"

	"lv-goldex/internal/model"
)

type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub fans notifications out to the live websocket connections of a user.
// Slow subscribers drop events rather than block delivery.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{})}
}

func (h *Hub) Subscribe(userID string) chan Event {
	ch := make(chan Event, 100)
	h.mu.Lock()
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[chan Event]struct{})
		h.subs[userID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(userID string, ch chan Event) {
	h.mu.Lock()
	if set, ok := h.subs[userID]; ok {
		if _, ok := set[ch]; ok {
			delete(set, ch)
			close(ch)
		}
		if len(set) == 0 {
			delete(h.subs, userID)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) Publish(userID string, evt Event) {
	h.mu.RLock()
	for ch := range h.subs[userID] {
		select {
		case ch <- evt:
		default:
		}
	}
	h.mu.RUnlock()
}

func (h *Hub) Name() string { return "websocket" }

func (h *Hub) Send(ctx context.Context, n model.Notification) error {
	h.Publish(n.UserID, Event{Type: "notification", Data: n})
	return nil
}
