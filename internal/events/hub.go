package events

import (
	"context"
	"strings"
	"sync"

	"github.com/noah-isme/kramik-ledger-api/internal/observability"
)

const subscriberBufferSize = 32

// Hub fans events out to in-process subscribers, such as websocket clients.
// A subscription keyed by the empty address receives every event.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Message]struct{}
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[chan Message]struct{})}
}

// Name implements Publisher.
func (h *Hub) Name() string {
	return "hub"
}

// Publish implements Publisher. Slow subscribers drop messages rather than
// blocking the writer.
func (h *Hub) Publish(_ context.Context, msg Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	deliver := func(key string) {
		for ch := range h.subscribers[key] {
			select {
			case ch <- msg:
			default:
			}
		}
	}

	deliver("")
	if address := normalizeKey(msg.Address); address != "" {
		deliver(address)
	}
	return nil
}

// Subscribe registers a subscriber for address ("" for all events).
func (h *Hub) Subscribe(address string) (<-chan Message, func()) {
	key := normalizeKey(address)
	ch := make(chan Message, subscriberBufferSize)

	h.mu.Lock()
	if _, ok := h.subscribers[key]; !ok {
		h.subscribers[key] = make(map[chan Message]struct{})
	}
	h.subscribers[key][ch] = struct{}{}
	h.mu.Unlock()
	observability.EventStreamClients().Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if subs, ok := h.subscribers[key]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(h.subscribers, key)
				}
			}
			h.mu.Unlock()
			close(ch)
			observability.EventStreamClients().Dec()
		})
	}
}

// Count returns the number of active subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, subs := range h.subscribers {
		total += len(subs)
	}
	return total
}

func normalizeKey(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
