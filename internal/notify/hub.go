package notify

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType names a transfer lifecycle notification.
type EventType string

const (
	EventTransferInitiated EventType = "transfer_initiated"
	EventTransferCompleted EventType = "transfer_completed"
	EventTransferCancelled EventType = "transfer_cancelled"
	EventTransferFailed    EventType = "transfer_failed"
)

// Event is one notification. Delivery is at-least-once; consumers deduplicate
// on ID.
type Event struct {
	ID             string            `json:"id"`
	Type           EventType         `json:"type"`
	ConversationID string            `json:"conversation_id"`
	TransferID     string            `json:"transfer_id"`
	Payload        map[string]string `json:"payload,omitempty"`
	PublishedAt    time.Time         `json:"published_at"`
}

// subscriber buffers pushed events for one live stream.
type subscriber struct {
	agent string
	ch    chan Event
}

// Hub fans transfer events out to subscribed agents and retains pending events
// for polling consumers until they are consumed.
type Hub struct {
	mu      sync.Mutex
	subs    map[*subscriber]struct{}
	pending map[string][]Event
}

func NewHub() *Hub {
	return &Hub{
		subs:    make(map[*subscriber]struct{}),
		pending: make(map[string][]Event),
	}
}

// Publish delivers an event to each named recipient, both on live streams and
// into the pending queue for polling. Events for one transfer are published in
// order; per-recipient delivery preserves that order.
func (h *Hub) Publish(ev Event, recipients ...string) Event {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.PublishedAt.IsZero() {
		ev.PublishedAt = time.Now()
	}

	h.mu.Lock()
	for _, agent := range recipients {
		if agent == "" {
			continue
		}
		h.pending[agent] = append(h.pending[agent], ev)
		for sub := range h.subs {
			if sub.agent != agent {
				continue
			}
			select {
			case sub.ch <- ev:
			default:
				// stream consumer is stalled; the pending queue still holds
				// the event for a later poll
				log.Printf("notify: dropping push for %s, stream buffer full", agent)
			}
		}
	}
	h.mu.Unlock()
	return ev
}

// Subscribe opens a push stream of events addressed to agentIdentity.
// The returned cancel func must be called to release the stream.
func (h *Hub) Subscribe(agentIdentity string) (<-chan Event, func()) {
	sub := &subscriber{agent: agentIdentity, ch: make(chan Event, 64)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[sub]; ok {
			delete(h.subs, sub)
			close(sub.ch)
		}
		h.mu.Unlock()
	}
	return sub.ch, cancel
}

// Poll consumes and returns all events pending for agentIdentity, oldest first.
// Events survive missed poll cycles; they are only dropped once returned here.
func (h *Hub) Poll(agentIdentity string) []Event {
	h.mu.Lock()
	evs := h.pending[agentIdentity]
	delete(h.pending, agentIdentity)
	h.mu.Unlock()
	return evs
}

// PendingCount reports queued events for an agent without consuming them.
func (h *Hub) PendingCount(agentIdentity string) int {
	h.mu.Lock()
	n := len(h.pending[agentIdentity])
	h.mu.Unlock()
	return n
}
