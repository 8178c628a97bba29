package transcript

import (
	"log"
	"strings"
	"sync"
	"time"
)

// Role identifies the speaker of an utterance.
type Role string

const (
	RoleCaller Role = "caller"
	RoleAgentA Role = "agentA"
	RoleAgentB Role = "agentB"
)

// ValidRole reports whether r is one of the known speaker roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleCaller, RoleAgentA, RoleAgentB:
		return true
	}
	return false
}

// Utterance is one finalized speech segment. Sequence defines total order per
// conversation; Timestamp is advisory only.
type Utterance struct {
	Speaker   Role      `json:"speaker"`
	Text      string    `json:"text"`
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

// DefaultMaxUtterances bounds the retained log per conversation; oldest
// utterances are dropped first so summary input stays bounded.
const DefaultMaxUtterances = 500

// Aggregator accumulates finalized utterances per conversation.
type Aggregator struct {
	mu   sync.Mutex
	logs map[string]*conversationLog

	maxUtterances int
}

type conversationLog struct {
	mu         sync.Mutex
	seq        uint64
	utterances []Utterance
}

// NewAggregator constructs an empty aggregator with the default retention cap.
func NewAggregator() *Aggregator {
	return &Aggregator{logs: make(map[string]*conversationLog), maxUtterances: DefaultMaxUtterances}
}

func (a *Aggregator) logFor(conversationID string) *conversationLog {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.logs[conversationID]
	if !ok {
		l = &conversationLog{}
		a.logs[conversationID] = l
	}
	return l
}

// Append records one finalized utterance, assigning the next sequence number.
// Empty or whitespace-only text is dropped. Interim transcripts must never
// reach this method; only finals are retained.
func (a *Aggregator) Append(conversationID string, speaker Role, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		log.Printf("transcript: dropping empty utterance for %s", conversationID)
		return
	}
	l := a.logFor(conversationID)
	l.mu.Lock()
	l.seq++
	l.utterances = append(l.utterances, Utterance{
		Speaker:   speaker,
		Text:      text,
		Sequence:  l.seq,
		Timestamp: time.Now(),
	})
	if len(l.utterances) > a.maxUtterances {
		l.utterances = l.utterances[len(l.utterances)-a.maxUtterances:]
	}
	l.mu.Unlock()
}

// Snapshot returns a consistent point-in-time copy of the conversation's
// utterances in sequence order.
func (a *Aggregator) Snapshot(conversationID string) []Utterance {
	l := a.logFor(conversationID)
	l.mu.Lock()
	out := make([]Utterance, len(l.utterances))
	copy(out, l.utterances)
	l.mu.Unlock()
	return out
}

// ToText renders the conversation as "role: text" lines for LLM input.
// Deterministic for a given snapshot.
func (a *Aggregator) ToText(conversationID string) string {
	var b strings.Builder
	for _, u := range a.Snapshot(conversationID) {
		b.WriteString(string(u.Speaker))
		b.WriteString(": ")
		b.WriteString(u.Text)
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Count reports how many utterances are currently retained.
func (a *Aggregator) Count(conversationID string) int {
	l := a.logFor(conversationID)
	l.mu.Lock()
	n := len(l.utterances)
	l.mu.Unlock()
	return n
}

// Reset discards the log for a conversation, e.g. after the caller hangs up.
func (a *Aggregator) Reset(conversationID string) {
	a.mu.Lock()
	delete(a.logs, conversationID)
	a.mu.Unlock()
}
