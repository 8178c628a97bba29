package stt

import (
	"sync"
	"testing"

	"github.com/chadiek/warm-transfer/internal/transcript"
)

type recordingSink struct {
	mu      sync.Mutex
	entries []string
}

func (r *recordingSink) Append(conversationID string, speaker transcript.Role, text string) {
	r.mu.Lock()
	r.entries = append(r.entries, conversationID+"|"+string(speaker)+"|"+text)
	r.mu.Unlock()
}

func TestProcessMessageForwardsOnlyFinals(t *testing.T) {
	sink := &recordingSink{}
	s := NewStream("key", "conv-1", transcript.RoleCaller, sink)

	interim := []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hello th"}]}}`)
	final := []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello there"}]}}`)
	emptyFinal := []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":""}]}}`)
	metadata := []byte(`{"type":"Metadata","request_id":"req-1"}`)

	s.processMessage(interim)
	s.processMessage(metadata)
	s.processMessage(emptyFinal)
	s.processMessage(final)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.entries) != 1 {
		t.Fatalf("expected exactly 1 sink entry, got %d: %v", len(sink.entries), sink.entries)
	}
	if sink.entries[0] != "conv-1|caller|hello there" {
		t.Errorf("unexpected entry: %s", sink.entries[0])
	}
}

func TestConnectRejectsMissingKey(t *testing.T) {
	s := NewStream("", "conv-1", transcript.RoleCaller, &recordingSink{})
	if err := s.Connect(); err == nil {
		t.Fatal("expected error with empty API key")
	}
}

func TestConnectRejectsUnknownRole(t *testing.T) {
	s := NewStream("key", "conv-1", transcript.Role("moderator"), &recordingSink{})
	if err := s.Connect(); err == nil {
		t.Fatal("expected error for unknown speaker role")
	}
}

func TestSendAudioRequiresConnection(t *testing.T) {
	s := NewStream("key", "conv-1", transcript.RoleAgentA, &recordingSink{})
	if err := s.SendAudio([]byte{0, 0}); err == nil {
		t.Fatal("expected error before Connect")
	}
}
