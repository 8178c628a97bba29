package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chadiek/warm-transfer/internal/transfer"
)

// newTestStore connects to a real Redis when REDIS_TEST_ADDR is set and skips
// otherwise, so the suite stays runnable without infrastructure.
func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set; skipping redis store tests")
	}
	s := NewRedisStore(addr, os.Getenv("REDIS_TEST_PASSWORD"))
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("redis ping: %v", err)
	}
	return s
}

func TestRedisStore_ConversationRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := "conv-" + uuid.NewString()

	if _, err := s.GetConversation(ctx, id); !errors.Is(err, transfer.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	c := &transfer.Conversation{
		ID:             id,
		CallerIdentity: "caller_1",
		OriginRoomName: "origin_" + id,
		State:          transfer.ConvActive,
		CreatedAt:      time.Now(),
	}
	if err := s.SaveConversation(ctx, c); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.GetConversation(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.OriginRoomName != c.OriginRoomName || got.State != transfer.ConvActive {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestRedisStore_TransferHistoryAndActiveSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	agentA := "agent-" + uuid.NewString()
	agentB := "agent-" + uuid.NewString()

	first := &transfer.Transfer{
		ID:             uuid.NewString(),
		ConversationID: "c1",
		AgentAIdentity: agentA,
		AgentBIdentity: agentB,
		State:          transfer.StateAgentBNotified,
		CreatedAt:      time.Now().Add(-time.Minute),
	}
	second := &transfer.Transfer{
		ID:             uuid.NewString(),
		ConversationID: "c1",
		AgentAIdentity: agentA,
		AgentBIdentity: agentB,
		State:          transfer.StateAgentBNotified,
		CreatedAt:      time.Now(),
	}
	for _, tr := range []*transfer.Transfer{first, second} {
		if err := s.SaveTransfer(ctx, tr); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	hist, err := s.TransfersByAgent(ctx, agentB, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 || hist[0].ID != second.ID {
		t.Fatalf("expected newest first, got %+v", hist)
	}

	// Completing removes the record from the active set.
	second.State = transfer.StateCompleted
	second.CompletedAt = time.Now()
	if err := s.SaveTransfer(ctx, second); err != nil {
		t.Fatalf("save terminal: %v", err)
	}
	active, err := s.ActiveTransfers(ctx)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	for _, tr := range active {
		if tr.ID == second.ID {
			t.Fatalf("terminal transfer must leave the active set")
		}
	}
}
