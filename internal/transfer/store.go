package transfer

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrNotFound is returned by store lookups for unknown ids.
var ErrNotFound = errors.New("transfer: not found")

// Store persists conversation and transfer records. Implementations must
// support key lookup plus a newest-first scan of an agent's transfers.
type Store interface {
	SaveConversation(ctx context.Context, c *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	SaveTransfer(ctx context.Context, t *Transfer) error
	GetTransfer(ctx context.Context, id string) (*Transfer, error)
	// TransfersByAgent returns transfers where the agent was on either side,
	// newest first, at most limit entries.
	TransfersByAgent(ctx context.Context, agentIdentity string, limit int) ([]*Transfer, error)
	// ActiveTransfers returns all transfers in a non-terminal state.
	ActiveTransfers(ctx context.Context) ([]*Transfer, error)
}

// MemoryStore is the in-process Store used in tests and single-node deployments.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	transfers     map[string]*Transfer
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
		transfers:     make(map[string]*Transfer),
	}
}

func (m *MemoryStore) SaveConversation(_ context.Context, c *Conversation) error {
	m.mu.Lock()
	m.conversations[c.ID] = c.clone()
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetConversation(_ context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.clone(), nil
}

func (m *MemoryStore) SaveTransfer(_ context.Context, t *Transfer) error {
	m.mu.Lock()
	m.transfers[t.ID] = t.clone()
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetTransfer(_ context.Context, id string) (*Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.transfers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.clone(), nil
}

func (m *MemoryStore) TransfersByAgent(_ context.Context, agentIdentity string, limit int) ([]*Transfer, error) {
	m.mu.RLock()
	var out []*Transfer
	for _, t := range m.transfers {
		if t.AgentAIdentity == agentIdentity || t.AgentBIdentity == agentIdentity {
			out = append(out, t.clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		// Equal timestamps happen; break the tie so ordering is stable.
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ActiveTransfers(_ context.Context) ([]*Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Transfer
	for _, t := range m.transfers {
		if !t.State.Terminal() {
			out = append(out, t.clone())
		}
	}
	return out, nil
}
