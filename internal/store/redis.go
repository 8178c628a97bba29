// Package store provides the Redis-backed durable implementation of the
// orchestrator's Store interface. Records are JSON values under key-per-id
// layout; per-agent history and the active set use sorted sets so history
// scans are ordered range reads.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/chadiek/warm-transfer/internal/transfer"
)

const (
	convKeyPrefix     = "wt:conversation:"
	transferKeyPrefix = "wt:transfer:"
	historyKeyPrefix  = "wt:history:"
	activeSetKey      = "wt:transfers:active"
)

// RedisStore persists conversations and transfers in Redis.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects a client for the given address.
func NewRedisStore(addr, password string) *RedisStore {
	return &RedisStore{rdb: redis.NewClient(&redis.Options{Addr: addr, Password: password})}
}

// NewRedisStoreWithClient wraps an existing client, mainly for tests.
func NewRedisStoreWithClient(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Ping verifies connectivity at startup.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) SaveConversation(ctx context.Context, c *transfer.Conversation) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	if err := s.rdb.Set(ctx, convKeyPrefix+c.ID, data, 0).Err(); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

func (s *RedisStore) GetConversation(ctx context.Context, id string) (*transfer.Conversation, error) {
	data, err := s.rdb.Get(ctx, convKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, transfer.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	var c transfer.Conversation
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal conversation: %w", err)
	}
	return &c, nil
}

func (s *RedisStore) SaveTransfer(ctx context.Context, t *transfer.Transfer) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal transfer: %w", err)
	}
	score := float64(t.CreatedAt.UnixMilli())

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, transferKeyPrefix+t.ID, data, 0)
	pipe.ZAdd(ctx, historyKeyPrefix+t.AgentAIdentity, redis.Z{Score: score, Member: t.ID})
	if t.AgentBIdentity != "" {
		pipe.ZAdd(ctx, historyKeyPrefix+t.AgentBIdentity, redis.Z{Score: score, Member: t.ID})
	}
	if t.State.Terminal() {
		pipe.SRem(ctx, activeSetKey, t.ID)
	} else {
		pipe.SAdd(ctx, activeSetKey, t.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save transfer: %w", err)
	}
	return nil
}

func (s *RedisStore) GetTransfer(ctx context.Context, id string) (*transfer.Transfer, error) {
	data, err := s.rdb.Get(ctx, transferKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, transfer.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("get transfer: %w", err)
	}
	var t transfer.Transfer
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshal transfer: %w", err)
	}
	return &t, nil
}

func (s *RedisStore) TransfersByAgent(ctx context.Context, agentIdentity string, limit int) ([]*transfer.Transfer, error) {
	if limit <= 0 {
		limit = 20
	}
	ids, err := s.rdb.ZRevRange(ctx, historyKeyPrefix+agentIdentity, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("history scan: %w", err)
	}
	return s.loadTransfers(ctx, ids)
}

func (s *RedisStore) ActiveTransfers(ctx context.Context) ([]*transfer.Transfer, error) {
	ids, err := s.rdb.SMembers(ctx, activeSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("active scan: %w", err)
	}
	return s.loadTransfers(ctx, ids)
}

func (s *RedisStore) loadTransfers(ctx context.Context, ids []string) ([]*transfer.Transfer, error) {
	out := make([]*transfer.Transfer, 0, len(ids))
	for _, id := range ids {
		t, err := s.GetTransfer(ctx, id)
		if errors.Is(err, transfer.ErrNotFound) {
			// index entry outlived its record; skip
			continue
		} else if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
