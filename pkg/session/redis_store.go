package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ucp-project/ucp/pkg/ucp"
)

// RedisStore is the shared key-value store alternative named in
// spec.md §3's SessionState persistence clause, for multi-instance UCP
// deployments.
type RedisStore struct {
	client *redis.Client
	keyPfx string
}

// NewRedisStore constructs a RedisStore against addr (host:port).
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		keyPfx: "ucp:session:",
	}
}

// NewRedisStoreWithClient wraps an existing client, so tests can point it
// at a miniredis instance.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, keyPfx: "ucp:session:"}
}

func (s *RedisStore) key(id string) string {
	return s.keyPfx + id
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, state *ucp.SessionState) error {
	b, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling session %s: %w", state.SessionID, err)
	}
	if err := s.client.Set(ctx, s.key(state.SessionID), b, 0).Err(); err != nil {
		return fmt.Errorf("saving session %s: %w", state.SessionID, err)
	}
	return nil
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, id string) (*ucp.SessionState, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	var state ucp.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("unmarshaling session %s: %w", id, err)
	}
	return &state, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	return nil
}
