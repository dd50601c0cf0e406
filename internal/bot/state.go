package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

type State string

const (
	StateIdle                  State = ""
	StateAwaitingPayment       State = "awaiting_payment"
	StateAwaitingAdminDecision State = "awaiting_admin_decision"
	// StateAwaitingKeys is the admin "add keys" sub-flow.
	StateAwaitingKeys State = "awaiting_keys"
)

// Conversation is the per-chat state kept between updates.
type Conversation struct {
	State State  `json:"state"`
	Phone string `json:"phone,omitempty"`
}

type StateStore interface {
	Get(ctx context.Context, userID int64) (Conversation, error)
	Set(ctx context.Context, userID int64, c Conversation) error
}

// MemoryStateStore keeps conversations in process memory; they are lost on restart.
type MemoryStateStore struct {
	mu    sync.Mutex
	convs map[int64]Conversation
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{convs: make(map[int64]Conversation)}
}

func (s *MemoryStateStore) Get(_ context.Context, userID int64) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convs[userID], nil
}

func (s *MemoryStateStore) Set(_ context.Context, userID int64, c Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c == (Conversation{}) {
		delete(s.convs, userID)
		return nil
	}
	s.convs[userID] = c
	return nil
}

// RedisStateStore keeps conversations in Redis so they survive restarts.
type RedisStateStore struct {
	cli    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStateStore parses a redis:// URL and pings the server.
func NewRedisStateStore(ctx context.Context, url, role string) (*RedisStateStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStateStoreWithClient(cli, role), nil
}

func NewRedisStateStoreWithClient(cli *redis.Client, role string) *RedisStateStore {
	return &RedisStateStore{
		cli:    cli,
		prefix: "amegavpn:" + role + ":conv:",
		// A receipt can wait several days for review.
		ttl: 7 * 24 * time.Hour,
	}
}

func (s *RedisStateStore) key(userID int64) string {
	return fmt.Sprintf("%s%d", s.prefix, userID)
}

func (s *RedisStateStore) Get(ctx context.Context, userID int64) (Conversation, error) {
	data, err := s.cli.Get(ctx, s.key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return Conversation{}, nil
	}
	if err != nil {
		return Conversation{}, err
	}
	var c Conversation
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return Conversation{}, fmt.Errorf("decode conversation: %w", err)
	}
	return c, nil
}

func (s *RedisStateStore) Set(ctx context.Context, userID int64, c Conversation) error {
	if c == (Conversation{}) {
		return s.cli.Del(ctx, s.key(userID)).Err()
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.cli.Set(ctx, s.key(userID), data, s.ttl).Err()
}

func (s *RedisStateStore) Close() error { return s.cli.Close() }
