package mailchimp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// TokenStore persists OAuth access tokens per account.
type TokenStore interface {
	Save(ctx context.Context, accountID, token string) error
	Get(ctx context.Context, accountID string) (string, error)
}

// RedisTokenStore keeps tokens in Redis so all API instances share them.
type RedisTokenStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func NewRedisTokenStore(cfg RedisConfig) *RedisTokenStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     20,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	return &RedisTokenStore{
		client: client,
		prefix: "mailchimp:token",
		// Mailchimp access tokens do not expire; the TTL bounds orphaned
		// entries for disconnected accounts.
		ttl: 90 * 24 * time.Hour,
	}
}

func (s *RedisTokenStore) key(accountID string) string {
	return s.prefix + ":" + accountID
}

func (s *RedisTokenStore) Save(ctx context.Context, accountID, token string) error {
	if err := s.client.Set(ctx, s.key(accountID), token, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Get(ctx context.Context, accountID string) (string, error) {
	token, err := s.client.Get(ctx, s.key(accountID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	return token, nil
}

func (s *RedisTokenStore) Close() error {
	return s.client.Close()
}

// MemoryTokenStore is a process-local fallback used when Redis is not
// configured, and in tests.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]string)}
}

func (s *MemoryTokenStore) Save(ctx context.Context, accountID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[accountID] = token
	return nil
}

func (s *MemoryTokenStore) Get(ctx context.Context, accountID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens[accountID], nil
}
