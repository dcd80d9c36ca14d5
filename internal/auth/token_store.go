// auth/token_store.go
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// refreshTokenLifetime is how long Intuit keeps a refresh token valid
const refreshTokenLifetime = 100 * 24 * time.Hour

// RedisTokenStore implements TokenStore using Redis
type RedisTokenStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisTokenStore creates a new Redis-backed token store
func NewRedisTokenStore(client redis.UniversalClient, prefix string) *RedisTokenStore {
	return &RedisTokenStore{
		client: client,
		prefix: prefix,
	}
}

// key generates the Redis key for a company's token
func (s *RedisTokenStore) key(companyID string) string {
	return fmt.Sprintf("%s:token:%s", s.prefix, companyID)
}

// SaveToken stores a token for a company
func (s *RedisTokenStore) SaveToken(ctx context.Context, companyID string, token *TokenRecord) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	// Keep the record while its refresh token can still be used
	ttl := time.Until(token.ExpiresAt) + refreshTokenLifetime
	if ttl <= 0 {
		ttl = refreshTokenLifetime
	}

	if err := s.client.Set(ctx, s.key(companyID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	return nil
}

// GetToken retrieves a token for a company
func (s *RedisTokenStore) GetToken(ctx context.Context, companyID string) (*TokenRecord, error) {
	data, err := s.client.Get(ctx, s.key(companyID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	var token TokenRecord
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}

	return &token, nil
}

// DeleteToken removes a company's token
func (s *RedisTokenStore) DeleteToken(ctx context.Context, companyID string) error {
	if err := s.client.Del(ctx, s.key(companyID)).Err(); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}

	return nil
}

// Companies lists the company ids with a stored token
func (s *RedisTokenStore) Companies(ctx context.Context) ([]string, error) {
	prefix := s.key("")
	var ids []string

	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan tokens: %w", err)
	}

	sort.Strings(ids)
	return ids, nil
}
