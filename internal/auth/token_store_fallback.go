// auth/token_store_fallback.go
package auth

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// FallbackTokenStore provides a resilient token store with a local copy.
// Writes always land in the local store; reads fall back to it when Redis
// is unhealthy or misses. A record saved here that has not reached Redis
// yet takes precedence over whatever Redis holds.
type FallbackTokenStore struct {
	redisStore  *RedisTokenStore
	local       *FileTokenStore
	healthCheck func() bool
	logger      *logrus.Logger

	mu      sync.Mutex
	pending map[string]bool
}

// NewFallbackTokenStore creates a token store with Redis and local fallback
func NewFallbackTokenStore(redisClient redis.UniversalClient, prefix string, local *FileTokenStore, healthCheck func() bool, logger *logrus.Logger) *FallbackTokenStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &FallbackTokenStore{
		redisStore:  NewRedisTokenStore(redisClient, prefix),
		local:       local,
		healthCheck: healthCheck,
		logger:      logger,
		pending:     make(map[string]bool),
	}
}

// SaveToken stores a token locally and, when Redis is healthy, in Redis
func (s *FallbackTokenStore) SaveToken(ctx context.Context, companyID string, token *TokenRecord) error {
	if err := s.local.SaveToken(ctx, companyID, token); err != nil {
		return err
	}

	if !s.healthCheck() {
		s.setPending(companyID, true)
		return nil
	}
	if err := s.redisStore.SaveToken(ctx, companyID, token); err != nil {
		s.logger.WithError(err).WithField("company_id", companyID).Warn("Failed to save token to Redis")
		s.setPending(companyID, true)
		return nil
	}
	s.setPending(companyID, false)
	return nil
}

// GetToken retrieves a token, trying Redis first, falling back to the local copy
func (s *FallbackTokenStore) GetToken(ctx context.Context, companyID string) (*TokenRecord, error) {
	if !s.healthCheck() {
		return s.local.GetToken(ctx, companyID)
	}

	local, localErr := s.local.GetToken(ctx, companyID)
	if localErr != nil && !errors.Is(localErr, ErrTokenNotFound) {
		return nil, localErr
	}

	if localErr == nil && s.isPending(companyID) {
		s.push(ctx, companyID, local)
		return local, nil
	}

	remote, err := s.redisStore.GetToken(ctx, companyID)
	switch {
	case err == nil:
	case errors.Is(err, ErrTokenNotFound):
		return local, localErr
	default:
		s.logger.WithError(err).WithField("company_id", companyID).Warn("Failed to get token from Redis")
		return local, localErr
	}

	if localErr == nil {
		if sameToken(local, remote) {
			return local, nil
		}
		// Local copy is ahead, e.g. writes from before a restart that
		// never reached Redis
		if local.ExpiresAt.After(remote.ExpiresAt) {
			s.push(ctx, companyID, local)
			return local, nil
		}
	}

	if err := s.local.SaveToken(ctx, companyID, remote); err != nil {
		s.logger.WithError(err).Warn("Failed to cache token locally")
	}
	return remote, nil
}

// push writes a locally authoritative record to Redis
func (s *FallbackTokenStore) push(ctx context.Context, companyID string, token *TokenRecord) {
	if err := s.redisStore.SaveToken(ctx, companyID, token); err != nil {
		s.logger.WithError(err).WithField("company_id", companyID).Warn("Failed to push local token to Redis")
		return
	}
	s.setPending(companyID, false)
}

func (s *FallbackTokenStore) setPending(companyID string, pending bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pending {
		s.pending[companyID] = true
	} else {
		delete(s.pending, companyID)
	}
}

func (s *FallbackTokenStore) isPending(companyID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[companyID]
}

func sameToken(a, b *TokenRecord) bool {
	return a.AccessToken == b.AccessToken &&
		a.RefreshToken == b.RefreshToken &&
		a.ExpiresAt.Equal(b.ExpiresAt)
}

// DeleteToken removes a token from both stores
func (s *FallbackTokenStore) DeleteToken(ctx context.Context, companyID string) error {
	if err := s.local.DeleteToken(ctx, companyID); err != nil {
		return err
	}
	s.setPending(companyID, false)

	if s.healthCheck() {
		if err := s.redisStore.DeleteToken(ctx, companyID); err != nil {
			s.logger.WithError(err).WithField("company_id", companyID).Warn("Failed to delete token from Redis")
		}
	}

	return nil
}

// Companies merges the company ids known to Redis and to the local store
func (s *FallbackTokenStore) Companies(ctx context.Context) ([]string, error) {
	ids, err := s.local.Companies(ctx)
	if err != nil {
		return nil, err
	}
	if !s.healthCheck() {
		return ids, nil
	}

	remote, err := s.redisStore.Companies(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to list tokens in Redis")
		return ids, nil
	}

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	for _, id := range remote {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Replicate pushes every local token to Redis
func (s *FallbackTokenStore) Replicate(ctx context.Context) int {
	if !s.healthCheck() {
		return 0
	}

	s.local.mu.Lock()
	toReplicate := s.local.snapshotLocked()
	s.local.mu.Unlock()

	replicated := 0
	for id, token := range toReplicate {
		token := token
		if err := s.redisStore.SaveToken(ctx, id, &token); err != nil {
			s.logger.WithError(err).WithField("company_id", id).Warn("Replication error")
			continue
		}
		s.setPending(id, false)
		replicated++
	}
	return replicated
}

// StartReplicationRoutine begins background sync of the local copy to Redis
func (s *FallbackTokenStore) StartReplicationRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Replicate(ctx)
			}
		}
	}()
}
