// infrastructure/redis/healthcheck_test.go
package redis

import (
	"context"
	"crypto/tls"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := DefaultConfig()
	cfg.Addresses = []string{mr.Addr()}
	cfg.MaxRetries = -1
	client := NewUniversalClient(cfg)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestHealthCheckerTracksAvailability(t *testing.T) {
	mr, client := newMiniredisClient(t)

	logger, hook := test.NewNullLogger()
	checker := NewHealthChecker(client, logger)
	assert.False(t, checker.IsHealthy())

	require.True(t, checker.Check(context.Background()))
	assert.True(t, checker.IsHealthy())
	assert.False(t, checker.LastCheck().IsZero())

	mr.Close()
	assert.False(t, checker.Check(context.Background()))
	assert.False(t, checker.IsHealthy())
	assert.NotEmpty(t, hook.AllEntries())
}

func TestHealthCheckerOpensBreaker(t *testing.T) {
	mr, client := newMiniredisClient(t)

	logger, _ := test.NewNullLogger()
	checker := NewHealthChecker(client, logger)
	mr.Close()

	for i := 0; i < 3; i++ {
		checker.Check(context.Background())
	}
	assert.Equal(t, "open", checker.BreakerState())
}

func TestHealthCheckerStartChecksImmediately(t *testing.T) {
	_, client := newMiniredisClient(t)

	logger, _ := test.NewNullLogger()
	checker := NewHealthChecker(client, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	checker.Start(ctx, 10*time.Millisecond)
	assert.True(t, checker.IsHealthy())
}

func TestNewUniversalClient(t *testing.T) {
	cfg := DefaultConfig()

	cfg.Addresses = []string{"localhost:6379"}
	single := NewUniversalClient(cfg)
	defer single.Close()
	assert.IsType(t, &redis.Client{}, single)

	cfg.Addresses = []string{"localhost:7000", "localhost:7001"}
	cluster := NewUniversalClient(cfg)
	defer cluster.Close()
	assert.IsType(t, &redis.ClusterClient{}, cluster)
}

func TestUniversalOptionsTLS(t *testing.T) {
	cfg := DefaultConfig()
	assert.Nil(t, cfg.UniversalOptions().TLSConfig)

	cfg.EnableTLS = true
	opts := cfg.UniversalOptions()
	require.NotNil(t, opts.TLSConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), opts.TLSConfig.MinVersion)
}
