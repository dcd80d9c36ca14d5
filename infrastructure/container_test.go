// infrastructure/container_test.go
package infrastructure

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eGGnogSC/qbinvoice/config"
	"github.com/eGGnogSC/qbinvoice/internal/auth"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		QuickBooks: config.QuickBooksConfig{
			ClientID:     "id",
			ClientSecret: "secret",
			APIBaseURL:   "http://127.0.0.1:1",
		},
		TokenStore: config.TokenStoreConfig{
			Backend:  "file",
			FilePath: filepath.Join(t.TempDir(), "tokens.json"),
		},
		Session: config.SessionConfig{Secret: "0123456789abcdef0123456789abcdef"},
		Settlement: config.SettlementConfig{
			PollAttempts:     2,
			PollInitialDelay: time.Millisecond,
			PollMaxDelay:     time.Millisecond,
		},
	}
}

func TestNewContainerFileBackend(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := testConfig(t)

	c, err := NewContainer(context.Background(), cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &auth.FileTokenStore{}, c.TokenStore)
	assert.Nil(t, c.RedisClient)
	assert.NotNil(t, c.HealthHandler)

	require.NoError(t, c.TokenStore.SaveToken(context.Background(), "9341", &auth.TokenRecord{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}))
	c.Shutdown()

	_, err = os.Stat(cfg.TokenStore.FilePath)
	assert.NoError(t, err)
}

func TestNewContainerRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	logger, _ := test.NewNullLogger()

	cfg := testConfig(t)
	cfg.TokenStore.Backend = "redis"
	cfg.Redis = config.RedisConfig{Addresses: []string{mr.Addr()}, KeyPrefix: "test"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := NewContainer(ctx, cfg, logger)
	require.NoError(t, err)
	defer c.Shutdown()

	assert.IsType(t, &auth.FallbackTokenStore{}, c.TokenStore)
	assert.True(t, c.RedisHealth.IsHealthy())

	require.NoError(t, c.TokenStore.SaveToken(ctx, "9341", &auth.TokenRecord{AccessToken: "a", RefreshToken: "r"}))
	assert.True(t, mr.Exists("test:token:9341"))
}

func TestNewContainerUnknownBackend(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := testConfig(t)
	cfg.TokenStore.Backend = "etcd"

	_, err := NewContainer(context.Background(), cfg, logger)
	assert.ErrorContains(t, err, "etcd")
}
