// infrastructure/container.go
package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/eGGnogSC/qbinvoice/config"
	qbredis "github.com/eGGnogSC/qbinvoice/infrastructure/redis"
	"github.com/eGGnogSC/qbinvoice/internal/auth"
	"github.com/eGGnogSC/qbinvoice/internal/creditnote"
	"github.com/eGGnogSC/qbinvoice/internal/health"
	"github.com/eGGnogSC/qbinvoice/internal/invoice"
	"github.com/eGGnogSC/qbinvoice/internal/metrics"
	"github.com/eGGnogSC/qbinvoice/internal/retry"
	"github.com/eGGnogSC/qbinvoice/internal/settlement"
	"github.com/eGGnogSC/qbinvoice/pkg/qbclient"
)

const (
	redisHealthInterval = 30 * time.Second
	replicationInterval = 5 * time.Minute
	flushTimeout        = 5 * time.Second
)

// startupPing waits for Redis while the rest of the stack comes up
var startupPing = retry.Config{
	MaxAttempts:  5,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     2 * time.Second,
}

// Container provides application dependencies
type Container struct {
	Config  config.Config
	Logger  *logrus.Logger
	Metrics *metrics.Collector

	// Services
	AuthService       *auth.Service
	InvoiceService    *invoice.Service
	SettlementService *settlement.Service
	CreditNoteService *creditnote.Service

	// Handlers
	AuthHandler       *auth.Handler
	InvoiceHandler    *invoice.Handler
	SettlementHandler *settlement.Handler
	CreditNoteHandler *creditnote.Handler
	HealthHandler     *health.Handler

	// Infrastructure
	RedisClient redis.UniversalClient
	RedisHealth *qbredis.HealthChecker
	TokenStore  auth.TokenStore
	QBClient    *qbclient.Client

	localStore *auth.FileTokenStore
}

// NewContainer creates and initializes the dependency container. Background
// routines (Redis health checks, token replication) stop when ctx is done.
func NewContainer(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*Container, error) {
	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewCollector(),
	}

	if err := c.initTokenStore(ctx); err != nil {
		return nil, err
	}

	c.AuthService = auth.NewService(auth.OAuthConfig{
		ClientID:     cfg.QuickBooks.ClientID,
		ClientSecret: cfg.QuickBooks.ClientSecret,
		RedirectURI:  cfg.QuickBooks.RedirectURI,
		Scopes:       cfg.QuickBooks.Scopes,
		AuthURL:      cfg.QuickBooks.AuthURL,
		TokenURL:     cfg.QuickBooks.TokenURL,
		RevokeURL:    cfg.QuickBooks.RevokeURL,
		Timeout:      cfg.QuickBooks.RequestTimeout,
	}, c.TokenStore, auth.WithLogger(logger), auth.WithMetrics(c.Metrics))

	c.QBClient = qbclient.NewClient(qbclient.Config{
		BaseURL:      cfg.QuickBooks.APIBaseURL,
		MinorVersion: cfg.QuickBooks.MinorVersion,
		Timeout:      cfg.QuickBooks.RequestTimeout,
	}, qbclient.WithLogger(logger), qbclient.WithMetrics(c.Metrics))

	poll := retry.Config{
		MaxAttempts:  cfg.Settlement.PollAttempts,
		InitialDelay: cfg.Settlement.PollInitialDelay,
		MaxDelay:     cfg.Settlement.PollMaxDelay,
	}

	c.InvoiceService = invoice.NewService(c.AuthService, c.QBClient, logger)
	c.SettlementService = settlement.NewService(c.AuthService, c.QBClient,
		settlement.WithPollConfig(poll),
		settlement.WithLogger(logger),
		settlement.WithMetrics(c.Metrics),
	)
	c.CreditNoteService = creditnote.NewService(c.AuthService, c.QBClient, logger)

	c.AuthHandler = auth.NewHandler(c.AuthService, auth.NewStateStore([]byte(cfg.Session.Secret), cfg.Session.Secure), logger)
	c.InvoiceHandler = invoice.NewHandler(c.InvoiceService, logger)
	c.SettlementHandler = settlement.NewHandler(c.SettlementService, logger)
	c.CreditNoteHandler = creditnote.NewHandler(c.CreditNoteService, logger)

	var redisHealth health.RedisHealth
	if c.RedisHealth != nil {
		redisHealth = c.RedisHealth
	}
	c.HealthHandler = health.NewHandler(c.QBClient, c.TokenStore, redisHealth, logger)

	return c, nil
}

func (c *Container) initTokenStore(ctx context.Context) error {
	switch c.Config.TokenStore.Backend {
	case "file":
		c.localStore = auth.NewFileTokenStore(c.Config.TokenStore.FilePath, c.Logger)
		c.TokenStore = c.localStore
		return nil

	case "redis":
		redisCfg := qbredis.DefaultConfig()
		redisCfg.Addresses = c.Config.Redis.Addresses
		redisCfg.Password = c.Config.Redis.Password
		redisCfg.DB = c.Config.Redis.DB
		redisCfg.EnableTLS = c.Config.Redis.EnableTLS
		c.RedisClient = qbredis.NewUniversalClient(redisCfg)

		// Tokens stay available from the local copy while Redis is down
		if _, err := retry.WithBackoff(ctx, startupPing, func(ctx context.Context) (string, error) {
			return c.RedisClient.Ping(ctx).Result()
		}, nil); err != nil {
			c.Logger.WithError(err).Warn("Redis unreachable at startup, serving tokens from the local copy")
		}

		c.RedisHealth = qbredis.NewHealthChecker(c.RedisClient, c.Logger)
		c.RedisHealth.Start(ctx, redisHealthInterval)

		c.localStore = auth.NewFileTokenStore(c.Config.TokenStore.FilePath, c.Logger)
		fallback := auth.NewFallbackTokenStore(c.RedisClient, c.Config.Redis.KeyPrefix, c.localStore, c.RedisHealth.IsHealthy, c.Logger)
		fallback.StartReplicationRoutine(ctx, replicationInterval)
		c.TokenStore = fallback
		return nil

	default:
		return fmt.Errorf("unknown token store backend %q", c.Config.TokenStore.Backend)
	}
}

// Shutdown flushes pending token writes and closes connections
func (c *Container) Shutdown() {
	if c.localStore != nil {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		if err := c.localStore.Flush(ctx); err != nil {
			c.Logger.WithError(err).Warn("Failed to flush token file")
		}
		cancel()
		if err := c.localStore.Close(); err != nil {
			c.Logger.WithError(err).Warn("Failed to close token store")
		}
	}

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.WithError(err).Error("Error closing Redis connection")
		}
	}
}
