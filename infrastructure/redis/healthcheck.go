// infrastructure/redis/healthcheck.go
package redis

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const pingTimeout = 2 * time.Second

// HealthChecker tracks whether Redis answers PING. While its breaker is open
// checks fail fast without touching the connection pool.
type HealthChecker struct {
	client         redis.UniversalClient
	circuitBreaker *gobreaker.CircuitBreaker
	logger         *logrus.Logger

	mu        sync.RWMutex
	status    bool
	lastCheck time.Time
}

// NewHealthChecker creates a Redis health checker. Call Start to run
// periodic checks.
func NewHealthChecker(client redis.UniversalClient, logger *logrus.Logger) *HealthChecker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	settings := gobreaker.Settings{
		Name:        "redis-circuit-breaker",
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 3 },
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Redis circuit breaker changed state")
		},
	}

	return &HealthChecker{
		client:         client,
		circuitBreaker: gobreaker.NewCircuitBreaker(settings),
		logger:         logger,
	}
}

// IsHealthy returns the result of the last check
func (h *HealthChecker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// LastCheck returns when the last check ran
func (h *HealthChecker) LastCheck() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastCheck
}

// BreakerState reports the breaker state
func (h *HealthChecker) BreakerState() string {
	return h.circuitBreaker.State().String()
}

// Check pings Redis and records the result
func (h *HealthChecker) Check(ctx context.Context) bool {
	result, err := h.circuitBreaker.Execute(func() (interface{}, error) {
		return h.client.Ping(ctx).Result()
	})

	pong, _ := result.(string)
	healthy := err == nil && pong == "PONG"

	h.mu.Lock()
	changed := h.status != healthy
	h.status = healthy
	h.lastCheck = time.Now()
	h.mu.Unlock()

	if changed {
		entry := h.logger.WithField("healthy", healthy)
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Info("Redis health changed")
	}
	return healthy
}

// Start checks once, then every interval until ctx is done
func (h *HealthChecker) Start(ctx context.Context, interval time.Duration) {
	h.checkWithTimeout(ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.checkWithTimeout(ctx)
			}
		}
	}()
}

func (h *HealthChecker) checkWithTimeout(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	h.Check(ctx)
}
