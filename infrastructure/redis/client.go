// infrastructure/redis/client.go
package redis

import (
	"crypto/tls"
	"time"

	"github.com/go-redis/redis/v8"
)

// Config holds Redis connection configuration
type Config struct {
	Addresses       []string
	Password        string
	DB              int
	EnableTLS       bool
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	PoolSize        int
	MinIdleConns    int
	MaxConnAge      time.Duration
	PoolTimeout     time.Duration
	IdleTimeout     time.Duration
}

// DefaultConfig returns pool settings sized for the token store: a handful
// of small keys, read on every API request
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		PoolSize:        10,
		MinIdleConns:    2,
		MaxConnAge:      30 * time.Minute,
		PoolTimeout:     4 * time.Second,
		IdleTimeout:     5 * time.Minute,
	}
}

// UniversalOptions converts the config for redis.NewUniversalClient
func (c Config) UniversalOptions() *redis.UniversalOptions {
	opts := &redis.UniversalOptions{
		Addrs:           c.Addresses,
		Password:        c.Password,
		DB:              c.DB,
		MaxRetries:      c.MaxRetries,
		MinRetryBackoff: c.MinRetryBackoff,
		MaxRetryBackoff: c.MaxRetryBackoff,
		DialTimeout:     c.DialTimeout,
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
		PoolSize:        c.PoolSize,
		MinIdleConns:    c.MinIdleConns,
		MaxConnAge:      c.MaxConnAge,
		PoolTimeout:     c.PoolTimeout,
		IdleTimeout:     c.IdleTimeout,
	}
	if c.EnableTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// NewUniversalClient returns a cluster client when more than one address is
// configured and a single node client otherwise
func NewUniversalClient(cfg Config) redis.UniversalClient {
	return redis.NewUniversalClient(cfg.UniversalOptions())
}
