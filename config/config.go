// config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	QuickBooks QuickBooksConfig
	TokenStore TokenStoreConfig
	Redis      RedisConfig
	Session    SessionConfig
	Settlement SettlementConfig
	LogLevel   string
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Port    string
	Timeout int // seconds
}

// QuickBooksConfig holds Intuit OAuth and API settings
type QuickBooksConfig struct {
	ClientID       string
	ClientSecret   string
	RedirectURI    string
	Environment    string
	Scopes         []string
	AuthURL        string
	TokenURL       string
	RevokeURL      string
	APIBaseURL     string
	MinorVersion   string
	RequestTimeout time.Duration
}

// TokenStoreConfig selects the token store backend
type TokenStoreConfig struct {
	Backend  string // "file" or "redis"
	FilePath string
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addresses []string
	Password  string
	DB        int
	KeyPrefix string
	EnableTLS bool
}

// SessionConfig holds cookie session settings used for the OAuth state
type SessionConfig struct {
	Secret string
	Secure bool
}

// SettlementConfig holds the invoice balance polling schedule
type SettlementConfig struct {
	PollAttempts     int
	PollInitialDelay time.Duration
	PollMaxDelay     time.Duration
}

// Load reads configuration from the environment, after loading .env if present
func Load() (Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			logrus.WithError(err).Warn("Failed to load .env")
		}
	}

	cfg := Config{
		Server: ServerConfig{
			Port:    getEnv("PORT", "5000"),
			Timeout: getEnvInt("SERVER_TIMEOUT_SECONDS", 60),
		},
		QuickBooks: QuickBooksConfig{
			ClientID:       os.Getenv("INTUIT_CLIENT_ID"),
			ClientSecret:   os.Getenv("INTUIT_CLIENT_SECRET"),
			RedirectURI:    getEnv("INTUIT_REDIRECT_URI", "http://localhost:5000/auth/callback"),
			Environment:    getEnv("INTUIT_ENVIRONMENT", "sandbox"),
			Scopes:         strings.Fields(getEnv("INTUIT_SCOPES", "com.intuit.quickbooks.accounting")),
			AuthURL:        getEnv("INTUIT_AUTH_URL", "https://appcenter.intuit.com/connect/oauth2"),
			TokenURL:       getEnv("INTUIT_TOKEN_URL", "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"),
			RevokeURL:      getEnv("INTUIT_REVOKE_URL", "https://developer.api.intuit.com/v2/oauth2/tokens/revoke"),
			MinorVersion:   getEnv("INTUIT_MINOR_VERSION", "75"),
			RequestTimeout: getEnvDuration("INTUIT_REQUEST_TIMEOUT", 30*time.Second),
		},
		TokenStore: TokenStoreConfig{
			Backend:  strings.ToLower(getEnv("TOKEN_STORE", "file")),
			FilePath: getEnv("TOKEN_FILE", "data/tokens.json"),
		},
		Redis: RedisConfig{
			Addresses: strings.Split(getEnv("REDIS_ADDRESSES", "localhost:6379"), ","),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        getEnvInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "qbinvoice"),
			EnableTLS: getEnvBool("REDIS_TLS", false),
		},
		Session: SessionConfig{
			Secret: os.Getenv("SESSION_SECRET"),
			Secure: getEnvBool("SESSION_SECURE", false),
		},
		Settlement: SettlementConfig{
			PollAttempts:     getEnvInt("SETTLEMENT_POLL_ATTEMPTS", 10),
			PollInitialDelay: getEnvDuration("SETTLEMENT_POLL_INITIAL_DELAY", 200*time.Millisecond),
			PollMaxDelay:     getEnvDuration("SETTLEMENT_POLL_MAX_DELAY", 2*time.Second),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	cfg.QuickBooks.APIBaseURL = getEnv("INTUIT_BASE_URL", defaultBaseURL(cfg.QuickBooks.Environment))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required settings
func (c Config) Validate() error {
	if c.QuickBooks.ClientID == "" || c.QuickBooks.ClientSecret == "" {
		return fmt.Errorf("INTUIT_CLIENT_ID and INTUIT_CLIENT_SECRET are required")
	}
	if c.Session.Secret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	switch c.TokenStore.Backend {
	case "file":
	case "redis":
		if len(c.Redis.Addresses) == 0 || c.Redis.Addresses[0] == "" {
			return fmt.Errorf("REDIS_ADDRESSES is required when TOKEN_STORE=redis")
		}
	default:
		return fmt.Errorf("unknown TOKEN_STORE %q", c.TokenStore.Backend)
	}
	if c.Settlement.PollAttempts < 1 {
		return fmt.Errorf("SETTLEMENT_POLL_ATTEMPTS must be at least 1")
	}
	return nil
}

func defaultBaseURL(environment string) string {
	if strings.EqualFold(environment, "production") {
		return "https://quickbooks.api.intuit.com"
	}
	return "https://sandbox-quickbooks.api.intuit.com"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
