// health/handler.go
package health

import (
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eGGnogSC/qbinvoice/internal/auth"
	"github.com/eGGnogSC/qbinvoice/internal/logging"
	"github.com/eGGnogSC/qbinvoice/internal/respond"
)

// Breaker reports a circuit breaker state
type Breaker interface {
	BreakerState() string
}

// RedisHealth reports the token store's Redis connectivity
type RedisHealth interface {
	IsHealthy() bool
	BreakerState() string
}

// Status is the /health body
type Status struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// TokenStatus describes the stored tokens of one company. Token values are
// never included.
type TokenStatus struct {
	CompanyID    string    `json:"companyId"`
	Stored       bool      `json:"stored"`
	ExpiresAt    time.Time `json:"expiresAt,omitempty"`
	NeedsRefresh bool      `json:"needsRefresh"`
}

// RedisStatus describes the Redis backend
type RedisStatus struct {
	Healthy bool   `json:"healthy"`
	Breaker string `json:"breaker"`
}

// QuickBooksStatus is the /health/quickbooks body
type QuickBooksStatus struct {
	Status          string       `json:"status"`
	Timestamp       time.Time    `json:"timestamp"`
	APIBreaker      string       `json:"apiBreaker"`
	StoredCompanies int          `json:"storedCompanies"`
	Redis           *RedisStatus `json:"redis,omitempty"`
	Token           *TokenStatus `json:"token,omitempty"`
	TokenStoreError string       `json:"tokenStoreError,omitempty"`
}

// Handler serves liveness and dependency status
type Handler struct {
	api    Breaker
	tokens auth.TokenStore
	redis  RedisHealth
	logger *logrus.Logger
	now    func() time.Time
}

// NewHandler creates a health handler. redis may be nil when tokens are
// kept in a file.
func NewHandler(api Breaker, tokens auth.TokenStore, redis RedisHealth, logger *logrus.Logger) *Handler {
	return &Handler{api: api, tokens: tokens, redis: redis, logger: logger, now: time.Now}
}

// HealthHandler handles GET /health
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, Status{Status: "healthy", Timestamp: h.now().UTC()})
}

// QuickBooksHandler handles GET /health/quickbooks. With ?companyId it also
// reports that company's token state.
func (h *Handler) QuickBooksHandler(w http.ResponseWriter, r *http.Request) {
	now := h.now().UTC()
	status := QuickBooksStatus{
		Status:     "healthy",
		Timestamp:  now,
		APIBreaker: h.api.BreakerState(),
	}
	if status.APIBreaker == "open" {
		status.Status = "degraded"
	}

	if h.redis != nil {
		status.Redis = &RedisStatus{Healthy: h.redis.IsHealthy(), Breaker: h.redis.BreakerState()}
		if !status.Redis.Healthy {
			status.Status = "degraded"
		}
	}

	log := logging.FromContext(r.Context(), h.logger)

	companies, err := h.tokens.Companies(r.Context())
	if err != nil {
		log.WithError(err).Warn("Failed to list stored companies")
		status.TokenStoreError = err.Error()
		status.Status = "degraded"
	}
	status.StoredCompanies = len(companies)

	if companyID := r.URL.Query().Get("companyId"); companyID != "" {
		token := &TokenStatus{CompanyID: companyID}
		record, err := h.tokens.GetToken(r.Context(), companyID)
		switch {
		case err == nil:
			token.Stored = true
			token.ExpiresAt = record.ExpiresAt
			token.NeedsRefresh = record.NeedsRefresh(now)
		case !errors.Is(err, auth.ErrTokenNotFound):
			log.WithError(err).Warn("Failed to read token")
			status.TokenStoreError = err.Error()
			status.Status = "degraded"
		}
		status.Token = token
	}

	respond.JSON(w, http.StatusOK, status)
}
