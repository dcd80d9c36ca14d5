// auth/service.go
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/eGGnogSC/qbinvoice/internal/metrics"
	"github.com/eGGnogSC/qbinvoice/pkg/qbclient"
)

// Service handles OAuth 2.0 operations and the token lifecycle
type Service struct {
	config     OAuthConfig
	oauth      *oauth2.Config
	tokenStore TokenStore
	httpClient *http.Client
	logger     *logrus.Logger
	metrics    *metrics.Collector
	now        func() time.Time

	refreshGroup singleflight.Group
}

// Option customizes a Service
type Option func(*Service)

// WithHTTPClient overrides the client used for token requests
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) { s.httpClient = client }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the metrics collector
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a new auth service
func NewService(config OAuthConfig, tokenStore TokenStore, opts ...Option) *Service {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	s := &Service{
		config: config,
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURI,
			Scopes:       config.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   config.AuthURL,
				TokenURL:  config.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		tokenStore: tokenStore,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logrus.StandardLogger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TokenStore exposes the underlying store
func (s *Service) TokenStore() TokenStore {
	return s.tokenStore
}

// AuthorizationURL generates the QuickBooks authorization URL. A random
// state is generated when none is given; the caller validates it on callback.
func (s *Service) AuthorizationURL(state string) (string, string) {
	if state == "" {
		state = uuid.NewString()
	}
	return s.oauth.AuthCodeURL(state), state
}

// ExchangeCode exchanges an authorization code for tokens and stores them
// under companyID
func (s *Service) ExchangeCode(ctx context.Context, code, companyID string) (*TokenRecord, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", s.config.RedirectURI)

	token, err := s.executeTokenRequest(ctx, data)
	if err != nil {
		return nil, err
	}

	if err := s.tokenStore.SaveToken(ctx, companyID, token); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"company_id": companyID,
		"expires_at": token.ExpiresAt,
	}).Info("Stored tokens for company")

	return token, nil
}

// RefreshTokens exchanges a refresh token for a new token pair. The result
// is not stored.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (*TokenRecord, error) {
	if refreshToken == "" {
		return nil, errors.New("refresh token is required")
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	token, err := s.executeTokenRequest(ctx, data)
	s.metrics.TokenRefresh(err == nil)
	if err != nil {
		return nil, err
	}

	// If the refresh token was not returned, reuse the existing one
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}

	return token, nil
}

// GetOrRefresh returns a token for companyID that is valid for at least
// RefreshBuffer, refreshing and storing it when needed. ErrAuthRequired
// means the company has to be authorized again.
func (s *Service) GetOrRefresh(ctx context.Context, companyID string) (*TokenRecord, error) {
	token, err := s.tokenStore.GetToken(ctx, companyID)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, ErrAuthRequired
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	if !token.NeedsRefresh(s.now()) {
		return token, nil
	}

	// Concurrent callers for the same company share one refresh. The flight
	// outlives any single caller; the token client's timeout bounds it.
	flightCtx := context.WithoutCancel(ctx)
	ch := s.refreshGroup.DoChan(companyID, func() (interface{}, error) {
		return s.refreshStored(flightCtx, companyID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*TokenRecord), nil
	}
}

// Credentials returns QuickBooks API credentials for companyID, refreshing
// the access token when needed
func (s *Service) Credentials(ctx context.Context, companyID string) (qbclient.Credentials, error) {
	token, err := s.GetOrRefresh(ctx, companyID)
	if err != nil {
		return qbclient.Credentials{}, err
	}
	return qbclient.Credentials{RealmID: companyID, AccessToken: token.AccessToken}, nil
}

func (s *Service) refreshStored(ctx context.Context, companyID string) (*TokenRecord, error) {
	current, err := s.tokenStore.GetToken(ctx, companyID)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, ErrAuthRequired
		}
		return nil, fmt.Errorf("failed to get token for refresh: %w", err)
	}

	// Another flight may have refreshed it already
	if !current.NeedsRefresh(s.now()) {
		return current, nil
	}

	log := s.logger.WithField("company_id", companyID)

	if current.RefreshToken == "" {
		log.Warn("Token expired and no refresh token stored")
		return nil, ErrAuthRequired
	}

	refreshed, err := s.RefreshTokens(ctx, current.RefreshToken)
	if err != nil {
		log.WithError(err).Warn("Token refresh failed, re-authorization required")
		return nil, fmt.Errorf("%w: %v", ErrAuthRequired, err)
	}

	if err := s.tokenStore.SaveToken(ctx, companyID, refreshed); err != nil {
		log.WithError(err).Error("Failed to save refreshed token")
	}

	log.WithField("expires_at", refreshed.ExpiresAt).Info("Refreshed access token")
	return refreshed, nil
}

// executeTokenRequest performs the actual token request to QuickBooks
func (s *Service) executeTokenRequest(ctx context.Context, data url.Values) (*TokenRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(s.config.ClientID, s.config.ClientSecret)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, body)
	}

	var token TokenRecord
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, errors.New("token response did not include an access token")
	}

	token.ExpiresAt = s.now().UTC().Add(time.Duration(token.ExpiresIn) * time.Second)
	return &token, nil
}

// Disconnect revokes the company's tokens and removes them from storage
func (s *Service) Disconnect(ctx context.Context, companyID string) error {
	token, err := s.tokenStore.GetToken(ctx, companyID)
	if err != nil {
		return fmt.Errorf("failed to get token for revocation: %w", err)
	}

	// Revoking the refresh token invalidates the access token as well
	revoke := token.RefreshToken
	if revoke == "" {
		revoke = token.AccessToken
	}
	if err := s.revokeToken(ctx, revoke); err != nil {
		return err
	}

	return s.tokenStore.DeleteToken(ctx, companyID)
}

// revokeToken revokes a token with QuickBooks
func (s *Service) revokeToken(ctx context.Context, token string) error {
	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return fmt.Errorf("failed to encode revoke request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.RevokeURL, strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("failed to create revoke request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(s.config.ClientID, s.config.ClientSecret)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("revoke request failed with status %d: %s", resp.StatusCode, respBody)
	}

	return nil
}
