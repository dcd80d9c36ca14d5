// auth/models.go
package auth

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTokenNotFound is returned by stores when no record exists for a company
	ErrTokenNotFound = errors.New("no token found for company")

	// ErrAuthRequired means the company must go through authorize/callback again.
	// It covers both "never authorized" and "refresh failed".
	ErrAuthRequired = errors.New("quickbooks authorization required")
)

// RefreshBuffer is how long before expiry a token is refreshed
const RefreshBuffer = 5 * time.Minute

// TokenRecord represents token data from QuickBooks for one company (realm)
type TokenRecord struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresIn    int       `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// NeedsRefresh reports whether the token expires within RefreshBuffer of now
func (t *TokenRecord) NeedsRefresh(now time.Time) bool {
	return !t.ExpiresAt.After(now.Add(RefreshBuffer))
}

// TokenStore holds one TokenRecord per company id
type TokenStore interface {
	SaveToken(ctx context.Context, companyID string, token *TokenRecord) error
	GetToken(ctx context.Context, companyID string) (*TokenRecord, error)
	DeleteToken(ctx context.Context, companyID string) error
	Companies(ctx context.Context) ([]string, error)
}

// OAuthConfig holds OAuth 2.0 configuration
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	RevokeURL    string
	Timeout      time.Duration
}
