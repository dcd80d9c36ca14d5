// auth/session.go
package auth

import (
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

const (
	sessionName       = "qb-auth-session"
	stateKey          = "qb_state"
	stateExpiryKey    = "qb_state_expiry"
	stateLifetime     = 10 * time.Minute
	sessionMaxAgeSecs = 15 * 60
)

// StateStore keeps the OAuth state issued by /auth/authorize in a signed cookie
type StateStore struct {
	store *sessions.CookieStore
	now   func() time.Time
}

// NewStateStore initializes the cookie store
func NewStateStore(secret []byte, secure bool) *StateStore {
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/auth",
		MaxAge:   sessionMaxAgeSecs,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode, // the callback is a cross-site redirect from Intuit
	}
	return &StateStore{store: store, now: time.Now}
}

// Issue remembers state for the current browser
func (s *StateStore) Issue(w http.ResponseWriter, r *http.Request, state string) error {
	session, _ := s.store.Get(r, sessionName)
	session.Values[stateKey] = state
	session.Values[stateExpiryKey] = s.now().Add(stateLifetime).Unix()
	return session.Save(r, w)
}

// Consume checks state against the remembered one and clears it
func (s *StateStore) Consume(w http.ResponseWriter, r *http.Request, state string) (bool, error) {
	session, _ := s.store.Get(r, sessionName)

	saved, ok := session.Values[stateKey].(string)
	expiry, hasExpiry := session.Values[stateExpiryKey].(int64)
	valid := ok && state != "" && saved == state && hasExpiry && s.now().Unix() <= expiry

	delete(session.Values, stateKey)
	delete(session.Values, stateExpiryKey)
	if err := session.Save(r, w); err != nil {
		return false, err
	}
	return valid, nil
}
