// auth/handlers.go
package auth

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/eGGnogSC/qbinvoice/internal/logging"
	"github.com/eGGnogSC/qbinvoice/internal/respond"
)

// Handler provides HTTP handlers for auth flows
type Handler struct {
	service *Service
	states  *StateStore
	logger  *logrus.Logger
}

// NewHandler creates a new auth handler
func NewHandler(service *Service, states *StateStore, logger *logrus.Logger) *Handler {
	return &Handler{
		service: service,
		states:  states,
		logger:  logger,
	}
}

// AuthorizeHandler redirects to the QuickBooks authorization page
func (h *Handler) AuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	authURL, state := h.service.AuthorizationURL(r.URL.Query().Get("state"))

	if err := h.states.Issue(w, r, state); err != nil {
		logging.FromContext(r.Context(), h.logger).WithError(err).Error("Failed to save OAuth state")
		respond.Fail(w, http.StatusInternalServerError, "Failed to save session")
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// CallbackHandler handles the OAuth callback from QuickBooks
func (h *Handler) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context(), h.logger)

	query := r.URL.Query()
	code := query.Get("code")
	state := query.Get("state")
	realmID := query.Get("realmId")

	if code == "" || realmID == "" {
		renderError(w, http.StatusBadRequest, "Missing code or realmId", "Please try the authorization flow again.")
		return
	}

	valid, err := h.states.Consume(w, r, state)
	if err != nil {
		log.WithError(err).Error("Failed to update OAuth session")
		renderError(w, http.StatusInternalServerError, "Failed to update session", "Please try the authorization flow again.")
		return
	}
	if !valid {
		log.WithField("company_id", realmID).Warn("OAuth callback with invalid or expired state")
		renderError(w, http.StatusBadRequest, "Invalid or expired state parameter", "Start again from /auth/authorize in the same browser.")
		return
	}

	token, err := h.service.ExchangeCode(r.Context(), code, realmID)
	if err != nil {
		log.WithError(err).WithField("company_id", realmID).Warn("Failed to exchange code for tokens")
		renderError(w, http.StatusBadGateway, "Failed to exchange code for tokens", "Please try the authorization flow again.")
		return
	}

	renderSuccess(w, successPage{
		CompanyID:    realmID,
		BaseURL:      baseURL(r),
		ExpiresIn:    token.ExpiresIn,
		ExpiresHours: float64(token.ExpiresIn) / 3600,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshHandler exchanges a refresh token for new tokens without storing them
func (h *Handler) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.RefreshToken == "" {
		respond.Fail(w, http.StatusBadRequest, "Refresh token is required")
		return
	}

	token, err := h.service.RefreshTokens(r.Context(), req.RefreshToken)
	if err != nil {
		logging.FromContext(r.Context(), h.logger).WithError(err).Warn("Refresh token exchange failed")
		respond.Fail(w, http.StatusBadRequest, "Failed to refresh token")
		return
	}

	respond.OK(w, token)
}

// DisconnectHandler revokes QuickBooks tokens for a company
func (h *Handler) DisconnectHandler(w http.ResponseWriter, r *http.Request) {
	companyID := r.URL.Query().Get("companyId")
	if companyID == "" {
		respond.Fail(w, http.StatusBadRequest, "companyId is required")
		return
	}

	if err := h.service.Disconnect(r.Context(), companyID); err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			respond.Fail(w, http.StatusNotFound, "No tokens stored for companyId: "+companyID)
			return
		}
		logging.FromContext(r.Context(), h.logger).WithError(err).Error("Failed to disconnect")
		respond.Fail(w, http.StatusBadGateway, "Failed to disconnect: "+err.Error())
		return
	}

	respond.OKWithMessage(w, map[string]string{"companyId": companyID}, "Disconnected from QuickBooks")
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return scheme + "://" + r.Host
}
