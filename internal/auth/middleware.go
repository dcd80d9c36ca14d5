// auth/middleware.go
package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/eGGnogSC/qbinvoice/internal/logging"
	"github.com/eGGnogSC/qbinvoice/internal/respond"
)

// contextKey is a custom type for context keys
type contextKey string

// CompanyIDKey holds the validated companyId of an API request
const CompanyIDKey contextKey = "company_id"

// GetCompanyID extracts the company ID set by RequireCompany
func GetCompanyID(ctx context.Context) string {
	companyID, _ := ctx.Value(CompanyIDKey).(string)
	return companyID
}

// RequireCompany rejects API requests without a companyId query parameter
// (400) or without stored tokens for it (401). Expiry is not checked here;
// handlers refresh through GetOrRefresh.
func RequireCompany(store TokenStore, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			companyID := r.URL.Query().Get("companyId")
			if companyID == "" {
				respond.Fail(w, http.StatusBadRequest, "companyId query parameter is required")
				return
			}

			if _, err := store.GetToken(r.Context(), companyID); err != nil {
				if !errors.Is(err, ErrTokenNotFound) {
					logging.FromContext(r.Context(), logger).WithError(err).Error("Token lookup failed")
				}
				respond.AuthRequired(w, companyID)
				return
			}

			ctx := context.WithValue(r.Context(), CompanyIDKey, companyID)
			ctx = logging.WithEntry(ctx, logging.FromContext(ctx, logger).WithField("company_id", companyID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CompanyID returns the company of an API request, from RequireCompany when
// it ran and from the query string otherwise
func CompanyID(r *http.Request) string {
	if companyID := GetCompanyID(r.Context()); companyID != "" {
		return companyID
	}
	return r.URL.Query().Get("companyId")
}
