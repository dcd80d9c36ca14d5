// routes/routes_test.go
package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eGGnogSC/qbinvoice/internal/auth"
	"github.com/eGGnogSC/qbinvoice/internal/creditnote"
	"github.com/eGGnogSC/qbinvoice/internal/health"
	"github.com/eGGnogSC/qbinvoice/internal/invoice"
	"github.com/eGGnogSC/qbinvoice/internal/metrics"
	"github.com/eGGnogSC/qbinvoice/internal/middleware"
	"github.com/eGGnogSC/qbinvoice/internal/settlement"
	"github.com/eGGnogSC/qbinvoice/pkg/qbclient"
)

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	logger, _ := test.NewNullLogger()

	quickbooks := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/invoice/130") {
			_, _ = w.Write([]byte(`{"Invoice": {"Id": "130", "TotalAmt": 100, "Balance": 100}}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"Fault": {"Error": [{"Message": "Object Not Found", "code": "610"}]}}`))
	}))
	t.Cleanup(quickbooks.Close)

	store := auth.NewFileTokenStore("", logger)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.SaveToken(context.Background(), "9341", &auth.TokenRecord{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}))

	collector := metrics.NewCollector()
	authService := auth.NewService(auth.OAuthConfig{ClientID: "id", ClientSecret: "secret"}, store, auth.WithLogger(logger))
	qb := qbclient.NewClient(qbclient.Config{BaseURL: quickbooks.URL}, qbclient.WithLogger(logger), qbclient.WithMetrics(collector))

	handlers := Handlers{
		Auth:       auth.NewHandler(authService, auth.NewStateStore([]byte("0123456789abcdef0123456789abcdef"), false), logger),
		Invoice:    invoice.NewHandler(invoice.NewService(authService, qb, logger), logger),
		Settlement: settlement.NewHandler(settlement.NewService(authService, qb, settlement.WithLogger(logger)), logger),
		CreditNote: creditnote.NewHandler(creditnote.NewService(authService, qb, logger), logger),
		Health:     health.NewHandler(qb, store, nil, logger),
	}

	router := mux.NewRouter()
	SetupRoutes(router, handlers, store, collector, logger)
	return router
}

func do(router http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestAPIRequiresCompany(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name       string
		method     string
		target     string
		wantStatus int
	}{
		{name: "missing companyId", method: http.MethodGet, target: "/api/invoices", wantStatus: http.StatusBadRequest},
		{name: "unknown company", method: http.MethodGet, target: "/api/invoices?companyId=1", wantStatus: http.StatusUnauthorized},
		{name: "settle unknown company", method: http.MethodPost, target: "/api/invoices/130/settle?companyId=1", wantStatus: http.StatusUnauthorized},
		{name: "credit notes missing companyId", method: http.MethodGet, target: "/api/credit-notes", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(router, tt.method, tt.target)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestAPIReachesQuickBooks(t *testing.T) {
	router := newTestRouter(t)

	rec := do(router, http.MethodGet, "/api/invoices/130?companyId=9341")
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Success bool             `json:"success"`
		Data    qbclient.Invoice `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.True(t, env.Success)
	assert.Equal(t, "130", env.Data.Id)

	rec = do(router, http.MethodGet, "/api/credit-notes/77?companyId=9341")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPublicRoutes(t *testing.T) {
	router := newTestRouter(t)

	rec := do(router, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.CorrelationHeader))

	rec = do(router, http.MethodGet, "/health/quickbooks")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"apiBreaker": "closed"`)

	rec = do(router, http.MethodGet, "/auth/authorize")
	assert.Equal(t, http.StatusFound, rec.Code)

	rec = do(router, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `qbinvoice_http_requests_total{method="GET",route="/health",status="200"} 1`)
}
