// middleware/middleware_test.go
package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eGGnogSC/qbinvoice/internal/logging"
)

func chain(logger *logrus.Logger, h http.Handler) http.Handler {
	return CorrelationID(logger)(Logging(logger)(Recovery(logger)(h)))
}

func TestCorrelationIDGenerated(t *testing.T) {
	logger, hook := test.NewNullLogger()

	var seen string
	h := chain(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = logging.FromContext(r.Context(), nil).Data["correlation_id"].(string)
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	id := rec.Header().Get(CorrelationHeader)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, seen)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "HTTP request", entry.Message)
	assert.Equal(t, http.StatusTeapot, entry.Data["status"])
	assert.Equal(t, id, entry.Data["correlation_id"])
}

func TestCorrelationIDPreserved(t *testing.T) {
	logger, _ := test.NewNullLogger()
	h := chain(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(CorrelationHeader, "corr-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "corr-123", rec.Header().Get(CorrelationHeader))
}

func TestRecovery(t *testing.T) {
	logger, hook := test.NewNullLogger()
	h := chain(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/invoices", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")

	var panicked bool
	for _, e := range hook.AllEntries() {
		if e.Message == "Request handler panic" {
			panicked = true
		}
	}
	assert.True(t, panicked)
}
