// middleware/middleware.go
package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/eGGnogSC/qbinvoice/internal/logging"
	"github.com/eGGnogSC/qbinvoice/internal/respond"
)

// CorrelationHeader carries the id that ties log lines of one request together
const CorrelationHeader = "X-Correlation-ID"

// CorrelationID reuses the caller's correlation id or generates one, echoes
// it in the response and stores a tagged log entry in the request context
func CorrelationID(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(CorrelationHeader)
			if id == "" {
				id = uuid.New().String()
			}
			w.Header().Set(CorrelationHeader, id)

			entry := logging.FromContext(r.Context(), logger).WithField("correlation_id", id)
			next.ServeHTTP(w, r.WithContext(logging.WithEntry(r.Context(), entry)))
		})
	}
}

// Logging writes one line per request
func Logging(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			logging.FromContext(r.Context(), logger).WithFields(logrus.Fields{
				"status":     rec.status,
				"method":     r.Method,
				"path":       r.URL.Path,
				"latency":    time.Since(start).String(),
				"client_ip":  r.RemoteAddr,
				"user_agent": r.UserAgent(),
			}).Info("HTTP request")
		})
	}
}

// Recovery turns handler panics into a 500 envelope
func Recovery(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logging.FromContext(r.Context(), logger).WithFields(logrus.Fields{
						"error":  err,
						"method": r.Method,
						"path":   r.URL.Path,
					}).Error("Request handler panic")
					respond.Fail(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
