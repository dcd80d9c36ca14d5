// logging/logger.go
package logging

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the application logger
type Logger = *logrus.Logger

// Fields represents structured logging fields
type Fields = logrus.Fields

type ctxKey struct{}

// NewLogger creates a JSON logger at the given level
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(ParseLevel(level))
	return logger
}

// ParseLevel maps a level name to a logrus level, defaulting to info
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// WithEntry stores a request-scoped log entry in the context
func WithEntry(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, ctxKey{}, entry)
}

// FromContext returns the request-scoped entry, or one built on fallback
func FromContext(ctx context.Context, fallback *logrus.Logger) *logrus.Entry {
	if entry, ok := ctx.Value(ctxKey{}).(*logrus.Entry); ok && entry != nil {
		return entry
	}
	if fallback == nil {
		fallback = logrus.StandardLogger()
	}
	return logrus.NewEntry(fallback)
}
