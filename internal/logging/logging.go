// Package logging builds the zap logger and carries request ids through
// contexts.
package logging

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a production JSON logger writing to stderr. Stdout is left
// to command output and the MCP stdio transport.
func New(verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// NewRequestID generates a ULID for one request.
func NewRequestID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		// Only fails when the entropy source does.
		return "unknown"
	}
	return id.String()
}

type ctxKey struct{}

type ctxValue struct {
	requestID string
	logger    *zap.Logger
}

// WithRequestID stores id and a logger tagged with it on ctx.
func WithRequestID(ctx context.Context, logger *zap.Logger, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, ctxValue{
		requestID: id,
		logger:    logger.With(zap.String("request_id", id)),
	})
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKey{}).(ctxValue)
	return v.requestID
}

// FromContext returns the request-scoped logger, falling back to fallback
// (or a no-op logger when fallback is nil).
func FromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if v, ok := ctx.Value(ctxKey{}).(ctxValue); ok && v.logger != nil {
		return v.logger
	}
	if fallback != nil {
		return fallback
	}
	return zap.NewNop()
}
