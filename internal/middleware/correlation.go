package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	headerCorrelationID = "X-Correlation-ID"
	headerRequestID     = "X-Request-ID"
	localCorrelationID  = "correlation_id"
	maxCorrelationIDLen = 128
)

type correlationIDKey struct{}

// CorrelationID assigns every request an identifier, reusing a well-formed
// inbound one, and binds a logger carrying it to the request's user context
// so services can log with zerolog.Ctx.
func CorrelationID(logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := inboundCorrelationID(c)
		if id == "" {
			id = uuid.NewString()
		}

		c.Locals(localCorrelationID, id)
		c.Set(headerCorrelationID, id)

		requestLogger := logger.With().Str("correlation_id", id).Logger()
		ctx := context.WithValue(c.UserContext(), correlationIDKey{}, id)
		c.SetUserContext(requestLogger.WithContext(ctx))

		return c.Next()
	}
}

func inboundCorrelationID(c *fiber.Ctx) string {
	for _, header := range []string{headerCorrelationID, headerRequestID} {
		if id := strings.TrimSpace(c.Get(header)); validCorrelationID(id) {
			return id
		}
	}
	return ""
}

// validCorrelationID accepts short tokens of letters, digits, dashes, dots,
// colons and underscores so client values cannot inject log fields.
func validCorrelationID(id string) bool {
	if id == "" || len(id) > maxCorrelationIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return false
		}
	}
	return true
}

// CorrelationIDFromContext extracts the correlation identifier from context, if present.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}

// GetCorrelationID returns the correlation identifier bound to the active request.
func GetCorrelationID(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	if id, ok := c.Locals(localCorrelationID).(string); ok {
		return id
	}
	return CorrelationIDFromContext(c.UserContext())
}

// ContextWithCorrelation attaches the correlation identifier to ctx. Work that
// outlives the request, such as scheduler sweeps, uses it to stay joinable
// with the triggering request's logs.
func ContextWithCorrelation(ctx context.Context, correlationID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	correlationID = strings.TrimSpace(correlationID)
	if correlationID == "" || CorrelationIDFromContext(ctx) == correlationID {
		return ctx
	}
	return context.WithValue(ctx, correlationIDKey{}, correlationID)
}
