package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/internal/observability"
)

// apiSurfaces maps route prefixes to the surface label used in metrics.
var apiSurfaces = []struct {
	prefix  string
	surface string
}{
	{"/api/v2/judge", "judge"},
	{"/api/v2/tasks", "tasks"},
	{"/api/v2/admin", "admin"},
	{"/api/v2/notifications", "notifications"},
}

// Observability records Prometheus metrics and a structured access log line
// for every API request. Health and scrape endpoints are ignored.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()

	return func(c *fiber.Ctx) error {
		surface, ok := surfaceFor(c.Path())
		if !ok {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		duration := time.Since(start)

		// Errors returned past the handlers are rendered by the app's error
		// handler after this middleware, so derive the final status here.
		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			if fiberErr, ok := err.(*fiber.Error); ok {
				status = fiberErr.Code
			}
		}

		route := routeTemplate(c)
		method := c.Method()
		statusLabel := strconv.Itoa(status)

		observability.APIRequests().WithLabelValues(surface, method, route, statusLabel).Inc()
		observability.APILatency().WithLabelValues(surface, method, route).Observe(duration.Seconds())
		if status >= fiber.StatusBadRequest {
			observability.APIErrors().WithLabelValues(surface, method, route, statusLabel).Inc()
		}

		event := logger.Info()
		switch {
		case status >= fiber.StatusInternalServerError:
			event = logger.Error()
		case status >= fiber.StatusBadRequest:
			event = logger.Warn()
		}
		event.
			Str("correlation_id", GetCorrelationID(c)).
			Str("surface", surface).
			Str("route", route).
			Str("method", method).
			Int("status", status).
			Float64("latency_ms", float64(duration)/float64(time.Millisecond)).
			Str("latency_bucket", latencyBucket(duration)).
			Msg("request completed")

		return err
	}
}

func surfaceFor(path string) (string, bool) {
	for _, candidate := range apiSurfaces {
		if strings.HasPrefix(path, candidate.prefix) {
			return candidate.surface, true
		}
	}
	return "", false
}

func routeTemplate(c *fiber.Ctx) string {
	if c.Route() != nil && c.Route().Path != "" {
		return c.Route().Path
	}
	return c.Path()
}

// latencyBucket uses wider buckets than typical CRUD APIs since judge
// requests include compile and run time.
func latencyBucket(duration time.Duration) string {
	switch {
	case duration <= 50*time.Millisecond:
		return "<=50ms"
	case duration <= 250*time.Millisecond:
		return "<=250ms"
	case duration <= time.Second:
		return "<=1s"
	case duration <= 5*time.Second:
		return "<=5s"
	case duration <= 15*time.Second:
		return "<=15s"
	default:
		return ">15s"
	}
}
