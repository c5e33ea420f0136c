// Package middleware provides HTTP middleware for the CRM API.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxRequestIDLength is the maximum accepted length of an incoming request ID
const MaxRequestIDLength = 128

// Path parameters copied onto the request span when they hold a UUID
var spanPathParams = []string{"id", "client_id", "contact_id"}

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	// ServiceName is the name of the service for trace identification.
	ServiceName string
	// Enabled controls whether tracing is active.
	Enabled bool
}

// DefaultTracingConfig returns default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "crm",
		Enabled:     true,
	}
}

// TracingWithConfig returns OpenTelemetry tracing middleware. It wraps
// otelgin and tags the span with the request ID and the entity IDs found
// in the route.
//
// The span name follows the format "HTTP METHOD route_pattern".
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return otelgin.Middleware(cfg.ServiceName)
}

// SpanAttributes copies request-scoped values onto the active span. It must
// run after TracingWithConfig and RequestID in the chain.
func SpanAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			enrichSpanWithAttributes(c, span)
		}
		c.Next()
	}
}

func enrichSpanWithAttributes(c *gin.Context, span trace.Span) {
	if requestID := GetRequestID(c); requestID != "" {
		span.SetAttributes(attribute.String("request_id", requestID))
	}
	for _, name := range spanPathParams {
		value := c.Param(name)
		if value == "" {
			continue
		}
		// Only well-formed IDs reach the trace backend
		if _, err := uuid.Parse(value); err != nil {
			continue
		}
		span.SetAttributes(attribute.String("route."+name, value))
	}
}

// SpanErrorMarker marks the span as failed for 5xx responses and records
// 4xx and 207 responses as attributes. It must run after TracingWithConfig.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}

		status := c.Writer.Status()
		switch {
		case status >= http.StatusInternalServerError:
			span.SetStatus(codes.Error, http.StatusText(status))
			span.SetAttributes(attribute.Int("http.status_code", status))
		case status >= http.StatusBadRequest:
			span.SetAttributes(attribute.Int("http.status_code", status))
		case status == http.StatusMultiStatus:
			span.SetAttributes(attribute.Bool("cascade.partial", true))
		}
	}
}
