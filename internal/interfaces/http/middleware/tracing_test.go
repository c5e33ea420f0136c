package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTestTracer sets up a test tracer provider and returns the span recorder.
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t.Cleanup(func() {
		_ = tp.Shutdown(t.Context())
	})

	return sr
}

func tracedRouter(handler gin.HandlerFunc, routes ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID(), TracingWithConfig(DefaultTracingConfig()), SpanAttributes(), SpanErrorMarker())
	for _, r := range routes {
		router.GET(r, handler)
	}
	return router
}

func findSpan(t *testing.T, sr *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, span := range sr.Ended() {
		if span.Name() == name {
			return span
		}
	}
	require.Failf(t, "span not found", "no ended span named %q", name)
	return nil
}

func spanAttr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, attr := range span.Attributes() {
		if string(attr.Key) == key {
			return attr.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracingWithConfig_Disabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sr := setupTestTracer(t)

	router := gin.New()
	router.Use(TracingWithConfig(TracingConfig{Enabled: false, ServiceName: "test-service"}))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, sr.Ended())
}

func TestSpanAttributes_RequestAndRouteIDs(t *testing.T) {
	sr := setupTestTracer(t)
	router := tracedRouter(func(c *gin.Context) {
		c.Status(http.StatusOK)
	}, "/links/:client_id/:contact_id")

	clientID := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/links/"+clientID+"/not-a-uuid", nil)
	req.Header.Set(RequestIDHeader, "test-request-id-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	span := findSpan(t, sr, "GET /links/:client_id/:contact_id")

	v, ok := spanAttr(span, "request_id")
	require.True(t, ok)
	assert.Equal(t, "test-request-id-123", v.AsString())

	v, ok = spanAttr(span, "route.client_id")
	require.True(t, ok)
	assert.Equal(t, clientID, v.AsString())

	_, ok = spanAttr(span, "route.contact_id")
	assert.False(t, ok, "malformed IDs are not recorded")
}

func TestSpanErrorMarker(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantError  bool
		wantStatus bool
		wantCasc   bool
	}{
		{"success", http.StatusOK, false, false, false},
		{"partial cascade", http.StatusMultiStatus, false, false, true},
		{"not found", http.StatusNotFound, false, true, false},
		{"conflict", http.StatusConflict, false, true, false},
		{"store failure", http.StatusInternalServerError, true, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sr := setupTestTracer(t)
			router := tracedRouter(func(c *gin.Context) {
				c.Status(tt.status)
			}, "/test")

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
			require.Equal(t, tt.status, w.Code)

			span := findSpan(t, sr, "GET /test")
			if tt.wantError {
				assert.Equal(t, codes.Error, span.Status().Code)
			} else {
				assert.NotEqual(t, codes.Error, span.Status().Code)
			}
			_, hasStatus := spanAttr(span, "http.status_code")
			assert.Equal(t, tt.wantStatus, hasStatus)
			_, hasCascade := spanAttr(span, "cascade.partial")
			assert.Equal(t, tt.wantCasc, hasCascade)
		})
	}
}

func TestSpanErrorMarker_WithNoSpan(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(SpanErrorMarker(), SpanAttributes())
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusInternalServerError)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
