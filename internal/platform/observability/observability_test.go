package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ecoshop/storefront/internal/platform/requestctx"
)

const (
	sampleTraceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	sampleSpanID  = "00f067aa0ba902b7"
)

func TestParseTraceparent(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		ok      bool
		sampled bool
	}{
		{name: "sampled", header: "00-" + sampleTraceID + "-" + sampleSpanID + "-01", ok: true, sampled: true},
		{name: "not sampled", header: "00-" + sampleTraceID + "-" + sampleSpanID + "-00", ok: true},
		{name: "empty", header: ""},
		{name: "invalid version", header: "ff-" + sampleTraceID + "-" + sampleSpanID + "-01"},
		{name: "short trace id", header: "00-abc-" + sampleSpanID + "-01"},
		{name: "zero span id", header: "00-" + sampleTraceID + "-0000000000000000-01"},
		{name: "bad flags", header: "00-" + sampleTraceID + "-" + sampleSpanID + "-1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			info, spanCtx, ok := parseTraceparent(tc.header)
			require.Equal(t, tc.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, sampleTraceID, info.TraceID)
			assert.Equal(t, sampleSpanID, info.SpanID)
			assert.Equal(t, tc.sampled, info.Sampled)
			assert.True(t, spanCtx.IsRemote())
			assert.Equal(t, tc.sampled, spanCtx.IsSampled())
		})
	}
}

func TestFormatTraceparent(t *testing.T) {
	assert.Equal(t, "00-"+sampleTraceID+"-"+sampleSpanID+"-01",
		formatTraceparent(requestctx.TraceInfo{TraceID: sampleTraceID, SpanID: sampleSpanID, Sampled: true}))
	assert.Equal(t, "00-"+sampleTraceID+"-"+sampleSpanID+"-00",
		formatTraceparent(requestctx.TraceInfo{TraceID: sampleTraceID, SpanID: sampleSpanID}))
	assert.Empty(t, formatTraceparent(requestctx.TraceInfo{TraceID: "short", SpanID: sampleSpanID}))
}

func TestTraceMiddlewareContinuesIncomingTrace(t *testing.T) {
	var seen requestctx.TraceInfo
	handler := TraceMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = requestctx.Trace(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set(traceparentHeader, "00-"+sampleTraceID+"-"+sampleSpanID+"-01")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, sampleTraceID, seen.TraceID)
	assert.Equal(t, "00-"+sampleTraceID+"-"+sampleSpanID+"-01", rr.Header().Get(traceparentHeader))
}

func TestServiceLoggerPrefersRequestLogger(t *testing.T) {
	fallbackCore, fallbackLogs := observer.New(zapcore.InfoLevel)
	requestCore, requestLogs := observer.New(zapcore.InfoLevel)
	log := ServiceLogger(zap.New(fallbackCore))

	log(context.Background(), "catalog.loaded", map[string]any{"products": 12})
	require.Equal(t, 1, fallbackLogs.Len())
	entry := fallbackLogs.All()[0]
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	assert.Equal(t, "catalog.loaded", entry.Message)
	assert.EqualValues(t, 12, entry.ContextMap()["products"])

	ctx := WithLogger(context.Background(), zap.New(requestCore))
	log(ctx, "source.failed", map[string]any{"error": errors.New("timeout").Error()})
	require.Equal(t, 1, requestLogs.Len())
	assert.Equal(t, zapcore.WarnLevel, requestLogs.All()[0].Level)
	assert.Equal(t, 1, fallbackLogs.Len())
}

func TestRequestLoggerMiddlewareReportsRoute(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	type observed struct {
		method string
		route  string
		status int
	}
	var got []observed
	record := func(method, route string, status int, _ time.Duration) {
		got = append(got, observed{method, route, status})
	}

	router := chi.NewRouter()
	router.Use(InjectLoggerMiddleware(zap.New(core)))
	router.Use(RequestLoggerMiddleware(record))
	router.Get("/products/{productId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/products/tee-1", nil)
	req = req.WithContext(requestctx.WithSessionID(req.Context(), "01HZX3Q7K9ABCDEFGHJKMNPQRS"))
	router.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, got, 1)
	assert.Equal(t, observed{http.MethodGet, "/products/{productId}", http.StatusNotFound}, got[0])

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "01HZX3Q7…", entry.ContextMap()["session_id"])
}

func TestRecoveryMiddlewareWritesJSONError(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), `"internal_server_error"`)
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestSanitizeSessionID(t *testing.T) {
	assert.Empty(t, SanitizeSessionID(""))
	assert.Equal(t, "short", SanitizeSessionID("short"))
	assert.Equal(t, "01HZX3Q7…", SanitizeSessionID("01HZX3Q7K9ABCDEFGHJKMNPQRS"))
	assert.Equal(t, "ab", SanitizeSessionID("a\nb"))
}
