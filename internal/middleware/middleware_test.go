package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	apperrors "github.com/jwalitptl/fitness-api/pkg/errors"
	"github.com/jwalitptl/fitness-api/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), ErrorHandler())
	r.Use(handlers...)
	return r
}

func perform(r http.Handler, method, path, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestRateLimiterRejectsAfterLimit(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry(), "test")
	rl := NewRateLimiter(ThrottlePolicy{Name: "auth", Limit: 3, TTL: time.Minute}, m)

	r := newEngine(rl.RateLimit())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i := 0; i < 3; i++ {
		w := perform(r, http.MethodGet, "/ping", "10.0.0.1:1234")
		require.Equal(t, http.StatusNoContent, w.Code, "request %d", i)
		assert.Equal(t, "3", w.Header().Get(HeaderRateLimitLimit))
		assert.Equal(t, "auth", w.Header().Get(HeaderRateLimitPolicy))
	}

	w := perform(r, http.MethodGet, "/ping", "10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "rate limit exceeded for auth policy", resp.Message)
	assert.NotEmpty(t, resp.RequestID)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ThrottledRequests.WithLabelValues("auth")))
}

func TestRateLimiterIsPerClient(t *testing.T) {
	rl := NewRateLimiter(ThrottlePolicy{Name: "default", Limit: 1, TTL: time.Minute}, nil)

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestRateLimiterRefills(t *testing.T) {
	rl := NewRateLimiter(ThrottlePolicy{Name: "default", Limit: 2, TTL: 100 * time.Millisecond}, nil)

	assert.True(t, rl.Allow("client"))
	assert.True(t, rl.Allow("client"))
	assert.False(t, rl.Allow("client"))

	assert.Eventually(t, func() bool { return rl.Allow("client") }, time.Second, 10*time.Millisecond)
}

func TestNewRateLimiterNormalizesPolicy(t *testing.T) {
	rl := NewRateLimiter(ThrottlePolicy{Name: "broken"}, nil)
	assert.Equal(t, 1, rl.policy.Limit)
	assert.Equal(t, time.Minute, rl.policy.TTL)
}

func TestRateLimiterRateForLargeLimits(t *testing.T) {
	rl := NewRateLimiter(ThrottlePolicy{Name: "default", Limit: 5, TTL: time.Minute}, nil)
	assert.InDelta(t, 5.0/60.0, float64(rl.every), 1e-9)

	// More requests than nanoseconds in the window must still yield a finite rate.
	rl = NewRateLimiter(ThrottlePolicy{Name: "burst", Limit: 2_000_000, TTL: time.Millisecond}, nil)
	assert.NotEqual(t, rate.Inf, rl.every)
	assert.InDelta(t, 2e9, float64(rl.every), 1)
}

func TestErrorHandlerRendersAppError(t *testing.T) {
	r := newEngine()
	r.GET("/validation", func(c *gin.Context) {
		c.Error(apperrors.Validation("password does not meet policy", []string{"Password is required"}))
	})
	r.GET("/plain", func(c *gin.Context) {
		c.Error(errors.New("database exploded"))
	})

	w := perform(r, http.MethodGet, "/validation", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, []string{"Password is required"}, resp.Details)

	// Errors that are not AppErrors are rendered as Internal without leaking
	// their text.
	w = perform(r, http.MethodGet, "/plain", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp = decodeError(t, w)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Equal(t, "internal server error", resp.Message)
	assert.NotContains(t, w.Body.String(), "database exploded")
}

func TestRequestID(t *testing.T) {
	r := newEngine()
	r.GET("/id", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextRequestID)) })

	w := perform(r, http.MethodGet, "/id", "")
	generated := w.Header().Get(HeaderXRequestID)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/id", nil)
	req.Header.Set(HeaderXRequestID, "req-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get(HeaderXRequestID))
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery(), Logger())
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := perform(r, http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Equal(t, "internal server error", resp.Message)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg, "test")

	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	perform(r, http.MethodGet, "/ok", "")
	perform(r, http.MethodGet, "/missing", "")

	count, err := testutil.GatherAndCount(reg, "test_http_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
