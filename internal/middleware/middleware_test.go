package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinical-triage-server/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(handlers...)
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return r
}

func serve(r http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCorrelationID(t *testing.T) {
	r := newRouter(CorrelationID())

	t.Run("generates id", func(t *testing.T) {
		w := serve(r, http.MethodGet, "/ping", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, w.Header().Get(CorrelationIDHeader), 36)
	})

	t.Run("propagates caller id", func(t *testing.T) {
		w := serve(r, http.MethodGet, "/ping", http.Header{CorrelationIDHeader: {"abc-123"}})
		assert.Equal(t, "abc-123", w.Header().Get(CorrelationIDHeader))
	})
}

func TestSecurityHeaders(t *testing.T) {
	w := serve(newRouter(SecurityHeaders()), http.MethodGet, "/ping", nil)

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestCORS(t *testing.T) {
	r := newRouter(CORS())

	w := serve(r, http.MethodGet, "/ping", http.Header{"Origin": {"http://dashboard.local"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "X-Total-Count")

	w = serve(r, http.MethodOptions, "/ping", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRequestTimeout(t *testing.T) {
	r := gin.New()
	r.Use(CorrelationID(), RequestTimeout(10*time.Millisecond))
	r.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})
	r.GET("/fast", func(c *gin.Context) {
		_, hasDeadline := c.Request.Context().Deadline()
		c.JSON(http.StatusOK, gin.H{"deadline": hasDeadline})
	})

	w := serve(r, http.MethodGet, "/slow", nil)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)

	var apiErr domain.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, domain.ErrCodeServiceUnavailable, apiErr.Code)
	assert.Equal(t, w.Header().Get(CorrelationIDHeader), apiErr.RequestID)

	w = serve(r, http.MethodGet, "/fast", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deadline":true}`, w.Body.String())
}

func TestAuditLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	r := newRouter(CorrelationID(), AuditLogger(logger))
	serve(r, http.MethodGet, "/ping", http.Header{CorrelationIDHeader: {"audit-1"}})

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "audit-1", record["correlation_id"])
	assert.Equal(t, "GET", record["method"])
	assert.Equal(t, "/ping", record["path"])
	assert.Equal(t, float64(http.StatusOK), record["status"])
	assert.Equal(t, "info", record["level"])
}

func TestRecovery(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	r := gin.New()
	r.Use(CorrelationID(), Recovery(logger))
	r.GET("/boom", func(c *gin.Context) {
		panic("boom")
	})

	w := serve(r, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var apiErr domain.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, domain.ErrCodeInternalServer, apiErr.Code)
}

func TestRateLimit(t *testing.T) {
	t.Run("rejects over burst per client", func(t *testing.T) {
		r := newRouter(RateLimit(domain.RateLimitConfig{Enabled: true, RequestsPerSecond: 0.001, Burst: 2}))

		client := func(addr string) int {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			req.RemoteAddr = addr
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			return w.Code
		}

		assert.Equal(t, http.StatusOK, client("10.0.0.1:5000"))
		assert.Equal(t, http.StatusOK, client("10.0.0.1:5001"))
		assert.Equal(t, http.StatusTooManyRequests, client("10.0.0.1:5002"))

		// Another client has its own bucket
		assert.Equal(t, http.StatusOK, client("10.0.0.2:5000"))
	})

	t.Run("disabled passes everything", func(t *testing.T) {
		r := newRouter(RateLimit(domain.RateLimitConfig{Enabled: false, RequestsPerSecond: 0.001, Burst: 1}))
		for i := 0; i < 5; i++ {
			assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/ping", nil).Code)
		}
	})

	t.Run("429 body is an APIError", func(t *testing.T) {
		r := newRouter(CorrelationID(), RateLimit(domain.RateLimitConfig{Enabled: true, RequestsPerSecond: 0.001, Burst: 1}))
		serve(r, http.MethodGet, "/ping", nil)
		w := serve(r, http.MethodGet, "/ping", nil)

		require.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.NotEmpty(t, w.Header().Get("Retry-After"))

		var apiErr domain.APIError
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
		assert.Equal(t, domain.ErrCodeRateLimit, apiErr.Code)
	})
}
