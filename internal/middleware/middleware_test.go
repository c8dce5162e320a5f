package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GoPolymarket/polysession/internal/config"
	"github.com/GoPolymarket/polysession/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(ErrorHandler())
	r.Use(mw...)
	return r
}

func do(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestErrorHandlerRendersAppError(t *testing.T) {
	r := newRouter()
	r.GET("/bad", func(c *gin.Context) {
		_ = c.Error(apperrors.NewInvalidRequest("Missing order ID"))
	})
	r.GET("/cfg", func(c *gin.Context) {
		_ = c.Error(apperrors.NewConfiguration("POLYMARKET_MAGIC_PK is not set"))
	})
	r.GET("/plain", func(c *gin.Context) {
		_ = c.Error(assert.AnError)
	})

	w := do(r, http.MethodGet, "/bad", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Missing order ID","code":"INVALID_REQUEST"}`, w.Body.String())

	w = do(r, http.MethodGet, "/cfg", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Wallet not configured","code":"CONFIGURATION_ERROR"}`, w.Body.String())

	w = do(r, http.MethodGet, "/plain", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}

func TestAuthMiddleware(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.GatewayKey = "gk"
	r := newRouter(AuthMiddleware(cfg))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/x", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/x", map[string]string{HeaderGatewayKey: "nope"}).Code)
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodGet, "/x", map[string]string{HeaderGatewayKey: "gk"}).Code)

	open := newRouter(AuthMiddleware(config.Default()))
	open.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	assert.Equal(t, http.StatusNoContent, do(open, http.MethodGet, "/x", nil).Code)
}

func TestAdminMiddleware(t *testing.T) {
	closed := newRouter(AdminMiddleware(config.Default()))
	closed.GET("/admin", func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusForbidden, do(closed, http.MethodGet, "/admin", nil).Code)

	cfg := config.Default()
	cfg.Auth.AdminKey = "ak"
	r := newRouter(AdminMiddleware(cfg))
	r.GET("/admin", func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/admin", nil).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/admin", map[string]string{HeaderAdminKey: "ak"}).Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	lim := NewIPRateLimiter(0.001, 2)
	r := newRouter(RateLimitMiddleware(lim))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/x", nil).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/x", nil).Code)
	w := do(r, http.MethodGet, "/x", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRateLimiterSweepsIdleClients(t *testing.T) {
	lim := NewIPRateLimiter(1, 1)
	now := time.Unix(1000, 0)
	lim.now = func() time.Time { return now }

	lim.Allow("1.1.1.1")
	now = now.Add(time.Hour)
	lim.Allow("2.2.2.2")

	lim.mu.Lock()
	defer lim.mu.Unlock()
	assert.Len(t, lim.clients, 1)
	assert.Contains(t, lim.clients, "2.2.2.2")
}

func TestReadOnlyMiddleware(t *testing.T) {
	r := newRouter(ReadOnlyMiddleware(true))
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.GET("/api/session", ok)
	r.POST("/api/session", ok)
	r.DELETE("/api/session", ok)
	r.POST("/api/polymarket/prices", ok)
	r.POST("/api/orders", ok)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/session", nil).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodDelete, "/api/session", nil).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/polymarket/prices", nil).Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPost, "/api/session", nil).Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPost, "/api/orders", nil).Code)
}

func TestIdempotencyMiddlewareReplays(t *testing.T) {
	store := NewInMemIdempotencyStore(time.Hour)
	var calls atomic.Int32
	r := newRouter(IdempotencyMiddleware(store))
	r.POST("/api/orders", func(c *gin.Context) {
		n := calls.Add(1)
		c.JSON(http.StatusOK, gin.H{"orderId": n})
	})

	h := map[string]string{HeaderIdempotencyKey: "abc"}
	first := do(r, http.MethodPost, "/api/orders", h)
	second := do(r, http.MethodPost, "/api/orders", h)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
	assert.Equal(t, int32(1), calls.Load())

	do(r, http.MethodPost, "/api/orders", map[string]string{HeaderIdempotencyKey: "other"})
	do(r, http.MethodPost, "/api/orders", nil)
	assert.Equal(t, int32(3), calls.Load())
}

func TestIdempotencyMiddlewareReleasesFailures(t *testing.T) {
	store := NewInMemIdempotencyStore(time.Hour)
	var calls atomic.Int32
	r := newRouter(IdempotencyMiddleware(store))
	r.POST("/api/wallet/relay", func(c *gin.Context) {
		calls.Add(1)
		_ = c.Error(apperrors.NewRelayFailure("Transaction failed on-chain", nil))
	})

	h := map[string]string{HeaderIdempotencyKey: "abc"}
	assert.Equal(t, http.StatusInternalServerError, do(r, http.MethodPost, "/api/wallet/relay", h).Code)
	assert.Equal(t, http.StatusInternalServerError, do(r, http.MethodPost, "/api/wallet/relay", h).Code)
	assert.Equal(t, int32(2), calls.Load())
}

func TestIdempotencyInFlightConflict(t *testing.T) {
	store := NewInMemIdempotencyStore(time.Hour)
	ctx := context.Background()
	_, hit := store.GetOrLock(ctx, "k")
	require.False(t, hit)
	rec, hit := store.GetOrLock(ctx, "k")
	require.True(t, hit)
	assert.True(t, rec.Processing)

	now := time.Now().Add(2 * time.Hour)
	store.now = func() time.Time { return now }
	_, hit = store.GetOrLock(ctx, "k")
	assert.False(t, hit, "expired records are relocked")
}

func TestRequestContextSetsRequestID(t *testing.T) {
	r := newRouter(RequestContext())
	r.GET("/x", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextRequestID))
	})

	w := do(r, http.MethodGet, "/x", nil)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
	assert.Equal(t, w.Header().Get(HeaderRequestID), w.Body.String())

	w = do(r, http.MethodGet, "/x", map[string]string{HeaderRequestID: "given"})
	assert.Equal(t, "given", w.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	r := newRouter()
	r.POST("/api/orders", func(c *gin.Context) { c.Status(http.StatusOK) })
	h := CORS([]string{"http://localhost:3000"}).Handler(r)

	req := httptest.NewRequest(http.MethodOptions, "/api/orders", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}
