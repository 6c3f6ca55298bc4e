package router

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mbergh0930/create3x/internal/catalog"
	"github.com/mbergh0930/create3x/internal/game"
	"github.com/mbergh0930/create3x/internal/handlers"
	"github.com/mbergh0930/create3x/internal/middleware"
	"github.com/mbergh0930/create3x/internal/websocket"
)

func newTestRouter(t *testing.T, storage string) http.Handler {
	t.Helper()
	limiter := middleware.NewRateLimiter(10, time.Minute)
	hub := websocket.NewHub(nil, middleware.NewJWTAuth("secret"), zap.NewNop())
	t.Cleanup(func() {
		limiter.Stop()
		hub.Close()
	})

	return New(Config{
		JWTAuth:     middleware.NewJWTAuth("secret"),
		AuthLimiter: limiter,
		Logger:      zap.NewNop(),
		FrontendURL: "http://localhost:3000",
		StoragePath: storage,
		Auth:        handlers.NewAuthHandler(nil, zap.NewNop()),
		Catalog:     handlers.NewCatalogHandler(catalog.MustLoad()),
		Sessions:    handlers.NewSessionHandler(nil, storage, zap.NewNop()),
		Dashboard:   handlers.NewDashboardHandler(nil, nil, zap.NewNop()),
		User:        handlers.NewUserHandler(nil, game.DefaultLimits(), zap.NewNop()),
		Jobs:        handlers.NewJobHandler(nil),
		Hub:         hub,
	})
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestRouterPublicRoutes(t *testing.T) {
	h := newTestRouter(t, t.TempDir())

	rr := get(h, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get(middleware.RequestIDHeader))

	rr = get(h, "/api/v1/catalog/artists")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = get(h, "/api/v1/catalog/professional/techniques")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouterProtectedRoutesRequireToken(t *testing.T) {
	h := newTestRouter(t, t.TempDir())

	for _, target := range []string{
		"/api/v1/sessions",
		"/api/v1/sessions/current",
		"/api/v1/dashboard/stats",
		"/api/v1/user/me",
		"/api/v1/jobs/123",
	} {
		rr := get(h, target)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, target)
	}
}

func TestRouterAuthRateLimit(t *testing.T) {
	h := newTestRouter(t, t.TempDir())

	status := 0
	for i := 0; i < 11; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{`))
		req.RemoteAddr = "203.0.113.9:4000"
		h.ServeHTTP(rr, req)
		status = rr.Code
		if i < 10 {
			require.Equal(t, http.StatusBadRequest, status, "request %d", i)
		}
	}
	assert.Equal(t, http.StatusTooManyRequests, status)
}

func TestRouterServesMedia(t *testing.T) {
	storage := t.TempDir()
	dir := filepath.Join(storage, "users", "u1", "artwork")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), []byte("png"), 0o644))
	h := newTestRouter(t, storage)

	rr := get(h, "/media/users/u1/artwork/a.png")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "png", rr.Body.String())

	rr = get(h, "/media/users/u1/artwork/")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
