package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/engagement-engine/internal/httpapi/middleware"
)

type pingRoutes struct{ path string }

func (p pingRoutes) Register(r gin.IRoutes) {
	r.GET(p.path, func(c *gin.Context) { c.String(http.StatusOK, "pong") })
}

func newRouter(health func(context.Context) error, limiter *middleware.RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(RouterConfig{
		JWTSecret:   []byte("secret"),
		UserLimiter: limiter,
		User:        []Registrar{pingRoutes{"/ping"}},
		Operator:    []Registrar{pingRoutes{"/admin/ping"}},
		Health:      health,
	})
}

func get(r http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	assert.Equal(t, http.StatusOK, get(newRouter(nil, nil), "/healthz", nil).Code)

	down := newRouter(func(context.Context) error { return errors.New("db down") }, nil)
	assert.Equal(t, http.StatusServiceUnavailable, get(down, "/healthz", nil).Code)
}

func TestMetricsExposed(t *testing.T) {
	w := get(newRouter(nil, nil), "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestUserRoutesRequireToken(t *testing.T) {
	limiter := middleware.NewRateLimiter(1, time.Minute)
	defer limiter.Close()
	r := newRouter(nil, limiter)

	assert.Equal(t, http.StatusUnauthorized, get(r, "/v1/ping", nil).Code)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	auth := map[string]string{"Authorization": "Bearer " + token}

	assert.Equal(t, http.StatusOK, get(r, "/v1/ping", auth).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/v1/ping", auth).Code)
}

func TestOperatorRoutesRequireKey(t *testing.T) {
	r := newRouter(nil, nil)
	assert.Equal(t, http.StatusForbidden, get(r, "/v1/admin/ping", nil).Code)
}
