package routes_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"airdropbot/internal/handlers"
	"airdropbot/internal/middleware"
	"airdropbot/internal/models"
	"airdropbot/internal/routes"
)

const secret = "test-secret"

type memAdmin struct {
	sessions map[int64]*models.Session
}

func (m *memAdmin) Session(_ context.Context, id int64) (*models.Session, error) {
	return m.sessions[id], nil
}

func (m *memAdmin) Remove(_ context.Context, id int64) error {
	delete(m.sessions, id)
	return nil
}

func (m *memAdmin) Stats(context.Context) (map[models.SessionState]int, error) {
	return map[models.SessionState]int{models.StateCompleted: len(m.sessions)}, nil
}

func newRouter(t *testing.T, adminSecret string) (*gin.Engine, *memAdmin) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	admin := &memAdmin{sessions: map[int64]*models.Session{5: {UserID: 5, State: models.StateCompleted}}}
	r := gin.New()
	routes.SetupRoutes(r, handlers.NewSessionHandler(admin, nil), nil, adminSecret)
	return r, admin
}

func token(t *testing.T, key, role string, ttl time.Duration, method jwt.SigningMethod) string {
	t.Helper()
	claims := middleware.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

func do(r http.Handler, method, path, bearer string) int {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestPublicEndpoints(t *testing.T) {
	r, _ := newRouter(t, secret)
	require.Equal(t, http.StatusOK, do(r, http.MethodGet, "/healthz", ""))
	require.Equal(t, http.StatusOK, do(r, http.MethodGet, "/metrics", ""))
	// polling mode: webhook is not mounted
	require.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/integrations/telegram/webhook", ""))
}

func TestAdminAuth(t *testing.T) {
	r, _ := newRouter(t, secret)

	tests := []struct {
		name   string
		bearer string
		want   int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"garbage token", "not-a-jwt", http.StatusUnauthorized},
		{"wrong key", token(t, "other", "admin", time.Hour, jwt.SigningMethodHS256), http.StatusUnauthorized},
		{"expired", token(t, secret, "admin", -time.Hour, jwt.SigningMethodHS256), http.StatusUnauthorized},
		{"unknown role", token(t, secret, "root", time.Hour, jwt.SigningMethodHS256), http.StatusForbidden},
		{"viewer", token(t, secret, "viewer", time.Hour, jwt.SigningMethodHS256), http.StatusOK},
		{"admin", token(t, secret, "admin", time.Hour, jwt.SigningMethodHS512), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, do(r, http.MethodGet, "/admin/stats", tt.bearer))
		})
	}
}

func TestViewerIsReadOnly(t *testing.T) {
	r, admin := newRouter(t, secret)
	viewer := token(t, secret, "viewer", time.Hour, jwt.SigningMethodHS256)
	adm := token(t, secret, "admin", time.Hour, jwt.SigningMethodHS256)

	require.Equal(t, http.StatusOK, do(r, http.MethodGet, "/admin/sessions/5", viewer))
	require.Equal(t, http.StatusForbidden, do(r, http.MethodDelete, "/admin/sessions/5", viewer))
	require.Contains(t, admin.sessions, int64(5))

	require.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/admin/sessions/5", adm))
	require.NotContains(t, admin.sessions, int64(5))
}

func TestAdminDisabledWithoutSecret(t *testing.T) {
	r, _ := newRouter(t, "")
	require.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodGet, "/admin/stats", token(t, "any", "admin", time.Hour, jwt.SigningMethodHS256)))
}
