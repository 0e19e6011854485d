package services_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"airdropbot/internal/services"
)

func newTwitterServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestTwitterCheckerResolveHandle(t *testing.T) {
	srv := newTwitterServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-bearer", r.Header.Get("Authorization"))
		name := strings.TrimPrefix(r.URL.Path, "/2/users/by/username/")
		w.Header().Set("Content-Type", "application/json")
		switch name {
		case "validhandle":
			_, _ = w.Write([]byte(`{"data":{"id":"1","name":"Valid","username":"validhandle"}}`))
		case "ghost":
			_, _ = w.Write([]byte(`{"errors":[{"title":"Not Found Error","detail":"Could not find user with username: [ghost]."}]}`))
		case "limited":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})

	checker := services.NewTwitterChecker(services.TwitterClientConfig{
		BaseURL:     srv.URL,
		BearerToken: "test-bearer",
		Timeout:     time.Second,
	}, zap.NewNop())
	require.True(t, checker.Configured())

	ctx := context.Background()

	res, err := checker.ResolveHandle(ctx, "@validhandle ")
	require.NoError(t, err)
	require.Equal(t, services.HandleFound, res)

	res, err = checker.ResolveHandle(ctx, "ghost")
	require.NoError(t, err)
	require.Equal(t, services.HandleNotFound, res)

	_, err = checker.ResolveHandle(ctx, "limited")
	require.Error(t, err)

	_, err = checker.ResolveHandle(ctx, "boom")
	require.Error(t, err)
}

func TestTwitterCheckerRejectsMalformedHandleLocally(t *testing.T) {
	var calls atomic.Int32
	srv := newTwitterServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})
	checker := services.NewTwitterChecker(services.TwitterClientConfig{BaseURL: srv.URL, BearerToken: "x"}, nil)

	for _, h := range []string{"", "@", "has space", "way_too_long_handle_here", "bad-char"} {
		res, err := checker.ResolveHandle(context.Background(), h)
		require.NoError(t, err)
		require.Equal(t, services.HandleNotFound, res, h)
	}
	require.Zero(t, calls.Load())
}

func TestTwitterCheckerClientCredentials(t *testing.T) {
	srv := newTwitterServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/oauth2/token":
			user, pass, ok := r.BasicAuth()
			require.True(t, ok)
			require.Equal(t, "key", user)
			require.Equal(t, "secret", pass)
			_, _ = w.Write([]byte(`{"token_type":"bearer","access_token":"issued"}`))
		default:
			require.Equal(t, "Bearer issued", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"data":{"id":"7","username":"someone"}}`))
		}
	})

	checker := services.NewTwitterChecker(services.TwitterClientConfig{
		BaseURL:   srv.URL,
		APIKey:    "key",
		APISecret: "secret",
	}, nil)

	res, err := checker.ResolveHandle(context.Background(), "someone")
	require.NoError(t, err)
	require.Equal(t, services.HandleFound, res)
}

func TestTwitterCheckerHonoursContext(t *testing.T) {
	srv := newTwitterServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	checker := services.NewTwitterChecker(services.TwitterClientConfig{BaseURL: srv.URL, BearerToken: "x"}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := checker.ResolveHandle(ctx, "slowpoke")
	require.Error(t, err)
}

func TestDisabledSocialChecker(t *testing.T) {
	checker := services.NewDisabledSocialChecker()
	require.False(t, checker.Configured())
	_, err := checker.ResolveHandle(context.Background(), "anyone")
	require.ErrorIs(t, err, services.ErrSocialUnavailable)
}
