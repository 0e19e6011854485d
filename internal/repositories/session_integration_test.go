//go:build integration

package repositories_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"airdropbot/internal/repositories"
)

func TestPostgresSessionRepositoryContract(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL must be set for integration tests")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, repositories.EnsureSessionSchema(context.Background(), db))
	exerciseSessionRepository(t, repositories.NewPostgresSessionRepository(db), 900001)
}

func TestRedisSessionRepositoryContract(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR must be set for integration tests")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	exerciseSessionRepository(t, repositories.NewRedisSessionRepository(client, time.Hour, time.Minute), 900002)
}
