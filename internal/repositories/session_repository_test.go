package repositories_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"airdropbot/internal/models"
	"airdropbot/internal/repositories"
)

// exerciseSessionRepository runs the contract shared by every store.
func exerciseSessionRepository(t *testing.T, repo repositories.SessionRepository, userID int64) {
	t.Helper()
	ctx := context.Background()
	t.Cleanup(func() { _ = repo.Remove(ctx, userID) })

	s, err := repo.Get(ctx, userID)
	require.NoError(t, err)
	require.Nil(t, s)

	s, created, err := repo.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, models.StateAwaitingVerification, s.State)

	again, created, err := repo.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, s.UserID, again.UserID)

	s.State = models.StateAwaitingWallet
	s.SocialHandle = "sakura"
	s.UpdatedAt = time.Now()
	require.NoError(t, repo.Save(ctx, s))

	got, err := repo.Get(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, models.StateAwaitingWallet, got.State)
	require.Equal(t, "sakura", got.SocialHandle)

	require.NoError(t, repo.Remove(ctx, userID))
	got, err = repo.Get(ctx, userID)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestMemorySessionRepositoryContract(t *testing.T) {
	exerciseSessionRepository(t, repositories.NewMemorySessionRepository(), 42)
}

func TestMemorySessionRepositoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewMemorySessionRepository()

	s, _, err := repo.GetOrCreate(ctx, 7)
	require.NoError(t, err)
	s.State = models.StateCompleted

	stored, err := repo.Get(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, models.StateAwaitingVerification, stored.State)
}

func TestMemorySessionRepositoryRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewMemorySessionRepository()

	require.ErrorIs(t, repo.Save(ctx, nil), repositories.ErrInvalidSession)
	require.ErrorIs(t, repo.Save(ctx, &models.Session{UserID: 1, State: "bogus"}), repositories.ErrInvalidSession)
	require.ErrorIs(t, repo.Save(ctx, &models.Session{UserID: 1, State: models.StateIdle}), repositories.ErrInvalidSession)
}

func TestMemorySessionRepositorySweeps(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewMemorySessionRepository()
	old := time.Now().Add(-2 * time.Hour)

	for id, st := range map[int64]models.SessionState{
		1: models.StateAwaitingVerification,
		2: models.StateAwaitingWallet,
		3: models.StateCompleted,
		4: models.StateCancelled,
	} {
		require.NoError(t, repo.Save(ctx, &models.Session{UserID: id, State: st, CreatedAt: old, UpdatedAt: old}))
	}
	require.NoError(t, repo.Save(ctx, &models.Session{UserID: 5, State: models.StateAwaitingWallet, UpdatedAt: time.Now()}))

	cutoff := time.Now().Add(-time.Hour)
	n, err := repo.DeleteIdle(ctx, cutoff)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	counts, err := repo.CountByState(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, counts[models.StateCompleted])
	require.Equal(t, 1, counts[models.StateAwaitingWallet])

	n, err = repo.DeleteTerminal(ctx, cutoff)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	counts, err = repo.CountByState(ctx)
	require.NoError(t, err)
	require.Equal(t, map[models.SessionState]int{models.StateAwaitingWallet: 1}, counts)
}
