package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"airdropbot/internal/models"
	"airdropbot/internal/repositories"
)

func TestTransitionTableCoversEveryState(t *testing.T) {
	for _, st := range models.AllStates {
		_, ok := SessionTransitions[st]
		require.True(t, ok, "state %s missing from table", st)
	}
	require.Empty(t, SessionTransitions[models.StateCompleted])
	require.Equal(t, map[models.SessionState]bool{models.StateAwaitingVerification: true}, SessionTransitions[models.StateCancelled])

	for _, st := range []models.SessionState{
		models.StateAwaitingVerification, models.StateAwaitingSocialHandle, models.StateAwaitingWallet,
	} {
		require.True(t, canTransition(st, models.StateCancelled, SessionTransitions), st)
	}
	require.False(t, canTransition(models.StateAwaitingVerification, models.StateCompleted, SessionTransitions))
	require.False(t, canTransition(models.StateAwaitingSocialHandle, models.StateCompleted, SessionTransitions))
	require.False(t, canTransition("bogus", models.StateCancelled, SessionTransitions))
}

func TestIllegalTransitionIsNotPersisted(t *testing.T) {
	repo := repositories.NewMemorySessionRepository()
	e := NewConversationEngine(repo, nil, nil, nil, time.Second, nil)
	ctx := context.Background()

	sess := &models.Session{UserID: 3, State: models.StateCompleted, WalletAddress: "w"}
	require.NoError(t, repo.Save(ctx, sess))

	err := e.transition(ctx, sess, models.StateAwaitingWallet)
	require.ErrorIs(t, err, ErrIllegalTransition)
	require.Equal(t, models.StateCompleted, sess.State)

	stored, err := repo.Get(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, models.StateCompleted, stored.State)

	out, err := e.rejectOrFail(models.Event{UserID: 3}, sess.State, fmt.Errorf("wrap: %w", ErrIllegalTransition))
	require.NoError(t, err)
	require.Equal(t, models.OutboundUnexpected, out.Kind)

	_, err = e.rejectOrFail(models.Event{UserID: 3}, sess.State, errors.New("io"))
	require.Error(t, err)
}

func TestWalletIsImmutableOnceRecorded(t *testing.T) {
	repo := repositories.NewMemorySessionRepository()
	e := NewConversationEngine(repo, nil, nil, nil, time.Second, nil)
	ctx := context.Background()

	const first = "11111111111111111111111111111111"
	sess := &models.Session{UserID: 4, State: models.StateAwaitingWallet, WalletAddress: first}
	require.NoError(t, repo.Save(ctx, sess))

	out, err := e.handleWallet(ctx, sess, "22222222222222222222222222222222")
	require.NoError(t, err)
	require.Equal(t, models.OutboundUnexpected, out.Kind)

	stored, err := repo.Get(ctx, 4)
	require.NoError(t, err)
	require.Equal(t, first, stored.WalletAddress)
	require.Equal(t, models.StateAwaitingWallet, stored.State)
}

func TestUserLocksReleaseEntries(t *testing.T) {
	l := newUserLocks()
	unlock := l.Lock(1)
	unlock2 := l.Lock(2)
	require.Len(t, l.locks, 2)
	unlock()
	unlock2()
	require.Empty(t, l.locks)
}

type fakeDialer struct {
	sent  []*gomail.Message
	err   error
	delay time.Duration
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	d.sent = append(d.sent, m...)
	return d.err
}

func TestEmailClaimNotifier(t *testing.T) {
	d := &fakeDialer{}
	n := newEmailClaimNotifier(d, "bot@example.com", "ops@example.com", "Sakura")
	sess := &models.Session{
		UserID:        77,
		State:         models.StateCompleted,
		SocialHandle:  "<b>x</b>",
		WalletAddress: "11111111111111111111111111111111",
		UpdatedAt:     time.Date(2025, 7, 8, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, n.NotifyClaim(context.Background(), sess))
	require.Len(t, d.sent, 1)

	m := d.sent[0]
	require.Equal(t, []string{"ops@example.com"}, m.GetHeader("To"))
	require.Equal(t, []string{"[Sakura] New airdrop claim from user 77"}, m.GetHeader("Subject"))

	var body strings.Builder
	_, err := m.WriteTo(&body)
	require.NoError(t, err)
	require.Contains(t, body.String(), "&lt;b&gt;x&lt;/b&gt;")
}

func TestEmailClaimNotifierErrors(t *testing.T) {
	n := newEmailClaimNotifier(&fakeDialer{err: errors.New("smtp refused")}, "a@b", "c@d", "p")
	err := n.NotifyClaim(context.Background(), &models.Session{UserID: 1})
	require.ErrorContains(t, err, "smtp refused")

	slow := newEmailClaimNotifier(&fakeDialer{delay: time.Second}, "a@b", "c@d", "p")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, slow.NotifyClaim(ctx, &models.Session{UserID: 1}), context.DeadlineExceeded)
}
