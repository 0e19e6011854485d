package services_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"airdropbot/internal/models"
	"airdropbot/internal/services"
)

var (
	channelReq = models.Requirement{ID: "channel", ChatID: -1001, Title: "Telegram Channel", Link: "https://t.me/chan"}
	groupReq   = models.Requirement{ID: "group", ChatID: -1002, Title: "Telegram Group", Link: "https://t.me/group"}
)

// fakeMembership answers per chat id; it is safe for concurrent use.
type fakeMembership struct {
	mu       sync.Mutex
	statuses map[int64]models.MembershipStatus
	errs     map[int64]error
	delay    time.Duration
	calls    atomic.Int32
}

func newFakeMembership(statuses map[int64]models.MembershipStatus) *fakeMembership {
	return &fakeMembership{statuses: statuses, errs: map[int64]error{}}
}

func (f *fakeMembership) set(chatID int64, st models.MembershipStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[chatID] = st
}

func (f *fakeMembership) fail(chatID int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[chatID] = err
}

func (f *fakeMembership) GetStatus(ctx context.Context, chatID, _ int64) (models.MembershipStatus, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return models.MembershipUnknown, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[chatID]; err != nil {
		return models.MembershipUnknown, err
	}
	st, ok := f.statuses[chatID]
	if !ok {
		return models.MembershipUnknown, nil
	}
	return st, nil
}

func TestCheckMembershipSatisfiedIffAllSatisfying(t *testing.T) {
	all := []models.MembershipStatus{
		models.MembershipMember, models.MembershipAdministrator, models.MembershipCreator,
		models.MembershipRestricted, models.MembershipLeft, models.MembershipKicked, models.MembershipUnknown,
	}
	for _, chStatus := range all {
		for _, grStatus := range all {
			fake := newFakeMembership(map[int64]models.MembershipStatus{
				channelReq.ChatID: chStatus,
				groupReq.ChatID:   grStatus,
			})
			svc := services.NewVerificationService(fake, []models.Requirement{channelReq, groupReq}, time.Second, nil)

			outcome, err := svc.CheckMembership(context.Background(), 1)
			require.NoError(t, err)

			var wantMissing []models.Requirement
			if !chStatus.Satisfies() {
				wantMissing = append(wantMissing, channelReq)
			}
			if !grStatus.Satisfies() {
				wantMissing = append(wantMissing, groupReq)
			}
			require.Equal(t, chStatus.Satisfies() && grStatus.Satisfies(), outcome.Satisfied, "%s/%s", chStatus, grStatus)
			require.Equal(t, wantMissing, outcome.Missing, "%s/%s", chStatus, grStatus)
		}
	}
}

func TestCheckMembershipErrorIsTransient(t *testing.T) {
	fake := newFakeMembership(map[int64]models.MembershipStatus{channelReq.ChatID: models.MembershipLeft})
	fake.fail(groupReq.ChatID, errors.New("telegram down"))
	svc := services.NewVerificationService(fake, []models.Requirement{channelReq, groupReq}, time.Second, nil)

	outcome, err := svc.CheckMembership(context.Background(), 1)
	require.ErrorIs(t, err, services.ErrTransientCheck)
	require.False(t, outcome.Satisfied)
	require.Empty(t, outcome.Missing)
}

func TestCheckMembershipTimeout(t *testing.T) {
	fake := newFakeMembership(map[int64]models.MembershipStatus{channelReq.ChatID: models.MembershipMember})
	fake.delay = time.Second
	svc := services.NewVerificationService(fake, []models.Requirement{channelReq}, 20*time.Millisecond, nil)

	started := time.Now()
	_, err := svc.CheckMembership(context.Background(), 1)
	require.ErrorIs(t, err, services.ErrTransientCheck)
	require.Less(t, time.Since(started), 500*time.Millisecond)
}

func TestCheckMembershipNoRequirements(t *testing.T) {
	svc := services.NewVerificationService(newFakeMembership(nil), nil, time.Second, nil)
	outcome, err := svc.CheckMembership(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, outcome.Satisfied)
}
