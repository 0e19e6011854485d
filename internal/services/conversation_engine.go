package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"airdropbot/internal/metrics"
	"airdropbot/internal/models"
	"airdropbot/internal/repositories"
)

// ClaimNotifier is told about every completed claim. Failures are only logged.
type ClaimNotifier interface {
	NotifyClaim(ctx context.Context, s *models.Session) error
}

// ConversationEngine: машина состояний одного пользователя.
// Каждое событие обрабатывается под личной блокировкой пользователя:
// загрузка → обработка → сохранение.
type ConversationEngine struct {
	sessions      repositories.SessionRepository
	verifier      VerificationService
	social        SocialChecker
	notifier      ClaimNotifier
	socialTimeout time.Duration

	locks    *userLocks
	notifyWG sync.WaitGroup
	now      func() time.Time
	log      *zap.Logger
}

func NewConversationEngine(
	sessions repositories.SessionRepository,
	verifier VerificationService,
	social SocialChecker,
	notifier ClaimNotifier,
	socialTimeout time.Duration,
	log *zap.Logger,
) *ConversationEngine {
	if social == nil {
		social = NewDisabledSocialChecker()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if socialTimeout <= 0 {
		socialTimeout = 5 * time.Second
	}
	return &ConversationEngine{
		sessions:      sessions,
		verifier:      verifier,
		social:        social,
		notifier:      notifier,
		socialTimeout: socialTimeout,
		locks:         newUserLocks(),
		now:           time.Now,
		log:           log,
	}
}

// Requirements returns the membership requirements shown in the checklist.
func (e *ConversationEngine) Requirements() []models.Requirement {
	return e.verifier.Requirements()
}

// SocialConfigured reports whether the social-handle step is part of the flow.
func (e *ConversationEngine) SocialConfigured() bool {
	return e.social.Configured()
}

// Handle processes one inbound event and returns the message to deliver.
// An error is returned only when the session store fails.
func (e *ConversationEngine) Handle(ctx context.Context, ev models.Event) (models.Outbound, error) {
	unlock := e.locks.Lock(ev.UserID)
	defer unlock()

	out, err := e.dispatch(ctx, ev)
	if err != nil {
		return models.Outbound{}, err
	}
	out.UserID = ev.UserID
	out.FirstName = ev.FirstName
	if out.ChatID == 0 {
		out.ChatID = ev.ChatID
	}
	if out.ChatID == 0 {
		// в личке chat_id совпадает с user_id
		out.ChatID = ev.UserID
	}
	metrics.ObserveEvent(string(ev.Kind), string(out.Kind))
	return out, nil
}

func (e *ConversationEngine) dispatch(ctx context.Context, ev models.Event) (models.Outbound, error) {
	switch ev.Kind {
	case models.EventStart:
		return e.handleStart(ctx, ev)
	case models.EventCancel:
		return e.handleCancel(ctx, ev)
	}

	sess, err := e.sessions.Get(ctx, ev.UserID)
	if err != nil {
		return models.Outbound{}, fmt.Errorf("load session %d: %w", ev.UserID, err)
	}
	if sess == nil {
		return e.unexpected(ev, models.StateIdle), nil
	}
	if ev.ChatID != 0 {
		sess.ChatID = ev.ChatID
	}

	switch {
	case sess.State == models.StateAwaitingVerification && ev.Kind == models.EventVerify:
		return e.handleVerify(ctx, sess)
	case sess.State == models.StateAwaitingSocialHandle && ev.Kind == models.EventText:
		return e.handleSocialHandle(ctx, sess, ev.Text)
	case sess.State == models.StateAwaitingWallet && ev.Kind == models.EventText:
		return e.handleWallet(ctx, sess, ev.Text)
	case sess.State == models.StateCompleted && ev.Kind == models.EventText:
		return models.Outbound{Kind: models.OutboundAlready, ChatID: sess.ChatID}, nil
	}
	return e.unexpected(ev, sess.State), nil
}

func (e *ConversationEngine) unexpected(ev models.Event, state models.SessionState) models.Outbound {
	e.log.Debug("event has no transition",
		zap.Int64("user_id", ev.UserID),
		zap.String("event", string(ev.Kind)),
		zap.String("state", string(state)),
	)
	return models.Outbound{Kind: models.OutboundUnexpected}
}

func (e *ConversationEngine) handleStart(ctx context.Context, ev models.Event) (models.Outbound, error) {
	checklist := models.Outbound{Kind: models.OutboundChecklist, Missing: e.verifier.Requirements()}

	sess, created, err := e.sessions.GetOrCreate(ctx, ev.UserID)
	if err != nil {
		return models.Outbound{}, fmt.Errorf("start session %d: %w", ev.UserID, err)
	}
	if created {
		e.log.Info("session created", zap.Int64("user_id", ev.UserID))
		metrics.ObserveTransition(string(models.StateIdle), string(models.StateAwaitingVerification))
		if ev.ChatID != 0 {
			sess.ChatID = ev.ChatID
			sess.UpdatedAt = e.now()
			if err := e.sessions.Save(ctx, sess); err != nil {
				return models.Outbound{}, fmt.Errorf("start session %d: %w", ev.UserID, err)
			}
		}
		return checklist, nil
	}

	switch sess.State {
	case models.StateCompleted:
		return models.Outbound{Kind: models.OutboundAlready}, nil
	case models.StateCancelled:
		// новая попытка после отмены, чистая сессия
		fresh := &models.Session{UserID: sess.UserID, ChatID: sess.ChatID, State: models.StateCancelled, CreatedAt: e.now()}
		if ev.ChatID != 0 {
			fresh.ChatID = ev.ChatID
		}
		if err := e.transition(ctx, fresh, models.StateAwaitingVerification); err != nil {
			return e.rejectOrFail(ev, fresh.State, err)
		}
		return checklist, nil
	case models.StateAwaitingSocialHandle:
		// проверка уже пройдена, кнопка Verify здесь не сработает
		return models.Outbound{Kind: models.OutboundPrompt, Prompt: models.PromptSocialHandle}, nil
	case models.StateAwaitingWallet:
		return models.Outbound{Kind: models.OutboundPrompt, Prompt: models.PromptWalletAddress}, nil
	default:
		// ещё не проверен: повторяем список задач
		return checklist, nil
	}
}

func (e *ConversationEngine) handleCancel(ctx context.Context, ev models.Event) (models.Outbound, error) {
	cancelled := models.Outbound{Kind: models.OutboundCancelled}

	sess, err := e.sessions.Get(ctx, ev.UserID)
	if err != nil {
		return models.Outbound{}, fmt.Errorf("load session %d: %w", ev.UserID, err)
	}
	if sess == nil || sess.State.Terminal() {
		return cancelled, nil
	}
	if err := e.transition(ctx, sess, models.StateCancelled); err != nil {
		return e.rejectOrFail(ev, sess.State, err)
	}
	e.log.Info("session cancelled", zap.Int64("user_id", ev.UserID))
	return cancelled, nil
}

// handleVerify re-queries live membership on every attempt; nothing is cached.
func (e *ConversationEngine) handleVerify(ctx context.Context, sess *models.Session) (models.Outbound, error) {
	outcome, err := e.verifier.CheckMembership(ctx, sess.UserID)
	if err != nil {
		e.log.Warn("membership verification unavailable", zap.Int64("user_id", sess.UserID), zap.Error(err))
		if err := e.transition(ctx, sess, models.StateAwaitingVerification); err != nil {
			return e.rejectOrFail(models.Event{UserID: sess.UserID, Kind: models.EventVerify}, sess.State, err)
		}
		return models.Outbound{Kind: models.OutboundInvalid, Reason: models.ReasonTransientFailure}, nil
	}

	if !outcome.Satisfied {
		if err := e.transition(ctx, sess, models.StateAwaitingVerification); err != nil {
			return e.rejectOrFail(models.Event{UserID: sess.UserID, Kind: models.EventVerify}, sess.State, err)
		}
		return models.Outbound{Kind: models.OutboundMissing, Missing: outcome.Missing}, nil
	}

	next, prompt := models.StateAwaitingWallet, models.PromptWalletAddress
	if e.social.Configured() {
		next, prompt = models.StateAwaitingSocialHandle, models.PromptSocialHandle
	}
	if err := e.transition(ctx, sess, next); err != nil {
		return e.rejectOrFail(models.Event{UserID: sess.UserID, Kind: models.EventVerify}, sess.State, err)
	}
	return models.Outbound{Kind: models.OutboundPrompt, Prompt: prompt}, nil
}

// handleSocialHandle: соцсеть необязательна, любой сбой пропускает шаг дальше.
func (e *ConversationEngine) handleSocialHandle(ctx context.Context, sess *models.Session, text string) (models.Outbound, error) {
	ev := models.Event{UserID: sess.UserID, Kind: models.EventText}
	handle := NormalizeHandle(text)

	var (
		result HandleResult
		err    error
	)
	if !e.social.Configured() {
		err = ErrSocialUnavailable
	} else {
		cctx, cancel := context.WithTimeout(ctx, e.socialTimeout)
		started := time.Now()
		result, err = e.social.ResolveHandle(cctx, handle)
		cancel()
		metrics.ObserveCheck("social", started, err)
	}

	switch {
	case err != nil:
		e.log.Warn("social check degraded, skipping step",
			zap.Int64("user_id", sess.UserID), zap.String("handle", handle), zap.Error(err))
		if err := e.transition(ctx, sess, models.StateAwaitingWallet); err != nil {
			return e.rejectOrFail(ev, sess.State, err)
		}
		return models.Outbound{Kind: models.OutboundPrompt, Prompt: models.PromptWalletAddress, Degraded: true}, nil

	case result == HandleFound:
		sess.SocialHandle = handle
		if err := e.transition(ctx, sess, models.StateAwaitingWallet); err != nil {
			return e.rejectOrFail(ev, sess.State, err)
		}
		return models.Outbound{Kind: models.OutboundPrompt, Prompt: models.PromptWalletAddress}, nil

	default:
		if err := e.transition(ctx, sess, models.StateAwaitingSocialHandle); err != nil {
			return e.rejectOrFail(ev, sess.State, err)
		}
		return models.Outbound{Kind: models.OutboundInvalid, Reason: models.ReasonHandleNotFound}, nil
	}
}

// handleWallet is the only step whose failure never advances the flow.
func (e *ConversationEngine) handleWallet(ctx context.Context, sess *models.Session, text string) (models.Outbound, error) {
	ev := models.Event{UserID: sess.UserID, Kind: models.EventText}
	addr := strings.TrimSpace(text)

	if !ValidateWalletAddress(addr) {
		if err := e.transition(ctx, sess, models.StateAwaitingWallet); err != nil {
			return e.rejectOrFail(ev, sess.State, err)
		}
		return models.Outbound{Kind: models.OutboundInvalid, Reason: models.ReasonBadWalletFormat}, nil
	}

	if sess.WalletAddress != "" {
		return e.rejectOrFail(ev, sess.State, fmt.Errorf("%w: wallet already recorded", ErrIllegalTransition))
	}
	sess.WalletAddress = addr
	if err := e.transition(ctx, sess, models.StateCompleted); err != nil {
		return e.rejectOrFail(ev, sess.State, err)
	}
	e.log.Info("claim completed", zap.Int64("user_id", sess.UserID), zap.String("wallet", addr))
	e.notify(sess.Clone())
	return models.Outbound{Kind: models.OutboundConfirmation}, nil
}

func (e *ConversationEngine) notify(sess *models.Session) {
	if e.notifier == nil {
		return
	}
	e.notifyWG.Add(1)
	go func() {
		defer e.notifyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := e.notifier.NotifyClaim(ctx, sess); err != nil {
			e.log.Warn("claim notification failed", zap.Int64("user_id", sess.UserID), zap.Error(err))
		}
	}()
}

// WaitNotifications blocks until every claim notification already started
// has finished. Each one is bounded by its own 30s timeout.
func (e *ConversationEngine) WaitNotifications() {
	e.notifyWG.Wait()
}

// transition checks the move against SessionTransitions, then persists it.
// On any error the caller's copy of the session keeps its old state.
func (e *ConversationEngine) transition(ctx context.Context, sess *models.Session, to models.SessionState) error {
	from := sess.State
	if !canTransition(from, to, SessionTransitions) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}

	next := sess.Clone()
	next.State = to
	next.UpdatedAt = e.now()
	if next.CreatedAt.IsZero() {
		next.CreatedAt = next.UpdatedAt
	}
	if err := e.sessions.Save(ctx, next); err != nil {
		return fmt.Errorf("save session %d: %w", sess.UserID, err)
	}
	*sess = *next

	if from != to {
		metrics.ObserveTransition(string(from), string(to))
		e.log.Info("session transition",
			zap.Int64("user_id", sess.UserID),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
	}
	return nil
}

// rejectOrFail turns an illegal transition into an "unexpected input" reply;
// storage failures bubble up to the dispatcher.
func (e *ConversationEngine) rejectOrFail(ev models.Event, state models.SessionState, err error) (models.Outbound, error) {
	if errors.Is(err, ErrIllegalTransition) {
		e.log.Error("rejected transition",
			zap.Int64("user_id", ev.UserID),
			zap.String("event", string(ev.Kind)),
			zap.String("state", string(state)),
			zap.Error(err),
		)
		return models.Outbound{Kind: models.OutboundUnexpected}, nil
	}
	return models.Outbound{}, err
}

// Session returns a copy of the user's session, or nil.
func (e *ConversationEngine) Session(ctx context.Context, userID int64) (*models.Session, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()
	return e.sessions.Get(ctx, userID)
}

// Remove disposes of a session explicitly (admin action).
func (e *ConversationEngine) Remove(ctx context.Context, userID int64) error {
	unlock := e.locks.Lock(userID)
	defer unlock()
	if err := e.sessions.Remove(ctx, userID); err != nil {
		return err
	}
	e.log.Info("session removed", zap.Int64("user_id", userID))
	return nil
}

// Stats counts stored sessions by state.
func (e *ConversationEngine) Stats(ctx context.Context) (map[models.SessionState]int, error) {
	return e.sessions.CountByState(ctx)
}

// userLocks: мьютекс на пользователя; запись удаляется, когда её никто не держит.
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[int64]*userLock)}
}

func (l *userLocks) Lock(userID int64) (unlock func()) {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}
