package repositories

import (
	"context"
	"errors"
	"sync"
	"time"

	"airdropbot/internal/models"
)

var ErrInvalidSession = errors.New("invalid session")

// SessionRepository хранит по одной сессии на пользователя.
// Взаимное исключение по пользователю обеспечивает движок, а не хранилище.
type SessionRepository interface {
	// GetOrCreate returns the user's session, creating one in AWAITING_VERIFICATION
	// when none exists. created reports whether a new record was made.
	GetOrCreate(ctx context.Context, userID int64) (s *models.Session, created bool, err error)
	// Get returns nil, nil when the user has no session.
	Get(ctx context.Context, userID int64) (*models.Session, error)
	Save(ctx context.Context, s *models.Session) error
	Remove(ctx context.Context, userID int64) error
	// DeleteIdle removes non-terminal sessions not touched since before.
	DeleteIdle(ctx context.Context, before time.Time) (int, error)
	// DeleteTerminal removes terminal sessions finished before the cutoff.
	DeleteTerminal(ctx context.Context, before time.Time) (int, error)
	CountByState(ctx context.Context) (map[models.SessionState]int, error)
}

func validateSession(s *models.Session) error {
	if s == nil || s.UserID == 0 {
		return ErrInvalidSession
	}
	if !s.State.Valid() || s.State == models.StateIdle {
		return ErrInvalidSession
	}
	return nil
}

func newSession(userID int64, now time.Time) *models.Session {
	return &models.Session{
		UserID:    userID,
		State:     models.StateAwaitingVerification,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

type memorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[int64]*models.Session
	now      func() time.Time
}

// NewMemorySessionRepository: хранилище в памяти процесса (по умолчанию).
func NewMemorySessionRepository() SessionRepository {
	return &memorySessionRepository{
		sessions: make(map[int64]*models.Session),
		now:      time.Now,
	}
}

func (r *memorySessionRepository) GetOrCreate(_ context.Context, userID int64) (*models.Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[userID]; ok {
		return s.Clone(), false, nil
	}
	s := newSession(userID, r.now())
	r.sessions[userID] = s
	return s.Clone(), true, nil
}

func (r *memorySessionRepository) Get(_ context.Context, userID int64) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[userID].Clone(), nil
}

func (r *memorySessionRepository) Save(_ context.Context, s *models.Session) error {
	if err := validateSession(s); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.UserID] = s.Clone()
	return nil
}

func (r *memorySessionRepository) Remove(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
	return nil
}

func (r *memorySessionRepository) DeleteIdle(_ context.Context, before time.Time) (int, error) {
	return r.deleteWhere(func(s *models.Session) bool {
		return !s.State.Terminal() && s.UpdatedAt.Before(before)
	}), nil
}

func (r *memorySessionRepository) DeleteTerminal(_ context.Context, before time.Time) (int, error) {
	return r.deleteWhere(func(s *models.Session) bool {
		return s.State.Terminal() && s.UpdatedAt.Before(before)
	}), nil
}

func (r *memorySessionRepository) deleteWhere(match func(*models.Session) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if match(s) {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

func (r *memorySessionRepository) CountByState(_ context.Context) (map[models.SessionState]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[models.SessionState]int)
	for _, s := range r.sessions {
		out[s.State]++
	}
	return out, nil
}
