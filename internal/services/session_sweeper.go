package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"airdropbot/internal/metrics"
	"airdropbot/internal/repositories"
)

// SessionSweeper periodically disposes of abandoned and finished sessions.
type SessionSweeper struct {
	sessions  repositories.SessionRepository
	idle      time.Duration
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	log       *zap.Logger
}

func NewSessionSweeper(sessions repositories.SessionRepository, idle, retention, interval time.Duration, log *zap.Logger) *SessionSweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionSweeper{
		sessions:  sessions,
		idle:      idle,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		log:       log.Named("sweep"),
	}
}

// Run sweeps every interval until ctx is done.
func (s *SessionSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce removes non-terminal sessions idle longer than the idle timeout and
// terminal sessions older than the retention window.
// Удаление идёт без блокировки пользователя: обработчик, который уже загрузил
// сессию, может сохранить её обратно сразу после удаления. Такая сессия
// просто доживёт до следующего прохода.
func (s *SessionSweeper) SweepOnce(ctx context.Context) (idle, terminal int) {
	now := s.now()

	idle, err := s.sessions.DeleteIdle(ctx, now.Add(-s.idle))
	if err != nil {
		s.log.Warn("idle sweep failed", zap.Error(err))
	}
	metrics.ObserveSwept("idle", idle)

	terminal, err = s.sessions.DeleteTerminal(ctx, now.Add(-s.retention))
	if err != nil {
		s.log.Warn("terminal sweep failed", zap.Error(err))
	}
	metrics.ObserveSwept("terminal", terminal)

	if idle+terminal > 0 {
		s.log.Info("sessions swept", zap.Int("idle", idle), zap.Int("terminal", terminal))
	}
	return idle, terminal
}
