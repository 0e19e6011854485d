package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"airdropbot/internal/metrics"
	"airdropbot/internal/models"
)

// VerificationService checks every configured membership requirement.
type VerificationService interface {
	CheckMembership(ctx context.Context, userID int64) (models.VerificationOutcome, error)
	Requirements() []models.Requirement
}

type verificationService struct {
	checker      MembershipChecker
	requirements []models.Requirement
	timeout      time.Duration
	log          *zap.Logger
}

func NewVerificationService(checker MembershipChecker, requirements []models.Requirement, timeout time.Duration, log *zap.Logger) VerificationService {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	reqs := make([]models.Requirement, len(requirements))
	copy(reqs, requirements)
	return &verificationService{checker: checker, requirements: reqs, timeout: timeout, log: log}
}

func (s *verificationService) Requirements() []models.Requirement {
	out := make([]models.Requirement, len(s.requirements))
	copy(out, s.requirements)
	return out
}

// CheckMembership опрашивает все чаты параллельно. Любая ошибка по любому чату
// даёт ErrTransientCheck целиком, а не частичный список недостающих задач.
func (s *verificationService) CheckMembership(ctx context.Context, userID int64) (models.VerificationOutcome, error) {
	statuses := make([]models.MembershipStatus, len(s.requirements))

	g, gctx := errgroup.WithContext(ctx)
	for i, req := range s.requirements {
		i, req := i, req
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, s.timeout)
			defer cancel()

			started := time.Now()
			st, err := s.checker.GetStatus(cctx, req.ChatID, userID)
			metrics.ObserveCheck("membership", started, err)
			if err != nil {
				return fmt.Errorf("requirement %s: %w", req.ID, err)
			}
			statuses[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Warn("membership check failed", zap.Int64("user_id", userID), zap.Error(err))
		return models.VerificationOutcome{}, fmt.Errorf("%w: %v", ErrTransientCheck, err)
	}

	outcome := models.VerificationOutcome{Satisfied: true}
	for i, req := range s.requirements {
		if !statuses[i].Satisfies() {
			outcome.Satisfied = false
			outcome.Missing = append(outcome.Missing, req)
		}
	}
	return outcome, nil
}
