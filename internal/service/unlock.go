package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/myoussoffi-svg/athena-portal-sub002/internal/apierr"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/config"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/domain"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/repository"
	"gorm.io/gorm"
)

// UnlockService handles candidate unlock requests and admin decisions.
type UnlockService struct {
	lockouts *repository.LockoutRepository
	cfg      *config.InterviewConfig
}

// NewUnlockService creates a new unlock service.
func NewUnlockService(db *gorm.DB, cfg *config.InterviewConfig) *UnlockService {
	return &UnlockService{
		lockouts: repository.NewLockoutRepository(db),
		cfg:      cfg,
	}
}

// RequestUnlock files a textual appeal against the candidate's lock.
// Preconditions are checked in order: a lockout row exists, the candidate is
// locked, no request is pending, and cooldown locks must already have
// expired (they self-clear at the gate and are not appealable before then).
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - candidateID: authenticated candidate identifier.
//   - reason: free-text appeal, minimum length after trimming.
// Returns:
//   - error: validation or conflict error, nil on success.
func (s *UnlockService) RequestUnlock(ctx context.Context, candidateID, reason string) error {
	trimmed := strings.TrimSpace(reason)
	if utf8.RuneCountInString(trimmed) < s.cfg.MinUnlockReasonLen {
		return apierr.InvalidArgument("reason",
			fmt.Sprintf("reason must be at least %d characters", s.cfg.MinUnlockReasonLen))
	}

	lockout, err := s.lockouts.GetByCandidate(ctx, candidateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apierr.Conflict(apierr.CodeUnlockNotAllowed, "no lockout on file for candidate")
		}
		return err
	}

	if !lockout.IsLocked {
		return apierr.Conflict(apierr.CodeUnlockNotAllowed, "account is not locked")
	}
	if lockout.UnlockDecision == domain.UnlockDecisionPending {
		return apierr.Conflict(apierr.CodeRequestPending, "an unlock request is already pending")
	}
	if lockout.LockReason == domain.LockReasonCooldown && !lockout.CooldownExpired(time.Now().UTC()) {
		remaining := time.Until(*lockout.LockedUntil)
		hours := int(math.Ceil(remaining.Hours()))
		return apierr.Newf(http.StatusConflict, apierr.CodeCooldownActive,
			"cooldown still active, try again in %d hours", hours)
	}

	now := time.Now().UTC()
	lockout.UnlockRequestText = trimmed
	lockout.UnlockRequestedAt = &now
	lockout.UnlockDecision = domain.UnlockDecisionPending

	return s.lockouts.Update(ctx, lockout)
}

// Decide records an admin's verdict on a pending unlock request. Approval
// clears the lock; denial leaves it in place. There is no other way out of
// pending.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - candidateID: candidate whose request is being decided.
//   - approve: true to approve and unlock, false to deny.
// Returns:
//   - error: NOT_FOUND or conflict error, nil on success.
func (s *UnlockService) Decide(ctx context.Context, candidateID string, approve bool) error {
	lockout, err := s.lockouts.GetByCandidate(ctx, candidateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apierr.NotFound("no lockout on file for candidate")
		}
		return err
	}

	if lockout.UnlockDecision != domain.UnlockDecisionPending {
		return apierr.Conflict(apierr.CodeUnlockNotAllowed, "no pending unlock request")
	}

	if approve {
		lockout.UnlockDecision = domain.UnlockDecisionApproved
		lockout.IsLocked = false
		lockout.LockReason = domain.LockReasonNone
		lockout.LockedAt = nil
		lockout.LockedUntil = nil
	} else {
		lockout.UnlockDecision = domain.UnlockDecisionDenied
	}

	return s.lockouts.Update(ctx, lockout)
}

// ListPending returns unresolved unlock requests for admin review.
func (s *UnlockService) ListPending(ctx context.Context, limit, offset int) ([]domain.CandidateLockout, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.lockouts.ListPendingUnlockRequests(ctx, limit, offset)
}
