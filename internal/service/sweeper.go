package service

import (
	"context"
	"time"

	"github.com/myoussoffi-svg/athena-portal-sub002/internal/config"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/domain"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/logger"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/repository"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/storage"
	"gorm.io/gorm"
)

// SweeperService runs the periodic reconciliation jobs. Both sweeps are
// idempotent and safe to run concurrently with user-facing flows; per-item
// failures are logged and never abort the run.
type SweeperService struct {
	db       *gorm.DB
	attempts *repository.AttemptRepository
	lockouts *repository.LockoutRepository
	storage  storage.ObjectStorage
	cfg      *config.InterviewConfig
}

// NewSweeperService creates a new sweeper service.
func NewSweeperService(db *gorm.DB, objectStorage storage.ObjectStorage, cfg *config.InterviewConfig) *SweeperService {
	return &SweeperService{
		db:       db,
		attempts: repository.NewAttemptRepository(db),
		lockouts: repository.NewLockoutRepository(db),
		storage:  objectStorage,
		cfg:      cfg,
	}
}

// SweepAbandoned marks stale in_progress attempts abandoned and locks their
// candidates. This is the only path that releases the unique-active-attempt
// slot for a candidate who never submitted. Attempts already past
// submission (processing) are deliberately untouched.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int: number of attempts abandoned this run.
//   - error: non-nil only if the candidate listing itself fails.
func (s *SweeperService) SweepAbandoned(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.cfg.AbandonAfter)

	stale, err := s.attempts.ListStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	swept := 0
	for i := range stale {
		attempt := stale[i]
		if err := s.abandonOne(ctx, &attempt); err != nil {
			logger.With(logger.Fields{
				logger.FieldSweep:     "abandonment",
				logger.FieldAttemptID: attempt.ID,
			}).WithError(err).Errorf("Failed to abandon stale attempt")
			continue
		}
		swept++
	}

	if swept > 0 {
		logger.With(logger.Fields{
			logger.FieldSweep: "abandonment",
			logger.FieldCount: swept,
		}).Infof("Abandonment sweep finished")
	}
	return swept, nil
}

// abandonOne transitions one attempt to abandoned and locks the candidate,
// in a single transaction.
func (s *SweeperService) abandonOne(ctx context.Context, attempt *domain.InterviewAttempt) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Narrow the race with a concurrent Submit: only rows still
		// in_progress are flipped.
		res := tx.Model(&domain.InterviewAttempt{}).
			Where("id = ? AND status = ?", attempt.ID, domain.AttemptStatusInProgress).
			Updates(map[string]interface{}{
				"status":           domain.AttemptStatusAbandoned,
				"processing_stage": domain.StageNone,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Submitted between listing and locking; nothing to do.
			return nil
		}

		lockouts := s.lockouts.WithTx(tx)
		lockout, err := lockouts.GetOrCreate(ctx, attempt.CandidateID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		lockout.IsLocked = true
		lockout.LockReason = domain.LockReasonAbandoned
		lockout.LockedAt = &now
		lockout.LockedUntil = nil
		lockout.AbandonedAttempts++
		// A stale unlock request from a previous lock no longer applies.
		lockout.UnlockRequestText = ""
		lockout.UnlockRequestedAt = nil
		lockout.UnlockDecision = domain.UnlockDecisionNone

		return lockouts.Update(ctx, lockout)
	})
}

// SweepExpiredMedia deletes uploaded media past its retention deadline.
// Deletion is best-effort: the object may already be gone, so the row is
// marked deleted regardless of the storage call's outcome to avoid infinite
// retries on a permanently-missing object.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int: number of attempts marked deleted this run.
//   - error: non-nil only if the expired-media listing itself fails.
func (s *SweeperService) SweepExpiredMedia(ctx context.Context) (int, error) {
	expired, err := s.attempts.ListExpiredMedia(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	swept := 0
	for i := range expired {
		attempt := expired[i]

		if err := s.storage.Delete(ctx, attempt.VideoObjectKey); err != nil {
			logger.With(logger.Fields{
				logger.FieldSweep:     "media-expiry",
				logger.FieldAttemptID: attempt.ID,
			}).WithError(err).Warnf("Media delete failed, marking deleted anyway")
		}

		attempt.VideoDeleted = true
		if err := s.attempts.Update(ctx, &attempt); err != nil {
			logger.With(logger.Fields{
				logger.FieldSweep:     "media-expiry",
				logger.FieldAttemptID: attempt.ID,
			}).WithError(err).Errorf("Failed to mark media deleted")
			continue
		}
		swept++
	}

	if swept > 0 {
		logger.With(logger.Fields{
			logger.FieldSweep: "media-expiry",
			logger.FieldCount: swept,
		}).Infof("Media expiry sweep finished")
	}
	return swept, nil
}
