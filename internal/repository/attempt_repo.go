package repository

import (
	"context"
	"time"

	"github.com/myoussoffi-svg/athena-portal-sub002/internal/domain"
	"gorm.io/gorm"
)

// AttemptRepository handles interview attempt data operations.
type AttemptRepository struct {
	db *gorm.DB
}

// NewAttemptRepository creates a new AttemptRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *AttemptRepository: repository instance bound to db.
func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// WithTx returns a repository bound to the given transaction handle.
func (r *AttemptRepository) WithTx(tx *gorm.DB) *AttemptRepository {
	return &AttemptRepository{db: tx}
}

// Create inserts a new attempt record. A gorm.ErrDuplicatedKey result means
// the candidate already holds the active-attempt slot.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - attempt: attempt record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *AttemptRepository) Create(ctx context.Context, attempt *domain.InterviewAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

// Update saves all fields of an existing attempt record.
func (r *AttemptRepository) Update(ctx context.Context, attempt *domain.InterviewAttempt) error {
	return r.db.WithContext(ctx).Save(attempt).Error
}

// GetByID retrieves an attempt by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: attempt ID.
// Returns:
//   - *domain.InterviewAttempt: attempt record if found.
//   - error: non-nil if lookup fails.
func (r *AttemptRepository) GetByID(ctx context.Context, id string) (*domain.InterviewAttempt, error) {
	var attempt domain.InterviewAttempt
	if err := r.db.WithContext(ctx).First(&attempt, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

// GetActiveByCandidate retrieves the candidate's single active attempt
// (status in_progress or processing), if any.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - candidateID: candidate identifier.
// Returns:
//   - *domain.InterviewAttempt: active attempt if found.
//   - error: gorm.ErrRecordNotFound if no active attempt exists.
func (r *AttemptRepository) GetActiveByCandidate(ctx context.Context, candidateID string) (*domain.InterviewAttempt, error) {
	var attempt domain.InterviewAttempt
	if err := r.db.WithContext(ctx).
		Where("candidate_id = ? AND status IN ?", candidateID,
			[]domain.AttemptStatus{domain.AttemptStatusInProgress, domain.AttemptStatusProcessing}).
		First(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

// ListStale retrieves in_progress attempts started before the cutoff, for
// the abandonment sweep.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - cutoff: attempts started before this instant are considered stale.
// Returns:
//   - []domain.InterviewAttempt: matching attempts.
//   - error: non-nil if the query fails.
func (r *AttemptRepository) ListStale(ctx context.Context, cutoff time.Time) ([]domain.InterviewAttempt, error) {
	var attempts []domain.InterviewAttempt
	if err := r.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", domain.AttemptStatusInProgress, cutoff).
		Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

// ListExpiredMedia retrieves attempts whose uploaded media has passed its
// retention deadline and has not yet been deleted.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - now: current time used as the expiry cutoff.
// Returns:
//   - []domain.InterviewAttempt: matching attempts.
//   - error: non-nil if the query fails.
func (r *AttemptRepository) ListExpiredMedia(ctx context.Context, now time.Time) ([]domain.InterviewAttempt, error) {
	var attempts []domain.InterviewAttempt
	if err := r.db.WithContext(ctx).
		Where("video_object_key <> '' AND video_deleted = ? AND video_expires_at IS NOT NULL AND video_expires_at < ?",
			false, now).
		Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

// ListByCandidate retrieves a candidate's attempts, newest first.
func (r *AttemptRepository) ListByCandidate(ctx context.Context, candidateID string, limit, offset int) ([]domain.InterviewAttempt, error) {
	var attempts []domain.InterviewAttempt
	if err := r.db.WithContext(ctx).
		Where("candidate_id = ?", candidateID).
		Order("started_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

// CountByStatus counts attempts by status.
func (r *AttemptRepository) CountByStatus(ctx context.Context, status domain.AttemptStatus) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.InterviewAttempt{}).
		Where("status = ?", status).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
