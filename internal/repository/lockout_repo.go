package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockoutRepository handles candidate lockout data operations.
type LockoutRepository struct {
	db *gorm.DB
}

// NewLockoutRepository creates a new LockoutRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *LockoutRepository: repository instance bound to db.
func NewLockoutRepository(db *gorm.DB) *LockoutRepository {
	return &LockoutRepository{db: db}
}

// WithTx returns a repository bound to the given transaction handle.
func (r *LockoutRepository) WithTx(tx *gorm.DB) *LockoutRepository {
	return &LockoutRepository{db: tx}
}

// GetByCandidate retrieves a candidate's lockout row.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - candidateID: candidate identifier.
// Returns:
//   - *domain.CandidateLockout: lockout record if found.
//   - error: gorm.ErrRecordNotFound if the candidate has no row yet.
func (r *LockoutRepository) GetByCandidate(ctx context.Context, candidateID string) (*domain.CandidateLockout, error) {
	var lockout domain.CandidateLockout
	if err := r.db.WithContext(ctx).First(&lockout, "candidate_id = ?", candidateID).Error; err != nil {
		return nil, err
	}
	return &lockout, nil
}

// GetOrCreate retrieves a candidate's lockout row, creating an unlocked
// default row if none exists.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - candidateID: candidate identifier.
// Returns:
//   - *domain.CandidateLockout: existing or freshly created record.
//   - error: non-nil if lookup or insert fails.
func (r *LockoutRepository) GetOrCreate(ctx context.Context, candidateID string) (*domain.CandidateLockout, error) {
	lockout, err := r.GetByCandidate(ctx, candidateID)
	if err == nil {
		return lockout, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	fresh := &domain.CandidateLockout{
		ID:          uuid.New().String(),
		CandidateID: candidateID,
	}
	// DoNothing absorbs a concurrent creator; re-read below wins either way.
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "candidate_id"}},
		DoNothing: true,
	}).Create(fresh).Error; err != nil {
		return nil, err
	}
	return r.GetByCandidate(ctx, candidateID)
}

// Update saves all fields of an existing lockout record.
func (r *LockoutRepository) Update(ctx context.Context, lockout *domain.CandidateLockout) error {
	return r.db.WithContext(ctx).Save(lockout).Error
}

// ListPendingUnlockRequests retrieves lockouts with an unresolved unlock
// request, oldest request first.
func (r *LockoutRepository) ListPendingUnlockRequests(ctx context.Context, limit, offset int) ([]domain.CandidateLockout, error) {
	var lockouts []domain.CandidateLockout
	if err := r.db.WithContext(ctx).
		Where("unlock_decision = ?", domain.UnlockDecisionPending).
		Order("unlock_requested_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&lockouts).Error; err != nil {
		return nil, err
	}
	return lockouts, nil
}
