package repository

import (
	"context"

	"github.com/myoussoffi-svg/athena-portal-sub002/internal/domain"
	"gorm.io/gorm"
)

// TrackRepository handles interview track and version data operations.
type TrackRepository struct {
	db *gorm.DB
}

// NewTrackRepository creates a new TrackRepository.
func NewTrackRepository(db *gorm.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// WithTx returns a repository bound to the given transaction handle.
func (r *TrackRepository) WithTx(tx *gorm.DB) *TrackRepository {
	return &TrackRepository{db: tx}
}

// GetBySlug retrieves an active track by its slug.
func (r *TrackRepository) GetBySlug(ctx context.Context, slug string) (*domain.InterviewTrack, error) {
	var track domain.InterviewTrack
	if err := r.db.WithContext(ctx).First(&track, "slug = ? AND active = ?", slug, true).Error; err != nil {
		return nil, err
	}
	return &track, nil
}

// GetActiveVersion retrieves the currently-active prompt/evaluator version
// pair for a track.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - trackID: track identifier.
// Returns:
//   - *domain.TrackVersion: active version if configured.
//   - error: gorm.ErrRecordNotFound if the track has no active version.
func (r *TrackRepository) GetActiveVersion(ctx context.Context, trackID string) (*domain.TrackVersion, error) {
	var version domain.TrackVersion
	if err := r.db.WithContext(ctx).
		Where("track_id = ? AND is_active = ?", trackID, true).
		Order("created_at DESC").
		First(&version).Error; err != nil {
		return nil, err
	}
	return &version, nil
}

// GetVersionByID retrieves a track version by its ID.
func (r *TrackRepository) GetVersionByID(ctx context.Context, id string) (*domain.TrackVersion, error) {
	var version domain.TrackVersion
	if err := r.db.WithContext(ctx).First(&version, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &version, nil
}

// GetVersionByPromptVersion retrieves the track version an attempt was
// created against, for the pipeline to resolve its prompt set.
func (r *TrackRepository) GetVersionByPromptVersion(ctx context.Context, promptVersionID string) (*domain.TrackVersion, error) {
	var version domain.TrackVersion
	if err := r.db.WithContext(ctx).First(&version, "prompt_version_id = ?", promptVersionID).Error; err != nil {
		return nil, err
	}
	return &version, nil
}

// CreateTrack inserts a new track record.
func (r *TrackRepository) CreateTrack(ctx context.Context, track *domain.InterviewTrack) error {
	return r.db.WithContext(ctx).Create(track).Error
}

// CreateVersion inserts a new track version record.
func (r *TrackRepository) CreateVersion(ctx context.Context, version *domain.TrackVersion) error {
	return r.db.WithContext(ctx).Create(version).Error
}
