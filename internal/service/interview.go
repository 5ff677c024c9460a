package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/apierr"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/config"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/domain"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/events"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/logger"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/repository"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/storage"
	"gorm.io/gorm"
)

// InterviewService owns the attempt lifecycle: initialization behind the
// lockout gate, submission, and status queries.
type InterviewService struct {
	db         *gorm.DB
	attempts   *repository.AttemptRepository
	lockouts   *repository.LockoutRepository
	tracks     *repository.TrackRepository
	storage    storage.ObjectStorage
	dispatcher *events.Dispatcher
	cfg        *config.InterviewConfig
}

// NewInterviewService creates a new interview service.
// Parameters:
//   - db: GORM handle used for transactions.
//   - objectStorage: presigning and verification of uploaded media.
//   - dispatcher: event dispatcher the pipeline listens on.
//   - cfg: attempt-lifecycle configuration.
// Returns:
//   - *InterviewService: initialized service.
func NewInterviewService(
	db *gorm.DB,
	objectStorage storage.ObjectStorage,
	dispatcher *events.Dispatcher,
	cfg *config.InterviewConfig,
) *InterviewService {
	return &InterviewService{
		db:         db,
		attempts:   repository.NewAttemptRepository(db),
		lockouts:   repository.NewLockoutRepository(db),
		tracks:     repository.NewTrackRepository(db),
		storage:    objectStorage,
		dispatcher: dispatcher,
		cfg:        cfg,
	}
}

// InitializeResult is returned to the client to begin recording.
type InitializeResult struct {
	AttemptID          string            `json:"attempt_id"`
	AttemptNumber      int               `json:"attempt_number"`
	UploadURL          string            `json:"upload_url"`
	UploadURLExpiresAt time.Time         `json:"upload_url_expires_at"`
	Prompts            domain.PromptList `json:"prompts"`
}

// lockedError builds the structured LOCKED rejection from a lockout row.
func lockedError(lockout *domain.CandidateLockout) *apierr.Error {
	e := apierr.Conflict(apierr.CodeLocked, "candidate is locked out of new attempts")
	e = e.WithDetail("reason", string(lockout.LockReason))
	e = e.WithDetail("unlock_request_allowed", lockout.UnlockRequestAllowed())
	e = e.WithDetail("request_pending", lockout.UnlockDecision == domain.UnlockDecisionPending)
	if lockout.LockedUntil != nil {
		e = e.WithDetail("locked_until", lockout.LockedUntil.UTC().Format(time.RFC3339))
	}
	return e
}

// errActiveAttempt signals that the partial unique index rejected the insert.
var errActiveAttempt = errors.New("active attempt exists")

// Initialize runs the lockout gate, claims the next attempt number, creates
// the attempt row, and issues the upload credential.
//
// The gate check, counter increment, and attempt insert run in one
// transaction; the partial unique index is the final arbiter when two calls
// race, and the loser's counter increment rolls back with the insert.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - candidateID: authenticated candidate identifier.
//   - trackSlug: interview track to start.
// Returns:
//   - *InitializeResult: attempt identifiers, upload credential, prompts.
//   - error: LOCKED, IN_PROGRESS, NOT_FOUND, or internal.
func (s *InterviewService) Initialize(ctx context.Context, candidateID, trackSlug string) (*InitializeResult, error) {
	now := time.Now().UTC()

	var attempt *domain.InterviewAttempt
	var version *domain.TrackVersion

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lockouts := s.lockouts.WithTx(tx)

		lockout, err := lockouts.GetOrCreate(ctx, candidateID)
		if err != nil {
			return err
		}

		if lockout.IsLocked {
			if lockout.LockReason == domain.LockReasonCooldown && lockout.CooldownExpired(now) {
				// Expired cooldowns self-clear on the next initialization.
				lockout.IsLocked = false
				lockout.LockReason = domain.LockReasonNone
				lockout.LockedAt = nil
				lockout.LockedUntil = nil
			} else {
				return lockedError(lockout)
			}
		}

		lockout.TotalAttempts++
		if err := lockouts.Update(ctx, lockout); err != nil {
			return err
		}

		track, err := s.tracks.WithTx(tx).GetBySlug(ctx, trackSlug)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apierr.NotFound("interview track not found")
			}
			return err
		}

		version, err = s.tracks.WithTx(tx).GetActiveVersion(ctx, track.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apierr.NotFound("no active version configured for track")
			}
			return err
		}

		attemptID := uuid.New().String()
		attempt = &domain.InterviewAttempt{
			ID:                 attemptID,
			CandidateID:        candidateID,
			AttemptNumber:      lockout.TotalAttempts,
			Status:             domain.AttemptStatusInProgress,
			ProcessingStage:    domain.StageUploadPending,
			TrackSlug:          trackSlug,
			PromptVersionID:    version.PromptVersionID,
			EvaluatorVersionID: version.EvaluatorVersionID,
			VideoObjectKey:     fmt.Sprintf("interviews/%s/%s.webm", candidateID, attemptID),
			StartedAt:          now,
		}
		if err := s.attempts.WithTx(tx).Create(ctx, attempt); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errActiveAttempt
			}
			return err
		}

		return nil
	})

	if errors.Is(err, errActiveAttempt) {
		return nil, s.activeAttemptConflict(ctx, candidateID)
	}
	if err != nil {
		return nil, err
	}

	contentType := "video/webm"
	if len(s.cfg.AllowedContentTypes) > 0 {
		contentType = s.cfg.AllowedContentTypes[0]
	}
	uploadURL, expiresAt, err := s.storage.PresignPut(ctx, attempt.VideoObjectKey, contentType, s.cfg.UploadURLTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}

	return &InitializeResult{
		AttemptID:          attempt.ID,
		AttemptNumber:      attempt.AttemptNumber,
		UploadURL:          uploadURL,
		UploadURLExpiresAt: expiresAt,
		Prompts:            version.Prompts,
	}, nil
}

// activeAttemptConflict converts an insert-uniqueness violation into the
// 409 IN_PROGRESS response carrying the existing active attempt's ID.
func (s *InterviewService) activeAttemptConflict(ctx context.Context, candidateID string) *apierr.Error {
	e := apierr.Conflict(apierr.CodeInProgress, "an interview attempt is already in progress")
	existing, err := s.attempts.GetActiveByCandidate(ctx, candidateID)
	if err != nil {
		// The active attempt may have just reached a terminal status; the
		// conflict response stands either way.
		logger.CtxWarn(ctx, "Active attempt lookup after conflict failed: %v", err)
		return e
	}
	return e.WithDetail("existing_attempt_id", existing.ID)
}

// loadOwnedAttempt fetches an attempt and checks it belongs to the caller.
// Foreign attempts are reported as not-found so existence never leaks;
// unexpected store failures stay internal errors.
func (s *InterviewService) loadOwnedAttempt(ctx context.Context, candidateID, attemptID string) (*domain.InterviewAttempt, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.NotFound("attempt not found")
		}
		return nil, apierr.Internal(err)
	}
	if attempt.CandidateID != candidateID {
		return nil, apierr.NotFound("attempt not found")
	}
	return attempt, nil
}

// SegmentBoundary is the client-reported slice of the recording covering one
// question.
type SegmentBoundary struct {
	PromptID string `json:"prompt_id"`
	StartMs  int64  `json:"start_ms"`
	EndMs    int64  `json:"end_ms"`
}

// SubmitResult points the client at the status endpoint to poll.
type SubmitResult struct {
	StatusURL string `json:"status_url"`
}

// Submit validates the uploaded artifact, computes the integrity verdict,
// transitions the attempt to processing, and enqueues the pipeline event.
// The database update commits before the event is published, since the
// pipeline re-reads the attempt row.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - candidateID: authenticated candidate identifier.
//   - attemptID: attempt to submit.
//   - boundaries: per-question segment boundaries.
//   - integrityLog: optional client-collected proctoring log.
// Returns:
//   - *SubmitResult: status URL for polling.
//   - error: NOT_FOUND, ALREADY_SUBMITTED, UPLOAD_INVALID, validation, or internal.
func (s *InterviewService) Submit(ctx context.Context, candidateID, attemptID string, boundaries []SegmentBoundary, integrityLog *IntegrityLog) (*SubmitResult, error) {
	if len(boundaries) == 0 {
		return nil, apierr.InvalidArgument("segments", "at least one segment boundary is required")
	}
	for i, b := range boundaries {
		if b.PromptID == "" {
			return nil, apierr.InvalidArgument("segments", fmt.Sprintf("segment %d is missing prompt_id", i))
		}
		if b.EndMs <= b.StartMs {
			return nil, apierr.InvalidArgument("segments", fmt.Sprintf("segment %d has a non-positive duration", i))
		}
	}

	attempt, err := s.loadOwnedAttempt(ctx, candidateID, attemptID)
	if err != nil {
		return nil, err
	}

	if attempt.Status != domain.AttemptStatusInProgress {
		e := apierr.New(http.StatusBadRequest, apierr.CodeAlreadySubmitted, "attempt has already been submitted")
		return nil, e.WithDetail("status", string(attempt.Status))
	}

	if err := s.verifyUpload(ctx, attempt.VideoObjectKey); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	expiresAt := now.Add(s.cfg.MediaRetention)

	attempt.Status = domain.AttemptStatusProcessing
	attempt.ProcessingStage = domain.StageUploadVerified
	attempt.SubmittedAt = &now
	attempt.VideoExpiresAt = &expiresAt
	attempt.IntegrityStatus = ComputeIntegrityVerdict(integrityLog, s.cfg.MaxTimeOutsideMs, s.cfg.MaxViolations)
	if integrityLog != nil {
		raw, err := json.Marshal(integrityLog)
		if err != nil {
			return nil, apierr.InvalidArgument("integrity_log", "integrity log is not serializable")
		}
		attempt.IntegrityLog = domain.RawJSON(raw)
	}

	segments := make(domain.SegmentList, 0, len(boundaries))
	for _, b := range boundaries {
		segments = append(segments, domain.Segment{
			PromptID: b.PromptID,
			StartMs:  b.StartMs,
			EndMs:    b.EndMs,
		})
	}
	attempt.Segments = segments

	if err := s.attempts.Update(ctx, attempt); err != nil {
		return nil, err
	}

	if err := s.dispatcher.Publish(ctx, events.EventInterviewSubmitted, events.SubmittedPayload{AttemptID: attempt.ID}); err != nil {
		// The row already says processing; surfacing the failure lets ops
		// replay the event rather than leaving the client in the dark.
		logger.CtxError(ctx, "Failed to enqueue pipeline event for attempt %s: %v", attempt.ID, err)
		return nil, err
	}

	return &SubmitResult{
		StatusURL: fmt.Sprintf("/api/v1/interviews/attempts/%s/status", attempt.ID),
	}, nil
}

// verifyUpload re-checks the uploaded object server-side: existence, size
// bounds, and content-type allow-list. Failures are client-correctable 400s.
func (s *InterviewService) verifyUpload(ctx context.Context, key string) error {
	info, err := s.storage.Head(ctx, key)
	if err != nil {
		e := apierr.New(http.StatusBadRequest, apierr.CodeUploadInvalid, "uploaded media not found")
		return e.WithDetail("field", "video")
	}

	if info.Size < s.cfg.MinVideoBytes || info.Size > s.cfg.MaxVideoBytes {
		e := apierr.Newf(http.StatusBadRequest, apierr.CodeUploadInvalid,
			"uploaded media size %d is outside the allowed range [%d, %d]",
			info.Size, s.cfg.MinVideoBytes, s.cfg.MaxVideoBytes)
		return e.WithDetail("field", "video").WithDetail("size", info.Size)
	}

	allowed := false
	for _, ct := range s.cfg.AllowedContentTypes {
		if info.ContentType == ct {
			allowed = true
			break
		}
	}
	if !allowed {
		e := apierr.Newf(http.StatusBadRequest, apierr.CodeUploadInvalid,
			"content type %q is not allowed", info.ContentType)
		return e.WithDetail("field", "video").WithDetail("content_type", info.ContentType)
	}

	return nil
}

// StatusResult surfaces an attempt's progress and, once terminal, its
// outcome.
type StatusResult struct {
	AttemptID       string                 `json:"attempt_id"`
	Status          domain.AttemptStatus   `json:"status"`
	ProcessingStage domain.ProcessingStage `json:"processing_stage,omitempty"`
	IntegrityStatus domain.IntegrityStatus `json:"integrity_status,omitempty"`
	Feedback        json.RawMessage        `json:"feedback,omitempty"`
	HireInclination string                 `json:"hire_inclination,omitempty"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	VideoURL        string                 `json:"video_url,omitempty"`
}

// Status returns the attempt's current state for the owning candidate.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - candidateID: authenticated candidate identifier.
//   - attemptID: attempt to query.
// Returns:
//   - *StatusResult: status snapshot.
//   - error: NOT_FOUND or internal.
func (s *InterviewService) Status(ctx context.Context, candidateID, attemptID string) (*StatusResult, error) {
	attempt, err := s.loadOwnedAttempt(ctx, candidateID, attemptID)
	if err != nil {
		return nil, err
	}

	result := &StatusResult{
		AttemptID:       attempt.ID,
		Status:          attempt.Status,
		ProcessingStage: attempt.ProcessingStage,
		IntegrityStatus: attempt.IntegrityStatus,
	}

	if attempt.Status.IsTerminal() {
		result.Feedback = json.RawMessage(attempt.FeedbackJSON)
		result.HireInclination = attempt.HireInclination
		result.ErrorMessage = attempt.ErrorMessage
	}

	if attempt.Status == domain.AttemptStatusComplete && !attempt.VideoDeleted && attempt.VideoObjectKey != "" {
		url, err := s.storage.PresignGet(ctx, attempt.VideoObjectKey, s.cfg.ViewURLTTL)
		if err != nil {
			// Viewing is best-effort; the status payload is still useful.
			logger.CtxWarn(ctx, "Failed to presign view URL for attempt %s: %v", attempt.ID, err)
		} else {
			result.VideoURL = url
		}
	}

	return result, nil
}

// ListAttempts returns the candidate's attempt history, newest first.
func (s *InterviewService) ListAttempts(ctx context.Context, candidateID string, limit, offset int) ([]domain.InterviewAttempt, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.attempts.ListByCandidate(ctx, candidateID, limit, offset)
}

// AttemptStats counts attempts per lifecycle status, for the operator
// dashboard.
func (s *InterviewService) AttemptStats(ctx context.Context) (map[domain.AttemptStatus]int64, error) {
	statuses := []domain.AttemptStatus{
		domain.AttemptStatusInProgress,
		domain.AttemptStatusProcessing,
		domain.AttemptStatusComplete,
		domain.AttemptStatusFailed,
		domain.AttemptStatusAbandoned,
	}

	stats := make(map[domain.AttemptStatus]int64, len(statuses))
	for _, status := range statuses {
		count, err := s.attempts.CountByStatus(ctx, status)
		if err != nil {
			return nil, apierr.Internal(err)
		}
		stats[status] = count
	}
	return stats, nil
}
