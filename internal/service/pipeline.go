package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/myoussoffi-svg/athena-portal-sub002/internal/config"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/domain"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/events"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/logger"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/repository"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/storage"
	"gorm.io/gorm"
)

// PipelineService consumes interview.submitted events and drives a
// processing attempt to a terminal status: transcription, segmentation,
// evaluation, finalization. Each stage is persisted so a status poll shows
// where the attempt is.
type PipelineService struct {
	attempts  *repository.AttemptRepository
	tracks    *repository.TrackRepository
	lockouts  *repository.LockoutRepository
	storage   storage.ObjectStorage
	evaluator *EvaluatorService
	cfg       *config.InterviewConfig
}

// NewPipelineService creates a new pipeline service.
func NewPipelineService(
	db *gorm.DB,
	objectStorage storage.ObjectStorage,
	evaluator *EvaluatorService,
	cfg *config.InterviewConfig,
) *PipelineService {
	return &PipelineService{
		attempts:  repository.NewAttemptRepository(db),
		tracks:    repository.NewTrackRepository(db),
		lockouts:  repository.NewLockoutRepository(db),
		storage:   objectStorage,
		evaluator: evaluator,
		cfg:       cfg,
	}
}

// Register wires the pipeline into an event consumer.
func (s *PipelineService) Register(consumer *events.Consumer) {
	consumer.Handle(events.EventInterviewSubmitted, s.HandleSubmitted)
}

// HandleSubmitted processes one submitted attempt end to end. The handler
// is idempotent: anything not in processing status is skipped, so duplicate
// deliveries are harmless. Pipeline failures are recorded on the attempt as
// status failed rather than bounced back to the queue.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - payload: JSON payload carrying the attempt ID.
// Returns:
//   - error: non-nil only when the failure could not be recorded.
func (s *PipelineService) HandleSubmitted(ctx context.Context, payload json.RawMessage) error {
	var p events.SubmittedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("malformed submitted payload: %w", err)
	}

	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldAttemptID: p.AttemptID,
		logger.FieldComponent: "pipeline",
	})

	attempt, err := s.attempts.GetByID(ctx, p.AttemptID)
	if err != nil {
		return fmt.Errorf("failed to load attempt %s: %w", p.AttemptID, err)
	}
	if attempt.Status != domain.AttemptStatusProcessing {
		logger.CtxWarn(ctx, "Skipping attempt in status %s", attempt.Status)
		return nil
	}

	if err := s.process(ctx, attempt); err != nil {
		logger.CtxError(ctx, "Pipeline failed: %v", err)
		return s.markFailed(ctx, attempt, err)
	}
	return nil
}

// process advances the attempt through the pipeline stages.
func (s *PipelineService) process(ctx context.Context, attempt *domain.InterviewAttempt) error {
	// Transcribe the whole recording in one pass.
	if err := s.setStage(ctx, attempt, domain.StageTranscribing); err != nil {
		return err
	}
	media, err := s.downloadMedia(ctx, attempt.VideoObjectKey)
	if err != nil {
		return fmt.Errorf("failed to download media: %w", err)
	}
	transcript, err := s.evaluator.Transcribe(ctx, media, path.Base(attempt.VideoObjectKey))
	if err != nil {
		return fmt.Errorf("transcription failed: %w", err)
	}

	// Distribute the transcript across the client-reported boundaries,
	// proportional to each segment's share of the recorded time.
	if err := s.setStage(ctx, attempt, domain.StageSegmenting); err != nil {
		return err
	}
	attempt.Segments = splitTranscript(transcript, attempt.Segments)
	if err := s.attempts.Update(ctx, attempt); err != nil {
		return err
	}

	// Score the answers against the prompt set the attempt was created with.
	if err := s.setStage(ctx, attempt, domain.StageEvaluating); err != nil {
		return err
	}
	version, err := s.tracks.GetVersionByPromptVersion(ctx, attempt.PromptVersionID)
	if err != nil {
		return fmt.Errorf("failed to resolve prompt version %s: %w", attempt.PromptVersionID, err)
	}
	trackTitle := attempt.TrackSlug
	if track, err := s.tracks.GetBySlug(ctx, attempt.TrackSlug); err == nil {
		trackTitle = track.Title
	}
	eval, err := s.evaluator.Evaluate(ctx, trackTitle, version.Prompts, attempt.Segments)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	if err := s.setStage(ctx, attempt, domain.StageFinalizing); err != nil {
		return err
	}
	return s.finalize(ctx, attempt, eval)
}

// finalize records the outcome and starts the candidate's cooldown.
func (s *PipelineService) finalize(ctx context.Context, attempt *domain.InterviewAttempt, eval *EvaluationResult) error {
	if !attempt.Status.CanTransitionTo(domain.AttemptStatusComplete) {
		return fmt.Errorf("illegal transition %s -> %s", attempt.Status, domain.AttemptStatusComplete)
	}

	now := time.Now().UTC()
	attempt.Status = domain.AttemptStatusComplete
	attempt.ProcessingStage = domain.StageNone
	attempt.FeedbackJSON = domain.RawJSON(eval.Feedback)
	attempt.HireInclination = eval.HireInclination
	attempt.CompletedAt = &now
	if err := s.attempts.Update(ctx, attempt); err != nil {
		return err
	}

	if s.cfg.Cooldown > 0 {
		if err := s.applyCooldown(ctx, attempt.CandidateID, now); err != nil {
			// The attempt outcome stands; a missed cooldown only means the
			// candidate can retry sooner than intended.
			logger.CtxError(ctx, "Failed to apply cooldown: %v", err)
		}
	}

	logger.CtxInfo(ctx, "Attempt complete: inclination=%s", eval.HireInclination)
	return nil
}

// applyCooldown locks the candidate until the configured cooldown passes.
func (s *PipelineService) applyCooldown(ctx context.Context, candidateID string, now time.Time) error {
	lockout, err := s.lockouts.GetOrCreate(ctx, candidateID)
	if err != nil {
		return err
	}
	until := now.Add(s.cfg.Cooldown)
	lockout.IsLocked = true
	lockout.LockReason = domain.LockReasonCooldown
	lockout.LockedAt = &now
	lockout.LockedUntil = &until
	return s.lockouts.Update(ctx, lockout)
}

// markFailed records a pipeline failure as a terminal failed status.
func (s *PipelineService) markFailed(ctx context.Context, attempt *domain.InterviewAttempt, cause error) error {
	if !attempt.Status.CanTransitionTo(domain.AttemptStatusFailed) {
		return fmt.Errorf("cannot record failure from status %s: %w", attempt.Status, cause)
	}
	attempt.Status = domain.AttemptStatusFailed
	attempt.ProcessingStage = domain.StageNone
	attempt.ErrorMessage = cause.Error()
	return s.attempts.Update(ctx, attempt)
}

// setStage persists a stage advance.
func (s *PipelineService) setStage(ctx context.Context, attempt *domain.InterviewAttempt, stage domain.ProcessingStage) error {
	attempt.ProcessingStage = stage
	return s.attempts.Update(ctx, attempt)
}

// downloadMedia fetches the uploaded object into memory.
func (s *PipelineService) downloadMedia(ctx context.Context, key string) ([]byte, error) {
	body, err := s.storage.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

// splitTranscript assigns transcript words to segments proportionally to
// each segment's duration. An approximation of time-aligned slicing that
// keeps the evaluator's per-question view roughly honest.
func splitTranscript(transcript string, segments domain.SegmentList) domain.SegmentList {
	words := strings.Fields(transcript)
	if len(segments) == 0 {
		return segments
	}
	if len(segments) == 1 {
		segments[0].TranscriptText = transcript
		return segments
	}

	var totalMs int64
	for _, seg := range segments {
		totalMs += seg.EndMs - seg.StartMs
	}
	if totalMs <= 0 {
		segments[0].TranscriptText = transcript
		return segments
	}

	offset := 0
	for i := range segments {
		if i == len(segments)-1 {
			segments[i].TranscriptText = strings.Join(words[offset:], " ")
			break
		}
		share := float64(segments[i].EndMs-segments[i].StartMs) / float64(totalMs)
		n := int(share * float64(len(words)))
		if offset+n > len(words) {
			n = len(words) - offset
		}
		segments[i].TranscriptText = strings.Join(words[offset:offset+n], " ")
		offset += n
	}
	return segments
}
