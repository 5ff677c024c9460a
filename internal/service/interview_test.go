package service

import (
	"context"
	"testing"
	"time"

	"github.com/myoussoffi-svg/athena-portal-sub002/internal/apierr"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/domain"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize(t *testing.T) {
	db := newTestDB(t)
	seedTrack(t, db, "backend")
	dispatcher, _ := newTestDispatcher(t)
	svc := NewInterviewService(db, newFakeStorage(), dispatcher, testInterviewConfig())
	ctx := context.Background()

	result, err := svc.Initialize(ctx, "cand-1", "backend")
	require.NoError(t, err)
	assert.NotEmpty(t, result.AttemptID)
	assert.Equal(t, 1, result.AttemptNumber)
	assert.Contains(t, result.UploadURL, result.AttemptID)
	assert.Len(t, result.Prompts, 2)

	attempts := repository.NewAttemptRepository(db)
	attempt, err := attempts.GetByID(ctx, result.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptStatusInProgress, attempt.Status)
	assert.Equal(t, domain.StageUploadPending, attempt.ProcessingStage)
	assert.Equal(t, "cand-1", attempt.CandidateID)
	assert.NotEmpty(t, attempt.PromptVersionID)

	lockouts := repository.NewLockoutRepository(db)
	lockout, err := lockouts.GetByCandidate(ctx, "cand-1")
	require.NoError(t, err)
	assert.Equal(t, 1, lockout.TotalAttempts)
	assert.False(t, lockout.IsLocked)
}

func TestInitializeDuplicateActiveAttempt(t *testing.T) {
	db := newTestDB(t)
	seedTrack(t, db, "backend")
	dispatcher, _ := newTestDispatcher(t)
	svc := NewInterviewService(db, newFakeStorage(), dispatcher, testInterviewConfig())
	ctx := context.Background()

	first, err := svc.Initialize(ctx, "cand-1", "backend")
	require.NoError(t, err)

	_, err = svc.Initialize(ctx, "cand-1", "backend")
	require.Error(t, err)

	apiErr := apierr.From(err)
	assert.Equal(t, apierr.CodeInProgress, apiErr.Code)
	assert.Equal(t, 409, apiErr.Status)
	assert.Equal(t, first.AttemptID, apiErr.Details["existing_attempt_id"])

	// The loser's counter increment must roll back with the insert.
	lockout, err := repository.NewLockoutRepository(db).GetByCandidate(ctx, "cand-1")
	require.NoError(t, err)
	assert.Equal(t, 1, lockout.TotalAttempts)
}

func TestInitializeLockedCandidate(t *testing.T) {
	db := newTestDB(t)
	seedTrack(t, db, "backend")
	dispatcher, _ := newTestDispatcher(t)
	svc := NewInterviewService(db, newFakeStorage(), dispatcher, testInterviewConfig())
	ctx := context.Background()

	lockouts := repository.NewLockoutRepository(db)
	lockout, err := lockouts.GetOrCreate(ctx, "cand-1")
	require.NoError(t, err)
	now := time.Now().UTC()
	lockout.IsLocked = true
	lockout.LockReason = domain.LockReasonAbandoned
	lockout.LockedAt = &now
	require.NoError(t, lockouts.Update(ctx, lockout))

	_, err = svc.Initialize(ctx, "cand-1", "backend")
	require.Error(t, err)

	apiErr := apierr.From(err)
	assert.Equal(t, apierr.CodeLocked, apiErr.Code)
	assert.Equal(t, "abandoned", apiErr.Details["reason"])
	assert.Equal(t, true, apiErr.Details["unlock_request_allowed"])
	assert.Equal(t, false, apiErr.Details["request_pending"])
}

func TestInitializeCooldownSelfClears(t *testing.T) {
	db := newTestDB(t)
	seedTrack(t, db, "backend")
	dispatcher, _ := newTestDispatcher(t)
	svc := NewInterviewService(db, newFakeStorage(), dispatcher, testInterviewConfig())
	ctx := context.Background()

	lockouts := repository.NewLockoutRepository(db)
	lockout, err := lockouts.GetOrCreate(ctx, "cand-1")
	require.NoError(t, err)
	lockedAt := time.Now().UTC().Add(-200 * time.Hour)
	until := time.Now().UTC().Add(-time.Hour)
	lockout.IsLocked = true
	lockout.LockReason = domain.LockReasonCooldown
	lockout.LockedAt = &lockedAt
	lockout.LockedUntil = &until
	require.NoError(t, lockouts.Update(ctx, lockout))

	result, err := svc.Initialize(ctx, "cand-1", "backend")
	require.NoError(t, err)
	assert.NotEmpty(t, result.AttemptID)

	cleared, err := lockouts.GetByCandidate(ctx, "cand-1")
	require.NoError(t, err)
	assert.False(t, cleared.IsLocked)
	assert.Equal(t, domain.LockReasonNone, cleared.LockReason)
	assert.Nil(t, cleared.LockedUntil)
}

func TestInitializeActiveCooldownRejected(t *testing.T) {
	db := newTestDB(t)
	seedTrack(t, db, "backend")
	dispatcher, _ := newTestDispatcher(t)
	svc := NewInterviewService(db, newFakeStorage(), dispatcher, testInterviewConfig())
	ctx := context.Background()

	lockouts := repository.NewLockoutRepository(db)
	lockout, err := lockouts.GetOrCreate(ctx, "cand-1")
	require.NoError(t, err)
	now := time.Now().UTC()
	until := now.Add(100 * time.Hour)
	lockout.IsLocked = true
	lockout.LockReason = domain.LockReasonCooldown
	lockout.LockedAt = &now
	lockout.LockedUntil = &until
	require.NoError(t, lockouts.Update(ctx, lockout))

	_, err = svc.Initialize(ctx, "cand-1", "backend")
	require.Error(t, err)

	apiErr := apierr.From(err)
	assert.Equal(t, apierr.CodeLocked, apiErr.Code)
	assert.Equal(t, "cooldown", apiErr.Details["reason"])
	assert.NotEmpty(t, apiErr.Details["locked_until"])
}

func TestInitializeUnknownTrack(t *testing.T) {
	db := newTestDB(t)
	seedTrack(t, db, "backend")
	dispatcher, _ := newTestDispatcher(t)
	svc := NewInterviewService(db, newFakeStorage(), dispatcher, testInterviewConfig())

	_, err := svc.Initialize(context.Background(), "cand-1", "no-such-track")
	require.Error(t, err)
	assert.Equal(t, apierr.CodeNotFound, apierr.From(err).Code)
}

func TestSubmit(t *testing.T) {
	db := newTestDB(t)
	seedTrack(t, db, "backend")
	dispatcher, rdb := newTestDispatcher(t)
	store := newFakeStorage()
	svc := NewInterviewService(db, store, dispatcher, testInterviewConfig())
	ctx := context.Background()

	init, err := svc.Initialize(ctx, "cand-1", "backend")
	require.NoError(t, err)

	boundaries := []SegmentBoundary{
		{PromptID: "q1", StartMs: 0, EndMs: 60000},
		{PromptID: "q2", StartMs: 60000, EndMs: 150000},
	}
	log := &IntegrityLog{TotalViolations: 1, TotalTimeOutsideMs: 5000}

	result, err := svc.Submit(ctx, "cand-1", init.AttemptID, boundaries, log)
	require.NoError(t, err)
	assert.Contains(t, result.StatusURL, init.AttemptID)

	attempt, err := repository.NewAttemptRepository(db).GetByID(ctx, init.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptStatusProcessing, attempt.Status)
	assert.Equal(t, domain.StageUploadVerified, attempt.ProcessingStage)
	assert.Equal(t, domain.IntegrityClean, attempt.IntegrityStatus)
	assert.Len(t, attempt.Segments, 2)
	require.NotNil(t, attempt.SubmittedAt)
	require.NotNil(t, attempt.VideoExpiresAt)
	assert.WithinDuration(t, attempt.SubmittedAt.Add(120*time.Hour), *attempt.VideoExpiresAt, time.Minute)

	// The pipeline event must be on the queue after commit.
	n, err := rdb.LLen(ctx, "interview:events").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSubmitTwice(t *testing.T) {
	db := newTestDB(t)
	seedTrack(t, db, "backend")
	dispatcher, _ := newTestDispatcher(t)
	svc := NewInterviewService(db, newFakeStorage(), dispatcher, testInterviewConfig())
	ctx := context.Background()

	init, err := svc.Initialize(ctx, "cand-1", "backend")
	require.NoError(t, err)

	boundaries := []SegmentBoundary{{PromptID: "q1", StartMs: 0, EndMs: 60000}}
	_, err = svc.Submit(ctx, "cand-1", init.AttemptID, boundaries, nil)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, "cand-1", init.AttemptID, boundaries, nil)
	require.Error(t, err)

	apiErr := apierr.From(err)
	assert.Equal(t, apierr.CodeAlreadySubmitted, apiErr.Code)
	assert.Equal(t, 400, apiErr.Status)
	assert.Equal(t, "processing", apiErr.Details["status"])
}

func TestSubmitForeignAttempt(t *testing.T) {
	db := newTestDB(t)
	seedTrack(t, db, "backend")
	dispatcher, _ := newTestDispatcher(t)
	svc := NewInterviewService(db, newFakeStorage(), dispatcher, testInterviewConfig())
	ctx := context.Background()

	init, err := svc.Initialize(ctx, "cand-1", "backend")
	require.NoError(t, err)

	boundaries := []SegmentBoundary{{PromptID: "q1", StartMs: 0, EndMs: 60000}}
	_, err = svc.Submit(ctx, "cand-2", init.AttemptID, boundaries, nil)
	require.Error(t, err)
	assert.Equal(t, apierr.CodeNotFound, apierr.From(err).Code)
}

func TestSubmitBoundaryValidation(t *testing.T) {
	db := newTestDB(t)
	seedTrack(t, db, "backend")
	dispatcher, _ := newTestDispatcher(t)
	svc := NewInterviewService(db, newFakeStorage(), dispatcher, testInterviewConfig())
	ctx := context.Background()

	init, err := svc.Initialize(ctx, "cand-1", "backend")
	require.NoError(t, err)

	tests := []struct {
		name       string
		boundaries []SegmentBoundary
	}{
		{"empty", nil},
		{"missing prompt id", []SegmentBoundary{{StartMs: 0, EndMs: 1000}}},
		{"zero duration", []SegmentBoundary{{PromptID: "q1", StartMs: 1000, EndMs: 1000}}},
		{"negative duration", []SegmentBoundary{{PromptID: "q1", StartMs: 2000, EndMs: 1000}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, "cand-1", init.AttemptID, tt.boundaries, nil)
			require.Error(t, err)
			assert.Equal(t, apierr.CodeInvalidArgument, apierr.From(err).Code)
		})
	}
}

func TestSubmitUploadVerification(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		setup func(*fakeStorage)
	}{
		{"object missing", func(f *fakeStorage) {
			f.headErr = context.DeadlineExceeded
		}},
		{"too small", func(f *fakeStorage) {
			f.headInfo.Size = 100
		}},
		{"too large", func(f *fakeStorage) {
			f.headInfo.Size = 3 << 30
		}},
		{"bad content type", func(f *fakeStorage) {
			f.headInfo.ContentType = "application/zip"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			seedTrack(t, db, "backend")
			dispatcher, _ := newTestDispatcher(t)
			store := newFakeStorage()
			tt.setup(store)
			svc := NewInterviewService(db, store, dispatcher, testInterviewConfig())

			init, err := svc.Initialize(ctx, "cand-1", "backend")
			require.NoError(t, err)

			_, err = svc.Submit(ctx, "cand-1", init.AttemptID,
				[]SegmentBoundary{{PromptID: "q1", StartMs: 0, EndMs: 60000}}, nil)
			require.Error(t, err)

			apiErr := apierr.From(err)
			assert.Equal(t, apierr.CodeUploadInvalid, apiErr.Code)
			assert.Equal(t, 400, apiErr.Status)

			// A failed verification must leave the attempt submittable.
			attempt, err := repository.NewAttemptRepository(db).GetByID(ctx, init.AttemptID)
			require.NoError(t, err)
			assert.Equal(t, domain.AttemptStatusInProgress, attempt.Status)
		})
	}
}

func TestSubmitWithoutIntegrityLog(t *testing.T) {
	db := newTestDB(t)
	seedTrack(t, db, "backend")
	dispatcher, _ := newTestDispatcher(t)
	svc := NewInterviewService(db, newFakeStorage(), dispatcher, testInterviewConfig())
	ctx := context.Background()

	init, err := svc.Initialize(ctx, "cand-1", "backend")
	require.NoError(t, err)

	_, err = svc.Submit(ctx, "cand-1", init.AttemptID,
		[]SegmentBoundary{{PromptID: "q1", StartMs: 0, EndMs: 60000}}, nil)
	require.NoError(t, err)

	attempt, err := repository.NewAttemptRepository(db).GetByID(ctx, init.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, domain.IntegrityUnknown, attempt.IntegrityStatus)
	assert.Empty(t, attempt.IntegrityLog)
}

func TestStatus(t *testing.T) {
	db := newTestDB(t)
	seedTrack(t, db, "backend")
	dispatcher, _ := newTestDispatcher(t)
	svc := NewInterviewService(db, newFakeStorage(), dispatcher, testInterviewConfig())
	ctx := context.Background()

	init, err := svc.Initialize(ctx, "cand-1", "backend")
	require.NoError(t, err)

	status, err := svc.Status(ctx, "cand-1", init.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptStatusInProgress, status.Status)
	assert.Empty(t, status.Feedback)
	assert.Empty(t, status.VideoURL)

	// Ownership failures read as not-found.
	_, err = svc.Status(ctx, "cand-2", init.AttemptID)
	require.Error(t, err)
	assert.Equal(t, apierr.CodeNotFound, apierr.From(err).Code)
}

func TestStatusStoreFailure(t *testing.T) {
	db := newTestDB(t)
	seedTrack(t, db, "backend")
	dispatcher, _ := newTestDispatcher(t)
	svc := NewInterviewService(db, newFakeStorage(), dispatcher, testInterviewConfig())
	ctx := context.Background()

	init, err := svc.Initialize(ctx, "cand-1", "backend")
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	// A broken store is a server fault, not a missing attempt.
	_, err = svc.Status(ctx, "cand-1", init.AttemptID)
	require.Error(t, err)
	assert.Equal(t, apierr.CodeInternal, apierr.From(err).Code)

	_, err = svc.Submit(ctx, "cand-1", init.AttemptID, []SegmentBoundary{{PromptID: "q1", StartMs: 0, EndMs: 60000}}, nil)
	require.Error(t, err)
	assert.Equal(t, apierr.CodeInternal, apierr.From(err).Code)
}

func TestAttemptStats(t *testing.T) {
	db := newTestDB(t)
	dispatcher, _ := newTestDispatcher(t)
	svc := NewInterviewService(db, newFakeStorage(), dispatcher, testInterviewConfig())
	now := time.Now()

	seedAttempt(t, db, "cand-1", domain.AttemptStatusComplete, now.Add(-2*time.Hour))
	seedAttempt(t, db, "cand-2", domain.AttemptStatusComplete, now.Add(-time.Hour))
	seedAttempt(t, db, "cand-3", domain.AttemptStatusFailed, now)
	seedAttempt(t, db, "cand-4", domain.AttemptStatusInProgress, now)

	stats, err := svc.AttemptStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats[domain.AttemptStatusComplete])
	assert.Equal(t, int64(1), stats[domain.AttemptStatusFailed])
	assert.Equal(t, int64(1), stats[domain.AttemptStatusInProgress])
	assert.Zero(t, stats[domain.AttemptStatusProcessing])
	assert.Zero(t, stats[domain.AttemptStatusAbandoned])
}

func TestStatusCompleteAttempt(t *testing.T) {
	db := newTestDB(t)
	seedTrack(t, db, "backend")
	dispatcher, _ := newTestDispatcher(t)
	svc := NewInterviewService(db, newFakeStorage(), dispatcher, testInterviewConfig())
	ctx := context.Background()

	init, err := svc.Initialize(ctx, "cand-1", "backend")
	require.NoError(t, err)

	attempts := repository.NewAttemptRepository(db)
	attempt, err := attempts.GetByID(ctx, init.AttemptID)
	require.NoError(t, err)
	now := time.Now().UTC()
	attempt.Status = domain.AttemptStatusComplete
	attempt.ProcessingStage = domain.StageNone
	attempt.FeedbackJSON = domain.RawJSON(`{"summary":"solid"}`)
	attempt.HireInclination = "lean_yes"
	attempt.CompletedAt = &now
	require.NoError(t, attempts.Update(ctx, attempt))

	status, err := svc.Status(ctx, "cand-1", init.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptStatusComplete, status.Status)
	assert.JSONEq(t, `{"summary":"solid"}`, string(status.Feedback))
	assert.Equal(t, "lean_yes", status.HireInclination)
	assert.Contains(t, status.VideoURL, attempt.VideoObjectKey)
}

func TestListAttempts(t *testing.T) {
	db := newTestDB(t)
	seedTrack(t, db, "backend")
	dispatcher, _ := newTestDispatcher(t)
	svc := NewInterviewService(db, newFakeStorage(), dispatcher, testInterviewConfig())
	ctx := context.Background()

	init, err := svc.Initialize(ctx, "cand-1", "backend")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, "cand-1", init.AttemptID,
		[]SegmentBoundary{{PromptID: "q1", StartMs: 0, EndMs: 60000}}, nil)
	require.NoError(t, err)

	// A processing attempt still holds the active slot; finish it first.
	attempts := repository.NewAttemptRepository(db)
	attempt, err := attempts.GetByID(ctx, init.AttemptID)
	require.NoError(t, err)
	attempt.Status = domain.AttemptStatusComplete
	require.NoError(t, attempts.Update(ctx, attempt))

	second, err := svc.Initialize(ctx, "cand-1", "backend")
	require.NoError(t, err)
	assert.Equal(t, 2, second.AttemptNumber)

	list, err := svc.ListAttempts(ctx, "cand-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)

	other, err := svc.ListAttempts(ctx, "cand-2", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}
