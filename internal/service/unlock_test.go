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
	"gorm.io/gorm"
)

// lockCandidate seeds a lockout row in the given state.
func lockCandidate(t *testing.T, db *gorm.DB, candidateID string, reason domain.LockReason, until *time.Time) {
	t.Helper()

	lockouts := repository.NewLockoutRepository(db)
	lockout, err := lockouts.GetOrCreate(context.Background(), candidateID)
	require.NoError(t, err)
	now := time.Now().UTC()
	lockout.IsLocked = true
	lockout.LockReason = reason
	lockout.LockedAt = &now
	lockout.LockedUntil = until
	require.NoError(t, lockouts.Update(context.Background(), lockout))
}

func TestRequestUnlock(t *testing.T) {
	db := newTestDB(t)
	svc := NewUnlockService(db, testInterviewConfig())
	ctx := context.Background()

	lockCandidate(t, db, "cand-1", domain.LockReasonAbandoned, nil)

	err := svc.RequestUnlock(ctx, "cand-1", "I lost connectivity mid-interview and could not submit.")
	require.NoError(t, err)

	lockout, err := repository.NewLockoutRepository(db).GetByCandidate(ctx, "cand-1")
	require.NoError(t, err)
	assert.Equal(t, domain.UnlockDecisionPending, lockout.UnlockDecision)
	assert.NotNil(t, lockout.UnlockRequestedAt)
	assert.True(t, lockout.IsLocked)
}

func TestRequestUnlockReasonLength(t *testing.T) {
	db := newTestDB(t)
	svc := NewUnlockService(db, testInterviewConfig())
	ctx := context.Background()

	lockCandidate(t, db, "cand-1", domain.LockReasonAbandoned, nil)

	// Nine characters after trimming.
	err := svc.RequestUnlock(ctx, "cand-1", "  too short  ")
	require.Error(t, err)
	assert.Equal(t, apierr.CodeInvalidArgument, apierr.From(err).Code)

	// Exactly ten characters passes.
	err = svc.RequestUnlock(ctx, "cand-1", "1234567890")
	require.NoError(t, err)
}

func TestRequestUnlockPreconditions(t *testing.T) {
	ctx := context.Background()
	reason := "please reconsider my lockout, it was accidental"

	t.Run("no lockout row", func(t *testing.T) {
		db := newTestDB(t)
		svc := NewUnlockService(db, testInterviewConfig())

		err := svc.RequestUnlock(ctx, "cand-1", reason)
		require.Error(t, err)
		assert.Equal(t, apierr.CodeUnlockNotAllowed, apierr.From(err).Code)
	})

	t.Run("not locked", func(t *testing.T) {
		db := newTestDB(t)
		svc := NewUnlockService(db, testInterviewConfig())
		_, err := repository.NewLockoutRepository(db).GetOrCreate(ctx, "cand-1")
		require.NoError(t, err)

		err = svc.RequestUnlock(ctx, "cand-1", reason)
		require.Error(t, err)
		assert.Equal(t, apierr.CodeUnlockNotAllowed, apierr.From(err).Code)
	})

	t.Run("request already pending", func(t *testing.T) {
		db := newTestDB(t)
		svc := NewUnlockService(db, testInterviewConfig())
		lockCandidate(t, db, "cand-1", domain.LockReasonAbandoned, nil)

		require.NoError(t, svc.RequestUnlock(ctx, "cand-1", reason))
		err := svc.RequestUnlock(ctx, "cand-1", reason)
		require.Error(t, err)
		assert.Equal(t, apierr.CodeRequestPending, apierr.From(err).Code)
	})

	t.Run("cooldown still active", func(t *testing.T) {
		db := newTestDB(t)
		svc := NewUnlockService(db, testInterviewConfig())
		until := time.Now().UTC().Add(48 * time.Hour)
		lockCandidate(t, db, "cand-1", domain.LockReasonCooldown, &until)

		err := svc.RequestUnlock(ctx, "cand-1", reason)
		require.Error(t, err)
		assert.Equal(t, apierr.CodeCooldownActive, apierr.From(err).Code)
	})
}

func TestDecide(t *testing.T) {
	ctx := context.Background()
	reason := "my browser crashed during the second question"

	t.Run("approve clears the lock", func(t *testing.T) {
		db := newTestDB(t)
		svc := NewUnlockService(db, testInterviewConfig())
		lockCandidate(t, db, "cand-1", domain.LockReasonAbandoned, nil)
		require.NoError(t, svc.RequestUnlock(ctx, "cand-1", reason))

		require.NoError(t, svc.Decide(ctx, "cand-1", true))

		lockout, err := repository.NewLockoutRepository(db).GetByCandidate(ctx, "cand-1")
		require.NoError(t, err)
		assert.False(t, lockout.IsLocked)
		assert.Equal(t, domain.LockReasonNone, lockout.LockReason)
		assert.Equal(t, domain.UnlockDecisionApproved, lockout.UnlockDecision)
	})

	t.Run("deny keeps the lock", func(t *testing.T) {
		db := newTestDB(t)
		svc := NewUnlockService(db, testInterviewConfig())
		lockCandidate(t, db, "cand-1", domain.LockReasonAbandoned, nil)
		require.NoError(t, svc.RequestUnlock(ctx, "cand-1", reason))

		require.NoError(t, svc.Decide(ctx, "cand-1", false))

		lockout, err := repository.NewLockoutRepository(db).GetByCandidate(ctx, "cand-1")
		require.NoError(t, err)
		assert.True(t, lockout.IsLocked)
		assert.Equal(t, domain.UnlockDecisionDenied, lockout.UnlockDecision)
	})

	t.Run("nothing pending", func(t *testing.T) {
		db := newTestDB(t)
		svc := NewUnlockService(db, testInterviewConfig())
		lockCandidate(t, db, "cand-1", domain.LockReasonAbandoned, nil)

		err := svc.Decide(ctx, "cand-1", true)
		require.Error(t, err)
		assert.Equal(t, apierr.CodeUnlockNotAllowed, apierr.From(err).Code)
	})

	t.Run("unknown candidate", func(t *testing.T) {
		db := newTestDB(t)
		svc := NewUnlockService(db, testInterviewConfig())

		err := svc.Decide(ctx, "ghost", true)
		require.Error(t, err)
		assert.Equal(t, apierr.CodeNotFound, apierr.From(err).Code)
	})
}

func TestListPending(t *testing.T) {
	db := newTestDB(t)
	svc := NewUnlockService(db, testInterviewConfig())
	ctx := context.Background()

	lockCandidate(t, db, "cand-1", domain.LockReasonAbandoned, nil)
	lockCandidate(t, db, "cand-2", domain.LockReasonAbandoned, nil)
	require.NoError(t, svc.RequestUnlock(ctx, "cand-1", "network dropped while I was answering"))

	pending, err := svc.ListPending(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "cand-1", pending[0].CandidateID)
}
