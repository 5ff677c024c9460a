package domain

import "time"

// LockReason explains why a candidate is locked out of new attempts.
type LockReason string

const (
	LockReasonNone      LockReason = ""
	LockReasonCooldown  LockReason = "cooldown"
	LockReasonAbandoned LockReason = "abandoned"
	LockReasonAdminHold LockReason = "admin_hold"
)

// UnlockDecision is the admin outcome of a candidate's unlock request.
type UnlockDecision string

const (
	UnlockDecisionNone     UnlockDecision = ""
	UnlockDecisionPending  UnlockDecision = "pending"
	UnlockDecisionApproved UnlockDecision = "approved"
	UnlockDecisionDenied   UnlockDecision = "denied"
)

// CandidateLockout tracks per-candidate lock state, attempt counters, and
// any pending unlock request. One row per candidate, upserted.
// Invariant: UnlockDecision == pending implies IsLocked.
type CandidateLockout struct {
	ID                string         `gorm:"type:text;primaryKey" json:"id"`
	CandidateID       string         `gorm:"type:text;not null;uniqueIndex:idx_lockouts_candidate" json:"candidate_id"`
	IsLocked          bool           `gorm:"default:false" json:"is_locked"`
	LockReason        LockReason     `gorm:"type:text" json:"lock_reason,omitempty"`
	LockedAt          *time.Time     `json:"locked_at,omitempty"`
	LockedUntil       *time.Time     `json:"locked_until,omitempty"`
	TotalAttempts     int            `gorm:"default:0" json:"total_attempts"`
	AbandonedAttempts int            `gorm:"default:0" json:"abandoned_attempts"`
	UnlockRequestText string         `gorm:"type:text" json:"unlock_request_text,omitempty"`
	UnlockRequestedAt *time.Time     `json:"unlock_requested_at,omitempty"`
	UnlockDecision    UnlockDecision `gorm:"type:text" json:"unlock_decision,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// TableName returns the database table name for CandidateLockout.
func (CandidateLockout) TableName() string {
	return "candidate_lockouts"
}

// CooldownExpired reports whether a cooldown lock has passed its deadline.
// Only meaningful when LockReason is cooldown.
func (l *CandidateLockout) CooldownExpired(now time.Time) bool {
	return l.LockedUntil != nil && now.After(*l.LockedUntil)
}

// UnlockRequestAllowed reports whether the candidate may currently file an
// unlock request. Cooldown locks are expected to self-clear rather than be
// appealed, so only abandoned and admin_hold locks qualify, and only while
// no request is pending.
func (l *CandidateLockout) UnlockRequestAllowed() bool {
	if !l.IsLocked || l.UnlockDecision == UnlockDecisionPending {
		return false
	}
	return l.LockReason == LockReasonAbandoned || l.LockReason == LockReasonAdminHold
}
