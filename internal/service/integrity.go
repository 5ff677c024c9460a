package service

import "github.com/myoussoffi-svg/athena-portal-sub002/internal/domain"

// IntegrityEvent is one client-recorded proctoring violation.
type IntegrityEvent struct {
	Type       string `json:"type"`
	AtMs       int64  `json:"at_ms"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// IntegrityLog is the client-collected proctoring signal summary submitted
// alongside the recording. It is stored verbatim; only the two totals feed
// the verdict.
type IntegrityLog struct {
	TotalViolations    int              `json:"total_violations"`
	TotalTimeOutsideMs int64            `json:"total_time_outside_ms"`
	Events             []IntegrityEvent `json:"events,omitempty"`
}

// ComputeIntegrityVerdict applies the fixed threshold rule to a submitted
// integrity log.
// Parameters:
//   - log: client-supplied log; nil means no log was submitted.
//   - maxTimeOutsideMs: flag when total time outside view strictly exceeds this.
//   - maxViolations: flag when violation count strictly exceeds this.
// Returns:
//   - domain.IntegrityStatus: unknown when log is nil, otherwise flagged or clean.
func ComputeIntegrityVerdict(log *IntegrityLog, maxTimeOutsideMs int64, maxViolations int) domain.IntegrityStatus {
	if log == nil {
		return domain.IntegrityUnknown
	}
	if log.TotalTimeOutsideMs > maxTimeOutsideMs || log.TotalViolations > maxViolations {
		return domain.IntegrityFlagged
	}
	return domain.IntegrityClean
}
