package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// AttemptStatus represents the lifecycle status of an interview attempt.
// Values include AttemptStatusInProgress, AttemptStatusProcessing,
// AttemptStatusComplete, AttemptStatusFailed, and AttemptStatusAbandoned.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusProcessing AttemptStatus = "processing"
	AttemptStatusComplete   AttemptStatus = "complete"
	AttemptStatusFailed     AttemptStatus = "failed"
	AttemptStatusAbandoned  AttemptStatus = "abandoned"
)

// attemptTransitions is the complete set of legal status transitions.
// complete, failed and abandoned are terminal: nothing leaves them.
var attemptTransitions = map[AttemptStatus][]AttemptStatus{
	AttemptStatusInProgress: {AttemptStatusProcessing, AttemptStatusAbandoned},
	AttemptStatusProcessing: {AttemptStatusComplete, AttemptStatusFailed},
}

// CanTransitionTo reports whether moving from s to next is a legal transition.
// Parameters:
//   - next: the candidate target status.
// Returns:
//   - bool: true if the transition is allowed by the lifecycle table.
func (s AttemptStatus) CanTransitionTo(next AttemptStatus) bool {
	for _, allowed := range attemptTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status has no outgoing transitions.
func (s AttemptStatus) IsTerminal() bool {
	return len(attemptTransitions[s]) == 0
}

// ProcessingStage is the finer-grained sub-status advanced by the
// asynchronous pipeline while an attempt is processing.
type ProcessingStage string

const (
	StageNone           ProcessingStage = ""
	StageUploadPending  ProcessingStage = "upload_pending"
	StageUploadVerified ProcessingStage = "upload_verified"
	StageTranscribing   ProcessingStage = "transcribing"
	StageSegmenting     ProcessingStage = "segmenting"
	StageEvaluating     ProcessingStage = "evaluating"
	StageFinalizing     ProcessingStage = "finalizing"
)

// stageOrder is the pipeline stage sequence after upload verification.
var stageOrder = []ProcessingStage{
	StageUploadVerified,
	StageTranscribing,
	StageSegmenting,
	StageEvaluating,
	StageFinalizing,
}

// NextStage returns the stage that follows s in the pipeline sequence.
// Returns StageNone when s is the last stage or not part of the sequence.
func (s ProcessingStage) NextStage() ProcessingStage {
	for i, stage := range stageOrder {
		if stage == s && i+1 < len(stageOrder) {
			return stageOrder[i+1]
		}
	}
	return StageNone
}

// IntegrityStatus is the coarse verdict over client-collected proctoring
// signals. Values include IntegrityClean, IntegrityFlagged, and
// IntegrityUnknown (no log supplied).
type IntegrityStatus string

const (
	IntegrityClean   IntegrityStatus = "clean"
	IntegrityFlagged IntegrityStatus = "flagged"
	IntegrityUnknown IntegrityStatus = "unknown"
)

// Segment is one question's slice of the recording. TranscriptText is empty
// at submission time and filled in by the pipeline.
type Segment struct {
	PromptID       string `json:"prompt_id"`
	StartMs        int64  `json:"start_ms"`
	EndMs          int64  `json:"end_ms"`
	TranscriptText string `json:"transcript_text,omitempty"`
}

// SegmentList is a custom type for storing segments as JSON in the database.
type SegmentList []Segment

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the list.
//   - error: non-nil if marshaling fails.
func (l SegmentList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (l *SegmentList) Scan(value interface{}) error {
	if value == nil {
		*l = SegmentList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan SegmentList")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, l)
}

// RawJSON stores an opaque JSON document as text.
type RawJSON json.RawMessage

// Value implements the driver.Valuer interface.
func (j RawJSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

// Scan implements the sql.Scanner interface.
func (j *RawJSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = RawJSON(append([]byte(nil), v...))
	case string:
		*j = RawJSON(v)
	default:
		return errors.New("failed to scan RawJSON")
	}
	return nil
}

// MarshalJSON returns j as-is so stored documents pass through untouched.
func (j RawJSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON stores data as-is.
func (j *RawJSON) UnmarshalJSON(data []byte) error {
	*j = RawJSON(append([]byte(nil), data...))
	return nil
}

// InterviewAttempt represents one candidate's pass through the interview
// simulator, from initialization to a terminal outcome.
//
// At most one row per candidate may be in_progress or processing at a time;
// that invariant is enforced by a partial unique index created in
// repository.InitDB, not by application code.
type InterviewAttempt struct {
	ID                 string          `gorm:"type:text;primaryKey" json:"id"`
	CandidateID        string          `gorm:"type:text;not null;index:idx_attempts_candidate" json:"candidate_id"`
	AttemptNumber      int             `gorm:"not null" json:"attempt_number"`
	Status             AttemptStatus   `gorm:"type:text;not null;index:idx_attempts_status;default:in_progress" json:"status"`
	ProcessingStage    ProcessingStage `gorm:"type:text" json:"processing_stage,omitempty"`
	TrackSlug          string          `gorm:"type:text;not null" json:"track_slug"`
	PromptVersionID    string          `gorm:"type:text;not null" json:"prompt_version_id"`
	EvaluatorVersionID string          `gorm:"type:text;not null" json:"evaluator_version_id"`
	VideoObjectKey     string          `gorm:"type:text" json:"video_object_key,omitempty"`
	VideoExpiresAt     *time.Time      `json:"video_expires_at,omitempty"`
	VideoDeleted       bool            `gorm:"default:false" json:"video_deleted"`
	IntegrityLog       RawJSON         `gorm:"type:text" json:"integrity_log,omitempty"`
	IntegrityStatus    IntegrityStatus `gorm:"type:text" json:"integrity_status,omitempty"`
	Segments           SegmentList     `gorm:"type:text" json:"segments"`
	FeedbackJSON       RawJSON         `gorm:"type:text" json:"feedback,omitempty"`
	HireInclination    string          `gorm:"type:text" json:"hire_inclination,omitempty"`
	ErrorMessage       string          `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt          time.Time       `json:"started_at"`
	SubmittedAt        *time.Time      `json:"submitted_at,omitempty"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// TableName returns the database table name for InterviewAttempt.
func (InterviewAttempt) TableName() string {
	return "interview_attempts"
}

// IsActive reports whether the attempt holds the candidate's active slot.
func (a *InterviewAttempt) IsActive() bool {
	return a.Status == AttemptStatusInProgress || a.Status == AttemptStatusProcessing
}
