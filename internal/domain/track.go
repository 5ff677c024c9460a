package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Prompt is a single interview question shown to the candidate.
type Prompt struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// PromptList is a custom type for storing prompts as JSON in the database.
type PromptList []Prompt

// Value implements the driver.Valuer interface for database serialization.
func (l PromptList) Value() (driver.Value, error) {
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
func (l *PromptList) Scan(value interface{}) error {
	if value == nil {
		*l = PromptList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan PromptList")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, l)
}

// InterviewTrack is a configured interview flavour (e.g. "backend",
// "frontend") that candidates pick when starting an attempt.
type InterviewTrack struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	Slug      string    `gorm:"type:text;not null;uniqueIndex:idx_tracks_slug" json:"slug"`
	Title     string    `gorm:"type:text;not null" json:"title"`
	Active    bool      `gorm:"default:true" json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for InterviewTrack.
func (InterviewTrack) TableName() string {
	return "interview_tracks"
}

// TrackVersion pins a prompt set and evaluator revision for a track. An
// attempt records the pair it was created against; the references are
// immutable once set on the attempt.
type TrackVersion struct {
	ID                 string     `gorm:"type:text;primaryKey" json:"id"`
	TrackID            string     `gorm:"type:text;not null;index:idx_track_versions_track" json:"track_id"`
	PromptVersionID    string     `gorm:"type:text;not null" json:"prompt_version_id"`
	EvaluatorVersionID string     `gorm:"type:text;not null" json:"evaluator_version_id"`
	Prompts            PromptList `gorm:"type:text" json:"prompts"`
	IsActive           bool       `gorm:"default:false;index:idx_track_versions_active" json:"is_active"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TableName returns the database table name for TrackVersion.
func (TrackVersion) TableName() string {
	return "track_versions"
}
