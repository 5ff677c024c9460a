package domain

import (
	"encoding/json"
	"testing"
)

func TestAttemptStatusTransitions(t *testing.T) {
	tests := []struct {
		from AttemptStatus
		to   AttemptStatus
		want bool
	}{
		{AttemptStatusInProgress, AttemptStatusProcessing, true},
		{AttemptStatusInProgress, AttemptStatusAbandoned, true},
		{AttemptStatusInProgress, AttemptStatusComplete, false},
		{AttemptStatusInProgress, AttemptStatusFailed, false},
		{AttemptStatusProcessing, AttemptStatusComplete, true},
		{AttemptStatusProcessing, AttemptStatusFailed, true},
		{AttemptStatusProcessing, AttemptStatusAbandoned, false},
		{AttemptStatusProcessing, AttemptStatusInProgress, false},
		{AttemptStatusComplete, AttemptStatusInProgress, false},
		{AttemptStatusFailed, AttemptStatusProcessing, false},
		{AttemptStatusAbandoned, AttemptStatusInProgress, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestAttemptStatusIsTerminal(t *testing.T) {
	terminal := []AttemptStatus{AttemptStatusComplete, AttemptStatusFailed, AttemptStatusAbandoned}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("IsTerminal(%s) = false, want true", s)
		}
	}

	active := []AttemptStatus{AttemptStatusInProgress, AttemptStatusProcessing}
	for _, s := range active {
		if s.IsTerminal() {
			t.Errorf("IsTerminal(%s) = true, want false", s)
		}
	}
}

func TestProcessingStageSequence(t *testing.T) {
	tests := []struct {
		stage ProcessingStage
		next  ProcessingStage
	}{
		{StageUploadVerified, StageTranscribing},
		{StageTranscribing, StageSegmenting},
		{StageSegmenting, StageEvaluating},
		{StageEvaluating, StageFinalizing},
		{StageFinalizing, StageNone},
		{StageNone, StageNone},
		{StageUploadPending, StageNone},
	}

	for _, tt := range tests {
		if got := tt.stage.NextStage(); got != tt.next {
			t.Errorf("NextStage(%s) = %s, want %s", tt.stage, got, tt.next)
		}
	}
}

func TestSegmentListRoundTrip(t *testing.T) {
	list := SegmentList{
		{PromptID: "q1", StartMs: 0, EndMs: 30000, TranscriptText: "answer one"},
		{PromptID: "q2", StartMs: 30000, EndMs: 90000},
	}

	value, err := list.Value()
	if err != nil {
		t.Fatalf("Value() error: %v", err)
	}

	var scanned SegmentList
	if err := scanned.Scan(value); err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if len(scanned) != 2 || scanned[0].TranscriptText != "answer one" || scanned[1].EndMs != 90000 {
		t.Errorf("round trip mismatch: %+v", scanned)
	}

	var empty SegmentList
	if err := empty.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) error: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("Scan(nil) = %v, want empty list", empty)
	}
}

func TestRawJSONPassThrough(t *testing.T) {
	doc := RawJSON(`{"summary":"good"}`)

	out, err := json.Marshal(struct {
		Feedback RawJSON `json:"feedback"`
	}{Feedback: doc})
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if string(out) != `{"feedback":{"summary":"good"}}` {
		t.Errorf("Marshal() = %s", out)
	}

	var none RawJSON
	out, err = json.Marshal(struct {
		Feedback RawJSON `json:"feedback"`
	}{Feedback: none})
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if string(out) != `{"feedback":null}` {
		t.Errorf("Marshal() empty = %s", out)
	}
}
