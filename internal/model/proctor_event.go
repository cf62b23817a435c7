package model

import (
	"time"

	"github.com/google/uuid"
)

// ProctorEventKind classifies what the taker client observed.
type ProctorEventKind string

const (
	// ProctorEventVisibilityHidden is a foreground → background transition (a violation).
	ProctorEventVisibilityHidden ProctorEventKind = "VISIBILITY_HIDDEN"
	// ProctorEventInputBlocked is a suppressed copy/cut/paste/context-menu attempt.
	ProctorEventInputBlocked ProctorEventKind = "INPUT_BLOCKED"
)

// ProctorEvent is a client-reported proctoring observation. It is
// informational only and never affects grading.
type ProctorEvent struct {
	ID             int64            `json:"id"`
	TestID         uuid.UUID        `json:"test_id"`
	StudentID      int              `json:"student_id"`
	StudentEmail   string           `json:"student_email,omitempty"`
	Kind           ProctorEventKind `json:"kind"`
	ViolationCount int              `json:"violation_count"`
	RecordedAt     time.Time        `json:"recorded_at"`
}
