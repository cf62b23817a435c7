package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus is the termination reason carried into the stored submission.
type SubmissionStatus string

const (
	SubmissionStatusCompleted  SubmissionStatus = "COMPLETED"
	SubmissionStatusTimeout    SubmissionStatus = "TIMEOUT"
	SubmissionStatusTerminated SubmissionStatus = "TERMINATED"
)

// Valid reports whether s is one of the three termination reasons.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionStatusCompleted, SubmissionStatusTimeout, SubmissionStatusTerminated:
		return true
	}
	return false
}

// TestSubmission is a graded attempt. It is written once and never updated.
type TestSubmission struct {
	ID        uuid.UUID        `json:"id"`
	StudentID int              `json:"student_id"`
	TestID    uuid.UUID        `json:"test_id"`
	Score     int              `json:"score"`
	Status    SubmissionStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	Answers   []AnswerRecord   `json:"answers"`
}

// AnswerRecord is the graded answer for one question of a submission.
type AnswerRecord struct {
	ID             uuid.UUID `json:"id"`
	SubmissionID   uuid.UUID `json:"submission_id"`
	QuestionID     uuid.UUID `json:"question_id"`
	Position       int       `json:"position"`
	SelectedAnswer string    `json:"selected_answer"`
	IsCorrect      bool      `json:"is_correct"`
}

// SubmitRequest is the grading payload: question id → selected option.
type SubmitRequest struct {
	Answers map[string]string `json:"answers"`
	Status  SubmissionStatus  `json:"status" binding:"required,oneof=COMPLETED TIMEOUT TERMINATED"`
}

// SubmitResult is returned once a submission is durable.
type SubmitResult struct {
	SubmissionID uuid.UUID        `json:"submission_id"`
	Score        int              `json:"score"`
	Total        int              `json:"total"`
	Status       SubmissionStatus `json:"status"`
}

// SubmissionDetail is the owner's review of a graded submission.
type SubmissionDetail struct {
	ID             uuid.UUID        `json:"id"`
	TestID         uuid.UUID        `json:"test_id"`
	TestTitle      string           `json:"test_title"`
	StudentID      int              `json:"-"`
	Score          int              `json:"score"`
	TotalQuestions int              `json:"total_questions"`
	Status         SubmissionStatus `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	Answers        []AnswerReview   `json:"answers"`
}

// AnswerReview pairs a stored answer with the question and its correct answer.
type AnswerReview struct {
	QuestionID     uuid.UUID `json:"question_id"`
	Text           string    `json:"text"`
	Options        []string  `json:"options"`
	SelectedAnswer string    `json:"selected_answer"`
	IsCorrect      bool      `json:"is_correct"`
	CorrectAnswer  string    `json:"correct_answer"`
}

// StudentContact identifies a taker in aggregate views.
type StudentContact struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
}

// SubmissionSummary is one row of a submission listing.
type SubmissionSummary struct {
	ID        uuid.UUID        `json:"submission_id"`
	TestID    uuid.UUID        `json:"test_id"`
	TestTitle string           `json:"test_title,omitempty"`
	Student   *StudentContact  `json:"student,omitempty"`
	Score     int              `json:"score"`
	Status    SubmissionStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}

// SortOrder orders submissions by score.
type SortOrder string

const (
	SortDesc SortOrder = "desc"
	SortAsc  SortOrder = "asc"
)

// ParseSortOrder maps a query value to a SortOrder. Empty means descending.
func ParseSortOrder(raw string) (SortOrder, bool) {
	switch raw {
	case "", string(SortDesc):
		return SortDesc, true
	case string(SortAsc):
		return SortAsc, true
	}
	return "", false
}
