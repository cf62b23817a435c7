package model

import "github.com/google/uuid"

type QuestionType string

const (
	QuestionTypeSingleChoice QuestionType = "SINGLE_CHOICE"
)

// Question is a single-select question. CorrectAnswer is one of Options verbatim.
type Question struct {
	ID            uuid.UUID    `json:"id"`
	TestID        uuid.UUID    `json:"test_id"`
	Position      int          `json:"position"`
	Text          string       `json:"text"`
	Type          QuestionType `json:"type"`
	Options       []string     `json:"options"`
	CorrectAnswer string       `json:"correct_answer"`
}

// CreateQuestionRequest is one question inside CreateTestRequest.
type CreateQuestionRequest struct {
	Text          string       `json:"text" binding:"required,min=1,max=2000"`
	Type          QuestionType `json:"type" binding:"omitempty,oneof=SINGLE_CHOICE"`
	Options       []string     `json:"options" binding:"required,min=2,max=10,dive,required,max=500"`
	CorrectAnswer string       `json:"correct_answer" binding:"required,max=500"`
}

// TakerQuestion is a question as sent to a taker: no correct answer.
type TakerQuestion struct {
	ID      uuid.UUID    `json:"id"`
	Text    string       `json:"text"`
	Type    QuestionType `json:"type"`
	Options []string     `json:"options"`
}

// AnswerKeyEntry is the authoritative answer for one question, used only for grading.
type AnswerKeyEntry struct {
	QuestionID    uuid.UUID
	CorrectAnswer string
}
