package model

import (
	"time"

	"github.com/google/uuid"
)

// Test is a timed multiple-choice test owned by its author.
type Test struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	DurationMinutes int        `json:"duration_minutes"`
	CreatedBy       int        `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	Questions       []Question `json:"questions,omitempty"`
}

// TestSummary is a row of the test listing.
type TestSummary struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	DurationMinutes int       `json:"duration_minutes"`
	CreatorEmail    string    `json:"creator_email"`
	QuestionCount   int       `json:"question_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// CreateTestRequest is the payload for authoring a test with its questions.
type CreateTestRequest struct {
	Title           string                  `json:"title" binding:"required,min=3,max=255"`
	Description     string                  `json:"description" binding:"max=5000"`
	DurationMinutes int                     `json:"duration_minutes" binding:"required,min=1,max=480"`
	Questions       []CreateQuestionRequest `json:"questions" binding:"required,min=1,max=200,dive"`
}

// TakerTest is the payload served to takers (and cached in Redis).
// It must never carry correct answers.
type TakerTest struct {
	ID              uuid.UUID       `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	DurationMinutes int             `json:"duration_minutes"`
	Questions       []TakerQuestion `json:"questions"`
}

// ForTaker strips the answer key from t.
func (t *Test) ForTaker() *TakerTest {
	qs := make([]TakerQuestion, len(t.Questions))
	for i, q := range t.Questions {
		qs[i] = TakerQuestion{
			ID:      q.ID,
			Text:    q.Text,
			Type:    q.Type,
			Options: q.Options,
		}
	}
	return &TakerTest{
		ID:              t.ID,
		Title:           t.Title,
		Description:     t.Description,
		DurationMinutes: t.DurationMinutes,
		Questions:       qs,
	}
}
