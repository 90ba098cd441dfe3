package question

import (
	"time"

	"github.com/trezcool/academia/core"
)

// Types
const (
	TypeSingleChoice   = "single_choice"
	TypeMultipleChoice = "multiple_choice"
	TypeTrueFalse      = "true_false"
	TypeShortAnswer    = "short_answer"
	TypeEssay          = "essay"
)

var Types = []string{TypeSingleChoice, TypeMultipleChoice, TypeTrueFalse, TypeShortAnswer, TypeEssay}

type Question struct {
	ID          string    `json:"id"`
	CourseID    string    `json:"course_id"`
	Type        string    `json:"type"`
	Content     string    `json:"content"`
	Choices     []string  `json:"choices"`
	Answers     []int     `json:"answers,omitempty"`
	AnswerText  string    `json:"answer_text,omitempty"`
	Points      int       `json:"points"`
	Explanation string    `json:"explanation,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// Public strips the answers for students.
func (q Question) Public() Question {
	q.Answers = nil
	q.AnswerText = ""
	q.Explanation = ""
	return q
}

// NewQuestion contains information needed to create a new Question.
type NewQuestion struct {
	Type        string   `json:"type" validate:"required,questiontype"`
	Content     string   `json:"content" validate:"required"`
	Choices     []string `json:"choices"`
	Answers     []int    `json:"answers"`
	AnswerText  string   `json:"answer_text"`
	Points      int      `json:"points"`
	Explanation string   `json:"explanation"`
}

func (nq *NewQuestion) Clean() {
	nq.Type = core.CleanString(nq.Type, true /* lower */)
	nq.Content = core.CleanString(nq.Content)
	nq.AnswerText = core.CleanString(nq.AnswerText)
	nq.Explanation = core.CleanString(nq.Explanation)
	for i := range nq.Choices {
		nq.Choices[i] = core.CleanString(nq.Choices[i])
	}
}

// UpdateQuestion replaces the editable fields of a Question; zero values keep the current ones.
type UpdateQuestion struct {
	Type        string   `json:"type" validate:"omitempty,questiontype"`
	Content     string   `json:"content"`
	Choices     []string `json:"choices"`
	Answers     []int    `json:"answers"`
	AnswerText  *string  `json:"answer_text"`
	Points      int      `json:"points"`
	Explanation *string  `json:"explanation"`
}

func (uq *UpdateQuestion) Clean() {
	uq.Type = core.CleanString(uq.Type, true /* lower */)
	uq.Content = core.CleanString(uq.Content)
	for i := range uq.Choices {
		uq.Choices[i] = core.CleanString(uq.Choices[i])
	}
}

// Apply returns q with the provided fields replaced.
func (uq UpdateQuestion) Apply(q Question) Question {
	if uq.Type != "" {
		q.Type = uq.Type
	}
	if uq.Content != "" {
		q.Content = uq.Content
	}
	if uq.Choices != nil {
		q.Choices = uq.Choices
	}
	if uq.Answers != nil {
		q.Answers = uq.Answers
	}
	if uq.AnswerText != nil {
		q.AnswerText = core.CleanString(*uq.AnswerText)
	}
	if uq.Points != 0 {
		q.Points = uq.Points
	}
	if uq.Explanation != nil {
		q.Explanation = core.CleanString(*uq.Explanation)
	}
	return q
}
