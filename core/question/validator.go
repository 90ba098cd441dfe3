package question

import (
	"fmt"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
)

const (
	MinPoints  = 1
	MaxPoints  = 100
	MinChoices = 2
	MaxChoices = 10

	choiceTrue  = "true"
	choiceFalse = "false"
)

var (
	questionTypeTag  = "questiontype"
	questionTypeText = "invalid question type"

	errRequired          = "this field is required"
	errPointsRange       = fmt.Sprintf("points must be between %d and %d", MinPoints, MaxPoints)
	errChoicesCount      = fmt.Sprintf("between %d and %d choices are required", MinChoices, MaxChoices)
	errChoiceEmpty       = "choices cannot be empty"
	errChoicesDuplicated = "choices must be distinct"
	errChoicesForbidden  = "this question type does not accept choices"
	errAnswersForbidden  = "this question type does not accept answers"
	errOneAnswer         = "exactly one answer is required"
	errAtLeastOneAnswer  = "at least one answer is required"
	errAnswerOutOfRange  = "answers must reference existing choices"
	errAnswersDuplicated = "answers must be distinct"
	errTrueFalseChoices  = `choices must be "true" and "false"`
)

// InitValidators registers the question validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterValidator(validate, translator, questionTypeTag, questionTypeText, core.OneOf(Types))
}

// rule checks one aspect of a question; it may normalize q and reports at most one field error.
type rule func(q *Question) *core.FieldError

// Validator applies the question rules in order and collects one error per field.
type Validator struct {
	rules []rule
}

func NewValidator() *Validator {
	return &Validator{rules: []rule{
		contentRule,
		typeRule,
		pointsRule,
		choicesRule,
		answersRule,
		answerTextRule,
	}}
}

// Validate normalizes q and returns a *core.ValidationError listing every failed rule.
func (v *Validator) Validate(q *Question) error {
	var fields []core.FieldError
	seen := make(map[string]bool)
	for _, r := range v.rules {
		if fe := r(q); fe != nil && !seen[fe.Field] {
			seen[fe.Field] = true
			fields = append(fields, *fe)
		}
	}
	if len(fields) > 0 {
		return core.NewValidationError(nil, fields...)
	}
	return nil
}

func fieldErr(field, msg string) *core.FieldError {
	return &core.FieldError{Field: field, Error: msg}
}

func contentRule(q *Question) *core.FieldError {
	q.Content = core.CleanString(q.Content)
	if q.Content == "" {
		return fieldErr("content", errRequired)
	}
	return nil
}

func typeRule(q *Question) *core.FieldError {
	q.Type = core.CleanString(q.Type, true /* lower */)
	if q.Type == "" {
		return fieldErr("type", errRequired)
	}
	if !core.StringInSlice(q.Type, Types) {
		return fieldErr("type", questionTypeText)
	}
	return nil
}

func pointsRule(q *Question) *core.FieldError {
	if q.Points < MinPoints || q.Points > MaxPoints {
		return fieldErr("points", errPointsRange)
	}
	return nil
}

func choicesRule(q *Question) *core.FieldError {
	switch q.Type {
	case TypeTrueFalse:
		if len(q.Choices) == 0 {
			q.Choices = []string{choiceTrue, choiceFalse}
		}
		if len(q.Choices) != 2 ||
			core.CleanString(q.Choices[0], true) != choiceTrue ||
			core.CleanString(q.Choices[1], true) != choiceFalse {
			return fieldErr("choices", errTrueFalseChoices)
		}
		q.Choices = []string{choiceTrue, choiceFalse}
	case TypeSingleChoice, TypeMultipleChoice:
		if len(q.Choices) < MinChoices || len(q.Choices) > MaxChoices {
			return fieldErr("choices", errChoicesCount)
		}
		seen := make(map[string]bool, len(q.Choices))
		for i, choice := range q.Choices {
			choice = core.CleanString(choice)
			if choice == "" {
				return fieldErr("choices", errChoiceEmpty)
			}
			if seen[choice] {
				return fieldErr("choices", errChoicesDuplicated)
			}
			seen[choice] = true
			q.Choices[i] = choice
		}
	case TypeShortAnswer, TypeEssay:
		if len(q.Choices) > 0 {
			return fieldErr("choices", errChoicesForbidden)
		}
		q.Choices = nil
	}
	return nil
}

func answersRule(q *Question) *core.FieldError {
	switch q.Type {
	case TypeSingleChoice, TypeTrueFalse:
		if len(q.Answers) != 1 {
			return fieldErr("answers", errOneAnswer)
		}
	case TypeMultipleChoice:
		if len(q.Answers) == 0 {
			return fieldErr("answers", errAtLeastOneAnswer)
		}
	case TypeShortAnswer, TypeEssay:
		if len(q.Answers) > 0 {
			return fieldErr("answers", errAnswersForbidden)
		}
		q.Answers = nil
		return nil
	default:
		return nil
	}

	seen := make(map[int]bool, len(q.Answers))
	for _, ans := range q.Answers {
		if ans < 0 || ans >= len(q.Choices) {
			return fieldErr("answers", errAnswerOutOfRange)
		}
		if seen[ans] {
			return fieldErr("answers", errAnswersDuplicated)
		}
		seen[ans] = true
	}
	return nil
}

func answerTextRule(q *Question) *core.FieldError {
	q.AnswerText = core.CleanString(q.AnswerText)
	if q.Type == TypeShortAnswer && q.AnswerText == "" {
		return fieldErr("answer_text", errRequired)
	}
	return nil
}
