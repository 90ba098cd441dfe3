package question

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
)

func TestValidator_Validate(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name       string
		q          Question
		wantFields map[string]string
		check      func(t *testing.T, q Question)
	}{
		{
			name: "valid single choice",
			q:    Question{Type: " Single_Choice ", Content: " 2+2? ", Choices: []string{" 3", "4 "}, Answers: []int{1}, Points: 5},
			check: func(t *testing.T, q Question) {
				assert.Equal(t, TypeSingleChoice, q.Type)
				assert.Equal(t, "2+2?", q.Content)
				assert.Equal(t, []string{"3", "4"}, q.Choices)
			},
		},
		{
			name: "valid multiple choice",
			q:    Question{Type: TypeMultipleChoice, Content: "primes?", Choices: []string{"2", "3", "4"}, Answers: []int{0, 1}, Points: 10},
		},
		{
			name: "true/false choices filled in",
			q:    Question{Type: TypeTrueFalse, Content: "sky is blue", Answers: []int{0}, Points: 1},
			check: func(t *testing.T, q Question) {
				assert.Equal(t, []string{"true", "false"}, q.Choices)
			},
		},
		{
			name: "true/false choices normalized",
			q:    Question{Type: TypeTrueFalse, Content: "sky is blue", Choices: []string{"TRUE", " False"}, Answers: []int{1}, Points: 1},
			check: func(t *testing.T, q Question) {
				assert.Equal(t, []string{"true", "false"}, q.Choices)
			},
		},
		{
			name: "valid short answer",
			q:    Question{Type: TypeShortAnswer, Content: "capital of DRC?", AnswerText: " Kinshasa ", Points: 2},
			check: func(t *testing.T, q Question) {
				assert.Equal(t, "Kinshasa", q.AnswerText)
			},
		},
		{
			name: "valid essay",
			q:    Question{Type: TypeEssay, Content: "discuss", Points: 100},
		},
		{
			name:       "empty question",
			q:          Question{},
			wantFields: map[string]string{"content": errRequired, "type": errRequired, "points": errPointsRange},
		},
		{
			name:       "unknown type",
			q:          Question{Type: "riddle", Content: "?", Points: 1},
			wantFields: map[string]string{"type": questionTypeText},
		},
		{
			name:       "points too high",
			q:          Question{Type: TypeEssay, Content: "?", Points: 101},
			wantFields: map[string]string{"points": errPointsRange},
		},
		{
			name:       "too few choices",
			q:          Question{Type: TypeSingleChoice, Content: "?", Choices: []string{"a"}, Answers: []int{0}, Points: 1},
			wantFields: map[string]string{"choices": errChoicesCount},
		},
		{
			name:       "too many choices",
			q:          Question{Type: TypeSingleChoice, Content: "?", Choices: []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11"}, Answers: []int{0}, Points: 1},
			wantFields: map[string]string{"choices": errChoicesCount},
		},
		{
			name:       "empty choice",
			q:          Question{Type: TypeMultipleChoice, Content: "?", Choices: []string{"a", "  "}, Answers: []int{0}, Points: 1},
			wantFields: map[string]string{"choices": errChoiceEmpty},
		},
		{
			name:       "duplicated choices",
			q:          Question{Type: TypeMultipleChoice, Content: "?", Choices: []string{"a", " a"}, Answers: []int{0}, Points: 1},
			wantFields: map[string]string{"choices": errChoicesDuplicated},
		},
		{
			name:       "single choice needs one answer",
			q:          Question{Type: TypeSingleChoice, Content: "?", Choices: []string{"a", "b"}, Answers: []int{0, 1}, Points: 1},
			wantFields: map[string]string{"answers": errOneAnswer},
		},
		{
			name:       "multiple choice needs an answer",
			q:          Question{Type: TypeMultipleChoice, Content: "?", Choices: []string{"a", "b"}, Points: 1},
			wantFields: map[string]string{"answers": errAtLeastOneAnswer},
		},
		{
			name:       "answer out of range",
			q:          Question{Type: TypeMultipleChoice, Content: "?", Choices: []string{"a", "b"}, Answers: []int{0, 2}, Points: 1},
			wantFields: map[string]string{"answers": errAnswerOutOfRange},
		},
		{
			name:       "negative answer",
			q:          Question{Type: TypeSingleChoice, Content: "?", Choices: []string{"a", "b"}, Answers: []int{-1}, Points: 1},
			wantFields: map[string]string{"answers": errAnswerOutOfRange},
		},
		{
			name:       "duplicated answers",
			q:          Question{Type: TypeMultipleChoice, Content: "?", Choices: []string{"a", "b"}, Answers: []int{1, 1}, Points: 1},
			wantFields: map[string]string{"answers": errAnswersDuplicated},
		},
		{
			name:       "true/false wrong choices",
			q:          Question{Type: TypeTrueFalse, Content: "?", Choices: []string{"yes", "no"}, Answers: []int{0}, Points: 1},
			wantFields: map[string]string{"choices": errTrueFalseChoices},
		},
		{
			name:       "true/false needs one answer",
			q:          Question{Type: TypeTrueFalse, Content: "?", Points: 1},
			wantFields: map[string]string{"answers": errOneAnswer},
		},
		{
			name:       "short answer text required",
			q:          Question{Type: TypeShortAnswer, Content: "?", AnswerText: " ", Points: 1},
			wantFields: map[string]string{"answer_text": errRequired},
		},
		{
			name:       "short answer forbids choices",
			q:          Question{Type: TypeShortAnswer, Content: "?", Choices: []string{"a"}, AnswerText: "a", Points: 1},
			wantFields: map[string]string{"choices": errChoicesForbidden},
		},
		{
			name:       "essay forbids choices & answers",
			q:          Question{Type: TypeEssay, Content: "?", Choices: []string{"a"}, Answers: []int{0}, Points: 1},
			wantFields: map[string]string{"choices": errChoicesForbidden, "answers": errAnswersForbidden},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tt.q
			err := v.Validate(&q)
			if tt.wantFields == nil {
				require.NoError(t, err)
				if tt.check != nil {
					tt.check(t, q)
				}
				return
			}
			verr, ok := err.(*core.ValidationError)
			require.True(t, ok, "got %v", err)
			got := make(map[string]string, len(verr.Fields))
			for _, fe := range verr.Fields {
				got[fe.Field] = fe.Error
			}
			assert.Equal(t, tt.wantFields, got)
		})
	}
}

func TestQuestion_Public(t *testing.T) {
	q := Question{Content: "?", Choices: []string{"a", "b"}, Answers: []int{1}, AnswerText: "b", Explanation: "because"}
	pub := q.Public()
	assert.Nil(t, pub.Answers)
	assert.Empty(t, pub.AnswerText)
	assert.Empty(t, pub.Explanation)
	assert.Equal(t, q.Choices, pub.Choices)
	assert.Equal(t, []int{1}, q.Answers, "original is untouched")
}

type memRepo struct {
	rows map[string]Question
}

func (r *memRepo) CreateQuestion(ctx context.Context, q Question, _ ...core.DBExecutor) (Question, error) {
	q.ID = "q1"
	r.rows[q.ID] = q
	return q, nil
}

func (r *memRepo) QueryQuestions(ctx context.Context, courseID string, _ []core.DBOrdering, _ ...core.DBExecutor) ([]Question, error) {
	var res []Question
	for _, q := range r.rows {
		if q.CourseID == courseID {
			res = append(res, q)
		}
	}
	return res, nil
}

func (r *memRepo) GetQuestion(ctx context.Context, id string, _ ...core.DBExecutor) (Question, error) {
	q, ok := r.rows[id]
	if !ok {
		return Question{}, ErrNotFound
	}
	return q, nil
}

func (r *memRepo) UpdateQuestion(ctx context.Context, q Question, _ ...core.DBExecutor) (Question, error) {
	r.rows[q.ID] = q
	return q, nil
}

func (r *memRepo) DeleteQuestion(ctx context.Context, id string, _ ...core.DBExecutor) error {
	delete(r.rows, id)
	return nil
}

func TestService_CreateUpdate(t *testing.T) {
	ctx := context.Background()
	svc := NewService(&memRepo{rows: make(map[string]Question)})

	_, err := svc.Create(ctx, "c1", "u1", NewQuestion{Type: TypeEssay, Content: "?"})
	assert.Error(t, err, "points are required")

	q, err := svc.Create(ctx, "c1", "u1", NewQuestion{Type: TypeTrueFalse, Content: "sky is blue", Answers: []int{0}, Points: 1})
	require.NoError(t, err)
	assert.Equal(t, "c1", q.CourseID)
	assert.Equal(t, "u1", q.CreatedBy)
	assert.Equal(t, []string{"true", "false"}, q.Choices)

	// choices of the previous type are kept unless cleared
	_, err = svc.Update(ctx, q, UpdateQuestion{Type: TypeShortAnswer})
	assert.Error(t, err)

	answer := "yes"
	updated, err := svc.Update(ctx, q, UpdateQuestion{Type: TypeShortAnswer, Choices: []string{}, Answers: []int{}, AnswerText: &answer, Points: 3})
	require.NoError(t, err)
	assert.Equal(t, TypeShortAnswer, updated.Type)
	assert.Empty(t, updated.Choices)
	assert.Empty(t, updated.Answers)
	assert.Equal(t, "yes", updated.AnswerText)
	assert.Equal(t, 3, updated.Points)

	list, err := svc.QueryByCourse(ctx, "c1", nil)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, svc.Delete(ctx, q.ID))
	_, err = svc.GetByID(ctx, q.ID)
	assert.True(t, core.IsNotFound(err))
}
