package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/question"
)

const questionsTable = "questions"

var (
	questionColumns = []string{
		"id", "course_id", "type", "content", "choices", "answers", "answer_text", "points", "explanation",
		"created_by", "created_at", "updated_at",
	}
	questionOrderingColumns = []string{"type", "points", "created_at", "updated_at"}
)

type questionRow struct {
	ID          string           `db:"id"`
	CourseID    string           `db:"course_id"`
	Type        string           `db:"type"`
	Content     string           `db:"content"`
	Choices     jsonList[string] `db:"choices"`
	Answers     jsonList[int]    `db:"answers"`
	AnswerText  string           `db:"answer_text"`
	Points      int              `db:"points"`
	Explanation string           `db:"explanation"`
	CreatedBy   null.String      `db:"created_by"`
	CreatedAt   time.Time        `db:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at"`
}

func questionToRow(q question.Question) questionRow {
	return questionRow{
		ID:          q.ID,
		CourseID:    q.CourseID,
		Type:        q.Type,
		Content:     q.Content,
		Choices:     q.Choices,
		Answers:     q.Answers,
		AnswerText:  q.AnswerText,
		Points:      q.Points,
		Explanation: q.Explanation,
		CreatedBy:   nullString(q.CreatedBy),
		CreatedAt:   q.CreatedAt.UTC(),
		UpdatedAt:   q.UpdatedAt.UTC(),
	}
}

func (r questionRow) question() question.Question {
	return question.Question{
		ID:          r.ID,
		CourseID:    r.CourseID,
		Type:        r.Type,
		Content:     r.Content,
		Choices:     r.Choices,
		Answers:     r.Answers,
		AnswerText:  r.AnswerText,
		Points:      r.Points,
		Explanation: r.Explanation,
		CreatedBy:   r.CreatedBy.String,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type questionRepository struct {
	repository
}

var _ question.Repository = (*questionRepository)(nil) // interface compliance check

func NewQuestionRepository(db *sqlx.DB) *questionRepository {
	return &questionRepository{repository: newRepository(db)}
}

func (repo questionRepository) CreateQuestion(ctx context.Context, q question.Question, exec ...core.DBExecutor) (question.Question, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	r := questionToRow(q)
	b := repo.sb.Insert(questionsTable).Columns(questionColumns...).Values(
		r.ID, r.CourseID, r.Type, r.Content, r.Choices, r.Answers, r.AnswerText, r.Points, r.Explanation,
		r.CreatedBy, r.CreatedAt, r.UpdatedAt,
	)
	if _, err := repo.execute(ctx, repo.getExec(exec), b); err != nil {
		return question.Question{}, errors.Wrap(err, "inserting question")
	}
	return r.question(), nil
}

func (repo questionRepository) QueryQuestions(ctx context.Context, courseID string, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]question.Question, error) {
	b := repo.sb.Select(questionColumns...).From(questionsTable).
		Where(sq.Eq{"course_id": courseID}).
		OrderBy(orderBy(ordering, questionOrderingColumns, core.DBOrdering{Field: "created_at", Ascending: true})...)

	var rows []questionRow
	if err := repo.selectAll(ctx, repo.getExec(exec), &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying questions")
	}
	questions := make([]question.Question, 0, len(rows))
	for _, r := range rows {
		questions = append(questions, r.question())
	}
	return questions, nil
}

func (repo questionRepository) GetQuestion(ctx context.Context, id string, exec ...core.DBExecutor) (question.Question, error) {
	var r questionRow
	b := repo.sb.Select(questionColumns...).From(questionsTable).Where(sq.Eq{"id": id})
	if err := repo.get(ctx, repo.getExec(exec), &r, b); err != nil {
		return question.Question{}, trapNoRowsErr(err, question.ErrNotFound, "finding question")
	}
	return r.question(), nil
}

func (repo questionRepository) UpdateQuestion(ctx context.Context, q question.Question, exec ...core.DBExecutor) (question.Question, error) {
	r := questionToRow(q)
	b := repo.sb.Update(questionsTable).
		SetMap(map[string]interface{}{
			"type":        r.Type,
			"content":     r.Content,
			"choices":     r.Choices,
			"answers":     r.Answers,
			"answer_text": r.AnswerText,
			"points":      r.Points,
			"explanation": r.Explanation,
			"updated_at":  r.UpdatedAt,
		}).
		Where(sq.Eq{"id": r.ID})

	cnt, err := repo.execute(ctx, repo.getExec(exec), b)
	if err != nil {
		return question.Question{}, errors.Wrap(err, "updating question")
	}
	if cnt == 0 {
		return question.Question{}, question.ErrNotFound
	}
	return r.question(), nil
}

func (repo questionRepository) DeleteQuestion(ctx context.Context, id string, exec ...core.DBExecutor) error {
	cnt, err := repo.execute(ctx, repo.getExec(exec), repo.sb.Delete(questionsTable).Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting question")
	}
	if cnt == 0 {
		return question.ErrNotFound
	}
	return nil
}
