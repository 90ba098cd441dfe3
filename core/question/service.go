package question

import (
	"context"
	"time"

	"github.com/trezcool/academia/core"
)

var ErrNotFound = core.NewNotFoundError("question")

type (
	Repository interface {
		CreateQuestion(ctx context.Context, q Question, exec ...core.DBExecutor) (Question, error)
		QueryQuestions(ctx context.Context, courseID string, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Question, error)
		GetQuestion(ctx context.Context, id string, exec ...core.DBExecutor) (Question, error)
		UpdateQuestion(ctx context.Context, q Question, exec ...core.DBExecutor) (Question, error)
		DeleteQuestion(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	ServiceInterface interface {
		Create(ctx context.Context, courseID, authorID string, nq NewQuestion) (Question, error)
		QueryByCourse(ctx context.Context, courseID string, ordering []core.DBOrdering) ([]Question, error)
		GetByID(ctx context.Context, id string) (Question, error)
		Update(ctx context.Context, q Question, uq UpdateQuestion) (Question, error)
		Delete(ctx context.Context, id string) error
	}

	Service struct {
		repo      Repository
		validator *Validator
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository) *Service {
	return &Service{repo: repo, validator: NewValidator()}
}

func (svc *Service) Create(ctx context.Context, courseID, authorID string, nq NewQuestion) (Question, error) {
	now := time.Now().UTC()
	q := Question{
		CourseID:    courseID,
		Type:        nq.Type,
		Content:     nq.Content,
		Choices:     nq.Choices,
		Answers:     nq.Answers,
		AnswerText:  nq.AnswerText,
		Points:      nq.Points,
		Explanation: nq.Explanation,
		CreatedBy:   authorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := svc.validator.Validate(&q); err != nil {
		return Question{}, err
	}
	return svc.repo.CreateQuestion(ctx, q)
}

func (svc *Service) QueryByCourse(ctx context.Context, courseID string, ordering []core.DBOrdering) ([]Question, error) {
	return svc.repo.QueryQuestions(ctx, courseID, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Question, error) {
	return svc.repo.GetQuestion(ctx, id)
}

func (svc *Service) Update(ctx context.Context, q Question, uq UpdateQuestion) (Question, error) {
	q = uq.Apply(q)
	if err := svc.validator.Validate(&q); err != nil {
		return Question{}, err
	}
	q.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateQuestion(ctx, q)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteQuestion(ctx, id)
}
