package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/question"
)

var questionOrderingFields = map[string]compareFunc[question.Question]{
	"type":       func(a, b question.Question) int { return compareStrings(a.Type, b.Type) },
	"points":     func(a, b question.Question) int { return compareInts(a.Points, b.Points) },
	"created_at": func(a, b question.Question) int { return compareTimes(a.CreatedAt, b.CreatedAt) },
	"updated_at": func(a, b question.Question) int { return compareTimes(a.UpdatedAt, b.UpdatedAt) },
}

type questionRepository struct {
	db *table[question.Question]
}

var _ question.Repository = (*questionRepository)(nil) // interface compliance check

func NewQuestionRepository(db *DB) *questionRepository {
	return &questionRepository{db: db.question}
}

func (repo *questionRepository) CreateQuestion(ctx context.Context, q question.Question, _ ...core.DBExecutor) (question.Question, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	repo.db.rows[q.ID] = q
	return q, nil
}

func (repo *questionRepository) QueryQuestions(ctx context.Context, courseID string, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]question.Question, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	questions := make([]question.Question, 0)
	for _, q := range repo.db.rows {
		if q.CourseID == courseID {
			questions = append(questions, q)
		}
	}
	sortRows(questions, ordering, questionOrderingFields, core.DBOrdering{Field: "created_at", Ascending: true})
	return questions, nil
}

func (repo *questionRepository) GetQuestion(ctx context.Context, id string, _ ...core.DBExecutor) (question.Question, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if q, ok := repo.db.rows[id]; ok {
		return q, nil
	}
	return question.Question{}, question.ErrNotFound
}

func (repo *questionRepository) UpdateQuestion(ctx context.Context, q question.Question, _ ...core.DBExecutor) (question.Question, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.rows[q.ID]; !ok {
		return question.Question{}, question.ErrNotFound
	}
	repo.db.rows[q.ID] = q
	return q, nil
}

func (repo *questionRepository) DeleteQuestion(ctx context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.rows[id]; !ok {
		return question.ErrNotFound
	}
	delete(repo.db.rows, id)
	return nil
}
