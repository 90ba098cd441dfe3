package inmemdb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/question"
)

var courseOrderingFields = map[string]compareFunc[course.Course]{
	"code":                   func(a, b course.Course) int { return compareStrings(a.Code, b.Code) },
	"title":                  func(a, b course.Course) int { return compareStrings(a.Title, b.Title) },
	"capacity":               func(a, b course.Course) int { return compareInts(a.Capacity, b.Capacity) },
	"registration_opens_at":  func(a, b course.Course) int { return compareTimes(a.RegistrationOpensAt, b.RegistrationOpensAt) },
	"registration_closes_at": func(a, b course.Course) int { return compareTimes(a.RegistrationClosesAt, b.RegistrationClosesAt) },
	"created_at":             func(a, b course.Course) int { return compareTimes(a.CreatedAt, b.CreatedAt) },
}

type courseRepository struct {
	courses       *table[course.Course]
	registrations *table[course.Registration]
	questions     *table[question.Question]
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) *courseRepository {
	return &courseRepository{courses: db.course, registrations: db.registration, questions: db.question}
}

func (repo *courseRepository) CheckCodeUniqueness(ctx context.Context, code, excludedID string, _ ...core.DBExecutor) error {
	repo.courses.mutex.RLock()
	defer repo.courses.mutex.RUnlock()

	for _, c := range repo.courses.rows {
		if c.Code == code && c.ID != excludedID {
			return course.ErrCodeExists
		}
	}
	return nil
}

func (repo *courseRepository) CreateCourse(ctx context.Context, c course.Course, _ ...core.DBExecutor) (course.Course, error) {
	repo.courses.mutex.Lock()
	defer repo.courses.mutex.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	repo.courses.rows[c.ID] = c
	return c, nil
}

func (repo *courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]course.Course, error) {
	var registered map[string]bool
	if filter != nil && filter.StudentID != "" {
		registered = make(map[string]bool)
		repo.registrations.mutex.RLock()
		for _, reg := range repo.registrations.rows {
			if reg.StudentID == filter.StudentID && reg.IsActive() {
				registered[reg.CourseID] = true
			}
		}
		repo.registrations.mutex.RUnlock()
	}

	repo.courses.mutex.RLock()
	defer repo.courses.mutex.RUnlock()

	courses := make([]course.Course, 0, len(repo.courses.rows))
	for _, c := range repo.courses.rows {
		if filter != nil {
			if filter.Search != "" && !containsFold(c.Code, filter.Search) && !containsFold(c.Title, filter.Search) {
				continue
			}
			if filter.TeacherID != "" && c.TeacherID != filter.TeacherID {
				continue
			}
			if registered != nil && !registered[c.ID] {
				continue
			}
			if filter.OpenOnly && !c.RegistrationOpen(filter.Now) {
				continue
			}
		}
		courses = append(courses, c)
	}
	sortRows(courses, ordering, courseOrderingFields, core.DBOrdering{Field: "code", Ascending: true})
	return courses, nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string, _ ...core.DBExecutor) (course.Course, error) {
	repo.courses.mutex.RLock()
	defer repo.courses.mutex.RUnlock()

	if c, ok := repo.courses.rows[id]; ok {
		return c, nil
	}
	return course.Course{}, course.ErrNotFound
}

// LockCourse reads the course; RunInTx already runs transactions one at a time.
func (repo *courseRepository) LockCourse(ctx context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	return repo.GetCourse(ctx, id, exec...)
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, c course.Course, _ ...core.DBExecutor) (course.Course, error) {
	repo.courses.mutex.Lock()
	defer repo.courses.mutex.Unlock()

	if _, ok := repo.courses.rows[c.ID]; !ok {
		return course.Course{}, course.ErrNotFound
	}
	repo.courses.rows[c.ID] = c
	return c, nil
}

func (repo *courseRepository) DeleteCourse(ctx context.Context, id string, _ ...core.DBExecutor) error {
	repo.courses.mutex.Lock()
	if _, ok := repo.courses.rows[id]; !ok {
		repo.courses.mutex.Unlock()
		return course.ErrNotFound
	}
	delete(repo.courses.rows, id)
	repo.courses.mutex.Unlock()

	repo.registrations.mutex.Lock()
	for regID, reg := range repo.registrations.rows {
		if reg.CourseID == id {
			delete(repo.registrations.rows, regID)
		}
	}
	repo.registrations.mutex.Unlock()

	repo.questions.mutex.Lock()
	for qID, q := range repo.questions.rows {
		if q.CourseID == id {
			delete(repo.questions.rows, qID)
		}
	}
	repo.questions.mutex.Unlock()
	return nil
}

func (repo *courseRepository) CloseCourses(ctx context.Context, now time.Time, _ ...core.DBExecutor) (int64, error) {
	repo.courses.mutex.Lock()
	defer repo.courses.mutex.Unlock()

	var count int64
	for id, c := range repo.courses.rows {
		if !c.IsClosed && !c.RegistrationClosesAt.IsZero() && !c.RegistrationClosesAt.After(now) {
			c.IsClosed = true
			c.UpdatedAt = now
			repo.courses.rows[id] = c
			count++
		}
	}
	return count, nil
}

func (repo *courseRepository) CreateRegistration(ctx context.Context, reg course.Registration, _ ...core.DBExecutor) (course.Registration, error) {
	repo.registrations.mutex.Lock()
	defer repo.registrations.mutex.Unlock()

	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	repo.registrations.rows[reg.ID] = reg
	return reg, nil
}

func (repo *courseRepository) GetRegistration(ctx context.Context, courseID, studentID string, _ ...core.DBExecutor) (course.Registration, error) {
	repo.registrations.mutex.RLock()
	defer repo.registrations.mutex.RUnlock()

	for _, reg := range repo.registrations.rows {
		if reg.CourseID == courseID && reg.StudentID == studentID {
			return reg, nil
		}
	}
	return course.Registration{}, course.ErrRegistrationNotFound
}

func (repo *courseRepository) UpdateRegistration(ctx context.Context, reg course.Registration, _ ...core.DBExecutor) (course.Registration, error) {
	repo.registrations.mutex.Lock()
	defer repo.registrations.mutex.Unlock()

	if _, ok := repo.registrations.rows[reg.ID]; !ok {
		return course.Registration{}, course.ErrRegistrationNotFound
	}
	repo.registrations.rows[reg.ID] = reg
	return reg, nil
}

func (repo *courseRepository) QueryRegistrations(ctx context.Context, filter course.RegistrationFilter, _ ...core.DBExecutor) ([]course.Registration, error) {
	repo.registrations.mutex.RLock()
	defer repo.registrations.mutex.RUnlock()

	regs := make([]course.Registration, 0)
	for _, reg := range repo.registrations.rows {
		if filter.CourseID != "" && reg.CourseID != filter.CourseID {
			continue
		}
		if filter.StudentID != "" && reg.StudentID != filter.StudentID {
			continue
		}
		if filter.Status != "" && reg.Status != filter.Status {
			continue
		}
		regs = append(regs, reg)
	}
	sortRows(regs, nil, map[string]compareFunc[course.Registration]{
		"created_at": func(a, b course.Registration) int { return compareTimes(a.CreatedAt, b.CreatedAt) },
	}, core.DBOrdering{Field: "created_at", Ascending: true})
	return regs, nil
}

func (repo *courseRepository) CountActiveRegistrations(ctx context.Context, courseID string, _ ...core.DBExecutor) (int, error) {
	repo.registrations.mutex.RLock()
	defer repo.registrations.mutex.RUnlock()

	var count int
	for _, reg := range repo.registrations.rows {
		if reg.CourseID == courseID && reg.IsActive() {
			count++
		}
	}
	return count, nil
}
