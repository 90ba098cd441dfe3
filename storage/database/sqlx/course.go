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
	"github.com/trezcool/academia/core/course"
)

const (
	coursesTable       = "courses"
	registrationsTable = "registrations"
)

var (
	courseColumns = []string{
		"id", "code", "title", "description", "teacher_id", "capacity",
		"registration_opens_at", "registration_closes_at", "is_closed", "created_at", "updated_at",
	}
	courseOrderingColumns = []string{
		"code", "title", "capacity", "registration_opens_at", "registration_closes_at", "created_at",
	}
	registrationColumns = []string{"id", "course_id", "student_id", "status", "created_at", "cancelled_at"}
)

type courseRow struct {
	ID                   string      `db:"id"`
	Code                 string      `db:"code"`
	Title                string      `db:"title"`
	Description          string      `db:"description"`
	TeacherID            null.String `db:"teacher_id"`
	Capacity             int         `db:"capacity"`
	RegistrationOpensAt  null.Time   `db:"registration_opens_at"`
	RegistrationClosesAt null.Time   `db:"registration_closes_at"`
	IsClosed             bool        `db:"is_closed"`
	CreatedAt            time.Time   `db:"created_at"`
	UpdatedAt            time.Time   `db:"updated_at"`
}

func courseToRow(c course.Course) courseRow {
	return courseRow{
		ID:                   c.ID,
		Code:                 c.Code,
		Title:                c.Title,
		Description:          c.Description,
		TeacherID:            nullString(c.TeacherID),
		Capacity:             c.Capacity,
		RegistrationOpensAt:  nullTime(c.RegistrationOpensAt),
		RegistrationClosesAt: nullTime(c.RegistrationClosesAt),
		IsClosed:             c.IsClosed,
		CreatedAt:            c.CreatedAt.UTC(),
		UpdatedAt:            c.UpdatedAt.UTC(),
	}
}

func (r courseRow) course() course.Course {
	return course.Course{
		ID:                   r.ID,
		Code:                 r.Code,
		Title:                r.Title,
		Description:          r.Description,
		TeacherID:            r.TeacherID.String,
		Capacity:             r.Capacity,
		RegistrationOpensAt:  utc(r.RegistrationOpensAt),
		RegistrationClosesAt: utc(r.RegistrationClosesAt),
		IsClosed:             r.IsClosed,
		CreatedAt:            r.CreatedAt.UTC(),
		UpdatedAt:            r.UpdatedAt.UTC(),
	}
}

type registrationRow struct {
	ID          string    `db:"id"`
	CourseID    string    `db:"course_id"`
	StudentID   string    `db:"student_id"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
	CancelledAt null.Time `db:"cancelled_at"`
}

func (r registrationRow) registration() course.Registration {
	return course.Registration{
		ID:          r.ID,
		CourseID:    r.CourseID,
		StudentID:   r.StudentID,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt.UTC(),
		CancelledAt: utc(r.CancelledAt),
	}
}

type courseRepository struct {
	repository
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) *courseRepository {
	return &courseRepository{repository: newRepository(db)}
}

func (repo courseRepository) CheckCodeUniqueness(ctx context.Context, code, excludedID string, exec ...core.DBExecutor) error {
	b := repo.sb.Select("COUNT(*)").From(coursesTable).Where(sq.Eq{"code": code})
	if excludedID != "" {
		b = b.Where(sq.NotEq{"id": excludedID})
	}

	var cnt int
	if err := repo.get(ctx, repo.getExec(exec), &cnt, b); err != nil {
		return errors.Wrap(err, "checking course code uniqueness")
	}
	if cnt > 0 {
		return course.ErrCodeExists
	}
	return nil
}

func (repo courseRepository) CreateCourse(ctx context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	r := courseToRow(c)
	b := repo.sb.Insert(coursesTable).Columns(courseColumns...).Values(
		r.ID, r.Code, r.Title, r.Description, r.TeacherID, r.Capacity,
		r.RegistrationOpensAt, r.RegistrationClosesAt, r.IsClosed, r.CreatedAt, r.UpdatedAt,
	)
	if _, err := repo.execute(ctx, repo.getExec(exec), b); err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return r.course(), nil
}

func (repo courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]course.Course, error) {
	b := repo.sb.Select(courseColumns...).From(coursesTable)

	if filter != nil {
		if filter.Search != "" {
			b = b.Where(sq.Or{like("code", filter.Search), like("title", filter.Search)})
		}
		if filter.TeacherID != "" {
			b = b.Where(sq.Eq{"teacher_id": filter.TeacherID})
		}
		if filter.StudentID != "" {
			b = b.Where(
				"id IN (SELECT course_id FROM "+registrationsTable+" WHERE student_id = ? AND status = ?)",
				filter.StudentID, course.StatusActive,
			)
		}
		if filter.OpenOnly {
			now := filter.Now.UTC()
			b = b.Where(sq.And{
				sq.Eq{"is_closed": false},
				sq.Or{sq.Eq{"registration_opens_at": nil}, sq.LtOrEq{"registration_opens_at": now}},
				sq.Or{sq.Eq{"registration_closes_at": nil}, sq.Gt{"registration_closes_at": now}},
			})
		}
	}
	b = b.OrderBy(orderBy(ordering, courseOrderingColumns, core.DBOrdering{Field: "code", Ascending: true})...)

	var rows []courseRow
	if err := repo.selectAll(ctx, repo.getExec(exec), &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, r := range rows {
		courses = append(courses, r.course())
	}
	return courses, nil
}

func (repo courseRepository) GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	var r courseRow
	b := repo.sb.Select(courseColumns...).From(coursesTable).Where(sq.Eq{"id": id})
	if err := repo.get(ctx, repo.getExec(exec), &r, b); err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrNotFound, "finding course")
	}
	return r.course(), nil
}

func (repo courseRepository) LockCourse(ctx context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	var r courseRow
	b := repo.forUpdate(repo.sb.Select(courseColumns...).From(coursesTable).Where(sq.Eq{"id": id}))
	if err := repo.get(ctx, repo.getExec(exec), &r, b); err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrNotFound, "locking course")
	}
	return r.course(), nil
}

func (repo courseRepository) UpdateCourse(ctx context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	r := courseToRow(c)
	b := repo.sb.Update(coursesTable).
		SetMap(map[string]interface{}{
			"code":                   r.Code,
			"title":                  r.Title,
			"description":            r.Description,
			"teacher_id":             r.TeacherID,
			"capacity":               r.Capacity,
			"registration_opens_at":  r.RegistrationOpensAt,
			"registration_closes_at": r.RegistrationClosesAt,
			"is_closed":              r.IsClosed,
			"updated_at":             r.UpdatedAt,
		}).
		Where(sq.Eq{"id": r.ID})

	cnt, err := repo.execute(ctx, repo.getExec(exec), b)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	if cnt == 0 {
		return course.Course{}, course.ErrNotFound
	}
	return r.course(), nil
}

// DeleteCourse deletes the course; its registrations & questions go with it.
func (repo courseRepository) DeleteCourse(ctx context.Context, id string, exec ...core.DBExecutor) error {
	cnt, err := repo.execute(ctx, repo.getExec(exec), repo.sb.Delete(coursesTable).Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	if cnt == 0 {
		return course.ErrNotFound
	}
	return nil
}

func (repo courseRepository) CloseCourses(ctx context.Context, now time.Time, exec ...core.DBExecutor) (int64, error) {
	now = now.UTC()
	b := repo.sb.Update(coursesTable).
		Set("is_closed", true).
		Set("updated_at", now).
		Where(sq.And{
			sq.Eq{"is_closed": false},
			sq.NotEq{"registration_closes_at": nil},
			sq.LtOrEq{"registration_closes_at": now},
		})

	cnt, err := repo.execute(ctx, repo.getExec(exec), b)
	if err != nil {
		return 0, errors.Wrap(err, "closing courses")
	}
	return cnt, nil
}

func (repo courseRepository) CreateRegistration(ctx context.Context, reg course.Registration, exec ...core.DBExecutor) (course.Registration, error) {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	reg.CreatedAt = reg.CreatedAt.UTC()
	b := repo.sb.Insert(registrationsTable).Columns(registrationColumns...).Values(
		reg.ID, reg.CourseID, reg.StudentID, reg.Status, reg.CreatedAt, nullTime(reg.CancelledAt),
	)
	if _, err := repo.execute(ctx, repo.getExec(exec), b); err != nil {
		return course.Registration{}, errors.Wrap(err, "inserting registration")
	}
	return reg, nil
}

func (repo courseRepository) GetRegistration(ctx context.Context, courseID, studentID string, exec ...core.DBExecutor) (course.Registration, error) {
	var r registrationRow
	b := repo.sb.Select(registrationColumns...).From(registrationsTable).
		Where(sq.Eq{"course_id": courseID, "student_id": studentID})
	if err := repo.get(ctx, repo.getExec(exec), &r, b); err != nil {
		return course.Registration{}, trapNoRowsErr(err, course.ErrRegistrationNotFound, "finding registration")
	}
	return r.registration(), nil
}

func (repo courseRepository) UpdateRegistration(ctx context.Context, reg course.Registration, exec ...core.DBExecutor) (course.Registration, error) {
	b := repo.sb.Update(registrationsTable).
		Set("status", reg.Status).
		Set("created_at", reg.CreatedAt.UTC()).
		Set("cancelled_at", nullTime(reg.CancelledAt)).
		Where(sq.Eq{"id": reg.ID})

	cnt, err := repo.execute(ctx, repo.getExec(exec), b)
	if err != nil {
		return course.Registration{}, errors.Wrap(err, "updating registration")
	}
	if cnt == 0 {
		return course.Registration{}, course.ErrRegistrationNotFound
	}
	return reg, nil
}

func (repo courseRepository) QueryRegistrations(ctx context.Context, filter course.RegistrationFilter, exec ...core.DBExecutor) ([]course.Registration, error) {
	where := sq.Eq{}
	if filter.CourseID != "" {
		where["course_id"] = filter.CourseID
	}
	if filter.StudentID != "" {
		where["student_id"] = filter.StudentID
	}
	if filter.Status != "" {
		where["status"] = filter.Status
	}
	b := repo.sb.Select(registrationColumns...).From(registrationsTable).Where(where).OrderBy("created_at ASC")

	var rows []registrationRow
	if err := repo.selectAll(ctx, repo.getExec(exec), &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying registrations")
	}
	regs := make([]course.Registration, 0, len(rows))
	for _, r := range rows {
		regs = append(regs, r.registration())
	}
	return regs, nil
}

func (repo courseRepository) CountActiveRegistrations(ctx context.Context, courseID string, exec ...core.DBExecutor) (int, error) {
	var cnt int
	b := repo.sb.Select("COUNT(*)").From(registrationsTable).
		Where(sq.Eq{"course_id": courseID, "status": course.StatusActive})
	if err := repo.get(ctx, repo.getExec(exec), &cnt, b); err != nil {
		return 0, errors.Wrap(err, "counting registrations")
	}
	return cnt, nil
}
