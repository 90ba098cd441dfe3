package course

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

const registrationConfirmedTemplate = "registration_confirmed"

var (
	// errors
	ErrNotFound             = core.NewNotFoundError("course")
	ErrRegistrationNotFound = core.NewNotFoundError("registration")
	ErrCodeExists           = errors.New("a course with this code already exists")
	ErrRegistrationClosed   = errors.New("registration is closed")
	ErrCourseFull           = errors.New("course is full")
	ErrAlreadyRegistered    = errors.New("already registered to this course")
	ErrNotStudent           = errors.New("only students can register to courses")
	ErrNotTeacher           = errors.New("teacher not found")

	errCapacityTooLow = "capacity cannot be less than the number of registered students"

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		// CheckCodeUniqueness returns ErrCodeExists when a course other than excludedID holds code.
		CheckCodeUniqueness(ctx context.Context, code, excludedID string, exec ...core.DBExecutor) error
		CreateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
		QueryCourses(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Course, error)
		GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error)
		// LockCourse reads the course and holds its row until exec's transaction ends.
		LockCourse(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error)
		UpdateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
		DeleteCourse(ctx context.Context, id string, exec ...core.DBExecutor) error
		// CloseCourses closes every open course whose registration window ended at or before now.
		CloseCourses(ctx context.Context, now time.Time, exec ...core.DBExecutor) (int64, error)

		CreateRegistration(ctx context.Context, reg Registration, exec ...core.DBExecutor) (Registration, error)
		// GetRegistration returns the registration of a student to a course, whatever its status.
		GetRegistration(ctx context.Context, courseID, studentID string, exec ...core.DBExecutor) (Registration, error)
		UpdateRegistration(ctx context.Context, reg Registration, exec ...core.DBExecutor) (Registration, error)
		QueryRegistrations(ctx context.Context, filter RegistrationFilter, exec ...core.DBExecutor) ([]Registration, error)
		CountActiveRegistrations(ctx context.Context, courseID string, exec ...core.DBExecutor) (int, error)
	}

	ServiceInterface interface {
		CheckCodeUniqueness(ctx context.Context, code string, excludedID ...string) error
		Create(ctx context.Context, nc NewCourse) (Course, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error)
		GetByID(ctx context.Context, id string) (Course, error)
		Update(ctx context.Context, c Course, uc UpdateCourse) (Course, error)
		Delete(ctx context.Context, id string) error
		Register(ctx context.Context, courseID string, student user.User) (Registration, error)
		CancelRegistration(ctx context.Context, courseID, studentID string) (Registration, error)
		IsRegistered(ctx context.Context, courseID, studentID string) (bool, error)
		ListRegistrations(ctx context.Context, courseID string) ([]Registration, error)
		ListStudentCourses(ctx context.Context, studentID string) ([]Course, error)
		CloseExpiredRegistrations(ctx context.Context, now time.Time) (int64, error)
	}

	Service struct {
		repo  Repository
		users user.ServiceInterface
		tx    core.Transactor
		mail  core.EmailService
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, users user.ServiceInterface, tx core.Transactor, mailer core.EmailService) *Service {
	return &Service{repo: repo, users: users, tx: tx, mail: mailer}
}

func (svc *Service) CheckCodeUniqueness(ctx context.Context, code string, excludedID ...string) error {
	var excl string
	if len(excludedID) > 0 {
		excl = excludedID[0]
	}
	if err := svc.repo.CheckCodeUniqueness(ctx, code, excl); err != nil {
		if errors.Cause(err) == ErrCodeExists {
			return core.NewValidationError(err, core.FieldError{Field: "code", Error: ErrCodeExists.Error()})
		}
		return errors.Wrap(err, "checking code uniqueness")
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nc NewCourse) (Course, error) {
	teacher, err := svc.users.GetByID(ctx, nc.TeacherID)
	if err != nil {
		if core.IsNotFound(err) {
			return Course{}, core.NewValidationError(ErrNotTeacher, core.FieldError{Field: "teacher_id", Error: ErrNotTeacher.Error()})
		}
		return Course{}, errors.Wrap(err, "getting teacher")
	}
	if !teacher.IsTeacher() && !teacher.IsAdmin() {
		return Course{}, core.NewValidationError(ErrNotTeacher, core.FieldError{Field: "teacher_id", Error: ErrNotTeacher.Error()})
	}

	now := time.Now().UTC()
	c := Course{
		Code:                 nc.Code,
		Title:                nc.Title,
		Description:          nc.Description,
		TeacherID:            teacher.ID,
		Capacity:             nc.Capacity,
		RegistrationOpensAt:  utc(nc.RegistrationOpensAt),
		RegistrationClosesAt: utc(nc.RegistrationClosesAt),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	return svc.repo.CreateCourse(ctx, c)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error) {
	if filter != nil && filter.OpenOnly && filter.Now.IsZero() {
		filter.Now = NowFunc().UTC()
	}
	return svc.repo.QueryCourses(ctx, filter, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, id)
}

// Update applies a validated UpdateCourse to c.
func (svc *Service) Update(ctx context.Context, c Course, uc UpdateCourse) (Course, error) {
	var updated Course
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if uc.Capacity < c.Capacity {
			count, err := svc.repo.CountActiveRegistrations(ctx, c.ID, exec)
			if err != nil {
				return errors.Wrap(err, "counting registrations")
			}
			if uc.Capacity < count {
				return core.NewValidationError(nil, core.FieldError{Field: "capacity", Error: errCapacityTooLow})
			}
		}

		c.Code = uc.Code
		c.Title = uc.Title
		c.Description = *uc.Description
		c.Capacity = uc.Capacity
		c.RegistrationOpensAt = utc(uc.RegistrationOpensAt)
		c.RegistrationClosesAt = utc(uc.RegistrationClosesAt)
		c.IsClosed = *uc.IsClosed
		c.UpdatedAt = time.Now().UTC()

		var err error
		updated, err = svc.repo.UpdateCourse(ctx, c, exec)
		return err
	})
	return updated, err
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteCourse(ctx, id)
}

// Register enrolls a student to a course. The course row stays locked from the capacity check to the insert.
func (svc *Service) Register(ctx context.Context, courseID string, student user.User) (Registration, error) {
	if !student.IsStudent() {
		return Registration{}, core.NewPermissionError(ErrNotStudent.Error())
	}

	var (
		reg Registration
		crs Course
	)
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if crs, err = svc.repo.LockCourse(ctx, courseID, exec); err != nil {
			return err
		}
		now := NowFunc().UTC()
		if !crs.RegistrationOpen(now) {
			return core.NewValidationError(ErrRegistrationClosed)
		}

		existing, err := svc.repo.GetRegistration(ctx, courseID, student.ID, exec)
		switch {
		case err == nil && existing.IsActive():
			return core.NewValidationError(ErrAlreadyRegistered)
		case err != nil && !core.IsNotFound(err):
			return errors.Wrap(err, "getting registration")
		}

		count, err := svc.repo.CountActiveRegistrations(ctx, courseID, exec)
		if err != nil {
			return errors.Wrap(err, "counting registrations")
		}
		if count >= crs.Capacity {
			return core.NewValidationError(ErrCourseFull)
		}

		if existing.ID != "" {
			existing.Status = StatusActive
			existing.CreatedAt = now
			existing.CancelledAt = time.Time{}
			reg, err = svc.repo.UpdateRegistration(ctx, existing, exec)
			return err
		}
		reg, err = svc.repo.CreateRegistration(ctx, Registration{
			CourseID:  courseID,
			StudentID: student.ID,
			Status:    StatusActive,
			CreatedAt: now,
		}, exec)
		return err
	})
	if err != nil {
		return Registration{}, err
	}

	if student.Email != "" {
		svc.mail.SendMessages(&core.EmailMessage{
			To:           []mail.Address{{Name: student.Name, Address: student.Email}},
			Subject:      "Registration Confirmed: " + crs.Code,
			TemplateName: registrationConfirmedTemplate,
			TemplateData: RegistrationConfirmedData{
				Name:        student.Name,
				CourseID:    crs.ID,
				CourseCode:  crs.Code,
				CourseTitle: crs.Title,
			},
		})
	}
	return reg, nil
}

// RegistrationConfirmedData is passed to the registration confirmation email templates.
type RegistrationConfirmedData struct {
	Name        string
	CourseID    string
	CourseCode  string
	CourseTitle string
}

func (svc *Service) CancelRegistration(ctx context.Context, courseID, studentID string) (Registration, error) {
	reg, err := svc.repo.GetRegistration(ctx, courseID, studentID)
	if err != nil {
		return Registration{}, err
	}
	if !reg.IsActive() {
		return Registration{}, ErrRegistrationNotFound
	}
	reg.Status = StatusCancelled
	reg.CancelledAt = NowFunc().UTC()
	return svc.repo.UpdateRegistration(ctx, reg)
}

func (svc *Service) IsRegistered(ctx context.Context, courseID, studentID string) (bool, error) {
	reg, err := svc.repo.GetRegistration(ctx, courseID, studentID)
	if err != nil {
		if core.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return reg.IsActive(), nil
}

func (svc *Service) ListRegistrations(ctx context.Context, courseID string) ([]Registration, error) {
	return svc.repo.QueryRegistrations(ctx, RegistrationFilter{CourseID: courseID, Status: StatusActive})
}

func (svc *Service) ListStudentCourses(ctx context.Context, studentID string) ([]Course, error) {
	return svc.repo.QueryCourses(ctx, &QueryFilter{StudentID: studentID}, []core.DBOrdering{{Field: "code", Ascending: true}})
}

// CloseExpiredRegistrations closes the courses whose registration window has ended.
func (svc *Service) CloseExpiredRegistrations(ctx context.Context, now time.Time) (int64, error) {
	return svc.repo.CloseCourses(ctx, now.UTC())
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
