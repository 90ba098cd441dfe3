package course

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

// Registration statuses
const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"
)

type Course struct {
	ID                   string    `json:"id"`
	Code                 string    `json:"code"`
	Title                string    `json:"title"`
	Description          string    `json:"description"`
	TeacherID            string    `json:"teacher_id"`
	Capacity             int       `json:"capacity"`
	RegistrationOpensAt  time.Time `json:"registration_opens_at"`
	RegistrationClosesAt time.Time `json:"registration_closes_at"`
	IsClosed             bool      `json:"is_closed"`
	CreatedAt            time.Time `json:"created_at"` // UTC
	UpdatedAt            time.Time `json:"updated_at"` // UTC
}

// RegistrationOpen reports whether students may register at time now.
func (c Course) RegistrationOpen(now time.Time) bool {
	if c.IsClosed {
		return false
	}
	if !c.RegistrationOpensAt.IsZero() && now.Before(c.RegistrationOpensAt) {
		return false
	}
	if !c.RegistrationClosesAt.IsZero() && !now.Before(c.RegistrationClosesAt) {
		return false
	}
	return true
}

// CanManage reports whether usr may edit the course and its content.
func (c Course) CanManage(usr user.User) bool {
	return usr.IsAdmin() || (usr.IsTeacher() && c.TeacherID == usr.ID)
}

type Registration struct {
	ID          string    `json:"id"`
	CourseID    string    `json:"course_id"`
	StudentID   string    `json:"student_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`   // UTC
	CancelledAt time.Time `json:"cancelled_at"` // UTC
}

func (r Registration) IsActive() bool {
	return r.Status == StatusActive
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Code                 string    `json:"code" validate:"required,max=20,coursecode"`
	Title                string    `json:"title" validate:"required,max=200"`
	Description          string    `json:"description"`
	TeacherID            string    `json:"teacher_id"`
	Capacity             int       `json:"capacity" validate:"required,min=1"`
	RegistrationOpensAt  time.Time `json:"registration_opens_at"`
	RegistrationClosesAt time.Time `json:"registration_closes_at" validate:"omitempty,gtfield=RegistrationOpensAt"`
}

func (nc *NewCourse) Validate(ctx context.Context, validate *validator.Validate, svc ServiceInterface) error {
	nc.Code = upper(core.CleanString(nc.Code))
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)

	if err := validate.Struct(nc); err != nil {
		return err
	}
	return svc.CheckCodeUniqueness(ctx, nc.Code)
}

// UpdateCourse defines what information may be provided to modify an existing Course.
// Empty fields keep their current value.
type UpdateCourse struct {
	Code                 string    `json:"code" validate:"omitempty,max=20,coursecode"`
	Title                string    `json:"title" validate:"omitempty,max=200"`
	Description          *string   `json:"description"`
	Capacity             int       `json:"capacity" validate:"omitempty,min=1"`
	RegistrationOpensAt  time.Time `json:"registration_opens_at"`
	RegistrationClosesAt time.Time `json:"registration_closes_at" validate:"omitempty,gtfield=RegistrationOpensAt"`
	IsClosed             *bool     `json:"is_closed"`
}

func (uc *UpdateCourse) Validate(ctx context.Context, orig Course, validate *validator.Validate, svc ServiceInterface) error {
	if code := upper(core.CleanString(uc.Code)); code != "" {
		uc.Code = code
	} else {
		uc.Code = orig.Code
	}
	if title := core.CleanString(uc.Title); title != "" {
		uc.Title = title
	} else {
		uc.Title = orig.Title
	}
	if uc.Description == nil {
		uc.Description = &orig.Description
	}
	if uc.Capacity == 0 {
		uc.Capacity = orig.Capacity
	}
	if uc.RegistrationOpensAt.IsZero() {
		uc.RegistrationOpensAt = orig.RegistrationOpensAt
	}
	if uc.RegistrationClosesAt.IsZero() {
		uc.RegistrationClosesAt = orig.RegistrationClosesAt
	}
	if uc.IsClosed == nil {
		uc.IsClosed = &orig.IsClosed
	}

	if err := validate.Struct(uc); err != nil {
		return err
	}
	return svc.CheckCodeUniqueness(ctx, uc.Code, orig.ID)
}

type QueryFilter struct {
	Search    string    `query:"search"`
	TeacherID string    `query:"teacher_id"`
	StudentID string    `query:"-"` // courses with an active registration of this student
	OpenOnly  bool      `query:"open"`
	Now       time.Time `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.TeacherID = core.CleanString(qf.TeacherID)
}

type RegistrationFilter struct {
	CourseID  string
	StudentID string
	Status    string
}
