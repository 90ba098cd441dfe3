package notice

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
)

// Categories
const (
	CategoryGeneral  = "general"
	CategoryAcademic = "academic"
	CategoryEvent    = "event"
	CategorySystem   = "system"
)

var Categories = []string{CategoryGeneral, CategoryAcademic, CategoryEvent, CategorySystem}

type Notice struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Category      string    `json:"category"`
	CourseID      string    `json:"course_id"`
	AuthorID      string    `json:"author_id"`
	Pinned        bool      `json:"pinned"`
	PublishedAt   time.Time `json:"published_at"` // UTC
	AttachmentIDs []string  `json:"attachment_ids"`
	Views         int       `json:"views"`
	CreatedAt     time.Time `json:"created_at"` // UTC
	UpdatedAt     time.Time `json:"updated_at"` // UTC
}

func (n Notice) IsPublished(now time.Time) bool {
	return !n.PublishedAt.After(now)
}

// NewNotice contains information needed to create a new Notice.
type NewNotice struct {
	Title         string    `json:"title" validate:"required,max=200"`
	Content       string    `json:"content" validate:"required"`
	Category      string    `json:"category" validate:"omitempty,noticecategory"`
	CourseID      string    `json:"course_id" validate:"omitempty,uuid"`
	Pinned        bool      `json:"pinned"`
	PublishedAt   time.Time `json:"published_at"`
	AttachmentIDs []string  `json:"attachment_ids" validate:"omitempty,max=10,dive,uuid"`
}

func (nn *NewNotice) Validate(validate *validator.Validate) error {
	nn.Title = core.CleanString(nn.Title)
	nn.Content = core.CleanString(nn.Content)
	nn.Category = core.CleanString(nn.Category, true /* lower */)
	if nn.Category == "" {
		nn.Category = CategoryGeneral
	}
	return validate.Struct(nn)
}

// UpdateNotice defines what information may be provided to modify an existing Notice.
type UpdateNotice struct {
	Title         string    `json:"title" validate:"omitempty,max=200"`
	Content       string    `json:"content"`
	Category      string    `json:"category" validate:"omitempty,noticecategory"`
	Pinned        *bool     `json:"pinned"`
	PublishedAt   time.Time `json:"published_at"`
	AttachmentIDs []string  `json:"attachment_ids" validate:"omitempty,max=10,dive,uuid"`
}

func (un *UpdateNotice) Validate(orig Notice, validate *validator.Validate) error {
	if title := core.CleanString(un.Title); title != "" {
		un.Title = title
	} else {
		un.Title = orig.Title
	}
	if content := core.CleanString(un.Content); content != "" {
		un.Content = content
	} else {
		un.Content = orig.Content
	}
	if category := core.CleanString(un.Category, true /* lower */); category != "" {
		un.Category = category
	} else {
		un.Category = orig.Category
	}
	if un.Pinned == nil {
		un.Pinned = &orig.Pinned
	}
	if un.PublishedAt.IsZero() {
		un.PublishedAt = orig.PublishedAt
	}
	if un.AttachmentIDs == nil {
		un.AttachmentIDs = orig.AttachmentIDs
	}
	return validate.Struct(un)
}

type QueryFilter struct {
	Search             string    `query:"search"`
	Category           string    `query:"category"`
	CourseID           string    `query:"course_id"`
	PinnedOnly         bool      `query:"pinned"`
	IncludeUnpublished bool      `query:"-"`
	Now                time.Time `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Category = core.CleanString(qf.Category, true /* lower */)
	qf.CourseID = core.CleanString(qf.CourseID)
}
