package popup

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
)

type Popup struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	ImageFileID string    `json:"image_file_id"`
	LinkURL     string    `json:"link_url"`
	StartsAt    time.Time `json:"starts_at"` // UTC
	EndsAt      time.Time `json:"ends_at"`   // UTC
	IsActive    bool      `json:"is_active"`
	Priority    int       `json:"priority"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// ShownAt reports whether the popup is displayed at time now.
func (p Popup) ShownAt(now time.Time) bool {
	return p.IsActive && !now.Before(p.StartsAt) && now.Before(p.EndsAt)
}

// NewPopup contains information needed to create a new Popup.
type NewPopup struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Content     string    `json:"content"`
	ImageFileID string    `json:"image_file_id" validate:"omitempty,uuid"`
	LinkURL     string    `json:"link_url" validate:"omitempty,httpurl"`
	StartsAt    time.Time `json:"starts_at" validate:"required"`
	EndsAt      time.Time `json:"ends_at" validate:"required,gtfield=StartsAt"`
	IsActive    *bool     `json:"is_active"`
	Priority    int       `json:"priority" validate:"min=0,max=100"`
}

func (np *NewPopup) Validate(validate *validator.Validate) error {
	np.Title = core.CleanString(np.Title)
	np.Content = core.CleanString(np.Content)
	np.LinkURL = core.CleanString(np.LinkURL)
	return validate.Struct(np)
}

// UpdatePopup defines what information may be provided to modify an existing Popup.
type UpdatePopup struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Content     *string   `json:"content"`
	ImageFileID *string   `json:"image_file_id"` // checked by updatePopupStructValidation
	LinkURL     *string   `json:"link_url"`      // checked by updatePopupStructValidation
	StartsAt    time.Time `json:"starts_at" validate:"required"`
	EndsAt      time.Time `json:"ends_at" validate:"required,gtfield=StartsAt"`
	IsActive    *bool     `json:"is_active"`
	Priority    *int      `json:"priority" validate:"omitempty,min=0,max=100"`
}

func (up *UpdatePopup) Validate(orig Popup, validate *validator.Validate) error {
	if title := core.CleanString(up.Title); title != "" {
		up.Title = title
	} else {
		up.Title = orig.Title
	}
	if up.Content == nil {
		up.Content = &orig.Content
	}
	if up.ImageFileID == nil {
		up.ImageFileID = &orig.ImageFileID
	}
	if up.LinkURL == nil {
		up.LinkURL = &orig.LinkURL
	} else {
		link := core.CleanString(*up.LinkURL)
		up.LinkURL = &link
	}
	if up.StartsAt.IsZero() {
		up.StartsAt = orig.StartsAt
	}
	if up.EndsAt.IsZero() {
		up.EndsAt = orig.EndsAt
	}
	if up.IsActive == nil {
		up.IsActive = &orig.IsActive
	}
	if up.Priority == nil {
		up.Priority = &orig.Priority
	}
	return validate.Struct(up)
}

type QueryFilter struct {
	Search     string `query:"search"`
	ActiveOnly bool   `query:"active"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
