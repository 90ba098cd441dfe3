package permission

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
)

// Resources
const (
	ResourceUsers       = "users"
	ResourceCourses     = "courses"
	ResourceNotices     = "notices"
	ResourcePopups      = "popups"
	ResourceQuestions   = "questions"
	ResourceFiles       = "files"
	ResourcePermissions = "permissions"
)

// Actions
const (
	ActionRead   = "read"
	ActionWrite  = "write"
	ActionDelete = "delete"
)

var (
	Resources = []string{
		ResourceUsers, ResourceCourses, ResourceNotices, ResourcePopups,
		ResourceQuestions, ResourceFiles, ResourcePermissions,
	}
	Actions = []string{ActionRead, ActionWrite, ActionDelete}

	// AdminOnlyResources are never granted implicitly to admins below principal.
	AdminOnlyResources = []string{ResourceNotices, ResourcePermissions, ResourcePopups}
)

type Grant struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Resource  string    `json:"resource"`
	Actions   []string  `json:"actions"`
	GrantedBy string    `json:"granted_by"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// NewGrant contains information needed to grant actions on a resource to a user.
type NewGrant struct {
	UserID   string   `json:"user_id" validate:"required,uuid"`
	Resource string   `json:"resource" validate:"required,permresource"`
	Actions  []string `json:"actions" validate:"required,min=1,dive,permaction"`
}

func (ng *NewGrant) Validate(validate *validator.Validate) error {
	ng.UserID = core.CleanString(ng.UserID)
	ng.Resource = core.CleanString(ng.Resource, true /* lower */)
	actions := make([]string, 0, len(ng.Actions))
	for _, a := range ng.Actions {
		a = core.CleanString(a, true /* lower */)
		if !core.StringInSlice(a, actions) {
			actions = append(actions, a)
		}
	}
	ng.Actions = actions
	return validate.Struct(ng)
}

type QueryFilter struct {
	UserID   string `query:"user_id"`
	Resource string `query:"resource"`
}

func (qf *QueryFilter) Clean() {
	qf.UserID = core.CleanString(qf.UserID)
	qf.Resource = core.CleanString(qf.Resource, true /* lower */)
}
