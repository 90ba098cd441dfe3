package permission

import (
	"context"
	"time"

	"github.com/ory/ladon"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

var (
	ErrNotFound = core.NewNotFoundError("permission")

	errUnknownUser = "user not found"
)

type (
	Repository interface {
		// SaveGrant creates the grant or, when the user already holds one on the resource, replaces its actions.
		SaveGrant(ctx context.Context, g Grant, exec ...core.DBExecutor) (Grant, error)
		GetGrant(ctx context.Context, id string, exec ...core.DBExecutor) (Grant, error)
		QueryGrants(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]Grant, error)
		DeleteGrant(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	ServiceInterface interface {
		Grant(ctx context.Context, ng NewGrant, grantedBy user.User) (Grant, error)
		Revoke(ctx context.Context, id string) error
		GetByID(ctx context.Context, id string) (Grant, error)
		ListForUser(ctx context.Context, userID string) ([]Grant, error)
		Query(ctx context.Context, filter *QueryFilter) ([]Grant, error)
		IsAllowed(ctx context.Context, usr user.User, resource, action string) (bool, error)
	}

	Service struct {
		repo  Repository
		users user.ServiceInterface
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, users user.ServiceInterface) *Service {
	return &Service{repo: repo, users: users}
}

func (svc *Service) Grant(ctx context.Context, ng NewGrant, grantedBy user.User) (Grant, error) {
	if _, err := svc.users.GetByID(ctx, ng.UserID); err != nil {
		if core.IsNotFound(err) {
			return Grant{}, core.NewValidationError(nil, core.FieldError{Field: "user_id", Error: errUnknownUser})
		}
		return Grant{}, errors.Wrap(err, "getting user")
	}

	return svc.repo.SaveGrant(ctx, Grant{
		UserID:    ng.UserID,
		Resource:  ng.Resource,
		Actions:   ng.Actions,
		GrantedBy: grantedBy.ID,
		CreatedAt: time.Now().UTC(),
	})
}

func (svc *Service) Revoke(ctx context.Context, id string) error {
	return svc.repo.DeleteGrant(ctx, id)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Grant, error) {
	return svc.repo.GetGrant(ctx, id)
}

func (svc *Service) ListForUser(ctx context.Context, userID string) ([]Grant, error) {
	return svc.repo.QueryGrants(ctx, &QueryFilter{UserID: userID})
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter) ([]Grant, error) {
	return svc.repo.QueryGrants(ctx, filter)
}

// IsAllowed reports whether usr may perform action on resource.
// Owners & principals may do anything; other admins hold every resource but the admin-only ones;
// everything else is decided by the user's grants.
func (svc *Service) IsAllowed(ctx context.Context, usr user.User, resource, action string) (bool, error) {
	if !usr.Active() {
		return false, nil
	}
	if usr.IsSuperAdmin() {
		return true, nil
	}
	if usr.IsAdmin() && !core.StringInSlice(resource, AdminOnlyResources) {
		return true, nil
	}

	warden := &ladon.Ladon{Manager: newPolicyManager(ctx, svc.repo)}
	err := warden.IsAllowed(&ladon.Request{
		Subject:  Subject(usr.ID),
		Resource: ResourceName(resource),
		Action:   action,
		Context:  ladon.Context{},
	})
	switch errors.Cause(err) {
	case nil:
		return true, nil
	case ladon.ErrRequestDenied, ladon.ErrRequestForcefullyDenied:
		return false, nil
	default:
		return false, errors.Wrap(err, "checking policies")
	}
}
