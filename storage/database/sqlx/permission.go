package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/permission"
)

const grantsTable = "permission_grants"

var grantColumns = []string{"id", "user_id", "resource", "actions", "granted_by", "created_at"}

type grantRow struct {
	ID        string           `db:"id"`
	UserID    string           `db:"user_id"`
	Resource  string           `db:"resource"`
	Actions   jsonList[string] `db:"actions"`
	GrantedBy null.String      `db:"granted_by"`
	CreatedAt time.Time        `db:"created_at"`
}

func (r grantRow) grant() permission.Grant {
	g := permission.Grant{
		ID:        r.ID,
		UserID:    r.UserID,
		Resource:  r.Resource,
		Actions:   r.Actions,
		GrantedBy: r.GrantedBy.String,
		CreatedAt: r.CreatedAt.UTC(),
	}
	if g.Actions == nil {
		g.Actions = []string{}
	}
	return g
}

type grantRepository struct {
	repository
}

var _ permission.Repository = (*grantRepository)(nil) // interface compliance check

func NewGrantRepository(db *sqlx.DB) *grantRepository {
	return &grantRepository{repository: newRepository(db)}
}

// SaveGrant replaces the actions of the user's grant on the resource, creating it if needed.
func (repo grantRepository) SaveGrant(ctx context.Context, g permission.Grant, exec ...core.DBExecutor) (permission.Grant, error) {
	exe := repo.getExec(exec)

	var existing grantRow
	b := repo.sb.Select(grantColumns...).From(grantsTable).Where(sq.Eq{"user_id": g.UserID, "resource": g.Resource})
	err := repo.get(ctx, exe, &existing, b)
	switch {
	case err == nil:
		upd := repo.sb.Update(grantsTable).
			Set("actions", jsonList[string](g.Actions)).
			Set("granted_by", nullString(g.GrantedBy)).
			Where(sq.Eq{"id": existing.ID})
		if _, err = repo.execute(ctx, exe, upd); err != nil {
			return permission.Grant{}, errors.Wrap(err, "updating grant")
		}
		existing.Actions = g.Actions
		existing.GrantedBy = nullString(g.GrantedBy)
		return existing.grant(), nil

	case errors.Cause(err) != sql.ErrNoRows:
		return permission.Grant{}, errors.Wrap(err, "finding grant")
	}

	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	g.CreatedAt = g.CreatedAt.UTC()
	ins := repo.sb.Insert(grantsTable).Columns(grantColumns...).Values(
		g.ID, g.UserID, g.Resource, jsonList[string](g.Actions), nullString(g.GrantedBy), g.CreatedAt,
	)
	if _, err = repo.execute(ctx, exe, ins); err != nil {
		return permission.Grant{}, errors.Wrap(err, "inserting grant")
	}
	return g, nil
}

func (repo grantRepository) GetGrant(ctx context.Context, id string, exec ...core.DBExecutor) (permission.Grant, error) {
	var r grantRow
	b := repo.sb.Select(grantColumns...).From(grantsTable).Where(sq.Eq{"id": id})
	if err := repo.get(ctx, repo.getExec(exec), &r, b); err != nil {
		return permission.Grant{}, trapNoRowsErr(err, permission.ErrNotFound, "finding grant")
	}
	return r.grant(), nil
}

func (repo grantRepository) QueryGrants(ctx context.Context, filter *permission.QueryFilter, exec ...core.DBExecutor) ([]permission.Grant, error) {
	b := repo.sb.Select(grantColumns...).From(grantsTable)
	if filter != nil {
		if filter.UserID != "" {
			b = b.Where(sq.Eq{"user_id": filter.UserID})
		}
		if filter.Resource != "" {
			b = b.Where(sq.Eq{"resource": filter.Resource})
		}
	}
	b = b.OrderBy("created_at ASC", "resource ASC")

	var rows []grantRow
	if err := repo.selectAll(ctx, repo.getExec(exec), &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying grants")
	}
	grants := make([]permission.Grant, 0, len(rows))
	for _, r := range rows {
		grants = append(grants, r.grant())
	}
	return grants, nil
}

func (repo grantRepository) DeleteGrant(ctx context.Context, id string, exec ...core.DBExecutor) error {
	cnt, err := repo.execute(ctx, repo.getExec(exec), repo.sb.Delete(grantsTable).Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting grant")
	}
	if cnt == 0 {
		return permission.ErrNotFound
	}
	return nil
}
