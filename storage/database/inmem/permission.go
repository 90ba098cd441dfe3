package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/permission"
)

type grantRepository struct {
	db *table[permission.Grant]
}

var _ permission.Repository = (*grantRepository)(nil) // interface compliance check

func NewGrantRepository(db *DB) *grantRepository {
	return &grantRepository{db: db.grant}
}

func (repo *grantRepository) SaveGrant(ctx context.Context, g permission.Grant, _ ...core.DBExecutor) (permission.Grant, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for id, existing := range repo.db.rows {
		if existing.UserID == g.UserID && existing.Resource == g.Resource {
			existing.Actions = g.Actions
			existing.GrantedBy = g.GrantedBy
			repo.db.rows[id] = existing
			return existing, nil
		}
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	repo.db.rows[g.ID] = g
	return g, nil
}

func (repo *grantRepository) GetGrant(ctx context.Context, id string, _ ...core.DBExecutor) (permission.Grant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if g, ok := repo.db.rows[id]; ok {
		return g, nil
	}
	return permission.Grant{}, permission.ErrNotFound
}

func (repo *grantRepository) QueryGrants(ctx context.Context, filter *permission.QueryFilter, _ ...core.DBExecutor) ([]permission.Grant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	grants := make([]permission.Grant, 0)
	for _, g := range repo.db.rows {
		if filter != nil {
			if filter.UserID != "" && g.UserID != filter.UserID {
				continue
			}
			if filter.Resource != "" && g.Resource != filter.Resource {
				continue
			}
		}
		grants = append(grants, g)
	}
	sortRows(grants, nil, map[string]compareFunc[permission.Grant]{
		"created_at": func(a, b permission.Grant) int { return compareTimes(a.CreatedAt, b.CreatedAt) },
		"resource":   func(a, b permission.Grant) int { return compareStrings(a.Resource, b.Resource) },
	}, core.DBOrdering{Field: "created_at", Ascending: true}, core.DBOrdering{Field: "resource", Ascending: true})
	return grants, nil
}

func (repo *grantRepository) DeleteGrant(ctx context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.rows[id]; !ok {
		return permission.ErrNotFound
	}
	delete(repo.db.rows, id)
	return nil
}
