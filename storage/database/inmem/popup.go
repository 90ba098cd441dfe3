package inmemdb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/popup"
)

var popupOrderingFields = map[string]compareFunc[popup.Popup]{
	"title":      func(a, b popup.Popup) int { return compareStrings(a.Title, b.Title) },
	"priority":   func(a, b popup.Popup) int { return compareInts(a.Priority, b.Priority) },
	"starts_at":  func(a, b popup.Popup) int { return compareTimes(a.StartsAt, b.StartsAt) },
	"ends_at":    func(a, b popup.Popup) int { return compareTimes(a.EndsAt, b.EndsAt) },
	"is_active":  func(a, b popup.Popup) int { return compareBools(a.IsActive, b.IsActive) },
	"created_at": func(a, b popup.Popup) int { return compareTimes(a.CreatedAt, b.CreatedAt) },
}

type popupRepository struct {
	db *table[popup.Popup]
}

var _ popup.Repository = (*popupRepository)(nil) // interface compliance check

func NewPopupRepository(db *DB) *popupRepository {
	return &popupRepository{db: db.popup}
}

func (repo *popupRepository) CreatePopup(ctx context.Context, p popup.Popup, _ ...core.DBExecutor) (popup.Popup, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	repo.db.rows[p.ID] = p
	return p, nil
}

func (repo *popupRepository) QueryPopups(ctx context.Context, filter *popup.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]popup.Popup, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	popups := make([]popup.Popup, 0)
	for _, p := range repo.db.rows {
		if filter != nil {
			if filter.Search != "" && !containsFold(p.Title, filter.Search) && !containsFold(p.Content, filter.Search) {
				continue
			}
			if filter.ActiveOnly && !p.IsActive {
				continue
			}
		}
		popups = append(popups, p)
	}
	sortRows(popups, ordering, popupOrderingFields, core.DBOrdering{Field: "priority"}, core.DBOrdering{Field: "starts_at"})
	return popups, nil
}

func (repo *popupRepository) GetPopup(ctx context.Context, id string, _ ...core.DBExecutor) (popup.Popup, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.rows[id]; ok {
		return p, nil
	}
	return popup.Popup{}, popup.ErrNotFound
}

func (repo *popupRepository) UpdatePopup(ctx context.Context, p popup.Popup, _ ...core.DBExecutor) (popup.Popup, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.rows[p.ID]; !ok {
		return popup.Popup{}, popup.ErrNotFound
	}
	repo.db.rows[p.ID] = p
	return p, nil
}

func (repo *popupRepository) DeletePopup(ctx context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.rows[id]; !ok {
		return popup.ErrNotFound
	}
	delete(repo.db.rows, id)
	return nil
}

func (repo *popupRepository) DeactivatePopups(ctx context.Context, now time.Time, _ ...core.DBExecutor) (int64, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var count int64
	for id, p := range repo.db.rows {
		if p.IsActive && !p.EndsAt.After(now) {
			p.IsActive = false
			p.UpdatedAt = now
			repo.db.rows[id] = p
			count++
		}
	}
	return count, nil
}
