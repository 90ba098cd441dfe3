package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/popup"
)

const popupsTable = "popups"

var (
	popupColumns = []string{
		"id", "title", "content", "image_file_id", "link_url", "starts_at", "ends_at", "is_active", "priority",
		"created_at", "updated_at",
	}
	popupOrderingColumns = []string{"title", "priority", "starts_at", "ends_at", "is_active", "created_at"}
)

type popupRow struct {
	ID          string    `db:"id"`
	Title       string    `db:"title"`
	Content     string    `db:"content"`
	ImageFileID string    `db:"image_file_id"`
	LinkURL     string    `db:"link_url"`
	StartsAt    time.Time `db:"starts_at"`
	EndsAt      time.Time `db:"ends_at"`
	IsActive    bool      `db:"is_active"`
	Priority    int       `db:"priority"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r popupRow) popup() popup.Popup {
	return popup.Popup{
		ID:          r.ID,
		Title:       r.Title,
		Content:     r.Content,
		ImageFileID: r.ImageFileID,
		LinkURL:     r.LinkURL,
		StartsAt:    r.StartsAt.UTC(),
		EndsAt:      r.EndsAt.UTC(),
		IsActive:    r.IsActive,
		Priority:    r.Priority,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type popupRepository struct {
	repository
}

var _ popup.Repository = (*popupRepository)(nil) // interface compliance check

func NewPopupRepository(db *sqlx.DB) *popupRepository {
	return &popupRepository{repository: newRepository(db)}
}

func (repo popupRepository) CreatePopup(ctx context.Context, p popup.Popup, exec ...core.DBExecutor) (popup.Popup, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	b := repo.sb.Insert(popupsTable).Columns(popupColumns...).Values(
		p.ID, p.Title, p.Content, p.ImageFileID, p.LinkURL, p.StartsAt.UTC(), p.EndsAt.UTC(), p.IsActive, p.Priority,
		p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	if _, err := repo.execute(ctx, repo.getExec(exec), b); err != nil {
		return popup.Popup{}, errors.Wrap(err, "inserting popup")
	}
	return p, nil
}

func (repo popupRepository) QueryPopups(ctx context.Context, filter *popup.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]popup.Popup, error) {
	b := repo.sb.Select(popupColumns...).From(popupsTable)

	if filter != nil {
		if filter.Search != "" {
			b = b.Where(sq.Or{like("title", filter.Search), like("content", filter.Search)})
		}
		if filter.ActiveOnly {
			b = b.Where(sq.Eq{"is_active": true})
		}
	}
	b = b.OrderBy(orderBy(ordering, popupOrderingColumns,
		core.DBOrdering{Field: "priority"}, core.DBOrdering{Field: "starts_at"})...)

	var rows []popupRow
	if err := repo.selectAll(ctx, repo.getExec(exec), &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying popups")
	}
	popups := make([]popup.Popup, 0, len(rows))
	for _, r := range rows {
		popups = append(popups, r.popup())
	}
	return popups, nil
}

func (repo popupRepository) GetPopup(ctx context.Context, id string, exec ...core.DBExecutor) (popup.Popup, error) {
	var r popupRow
	b := repo.sb.Select(popupColumns...).From(popupsTable).Where(sq.Eq{"id": id})
	if err := repo.get(ctx, repo.getExec(exec), &r, b); err != nil {
		return popup.Popup{}, trapNoRowsErr(err, popup.ErrNotFound, "finding popup")
	}
	return r.popup(), nil
}

func (repo popupRepository) UpdatePopup(ctx context.Context, p popup.Popup, exec ...core.DBExecutor) (popup.Popup, error) {
	b := repo.sb.Update(popupsTable).
		SetMap(map[string]interface{}{
			"title":         p.Title,
			"content":       p.Content,
			"image_file_id": p.ImageFileID,
			"link_url":      p.LinkURL,
			"starts_at":     p.StartsAt.UTC(),
			"ends_at":       p.EndsAt.UTC(),
			"is_active":     p.IsActive,
			"priority":      p.Priority,
			"updated_at":    p.UpdatedAt.UTC(),
		}).
		Where(sq.Eq{"id": p.ID})

	cnt, err := repo.execute(ctx, repo.getExec(exec), b)
	if err != nil {
		return popup.Popup{}, errors.Wrap(err, "updating popup")
	}
	if cnt == 0 {
		return popup.Popup{}, popup.ErrNotFound
	}
	return p, nil
}

func (repo popupRepository) DeletePopup(ctx context.Context, id string, exec ...core.DBExecutor) error {
	cnt, err := repo.execute(ctx, repo.getExec(exec), repo.sb.Delete(popupsTable).Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting popup")
	}
	if cnt == 0 {
		return popup.ErrNotFound
	}
	return nil
}

// DeactivatePopups deactivates the active popups that ended at or before now.
func (repo popupRepository) DeactivatePopups(ctx context.Context, now time.Time, exec ...core.DBExecutor) (int64, error) {
	now = now.UTC()
	b := repo.sb.Update(popupsTable).
		Set("is_active", false).
		Set("updated_at", now).
		Where(sq.And{sq.Eq{"is_active": true}, sq.LtOrEq{"ends_at": now}})

	cnt, err := repo.execute(ctx, repo.getExec(exec), b)
	if err != nil {
		return 0, errors.Wrap(err, "deactivating popups")
	}
	return cnt, nil
}
