package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/notice"
)

const noticesTable = "notices"

var noticeColumns = []string{
	"id", "title", "content", "category", "course_id", "author_id", "pinned", "published_at", "attachment_ids",
	"views", "created_at", "updated_at",
}

type noticeRow struct {
	ID            string           `db:"id"`
	Title         string           `db:"title"`
	Content       string           `db:"content"`
	Category      string           `db:"category"`
	CourseID      null.String      `db:"course_id"`
	AuthorID      null.String      `db:"author_id"`
	Pinned        bool             `db:"pinned"`
	PublishedAt   time.Time        `db:"published_at"`
	AttachmentIDs jsonList[string] `db:"attachment_ids"`
	Views         int              `db:"views"`
	CreatedAt     time.Time        `db:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at"`
}

func noticeToRow(n notice.Notice) noticeRow {
	return noticeRow{
		ID:            n.ID,
		Title:         n.Title,
		Content:       n.Content,
		Category:      n.Category,
		CourseID:      nullString(n.CourseID),
		AuthorID:      nullString(n.AuthorID),
		Pinned:        n.Pinned,
		PublishedAt:   n.PublishedAt.UTC(),
		AttachmentIDs: n.AttachmentIDs,
		Views:         n.Views,
		CreatedAt:     n.CreatedAt.UTC(),
		UpdatedAt:     n.UpdatedAt.UTC(),
	}
}

func (r noticeRow) notice() notice.Notice {
	n := notice.Notice{
		ID:            r.ID,
		Title:         r.Title,
		Content:       r.Content,
		Category:      r.Category,
		CourseID:      r.CourseID.String,
		AuthorID:      r.AuthorID.String,
		Pinned:        r.Pinned,
		PublishedAt:   r.PublishedAt.UTC(),
		AttachmentIDs: r.AttachmentIDs,
		Views:         r.Views,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
	if n.AttachmentIDs == nil {
		n.AttachmentIDs = []string{}
	}
	return n
}

type noticeRepository struct {
	repository
}

var _ notice.Repository = (*noticeRepository)(nil) // interface compliance check

func NewNoticeRepository(db *sqlx.DB) *noticeRepository {
	return &noticeRepository{repository: newRepository(db)}
}

func (repo noticeRepository) CreateNotice(ctx context.Context, n notice.Notice, exec ...core.DBExecutor) (notice.Notice, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	r := noticeToRow(n)
	b := repo.sb.Insert(noticesTable).Columns(noticeColumns...).Values(
		r.ID, r.Title, r.Content, r.Category, r.CourseID, r.AuthorID, r.Pinned, r.PublishedAt, r.AttachmentIDs,
		r.Views, r.CreatedAt, r.UpdatedAt,
	)
	if _, err := repo.execute(ctx, repo.getExec(exec), b); err != nil {
		return notice.Notice{}, errors.Wrap(err, "inserting notice")
	}
	return r.notice(), nil
}

// QueryNotices lists pinned notices first, then the newest.
func (repo noticeRepository) QueryNotices(ctx context.Context, filter *notice.QueryFilter, page core.Page, exec ...core.DBExecutor) ([]notice.Notice, error) {
	b := repo.sb.Select(noticeColumns...).From(noticesTable)

	if filter != nil {
		if filter.Search != "" {
			b = b.Where(sq.Or{like("title", filter.Search), like("content", filter.Search)})
		}
		if filter.Category != "" {
			b = b.Where(sq.Eq{"category": filter.Category})
		}
		if filter.CourseID != "" {
			b = b.Where(sq.Eq{"course_id": filter.CourseID})
		}
		if filter.PinnedOnly {
			b = b.Where(sq.Eq{"pinned": true})
		}
		if !filter.IncludeUnpublished {
			b = b.Where(sq.LtOrEq{"published_at": filter.Now.UTC()})
		}
	}
	b = pageOf(b.OrderBy("pinned DESC", "published_at DESC", "created_at DESC"), page)

	var rows []noticeRow
	if err := repo.selectAll(ctx, repo.getExec(exec), &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying notices")
	}
	notices := make([]notice.Notice, 0, len(rows))
	for _, r := range rows {
		notices = append(notices, r.notice())
	}
	return notices, nil
}

func (repo noticeRepository) GetNotice(ctx context.Context, id string, exec ...core.DBExecutor) (notice.Notice, error) {
	var r noticeRow
	b := repo.sb.Select(noticeColumns...).From(noticesTable).Where(sq.Eq{"id": id})
	if err := repo.get(ctx, repo.getExec(exec), &r, b); err != nil {
		return notice.Notice{}, trapNoRowsErr(err, notice.ErrNotFound, "finding notice")
	}
	return r.notice(), nil
}

// UpdateNotice saves n; the view count is left as stored.
func (repo noticeRepository) UpdateNotice(ctx context.Context, n notice.Notice, exec ...core.DBExecutor) (notice.Notice, error) {
	r := noticeToRow(n)
	b := repo.sb.Update(noticesTable).
		SetMap(map[string]interface{}{
			"title":          r.Title,
			"content":        r.Content,
			"category":       r.Category,
			"course_id":      r.CourseID,
			"pinned":         r.Pinned,
			"published_at":   r.PublishedAt,
			"attachment_ids": r.AttachmentIDs,
			"updated_at":     r.UpdatedAt,
		}).
		Where(sq.Eq{"id": r.ID})

	exe := repo.getExec(exec)
	cnt, err := repo.execute(ctx, exe, b)
	if err != nil {
		return notice.Notice{}, errors.Wrap(err, "updating notice")
	}
	if cnt == 0 {
		return notice.Notice{}, notice.ErrNotFound
	}
	return repo.GetNotice(ctx, r.ID, exe)
}

func (repo noticeRepository) IncrementViews(ctx context.Context, id string, exec ...core.DBExecutor) error {
	b := repo.sb.Update(noticesTable).Set("views", sq.Expr("views + 1")).Where(sq.Eq{"id": id})
	cnt, err := repo.execute(ctx, repo.getExec(exec), b)
	if err != nil {
		return errors.Wrap(err, "incrementing notice views")
	}
	if cnt == 0 {
		return notice.ErrNotFound
	}
	return nil
}

func (repo noticeRepository) LockPinned(ctx context.Context, exec ...core.DBExecutor) error {
	return errors.Wrap(repo.advisoryLock(ctx, repo.getExec(exec), noticesTable+".pinned"), "locking pinned notices")
}

func (repo noticeRepository) CountPinned(ctx context.Context, excludedID string, exec ...core.DBExecutor) (int, error) {
	b := repo.sb.Select("COUNT(*)").From(noticesTable).Where(sq.Eq{"pinned": true})
	if excludedID != "" {
		b = b.Where(sq.NotEq{"id": excludedID})
	}

	var cnt int
	if err := repo.get(ctx, repo.getExec(exec), &cnt, b); err != nil {
		return 0, errors.Wrap(err, "counting pinned notices")
	}
	return cnt, nil
}

func (repo noticeRepository) DeleteNotice(ctx context.Context, id string, exec ...core.DBExecutor) error {
	cnt, err := repo.execute(ctx, repo.getExec(exec), repo.sb.Delete(noticesTable).Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting notice")
	}
	if cnt == 0 {
		return notice.ErrNotFound
	}
	return nil
}
