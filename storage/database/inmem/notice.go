package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/notice"
)

type noticeRepository struct {
	db *table[notice.Notice]
}

var _ notice.Repository = (*noticeRepository)(nil) // interface compliance check

func NewNoticeRepository(db *DB) *noticeRepository {
	return &noticeRepository{db: db.notice}
}

func (repo *noticeRepository) CreateNotice(ctx context.Context, n notice.Notice, _ ...core.DBExecutor) (notice.Notice, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	repo.db.rows[n.ID] = n
	return n, nil
}

func (repo *noticeRepository) QueryNotices(ctx context.Context, filter *notice.QueryFilter, page core.Page, _ ...core.DBExecutor) ([]notice.Notice, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	notices := make([]notice.Notice, 0)
	for _, n := range repo.db.rows {
		if filter != nil {
			if filter.Search != "" && !containsFold(n.Title, filter.Search) && !containsFold(n.Content, filter.Search) {
				continue
			}
			if filter.Category != "" && n.Category != filter.Category {
				continue
			}
			if filter.CourseID != "" && n.CourseID != filter.CourseID {
				continue
			}
			if filter.PinnedOnly && !n.Pinned {
				continue
			}
			if !filter.IncludeUnpublished && !n.IsPublished(filter.Now) {
				continue
			}
		}
		notices = append(notices, n)
	}

	// pinned first, then newest
	sort.SliceStable(notices, func(i, j int) bool {
		if notices[i].Pinned != notices[j].Pinned {
			return notices[i].Pinned
		}
		if !notices[i].PublishedAt.Equal(notices[j].PublishedAt) {
			return notices[i].PublishedAt.After(notices[j].PublishedAt)
		}
		return notices[i].CreatedAt.After(notices[j].CreatedAt)
	})
	return paginate(notices, page), nil
}

func (repo *noticeRepository) GetNotice(ctx context.Context, id string, _ ...core.DBExecutor) (notice.Notice, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if n, ok := repo.db.rows[id]; ok {
		return n, nil
	}
	return notice.Notice{}, notice.ErrNotFound
}

func (repo *noticeRepository) UpdateNotice(ctx context.Context, n notice.Notice, _ ...core.DBExecutor) (notice.Notice, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.rows[n.ID]
	if !ok {
		return notice.Notice{}, notice.ErrNotFound
	}
	n.Views = orig.Views
	repo.db.rows[n.ID] = n
	return n, nil
}

func (repo *noticeRepository) IncrementViews(ctx context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	n, ok := repo.db.rows[id]
	if !ok {
		return notice.ErrNotFound
	}
	n.Views++
	repo.db.rows[id] = n
	return nil
}

func (repo *noticeRepository) LockPinned(context.Context, ...core.DBExecutor) error { return nil }

func (repo *noticeRepository) CountPinned(ctx context.Context, excludedID string, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var count int
	for _, n := range repo.db.rows {
		if n.Pinned && n.ID != excludedID {
			count++
		}
	}
	return count, nil
}

func (repo *noticeRepository) DeleteNotice(ctx context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.rows[id]; !ok {
		return notice.ErrNotFound
	}
	delete(repo.db.rows, id)
	return nil
}
