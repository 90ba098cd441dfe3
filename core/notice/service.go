package notice

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

const (
	MaxPinned = 5

	pinnedCacheKey = "notices:pinned"
	pinnedCacheTTL = 5 * time.Minute
)

var (
	ErrNotFound = core.NewNotFoundError("notice")

	errTooManyPinned = "at most 5 notices can be pinned"

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		CreateNotice(ctx context.Context, n Notice, exec ...core.DBExecutor) (Notice, error)
		// QueryNotices returns pinned notices first, then the most recently published.
		QueryNotices(ctx context.Context, filter *QueryFilter, page core.Page, exec ...core.DBExecutor) ([]Notice, error)
		GetNotice(ctx context.Context, id string, exec ...core.DBExecutor) (Notice, error)
		UpdateNotice(ctx context.Context, n Notice, exec ...core.DBExecutor) (Notice, error)
		IncrementViews(ctx context.Context, id string, exec ...core.DBExecutor) error
		// LockPinned serializes the transactions that pin notices until exec's transaction ends.
		LockPinned(ctx context.Context, exec ...core.DBExecutor) error
		CountPinned(ctx context.Context, excludedID string, exec ...core.DBExecutor) (int, error)
		DeleteNotice(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	ServiceInterface interface {
		Create(ctx context.Context, authorID string, nn NewNotice) (Notice, error)
		Query(ctx context.Context, filter *QueryFilter, page core.Page) ([]Notice, error)
		GetByID(ctx context.Context, id string, includeUnpublished bool) (Notice, error)
		Find(ctx context.Context, id string) (Notice, error)
		Update(ctx context.Context, n Notice, un UpdateNotice) (Notice, error)
		Delete(ctx context.Context, id string) error
		Pinned(ctx context.Context) ([]Notice, error)
	}

	Service struct {
		repo   Repository
		tx     core.Transactor
		pinned *core.CachedValue[[]Notice]
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, tx core.Transactor, cache core.Cache) *Service {
	return &Service{
		repo:   repo,
		tx:     tx,
		pinned: core.NewCachedValue[[]Notice](cache, pinnedCacheKey, pinnedCacheTTL),
	}
}

func (svc *Service) checkPinned(ctx context.Context, excludedID string, exec core.DBExecutor) error {
	if err := svc.repo.LockPinned(ctx, exec); err != nil {
		return err
	}
	count, err := svc.repo.CountPinned(ctx, excludedID, exec)
	if err != nil {
		return errors.Wrap(err, "counting pinned notices")
	}
	if count >= MaxPinned {
		return core.NewValidationError(nil, core.FieldError{Field: "pinned", Error: errTooManyPinned})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, authorID string, nn NewNotice) (Notice, error) {
	now := NowFunc().UTC()
	n := Notice{
		Title:         nn.Title,
		Content:       nn.Content,
		Category:      nn.Category,
		CourseID:      nn.CourseID,
		AuthorID:      authorID,
		Pinned:        nn.Pinned,
		PublishedAt:   nn.PublishedAt.UTC(),
		AttachmentIDs: nn.AttachmentIDs,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if n.PublishedAt.IsZero() {
		n.PublishedAt = now
	}

	var created Notice
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if n.Pinned {
			if err := svc.checkPinned(ctx, "", exec); err != nil {
				return err
			}
		}
		var err error
		created, err = svc.repo.CreateNotice(ctx, n, exec)
		return err
	})
	if err != nil {
		return Notice{}, err
	}
	svc.pinned.Invalidate()
	return created, nil
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, page core.Page) ([]Notice, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	if filter.Now.IsZero() {
		filter.Now = NowFunc().UTC()
	}
	page.Clean()
	return svc.repo.QueryNotices(ctx, filter, page)
}

// GetByID returns a notice and counts the view. Unpublished notices are only found with includeUnpublished.
func (svc *Service) GetByID(ctx context.Context, id string, includeUnpublished bool) (Notice, error) {
	n, err := svc.repo.GetNotice(ctx, id)
	if err != nil {
		return Notice{}, err
	}
	if !includeUnpublished && !n.IsPublished(NowFunc()) {
		return Notice{}, ErrNotFound
	}
	if err := svc.repo.IncrementViews(ctx, id); err != nil {
		return Notice{}, errors.Wrap(err, "incrementing views")
	}
	n.Views++
	return n, nil
}

// Find returns a notice without counting a view.
func (svc *Service) Find(ctx context.Context, id string) (Notice, error) {
	return svc.repo.GetNotice(ctx, id)
}

// Update applies a validated UpdateNotice to n.
func (svc *Service) Update(ctx context.Context, n Notice, un UpdateNotice) (Notice, error) {
	wasPinned := n.Pinned
	n.Title = un.Title
	n.Content = un.Content
	n.Category = un.Category
	n.Pinned = *un.Pinned
	n.PublishedAt = un.PublishedAt.UTC()
	n.AttachmentIDs = un.AttachmentIDs
	n.UpdatedAt = NowFunc().UTC()

	var updated Notice
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if n.Pinned && !wasPinned {
			if err := svc.checkPinned(ctx, n.ID, exec); err != nil {
				return err
			}
		}
		var err error
		updated, err = svc.repo.UpdateNotice(ctx, n, exec)
		return err
	})
	if err != nil {
		return Notice{}, err
	}
	svc.pinned.Invalidate()
	return updated, nil
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	if err := svc.repo.DeleteNotice(ctx, id); err != nil {
		return err
	}
	svc.pinned.Invalidate()
	return nil
}

// Pinned returns the published pinned notices, served from cache when possible.
func (svc *Service) Pinned(ctx context.Context) ([]Notice, error) {
	now := NowFunc().UTC()
	// unpublished ones are cached too & filtered on read
	notices, err := svc.pinned.Get(func() ([]Notice, error) {
		return svc.repo.QueryNotices(ctx, &QueryFilter{PinnedOnly: true, IncludeUnpublished: true}, core.Page{Number: 1, Size: MaxPinned})
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying pinned notices")
	}
	return published(notices, now), nil
}

func published(notices []Notice, now time.Time) []Notice {
	res := make([]Notice, 0, len(notices))
	for _, n := range notices {
		if n.IsPublished(now) {
			res = append(res, n)
		}
	}
	return res
}
