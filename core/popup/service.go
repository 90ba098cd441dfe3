package popup

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

const (
	activeCacheKey = "popups:active"
	activeCacheTTL = time.Minute
)

var (
	ErrNotFound = core.NewNotFoundError("popup")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		CreatePopup(ctx context.Context, p Popup, exec ...core.DBExecutor) (Popup, error)
		QueryPopups(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Popup, error)
		GetPopup(ctx context.Context, id string, exec ...core.DBExecutor) (Popup, error)
		UpdatePopup(ctx context.Context, p Popup, exec ...core.DBExecutor) (Popup, error)
		DeletePopup(ctx context.Context, id string, exec ...core.DBExecutor) error
		// DeactivatePopups deactivates every active popup that ended at or before now.
		DeactivatePopups(ctx context.Context, now time.Time, exec ...core.DBExecutor) (int64, error)
	}

	ServiceInterface interface {
		Create(ctx context.Context, np NewPopup) (Popup, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Popup, error)
		GetByID(ctx context.Context, id string) (Popup, error)
		Update(ctx context.Context, p Popup, up UpdatePopup) (Popup, error)
		Delete(ctx context.Context, id string) error
		Active(ctx context.Context, now time.Time) ([]Popup, error)
		DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
	}

	Service struct {
		repo   Repository
		active *core.CachedValue[[]Popup]
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, cache core.Cache) *Service {
	return &Service{repo: repo, active: core.NewCachedValue[[]Popup](cache, activeCacheKey, activeCacheTTL)}
}

func (svc *Service) Create(ctx context.Context, np NewPopup) (Popup, error) {
	now := time.Now().UTC()
	p := Popup{
		Title:       np.Title,
		Content:     np.Content,
		ImageFileID: np.ImageFileID,
		LinkURL:     np.LinkURL,
		StartsAt:    np.StartsAt.UTC(),
		EndsAt:      np.EndsAt.UTC(),
		IsActive:    true,
		Priority:    np.Priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if np.IsActive != nil {
		p.IsActive = *np.IsActive
	}
	created, err := svc.repo.CreatePopup(ctx, p)
	if err != nil {
		return Popup{}, err
	}
	svc.active.Invalidate()
	return created, nil
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Popup, error) {
	return svc.repo.QueryPopups(ctx, filter, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Popup, error) {
	return svc.repo.GetPopup(ctx, id)
}

// Update applies a validated UpdatePopup to p.
func (svc *Service) Update(ctx context.Context, p Popup, up UpdatePopup) (Popup, error) {
	p.Title = up.Title
	p.Content = *up.Content
	p.ImageFileID = *up.ImageFileID
	p.LinkURL = *up.LinkURL
	p.StartsAt = up.StartsAt.UTC()
	p.EndsAt = up.EndsAt.UTC()
	p.IsActive = *up.IsActive
	p.Priority = *up.Priority
	p.UpdatedAt = time.Now().UTC()

	updated, err := svc.repo.UpdatePopup(ctx, p)
	if err != nil {
		return Popup{}, err
	}
	svc.active.Invalidate()
	return updated, nil
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	if err := svc.repo.DeletePopup(ctx, id); err != nil {
		return err
	}
	svc.active.Invalidate()
	return nil
}

// Active returns the popups shown at time now, highest priority first.
func (svc *Service) Active(ctx context.Context, now time.Time) ([]Popup, error) {
	popups, err := svc.active.Get(func() ([]Popup, error) {
		return svc.repo.QueryPopups(ctx, &QueryFilter{ActiveOnly: true}, nil)
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying active popups")
	}

	shown := make([]Popup, 0, len(popups))
	for _, p := range popups {
		if p.ShownAt(now) {
			shown = append(shown, p)
		}
	}
	sort.SliceStable(shown, func(i, j int) bool {
		if shown[i].Priority != shown[j].Priority {
			return shown[i].Priority > shown[j].Priority
		}
		return shown[i].StartsAt.After(shown[j].StartsAt)
	})
	return shown, nil
}

func (svc *Service) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := svc.repo.DeactivatePopups(ctx, now.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "deactivating popups")
	}
	if n > 0 {
		svc.active.Invalidate()
	}
	return n, nil
}
