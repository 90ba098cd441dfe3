package notice_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/notice"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
	testutil "github.com/trezcool/academia/tests"
)

func setup() (*notice.Service, *testutil.Cache, *validator.Validate) {
	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	notice.InitValidators(validate, translator)

	db := inmemdb.Open()
	cache := testutil.NewCache()
	return notice.NewService(inmemdb.NewNoticeRepository(db), db, cache), cache, validate
}

func TestNewNotice_Validate(t *testing.T) {
	_, _, validate := setup()

	tests := []struct {
		name    string
		nn      notice.NewNotice
		wantTag map[string]string
	}{
		{name: "valid", nn: notice.NewNotice{Title: " Exams ", Content: "Next week", Category: " Academic "}},
		{name: "empty", nn: notice.NewNotice{}, wantTag: map[string]string{"title": "required", "content": "required"}},
		{name: "bad category", nn: notice.NewNotice{Title: "x", Content: "y", Category: "gossip"}, wantTag: map[string]string{"category": "noticecategory"}},
		{name: "bad course", nn: notice.NewNotice{Title: "x", Content: "y", CourseID: "c1"}, wantTag: map[string]string{"course_id": "uuid"}},
		{name: "bad attachment", nn: notice.NewNotice{Title: "x", Content: "y", AttachmentIDs: []string{"f1"}}, wantTag: map[string]string{"attachment_ids[0]": "uuid"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nn := tt.nn
			err := nn.Validate(validate)
			if tt.wantTag == nil {
				require.NoError(t, err)
				return
			}
			verrs, ok := err.(validator.ValidationErrors)
			require.True(t, ok, "got %v", err)
			got := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				got[fe.Field()] = fe.Tag()
			}
			assert.Equal(t, tt.wantTag, got)
		})
	}

	nn := notice.NewNotice{Title: " Exams ", Content: "Next week"}
	require.NoError(t, nn.Validate(validate))
	assert.Equal(t, "Exams", nn.Title)
	assert.Equal(t, notice.CategoryGeneral, nn.Category)
}

func TestService_Pinned(t *testing.T) {
	ctx := context.Background()
	svc, cache, validate := setup()

	for i := 0; i < notice.MaxPinned; i++ {
		_, err := svc.Create(ctx, "author", notice.NewNotice{Title: "pinned", Content: "x", Pinned: true})
		require.NoError(t, err)
	}

	_, err := svc.Create(ctx, "author", notice.NewNotice{Title: "one too many", Content: "x", Pinned: true})
	verr, ok := err.(*core.ValidationError)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, "pinned", verr.Fields[0].Field)

	regular, err := svc.Create(ctx, "author", notice.NewNotice{Title: "regular", Content: "x"})
	require.NoError(t, err)

	pin := true
	_, err = svc.Update(ctx, regular, notice.UpdateNotice{Pinned: &pin, Title: regular.Title, Content: regular.Content, Category: regular.Category})
	assert.Error(t, err)

	pinned, err := svc.Pinned(ctx)
	require.NoError(t, err)
	assert.Len(t, pinned, notice.MaxPinned)
	assert.True(t, cache.Has("notices:pinned"))

	_, err = svc.Pinned(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Hits)

	// unpinning one frees a slot & invalidates the cache
	unpin := false
	un := notice.UpdateNotice{Pinned: &unpin}
	require.NoError(t, un.Validate(pinned[0], validate))
	_, err = svc.Update(ctx, pinned[0], un)
	require.NoError(t, err)
	assert.False(t, cache.Has("notices:pinned"))

	_, err = svc.Update(ctx, regular, notice.UpdateNotice{Pinned: &pin, Title: regular.Title, Content: regular.Content, Category: regular.Category})
	require.NoError(t, err)

	// re-saving an already pinned notice does not count against the limit
	_, err = svc.Update(ctx, pinned[1], notice.UpdateNotice{Pinned: &pin, Title: "renamed", Content: "x", Category: notice.CategoryGeneral})
	require.NoError(t, err)
}

// racingRepo runs onQuery once, after the pinned notices were read.
type racingRepo struct {
	notice.Repository
	onQuery func()
}

func (r *racingRepo) QueryNotices(ctx context.Context, filter *notice.QueryFilter, page core.Page, exec ...core.DBExecutor) ([]notice.Notice, error) {
	notices, err := r.Repository.QueryNotices(ctx, filter, page, exec...)
	if f := r.onQuery; f != nil {
		r.onQuery = nil
		f()
	}
	return notices, err
}

func TestService_Pinned_updatedWhileLoading(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	repo := &racingRepo{Repository: inmemdb.NewNoticeRepository(db)}
	cache := testutil.NewCache()
	svc := notice.NewService(repo, db, cache)

	n, err := svc.Create(ctx, "author", notice.NewNotice{Title: "pinned", Content: "x", Pinned: true})
	require.NoError(t, err)

	unpin := false
	repo.onQuery = func() {
		_, err := svc.Update(ctx, n, notice.UpdateNotice{
			Title:       n.Title,
			Content:     n.Content,
			Category:    n.Category,
			Pinned:      &unpin,
			PublishedAt: n.PublishedAt,
		})
		require.NoError(t, err)
	}

	stale, err := svc.Pinned(ctx)
	require.NoError(t, err)
	assert.Len(t, stale, 1)
	assert.False(t, cache.Has("notices:pinned"))

	fresh, err := svc.Pinned(ctx)
	require.NoError(t, err)
	assert.Empty(t, fresh)
	assert.True(t, cache.Has("notices:pinned"))
}

func TestService_PublicationAndViews(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup()

	now := time.Now().UTC()
	notice.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { notice.NowFunc = time.Now })

	published, err := svc.Create(ctx, "author", notice.NewNotice{Title: "published", Content: "x"})
	require.NoError(t, err)
	scheduled, err := svc.Create(ctx, "author", notice.NewNotice{Title: "scheduled", Content: "x", PublishedAt: now.Add(time.Hour), Pinned: true})
	require.NoError(t, err)
	assert.Equal(t, time.UTC, published.PublishedAt.Location())

	t.Run("views counted", func(t *testing.T) {
		n, err := svc.GetByID(ctx, published.ID, false)
		require.NoError(t, err)
		assert.Equal(t, 1, n.Views)
		n, err = svc.GetByID(ctx, published.ID, false)
		require.NoError(t, err)
		assert.Equal(t, 2, n.Views)

		n, err = svc.Find(ctx, published.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, n.Views)
	})

	t.Run("unpublished hidden", func(t *testing.T) {
		_, err := svc.GetByID(ctx, scheduled.ID, false)
		assert.True(t, core.IsNotFound(err))

		n, err := svc.GetByID(ctx, scheduled.ID, true)
		require.NoError(t, err)
		assert.Equal(t, scheduled.ID, n.ID)

		list, err := svc.Query(ctx, nil, core.Page{})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, published.ID, list[0].ID)

		list, err = svc.Query(ctx, &notice.QueryFilter{IncludeUnpublished: true}, core.Page{})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, scheduled.ID, list[0].ID, "pinned first")

		pinned, err := svc.Pinned(ctx)
		require.NoError(t, err)
		assert.Empty(t, pinned)
	})

	t.Run("published once due", func(t *testing.T) {
		notice.NowFunc = func() time.Time { return now.Add(2 * time.Hour) }

		pinned, err := svc.Pinned(ctx)
		require.NoError(t, err)
		require.Len(t, pinned, 1)
		assert.Equal(t, scheduled.ID, pinned[0].ID)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := svc.GetByID(ctx, uuid.NewString(), true)
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, svc.Delete(ctx, published.ID))
		_, err := svc.Find(ctx, published.ID)
		assert.True(t, core.IsNotFound(err))
	})
}

func TestUpdateNotice_Validate(t *testing.T) {
	_, _, validate := setup()
	orig := notice.Notice{Title: "title", Content: "content", Category: notice.CategoryEvent, Pinned: true, PublishedAt: time.Now().UTC(), AttachmentIDs: []string{uuid.NewString()}}

	un := notice.UpdateNotice{Content: " new content "}
	require.NoError(t, un.Validate(orig, validate))
	assert.Equal(t, orig.Title, un.Title)
	assert.Equal(t, "new content", un.Content)
	assert.Equal(t, orig.Category, un.Category)
	assert.True(t, *un.Pinned)
	assert.Equal(t, orig.PublishedAt, un.PublishedAt)
	assert.Equal(t, orig.AttachmentIDs, un.AttachmentIDs)

	un = notice.UpdateNotice{Category: "gossip"}
	assert.Error(t, un.Validate(orig, validate))
}
