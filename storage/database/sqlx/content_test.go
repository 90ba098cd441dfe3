package sqlxrepos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/file"
	"github.com/trezcool/academia/core/notice"
	"github.com/trezcool/academia/core/permission"
	"github.com/trezcool/academia/core/popup"
	"github.com/trezcool/academia/core/question"
	"github.com/trezcool/academia/core/user"
)

func TestQuestionRepository(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	courses := NewCourseRepository(db)
	repo := NewQuestionRepository(db)
	ts := now()

	c, err := courses.CreateCourse(ctx, courseFixture("BIO100", ts))
	require.NoError(t, err)

	q, err := repo.CreateQuestion(ctx, question.Question{
		CourseID:  c.ID,
		Type:      question.TypeMultipleChoice,
		Content:   "Which are mammals?",
		Choices:   []string{"Whale", "Shark", "Bat"},
		Answers:   []int{0, 2},
		Points:    5,
		CreatedAt: ts,
		UpdatedAt: ts,
	})
	require.NoError(t, err)
	_, err = repo.CreateQuestion(ctx, question.Question{
		CourseID:   c.ID,
		Type:       question.TypeShortAnswer,
		Content:    "Name the powerhouse of the cell",
		AnswerText: "mitochondria",
		Points:     2,
		CreatedAt:  ts.Add(time.Second),
		UpdatedAt:  ts.Add(time.Second),
	})
	require.NoError(t, err)

	got, err := repo.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Whale", "Shark", "Bat"}, got.Choices)
	assert.Equal(t, []int{0, 2}, got.Answers)

	qs, err := repo.QueryQuestions(ctx, c.ID, []core.DBOrdering{{Field: "points", Ascending: true}})
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, 2, qs[0].Points)
	assert.Empty(t, qs[0].Choices)

	got.Points = 10
	got.Answers = []int{0}
	_, err = repo.UpdateQuestion(ctx, got)
	require.NoError(t, err)
	got, err = repo.GetQuestion(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Points)
	assert.Equal(t, []int{0}, got.Answers)

	require.NoError(t, repo.DeleteQuestion(ctx, q.ID))
	assert.Equal(t, question.ErrNotFound, repo.DeleteQuestion(ctx, q.ID))
}

func TestNoticeRepository(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewNoticeRepository(db)
	ts := now()

	mk := func(title string, pinned bool, publishedAt time.Time) notice.Notice {
		n, err := repo.CreateNotice(ctx, notice.Notice{
			Title:       title,
			Content:     title + " content",
			Category:    notice.CategoryGeneral,
			Pinned:      pinned,
			PublishedAt: publishedAt,
			CreatedAt:   ts,
			UpdatedAt:   ts,
		})
		require.NoError(t, err)
		return n
	}
	older := mk("Older", false, ts.Add(-2*time.Hour))
	newer := mk("Newer", false, ts.Add(-time.Hour))
	pinned := mk("Pinned", true, ts.Add(-3*time.Hour))
	scheduled := mk("Scheduled", false, ts.Add(time.Hour))

	titles := func(notices []notice.Notice) []string {
		res := make([]string, 0, len(notices))
		for _, n := range notices {
			res = append(res, n.Title)
		}
		return res
	}

	notices, err := repo.QueryNotices(ctx, &notice.QueryFilter{Now: ts}, core.Page{Number: 1, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{pinned.Title, newer.Title, older.Title}, titles(notices))

	notices, err = repo.QueryNotices(ctx, &notice.QueryFilter{Now: ts, IncludeUnpublished: true}, core.Page{Number: 1, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{pinned.Title, scheduled.Title}, titles(notices))

	notices, err = repo.QueryNotices(ctx, &notice.QueryFilter{Now: ts, Search: "OLD"}, core.Page{Number: 1, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{older.Title}, titles(notices))

	var cnt int
	require.NoError(t, core.WithTx(ctx, db, func(exec core.DBExecutor) error {
		if err := repo.LockPinned(ctx, exec); err != nil {
			return err
		}
		var err error
		cnt, err = repo.CountPinned(ctx, "", exec)
		return err
	}))
	assert.Equal(t, 1, cnt)
	cnt, err = repo.CountPinned(ctx, pinned.ID)
	require.NoError(t, err)
	assert.Zero(t, cnt)

	require.NoError(t, repo.IncrementViews(ctx, older.ID))
	require.NoError(t, repo.IncrementViews(ctx, older.ID))
	assert.Equal(t, notice.ErrNotFound, repo.IncrementViews(ctx, "missing"))

	older.Title = "Oldest"
	older.AttachmentIDs = []string{"a", "b"}
	updated, err := repo.UpdateNotice(ctx, older)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Views)
	assert.Equal(t, []string{"a", "b"}, updated.AttachmentIDs)

	require.NoError(t, repo.DeleteNotice(ctx, older.ID))
	_, err = repo.GetNotice(ctx, older.ID)
	assert.Equal(t, notice.ErrNotFound, err)
}

func TestPopupRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewPopupRepository(newTestDB(t))
	ts := now()

	mk := func(title string, priority int, endsAt time.Time) popup.Popup {
		p, err := repo.CreatePopup(ctx, popup.Popup{
			Title:     title,
			StartsAt:  ts.Add(-time.Hour),
			EndsAt:    endsAt,
			IsActive:  true,
			Priority:  priority,
			CreatedAt: ts,
			UpdatedAt: ts,
		})
		require.NoError(t, err)
		return p
	}
	current := mk("Current", 1, ts.Add(time.Hour))
	important := mk("Important", 5, ts.Add(time.Hour))
	ended := mk("Ended", 9, ts)

	popups, err := repo.QueryPopups(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, popups, 3)
	assert.Equal(t, ended.ID, popups[0].ID) // highest priority first

	cnt, err := repo.DeactivatePopups(ctx, ts)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cnt)

	popups, err = repo.QueryPopups(ctx, &popup.QueryFilter{ActiveOnly: true}, nil)
	require.NoError(t, err)
	require.Len(t, popups, 2)
	assert.Equal(t, important.ID, popups[0].ID)
	assert.Equal(t, current.ID, popups[1].ID)

	current.Priority = 10
	_, err = repo.UpdatePopup(ctx, current)
	require.NoError(t, err)
	got, err := repo.GetPopup(ctx, current.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Priority)

	require.NoError(t, repo.DeletePopup(ctx, current.ID))
	assert.Equal(t, popup.ErrNotFound, repo.DeletePopup(ctx, current.ID))
}

func TestGrantRepository(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := NewUserRepository(db)
	repo := NewGrantRepository(db)

	admin := createUser(t, users, "admin", user.RoleAdmin)
	teacher := createUser(t, users, "teacher", user.RoleTeacher)

	g, err := repo.SaveGrant(ctx, permission.Grant{
		UserID:    teacher.ID,
		Resource:  permission.ResourceNotices,
		Actions:   []string{permission.ActionRead},
		GrantedBy: admin.ID,
		CreatedAt: now(),
	})
	require.NoError(t, err)

	// same user & resource: actions are replaced
	g2, err := repo.SaveGrant(ctx, permission.Grant{
		UserID:    teacher.ID,
		Resource:  permission.ResourceNotices,
		Actions:   []string{permission.ActionRead, permission.ActionWrite},
		GrantedBy: admin.ID,
		CreatedAt: now(),
	})
	require.NoError(t, err)
	assert.Equal(t, g.ID, g2.ID)

	got, err := repo.GetGrant(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{permission.ActionRead, permission.ActionWrite}, got.Actions)

	grants, err := repo.QueryGrants(ctx, &permission.QueryFilter{UserID: teacher.ID})
	require.NoError(t, err)
	assert.Len(t, grants, 1)
	grants, err = repo.QueryGrants(ctx, &permission.QueryFilter{UserID: admin.ID})
	require.NoError(t, err)
	assert.Empty(t, grants)

	require.NoError(t, repo.DeleteGrant(ctx, g.ID))
	_, err = repo.GetGrant(ctx, g.ID)
	assert.Equal(t, permission.ErrNotFound, err)
}

func TestFileRepository(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := NewUserRepository(db)
	repo := NewFileRepository(db)

	owner := createUser(t, users, "owner", user.RoleTeacher)
	other := createUser(t, users, "other", user.RoleStudent)
	ts := now()

	var ids []string
	for i, usr := range []user.User{owner, owner, other} {
		f, err := repo.CreateFile(ctx, file.File{
			OwnerID:     usr.ID,
			Name:        "doc.pdf",
			ContentType: "application/pdf",
			Size:        1024,
			StorageKey:  "key",
			URL:         "http://filestore.test/files/key",
			CreatedAt:   ts.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
		ids = append(ids, f.ID)
	}

	files, err := repo.QueryFiles(ctx, owner.ID, core.Page{Number: 1, Size: 10})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, ids[1], files[0].ID) // newest first

	files, err = repo.QueryFiles(ctx, "", core.Page{Number: 2, Size: 2})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, ids[0], files[0].ID)

	got, err := repo.GetFile(ctx, ids[2])
	require.NoError(t, err)
	assert.Equal(t, "key", got.StorageKey)
	assert.Equal(t, int64(1024), got.Size)

	require.NoError(t, repo.DeleteFile(ctx, ids[2]))
	assert.Equal(t, file.ErrNotFound, repo.DeleteFile(ctx, ids[2]))
}
