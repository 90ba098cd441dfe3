package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/popup"
	"github.com/trezcool/academia/storage/cache"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
	testutil "github.com/trezcool/academia/tests"
)

func TestRunner_Add(t *testing.T) {
	r := NewRunner(testutil.NewLogger(), nil)

	noop := func(ctx context.Context, now time.Time) (int64, error) { return 0, nil }
	require.NoError(t, r.Add("noop", "@every 1m", time.Second, noop))
	assert.Error(t, r.Add("noop", "@every 1m", time.Second, noop), "duplicate name")
	assert.Error(t, r.Add("bad", "every minute", time.Second, noop), "invalid spec")
	assert.Error(t, r.RunNow("unknown"))
}

func TestRunner_RunNow(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	NowFunc = func() time.Time { return fixed }
	defer func() { NowFunc = time.Now }()

	logger := testutil.NewLogger()
	r := NewRunner(logger, nil)

	var calls int32
	require.NoError(t, r.Add("ok", "@hourly", time.Second, func(ctx context.Context, now time.Time) (int64, error) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, fixed, now)
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return 3, nil
	}))
	require.NoError(t, r.Add("failing", "@hourly", time.Second, func(ctx context.Context, now time.Time) (int64, error) {
		return 0, errors.New("boom")
	}))

	require.NoError(t, r.RunNow("ok"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	debug := logger.Entries("debug")
	require.Len(t, debug, 1)
	assert.Equal(t, "job ok done", debug[0].Message)

	require.NoError(t, r.RunNow("failing"))
	errs := logger.Entries("error")
	require.Len(t, errs, 1)
	assert.Equal(t, "running job failing", errs[0].Message)
}

func TestRegister(t *testing.T) {
	db := inmemdb.Open()
	c, err := cache.New(100)
	require.NoError(t, err)
	popups := popup.NewService(inmemdb.NewPopupRepository(db), c)
	courses := course.NewService(inmemdb.NewCourseRepository(db), nil, db, nil)

	now := time.Now().UTC()
	p, err := inmemdb.NewPopupRepository(db).CreatePopup(context.Background(), popup.Popup{
		Title:    "Ended",
		StartsAt: now.Add(-2 * time.Hour),
		EndsAt:   now.Add(-time.Hour),
		IsActive: true,
	})
	require.NoError(t, err)

	conf := core.NewTestConfig()
	conf.Jobs.PopupExpirySpec = "@every 5m"
	conf.Jobs.RegistrationCloseSpec = "@hourly"

	r := NewRunner(testutil.NewLogger(), nil)
	require.NoError(t, Register(r, conf, popups, courses))
	require.NoError(t, r.RunNow(PopupExpiry))
	require.NoError(t, r.RunNow(RegistrationClose))

	got, err := popups.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	r.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, r.Stop(ctx))
}
