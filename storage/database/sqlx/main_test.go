package sqlxrepos

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/user"
	"github.com/trezcool/academia/storage/database"
)

// newTestDB opens a migrated sqlite database that lives as long as the test.
func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	conf := core.NewTestConfig()
	conf.Database.Engine = database.EngineSQLite
	conf.Database.Path = filepath.Join(t.TempDir(), "academia.db")

	db, err := database.Open(conf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(context.Background(), db))
	return db
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func createUser(t *testing.T, repo *userRepository, uname string, roles ...string) user.User {
	t.Helper()
	ts := now()
	usr := user.User{
		Name:      uname + " Name",
		Username:  uname,
		Email:     uname + "@example.com",
		Roles:     roles,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	usr.SetActive(true)
	require.NoError(t, usr.SetPassword("Pwd.123456"))

	usr, err := repo.CreateUser(context.Background(), usr)
	require.NoError(t, err)
	return usr
}

func courseFixture(code string, ts time.Time) course.Course {
	return course.Course{Code: code, Title: code, Capacity: 10, CreatedAt: ts, UpdatedAt: ts}
}
