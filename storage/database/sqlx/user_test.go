package sqlxrepos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(newTestDB(t))

	owner := createUser(t, repo, "owner", user.RoleAdminOwner)
	teacher := createUser(t, repo, "teacher", user.RoleTeacher)
	student := createUser(t, repo, "student", user.RoleStudent)

	t.Run("GetUser", func(t *testing.T) {
		got, err := repo.GetUser(ctx, user.GetFilter{ID: owner.ID})
		require.NoError(t, err)
		assert.Equal(t, owner.Username, got.Username)
		assert.Equal(t, []string{user.RoleAdminOwner}, got.Roles)
		assert.True(t, got.Active())
		assert.NoError(t, got.CheckPassword("Pwd.123456"))
		assert.True(t, got.LastLogin.IsZero())

		got, err = repo.GetUser(ctx, user.GetFilter{Email: "teacher@example.com"})
		require.NoError(t, err)
		assert.Equal(t, teacher.ID, got.ID)

		got, err = repo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{"student"}})
		require.NoError(t, err)
		assert.Equal(t, student.ID, got.ID)

		_, err = repo.GetUser(ctx, user.GetFilter{Username: "nobody"})
		assert.Equal(t, user.ErrNotFound, err)
		_, err = repo.GetUser(ctx, user.GetFilter{})
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("CheckUsernameUniqueness", func(t *testing.T) {
		assert.Equal(t, user.ErrUsernameExists, repo.CheckUsernameUniqueness(ctx, "owner", "x@example.com", nil))
		assert.Equal(t, user.ErrEmailExists, repo.CheckUsernameUniqueness(ctx, "x", "owner@example.com", nil))
		assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "owner", "owner@example.com", []user.User{owner}))
		assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "new", "new@example.com", nil))
	})

	t.Run("QueryUsers", func(t *testing.T) {
		inactive := false
		tests := []struct {
			name   string
			filter *user.QueryFilter
			want   []string
		}{
			{name: "all", filter: nil, want: []string{owner.ID, teacher.ID, student.ID}},
			{name: "search", filter: &user.QueryFilter{Search: "TEACH"}, want: []string{teacher.ID}},
			{name: "admin role prefix", filter: &user.QueryFilter{Roles: []string{user.RoleAdmin}}, want: []string{owner.ID}},
			{
				name:   "any role",
				filter: &user.QueryFilter{Roles: []string{user.RoleStudent, user.RoleTeacher}},
				want:   []string{teacher.ID, student.ID},
			},
			{name: "inactive", filter: &user.QueryFilter{IsActive: &inactive}, want: []string{}},
			{
				name:   "created range",
				filter: &user.QueryFilter{CreatedFrom: time.Now().Add(-time.Hour), CreatedTo: time.Now().Add(time.Hour)},
				want:   []string{owner.ID, teacher.ID, student.ID},
			},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				users, err := repo.QueryUsers(ctx, tc.filter, nil)
				require.NoError(t, err)
				ids := make([]string, 0, len(users))
				for _, u := range users {
					ids = append(ids, u.ID)
				}
				assert.ElementsMatch(t, tc.want, ids)
			})
		}

		users, err := repo.QueryUsers(ctx, nil, []core.DBOrdering{{Field: "username", Ascending: false}, {Field: "1; DROP TABLE users"}})
		require.NoError(t, err)
		require.Len(t, users, 3)
		assert.Equal(t, "teacher", users[0].Username)
		assert.Equal(t, "owner", users[2].Username)
	})

	t.Run("UpdateUser", func(t *testing.T) {
		usr := student
		usr.Name = "Updated"
		usr.Roles = []string{user.RoleStudent, user.RoleTeacher}
		usr.SetActive(false)
		usr.LastLogin = now()

		_, err := repo.UpdateUser(ctx, usr)
		require.NoError(t, err)

		got, err := repo.GetUser(ctx, user.GetFilter{ID: usr.ID})
		require.NoError(t, err)
		assert.Equal(t, "Updated", got.Name)
		assert.Equal(t, usr.Roles, got.Roles)
		assert.False(t, got.Active())
		assert.True(t, usr.LastLogin.Equal(got.LastLogin))

		_, err = repo.UpdateUser(ctx, user.User{ID: "missing"})
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("DeleteUsersByID", func(t *testing.T) {
		cnt, err := repo.DeleteUsersByID(ctx, []string{teacher.ID, student.ID, "missing"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), cnt)

		users, err := repo.QueryUsers(ctx, nil, nil)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, owner.ID, users[0].ID)
	})
}
