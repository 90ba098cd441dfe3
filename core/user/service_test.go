package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
	appfs "github.com/trezcool/academia/fs"
	emailsvc "github.com/trezcool/academia/services/email"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
	testutil "github.com/trezcool/academia/tests"
)

func setup(t *testing.T) (*user.Service, user.Repository, *validator.Validate) {
	conf := core.NewTestConfig()
	require.NoError(t, core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true))
	require.NoError(t, user.LoadCommonPasswords(appfs.FS, appfs.CommonPasswordsFile))

	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	user.InitValidators(validate, translator)

	repo := inmemdb.NewUserRepository(inmemdb.Open())
	emailsvc.ResetSentMessages()
	return user.NewService(repo, emailsvc.NewConsoleServiceMock(conf), conf), repo, validate
}

// fieldErrors returns the failed tags of a validation error keyed by field.
func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	res := make(map[string]string)
	switch e := err.(type) {
	case validator.ValidationErrors:
		for _, fe := range e {
			res[fe.Field()] = fe.Tag()
		}
	case *core.ValidationError:
		for _, fe := range e.Fields {
			res[fe.Field] = fe.Error
		}
	default:
		t.Fatalf("unexpected error type %T: %v", err, err)
	}
	return res
}

func TestNewUser_Validate(t *testing.T) {
	ctx := context.Background()
	svc, repo, validate := setup(t)
	testutil.CreateUser(t, repo, "Taken", "taken", "taken@test.cd", "", nil, true)

	valid := func() user.NewUser {
		return user.NewUser{
			Name:            "  Jane Doe ",
			Username:        " JaneD ",
			Email:           "Jane@Test.cd",
			Password:        "Xy.8427qz",
			PasswordConfirm: "Xy.8427qz",
			Roles:           []string{user.RoleStudent},
		}
	}

	tests := []struct {
		name      string
		mutate    func(nu *user.NewUser)
		wantField string
		wantTag   string
	}{
		{name: "valid"},
		{name: "name required", mutate: func(nu *user.NewUser) { nu.Name = "  " }, wantField: "name", wantTag: "required"},
		{name: "username or email", mutate: func(nu *user.NewUser) { nu.Username, nu.Email = "", "" }, wantField: "username", wantTag: "username_or_email"},
		{name: "username too short", mutate: func(nu *user.NewUser) { nu.Username = "jd" }, wantField: "username", wantTag: "min"},
		{name: "username chars", mutate: func(nu *user.NewUser) { nu.Username = "jane.doe" }, wantField: "username", wantTag: "alphanum_"},
		{name: "invalid email", mutate: func(nu *user.NewUser) { nu.Email = "jane@" }, wantField: "email", wantTag: "email"},
		{name: "unknown role", mutate: func(nu *user.NewUser) { nu.Roles = []string{"wizard:"} }, wantField: "roles", wantTag: "allroles"},
		{name: "passwords differ", mutate: func(nu *user.NewUser) { nu.PasswordConfirm = "Other.123" }, wantField: "password_confirm", wantTag: "eqfield"},
		{name: "password too short", mutate: func(nu *user.NewUser) { nu.Password, nu.PasswordConfirm = "Xy.1", "Xy.1" }, wantField: "password", wantTag: "pwdminlen"},
		{name: "password with space", mutate: func(nu *user.NewUser) { nu.Password, nu.PasswordConfirm = "Xy.8427 qz", "Xy.8427 qz" }, wantField: "password", wantTag: "pwdnospace"},
		{name: "numeric password", mutate: func(nu *user.NewUser) { nu.Password, nu.PasswordConfirm = "84273619", "84273619" }, wantField: "password", wantTag: "pwdnotallnum"},
		{name: "simple password", mutate: func(nu *user.NewUser) { nu.Password, nu.PasswordConfirm = "xy84273qz", "xy84273qz" }, wantField: "password", wantTag: "pwdcplx"},
		{name: "password like name", mutate: func(nu *user.NewUser) { nu.Password, nu.PasswordConfirm = "JaneDoe.1", "JaneDoe.1" }, wantField: "password", wantTag: "pwdtoosim"},
		{name: "password like email", mutate: func(nu *user.NewUser) { nu.Password, nu.PasswordConfirm = "Jane@Test.cd1", "Jane@Test.cd1" }, wantField: "password", wantTag: "pwdtoosim"},
		{name: "common password", mutate: func(nu *user.NewUser) { nu.Password, nu.PasswordConfirm = "P@ssw0rd", "P@ssw0rd" }, wantField: "password", wantTag: "pwdnocommon"},
		{name: "username taken", mutate: func(nu *user.NewUser) { nu.Username = "TAKEN" }, wantField: "username", wantTag: user.ErrUsernameExists.Error()},
		{name: "email taken", mutate: func(nu *user.NewUser) { nu.Email = "taken@test.cd" }, wantField: "email", wantTag: user.ErrEmailExists.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nu := valid()
			if tt.mutate != nil {
				tt.mutate(&nu)
			}
			err := nu.Validate(ctx, validate, svc)
			if tt.wantField == "" {
				require.NoError(t, err)
				assert.Equal(t, "Jane Doe", nu.Name)
				assert.Equal(t, "janed", nu.Username)
				assert.Equal(t, "jane@test.cd", nu.Email)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantTag, fieldErrors(t, err)[tt.wantField])
		})
	}
}

func TestUpdateUser_Validate(t *testing.T) {
	ctx := context.Background()
	svc, repo, validate := setup(t)
	orig := testutil.CreateActiveUser(t, repo, "orig", user.RoleStudent)
	testutil.CreateActiveUser(t, repo, "other")

	t.Run("keeps unset fields", func(t *testing.T) {
		uu := user.UpdateUser{}
		require.NoError(t, uu.Validate(ctx, orig, validate, svc))
		assert.Equal(t, orig.Name, uu.Name)
		assert.Equal(t, orig.Username, uu.Username)
		assert.Equal(t, orig.Email, uu.Email)
		assert.Equal(t, orig.Roles, uu.Roles)
	})

	t.Run("own username is not a conflict", func(t *testing.T) {
		uu := user.UpdateUser{Username: "ORIG"}
		assert.NoError(t, uu.Validate(ctx, orig, validate, svc))
	})

	t.Run("username of another user", func(t *testing.T) {
		uu := user.UpdateUser{Username: "other"}
		err := uu.Validate(ctx, orig, validate, svc)
		require.Error(t, err)
		assert.Contains(t, fieldErrors(t, err), "username")
	})

	t.Run("password needs confirmation", func(t *testing.T) {
		uu := user.UpdateUser{Password: "Xy.8427qz"}
		err := uu.Validate(ctx, orig, validate, svc)
		require.Error(t, err)
		assert.Contains(t, fieldErrors(t, err), "password_confirm")
	})

	t.Run("weak password", func(t *testing.T) {
		uu := user.UpdateUser{Password: "weak", PasswordConfirm: "weak"}
		err := uu.Validate(ctx, orig, validate, svc)
		require.Error(t, err)
		assert.Equal(t, "pwdminlen", fieldErrors(t, err)["password"])
	})
}

func TestService_CreateAndQuery(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup(t)

	usr, err := svc.Create(ctx, user.NewUser{
		Name:     "Jane",
		Username: "jane",
		Email:    "jane@test.cd",
		Password: "Xy.8427qz",
		Roles:    []string{user.RoleTeacher},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, usr.ID)
	assert.True(t, usr.Active())
	assert.NoError(t, usr.CheckPassword("Xy.8427qz"))
	assert.Equal(t, usr.CreatedAt, usr.UpdatedAt)

	got, err := svc.GetByUsernameOrEmail(ctx, " JANE@test.cd ")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)
	got, err = svc.GetByUsername(ctx, "Jane")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)

	_, err = svc.GetByID(ctx, "6f1e0b9e-3c41-4a7e-9d43-6f2f1bde0b11")
	assert.True(t, core.IsNotFound(err))

	teachers, err := svc.Query(ctx, &user.QueryFilter{Roles: []string{user.RoleTeacher}}, nil)
	require.NoError(t, err)
	require.Len(t, teachers, 1)
	assert.Equal(t, usr.ID, teachers[0].ID)

	n, err := svc.Delete(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = svc.Delete(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := setup(t)
	usr := testutil.CreateActiveUser(t, repo, "jane", user.RoleStudent)

	inactive := false
	updated, err := svc.Update(ctx, usr, user.UpdateUser{
		Name:     "Jane D",
		Username: usr.Username,
		Email:    "jd@test.cd",
		Roles:    []string{user.RoleTeacher},
		IsActive: &inactive,
		Password: "Nw.9315pk",
	})
	require.NoError(t, err)
	assert.Equal(t, "Jane D", updated.Name)
	assert.Equal(t, "jd@test.cd", updated.Email)
	assert.True(t, updated.IsTeacher())
	assert.False(t, updated.Active())
	assert.NoError(t, updated.CheckPassword("Nw.9315pk"))
	assert.True(t, updated.UpdatedAt.After(usr.UpdatedAt) || updated.UpdatedAt.Equal(usr.UpdatedAt))

	stored, err := svc.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.Email, stored.Email)
}

func TestService_PasswordReset(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := setup(t)
	usr := testutil.CreateActiveUser(t, repo, "jane", user.RoleStudent)
	inactive := testutil.CreateUser(t, repo, "Gone", "gone", "gone@test.cd", testutil.DefaultPassword, nil, false)

	assert.True(t, core.IsNotFound(svc.RequestPasswordReset(ctx, "nobody@test.cd")))
	assert.True(t, core.IsNotFound(svc.RequestPasswordReset(ctx, inactive.Email)))
	assert.Empty(t, emailsvc.SentMessages())

	require.NoError(t, svc.RequestPasswordReset(ctx, "  JANE@example.com"))
	sent := emailsvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, usr.Email, sent[0].To[0].Address)
	data, ok := sent[0].TemplateData.(user.PasswordResetData)
	require.True(t, ok)
	assert.Equal(t, user.EncodeUID(usr), data.UID)
	assert.Contains(t, sent[0].TextContent, "/password-reset/"+data.UID+"/"+data.Token)

	tests := []struct {
		name      string
		data      user.ResetUserPassword
		wantField string
	}{
		{name: "invalid uid", data: user.ResetUserPassword{UID: "!!", Token: data.Token, Password: "Nw.9315pk"}, wantField: "uid"},
		{name: "unknown uid", data: user.ResetUserPassword{UID: user.EncodeUID(user.User{ID: "nobody"}), Token: data.Token, Password: "Nw.9315pk"}, wantField: "uid"},
		{name: "invalid token", data: user.ResetUserPassword{UID: data.UID, Token: "HE4TS-sigsig-sig", Password: "Nw.9315pk"}, wantField: "token"},
		{name: "valid", data: user.ResetUserPassword{UID: data.UID, Token: data.Token, Password: "Nw.9315pk"}},
		{name: "token is single use", data: user.ResetUserPassword{UID: data.UID, Token: data.Token, Password: "Zq.7260mv"}, wantField: "token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.ResetPassword(ctx, tt.data)
			if tt.wantField == "" {
				require.NoError(t, err)
				got, err := svc.GetByID(ctx, usr.ID)
				require.NoError(t, err)
				assert.NoError(t, got.CheckPassword(tt.data.Password))
				return
			}
			require.Error(t, err)
			assert.Contains(t, fieldErrors(t, err), tt.wantField)
		})
	}
}

func TestService_SetLastLogin(t *testing.T) {
	svc, repo, _ := setup(t)
	usr := testutil.CreateActiveUser(t, repo, "jane")
	before := time.Now().UTC().Add(-time.Second)

	usr, err := svc.SetLastLogin(context.Background(), usr)
	require.NoError(t, err)
	assert.True(t, usr.LastLogin.After(before))
}

func TestRolePriorities(t *testing.T) {
	assert.Equal(t, 30, user.MaxRolePriority(user.AllRoles))
	assert.Equal(t, 11, user.MaxRolePriority([]string{user.RoleStudent, user.RoleTeacher}))
	assert.Zero(t, user.MaxRolePriority(nil))

	owner := user.User{Roles: []string{user.RoleAdminOwner}}
	admin := user.User{Roles: []string{user.RoleAdmin}}
	assert.True(t, owner.IsAdmin())
	assert.True(t, owner.IsSuperAdmin())
	assert.True(t, admin.IsAdmin())
	assert.False(t, admin.IsSuperAdmin())
	assert.True(t, admin.Active(), "unset IsActive means active")
}
