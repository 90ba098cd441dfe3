package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core/permission"
	"github.com/trezcool/academia/core/user"
	testutil "github.com/trezcool/academia/tests"
)

func Test_permissionApi(t *testing.T) {
	f := setup(t)
	owner := testutil.CreateActiveUser(t, f.usrRepo, "owner", user.RoleAdminOwner)
	admin := testutil.CreateActiveUser(t, f.usrRepo, "admin", user.RoleAdmin)
	teacher := testutil.CreateActiveUser(t, f.usrRepo, "teacher", user.RoleTeacher)
	ownerToken := f.token(t, owner)
	teacherToken := f.token(t, teacher)

	grantBody := func(userID, resource string, actions ...string) []byte {
		return marshalObj(t, permission.NewGrant{UserID: userID, Resource: resource, Actions: actions})
	}

	runHTTPTests(t, f, []httpTest{
		{name: "Auth required", path: "/v1/permissions", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{
			name: "Plain admins cannot grant", method: http.MethodPost, path: "/v1/permissions", token: f.token(t, admin),
			body: grantBody(teacher.ID, permission.ResourceNotices, permission.ActionWrite), wantCode: http.StatusForbidden,
			wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Invalid", method: http.MethodPost, path: "/v1/permissions", token: ownerToken,
			body: grantBody("lol", "grades", "fly"), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{
				"user_id":    "user_id must be a valid UUID",
				"resource":   "invalid resource",
				"actions[0]": "invalid action",
			}),
		},
		{
			name: "Own permissions", path: "/v1/users/" + teacher.ID + "/permissions", token: teacherToken,
			wantData: marshalList(t),
		},
		{
			name: "Others' permissions", path: "/v1/users/" + owner.ID + "/permissions", token: f.token(t, admin),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
	})

	var g permission.Grant
	t.Run("Granted", func(t *testing.T) {
		rec := f.serve(newAuthRequest(http.MethodPost, "/v1/permissions", ownerToken,
			grantBody(teacher.ID, " Notices ", "WRITE", "write", "read")))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		decode(t, rec, &g)
		assert.Equal(t, teacher.ID, g.UserID)
		assert.Equal(t, permission.ResourceNotices, g.Resource)
		assert.Equal(t, []string{permission.ActionWrite, permission.ActionRead}, g.Actions)
		assert.Equal(t, owner.ID, g.GrantedBy)

		// the grant takes effect at once
		rec = f.serve(newAuthRequest(http.MethodPost, "/v1/notices", teacherToken, []byte(`{"title":"Exams","content":"Soon"}`)))
		assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	})

	t.Run("Query", func(t *testing.T) {
		rec := f.serve(newAuthRequest(http.MethodGet, "/v1/permissions?resource=notices&user_id="+teacher.ID, ownerToken))
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marshalList(t, g)}, rec)

		rec = f.serve(newAuthRequest(http.MethodGet, "/v1/permissions?resource=popups", ownerToken))
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marshalList(t)}, rec)

		rec = f.serve(newAuthRequest(http.MethodGet, "/v1/users/"+teacher.ID+"/permissions", teacherToken))
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marshalList(t, g)}, rec)

		rec = f.serve(newAuthRequest(http.MethodGet, "/v1/permissions/"+g.ID, ownerToken))
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marshalObj(t, g)}, rec)
	})

	t.Run("Revoked", func(t *testing.T) {
		rec := f.serve(newAuthRequest(http.MethodDelete, "/v1/permissions/"+g.ID, ownerToken))
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = f.serve(newAuthRequest(http.MethodGet, "/v1/permissions/"+g.ID, ownerToken))
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = f.serve(newAuthRequest(http.MethodPost, "/v1/notices", teacherToken, []byte(`{"title":"Exams","content":"Soon"}`)))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
