package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/user"
	testutil "github.com/trezcool/academia/tests"
)

func Test_courseApi_create(t *testing.T) {
	f := setup(t)
	admin := testutil.CreateActiveUser(t, f.usrRepo, "admin", user.RoleAdmin)
	teacher := testutil.CreateActiveUser(t, f.usrRepo, "teacher", user.RoleTeacher)
	other := testutil.CreateActiveUser(t, f.usrRepo, "other", user.RoleTeacher)
	student := testutil.CreateActiveUser(t, f.usrRepo, "student", user.RoleStudent)
	testutil.CreateCourse(t, f.courseRepo, "MATH-1", teacher.ID, 10)
	teacherToken := f.token(t, teacher)

	newCourse := func(code, teacherID string) []byte {
		return marshalObj(t, course.NewCourse{Code: code, Title: "Algebra", TeacherID: teacherID, Capacity: 2})
	}

	runHTTPTests(t, f, []httpTest{
		{name: "Auth required", method: http.MethodPost, path: "/v1/courses", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{
			name: "Students cannot create", method: http.MethodPost, path: "/v1/courses", token: f.token(t, student),
			body: newCourse("ALG-1", ""), wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Invalid", method: http.MethodPost, path: "/v1/courses", token: teacherToken,
			body: marshalObj(t, course.NewCourse{Code: "a b"}), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{
				"code":     "only uppercase letters, digits, dashes and underscores are allowed",
				"title":    "this field is required",
				"capacity": "this field is required",
			}),
		},
		{
			name: "Duplicate code", method: http.MethodPost, path: "/v1/courses", token: teacherToken,
			body: newCourse(" math-1 ", ""), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"code": "a course with this code already exists"}),
		},
		{
			name: "Admin sets an unknown teacher", method: http.MethodPost, path: "/v1/courses", token: f.token(t, admin),
			body: newCourse("ALG-2", student.ID), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"teacher_id": "teacher not found"}),
		},
	})

	t.Run("Teachers own their courses", func(t *testing.T) {
		rec := f.serve(newAuthRequest(http.MethodPost, "/v1/courses", teacherToken, newCourse(" alg-1 ", other.ID)))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var c course.Course
		decode(t, rec, &c)
		assert.Equal(t, "ALG-1", c.Code)
		assert.Equal(t, teacher.ID, c.TeacherID)
	})

	t.Run("Admins assign teachers", func(t *testing.T) {
		rec := f.serve(newAuthRequest(http.MethodPost, "/v1/courses", f.token(t, admin), newCourse("ALG-3", other.ID)))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var c course.Course
		decode(t, rec, &c)
		assert.Equal(t, other.ID, c.TeacherID)
	})
}

func Test_courseApi_manage(t *testing.T) {
	f := setup(t)
	teacher := testutil.CreateActiveUser(t, f.usrRepo, "teacher", user.RoleTeacher)
	other := testutil.CreateActiveUser(t, f.usrRepo, "other", user.RoleTeacher)
	student := testutil.CreateActiveUser(t, f.usrRepo, "student", user.RoleStudent)
	crs := testutil.CreateCourse(t, f.courseRepo, "MATH-1", teacher.ID, 10)
	testutil.CreateCourse(t, f.courseRepo, "BIO-1", other.ID, 10)
	path := "/v1/courses/" + crs.ID

	runHTTPTests(t, f, []httpTest{
		{name: "Unknown course", path: "/v1/courses/nope", token: f.token(t, student), wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "not found"})},
		{name: "Anyone can read", path: path, token: f.token(t, student), wantData: marshalObj(t, crs)},
		{
			name: "Students cannot update", method: http.MethodPut, path: path, token: f.token(t, student),
			body: []byte(`{"title":"Geometry"}`), wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Other teachers cannot delete", method: http.MethodDelete, path: path, token: f.token(t, other),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Code taken", method: http.MethodPut, path: path, token: f.token(t, teacher),
			body: []byte(`{"code":"bio-1"}`), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"code": "a course with this code already exists"}),
		},
	})

	t.Run("Updated", func(t *testing.T) {
		rec := f.serve(newAuthRequest(http.MethodPut, path, f.token(t, teacher), []byte(`{"title":" Geometry ","capacity":5}`)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var c course.Course
		decode(t, rec, &c)
		assert.Equal(t, "Geometry", c.Title)
		assert.Equal(t, 5, c.Capacity)
		assert.Equal(t, crs.Code, c.Code)
	})

	t.Run("Query", func(t *testing.T) {
		rec := f.serve(newAuthRequest(http.MethodGet, "/v1/courses?ordering=-code&teacher_id="+teacher.ID, f.token(t, student)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var courses []course.Course
		decode(t, rec, &courses)
		require.Len(t, courses, 1)
		assert.Equal(t, crs.ID, courses[0].ID)
	})

	t.Run("Deleted", func(t *testing.T) {
		rec := f.serve(newAuthRequest(http.MethodDelete, path, f.token(t, teacher)))
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		rec = f.serve(newAuthRequest(http.MethodGet, path, f.token(t, teacher)))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_courseApi_registration(t *testing.T) {
	f := setup(t)
	teacher := testutil.CreateActiveUser(t, f.usrRepo, "teacher", user.RoleTeacher)
	other := testutil.CreateActiveUser(t, f.usrRepo, "other", user.RoleTeacher)
	student := testutil.CreateActiveUser(t, f.usrRepo, "student", user.RoleStudent)
	late := testutil.CreateActiveUser(t, f.usrRepo, "late", user.RoleStudent)
	crs := testutil.CreateCourse(t, f.courseRepo, "MATH-1", teacher.ID, 1)
	regPath := "/v1/courses/" + crs.ID + "/registration"
	studentToken := f.token(t, student)

	t.Run("Registered", func(t *testing.T) {
		rec := f.serve(newAuthRequest(http.MethodPost, regPath, studentToken))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var reg course.Registration
		decode(t, rec, &reg)
		assert.Equal(t, crs.ID, reg.CourseID)
		assert.Equal(t, student.ID, reg.StudentID)
		assert.Equal(t, course.StatusActive, reg.Status)
	})

	runHTTPTests(t, f, []httpTest{
		{
			name: "Already registered", method: http.MethodPost, path: regPath, token: studentToken,
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "already registered to this course"}),
		},
		{
			name: "Course full", method: http.MethodPost, path: regPath, token: f.token(t, late),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: "course is full"}),
		},
		{
			name: "Teachers cannot register", method: http.MethodPost, path: regPath, token: f.token(t, other),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "only students can register to courses"}),
		},
		{
			name: "Only managers list registrations", path: "/v1/courses/" + crs.ID + "/registrations", token: f.token(t, other),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
	})

	t.Run("Lists", func(t *testing.T) {
		rec := f.serve(newAuthRequest(http.MethodGet, "/v1/courses/"+crs.ID+"/registrations", f.token(t, teacher)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var regs []course.Registration
		decode(t, rec, &regs)
		require.Len(t, regs, 1)
		assert.Equal(t, student.ID, regs[0].StudentID)

		rec = f.serve(newAuthRequest(http.MethodGet, "/v1/users/"+student.ID+"/courses", studentToken))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var courses []course.Course
		decode(t, rec, &courses)
		require.Len(t, courses, 1)
		assert.Equal(t, crs.ID, courses[0].ID)
	})

	t.Run("Cancelled", func(t *testing.T) {
		rec := f.serve(newAuthRequest(http.MethodDelete, regPath, studentToken))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var reg course.Registration
		decode(t, rec, &reg)
		assert.Equal(t, course.StatusCancelled, reg.Status)
		assert.False(t, reg.CancelledAt.IsZero())

		rec = f.serve(newAuthRequest(http.MethodDelete, regPath, studentToken))
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "registration not found"})}, rec)

		// the freed seat can be taken
		rec = f.serve(newAuthRequest(http.MethodPost, regPath, f.token(t, late)))
		assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		rec = f.serve(newAuthRequest(http.MethodGet, "/v1/users/"+student.ID+"/courses", studentToken))
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marshalList(t)}, rec)
	})
}
