package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/auth"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/file"
	"github.com/trezcool/academia/core/notice"
	"github.com/trezcool/academia/core/permission"
	"github.com/trezcool/academia/core/popup"
	"github.com/trezcool/academia/core/question"
	"github.com/trezcool/academia/core/user"
	emailsvc "github.com/trezcool/academia/services/email"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
	testutil "github.com/trezcool/academia/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type fixture struct {
	conf       *core.Config
	app        echoapi.Server
	logger     *testutil.Logger
	storage    *testutil.Storage
	usrRepo    user.Repository
	courseRepo course.Repository
	tokens     *auth.TokenService
	courseSvc  *course.Service
	noticeSvc  *notice.Service
	popupSvc   *popup.Service
	permSvc    *permission.Service
}

func setup(t *testing.T) *fixture {
	conf := core.NewTestConfig()
	logger := testutil.NewLogger()
	storage := testutil.NewStorage()

	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	user.InitValidators(validate, translator)
	course.InitValidators(validate, translator)
	question.InitValidators(validate, translator)
	notice.InitValidators(validate, translator)
	popup.InitValidators(validate, translator)
	permission.InitValidators(validate, translator)

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	courseRepo := inmemdb.NewCourseRepository(db)
	store := inmemdb.NewTokenStore()

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	usrSvc := user.NewService(usrRepo, mailSvc, conf)
	f := &fixture{
		conf:       conf,
		logger:     logger,
		storage:    storage,
		usrRepo:    usrRepo,
		courseRepo: courseRepo,
		tokens:     auth.NewTokenService(usrSvc, store, conf),
		courseSvc:  course.NewService(courseRepo, usrSvc, db, mailSvc),
		noticeSvc:  notice.NewService(inmemdb.NewNoticeRepository(db), db, testutil.NewCache()),
		popupSvc:   popup.NewService(inmemdb.NewPopupRepository(db), testutil.NewCache()),
		permSvc:    permission.NewService(inmemdb.NewGrantRepository(db), usrSvc),
	}

	// set up server
	f.app = echoapi.NewServer(echoapi.ServerDeps{
		Conf:          conf,
		Logger:        logger,
		Validate:      validate,
		Translator:    translator,
		UserSvc:       usrSvc,
		TokenSvc:      f.tokens,
		LogoutSvc:     auth.NewLogoutService(store),
		CourseSvc:     f.courseSvc,
		QuestionSvc:   question.NewService(inmemdb.NewQuestionRepository(db)),
		NoticeSvc:     f.noticeSvc,
		PopupSvc:      f.popupSvc,
		PermissionSvc: f.permSvc,
		FileSvc:       file.NewService(inmemdb.NewFileRepository(db), storage, conf),
	})
	t.Cleanup(func() { _ = f.app.Shutdown(context.Background()) })
	return f
}

// login opens a session for usr, who must have testutil.DefaultPassword.
func (f *fixture) login(t *testing.T, usr user.User) auth.TokenPair {
	t.Helper()
	pair, _, err := f.tokens.Login(context.Background(), usr.Username, testutil.DefaultPassword)
	require.NoError(t, err, "login()")
	return pair
}

func (f *fixture) token(t *testing.T, usr user.User) string {
	return f.login(t, usr).AccessToken
}

func (f *fixture) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.app.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) *http.Request {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func newRequest(method, path string, data ...[]byte) *http.Request {
	return newAuthRequest(method, path, "", data...)
}

// newUploadRequest builds a multipart request carrying content in the "file" field.
func newUploadRequest(t *testing.T, path, token, name string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if name != "" {
		part, err := w.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = io.Copy(part, bytes.NewReader(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	require.NoError(t, err, "marshalObj()")
	return data
}

func marshalList(t *testing.T, objs ...interface{}) []byte {
	t.Helper()
	if objs == nil {
		objs = []interface{}{}
	}
	return marshalObj(t, objs)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), "body: %s", rec.Body.String())
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, "body: %s", rec.Body.String())
	if tt.wantData != nil {
		assert.JSONEq(t, string(tt.wantData), rec.Body.String())
	}
}

func runHTTPTests(t *testing.T, f *fixture, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.method == "" {
				tt.method = http.MethodGet
			}
			if tt.wantCode == 0 {
				tt.wantCode = http.StatusOK
			}
			rec := f.serve(newAuthRequest(tt.method, tt.path, tt.token, tt.body))
			checkCodeAndData(t, tt, rec)
		})
	}
}
