package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/auth"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/file"
	"github.com/trezcool/academia/core/notice"
	"github.com/trezcool/academia/core/permission"
	"github.com/trezcool/academia/core/popup"
	"github.com/trezcool/academia/core/question"
	"github.com/trezcool/academia/core/user"
)

// room left for multipart headers & boundaries around an upload of the maximum size
const multipartOverhead = 64 << 10

type (
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
		// Registry receives the HTTP metrics; a new registry is used when nil.
		Registry *prometheus.Registry

		UserSvc       user.ServiceInterface
		TokenSvc      *auth.TokenService
		LogoutSvc     *auth.LogoutService
		CourseSvc     course.ServiceInterface
		QuestionSvc   question.ServiceInterface
		NoticeSvc     notice.ServiceInterface
		PopupSvc      popup.ServiceInterface
		PermissionSvc permission.ServiceInterface
		FileSvc       file.ServiceInterface
	}

	Server interface {
		http.Handler
		Start()
		Shutdown(ctx context.Context) error
		Close() error
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
	}

	server struct {
		deps     ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}
	s := &server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	if len(conf.CORSOrigins) > 0 {
		s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     conf.CORSOrigins,
			AllowCredentials: true,
		}))
	}
	if maxSize := conf.FileStore.MaxFileSize; maxSize > 0 {
		s.app.Use(middleware.BodyLimit(strconv.FormatInt(maxSize+multipartOverhead, 10) + "B"))
	}
	s.app.Use(newMetricsMiddleware(s.deps.Registry))
	if conf.Debug {
		s.app.Use(debugMiddleware(s.deps.Logger, s.deps.TokenSvc))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug && !conf.TestMode

	s.app.GET("/", home)
	s.app.GET("/metrics", metricsHandler(s.deps.Registry))

	v1 := s.app.Group("/v1")
	jwt := authMiddleware(s.deps.TokenSvc)
	perms := newPermissionChecker(s.deps.PermissionSvc, s.deps.UserSvc)

	registerUserAPI(v1, jwt, s.deps, perms)
	registerCourseAPI(v1, jwt, s.deps)
	registerQuestionAPI(v1, jwt, s.deps)
	registerNoticeAPI(v1, jwt, s.deps, perms)
	registerPopupAPI(v1, jwt, s.deps, perms)
	registerPermissionAPI(v1, jwt, s.deps, perms)
	registerFileAPI(v1, jwt, s.deps)
}

func (s *server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) Errors() <-chan error {
	return s.errors
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already shutting down
	}
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Academia API!")
}
