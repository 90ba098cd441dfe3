package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

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
	appfs "github.com/trezcool/academia/fs"
	emailsvc "github.com/trezcool/academia/services/email"
	"github.com/trezcool/academia/services/filestorage"
	"github.com/trezcool/academia/services/jobs"
	logsvc "github.com/trezcool/academia/services/logger"
	"github.com/trezcool/academia/storage/cache"
	"github.com/trezcool/academia/storage/database"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
	sqlxrepos "github.com/trezcool/academia/storage/database/sqlx"
	redisstore "github.com/trezcool/academia/storage/redis"
)

const cacheMaxItems = 10_000

func main() {
	// =========================================================================
	// Set up Dependencies

	conf, err := core.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	// set up loggers
	zapLogger, err := logsvc.NewZapLogger(conf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating logger: %v\n", err)
		os.Exit(1)
	}
	logger := logsvc.NewRollbarLogger(zapLogger.Named("api"), conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	defer func() { _ = logger.Sync() }()

	dbLogger := logsvc.NewRollbarLogger(zapLogger.Named("db"), conf)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Error("failed to close", err)
		}
	}()

	// set up redis; without it refresh tokens live in memory and jobs run unlocked
	var (
		redisClient *redis.Client
		tokenStore  auth.TokenStore
	)
	if conf.Redis.Address != "" {
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		redisClient, err = redisstore.Open(ctx, conf)
		cancel()
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up redis: %v", err), err)
		}
		defer func() { _ = redisClient.Close() }()
		tokenStore = redisstore.NewTokenStore(redisClient, conf.AppName)
	} else {
		logger.Warn("redis is not configured: refresh tokens will not survive restarts")
		tokenStore = inmemdb.NewTokenStore()
	}

	appCache, err := cache.New(cacheMaxItems)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up cache: %v", err), err)
	}
	defer appCache.Close()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	tx := core.NewTransactor(db)

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), mailSvc, conf)
	courseSvc := course.NewService(sqlxrepos.NewCourseRepository(db), usrSvc, tx, mailSvc)
	questionSvc := question.NewService(sqlxrepos.NewQuestionRepository(db))
	noticeSvc := notice.NewService(sqlxrepos.NewNoticeRepository(db), tx, appCache)
	popupSvc := popup.NewService(sqlxrepos.NewPopupRepository(db), appCache)
	permSvc := permission.NewService(sqlxrepos.NewGrantRepository(db), usrSvc)
	fileSvc := file.NewService(sqlxrepos.NewFileRepository(db), filestorage.NewClient(conf), conf)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	user.InitValidators(validate, translator)
	course.InitValidators(validate, translator)
	question.InitValidators(validate, translator)
	notice.InitValidators(validate, translator)
	popup.InitValidators(validate, translator)
	permission.InitValidators(validate, translator)

	if err = core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, !conf.Debug); err != nil {
		logger.Fatal(fmt.Sprintf("parsing email templates: %v", err), err)
	}
	if err = user.LoadCommonPasswords(appfs.FS, appfs.CommonPasswordsFile); err != nil {
		logger.Error(fmt.Sprintf("loading common passwords: %v", err), err)
	}

	// =========================================================================
	// Start Jobs

	runner := jobs.NewRunner(logger, redisClient)
	if conf.Jobs.Enabled {
		if err = jobs.Register(runner, conf, popupSvc, courseSvc); err != nil {
			logger.Fatal(fmt.Sprintf("registering jobs: %v", err), err)
		}
		runner.Start()
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:          conf,
			Logger:        logger,
			Validate:      validate,
			Translator:    translator,
			Registry:      registry,
			UserSvc:       usrSvc,
			TokenSvc:      auth.NewTokenService(usrSvc, tokenStore, conf),
			LogoutSvc:     auth.NewLogoutService(tokenStore),
			CourseSvc:     courseSvc,
			QuestionSvc:   questionSvc,
			NoticeSvc:     noticeSvc,
			PopupSvc:      popupSvc,
			PermissionSvc: permSvc,
			FileSvc:       fileSvc,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
		if err = runner.Stop(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop jobs: %v", err), err)
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()
	if err = database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
