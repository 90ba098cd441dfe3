// Package jobs runs the periodic maintenance jobs inside the API process.
package jobs

import (
	"context"
	"fmt"
	"time"

	goredislib "github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/popup"
)

// Job names; each one is also the name of its distributed lock.
const (
	PopupExpiry       = "popup-expiry"
	RegistrationClose = "registration-close"
)

var NowFunc = time.Now

type (
	// Func does one run of a job and reports how many records it changed.
	Func func(ctx context.Context, now time.Time) (int64, error)

	job struct {
		name    string
		spec    string
		run     Func
		timeout time.Duration
		mutex   *redsync.Mutex // nil when there is no redis
		logger  core.Logger
	}

	Runner struct {
		cron   *cron.Cron
		rs     *redsync.Redsync
		logger core.Logger
		jobs   map[string]*job
	}
)

// NewRunner creates an empty runner. With a redis client, every job holds a lock while running so that
// only one API instance runs it at a time.
func NewRunner(logger core.Logger, client *goredislib.Client) *Runner {
	cl := cronLogger{logger: logger}
	r := &Runner{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl))),
		logger: logger,
		jobs:   make(map[string]*job),
	}
	if client != nil {
		r.rs = redsync.New(goredis.NewPool(client))
	}
	return r
}

// Add schedules fn under name using a cron spec ("@every 5m", "0 * * * *", ...).
func (r *Runner) Add(name, spec string, timeout time.Duration, fn Func) error {
	if _, ok := r.jobs[name]; ok {
		return errors.Errorf("job %s already added", name)
	}
	j := &job{name: name, spec: spec, run: fn, timeout: timeout, logger: r.logger}
	if r.rs != nil {
		j.mutex = r.rs.NewMutex("jobs:"+name, redsync.WithExpiry(timeout+time.Minute), redsync.WithTries(1))
	}
	if _, err := r.cron.AddJob(spec, j); err != nil {
		return errors.Wrapf(err, "scheduling job %s", name)
	}
	r.jobs[name] = j
	return nil
}

// RunNow runs the named job once, synchronously.
func (r *Runner) RunNow(name string) error {
	j, ok := r.jobs[name]
	if !ok {
		return errors.Errorf("unknown job %s", name)
	}
	j.Run()
	return nil
}

func (r *Runner) Start() {
	r.cron.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (r *Runner) Stop(ctx context.Context) error {
	select {
	case <-r.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for running jobs")
	}
}

// Register adds the maintenance jobs using the configured schedules.
func Register(r *Runner, conf *core.Config, popups popup.ServiceInterface, courses course.ServiceInterface) error {
	if err := r.Add(PopupExpiry, conf.Jobs.PopupExpirySpec, time.Minute, popups.DeactivateExpired); err != nil {
		return err
	}
	return r.Add(RegistrationClose, conf.Jobs.RegistrationCloseSpec, 5*time.Minute, courses.CloseExpiredRegistrations)
}

// Run implements cron.Job.
func (j *job) Run() {
	if j.mutex != nil {
		if err := j.mutex.Lock(); err != nil {
			j.logger.Debug(fmt.Sprintf("job %s is already running", j.name))
			return
		}
		defer func() {
			if _, err := j.mutex.Unlock(); err != nil {
				j.logger.Error(fmt.Sprintf("releasing job %s lock", j.name), err)
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := NowFunc()
	cnt, err := j.run(ctx, start.UTC())
	if err != nil {
		j.logger.Error(fmt.Sprintf("running job %s", j.name), err)
		return
	}
	j.logger.Debug(fmt.Sprintf("job %s done", j.name), map[string]interface{}{
		"affected": cnt,
		"duration": time.Since(start).String(),
	})
}

// cronLogger adapts core.Logger to cron.Logger.
type cronLogger struct {
	logger core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, kvMap(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, err, kvMap(keysAndValues))
}

func kvMap(keysAndValues []interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		m[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return m
}
