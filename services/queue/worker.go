package queuesvc

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

// Worker processes the jobs enqueued by AsynqScheduler, and enqueues the periodic ones.
type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	logger    core.Logger
}

var _ Registrar = (*Worker)(nil) // interface compliance check

func NewWorker(conf *core.Config, logger core.Logger) (*Worker, error) {
	opt, err := asynq.ParseRedisURI(conf.Queue.RedisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing redis url")
	}

	alogger := asynqLogger{logger: logger}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: conf.Queue.Concurrency,
		Logger:      alogger,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error(fmt.Sprintf("job %s failed: %v", task.Type(), err), err)
		}),
	})
	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Logger: alogger})

	return &Worker{server: srv, scheduler: scheduler, mux: asynq.NewServeMux(), logger: logger}, nil
}

func (w *Worker) Register(jobName string, h Handler) {
	w.mux.HandleFunc(jobName, func(ctx context.Context, t *asynq.Task) error {
		return h(ctx, t.Payload())
	})
}

// Periodic enqueues jobName (without payload) on the cronspec schedule.
func (w *Worker) Periodic(cronspec, jobName string) error {
	id, err := w.scheduler.Register(cronspec, asynq.NewTask(jobName, nil), asynq.MaxRetry(maxRetry))
	if err != nil {
		return errors.Wrapf(err, "registering periodic %s", jobName)
	}
	w.logger.Info(fmt.Sprintf("periodic job %s (%s) registered: %s", jobName, cronspec, id))
	return nil
}

// Run processes jobs until ctx is done, then shuts down gracefully.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.scheduler.Start(); err != nil {
		return errors.Wrap(err, "starting scheduler")
	}
	if err := w.server.Start(w.mux); err != nil {
		w.scheduler.Shutdown()
		return errors.Wrap(err, "starting worker")
	}

	<-ctx.Done()
	w.logger.Info("worker shutting down")
	w.scheduler.Shutdown()
	w.server.Shutdown()
	return nil
}
