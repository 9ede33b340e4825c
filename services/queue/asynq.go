package queuesvc

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

const maxRetry = 5

type asynqEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// AsynqScheduler enqueues jobs into redis for the worker.
type AsynqScheduler struct {
	client asynqEnqueuer
}

var _ core.Scheduler = (*AsynqScheduler)(nil) // interface compliance check

func NewAsynqScheduler(conf *core.Config) (*AsynqScheduler, error) {
	opt, err := asynq.ParseRedisURI(conf.Queue.RedisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing redis url")
	}
	return &AsynqScheduler{client: asynq.NewClient(opt)}, nil
}

func (s *AsynqScheduler) Submit(ctx context.Context, jobName string, payload []byte, delay time.Duration) (string, error) {
	opts := []asynq.Option{asynq.MaxRetry(maxRetry)}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}
	info, err := s.client.EnqueueContext(ctx, asynq.NewTask(jobName, payload), opts...)
	if err != nil {
		return "", errors.Wrapf(err, "enqueuing %s", jobName)
	}
	return info.ID, nil
}

func (s *AsynqScheduler) Close() error {
	return s.client.Close()
}
