// Package queuesvc runs background jobs, backed by asynq (redis) or in-process timers.
package queuesvc

import (
	"context"
	"fmt"

	"github.com/trezcool/academia/core"
)

// Handler processes the payload of a job.
type Handler func(ctx context.Context, payload []byte) error

// Registrar binds job names to their handlers.
type Registrar interface {
	Register(jobName string, h Handler)
}

// asynqLogger adapts core.Logger to asynq.Logger.
type asynqLogger struct {
	logger core.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.logger.Fatal(fmt.Sprint(args...)) }
