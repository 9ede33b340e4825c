// Command worker processes the background jobs enqueued by the API: the course expiry sweeps.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/user"
	emailsvc "github.com/trezcool/academia/services/email"
	logsvc "github.com/trezcool/academia/services/logger"
	queuesvc "github.com/trezcool/academia/services/queue"
	"github.com/trezcool/academia/storage/database"
	sqlxrepos "github.com/trezcool/academia/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := logsvc.New("WORKER : ", conf)
	defer logger.Close()

	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("Failed to close DB", err)
		}
	}()

	scheduler, err := queuesvc.NewAsynqScheduler(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up scheduler: %v", err), err)
	}
	defer func() { _ = scheduler.Close() }()

	tx := sqlxrepos.NewTransactor(db)
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), emailsvc.NewConsoleService(conf, logger), conf)
	courseSvc := course.NewService(
		tx,
		sqlxrepos.NewCourseRepository(db),
		sqlxrepos.NewChatRepository(db),
		usrSvc,
		scheduler,
		logger,
		conf,
	)

	// =========================================================================
	// Start Worker

	worker, err := queuesvc.NewWorker(conf, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up worker: %v", err), err)
	}
	worker.Register(course.TaskSweep, courseSvc.HandleSweepTask)
	worker.Register(course.TaskSweepAll, courseSvc.HandleSweepAllTask)
	if conf.Queue.SweepCron != "" {
		if err = worker.Periodic(conf.Queue.SweepCron, course.TaskSweepAll); err != nil {
			logger.Fatal(fmt.Sprintf("scheduling sweeps: %v", err), err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info(fmt.Sprintf("Worker starting : version %q", conf.Build))
	if err = worker.Run(ctx); err != nil {
		logger.Error(fmt.Sprintf("worker error: %v", err), err)
	}
	logger.Info("Worker stopped")
}
