// Command admin runs maintenance tasks: migrations, user management and course sweeps.
package main

import (
	"fmt"
	"os"

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
	conf := core.NewConfig()
	logger := logsvc.New("ADMIN : ", conf)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	scheduler, err := queuesvc.NewAsynqScheduler(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up scheduler: %v", err), err)
	}

	usrRepo := sqlxrepos.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, emailsvc.NewConsoleService(conf, logger), conf)

	// start CLI
	cli := commandLine{
		db:      db.DB,
		usrRepo: usrRepo,
		courses: course.NewService(
			sqlxrepos.NewTransactor(db),
			sqlxrepos.NewCourseRepository(db),
			sqlxrepos.NewChatRepository(db),
			usrSvc,
			scheduler,
			logger,
			conf,
		),
		out: os.Stdout,
	}
	err = cli.run(os.Args)

	_ = scheduler.Close()
	_ = db.Close()
	logger.Close()

	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
