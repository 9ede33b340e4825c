package dig_container

import (
	"fmt"
	"log"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/chat"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/user"
	emailsvc "github.com/trezcool/academia/services/email"
	logsvc "github.com/trezcool/academia/services/logger"
	queuesvc "github.com/trezcool/academia/services/queue"
	"github.com/trezcool/academia/storage/database"
	sqlxrepos "github.com/trezcool/academia/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type serverParams struct {
	dig.In
	Conf          *core.Config
	Logger        core.Logger
	Tx            core.Transactor
	Validate      *validator.Validate
	Translator    ut.Translator
	UserSvc       user.ServiceInterface
	CourseSvc     course.ServiceInterface
	CoursewareSvc course.CoursewareServiceInterface
	ChatSvc       chat.ServiceInterface
}

func newLogger(conf *core.Config) core.Logger {
	return logsvc.New("API : ", conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	return logsvc.New("DB : ", conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db, "up"); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// newScheduler returns the in-process scheduler in debug mode; the jobs are then run by the API itself.
func newScheduler(conf *core.Config, logger core.Logger) (core.Scheduler, error) {
	if conf.Debug {
		return queuesvc.NewInlineScheduler(logger), nil
	}
	return queuesvc.NewAsynqScheduler(conf)
}

func newUserFinders(svc user.ServiceInterface) (course.UserFinder, chat.UserFinder) {
	return svc, svc
}

// newCourseService exposes *course.Service, whose job handlers the API registers when it runs them inline.
func newCourseService(svc *course.Service) course.ServiceInterface {
	return svc
}

func newServer(p serverParams) echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:          p.Conf,
		Logger:        p.Logger,
		Tx:            p.Tx,
		Validate:      p.Validate,
		Translator:    p.Translator,
		UserSvc:       p.UserSvc,
		CourseSvc:     p.CourseSvc,
		CoursewareSvc: p.CoursewareSvc,
		ChatSvc:       p.ChatSvc,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(sqlxrepos.NewTransactor))
	must(c.Provide(sqlxrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(sqlxrepos.NewCourseRepository, dig.As(new(course.Repository))))
	must(c.Provide(sqlxrepos.NewCoursewareRepository, dig.As(new(course.CoursewareRepository))))
	must(c.Provide(sqlxrepos.NewChatRepository, dig.As(new(chat.Repository))))
	must(c.Provide(newEmailService))
	must(c.Provide(newScheduler))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(user.NewService, dig.As(new(user.ServiceInterface))))
	must(c.Provide(newUserFinders))
	must(c.Provide(chat.NewService, dig.As(new(chat.ServiceInterface))))
	must(c.Provide(course.NewService))
	must(c.Provide(newCourseService))
	must(c.Provide(course.NewCoursewareService, dig.As(new(course.CoursewareServiceInterface))))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
