package di

import (
	"context"
	"fmt"
	"log"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/user"
	emailsvc "github.com/trezcool/shule/services/email"
	logsvc "github.com/trezcool/shule/services/logger"
	"github.com/trezcool/shule/storage/database"
	inmemdb "github.com/trezcool/shule/storage/database/inmem"
	mongorepos "github.com/trezcool/shule/storage/database/mongodb"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// Store is the set of repositories backed by the configured database engine.
	Store struct {
		dig.Out
		Tx             core.Transactor
		Users          user.Repository
		CourseUnlinker user.CourseUnlinker
		Courses        course.Repository
		CourseUsers    course.UserRepository
		Activities     course.ActivityRepository
		Grades         course.GradeRepository
		Indexer        Indexer
		Closer         StoreCloser
	}

	// Indexer is nil for stores without indexes.
	Indexer interface {
		EnsureIndexes(ctx context.Context) error
	}

	// StoreCloser releases the database connection.
	StoreCloser func(ctx context.Context) error

	serverParams struct {
		dig.In
		Conf       *core.Config
		Logger     core.Logger
		UserSvc    *user.Service
		CourseSvc  *course.Service
		Validate   *validator.Validate
		Translator ut.Translator
	}
)

func newLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(logsvc.NewStdLogger("API : "), conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(logsvc.NewStdLogger("DB : "), conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

// newStore opens the configured engine: mongodb, or memory for local runs.
func newStore(conf *core.Config, loggerParam DBLoggerParam) Store {
	switch conf.Database.Engine {
	case core.EngineMemory:
		loggerParam.Logger.Warn("using the in-memory store: data is lost on shutdown")
		db := inmemdb.Open()
		users := inmemdb.NewUserRepository(db)
		courses := inmemdb.NewCourseRepository(db)
		return Store{
			Tx:             db,
			Users:          users,
			CourseUnlinker: courses,
			Courses:        courses,
			CourseUsers:    users,
			Activities:     inmemdb.NewActivityRepository(db),
			Grades:         inmemdb.NewGradeRepository(db),
			Closer:         func(context.Context) error { return nil },
		}

	case core.EngineMongoDB:
		db, err := database.Open(conf)
		if err != nil {
			loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), conf.Database.Timeout)
		defer cancel()
		if err = db.EnsureIndexes(ctx); err != nil {
			loggerParam.Logger.Error(fmt.Sprintf("ensuring indexes: %v", err), err)
		}

		users := mongorepos.NewUserRepository(db)
		courses := mongorepos.NewCourseRepository(db)
		return Store{
			Tx:             db,
			Users:          users,
			CourseUnlinker: courses,
			Courses:        courses,
			CourseUsers:    users,
			Activities:     mongorepos.NewActivityRepository(db),
			Grades:         mongorepos.NewGradeRepository(db),
			Indexer:        db,
			Closer:         db.Close,
		}

	default:
		loggerParam.Logger.Fatal(fmt.Sprintf("unknown database engine %q", conf.Database.Engine))
		return Store{}
	}
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		UserSvc:    p.UserSvc,
		CourseSvc:  p.CourseSvc,
		Validate:   p.Validate,
		Translator: p.Translator,
	})
}

// New returns a new dependency injection dig.Container
func New(newConfig func() *core.Config) *dig.Container {
	c := dig.New()

	must(c.Provide(newConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStore))
	must(c.Provide(emailsvc.NewService))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(user.NewService))
	must(c.Provide(course.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
