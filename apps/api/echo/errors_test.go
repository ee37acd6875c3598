package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	echoapi "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
	logsvc "github.com/trezcool/shule/services/logger"
	testutil "github.com/trezcool/shule/tests"
)

// lostUsers is a user store whose listing fails for good.
type lostUsers struct {
	user.Repository
}

func (lostUsers) QueryUsers(context.Context, *user.QueryFilter, []core.DBOrdering, *core.Pagination) ([]user.User, int, error) {
	return nil, 0, core.NewShutdownError("querying users: client is disconnected")
}

func Test_errorHandler_shutdown(t *testing.T) {
	env := testutil.NewEnv()
	admin := testutil.CreateUser(t, env.UserRepo, user.RoleAdmin, "admin")

	usrSvc := user.NewService(lostUsers{Repository: env.UserRepo}, env.CourseRepo, env.DB, env.Mail, env.Validate, env.Conf)
	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:       env.Conf,
		Logger:     logsvc.NewRollbarLogger(logsvc.NewStdLogger("TEST : "), env.Conf),
		UserSvc:    usrSvc,
		CourseSvc:  env.CourseSvc,
		Validate:   env.Validate,
		Translator: env.Translator,
	})
	t.Cleanup(func() { _ = server.Close() })

	do(t, server, httpTest{
		path:     "/api/users",
		token:    getToken(t, env, admin),
		wantCode: http.StatusInternalServerError,
		wantMsg:  http.StatusText(http.StatusInternalServerError),
	})

	select {
	case <-server.ShutdownSignal():
	default:
		t.Error("shutdown not signaled")
	}

	t.Run("other server errors keep the server up", func(t *testing.T) {
		server, env := setup(t)
		do(t, server, httpTest{path: "/api/users", token: getToken(t, env, testutil.CreateUser(t, env.UserRepo, user.RoleAdmin, "admin")), wantCode: http.StatusOK})
		select {
		case <-server.ShutdownSignal():
			t.Error("unexpected shutdown signal")
		default:
		}
	})
}
