package main

import (
	"context"
	"os"

	"github.com/trezcool/shule/apps/api/di"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/user"
	logsvc "github.com/trezcool/shule/services/logger"
)

func main() {
	logger := logsvc.NewStdLogger("ADMIN : ")

	code := 0
	err := di.New(core.NewConfig).Invoke(func(
		conf *core.Config,
		usrRepo user.Repository,
		usrSvc *user.Service,
		crsSvc *course.Service,
		indexer di.Indexer,
		closeStore di.StoreCloser,
	) {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), conf.Database.Timeout)
			defer cancel()
			if err := closeStore(ctx); err != nil {
				logger.Println("closing database:", err)
			}
		}()

		user.LoadCommonPasswords(logsvc.NewRollbarLogger(logger, conf))

		cli := commandLine{
			usrRepo: usrRepo,
			usrSvc:  usrSvc,
			crsSvc:  crsSvc,
			indexer: indexer,
			out:     os.Stdout,
		}
		if err := cli.run(os.Args); err != nil {
			if err != errHelp {
				logger.Printf("\nerror: %s\n", err)
			}
			code = 1
		}
	})
	if err != nil {
		logger.Fatal(err)
	}
	os.Exit(code)
}
