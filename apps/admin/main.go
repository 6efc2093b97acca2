package main

import (
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"

	dig_container "github.com/juniordw/rotasi-lms-sub000/apps/api/di/dig"
	"github.com/juniordw/rotasi-lms-sub000/core"
	"github.com/juniordw/rotasi-lms-sub000/core/certificate"
	"github.com/juniordw/rotasi-lms-sub000/core/completion"
	"github.com/juniordw/rotasi-lms-sub000/core/notification"
	"github.com/juniordw/rotasi-lms-sub000/core/quiz"
	logsvc "github.com/juniordw/rotasi-lms-sub000/services/logger"
)

func main() {
	code := 0
	defer func() { os.Exit(code) }()

	c := dig_container.New()
	err := c.Invoke(func(
		conf *core.Config,
		db *sqlx.DB,
		lifecycle *completion.Service,
		issuer *certificate.Issuer,
		engine *quiz.Engine,
		notifier notification.Emitter,
	) {
		logger := logsvc.NewRollbarLogger(logsvc.New("admin", conf, os.Stdout), conf)
		core.ParseEmailTemplates(conf, logger)
		defer func() { _ = db.Close() }()

		cli := commandLine{
			db:        db,
			lifecycle: lifecycle,
			issuer:    issuer,
			engine:    engine,
			notifier:  notifier,
			out:       os.Stdout,
		}
		if err := cli.run(os.Args); err != nil {
			if err != errHelp {
				logger.Error(fmt.Sprintf("\nerror: %s\n", err), err)
			}
			code = 1
		}
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		code = 1
	}
}
