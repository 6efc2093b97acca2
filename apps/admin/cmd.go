package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/jmoiron/sqlx"

	"github.com/juniordw/rotasi-lms-sub000/core/certificate"
	"github.com/juniordw/rotasi-lms-sub000/core/completion"
	"github.com/juniordw/rotasi-lms-sub000/core/notification"
	"github.com/juniordw/rotasi-lms-sub000/core/policy"
	"github.com/juniordw/rotasi-lms-sub000/core/quiz"
	"github.com/juniordw/rotasi-lms-sub000/core/user"
)

var (
	errHelp = errors.New("help provided")

	// the CLI acts with admin capabilities
	operator = policy.Principal{Role: user.RoleAdmin}
)

type commandLine struct {
	db        *sqlx.DB
	lifecycle *completion.Service
	issuer    *certificate.Issuer
	engine    *quiz.Engine
	notifier  notification.Emitter
	out       io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command: up, up-by-one, up-to, down, down-to, redo, reset, status, version, create, fix")
	fmt.Fprintln(cli.out, "  enroll -user ID -course ID - enroll a learner in a course")
	fmt.Fprintln(cli.out, "  complete -enrollment ID - complete an enrollment whose course has no required lessons")
	fmt.Fprintln(cli.out, "  issuecertificate -user ID -course ID - issue (or re-render) a certificate")
	fmt.Fprintln(cli.out, "  recompute -enrollment ID -quiz ID - recompute a quiz result and the enrollment completion")
	fmt.Fprintln(cli.out, "  flushnotifications - deliver the notifications left unsent")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	enrollCmd := flag.NewFlagSet("enroll", flag.ContinueOnError)
	enrollUser := enrollCmd.Int64("user", 0, "The learner's id.")
	enrollCourse := enrollCmd.Int64("course", 0, "The course id.")

	completeCmd := flag.NewFlagSet("complete", flag.ContinueOnError)
	completeEnrollment := completeCmd.Int64("enrollment", 0, "The enrollment id.")

	issueCmd := flag.NewFlagSet("issuecertificate", flag.ContinueOnError)
	issueUser := issueCmd.Int64("user", 0, "The learner's id.")
	issueCourse := issueCmd.Int64("course", 0, "The course id.")

	recomputeCmd := flag.NewFlagSet("recompute", flag.ContinueOnError)
	recomputeEnrollment := recomputeCmd.Int64("enrollment", 0, "The enrollment id.")
	recomputeQuiz := recomputeCmd.Int64("quiz", 0, "The quiz id.")

	for _, fs := range []*flag.FlagSet{enrollCmd, completeCmd, issueCmd, recomputeCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "enroll":
		if err := enrollCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *enrollUser <= 0 || *enrollCourse <= 0 {
			enrollCmd.Usage()
			return errHelp
		}
		enr, err := cli.lifecycle.Enroll(ctx, *enrollUser, *enrollCourse, operator)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "enrollment %d: %s\n", enr.ID, enr.Status)
		return nil

	case "complete":
		if err := completeCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *completeEnrollment <= 0 {
			completeCmd.Usage()
			return errHelp
		}
		enr, err := cli.lifecycle.CompleteManually(ctx, *completeEnrollment, operator)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "enrollment %d: %s\n", enr.ID, enr.Status)
		return nil

	case "issuecertificate":
		if err := issueCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *issueUser <= 0 || *issueCourse <= 0 {
			issueCmd.Usage()
			return errHelp
		}
		cert, err := cli.issuer.Issue(ctx, *issueUser, *issueCourse, operator)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "certificate %s (%s): %s\n", cert.ID, cert.Serial, cert.Status)
		return nil

	case "recompute":
		if err := recomputeCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *recomputeEnrollment <= 0 || *recomputeQuiz <= 0 {
			recomputeCmd.Usage()
			return errHelp
		}
		res, err := cli.engine.Recompute(ctx, *recomputeEnrollment, *recomputeQuiz, operator)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "result: %.1f (%s, passed: %t)\n", res.Score, res.Status, res.IsPassed)
		return nil

	case "flushnotifications":
		cli.notifier.Flush(ctx)
		return nil

	default:
		cli.printUsage()
		return errHelp
	}
}
