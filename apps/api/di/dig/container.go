package dig_container

import (
	"fmt"
	"log"
	"net/http"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/dig"

	echoapi "github.com/juniordw/rotasi-lms-sub000/apps/api/echo"
	"github.com/juniordw/rotasi-lms-sub000/core"
	"github.com/juniordw/rotasi-lms-sub000/core/certificate"
	"github.com/juniordw/rotasi-lms-sub000/core/completion"
	"github.com/juniordw/rotasi-lms-sub000/core/course"
	"github.com/juniordw/rotasi-lms-sub000/core/enrollment"
	"github.com/juniordw/rotasi-lms-sub000/core/grading"
	"github.com/juniordw/rotasi-lms-sub000/core/notification"
	"github.com/juniordw/rotasi-lms-sub000/core/progress"
	"github.com/juniordw/rotasi-lms-sub000/core/quiz"
	"github.com/juniordw/rotasi-lms-sub000/core/user"
	emailsvc "github.com/juniordw/rotasi-lms-sub000/services/email"
	logsvc "github.com/juniordw/rotasi-lms-sub000/services/logger"
	notifysvc "github.com/juniordw/rotasi-lms-sub000/services/notifier"
	rendersvc "github.com/juniordw/rotasi-lms-sub000/services/renderer"
	"github.com/juniordw/rotasi-lms-sub000/storage/database"
	sqlxrepos "github.com/juniordw/rotasi-lms-sub000/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(logsvc.New("api", conf, os.Stdout), conf)
	logger.Enable(conf.RollbarToken != "" && !conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(logsvc.New("db", conf, os.Stdout), conf)
	logger.Enable(conf.RollbarToken != "" && !conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, core.DB, core.DBExecutor) {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db, db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// newRenderer picks the certificate renderer: files under ArtifactDir, or a remote rendering service.
func newRenderer(conf *core.Config) (certificate.Renderer, certificate.ArtifactStore) {
	if conf.Certificate.Renderer == "http" {
		r := rendersvc.NewRemoteRenderer(conf.Certificate.RendererURL, &http.Client{Timeout: conf.Certificate.RenderTimeout})
		return r, r
	}
	r := rendersvc.NewLocalRenderer(afero.NewOsFs(), conf.Certificate.ArtifactDir)
	return r, r
}

func newValidator() *validator.Validate {
	return validator.New()
}

type issuerParams struct {
	dig.In

	DB         core.DB
	Repo       certificate.Repository
	EnrolRepo  enrollment.Repository
	CourseRepo course.Repository
	UserRepo   user.Repository
	NotifRepo  notification.Repository
	Notifier   notification.Emitter
	Renderer   certificate.Renderer
	Store      certificate.ArtifactStore
	Logger     core.Logger
}

func newIssuer(p issuerParams, conf *core.Config) *certificate.Issuer {
	return certificate.NewIssuer(certificate.Deps{
		DB:         p.DB,
		Repo:       p.Repo,
		EnrolRepo:  p.EnrolRepo,
		CourseRepo: p.CourseRepo,
		UserRepo:   p.UserRepo,
		NotifRepo:  p.NotifRepo,
		Notifier:   p.Notifier,
		Renderer:   p.Renderer,
		Store:      p.Store,
		Logger:     p.Logger,
	}, conf)
}

func newEvaluator(
	enrolRepo enrollment.Repository,
	courseRepo course.Repository,
	progressRepo progress.Repository,
	notifRepo notification.Repository,
	notifier notification.Emitter,
	issuer *certificate.Issuer,
	logger core.Logger,
) *completion.Evaluator {
	return completion.NewEvaluator(enrolRepo, courseRepo, progressRepo, notifRepo, notifier, issuer, logger)
}

type serverParams struct {
	dig.In

	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	Tracker    *progress.Tracker
	Engine     *quiz.Engine
	Grading    *grading.Service
	Issuer     *certificate.Issuer
	Lifecycle  *completion.Service
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		Validate:   p.Validate,
		Translator: p.Translator,
		Tracker:    p.Tracker,
		Engine:     p.Engine,
		Grading:    p.Grading,
		Issuer:     p.Issuer,
		Lifecycle:  p.Lifecycle,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newEmailService))
	must(c.Provide(newRenderer))
	must(c.Provide(newValidator))
	must(c.Provide(core.NewTranslator))

	// repositories
	must(c.Provide(sqlxrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(sqlxrepos.NewCourseRepository, dig.As(new(course.Repository))))
	must(c.Provide(sqlxrepos.NewEnrollmentRepository, dig.As(new(enrollment.Repository))))
	must(c.Provide(sqlxrepos.NewProgressRepository, dig.As(new(progress.Repository))))
	must(c.Provide(sqlxrepos.NewQuizRepository, dig.As(new(quiz.Repository))))
	must(c.Provide(sqlxrepos.NewCertificateRepository, dig.As(new(certificate.Repository))))
	must(c.Provide(sqlxrepos.NewNotificationRepository, dig.As(new(notification.Repository))))

	// services
	must(c.Provide(notifysvc.NewEmailEmitter, dig.As(new(notification.Emitter))))
	must(c.Provide(newIssuer))
	must(c.Provide(newEvaluator))
	must(c.Provide(completion.NewService))
	must(c.Provide(progress.NewTracker))
	must(c.Provide(quiz.NewEngine))
	must(c.Provide(grading.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
