package testutil

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/afero"
	"github.com/volatiletech/null/v8"

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

var tmplOnce sync.Once

// PrepareDB opens a migrated sqlite database living in t's temp dir.
func PrepareDB(t *testing.T, conf *core.Config) *sqlx.DB {
	conf.Database.Engine = database.EngineSQLite
	conf.Database.Path = filepath.Join(t.TempDir(), "test.db")

	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("database.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db, true); err != nil {
		t.Fatalf("database.Migrate() failed: %v", err)
	}
	return db
}

// NewLogger returns a logger that discards its output.
func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(logsvc.New("test", conf, io.Discard), conf)
}

// Env is the whole service graph wired on a fresh database.
type Env struct {
	Conf   *core.Config
	DB     *sqlx.DB
	Logger core.Logger
	Mailer *emailsvc.ConsoleServiceMock
	Fs     afero.Fs

	Users         user.Repository
	Courses       course.Repository
	Enrollments   enrollment.Repository
	Progress      progress.Repository
	Quizzes       quiz.Repository
	Certificates  certificate.Repository
	Notifications notification.Repository

	Notifier  notification.Emitter
	Renderer  certificate.Renderer
	Store     certificate.ArtifactStore
	Issuer    *certificate.Issuer
	Evaluator *completion.Evaluator
	Lifecycle *completion.Service
	Tracker   *progress.Tracker
	Engine    *quiz.Engine
	Grading   *grading.Service
}

type Option func(env *Env)

// WithConfig lets the caller tweak the config before anything is built.
func WithConfig(fn func(conf *core.Config)) Option {
	return func(env *Env) { fn(env.Conf) }
}

// WithRenderer replaces the in-memory renderer.
func WithRenderer(r certificate.Renderer, store certificate.ArtifactStore) Option {
	return func(env *Env) {
		env.Renderer = r
		env.Store = store
	}
}

func NewEnv(t *testing.T, opts ...Option) *Env {
	env := &Env{Conf: core.NewTestConfig(), Fs: afero.NewMemMapFs()}
	local := rendersvc.NewLocalRenderer(env.Fs, "certificates")
	env.Renderer, env.Store = local, local
	for _, opt := range opts {
		opt(env)
	}

	env.DB = PrepareDB(t, env.Conf)
	env.Logger = NewLogger(env.Conf)
	tmplOnce.Do(func() { core.ParseEmailTemplates(env.Conf, env.Logger) })
	env.Mailer = emailsvc.NewConsoleServiceMock(env.Conf, env.Logger)

	env.Users = sqlxrepos.NewUserRepository(env.DB)
	env.Courses = sqlxrepos.NewCourseRepository(env.DB)
	env.Enrollments = sqlxrepos.NewEnrollmentRepository(env.DB)
	env.Progress = sqlxrepos.NewProgressRepository(env.DB)
	env.Quizzes = sqlxrepos.NewQuizRepository(env.DB)
	env.Certificates = sqlxrepos.NewCertificateRepository(env.DB)
	env.Notifications = sqlxrepos.NewNotificationRepository(env.DB)

	env.Notifier = notifysvc.NewEmailEmitter(env.Notifications, env.Users, env.Mailer, env.Logger)
	env.Issuer = certificate.NewIssuer(certificate.Deps{
		DB:         env.DB,
		Repo:       env.Certificates,
		EnrolRepo:  env.Enrollments,
		CourseRepo: env.Courses,
		UserRepo:   env.Users,
		NotifRepo:  env.Notifications,
		Notifier:   env.Notifier,
		Renderer:   env.Renderer,
		Store:      env.Store,
		Logger:     env.Logger,
	}, env.Conf)
	env.Evaluator = completion.NewEvaluator(env.Enrollments, env.Courses, env.Progress, env.Notifications, env.Notifier, env.Issuer, env.Logger)
	env.Lifecycle = completion.NewService(env.DB, env.Enrollments, env.Courses, env.Users, env.Notifications, env.Evaluator, env.Conf)
	env.Tracker = progress.NewTracker(env.DB, env.Progress, env.Enrollments, env.Courses, env.Evaluator)
	env.Engine = quiz.NewEngine(env.DB, env.Quizzes, env.Enrollments, env.Courses, env.Tracker, env.Evaluator, env.Conf)
	env.Grading = grading.NewService(env.DB, env.Quizzes, env.Enrollments, env.Courses, env.Engine, env.Evaluator)
	return env
}

func CreateUser(t *testing.T, repo user.Repository, name, email, role string) user.User {
	usr, err := repo.CreateUser(context.Background(), user.User{Name: name, Email: email, Role: role})
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateCourse(t *testing.T, repo course.Repository, instructorID int64, title string) course.Course {
	crs, err := repo.CreateCourse(context.Background(), course.Course{Title: title, InstructorID: instructorID})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return crs
}

func CreateModule(t *testing.T, repo course.Repository, courseID int64, title string, order int) course.Module {
	mod, err := repo.CreateModule(context.Background(), course.Module{CourseID: courseID, Title: title, OrderNumber: order})
	if err != nil {
		t.Fatalf("CreateModule() failed: %v", err)
	}
	return mod
}

func CreateLesson(t *testing.T, repo course.Repository, moduleID int64, title, typ string, required bool, order int) course.Lesson {
	lsn, err := repo.CreateLesson(context.Background(), course.Lesson{
		ModuleID:        moduleID,
		Title:           title,
		Type:            typ,
		Content:         title + " content",
		DurationMinutes: 10,
		IsRequired:      required,
		OrderNumber:     order,
	})
	if err != nil {
		t.Fatalf("CreateLesson() failed: %v", err)
	}
	return lsn
}

func CreateQuiz(t *testing.T, repo quiz.Repository, lessonID int64, title string, passingScore float64) quiz.Quiz {
	qz, err := repo.CreateQuiz(context.Background(), quiz.Quiz{
		LessonID:         lessonID,
		Title:            title,
		PassingScore:     passingScore,
		TimeLimitMinutes: null.IntFrom(30),
	})
	if err != nil {
		t.Fatalf("CreateQuiz() failed: %v", err)
	}
	return qz
}

// AnswerOption describes an answer option of CreateQuestion.
type AnswerOption struct {
	Text    string
	Correct bool
}

func CreateQuestion(t *testing.T, repo quiz.Repository, quizID int64, typ quiz.QuestionType, points, order int, answers ...AnswerOption) quiz.Question {
	ctx := context.Background()
	qn, err := repo.CreateQuestion(ctx, quiz.Question{
		QuizID:      quizID,
		Text:        "Question " + string(typ),
		Type:        typ,
		Points:      points,
		OrderNumber: order,
	})
	if err != nil {
		t.Fatalf("CreateQuestion() failed: %v", err)
	}
	qn.Answers = make([]quiz.Answer, 0, len(answers))
	for _, a := range answers {
		ans, err := repo.CreateAnswer(ctx, quiz.Answer{QuestionID: qn.ID, Text: a.Text, IsCorrect: a.Correct})
		if err != nil {
			t.Fatalf("CreateAnswer() failed: %v", err)
		}
		qn.Answers = append(qn.Answers, ans)
	}
	return qn
}

func Enroll(t *testing.T, repo enrollment.Repository, learnerID, courseID int64) enrollment.Enrollment {
	enr, _, err := repo.GetOrCreate(context.Background(), learnerID, courseID, core.Now())
	if err != nil {
		t.Fatalf("Enroll() failed: %v", err)
	}
	return enr
}

// Catalog is a course with one module made of lessons, and the users around it.
type Catalog struct {
	Instructor user.User
	Student    user.User
	Admin      user.User
	Course     course.Course
	Module     course.Module
	Lessons    []course.Lesson
}

// NewCatalog creates a course with `required` required text lessons followed by `optional` optional ones.
func NewCatalog(t *testing.T, env *Env, required, optional int) Catalog {
	var c Catalog
	c.Instructor = CreateUser(t, env.Users, "Ibu Guru", "guru@rotasi.test", user.RoleInstructor)
	c.Student = CreateUser(t, env.Users, "Budi", "budi@rotasi.test", user.RoleStudent)
	c.Admin = CreateUser(t, env.Users, "Admin", "admin@rotasi.test", user.RoleAdmin)
	c.Course = CreateCourse(t, env.Courses, c.Instructor.ID, "Go Basics")
	c.Module = CreateModule(t, env.Courses, c.Course.ID, "Module 1", 1)
	for i := 0; i < required+optional; i++ {
		lsn := CreateLesson(t, env.Courses, c.Module.ID, "Lesson", course.LessonText, i < required, i+1)
		c.Lessons = append(c.Lessons, lsn)
	}
	return c
}

// BlockingRenderer never finishes on its own: it returns when ctx is done.
type BlockingRenderer struct{}

func (BlockingRenderer) Render(ctx context.Context, _ certificate.Document) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

// QuizCatalog is a Catalog whose module ends with a required quiz lesson.
type QuizCatalog struct {
	Catalog
	QuizLesson course.Lesson
	Quiz       quiz.Quiz
	Questions  []quiz.Question
}

// NewQuizCatalog creates `required` required text lessons followed by a required quiz lesson.
// The quiz holds two multiple choice questions of 10 points; their second answer is the correct one.
func NewQuizCatalog(t *testing.T, env *Env, required int, passingScore float64) QuizCatalog {
	c := QuizCatalog{Catalog: NewCatalog(t, env, required, 0)}
	c.QuizLesson = CreateLesson(t, env.Courses, c.Module.ID, "Quiz", course.LessonQuiz, true, required+1)
	c.Lessons = append(c.Lessons, c.QuizLesson)
	c.Quiz = CreateQuiz(t, env.Quizzes, c.QuizLesson.ID, "Checkpoint", passingScore)
	for i := 1; i <= 2; i++ {
		qn := CreateQuestion(t, env.Quizzes, c.Quiz.ID, quiz.MultipleChoice, 10, i,
			AnswerOption{Text: "wrong"}, AnswerOption{Text: "right", Correct: true})
		c.Questions = append(c.Questions, qn)
	}
	return c
}

// Choose answers a choice question with its i-th answer.
func Choose(qn quiz.Question, i int) quiz.AnswerInput {
	id := qn.Answers[i].ID
	return quiz.AnswerInput{QuestionID: qn.ID, AnswerID: &id}
}

// Write answers an essay question.
func Write(qn quiz.Question, text string) quiz.AnswerInput {
	return quiz.AnswerInput{QuestionID: qn.ID, TextAnswer: &text}
}
