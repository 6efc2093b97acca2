package quiz_test

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juniordw/rotasi-lms-sub000/core"
	"github.com/juniordw/rotasi-lms-sub000/core/certificate"
	"github.com/juniordw/rotasi-lms-sub000/core/course"
	"github.com/juniordw/rotasi-lms-sub000/core/enrollment"
	"github.com/juniordw/rotasi-lms-sub000/core/grading"
	"github.com/juniordw/rotasi-lms-sub000/core/policy"
	"github.com/juniordw/rotasi-lms-sub000/core/progress"
	"github.com/juniordw/rotasi-lms-sub000/core/quiz"
	testutil "github.com/juniordw/rotasi-lms-sub000/tests"
)

func principalOf(id int64, role string) policy.Principal {
	return policy.Principal{UserID: id, Role: role}
}

// a course made of two text lessons and a quiz, all required, completes with its certificate
func TestEngine_courseCompletion(t *testing.T) {
	env := testutil.NewEnv(t)
	cat := testutil.NewQuizCatalog(t, env, 2, 70)
	student := principalOf(cat.Student.ID, cat.Student.Role)
	ctx := context.Background()

	enr, err := env.Lifecycle.Enroll(ctx, cat.Student.ID, cat.Course.ID, student)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusNotStarted, enr.Status)

	for _, lsn := range cat.Lessons[:2] {
		view, err := env.Tracker.CompleteLesson(ctx, lsn.ID, 12, student)
		require.NoError(t, err)
		assert.Equal(t, enrollment.StatusInProgress, view.CompletionStatus)
	}

	res, err := env.Engine.SubmitAs(ctx, cat.Quiz.ID, []quiz.AnswerInput{
		testutil.Choose(cat.Questions[0], 1),
		testutil.Choose(cat.Questions[1], 1),
	}, student)
	require.NoError(t, err)
	assert.Equal(t, 20, res.TotalPoints)
	assert.Equal(t, 20.0, res.EarnedPoints)
	assert.Equal(t, 100.0, res.Score)
	assert.True(t, res.IsPassed)
	assert.Equal(t, 70.0, res.PassingScore)

	got, err := env.Enrollments.GetEnrollment(ctx, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusCompleted, got.Status)
	assert.True(t, got.CompletionDate.Valid)
	assert.Equal(t, 100.0, got.Score.Float64)

	prg, err := env.Progress.GetProgress(ctx, enr.ID, cat.QuizLesson.ID)
	require.NoError(t, err)
	assert.Equal(t, progress.StatusCompleted, prg.Status)

	cert, err := env.Certificates.GetByLearnerCourse(ctx, cat.Student.ID, cat.Course.ID)
	require.NoError(t, err)
	assert.Equal(t, certificate.StatusIssued, cert.Status)
	assert.Equal(t, certificate.Serial(cat.Student.ID, cat.Course.ID), cert.Serial)
	assert.False(t, cert.ExpirationDate.Valid)
}

func TestEngine_Submit_noRetake(t *testing.T) {
	env := testutil.NewEnv(t)
	cat := testutil.NewQuizCatalog(t, env, 0, 50)
	enr := testutil.Enroll(t, env.Enrollments, cat.Student.ID, cat.Course.ID)
	answers := []quiz.AnswerInput{testutil.Choose(cat.Questions[0], 1), testutil.Choose(cat.Questions[1], 0)}
	ctx := context.Background()

	const n = 6
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.Submit(ctx, cat.Quiz.ID, enr.ID, answers)
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Cause(err) == quiz.ErrAlreadySubmitted:
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflicts)

	subs, err := env.Quizzes.QuerySubmissions(ctx, enr.ID, cat.Quiz.ID)
	require.NoError(t, err)
	assert.Len(t, subs, 2)
}

func TestEngine_Submit_rejects(t *testing.T) {
	env := testutil.NewEnv(t)
	cat := testutil.NewQuizCatalog(t, env, 0, 50)
	ctx := context.Background()

	other := testutil.CreateCourse(t, env.Courses, cat.Instructor.ID, "Other")
	otherEnr := testutil.Enroll(t, env.Enrollments, cat.Student.ID, other.ID)
	answers := []quiz.AnswerInput{testutil.Choose(cat.Questions[0], 1)}

	_, err := env.Engine.Submit(ctx, cat.Quiz.ID, otherEnr.ID, answers)
	assert.Equal(t, enrollment.ErrNotEnrolled, errors.Cause(err))

	_, err = env.Engine.SubmitAs(ctx, cat.Quiz.ID, answers, principalOf(cat.Student.ID, cat.Student.Role))
	assert.Equal(t, policy.ErrNotEnrolled, err)

	_, err = env.Engine.Submit(ctx, 9999, otherEnr.ID, answers)
	assert.Equal(t, quiz.ErrQuizNotFound, errors.Cause(err))

	_, err = env.Engine.Submit(ctx, cat.Quiz.ID, otherEnr.ID, nil)
	var vErr *core.ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func TestEngine_essayGrading(t *testing.T) {
	env := testutil.NewEnv(t)
	cat := testutil.NewQuizCatalog(t, env, 0, 80)
	essay := testutil.CreateQuestion(t, env.Quizzes, cat.Quiz.ID, quiz.Essay, 10, 3)
	enr := testutil.Enroll(t, env.Enrollments, cat.Student.ID, cat.Course.ID)
	instructor := principalOf(cat.Instructor.ID, cat.Instructor.Role)
	ctx := context.Background()

	res, err := env.Engine.Submit(ctx, cat.Quiz.ID, enr.ID, []quiz.AnswerInput{
		testutil.Choose(cat.Questions[0], 1),
		testutil.Choose(cat.Questions[1], 1),
		testutil.Write(essay, "  A channel hands values between goroutines.  "),
	})
	require.NoError(t, err)
	assert.Equal(t, 30, res.TotalPoints)
	assert.Equal(t, 66.7, res.Score)
	assert.False(t, res.IsPassed)
	assert.Equal(t, quiz.ResultPending, res.Status)
	assert.False(t, res.GradedAt.Valid)

	// the submission consumed the quiz lesson, the only required one
	got, err := env.Enrollments.GetEnrollment(ctx, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusCompleted, got.Status)
	assert.Equal(t, 66.7, got.Score.Float64)

	subs, err := env.Quizzes.QuerySubmissions(ctx, enr.ID, cat.Quiz.ID)
	require.NoError(t, err)
	var essayID int64
	for _, s := range subs {
		if s.QuestionID == essay.ID {
			essayID = s.ID
			assert.Equal(t, "A channel hands values between goroutines.", s.TextAnswer.String)
			assert.False(t, s.IsCorrect.Valid)
			assert.False(t, s.PointsEarned.Valid)
		}
	}
	require.NotZero(t, essayID)

	// recomputing before grading is a no-op
	again, err := env.Engine.Recompute(ctx, enr.ID, cat.Quiz.ID, instructor)
	require.NoError(t, err)
	assert.Equal(t, 66.7, again.Score)

	correct, points := true, 10.0
	results, err := env.Grading.GradeEssays(ctx, cat.Quiz.ID, []grading.Grade{{SubmissionID: essayID, IsCorrect: &correct, PointsEarned: &points}}, instructor)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 100.0, results[0].Score)
	assert.True(t, results[0].IsPassed)
	assert.Equal(t, quiz.ResultGraded, results[0].Status)
	assert.True(t, results[0].GradedAt.Valid)

	stored, err := env.Quizzes.GetResult(ctx, enr.ID, cat.Quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, stored.Score)
	assert.Equal(t, res.SubmittedAt.Unix(), stored.SubmittedAt.Unix())

	got, err = env.Enrollments.GetEnrollment(ctx, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, got.Score.Float64)

	// idempotent
	again, err = env.Engine.Recompute(ctx, enr.ID, cat.Quiz.ID, instructor)
	require.NoError(t, err)
	assert.Equal(t, 100.0, again.Score)
	assert.Equal(t, stored.GradedAt.Time.Unix(), again.GradedAt.Time.Unix())

	_, err = env.Engine.Recompute(ctx, enr.ID, cat.Quiz.ID, principalOf(cat.Student.ID, cat.Student.Role))
	assert.Equal(t, core.ErrForbidden, err)
}

func TestEngine_requireQuizPass(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithConfig(func(conf *core.Config) {
		conf.Completion.RequireQuizPass = true
	}))
	cat := testutil.NewQuizCatalog(t, env, 0, 80)
	essay := testutil.CreateQuestion(t, env.Quizzes, cat.Quiz.ID, quiz.Essay, 10, 3)
	enr := testutil.Enroll(t, env.Enrollments, cat.Student.ID, cat.Course.ID)
	ctx := context.Background()

	_, err := env.Engine.Submit(ctx, cat.Quiz.ID, enr.ID, []quiz.AnswerInput{
		testutil.Choose(cat.Questions[0], 1),
		testutil.Choose(cat.Questions[1], 1),
		testutil.Write(essay, "essay"),
	})
	require.NoError(t, err)

	// not passed yet: the quiz lesson is only accessed, no lesson is completed
	prg, err := env.Progress.GetProgress(ctx, enr.ID, cat.QuizLesson.ID)
	require.NoError(t, err)
	assert.Equal(t, progress.StatusInProgress, prg.Status)
	got, err := env.Enrollments.GetEnrollment(ctx, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusNotStarted, got.Status)

	subs, err := env.Quizzes.QuerySubmissions(ctx, enr.ID, cat.Quiz.ID)
	require.NoError(t, err)
	var essayID int64
	for _, s := range subs {
		if s.QuestionID == essay.ID {
			essayID = s.ID
		}
	}

	correct, points := true, 8.0
	results, err := env.Grading.GradeEssays(ctx, cat.Quiz.ID, []grading.Grade{{SubmissionID: essayID, IsCorrect: &correct, PointsEarned: &points}},
		principalOf(cat.Admin.ID, cat.Admin.Role))
	require.NoError(t, err)
	assert.Equal(t, 93.3, results[0].Score)

	// passing after grading completes the quiz lesson, hence the course
	prg, err = env.Progress.GetProgress(ctx, enr.ID, cat.QuizLesson.ID)
	require.NoError(t, err)
	assert.Equal(t, progress.StatusCompleted, prg.Status)
	got, err = env.Enrollments.GetEnrollment(ctx, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusCompleted, got.Status)

	_, err = env.Certificates.GetByLearnerCourse(ctx, cat.Student.ID, cat.Course.ID)
	assert.NoError(t, err)
}

func TestEngine_GetQuiz(t *testing.T) {
	env := testutil.NewEnv(t)
	cat := testutil.NewQuizCatalog(t, env, 0, 50)
	testutil.Enroll(t, env.Enrollments, cat.Student.ID, cat.Course.ID)
	ctx := context.Background()

	view, err := env.Engine.GetQuiz(ctx, cat.Quiz.ID, principalOf(cat.Student.ID, cat.Student.Role))
	require.NoError(t, err)
	assert.Equal(t, cat.Quiz.Title, view.Title)
	require.Len(t, view.Questions, 2)
	assert.Equal(t, cat.Questions[0].ID, view.Questions[0].ID)
	assert.Nil(t, view.Questions[0].Answers[0].Correct)

	view, err = env.Engine.GetQuiz(ctx, cat.Quiz.ID, principalOf(cat.Admin.ID, cat.Admin.Role))
	require.NoError(t, err)
	require.NotNil(t, view.Questions[0].Answers[1].Correct)
	assert.True(t, *view.Questions[0].Answers[1].Correct)

	outsider := testutil.CreateUser(t, env.Users, "Pak Budi", "other@rotasi.test", cat.Instructor.Role)
	_, err = env.Engine.GetQuiz(ctx, cat.Quiz.ID, principalOf(outsider.ID, outsider.Role))
	assert.Equal(t, core.ErrForbidden, err)
}

func TestEngine_Submit_noQuestions(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithConfig(func(conf *core.Config) {
		conf.Completion.RequireQuizPass = true
	}))
	cat := testutil.NewCatalog(t, env, 0, 0)
	lsn := testutil.CreateLesson(t, env.Courses, cat.Module.ID, "Survey", course.LessonQuiz, true, 1)
	qz := testutil.CreateQuiz(t, env.Quizzes, lsn.ID, "Survey", 0)
	enr := testutil.Enroll(t, env.Enrollments, cat.Student.ID, cat.Course.ID)
	ctx := context.Background()

	res, err := env.Engine.Submit(ctx, qz.ID, enr.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalPoints)
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, quiz.ResultGraded, res.Status)
	assert.True(t, res.IsPassed)

	prg, err := env.Progress.GetProgress(ctx, enr.ID, lsn.ID)
	require.NoError(t, err)
	assert.Equal(t, progress.StatusCompleted, prg.Status)
	got, err := env.Enrollments.GetEnrollment(ctx, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusCompleted, got.Status)

	_, err = env.Engine.Submit(ctx, qz.ID, enr.ID, nil)
	assert.Equal(t, quiz.ErrAlreadySubmitted, errors.Cause(err))
}
