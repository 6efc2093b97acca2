package progress_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juniordw/rotasi-lms-sub000/core"
	"github.com/juniordw/rotasi-lms-sub000/core/certificate"
	"github.com/juniordw/rotasi-lms-sub000/core/completion"
	"github.com/juniordw/rotasi-lms-sub000/core/course"
	"github.com/juniordw/rotasi-lms-sub000/core/enrollment"
	"github.com/juniordw/rotasi-lms-sub000/core/notification"
	"github.com/juniordw/rotasi-lms-sub000/core/policy"
	"github.com/juniordw/rotasi-lms-sub000/core/progress"
	testutil "github.com/juniordw/rotasi-lms-sub000/tests"
)

func TestTracker_RecordAccess(t *testing.T) {
	env := testutil.NewEnv(t)
	cat := testutil.NewCatalog(t, env, 2, 0)
	enr := testutil.Enroll(t, env.Enrollments, cat.Student.ID, cat.Course.ID)
	ctx := context.Background()

	prg, err := env.Tracker.RecordAccess(ctx, enr.ID, cat.Lessons[0].ID)
	require.NoError(t, err)
	assert.Equal(t, progress.StatusInProgress, prg.Status)
	assert.False(t, prg.CompletedAt.Valid)

	// access alone does not start the enrollment, completing a lesson does
	got, err := env.Enrollments.GetEnrollment(ctx, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusNotStarted, got.Status)

	// access never downgrades a completed lesson
	_, _, err = env.Tracker.RecordCompletion(ctx, enr.ID, cat.Lessons[0].ID, 3)
	require.NoError(t, err)
	prg, err = env.Tracker.RecordAccess(ctx, enr.ID, cat.Lessons[0].ID)
	require.NoError(t, err)
	assert.Equal(t, progress.StatusCompleted, prg.Status)
	assert.Equal(t, 3, prg.TimeSpentMinutes)
}

func TestTracker_RecordAccess_otherCourse(t *testing.T) {
	env := testutil.NewEnv(t)
	cat := testutil.NewCatalog(t, env, 1, 0)
	enr := testutil.Enroll(t, env.Enrollments, cat.Student.ID, cat.Course.ID)

	other := testutil.CreateCourse(t, env.Courses, cat.Instructor.ID, "Other")
	mod := testutil.CreateModule(t, env.Courses, other.ID, "M", 1)
	lsn := testutil.CreateLesson(t, env.Courses, mod.ID, "Elsewhere", course.LessonText, true, 1)

	_, err := env.Tracker.RecordAccess(context.Background(), enr.ID, lsn.ID)
	assert.Equal(t, enrollment.ErrNotEnrolled, errors.Cause(err))

	_, err = env.Tracker.RecordAccess(context.Background(), enr.ID, 9999)
	assert.Equal(t, course.ErrLessonNotFound, errors.Cause(err))
}

func TestTracker_RecordCompletion(t *testing.T) {
	env := testutil.NewEnv(t)
	cat := testutil.NewCatalog(t, env, 2, 1)
	enr := testutil.Enroll(t, env.Enrollments, cat.Student.ID, cat.Course.ID)
	ctx := context.Background()

	_, _, err := env.Tracker.RecordCompletion(ctx, enr.ID, cat.Lessons[0].ID, -1)
	assert.Equal(t, progress.ErrNegativeTime, err)

	prg, out, err := env.Tracker.RecordCompletion(ctx, enr.ID, cat.Lessons[0].ID, 10)
	require.NoError(t, err)
	assert.Equal(t, progress.StatusCompleted, prg.Status)
	assert.True(t, prg.CompletedAt.Valid)
	assert.Equal(t, completion.MarkInProgress, out.Decision)
	assert.Equal(t, enrollment.StatusInProgress, out.Enrollment.Status)

	// duplicate completion: no extra time, no transition
	prg, out, err = env.Tracker.RecordCompletion(ctx, enr.ID, cat.Lessons[0].ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, prg.TimeSpentMinutes)
	assert.Equal(t, completion.NoOp, out.Decision)

	// optional lessons never complete the course
	_, out, err = env.Tracker.RecordCompletion(ctx, enr.ID, cat.Lessons[2].ID, 1)
	require.NoError(t, err)
	assert.False(t, out.Completed)

	_, out, err = env.Tracker.RecordCompletion(ctx, enr.ID, cat.Lessons[1].ID, 5)
	require.NoError(t, err)
	assert.True(t, out.Completed)
	assert.Equal(t, enrollment.StatusCompleted, out.Enrollment.Status)
	assert.True(t, out.Enrollment.CompletionDate.Valid)
	require.NotNil(t, out.Certificate)
	assert.NotEmpty(t, out.Certificate.URL)

	// completing again after completion changes nothing
	_, out, err = env.Tracker.RecordCompletion(ctx, enr.ID, cat.Lessons[1].ID, 5)
	require.NoError(t, err)
	assert.False(t, out.Completed)
	assert.Nil(t, out.Certificate)

	notifs, err := env.Notifications.QueryByUser(ctx, cat.Student.ID)
	require.NoError(t, err)
	var completed, certs int
	for _, n := range notifs {
		switch n.Type {
		case notification.TypeCourseCompleted:
			completed++
		case notification.TypeCertificate:
			certs++
		}
		assert.True(t, n.SentAt.Valid, "notification %d sent", n.ID)
	}
	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, certs)
}

func TestTracker_concurrentCompletion(t *testing.T) {
	env := testutil.NewEnv(t)
	cat := testutil.NewCatalog(t, env, 1, 0)
	enr := testutil.Enroll(t, env.Enrollments, cat.Student.ID, cat.Course.ID)
	ctx := context.Background()

	const n = 8
	outs := make(chan completion.Outcome, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, out, err := env.Tracker.RecordCompletion(ctx, enr.ID, cat.Lessons[0].ID, 4)
			outs <- out
			errs <- err
		}()
	}
	var transitions int
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
		if (<-outs).Completed {
			transitions++
		}
	}
	assert.Equal(t, 1, transitions)

	prg, err := env.Progress.GetProgress(ctx, enr.ID, cat.Lessons[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 4, prg.TimeSpentMinutes)

	certs, err := env.Certificates.QueryCertificates(ctx, certificate.Filter{LearnerID: cat.Student.ID})
	require.NoError(t, err)
	assert.Len(t, certs, 1)
}

func TestTracker_CompleteLesson_quizLesson(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithConfig(func(conf *core.Config) {
		conf.Completion.RequireQuizPass = true
	}))
	cat := testutil.NewQuizCatalog(t, env, 1, 70)
	student := policy.Principal{UserID: cat.Student.ID, Role: cat.Student.Role}
	enr := testutil.Enroll(t, env.Enrollments, cat.Student.ID, cat.Course.ID)
	ctx := context.Background()

	_, err := env.Tracker.CompleteLesson(ctx, cat.Lessons[0].ID, 5, student)
	require.NoError(t, err)

	_, err = env.Tracker.CompleteLesson(ctx, cat.QuizLesson.ID, 5, student)
	assert.Equal(t, progress.ErrQuizLesson, errors.Cause(err))

	_, err = env.Progress.GetProgress(ctx, enr.ID, cat.QuizLesson.ID)
	assert.Equal(t, progress.ErrNotFound, errors.Cause(err))

	got, err := env.Enrollments.GetEnrollment(ctx, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusInProgress, got.Status)
	assert.False(t, got.CompletionDate.Valid)

	certs, err := env.Certificates.QueryCertificates(ctx, certificate.Filter{LearnerID: cat.Student.ID})
	require.NoError(t, err)
	assert.Empty(t, certs)
}
