package sqlxrepos_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/juniordw/rotasi-lms-sub000/core"
	"github.com/juniordw/rotasi-lms-sub000/core/certificate"
	"github.com/juniordw/rotasi-lms-sub000/core/enrollment"
	"github.com/juniordw/rotasi-lms-sub000/core/progress"
	"github.com/juniordw/rotasi-lms-sub000/core/quiz"
	"github.com/juniordw/rotasi-lms-sub000/core/user"
	testutil "github.com/juniordw/rotasi-lms-sub000/tests"
)

func TestUserRepository_CreateUser(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	usr, err := env.Users.CreateUser(ctx, user.User{Name: "Budi", Email: " Budi@Rotasi.test ", Role: user.RoleStudent})
	require.NoError(t, err)
	assert.NotZero(t, usr.ID)
	assert.Equal(t, "budi@rotasi.test", usr.Email)

	_, err = env.Users.CreateUser(ctx, user.User{Name: "Other Budi", Email: "budi@rotasi.test", Role: user.RoleStudent})
	var cErr *core.ConflictError
	assert.True(t, errors.As(err, &cErr), "error %v", err)

	_, err = env.Users.GetUser(ctx, 9999)
	assert.Equal(t, user.ErrNotFound, err)
}

func TestEnrollmentRepository(t *testing.T) {
	env := testutil.NewEnv(t)
	cat := testutil.NewCatalog(t, env, 1, 0)
	ctx := context.Background()

	enr, created, err := env.Enrollments.GetOrCreate(ctx, cat.Student.ID, cat.Course.ID, core.Now())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, enrollment.StatusNotStarted, enr.Status)

	again, created, err := env.Enrollments.GetOrCreate(ctx, cat.Student.ID, cat.Course.ID, core.Now())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, enr.ID, again.ID)

	steps := []struct {
		to         enrollment.Status
		wantOK     bool
		wantStatus enrollment.Status
	}{
		{enrollment.StatusNotStarted, false, enrollment.StatusNotStarted},
		{enrollment.StatusInProgress, true, enrollment.StatusInProgress},
		{enrollment.StatusInProgress, false, enrollment.StatusInProgress},
		{enrollment.StatusCompleted, true, enrollment.StatusCompleted},
		{enrollment.StatusInProgress, false, enrollment.StatusCompleted},
		{enrollment.StatusCompleted, false, enrollment.StatusCompleted},
	}
	for _, s := range steps {
		ok, err := env.Enrollments.Advance(ctx, enr.ID, s.to, core.Now())
		require.NoError(t, err)
		assert.Equal(t, s.wantOK, ok, "advance to %s", s.to)

		got, err := env.Enrollments.GetEnrollment(ctx, enr.ID)
		require.NoError(t, err)
		assert.Equal(t, s.wantStatus, got.Status)
		assert.Equal(t, got.Status == enrollment.StatusCompleted, got.CompletionDate.Valid)
	}

	require.NoError(t, env.Enrollments.SetScore(ctx, enr.ID, null.Float64From(87.5)))
	got, err := env.Enrollments.GetByLearnerCourse(ctx, cat.Student.ID, cat.Course.ID)
	require.NoError(t, err)
	assert.Equal(t, 87.5, got.Score.Float64)

	_, err = env.Enrollments.GetEnrollment(ctx, 9999)
	assert.Equal(t, enrollment.ErrNotFound, err)
}

func TestProgressRepository(t *testing.T) {
	env := testutil.NewEnv(t)
	cat := testutil.NewCatalog(t, env, 2, 0)
	enr := testutil.Enroll(t, env.Enrollments, cat.Student.ID, cat.Course.ID)
	ctx := context.Background()
	lessonID := cat.Lessons[0].ID

	_, err := env.Progress.GetProgress(ctx, enr.ID, lessonID)
	assert.Equal(t, progress.ErrNotFound, err)

	prg, err := env.Progress.Touch(ctx, enr.ID, lessonID, core.Now())
	require.NoError(t, err)
	assert.Equal(t, progress.StatusInProgress, prg.Status)

	prg, ok, err := env.Progress.Complete(ctx, enr.ID, lessonID, 5, core.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, progress.StatusCompleted, prg.Status)
	assert.Equal(t, 5, prg.TimeSpentMinutes)

	later := core.Now().Add(time.Minute)
	prg, ok, err = env.Progress.Complete(ctx, enr.ID, lessonID, 7, later)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 5, prg.TimeSpentMinutes)
	assert.WithinDuration(t, later, prg.LastAccessed, time.Second)

	prg, err = env.Progress.Touch(ctx, enr.ID, lessonID, core.Now())
	require.NoError(t, err)
	assert.Equal(t, progress.StatusCompleted, prg.Status)

	// completing a lesson never accessed creates its row
	_, ok, err = env.Progress.Complete(ctx, enr.ID, cat.Lessons[1].ID, 0, core.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ids, err := env.Progress.CompletedLessonIDs(ctx, enr.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{cat.Lessons[0].ID, cat.Lessons[1].ID}, ids)

	required, err := env.Courses.RequiredLessonIDs(ctx, cat.Course.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, required)
}

func TestQuizRepository(t *testing.T) {
	env := testutil.NewEnv(t)
	cat := testutil.NewQuizCatalog(t, env, 0, 70)
	enr := testutil.Enroll(t, env.Enrollments, cat.Student.ID, cat.Course.ID)
	ctx := context.Background()

	qz, err := env.Quizzes.GetQuiz(ctx, cat.Quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, cat.Course.ID, qz.CourseID)
	require.Len(t, qz.Questions, 2)
	assert.Equal(t, cat.Questions[0].ID, qz.Questions[0].ID)
	assert.Len(t, qz.Questions[1].Answers, 2)

	_, err = env.Quizzes.GetQuiz(ctx, 9999)
	assert.Equal(t, quiz.ErrQuizNotFound, err)

	now := core.Now()
	res, created, err := env.Quizzes.InsertResult(ctx, quiz.Result{
		EnrollmentID: enr.ID, QuizID: qz.ID, TotalPoints: 20, EarnedPoints: 10, Score: 50,
		Status: quiz.ResultGraded, SubmittedAt: now,
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, res.ID)

	_, created, err = env.Quizzes.InsertResult(ctx, quiz.Result{EnrollmentID: enr.ID, QuizID: qz.ID, Status: quiz.ResultGraded, SubmittedAt: now})
	require.NoError(t, err)
	assert.False(t, created)

	answerID := qz.Questions[0].Answers[1].ID
	subs := []quiz.Submission{{
		EnrollmentID: enr.ID, QuestionID: qz.Questions[0].ID, AnswerID: null.Int64From(answerID),
		IsCorrect: null.BoolFrom(true), PointsEarned: null.Float64From(10), SubmittedAt: now,
	}}
	stored, err := env.Quizzes.InsertSubmissions(ctx, subs)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.NotZero(t, stored[0].ID)

	_, err = env.Quizzes.InsertSubmissions(ctx, subs)
	assert.Equal(t, quiz.ErrAlreadySubmitted, errors.Cause(err))

	ok, err := env.Quizzes.GradeSubmission(ctx, stored[0].ID, false, 0, cat.Instructor.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = env.Quizzes.GradeSubmission(ctx, stored[0].ID, true, 10, cat.Instructor.ID, now)
	require.NoError(t, err)
	assert.False(t, ok)

	avg, err := env.Quizzes.AverageScore(ctx, enr.ID)
	require.NoError(t, err)
	assert.Equal(t, null.Float64From(50), avg)
}

func TestCertificateRepository(t *testing.T) {
	env := testutil.NewEnv(t)
	cat := testutil.NewCatalog(t, env, 1, 0)
	ctx := context.Background()

	newCert := func(learnerID, courseID int64, issued time.Time) certificate.Certificate {
		return certificate.Certificate{
			ID:        uuid.New().String(),
			LearnerID: learnerID,
			CourseID:  courseID,
			Serial:    certificate.Serial(learnerID, courseID),
			Status:    certificate.StatusPending,
			IssueDate: issued,
		}
	}

	first, created, err := env.Certificates.InsertIfAbsent(ctx, newCert(cat.Student.ID, cat.Course.ID, core.Now()))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Budi", first.LearnerName)
	assert.Equal(t, cat.Instructor.ID, first.InstructorID)

	dup, created, err := env.Certificates.InsertIfAbsent(ctx, newCert(cat.Student.ID, cat.Course.ID, core.Now()))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, dup.ID)

	swapped, err := env.Certificates.SetArtifact(ctx, first.ID, "", "certificates/x.pdf")
	require.NoError(t, err)
	assert.True(t, swapped)
	got, err := env.Certificates.GetCertificate(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, certificate.StatusIssued, got.Status)
	assert.Equal(t, "certificates/x.pdf", got.URL)

	// a caller holding the pending snapshot loses against the stored reference
	swapped, err = env.Certificates.SetArtifact(ctx, first.ID, "", "certificates/y.pdf")
	require.NoError(t, err)
	assert.False(t, swapped)
	got, err = env.Certificates.GetCertificate(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "certificates/x.pdf", got.URL)

	_, err = env.Certificates.SetArtifact(ctx, "missing", "", "x")
	assert.Equal(t, certificate.ErrNotFound, errors.Cause(err))

	other := testutil.CreateCourse(t, env.Courses, cat.Instructor.ID, "Advanced Go")
	_, _, err = env.Certificates.InsertIfAbsent(ctx, newCert(cat.Student.ID, other.ID, core.Now().Add(-time.Hour)))
	require.NoError(t, err)

	tests := []struct {
		name      string
		filter    certificate.Filter
		wantTitle []string
	}{
		{name: "newest first", wantTitle: []string{"Go Basics", "Advanced Go"}},
		{
			name:      "by title",
			filter:    certificate.Filter{Orderings: []core.DBOrdering{{Field: "course_title", Ascending: true}}},
			wantTitle: []string{"Advanced Go", "Go Basics"},
		},
		{
			name:      "unknown field is ignored",
			filter:    certificate.Filter{Orderings: []core.DBOrdering{{Field: "1; DROP TABLE users"}}},
			wantTitle: []string{"Go Basics", "Advanced Go"},
		},
		{name: "by learner", filter: certificate.Filter{LearnerID: cat.Admin.ID}, wantTitle: []string{}},
		{name: "by instructor", filter: certificate.Filter{InstructorID: cat.Instructor.ID}, wantTitle: []string{"Go Basics", "Advanced Go"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			certs, err := env.Certificates.QueryCertificates(ctx, tc.filter)
			require.NoError(t, err)
			titles := make([]string, 0, len(certs))
			for _, c := range certs {
				titles = append(titles, c.CourseTitle)
			}
			assert.Equal(t, tc.wantTitle, titles)
		})
	}
}
