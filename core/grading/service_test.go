package grading_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juniordw/rotasi-lms-sub000/core"
	"github.com/juniordw/rotasi-lms-sub000/core/grading"
	"github.com/juniordw/rotasi-lms-sub000/core/policy"
	"github.com/juniordw/rotasi-lms-sub000/core/quiz"
	"github.com/juniordw/rotasi-lms-sub000/core/user"
	testutil "github.com/juniordw/rotasi-lms-sub000/tests"
)

type fixture struct {
	env        *testutil.Env
	cat        testutil.QuizCatalog
	essay      quiz.Question
	instructor policy.Principal
}

// newFixture submits the quiz (two choices right, one essay) for each learner and returns the essay submission ids.
func newFixture(t *testing.T, learners int) (fixture, []int64) {
	env := testutil.NewEnv(t)
	cat := testutil.NewQuizCatalog(t, env, 0, 80)
	f := fixture{
		env:        env,
		cat:        cat,
		essay:      testutil.CreateQuestion(t, env.Quizzes, cat.Quiz.ID, quiz.Essay, 10, 3),
		instructor: policy.Principal{UserID: cat.Instructor.ID, Role: cat.Instructor.Role},
	}

	ctx := context.Background()
	essayIDs := make([]int64, 0, learners)
	for i := 0; i < learners; i++ {
		learner := cat.Student
		if i > 0 {
			learner = testutil.CreateUser(t, env.Users, "Learner", "learner"+string(rune('a'+i))+"@rotasi.test", user.RoleStudent)
		}
		enr := testutil.Enroll(t, env.Enrollments, learner.ID, cat.Course.ID)
		_, err := env.Engine.Submit(ctx, cat.Quiz.ID, enr.ID, []quiz.AnswerInput{
			testutil.Choose(cat.Questions[0], 1),
			testutil.Choose(cat.Questions[1], 1),
			testutil.Write(f.essay, "answer"),
		})
		require.NoError(t, err)

		subs, err := env.Quizzes.QuerySubmissions(ctx, enr.ID, cat.Quiz.ID)
		require.NoError(t, err)
		for _, s := range subs {
			if s.QuestionID == f.essay.ID {
				essayIDs = append(essayIDs, s.ID)
			}
		}
	}
	return f, essayIDs
}

func grade(id int64, correct bool, points float64) grading.Grade {
	return grading.Grade{SubmissionID: id, IsCorrect: &correct, PointsEarned: &points}
}

func TestService_GradeEssays(t *testing.T) {
	f, ids := newFixture(t, 2)
	ctx := context.Background()

	results, err := f.env.Grading.GradeEssays(ctx, f.cat.Quiz.ID, []grading.Grade{
		grade(ids[1], false, 2),
		grade(ids[0], true, 10),
	}, f.instructor)
	require.NoError(t, err)
	require.Len(t, results, 2)

	scores := map[int64]float64{}
	for _, r := range results {
		assert.Equal(t, quiz.ResultGraded, r.Status)
		assert.Equal(t, 80.0, r.PassingScore)
		scores[r.EnrollmentID] = r.Score
	}
	assert.ElementsMatch(t, []float64{100, 73.3}, []float64{results[0].Score, results[1].Score})
	assert.Less(t, results[0].EnrollmentID, results[1].EnrollmentID, "results follow the enrollment order")

	subs, err := f.env.Quizzes.GetSubmissions(ctx, ids)
	require.NoError(t, err)
	for _, s := range subs {
		assert.True(t, s.GradedAt.Valid)
		assert.Equal(t, f.cat.Instructor.ID, s.GradedBy.Int64)
		assert.True(t, s.PointsEarned.Valid)
		assert.Equal(t, scores[s.EnrollmentID] == 100, s.IsCorrect.Bool)
	}
}

func TestService_GradeEssays_rejects(t *testing.T) {
	f, ids := newFixture(t, 1)
	ctx := context.Background()

	essays, err := f.env.Quizzes.GetSubmissions(ctx, ids)
	require.NoError(t, err)
	require.Len(t, essays, 1)
	enrollmentID := essays[0].EnrollmentID

	subs, err := f.env.Quizzes.QuerySubmissions(ctx, enrollmentID, f.cat.Quiz.ID)
	require.NoError(t, err)
	var choiceID int64
	for _, s := range subs {
		if s.QuestionID != f.essay.ID {
			choiceID = s.ID
		}
	}
	require.NotZero(t, choiceID)

	invalid := func(t *testing.T, grades []grading.Grade, field string) {
		_, err := f.env.Grading.GradeEssays(ctx, f.cat.Quiz.ID, grades, f.instructor)
		var vErr *core.ValidationError
		require.True(t, errors.As(err, &vErr), "error %v", err)
		require.NotEmpty(t, vErr.Fields)
		assert.Equal(t, field, vErr.Fields[0].Field)
	}

	t.Run("no grades", func(t *testing.T) { invalid(t, nil, "grades") })
	t.Run("choice submission", func(t *testing.T) { invalid(t, []grading.Grade{grade(choiceID, true, 10)}, "grades[0].submission_id") })
	t.Run("graded twice in one call", func(t *testing.T) {
		invalid(t, []grading.Grade{grade(ids[0], true, 10), grade(ids[0], true, 5)}, "grades[1].submission_id")
	})
	t.Run("too many points", func(t *testing.T) { invalid(t, []grading.Grade{grade(ids[0], true, 10.5)}, "grades[0].points_earned") })
	t.Run("negative points", func(t *testing.T) { invalid(t, []grading.Grade{grade(ids[0], false, -1)}, "grades[0].points_earned") })

	t.Run("unknown submission", func(t *testing.T) {
		_, err := f.env.Grading.GradeEssays(ctx, f.cat.Quiz.ID, []grading.Grade{grade(9999, true, 1)}, f.instructor)
		assert.Equal(t, quiz.ErrSubmissionMissing, err)
	})

	t.Run("not the course instructor", func(t *testing.T) {
		other := testutil.CreateUser(t, f.env.Users, "Other", "other@rotasi.test", user.RoleInstructor)
		_, err := f.env.Grading.GradeEssays(ctx, f.cat.Quiz.ID, []grading.Grade{grade(ids[0], true, 10)},
			policy.Principal{UserID: other.ID, Role: other.Role})
		assert.Equal(t, core.ErrForbidden, err)
	})

	t.Run("nothing was graded", func(t *testing.T) {
		res, err := f.env.Quizzes.GetResult(ctx, enrollmentID, f.cat.Quiz.ID)
		require.NoError(t, err)
		assert.Equal(t, quiz.ResultPending, res.Status)
	})

	t.Run("graded once", func(t *testing.T) {
		_, err := f.env.Grading.GradeEssays(ctx, f.cat.Quiz.ID, []grading.Grade{grade(ids[0], true, 10)}, f.instructor)
		require.NoError(t, err)
		_, err = f.env.Grading.GradeEssays(ctx, f.cat.Quiz.ID, []grading.Grade{grade(ids[0], true, 4)}, f.instructor)
		assert.Equal(t, grading.ErrAlreadyGraded, errors.Cause(err))
	})
}

func TestService_GradeEssays_concurrent(t *testing.T) {
	f, ids := newFixture(t, 1)
	ctx := context.Background()

	const n = 5
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(points float64) {
			_, err := f.env.Grading.GradeEssays(ctx, f.cat.Quiz.ID, []grading.Grade{grade(ids[0], true, points)}, f.instructor)
			errs <- err
		}(float64(i + 1))
	}
	var ok int
	for i := 0; i < n; i++ {
		if err := <-errs; err == nil {
			ok++
		} else {
			assert.Equal(t, grading.ErrAlreadyGraded, errors.Cause(err))
		}
	}
	assert.Equal(t, 1, ok)
}
