// Package grading records instructor grades for essay submissions and refreshes the affected results.
package grading

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/juniordw/rotasi-lms-sub000/core"
	"github.com/juniordw/rotasi-lms-sub000/core/completion"
	"github.com/juniordw/rotasi-lms-sub000/core/course"
	"github.com/juniordw/rotasi-lms-sub000/core/enrollment"
	"github.com/juniordw/rotasi-lms-sub000/core/policy"
	"github.com/juniordw/rotasi-lms-sub000/core/quiz"
)

var (
	// errors
	ErrAlreadyGraded = core.NewConflictError("submission already graded")
	ErrInvalidGrades = errors.New("invalid grades")
)

// Grade is the grade of one essay submission.
type Grade struct {
	SubmissionID int64    `json:"submission_id" validate:"required,gt=0"`
	IsCorrect    *bool    `json:"is_correct" validate:"required"`
	PointsEarned *float64 `json:"points_earned" validate:"required,gte=0"`
}

type Service struct {
	db         core.DB
	quizRepo   quiz.Repository
	enrolRepo  enrollment.Repository
	courseRepo course.Repository
	engine     *quiz.Engine
	evaluator  *completion.Evaluator
}

func NewService(
	db core.DB,
	quizRepo quiz.Repository,
	enrolRepo enrollment.Repository,
	courseRepo course.Repository,
	engine *quiz.Engine,
	evaluator *completion.Evaluator,
) *Service {
	return &Service{
		db:         db,
		quizRepo:   quizRepo,
		enrolRepo:  enrolRepo,
		courseRepo: courseRepo,
		engine:     engine,
		evaluator:  evaluator,
	}
}

// checkGrades makes sure every grade targets an essay submission of qz and stays within the question's points.
func checkGrades(qz quiz.Quiz, grades []Grade, subs map[int64]quiz.Submission) error {
	if len(grades) == 0 {
		return core.NewValidationError(ErrInvalidGrades, core.FieldError{Field: "grades", Error: "at least one grade is required"})
	}

	var flds []core.FieldError
	seen := make(map[int64]bool, len(grades))
	for i, g := range grades {
		field := fmt.Sprintf("grades[%d]", i)
		sub, ok := subs[g.SubmissionID]
		if !ok {
			return quiz.ErrSubmissionMissing
		}
		qn, ok := qz.Question(sub.QuestionID)
		switch {
		case !ok:
			flds = append(flds, core.FieldError{Field: field + ".submission_id", Error: "submission does not belong to this quiz"})
		case qn.Type != quiz.Essay:
			flds = append(flds, core.FieldError{Field: field + ".submission_id", Error: "only essay submissions are graded manually"})
		case seen[g.SubmissionID]:
			flds = append(flds, core.FieldError{Field: field + ".submission_id", Error: "submission graded more than once"})
		case g.IsCorrect == nil || g.PointsEarned == nil:
			flds = append(flds, core.FieldError{Field: field, Error: "is_correct and points_earned are required"})
		case *g.PointsEarned < 0 || *g.PointsEarned > float64(qn.Points):
			flds = append(flds, core.FieldError{
				Field: field + ".points_earned",
				Error: fmt.Sprintf("must be between 0 and %d", qn.Points),
			})
		}
		seen[g.SubmissionID] = true
	}
	if len(flds) > 0 {
		return core.NewValidationError(ErrInvalidGrades, flds...)
	}
	return nil
}

// GradeEssays grades essay submissions of the quiz and recomputes the results of every affected
// enrollment. All grades are applied in one transaction: if any submission was graded already,
// none is and ErrAlreadyGraded is returned.
func (svc *Service) GradeEssays(ctx context.Context, quizID int64, grades []Grade, caller policy.Principal) ([]quiz.Result, error) {
	qz, err := svc.quizRepo.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, errors.Wrap(err, "getting quiz")
	}
	crs, err := svc.courseRepo.GetCourse(ctx, qz.CourseID)
	if err != nil {
		return nil, errors.Wrap(err, "getting course")
	}
	if err = policy.Authorize(caller, policy.Grade, policy.Quiz, policy.Facts{OwnerID: crs.InstructorID}); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(grades))
	for _, g := range grades {
		ids = append(ids, g.SubmissionID)
	}
	found, err := svc.quizRepo.GetSubmissions(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "getting submissions")
	}
	subs := make(map[int64]quiz.Submission, len(found))
	for _, s := range found {
		subs[s.ID] = s
	}
	if err = checkGrades(qz, grades, subs); err != nil {
		return nil, err
	}

	var enrollmentIDs []int64
	byEnrollment := make(map[int64]bool)
	for _, g := range grades {
		sub := subs[g.SubmissionID]
		if sub.GradedAt.Valid {
			return nil, ErrAlreadyGraded
		}
		if !byEnrollment[sub.EnrollmentID] {
			byEnrollment[sub.EnrollmentID] = true
			enrollmentIDs = append(enrollmentIDs, sub.EnrollmentID)
		}
	}
	// a fixed lock order keeps concurrent gradings of overlapping enrollments from deadlocking
	sort.Slice(enrollmentIDs, func(i, j int) bool { return enrollmentIDs[i] < enrollmentIDs[j] })

	results := make([]quiz.Result, 0, len(enrollmentIDs))
	outcomes := make([]completion.Outcome, 0, len(enrollmentIDs))
	err = core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		for _, id := range enrollmentIDs {
			if _, err := svc.enrolRepo.LockEnrollment(ctx, id, tx); err != nil {
				return errors.Wrap(err, "locking enrollment")
			}
		}

		now := core.Now()
		for _, g := range grades {
			ok, err := svc.quizRepo.GradeSubmission(ctx, g.SubmissionID, *g.IsCorrect, *g.PointsEarned, caller.UserID, now, tx)
			if err != nil {
				return errors.Wrap(err, "grading submission")
			}
			if !ok {
				return ErrAlreadyGraded
			}
		}

		for _, id := range enrollmentIDs {
			res, out, err := svc.engine.RecomputeScoreTx(ctx, tx, id, qz.ID)
			if err != nil {
				return err
			}
			res.PassingScore = qz.PassingScore
			results = append(results, res)
			outcomes = append(outcomes, out)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "grading essays")
	}

	svc.evaluator.AfterCommit(ctx, outcomes...)
	return results, nil
}
