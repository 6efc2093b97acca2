package progress

import (
	"context"

	"github.com/pkg/errors"

	"github.com/juniordw/rotasi-lms-sub000/core"
	"github.com/juniordw/rotasi-lms-sub000/core/completion"
	"github.com/juniordw/rotasi-lms-sub000/core/course"
	"github.com/juniordw/rotasi-lms-sub000/core/enrollment"
	"github.com/juniordw/rotasi-lms-sub000/core/policy"
)

var (
	ErrNegativeTime = core.NewValidationError(
		errors.New("invalid time spent"),
		core.FieldError{Field: "time_spent_minutes", Error: "must be greater than or equal to 0"},
	)
	ErrQuizLesson = core.NewValidationError(errors.New("quiz lessons are completed by submitting the quiz"))
)

// Tracker records per-lesson access and completion for enrollments.
type Tracker struct {
	db         core.DB
	repo       Repository
	enrolRepo  enrollment.Repository
	courseRepo course.Repository
	evaluator  *completion.Evaluator
}

func NewTracker(
	db core.DB,
	repo Repository,
	enrolRepo enrollment.Repository,
	courseRepo course.Repository,
	evaluator *completion.Evaluator,
) *Tracker {
	return &Tracker{
		db:         db,
		repo:       repo,
		enrolRepo:  enrolRepo,
		courseRepo: courseRepo,
		evaluator:  evaluator,
	}
}

// lessonOf returns the lesson, making sure it belongs to the enrollment's course.
func (t *Tracker) lessonOf(ctx context.Context, enr enrollment.Enrollment, lessonID int64, exec ...core.DBExecutor) (course.Lesson, error) {
	lsn, err := t.courseRepo.GetLesson(ctx, lessonID, exec...)
	if err != nil {
		return course.Lesson{}, errors.Wrap(err, "getting lesson")
	}
	if lsn.CourseID != enr.CourseID {
		return course.Lesson{}, enrollment.ErrNotEnrolled
	}
	return lsn, nil
}

// RecordAccess marks the lesson as being studied.
func (t *Tracker) RecordAccess(ctx context.Context, enrollmentID, lessonID int64) (Progress, error) {
	var prg Progress
	var out completion.Outcome
	err := core.WithTx(ctx, t.db, func(tx core.DBExecutor) error {
		var err error
		prg, out, err = t.RecordAccessTx(ctx, tx, enrollmentID, lessonID)
		return err
	})
	if err != nil {
		return Progress{}, errors.Wrap(err, "recording access")
	}
	t.evaluator.AfterCommit(ctx, out)
	return prg, nil
}

// RecordAccessTx is RecordAccess within tx. The caller runs evaluator.AfterCommit once tx is committed.
func (t *Tracker) RecordAccessTx(ctx context.Context, tx core.DBExecutor, enrollmentID, lessonID int64) (Progress, completion.Outcome, error) {
	enr, err := t.enrolRepo.LockEnrollment(ctx, enrollmentID, tx)
	if err != nil {
		return Progress{}, completion.Outcome{}, errors.Wrap(err, "locking enrollment")
	}
	if _, err = t.lessonOf(ctx, enr, lessonID, tx); err != nil {
		return Progress{}, completion.Outcome{}, err
	}

	prg, err := t.repo.Touch(ctx, enr.ID, lessonID, core.Now(), tx)
	if err != nil {
		return Progress{}, completion.Outcome{}, errors.Wrap(err, "touching progress")
	}
	out, err := t.evaluator.Evaluate(ctx, tx, enr.ID)
	if err != nil {
		return Progress{}, completion.Outcome{}, errors.Wrap(err, "evaluating completion")
	}
	return prg, out, nil
}

// RecordCompletion marks the lesson completed and re-evaluates the enrollment, which may complete
// it and issue the certificate. Repeated calls for a completed lesson neither add time nor notify.
func (t *Tracker) RecordCompletion(ctx context.Context, enrollmentID, lessonID int64, minutes int) (Progress, completion.Outcome, error) {
	if minutes < 0 {
		return Progress{}, completion.Outcome{}, ErrNegativeTime
	}

	var prg Progress
	var out completion.Outcome
	err := core.WithTx(ctx, t.db, func(tx core.DBExecutor) error {
		var err error
		prg, out, err = t.RecordCompletionTx(ctx, tx, enrollmentID, lessonID, minutes)
		return err
	})
	if err != nil {
		return Progress{}, completion.Outcome{}, errors.Wrap(err, "recording completion")
	}
	outs := t.evaluator.AfterCommit(ctx, out)
	return prg, outs[0], nil
}

// RecordCompletionTx is RecordCompletion within tx. The caller runs evaluator.AfterCommit once tx is committed.
func (t *Tracker) RecordCompletionTx(ctx context.Context, tx core.DBExecutor, enrollmentID, lessonID int64, minutes int) (Progress, completion.Outcome, error) {
	enr, err := t.enrolRepo.LockEnrollment(ctx, enrollmentID, tx)
	if err != nil {
		return Progress{}, completion.Outcome{}, errors.Wrap(err, "locking enrollment")
	}
	if _, err = t.lessonOf(ctx, enr, lessonID, tx); err != nil {
		return Progress{}, completion.Outcome{}, err
	}

	prg, _, err := t.repo.Complete(ctx, enr.ID, lessonID, minutes, core.Now(), tx)
	if err != nil {
		return Progress{}, completion.Outcome{}, errors.Wrap(err, "completing progress")
	}
	out, err := t.evaluator.Evaluate(ctx, tx, enr.ID)
	if err != nil {
		return Progress{}, completion.Outcome{}, errors.Wrap(err, "evaluating completion")
	}
	return prg, out, nil
}

// resolve finds the lesson and, when the caller is enrolled in its course, the caller's enrollment.
func (t *Tracker) resolve(ctx context.Context, lessonID int64, caller policy.Principal) (course.Lesson, course.Course, *enrollment.Enrollment, error) {
	lsn, err := t.courseRepo.GetLesson(ctx, lessonID)
	if err != nil {
		return course.Lesson{}, course.Course{}, nil, errors.Wrap(err, "getting lesson")
	}
	crs, err := t.courseRepo.GetCourse(ctx, lsn.CourseID)
	if err != nil {
		return course.Lesson{}, course.Course{}, nil, errors.Wrap(err, "getting course")
	}
	enr, err := t.enrolRepo.GetByLearnerCourse(ctx, caller.UserID, crs.ID)
	switch {
	case err == nil:
		return lsn, crs, &enr, nil
	case errors.Cause(err) == enrollment.ErrNotFound:
		return lsn, crs, nil, nil
	default:
		return course.Lesson{}, course.Course{}, nil, errors.Wrap(err, "getting enrollment")
	}
}

// ViewLesson returns the lesson for the caller and records the access of enrolled learners.
// The course instructor and admins see the lesson without any progress being recorded.
func (t *Tracker) ViewLesson(ctx context.Context, lessonID int64, caller policy.Principal) (LessonView, error) {
	lsn, crs, enr, err := t.resolve(ctx, lessonID, caller)
	if err != nil {
		return LessonView{}, err
	}
	facts := policy.Facts{OwnerID: crs.InstructorID, Enrolled: enr != nil}
	if err = policy.Authorize(caller, policy.View, policy.Lesson, facts); err != nil {
		return LessonView{}, err
	}

	view := LessonView{Lesson: lsn}
	if enr != nil && caller.IsStudent() {
		prg, err := t.RecordAccess(ctx, enr.ID, lsn.ID)
		if err != nil {
			return LessonView{}, err
		}
		view.Progress = &prg
	}
	return view, nil
}

// CompleteLesson marks the lesson completed for the calling learner.
func (t *Tracker) CompleteLesson(ctx context.Context, lessonID int64, minutes int, caller policy.Principal) (CompletionView, error) {
	lsn, crs, enr, err := t.resolve(ctx, lessonID, caller)
	if err != nil {
		return CompletionView{}, err
	}
	facts := policy.Facts{OwnerID: crs.InstructorID, Enrolled: enr != nil}
	if err = policy.Authorize(caller, policy.Complete, policy.Lesson, facts); err != nil {
		return CompletionView{}, err
	}
	if lsn.Type == course.LessonQuiz {
		return CompletionView{}, ErrQuizLesson
	}

	prg, out, err := t.RecordCompletion(ctx, enr.ID, lessonID, minutes)
	if err != nil {
		return CompletionView{}, err
	}
	return CompletionView{Progress: prg, CompletionStatus: out.Enrollment.Status}, nil
}
