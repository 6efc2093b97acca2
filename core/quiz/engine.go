package quiz

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/juniordw/rotasi-lms-sub000/core"
	"github.com/juniordw/rotasi-lms-sub000/core/completion"
	"github.com/juniordw/rotasi-lms-sub000/core/course"
	"github.com/juniordw/rotasi-lms-sub000/core/enrollment"
	"github.com/juniordw/rotasi-lms-sub000/core/policy"
	"github.com/juniordw/rotasi-lms-sub000/core/progress"
)

// Engine serves quizzes, scores submissions and keeps results in sync with grading.
type Engine struct {
	db              core.DB
	repo            Repository
	enrolRepo       enrollment.Repository
	courseRepo      course.Repository
	tracker         *progress.Tracker
	evaluator       *completion.Evaluator
	requireQuizPass bool
}

func NewEngine(
	db core.DB,
	repo Repository,
	enrolRepo enrollment.Repository,
	courseRepo course.Repository,
	tracker *progress.Tracker,
	evaluator *completion.Evaluator,
	conf *core.Config,
) *Engine {
	return &Engine{
		db:              db,
		repo:            repo,
		enrolRepo:       enrolRepo,
		courseRepo:      courseRepo,
		tracker:         tracker,
		evaluator:       evaluator,
		requireQuizPass: conf.Completion.RequireQuizPass,
	}
}

func (eng *Engine) callerEnrollment(ctx context.Context, caller policy.Principal, courseID int64) (*enrollment.Enrollment, error) {
	enr, err := eng.enrolRepo.GetByLearnerCourse(ctx, caller.UserID, courseID)
	switch {
	case err == nil:
		return &enr, nil
	case errors.Cause(err) == enrollment.ErrNotFound:
		return nil, nil
	default:
		return nil, errors.Wrap(err, "getting enrollment")
	}
}

// GetQuiz returns the quiz, its ordered questions and answers. Students only see which answers are
// correct, and their own selections, once they have submitted the quiz.
func (eng *Engine) GetQuiz(ctx context.Context, quizID int64, caller policy.Principal) (View, error) {
	qz, err := eng.repo.GetQuiz(ctx, quizID)
	if err != nil {
		return View{}, errors.Wrap(err, "getting quiz")
	}
	crs, err := eng.courseRepo.GetCourse(ctx, qz.CourseID)
	if err != nil {
		return View{}, errors.Wrap(err, "getting course")
	}
	enr, err := eng.callerEnrollment(ctx, caller, crs.ID)
	if err != nil {
		return View{}, err
	}
	facts := policy.Facts{OwnerID: crs.InstructorID, Enrolled: enr != nil}
	if err = policy.Authorize(caller, policy.View, policy.Quiz, facts); err != nil {
		return View{}, err
	}

	if !caller.IsStudent() {
		return newView(qz, true, nil)
	}

	res, err := eng.repo.GetResult(ctx, enr.ID, qz.ID)
	if errors.Cause(err) == ErrResultNotFound {
		return newView(qz, false, nil)
	} else if err != nil {
		return View{}, errors.Wrap(err, "getting result")
	}

	subs, err := eng.repo.QuerySubmissions(ctx, enr.ID, qz.ID)
	if err != nil {
		return View{}, errors.Wrap(err, "querying submissions")
	}
	own := make(map[int64]Submission, len(subs))
	for _, s := range subs {
		own[s.QuestionID] = s
	}
	view, err := newView(qz, true, own)
	if err != nil {
		return View{}, err
	}
	res.PassingScore = qz.PassingScore
	view.Result = &res
	return view, nil
}

// validateAnswers rejects payloads that do not fit the quiz, before anything is stored.
func validateAnswers(qz Quiz, answers []AnswerInput) error {
	if len(answers) == 0 && len(qz.Questions) > 0 {
		return core.NewValidationError(ErrMalformedAnswers, core.FieldError{Field: "answers", Error: "at least one answer is required"})
	}

	var flds []core.FieldError
	seen := make(map[int64]bool, len(answers))
	for i, in := range answers {
		field := fmt.Sprintf("answers[%d]", i)
		qn, ok := qz.Question(in.QuestionID)
		switch {
		case !ok:
			flds = append(flds, core.FieldError{Field: field + ".question_id", Error: "question does not belong to this quiz"})
		case seen[in.QuestionID]:
			flds = append(flds, core.FieldError{Field: field + ".question_id", Error: "question answered more than once"})
		case qn.Type.IsAutoGraded():
			if in.AnswerID == nil {
				flds = append(flds, core.FieldError{Field: field + ".answer_id", Error: "this field is required"})
			} else if _, ok := qn.Answer(*in.AnswerID); !ok {
				flds = append(flds, core.FieldError{Field: field + ".answer_id", Error: "answer does not belong to this question"})
			}
		case qn.Type == Essay:
			if in.TextAnswer == nil || core.CleanString(*in.TextAnswer) == "" {
				flds = append(flds, core.FieldError{Field: field + ".text_answer", Error: "this field is required"})
			}
		}
		seen[in.QuestionID] = true
	}
	if len(flds) > 0 {
		return core.NewValidationError(ErrMalformedAnswers, flds...)
	}
	return nil
}

// grade builds the submission set: choices are graded now, essays stay pending.
func grade(qz Quiz, enrollmentID int64, answers []AnswerInput) []Submission {
	now := core.Now()
	subs := make([]Submission, 0, len(answers))
	for _, in := range answers {
		qn, _ := qz.Question(in.QuestionID)
		sub := Submission{
			EnrollmentID: enrollmentID,
			QuestionID:   qn.ID,
			SubmittedAt:  now,
		}
		if qn.Type.IsAutoGraded() {
			correct, points := GradeChoice(qn, *in.AnswerID)
			sub.AnswerID = null.Int64From(*in.AnswerID)
			sub.IsCorrect = null.BoolFrom(correct)
			sub.PointsEarned = null.Float64From(points)
		} else {
			sub.TextAnswer = null.StringFrom(core.CleanString(*in.TextAnswer))
		}
		subs = append(subs, sub)
	}
	return subs
}

// Submit scores the enrollment's answers to the quiz and consumes the quiz lesson.
// A quiz is submitted once per enrollment: the stored result and the per-question submissions are
// both unique, and inserted in one transaction, so a concurrent retry gets ErrAlreadySubmitted.
func (eng *Engine) Submit(ctx context.Context, quizID, enrollmentID int64, answers []AnswerInput) (Result, error) {
	qz, err := eng.repo.GetQuiz(ctx, quizID)
	if err != nil {
		return Result{}, errors.Wrap(err, "getting quiz")
	}
	if err = validateAnswers(qz, answers); err != nil {
		return Result{}, err
	}
	enr, err := eng.enrolRepo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return Result{}, errors.Wrap(err, "getting enrollment")
	}
	if enr.CourseID != qz.CourseID {
		return Result{}, enrollment.ErrNotEnrolled
	}

	var res Result
	var out completion.Outcome
	err = core.WithTx(ctx, eng.db, func(tx core.DBExecutor) error {
		if _, err := eng.enrolRepo.LockEnrollment(ctx, enr.ID, tx); err != nil {
			return errors.Wrap(err, "locking enrollment")
		}

		subs := grade(qz, enr.ID, answers)
		res = Compute(qz, subs)
		res.EnrollmentID = enr.ID
		res.SubmittedAt = core.Now()
		if res.Status == ResultGraded {
			res.GradedAt = null.TimeFrom(res.SubmittedAt)
		}

		var created bool
		if res, created, err = eng.repo.InsertResult(ctx, res, tx); err != nil {
			return errors.Wrap(err, "inserting result")
		} else if !created {
			return ErrAlreadySubmitted
		}
		if _, err = eng.repo.InsertSubmissions(ctx, subs, tx); err != nil {
			return errors.Wrap(err, "inserting submissions")
		}
		if err = eng.refreshScore(ctx, tx, enr.ID); err != nil {
			return err
		}

		if !eng.requireQuizPass || res.IsPassed {
			_, out, err = eng.tracker.RecordCompletionTx(ctx, tx, enr.ID, qz.LessonID, 0)
		} else {
			_, out, err = eng.tracker.RecordAccessTx(ctx, tx, enr.ID, qz.LessonID)
		}
		return err
	})
	if err != nil {
		return Result{}, errors.Wrap(err, "submitting quiz")
	}

	eng.evaluator.AfterCommit(ctx, out)
	res.PassingScore = qz.PassingScore
	return res, nil
}

// SubmitAs submits the quiz for the calling learner's enrollment.
func (eng *Engine) SubmitAs(ctx context.Context, quizID int64, answers []AnswerInput, caller policy.Principal) (Result, error) {
	qz, err := eng.repo.GetQuiz(ctx, quizID)
	if err != nil {
		return Result{}, errors.Wrap(err, "getting quiz")
	}
	enr, err := eng.callerEnrollment(ctx, caller, qz.CourseID)
	if err != nil {
		return Result{}, err
	}
	if err = policy.Authorize(caller, policy.Submit, policy.Quiz, policy.Facts{Enrolled: enr != nil}); err != nil {
		return Result{}, err
	}
	return eng.Submit(ctx, quizID, enr.ID, answers)
}

func (eng *Engine) refreshScore(ctx context.Context, tx core.DBExecutor, enrollmentID int64) error {
	avg, err := eng.repo.AverageScore(ctx, enrollmentID, tx)
	if err != nil {
		return errors.Wrap(err, "averaging quiz scores")
	}
	if avg.Valid {
		avg.Float64 = Score(avg.Float64, 100)
	}
	return errors.Wrap(eng.enrolRepo.SetScore(ctx, enrollmentID, avg, tx), "setting enrollment score")
}

// RecomputeScoreTx re-derives the enrollment's result for the quiz from its current submissions,
// then re-evaluates completion. It is idempotent. The caller runs evaluator.AfterCommit once tx is committed.
func (eng *Engine) RecomputeScoreTx(ctx context.Context, tx core.DBExecutor, enrollmentID, quizID int64) (Result, completion.Outcome, error) {
	qz, err := eng.repo.GetQuiz(ctx, quizID, tx)
	if err != nil {
		return Result{}, completion.Outcome{}, errors.Wrap(err, "getting quiz")
	}
	prev, err := eng.repo.GetResult(ctx, enrollmentID, quizID, tx)
	if err != nil {
		return Result{}, completion.Outcome{}, errors.Wrap(err, "getting result")
	}
	subs, err := eng.repo.QuerySubmissions(ctx, enrollmentID, quizID, tx)
	if err != nil {
		return Result{}, completion.Outcome{}, errors.Wrap(err, "querying submissions")
	}

	res := Compute(qz, subs)
	res.ID = prev.ID
	res.EnrollmentID = enrollmentID
	res.SubmittedAt = prev.SubmittedAt
	if res.Status == ResultGraded {
		res.GradedAt = prev.GradedAt
		if !res.GradedAt.Valid {
			res.GradedAt = null.TimeFrom(core.Now())
		}
	}
	if err = eng.repo.UpdateResult(ctx, res, tx); err != nil {
		return Result{}, completion.Outcome{}, errors.Wrap(err, "updating result")
	}
	if err = eng.refreshScore(ctx, tx, enrollmentID); err != nil {
		return Result{}, completion.Outcome{}, err
	}

	var out completion.Outcome
	if eng.requireQuizPass && res.IsPassed {
		_, out, err = eng.tracker.RecordCompletionTx(ctx, tx, enrollmentID, qz.LessonID, 0)
	} else {
		out, err = eng.evaluator.Evaluate(ctx, tx, enrollmentID)
	}
	if err != nil {
		return Result{}, completion.Outcome{}, errors.Wrap(err, "re-evaluating completion")
	}
	return res, out, nil
}

// Recompute runs RecomputeScoreTx in its own transaction for the course instructor or an admin.
func (eng *Engine) Recompute(ctx context.Context, enrollmentID, quizID int64, caller policy.Principal) (Result, error) {
	qz, err := eng.repo.GetQuiz(ctx, quizID)
	if err != nil {
		return Result{}, errors.Wrap(err, "getting quiz")
	}
	crs, err := eng.courseRepo.GetCourse(ctx, qz.CourseID)
	if err != nil {
		return Result{}, errors.Wrap(err, "getting course")
	}
	if err = policy.Authorize(caller, policy.Recompute, policy.Quiz, policy.Facts{OwnerID: crs.InstructorID}); err != nil {
		return Result{}, err
	}

	var res Result
	var out completion.Outcome
	err = core.WithTx(ctx, eng.db, func(tx core.DBExecutor) error {
		if _, err := eng.enrolRepo.LockEnrollment(ctx, enrollmentID, tx); err != nil {
			return errors.Wrap(err, "locking enrollment")
		}
		res, out, err = eng.RecomputeScoreTx(ctx, tx, enrollmentID, quizID)
		return err
	})
	if err != nil {
		return Result{}, errors.Wrap(err, "recomputing score")
	}

	eng.evaluator.AfterCommit(ctx, out)
	res.PassingScore = qz.PassingScore
	return res, nil
}
