// Package completion decides when an enrollment is complete and drives the enrollment lifecycle.
package completion

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/juniordw/rotasi-lms-sub000/core"
	"github.com/juniordw/rotasi-lms-sub000/core/certificate"
	"github.com/juniordw/rotasi-lms-sub000/core/course"
	"github.com/juniordw/rotasi-lms-sub000/core/enrollment"
	"github.com/juniordw/rotasi-lms-sub000/core/notification"
)

type Decision int

const (
	NoOp Decision = iota
	MarkInProgress
	MarkCompleted
)

func (d Decision) String() string {
	switch d {
	case MarkInProgress:
		return "mark_in_progress"
	case MarkCompleted:
		return "mark_completed"
	default:
		return "no_op"
	}
}

// Decide applies the completion rule: the enrollment completes once every required lesson is
// completed, and starts once any lesson is. A course without required lessons never completes here.
func Decide(required, completed []int64, status enrollment.Status) Decision {
	if status == enrollment.StatusCompleted {
		return NoOp
	}
	done := make(map[int64]struct{}, len(completed))
	for _, id := range completed {
		done[id] = struct{}{}
	}

	if len(required) > 0 {
		all := true
		for _, id := range required {
			if _, ok := done[id]; !ok {
				all = false
				break
			}
		}
		if all {
			return MarkCompleted
		}
	}
	if len(done) > 0 && status == enrollment.StatusNotStarted {
		return MarkInProgress
	}
	return NoOp
}

// ProgressReader lists the lessons an enrollment has completed.
type ProgressReader interface {
	CompletedLessonIDs(ctx context.Context, enrollmentID int64, exec ...core.DBExecutor) ([]int64, error)
}

// Outcome reports what an evaluation changed.
type Outcome struct {
	Enrollment  enrollment.Enrollment
	Decision    Decision
	Completed   bool // the enrollment transitioned to completed during this evaluation
	Certificate *certificate.Certificate
}

type Evaluator struct {
	enrolRepo    enrollment.Repository
	courseRepo   course.Repository
	progressRepo ProgressReader
	notifRepo    notification.Repository
	notifier     notification.Emitter
	issuer       *certificate.Issuer
	logger       core.Logger
}

func NewEvaluator(
	enrolRepo enrollment.Repository,
	courseRepo course.Repository,
	progressRepo ProgressReader,
	notifRepo notification.Repository,
	notifier notification.Emitter,
	issuer *certificate.Issuer,
	logger core.Logger,
) *Evaluator {
	return &Evaluator{
		enrolRepo:    enrolRepo,
		courseRepo:   courseRepo,
		progressRepo: progressRepo,
		notifRepo:    notifRepo,
		notifier:     notifier,
		issuer:       issuer,
		logger:       logger,
	}
}

// Evaluate re-derives the enrollment status inside tx. The caller is expected to hold the
// enrollment lock (enrollment.Repository.LockEnrollment) for the duration of tx.
func (ev *Evaluator) Evaluate(ctx context.Context, tx core.DBExecutor, enrollmentID int64) (Outcome, error) {
	enr, err := ev.enrolRepo.GetEnrollment(ctx, enrollmentID, tx)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "getting enrollment")
	}
	required, err := ev.courseRepo.RequiredLessonIDs(ctx, enr.CourseID, tx)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "getting required lessons")
	}
	completed, err := ev.progressRepo.CompletedLessonIDs(ctx, enr.ID, tx)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "getting completed lessons")
	}

	out := Outcome{Enrollment: enr, Decision: Decide(required, completed, enr.Status)}
	switch out.Decision {
	case MarkCompleted:
		return ev.complete(ctx, tx, enr)
	case MarkInProgress:
		if _, err = ev.enrolRepo.Advance(ctx, enr.ID, enrollment.StatusInProgress, core.Now(), tx); err != nil {
			return Outcome{}, errors.Wrap(err, "starting enrollment")
		}
		out.Enrollment, err = ev.enrolRepo.GetEnrollment(ctx, enr.ID, tx)
		return out, errors.Wrap(err, "reloading enrollment")
	}
	return out, nil
}

// complete flips the enrollment to completed, then records the "course_completed" notification and
// the pending certificate in the same transaction. Only the caller performing the flip does so.
func (ev *Evaluator) complete(ctx context.Context, tx core.DBExecutor, enr enrollment.Enrollment) (Outcome, error) {
	out := Outcome{Enrollment: enr, Decision: MarkCompleted}

	advanced, err := ev.enrolRepo.Advance(ctx, enr.ID, enrollment.StatusCompleted, core.Now(), tx)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "completing enrollment")
	}
	if out.Enrollment, err = ev.enrolRepo.GetEnrollment(ctx, enr.ID, tx); err != nil {
		return Outcome{}, errors.Wrap(err, "reloading enrollment")
	}
	if !advanced {
		return out, nil
	}
	out.Completed = true

	crs, err := ev.courseRepo.GetCourse(ctx, enr.CourseID, tx)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "getting course")
	}
	msg := fmt.Sprintf("Congratulations! You have completed %q.", crs.Title)
	link := fmt.Sprintf("/courses/%d", crs.ID)
	n := notification.New(enr.LearnerID, notification.TypeCourseCompleted, msg, link)
	if _, err = ev.notifRepo.CreateNotification(ctx, n, tx); err != nil {
		return Outcome{}, errors.Wrap(err, "recording completion notification")
	}

	cert, _, err := ev.issuer.Ensure(ctx, tx, enr.LearnerID, enr.CourseID)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "issuing certificate")
	}
	out.Certificate = &cert
	return out, nil
}

// AfterCommit runs the side effects of committed outcomes: notification delivery and
// certificate rendering. It never fails the request.
func (ev *Evaluator) AfterCommit(ctx context.Context, outcomes ...Outcome) []Outcome {
	ev.notifier.Flush(ctx)
	for i, out := range outcomes {
		if out.Completed {
			ev.logger.Info(fmt.Sprintf("enrollment %d completed course %d", out.Enrollment.ID, out.Enrollment.CourseID))
		}
		if out.Certificate != nil {
			cert := ev.issuer.Finalize(ctx, *out.Certificate)
			outcomes[i].Certificate = &cert
		}
	}
	return outcomes
}
