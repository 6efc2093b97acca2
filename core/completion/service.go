package completion

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/juniordw/rotasi-lms-sub000/core"
	"github.com/juniordw/rotasi-lms-sub000/core/course"
	"github.com/juniordw/rotasi-lms-sub000/core/enrollment"
	"github.com/juniordw/rotasi-lms-sub000/core/notification"
	"github.com/juniordw/rotasi-lms-sub000/core/policy"
	"github.com/juniordw/rotasi-lms-sub000/core/user"
)

var ErrHasRequiredLessons = core.NewValidationError(errors.New("course has required lessons; it completes from lesson progress"))

// Service drives the enrollment lifecycle around the Evaluator: enrolling learners and
// completing courses that have no required lessons.
type Service struct {
	db         core.DB
	enrolRepo  enrollment.Repository
	courseRepo course.Repository
	userRepo   user.Repository
	notifRepo  notification.Repository
	evaluator  *Evaluator
	policy     string
}

func NewService(
	db core.DB,
	enrolRepo enrollment.Repository,
	courseRepo course.Repository,
	userRepo user.Repository,
	notifRepo notification.Repository,
	evaluator *Evaluator,
	conf *core.Config,
) *Service {
	return &Service{
		db:         db,
		enrolRepo:  enrolRepo,
		courseRepo: courseRepo,
		userRepo:   userRepo,
		notifRepo:  notifRepo,
		evaluator:  evaluator,
		policy:     conf.Completion.EmptyCoursePolicy,
	}
}

// Enroll registers learnerID in courseID. Enrolling twice returns the existing enrollment and
// notifies nobody. Under the on_enroll policy a course without required lessons completes at once.
func (svc *Service) Enroll(ctx context.Context, learnerID, courseID int64, caller policy.Principal) (enrollment.Enrollment, error) {
	if err := policy.Authorize(caller, policy.Enroll, policy.Enrollment, policy.Facts{LearnerID: learnerID}); err != nil {
		return enrollment.Enrollment{}, err
	}
	learner, err := svc.userRepo.GetUser(ctx, learnerID)
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "getting learner")
	}
	crs, err := svc.courseRepo.GetCourse(ctx, courseID)
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "getting course")
	}

	var enr enrollment.Enrollment
	var out Outcome
	err = core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var created bool
		enr, created, err = svc.enrolRepo.GetOrCreate(ctx, learnerID, courseID, core.Now(), tx)
		if err != nil {
			return errors.Wrap(err, "creating enrollment")
		}
		if !created {
			return nil
		}

		link := fmt.Sprintf("/courses/%d", crs.ID)
		notifs := []notification.Notification{
			notification.New(learnerID, notification.TypeEnrollment, fmt.Sprintf("You are now enrolled in %q.", crs.Title), link),
			notification.New(crs.InstructorID, notification.TypeNewStudent, fmt.Sprintf("%s joined %q.", learner.Name, crs.Title), link),
		}
		for _, n := range notifs {
			if _, err = svc.notifRepo.CreateNotification(ctx, n, tx); err != nil {
				return errors.Wrap(err, "recording enrollment notification")
			}
		}

		if svc.policy != core.EmptyCourseOnEnrol {
			return nil
		}
		required, err := svc.courseRepo.RequiredLessonIDs(ctx, courseID, tx)
		if err != nil {
			return errors.Wrap(err, "getting required lessons")
		}
		if len(required) > 0 {
			return nil
		}
		if out, err = svc.evaluator.complete(ctx, tx, enr); err != nil {
			return err
		}
		enr = out.Enrollment
		return nil
	})
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "enrolling")
	}

	svc.evaluator.AfterCommit(ctx, out)
	return enr, nil
}

// CompleteManually completes an enrollment whose course has no required lessons.
// Courses with required lessons only complete from lesson progress.
func (svc *Service) CompleteManually(ctx context.Context, enrollmentID int64, caller policy.Principal) (enrollment.Enrollment, error) {
	enr, err := svc.enrolRepo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "getting enrollment")
	}
	crs, err := svc.courseRepo.GetCourse(ctx, enr.CourseID)
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "getting course")
	}
	if err = policy.Authorize(caller, policy.Complete, policy.Enrollment, policy.Facts{OwnerID: crs.InstructorID}); err != nil {
		return enrollment.Enrollment{}, err
	}

	var out Outcome
	err = core.WithTx(ctx, svc.db, func(tx core.DBExecutor) error {
		required, err := svc.courseRepo.RequiredLessonIDs(ctx, crs.ID, tx)
		if err != nil {
			return errors.Wrap(err, "getting required lessons")
		}
		if len(required) > 0 {
			return ErrHasRequiredLessons
		}
		if enr, err = svc.enrolRepo.LockEnrollment(ctx, enrollmentID, tx); err != nil {
			return errors.Wrap(err, "locking enrollment")
		}
		out, err = svc.evaluator.complete(ctx, tx, enr)
		return err
	})
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "completing enrollment")
	}

	svc.evaluator.AfterCommit(ctx, out)
	return out.Enrollment, nil
}
