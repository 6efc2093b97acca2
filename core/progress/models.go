package progress

import (
	"context"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/juniordw/rotasi-lms-sub000/core"
	"github.com/juniordw/rotasi-lms-sub000/core/course"
	"github.com/juniordw/rotasi-lms-sub000/core/enrollment"
)

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

var ErrNotFound = core.NewNotFoundError("progress not found")

type (
	Progress struct {
		ID               int64     `json:"-" db:"id"`
		EnrollmentID     int64     `json:"-" db:"enrollment_id"`
		LessonID         int64     `json:"-" db:"lesson_id"`
		Status           Status    `json:"status" db:"status"`
		LastAccessed     time.Time `json:"last_accessed" db:"last_accessed"`
		TimeSpentMinutes int       `json:"time_spent_minutes" db:"time_spent_minutes"`
		CompletedAt      null.Time `json:"completed_at" db:"completed_at"`
	}

	// LessonView is a lesson as seen by the caller. Progress is only set for enrolled learners.
	LessonView struct {
		course.Lesson
		Progress *Progress `json:"progress,omitempty"`
	}

	// CompletionView is the outcome of marking a lesson complete.
	CompletionView struct {
		Progress         Progress          `json:"progress"`
		CompletionStatus enrollment.Status `json:"completionStatus"`
	}

	Repository interface {
		// Touch creates an in_progress row or refreshes last_accessed. It never downgrades a completed row.
		Touch(ctx context.Context, enrollmentID, lessonID int64, at time.Time, exec ...core.DBExecutor) (Progress, error)
		// Complete moves the row to completed with a compare-and-set on status.
		// minutes are only accumulated by the call that performs the transition, which is reported by the bool.
		Complete(ctx context.Context, enrollmentID, lessonID int64, minutes int, at time.Time, exec ...core.DBExecutor) (Progress, bool, error)
		GetProgress(ctx context.Context, enrollmentID, lessonID int64, exec ...core.DBExecutor) (Progress, error)
		CompletedLessonIDs(ctx context.Context, enrollmentID int64, exec ...core.DBExecutor) ([]int64, error)
	}
)
