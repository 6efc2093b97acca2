package enrollment

import (
	"context"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/juniordw/rotasi-lms-sub000/core"
	"github.com/juniordw/rotasi-lms-sub000/core/policy"
)

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

var (
	// errors
	ErrNotFound    = core.NewNotFoundError("enrollment not found")
	ErrNotEnrolled = policy.ErrNotEnrolled

	ranks = map[Status]int{StatusNotStarted: 0, StatusInProgress: 1, StatusCompleted: 2}
)

// Before reports whether s comes strictly before other in not_started → in_progress → completed.
func (s Status) Before(other Status) bool {
	return ranks[s] < ranks[other]
}

// Precedents lists the statuses an enrollment may advance from to reach s.
func (s Status) Precedents() []Status {
	prev := make([]Status, 0, 2)
	for _, st := range []Status{StatusNotStarted, StatusInProgress, StatusCompleted} {
		if st.Before(s) {
			prev = append(prev, st)
		}
	}
	return prev
}

type (
	Enrollment struct {
		ID             int64        `json:"id" db:"id"`
		LearnerID      int64        `json:"learner_id" db:"learner_id"`
		CourseID       int64        `json:"course_id" db:"course_id"`
		Status         Status       `json:"status" db:"status"`
		EnrollmentDate time.Time    `json:"enrollment_date" db:"enrollment_date"`
		CompletionDate null.Time    `json:"completion_date" db:"completion_date"`
		Score          null.Float64 `json:"score" db:"score"`
	}

	Repository interface {
		// GetOrCreate returns the (learner, course) enrollment, creating it when absent.
		GetOrCreate(ctx context.Context, learnerID, courseID int64, at time.Time, exec ...core.DBExecutor) (Enrollment, bool, error)
		GetEnrollment(ctx context.Context, id int64, exec ...core.DBExecutor) (Enrollment, error)
		GetByLearnerCourse(ctx context.Context, learnerID, courseID int64, exec ...core.DBExecutor) (Enrollment, error)
		// LockEnrollment reads the enrollment, holding a row lock until the transaction ends where the engine supports it.
		LockEnrollment(ctx context.Context, id int64, exec ...core.DBExecutor) (Enrollment, error)
		// Advance moves the enrollment forward to `to`. It reports false when the enrollment was already there or beyond.
		Advance(ctx context.Context, id int64, to Status, at time.Time, exec ...core.DBExecutor) (bool, error)
		SetScore(ctx context.Context, id int64, score null.Float64, exec ...core.DBExecutor) error
	}
)
