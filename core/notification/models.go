package notification

import (
	"context"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/juniordw/rotasi-lms-sub000/core"
)

type Type string

const (
	TypeEnrollment      Type = "enrollment"
	TypeNewStudent      Type = "new_student"
	TypeCourseCompleted Type = "course_completed"
	TypeCertificate     Type = "certificate"
)

type (
	Notification struct {
		ID        int64     `json:"id" db:"id"`
		UserID    int64     `json:"user_id" db:"user_id"`
		Type      Type      `json:"type" db:"type"`
		Message   string    `json:"message" db:"message"`
		Link      string    `json:"link" db:"link"`
		CreatedAt time.Time `json:"created_at" db:"created_at"`
		SentAt    null.Time `json:"sent_at" db:"sent_at"`
	}

	Repository interface {
		CreateNotification(ctx context.Context, n Notification, exec ...core.DBExecutor) (Notification, error)
		QueryUnsent(ctx context.Context, limit int, exec ...core.DBExecutor) ([]Notification, error)
		QueryByUser(ctx context.Context, userID int64, exec ...core.DBExecutor) ([]Notification, error)
		// MarkSent claims the notification for delivery. It reports false when another sender got it first.
		MarkSent(ctx context.Context, id int64, at time.Time, exec ...core.DBExecutor) (bool, error)
	}

	// Emitter delivers the notifications recorded by committed transactions.
	// Delivery is fire-and-forget: failures are logged, never returned to the request.
	Emitter interface {
		Flush(ctx context.Context)
	}
)

// New builds a notification request for userID.
func New(userID int64, typ Type, message, link string) Notification {
	return Notification{
		UserID:    userID,
		Type:      typ,
		Message:   message,
		Link:      link,
		CreatedAt: core.Now(),
	}
}
