package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/juniordw/rotasi-lms-sub000/core"
	"github.com/juniordw/rotasi-lms-sub000/core/notification"
)

const notificationColumns = `id, user_id, type, message, link, created_at, sent_at`

type notificationRepository struct {
	base
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(exec core.DBExecutor) *notificationRepository {
	return &notificationRepository{base{exec: exec}}
}

func (repo notificationRepository) CreateNotification(ctx context.Context, n notification.Notification, exec ...core.DBExecutor) (notification.Notification, error) {
	ex := repo.getExec(exec)
	if n.CreatedAt.IsZero() {
		n.CreatedAt = core.Now()
	}
	q := ex.Rebind(`INSERT INTO notifications (user_id, type, message, link, created_at) VALUES (?, ?, ?, ?, ?) RETURNING id`)
	if err := ex.QueryRowxContext(ctx, q, n.UserID, n.Type, n.Message, n.Link, n.CreatedAt).Scan(&n.ID); err != nil {
		return notification.Notification{}, errors.Wrap(err, "inserting notification")
	}
	return n, nil
}

func (repo notificationRepository) QueryUnsent(ctx context.Context, limit int, exec ...core.DBExecutor) ([]notification.Notification, error) {
	notifs := make([]notification.Notification, 0)
	err := sqlxSelect(ctx, repo.getExec(exec), &notifs,
		`SELECT `+notificationColumns+` FROM notifications WHERE sent_at IS NULL ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying unsent notifications")
	}
	return notifs, nil
}

func (repo notificationRepository) QueryByUser(ctx context.Context, userID int64, exec ...core.DBExecutor) ([]notification.Notification, error) {
	notifs := make([]notification.Notification, 0)
	err := sqlxSelect(ctx, repo.getExec(exec), &notifs,
		`SELECT `+notificationColumns+` FROM notifications WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	return notifs, nil
}

func (repo notificationRepository) MarkSent(ctx context.Context, id int64, at time.Time, exec ...core.DBExecutor) (bool, error) {
	ex := repo.getExec(exec)
	res, err := ex.ExecContext(ctx, ex.Rebind(`UPDATE notifications SET sent_at = ? WHERE id = ? AND sent_at IS NULL`), at, id)
	if err != nil {
		return false, errors.Wrap(err, "marking notification sent")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "marking notification sent")
	}
	return n == 1, nil
}
