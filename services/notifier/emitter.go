// Package notifysvc delivers the notifications recorded in the outbox table by email.
package notifysvc

import (
	"context"
	"fmt"
	"net/mail"
	"strconv"

	"github.com/juniordw/rotasi-lms-sub000/core"
	"github.com/juniordw/rotasi-lms-sub000/core/notification"
	"github.com/juniordw/rotasi-lms-sub000/core/user"
)

const batchSize = 100

var subjects = map[notification.Type]string{
	notification.TypeEnrollment:      "Enrollment confirmed",
	notification.TypeNewStudent:      "New student in your course",
	notification.TypeCourseCompleted: "Course completed",
	notification.TypeCertificate:     "Your certificate",
}

type emailEmitter struct {
	repo   notification.Repository
	users  user.Repository
	mailer core.EmailService
	logger core.Logger
}

var _ notification.Emitter = (*emailEmitter)(nil)

func NewEmailEmitter(repo notification.Repository, users user.Repository, mailer core.EmailService, logger core.Logger) *emailEmitter {
	return &emailEmitter{repo: repo, users: users, mailer: mailer, logger: logger}
}

// Flush emails every unsent notification. Each one is claimed before being sent,
// so concurrent flushes never deliver a notification twice.
func (em *emailEmitter) Flush(ctx context.Context) {
	for {
		pending, err := em.repo.QueryUnsent(ctx, batchSize)
		if err != nil {
			em.logger.Error(fmt.Sprintf("querying unsent notifications: %v", err), err)
			return
		}

		msgs := make([]*core.EmailMessage, 0, len(pending))
		for _, n := range pending {
			claimed, err := em.repo.MarkSent(ctx, n.ID, core.Now())
			if err != nil {
				em.logger.Error(fmt.Sprintf("claiming notification %d: %v", n.ID, err), err)
				return
			}
			if !claimed {
				continue
			}
			if msg := em.message(ctx, n); msg != nil {
				msgs = append(msgs, msg)
			}
		}
		if len(msgs) > 0 {
			em.mailer.SendMessages(msgs...)
		}
		if len(pending) < batchSize {
			return
		}
	}
}

func (em *emailEmitter) message(ctx context.Context, n notification.Notification) *core.EmailMessage {
	usr, err := em.users.GetUser(ctx, n.UserID)
	if err != nil {
		em.logger.Warn(fmt.Sprintf("dropping notification %d: %v", n.ID, err), err)
		return nil
	}
	subject, ok := subjects[n.Type]
	if !ok {
		subject = "Notification"
	}
	return &core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      subject,
		TemplateName: "notification",
		TemplateData: map[string]interface{}{
			"Name":    usr.Name,
			"Message": n.Message,
			"Link":    n.Link,
		},
		Categories: []string{"notification", string(n.Type)},
		Args: map[string]string{
			"notification_id": strconv.FormatInt(n.ID, 10),
			"user_id":         strconv.FormatInt(n.UserID, 10),
		},
	}
}
