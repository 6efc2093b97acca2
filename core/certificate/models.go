package certificate

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/juniordw/rotasi-lms-sub000/core"
)

type Status string

const (
	// StatusPending certificates exist but their document has not been rendered yet.
	StatusPending Status = "pending"
	StatusIssued  Status = "issued"
)

var (
	// errors
	ErrNotFound        = core.NewNotFoundError("certificate not found")
	ErrNotCompleted    = core.NewAuthorizationError("course not completed yet")
	ErrArtifactMissing = errors.New("certificate artifact missing")
	ErrPending         = core.NewConflictError("certificate document is still being rendered")
)

type (
	Certificate struct {
		ID             string    `json:"id" db:"id"`
		LearnerID      int64     `json:"user_id" db:"learner_id"`
		CourseID       int64     `json:"course_id" db:"course_id"`
		Serial         string    `json:"serial" db:"serial"`
		Status         Status    `json:"status" db:"status"`
		IssueDate      time.Time `json:"issue_date" db:"issue_date"`
		ExpirationDate null.Time `json:"expiration_date" db:"expiration_date"`
		URL            string    `json:"certificate_url" db:"certificate_url"`

		// joined
		LearnerName  string `json:"user_name" db:"learner_name"`
		CourseTitle  string `json:"course_title" db:"course_title"`
		InstructorID int64  `json:"-" db:"instructor_id"`
	}

	// Verification is the public view of a certificate.
	Verification struct {
		CertificateID  string    `json:"certificateId"`
		UserName       string    `json:"userName"`
		CourseTitle    string    `json:"courseTitle"`
		IssueDate      time.Time `json:"issueDate"`
		ExpirationDate null.Time `json:"expirationDate"`
	}

	// Artifact is a rendered certificate document.
	Artifact struct {
		Filename    string
		ContentType string
		Content     []byte
	}

	// Document holds the renderer inputs. Equal documents must render the same visible output.
	Document struct {
		LearnerName string    `json:"learnerName"`
		CourseTitle string    `json:"courseTitle"`
		IssueDate   time.Time `json:"issueDate"`
		Serial      string    `json:"serial"`
	}

	// Renderer turns a Document into a stored artifact and returns its opaque reference.
	Renderer interface {
		Render(ctx context.Context, doc Document) (string, error)
	}

	// ArtifactStore reads rendered artifacts back. Open returns ErrArtifactMissing for unknown references.
	ArtifactStore interface {
		Open(ctx context.Context, ref string) (io.ReadCloser, error)
	}

	Filter struct {
		LearnerID    int64
		InstructorID int64
		Orderings    []core.DBOrdering
	}

	Repository interface {
		// InsertIfAbsent stores c unless the (learner, course) pair already has a certificate.
		// Either way the stored certificate is returned; the bool reports whether c was inserted.
		InsertIfAbsent(ctx context.Context, c Certificate, exec ...core.DBExecutor) (Certificate, bool, error)
		GetCertificate(ctx context.Context, id string, exec ...core.DBExecutor) (Certificate, error)
		GetByLearnerCourse(ctx context.Context, learnerID, courseID int64, exec ...core.DBExecutor) (Certificate, error)
		// SetArtifact moves the certificate to issued with reference to, provided its current
		// reference is still from. The bool is false when another caller got there first.
		SetArtifact(ctx context.Context, id, from, to string, exec ...core.DBExecutor) (bool, error)
		QueryCertificates(ctx context.Context, filter Filter, exec ...core.DBExecutor) ([]Certificate, error)
	}
)

func (c Certificate) Document() Document {
	return Document{
		LearnerName: c.LearnerName,
		CourseTitle: c.CourseTitle,
		IssueDate:   c.IssueDate,
		Serial:      c.Serial,
	}
}

func (c Certificate) Verification() Verification {
	return Verification{
		CertificateID:  c.ID,
		UserName:       c.LearnerName,
		CourseTitle:    c.CourseTitle,
		IssueDate:      c.IssueDate,
		ExpirationDate: c.ExpirationDate,
	}
}
