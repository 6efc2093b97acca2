package certificate

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"golang.org/x/sync/singleflight"

	"github.com/juniordw/rotasi-lms-sub000/core"
	"github.com/juniordw/rotasi-lms-sub000/core/course"
	"github.com/juniordw/rotasi-lms-sub000/core/enrollment"
	"github.com/juniordw/rotasi-lms-sub000/core/notification"
	"github.com/juniordw/rotasi-lms-sub000/core/policy"
	"github.com/juniordw/rotasi-lms-sub000/core/user"
)

const contentTypePDF = "application/pdf"

// Deps groups the collaborators of an Issuer.
type Deps struct {
	DB         core.DB
	Repo       Repository
	EnrolRepo  enrollment.Repository
	CourseRepo course.Repository
	UserRepo   user.Repository
	NotifRepo  notification.Repository
	Notifier   notification.Emitter
	Renderer   Renderer
	Store      ArtifactStore
	Logger     core.Logger
}

type Issuer struct {
	Deps
	conf    core.CertificateConfig
	renders singleflight.Group
}

func NewIssuer(deps Deps, conf *core.Config) *Issuer {
	return &Issuer{Deps: deps, conf: conf.Certificate}
}

// Ensure creates the pending certificate of (learnerID, courseID) inside tx unless it exists,
// and records the "certificate" notification when it does get created.
// The document is rendered after commit by Finalize.
func (iss *Issuer) Ensure(ctx context.Context, tx core.DBExecutor, learnerID, courseID int64) (Certificate, bool, error) {
	now := core.Now()
	cert := Certificate{
		ID:        uuid.New().String(),
		LearnerID: learnerID,
		CourseID:  courseID,
		Serial:    Serial(learnerID, courseID),
		Status:    StatusPending,
		IssueDate: now,
	}
	if iss.conf.Validity > 0 {
		cert.ExpirationDate = null.TimeFrom(now.Add(iss.conf.Validity))
	}

	cert, created, err := iss.Repo.InsertIfAbsent(ctx, cert, tx)
	if err != nil {
		return Certificate{}, false, errors.Wrap(err, "inserting certificate")
	}
	if created {
		msg := fmt.Sprintf("Your certificate for %q is ready.", cert.CourseTitle)
		link := "/certificates/" + cert.ID
		if _, err = iss.NotifRepo.CreateNotification(ctx, notification.New(learnerID, notification.TypeCertificate, msg, link), tx); err != nil {
			return Certificate{}, false, errors.Wrap(err, "recording certificate notification")
		}
	}
	return cert, created, nil
}

// Issue returns the certificate of (learnerID, courseID), creating it if needed.
// Learners need a completed enrollment; the course instructor and admins may issue manually.
// Issuing twice is not an error: the existing certificate is returned unchanged.
func (iss *Issuer) Issue(ctx context.Context, learnerID, courseID int64, caller policy.Principal) (Certificate, error) {
	crs, err := iss.CourseRepo.GetCourse(ctx, courseID)
	if err != nil {
		return Certificate{}, errors.Wrap(err, "getting course")
	}
	facts := policy.Facts{OwnerID: crs.InstructorID, LearnerID: learnerID}
	if err = policy.Authorize(caller, policy.Issue, policy.Certificate, facts); err != nil {
		return Certificate{}, err
	}
	if _, err = iss.UserRepo.GetUser(ctx, learnerID); err != nil {
		return Certificate{}, errors.Wrap(err, "getting learner")
	}

	if scope, _ := policy.ScopeOf(caller, policy.Issue, policy.Certificate); scope == policy.ScopeSelf {
		enr, err := iss.EnrolRepo.GetByLearnerCourse(ctx, learnerID, courseID)
		if err != nil {
			if errors.Cause(err) == enrollment.ErrNotFound {
				return Certificate{}, enrollment.ErrNotEnrolled
			}
			return Certificate{}, errors.Wrap(err, "getting enrollment")
		}
		if enr.Status != enrollment.StatusCompleted {
			return Certificate{}, ErrNotCompleted
		}
	}

	var cert Certificate
	err = core.WithTx(ctx, iss.DB, func(tx core.DBExecutor) error {
		cert, _, err = iss.Ensure(ctx, tx, learnerID, courseID)
		return err
	})
	if err != nil {
		return Certificate{}, errors.Wrap(err, "issuing certificate")
	}
	iss.Notifier.Flush(ctx)

	return iss.Finalize(ctx, cert), nil
}

// Finalize renders pending certificates. The renderer runs under the configured timeout;
// when it fails or times out the certificate is returned as is, still pending.
func (iss *Issuer) Finalize(ctx context.Context, cert Certificate) Certificate {
	if cert.Status == StatusIssued && cert.URL != "" {
		return cert
	}
	ref, err := iss.render(ctx, cert)
	if err != nil {
		iss.Logger.Warn(fmt.Sprintf("certificate %s left pending: %v", cert.ID, err), err)
		return cert
	}
	cert.URL = ref
	cert.Status = StatusIssued
	return cert
}

// render calls the renderer once per certificate at a time; concurrent callers share the result.
// cert is the snapshot the caller saw: when the stored reference moved on since, that reference
// is returned and nothing is rendered.
func (iss *Issuer) render(ctx context.Context, cert Certificate) (string, error) {
	v, err, _ := iss.renders.Do(cert.ID, func() (interface{}, error) {
		stored, err := iss.Repo.GetCertificate(ctx, cert.ID)
		if err != nil {
			return "", errors.Wrap(err, "getting certificate")
		}
		if stored.URL != cert.URL {
			return stored.URL, nil
		}

		timeout := iss.conf.RenderTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		rctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		ref, err := iss.Renderer.Render(rctx, stored.Document())
		if err != nil {
			return "", errors.Wrap(err, "rendering certificate")
		}
		swapped, err := iss.Repo.SetArtifact(ctx, cert.ID, stored.URL, ref)
		if err != nil {
			return "", errors.Wrap(err, "storing certificate artifact")
		}
		if !swapped {
			if stored, err = iss.Repo.GetCertificate(ctx, cert.ID); err != nil {
				return "", errors.Wrap(err, "getting certificate")
			}
			return stored.URL, nil
		}
		return ref, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (iss *Issuer) authorize(action policy.Action, cert Certificate, caller policy.Principal) error {
	facts := policy.Facts{OwnerID: cert.InstructorID, LearnerID: cert.LearnerID}
	return policy.Authorize(caller, action, policy.Certificate, facts)
}

// Get returns a certificate visible to the caller.
func (iss *Issuer) Get(ctx context.Context, id string, caller policy.Principal) (Certificate, error) {
	cert, err := iss.Repo.GetCertificate(ctx, id)
	if err != nil {
		return Certificate{}, errors.Wrap(err, "getting certificate")
	}
	if err = iss.authorize(policy.View, cert, caller); err != nil {
		return Certificate{}, err
	}
	return cert, nil
}

// List returns the certificates visible to the caller: their own for learners,
// those of their courses for instructors, all of them for admins.
func (iss *Issuer) List(ctx context.Context, caller policy.Principal, orderings ...core.DBOrdering) ([]Certificate, error) {
	scope, ok := policy.ScopeOf(caller, policy.List, policy.Certificate)
	if !ok {
		return nil, core.ErrForbidden
	}
	filter := Filter{Orderings: orderings}
	switch scope {
	case policy.ScopeSelf:
		filter.LearnerID = caller.UserID
	case policy.ScopeOwner:
		filter.InstructorID = caller.UserID
	}
	certs, err := iss.Repo.QueryCertificates(ctx, filter)
	return certs, errors.Wrap(err, "querying certificates")
}

// Download returns the certificate document. A missing artifact is rendered again from the
// stored inputs, which yields the same document, and the stored reference is updated.
// ErrPending is returned when that rendering fails or times out.
func (iss *Issuer) Download(ctx context.Context, id string, caller policy.Principal) (Artifact, error) {
	cert, err := iss.Repo.GetCertificate(ctx, id)
	if err != nil {
		return Artifact{}, errors.Wrap(err, "getting certificate")
	}
	if err = iss.authorize(policy.Download, cert, caller); err != nil {
		return Artifact{}, err
	}

	content, err := iss.read(ctx, cert.URL)
	if errors.Cause(err) == ErrArtifactMissing {
		ref, rErr := iss.render(ctx, cert)
		if rErr != nil {
			iss.Logger.Warn(fmt.Sprintf("certificate %s still pending: %v", cert.ID, rErr), rErr)
			return Artifact{}, ErrPending
		}
		content, err = iss.read(ctx, ref)
	}
	if err != nil {
		return Artifact{}, errors.Wrap(err, "reading certificate artifact")
	}

	return Artifact{
		Filename:    Filename(cert.CourseTitle, cert.LearnerName),
		ContentType: contentTypePDF,
		Content:     content,
	}, nil
}

func (iss *Issuer) read(ctx context.Context, ref string) ([]byte, error) {
	if ref == "" {
		return nil, ErrArtifactMissing
	}
	rc, err := iss.Store.Open(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

// Verify is public: anyone holding a certificate id may check it.
func (iss *Issuer) Verify(ctx context.Context, id string) (Verification, error) {
	cert, err := iss.Repo.GetCertificate(ctx, id)
	if err != nil {
		return Verification{}, errors.Wrap(err, "getting certificate")
	}
	return cert.Verification(), nil
}
