package sqlxrepos

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/juniordw/rotasi-lms-sub000/core"
	"github.com/juniordw/rotasi-lms-sub000/core/certificate"
)

const certificateSelect = `
	SELECT c.id, c.learner_id, c.course_id, c.serial, c.status, c.issue_date, c.expiration_date, c.certificate_url,
		u.name AS learner_name, co.title AS course_title, co.instructor_id
	FROM certificates c
	JOIN users u ON u.id = c.learner_id
	JOIN courses co ON co.id = c.course_id`

var certificateOrderings = map[string]string{
	"issue_date":   "c.issue_date",
	"course_title": "co.title",
	"user_name":    "u.name",
	"status":       "c.status",
}

type certificateRepository struct {
	base
}

var _ certificate.Repository = (*certificateRepository)(nil) // interface compliance check

func NewCertificateRepository(exec core.DBExecutor) *certificateRepository {
	return &certificateRepository{base{exec: exec}}
}

func (repo certificateRepository) InsertIfAbsent(ctx context.Context, c certificate.Certificate, exec ...core.DBExecutor) (certificate.Certificate, bool, error) {
	ex := repo.getExec(exec)
	q := ex.Rebind(`
		INSERT INTO certificates (id, learner_id, course_id, serial, status, issue_date, expiration_date, certificate_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (learner_id, course_id) DO NOTHING`)
	res, err := ex.ExecContext(ctx, q, c.ID, c.LearnerID, c.CourseID, c.Serial, c.Status, c.IssueDate, c.ExpirationDate, c.URL)
	if err != nil {
		return certificate.Certificate{}, false, errors.Wrap(err, "inserting certificate")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return certificate.Certificate{}, false, errors.Wrap(err, "inserting certificate")
	}

	stored, err := repo.GetByLearnerCourse(ctx, c.LearnerID, c.CourseID, ex)
	return stored, n == 1, err
}

func (repo certificateRepository) GetCertificate(ctx context.Context, id string, exec ...core.DBExecutor) (certificate.Certificate, error) {
	var c certificate.Certificate
	err := sqlxGet(ctx, repo.getExec(exec), &c, certificateSelect+` WHERE c.id = ?`, id)
	if err != nil {
		return certificate.Certificate{}, trapNoRowsErr(err, certificate.ErrNotFound, "getting certificate")
	}
	return c, nil
}

func (repo certificateRepository) GetByLearnerCourse(ctx context.Context, learnerID, courseID int64, exec ...core.DBExecutor) (certificate.Certificate, error) {
	var c certificate.Certificate
	err := sqlxGet(ctx, repo.getExec(exec), &c, certificateSelect+` WHERE c.learner_id = ? AND c.course_id = ?`, learnerID, courseID)
	if err != nil {
		return certificate.Certificate{}, trapNoRowsErr(err, certificate.ErrNotFound, "getting certificate")
	}
	return c, nil
}

func (repo certificateRepository) SetArtifact(ctx context.Context, id, from, to string, exec ...core.DBExecutor) (bool, error) {
	ex := repo.getExec(exec)
	q := ex.Rebind(`UPDATE certificates SET certificate_url = ?, status = ? WHERE id = ? AND certificate_url = ?`)
	res, err := ex.ExecContext(ctx, q, to, certificate.StatusIssued, id, from)
	if err != nil {
		return false, errors.Wrap(err, "updating certificate")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "updating certificate")
	}
	if n == 0 {
		if _, err = repo.GetCertificate(ctx, id, ex); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (repo certificateRepository) QueryCertificates(ctx context.Context, filter certificate.Filter, exec ...core.DBExecutor) ([]certificate.Certificate, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.LearnerID != 0 {
		where = append(where, "c.learner_id = ?")
		args = append(args, filter.LearnerID)
	}
	if filter.InstructorID != 0 {
		where = append(where, "co.instructor_id = ?")
		args = append(args, filter.InstructorID)
	}

	q := certificateSelect
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += orderBy(filter.Orderings, certificateOrderings, "c.issue_date DESC, c.id")

	certs := make([]certificate.Certificate, 0)
	if err := sqlxSelect(ctx, repo.getExec(exec), &certs, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying certificates")
	}
	return certs, nil
}
