package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/juniordw/rotasi-lms-sub000/core"
	"github.com/juniordw/rotasi-lms-sub000/core/enrollment"
)

const enrollmentColumns = `id, learner_id, course_id, status, enrollment_date, completion_date, score`

type enrollmentRepository struct {
	base
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(exec core.DBExecutor) *enrollmentRepository {
	return &enrollmentRepository{base{exec: exec}}
}

func (repo enrollmentRepository) GetOrCreate(ctx context.Context, learnerID, courseID int64, at time.Time, exec ...core.DBExecutor) (enrollment.Enrollment, bool, error) {
	ex := repo.getExec(exec)
	q := ex.Rebind(`
		INSERT INTO enrollments (learner_id, course_id, status, enrollment_date) VALUES (?, ?, ?, ?)
		ON CONFLICT (learner_id, course_id) DO NOTHING
		RETURNING id`)

	var id int64
	err := ex.QueryRowxContext(ctx, q, learnerID, courseID, enrollment.StatusNotStarted, at).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		enr, err := repo.GetByLearnerCourse(ctx, learnerID, courseID, ex)
		return enr, false, err
	case err != nil:
		return enrollment.Enrollment{}, false, errors.Wrap(err, "inserting enrollment")
	}

	enr, err := repo.GetEnrollment(ctx, id, ex)
	return enr, true, err
}

func (repo enrollmentRepository) GetEnrollment(ctx context.Context, id int64, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	var enr enrollment.Enrollment
	err := sqlxGet(ctx, repo.getExec(exec), &enr, `SELECT `+enrollmentColumns+` FROM enrollments WHERE id = ?`, id)
	if err != nil {
		return enrollment.Enrollment{}, trapNoRowsErr(err, enrollment.ErrNotFound, "getting enrollment")
	}
	return enr, nil
}

func (repo enrollmentRepository) GetByLearnerCourse(ctx context.Context, learnerID, courseID int64, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	var enr enrollment.Enrollment
	err := sqlxGet(ctx, repo.getExec(exec), &enr,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE learner_id = ? AND course_id = ?`, learnerID, courseID)
	if err != nil {
		return enrollment.Enrollment{}, trapNoRowsErr(err, enrollment.ErrNotFound, "getting enrollment")
	}
	return enr, nil
}

func (repo enrollmentRepository) LockEnrollment(ctx context.Context, id int64, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	ex := repo.getExec(exec)
	var enr enrollment.Enrollment
	err := sqlxGet(ctx, ex, &enr, `SELECT `+enrollmentColumns+` FROM enrollments WHERE id = ?`+forUpdate(ex), id)
	if err != nil {
		return enrollment.Enrollment{}, trapNoRowsErr(err, enrollment.ErrNotFound, "locking enrollment")
	}
	return enr, nil
}

func (repo enrollmentRepository) Advance(ctx context.Context, id int64, to enrollment.Status, at time.Time, exec ...core.DBExecutor) (bool, error) {
	ex := repo.getExec(exec)
	from := to.Precedents()
	if len(from) == 0 {
		return false, nil
	}

	var (
		q    string
		args []interface{}
		err  error
	)
	if to == enrollment.StatusCompleted {
		q, args, err = in(ex, `UPDATE enrollments SET status = ?, completion_date = ? WHERE id = ? AND status IN (?)`, to, at, id, from)
	} else {
		q, args, err = in(ex, `UPDATE enrollments SET status = ? WHERE id = ? AND status IN (?)`, to, id, from)
	}
	if err != nil {
		return false, errors.Wrap(err, "building enrollment update")
	}

	res, err := ex.ExecContext(ctx, q, args...)
	if err != nil {
		return false, errors.Wrap(err, "advancing enrollment")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "advancing enrollment")
	}
	return n == 1, nil
}

func (repo enrollmentRepository) SetScore(ctx context.Context, id int64, score null.Float64, exec ...core.DBExecutor) error {
	ex := repo.getExec(exec)
	_, err := ex.ExecContext(ctx, ex.Rebind(`UPDATE enrollments SET score = ? WHERE id = ?`), score, id)
	return errors.Wrap(err, "setting enrollment score")
}
