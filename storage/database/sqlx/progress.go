package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/juniordw/rotasi-lms-sub000/core"
	"github.com/juniordw/rotasi-lms-sub000/core/progress"
)

const progressColumns = `id, enrollment_id, lesson_id, status, last_accessed, time_spent_minutes, completed_at`

type progressRepository struct {
	base
}

var _ progress.Repository = (*progressRepository)(nil) // interface compliance check

func NewProgressRepository(exec core.DBExecutor) *progressRepository {
	return &progressRepository{base{exec: exec}}
}

func (repo progressRepository) Touch(ctx context.Context, enrollmentID, lessonID int64, at time.Time, exec ...core.DBExecutor) (progress.Progress, error) {
	ex := repo.getExec(exec)
	q := ex.Rebind(`
		INSERT INTO progress (enrollment_id, lesson_id, status, last_accessed) VALUES (?, ?, ?, ?)
		ON CONFLICT (enrollment_id, lesson_id) DO UPDATE SET last_accessed = excluded.last_accessed`)
	if _, err := ex.ExecContext(ctx, q, enrollmentID, lessonID, progress.StatusInProgress, at); err != nil {
		return progress.Progress{}, errors.Wrap(err, "upserting progress")
	}
	return repo.GetProgress(ctx, enrollmentID, lessonID, ex)
}

func (repo progressRepository) Complete(ctx context.Context, enrollmentID, lessonID int64, minutes int, at time.Time, exec ...core.DBExecutor) (progress.Progress, bool, error) {
	ex := repo.getExec(exec)
	q := ex.Rebind(`
		INSERT INTO progress (enrollment_id, lesson_id, status, last_accessed) VALUES (?, ?, ?, ?)
		ON CONFLICT (enrollment_id, lesson_id) DO NOTHING`)
	if _, err := ex.ExecContext(ctx, q, enrollmentID, lessonID, progress.StatusInProgress, at); err != nil {
		return progress.Progress{}, false, errors.Wrap(err, "creating progress")
	}

	q = ex.Rebind(`
		UPDATE progress
		SET status = ?, completed_at = ?, last_accessed = ?, time_spent_minutes = time_spent_minutes + ?
		WHERE enrollment_id = ? AND lesson_id = ? AND status <> ?`)
	res, err := ex.ExecContext(ctx, q, progress.StatusCompleted, at, at, minutes, enrollmentID, lessonID, progress.StatusCompleted)
	if err != nil {
		return progress.Progress{}, false, errors.Wrap(err, "completing progress")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return progress.Progress{}, false, errors.Wrap(err, "completing progress")
	}

	transitioned := n == 1
	if !transitioned {
		q = ex.Rebind(`UPDATE progress SET last_accessed = ? WHERE enrollment_id = ? AND lesson_id = ?`)
		if _, err = ex.ExecContext(ctx, q, at, enrollmentID, lessonID); err != nil {
			return progress.Progress{}, false, errors.Wrap(err, "touching progress")
		}
	}

	prg, err := repo.GetProgress(ctx, enrollmentID, lessonID, ex)
	return prg, transitioned, err
}

func (repo progressRepository) GetProgress(ctx context.Context, enrollmentID, lessonID int64, exec ...core.DBExecutor) (progress.Progress, error) {
	var prg progress.Progress
	err := sqlxGet(ctx, repo.getExec(exec), &prg,
		`SELECT `+progressColumns+` FROM progress WHERE enrollment_id = ? AND lesson_id = ?`, enrollmentID, lessonID)
	if err != nil {
		return progress.Progress{}, trapNoRowsErr(err, progress.ErrNotFound, "getting progress")
	}
	return prg, nil
}

func (repo progressRepository) CompletedLessonIDs(ctx context.Context, enrollmentID int64, exec ...core.DBExecutor) ([]int64, error) {
	ids := make([]int64, 0)
	err := sqlxSelect(ctx, repo.getExec(exec), &ids,
		`SELECT lesson_id FROM progress WHERE enrollment_id = ? AND status = ? ORDER BY lesson_id`,
		enrollmentID, progress.StatusCompleted)
	if err != nil {
		return nil, errors.Wrap(err, "querying completed lessons")
	}
	return ids, nil
}
