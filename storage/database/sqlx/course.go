package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/juniordw/rotasi-lms-sub000/core"
	"github.com/juniordw/rotasi-lms-sub000/core/course"
)

const lessonColumns = `l.id, l.module_id, m.course_id, l.title, l.type, l.content, l.video_url,
	l.duration_minutes, l.is_required, l.order_number`

type courseRepository struct {
	base
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(exec core.DBExecutor) *courseRepository {
	return &courseRepository{base{exec: exec}}
}

func (repo courseRepository) CreateCourse(ctx context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	ex := repo.getExec(exec)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = core.Now()
	}
	q := ex.Rebind(`INSERT INTO courses (title, description, instructor_id, created_at) VALUES (?, ?, ?, ?) RETURNING id`)
	if err := ex.QueryRowxContext(ctx, q, c.Title, c.Description, c.InstructorID, c.CreatedAt).Scan(&c.ID); err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (repo courseRepository) CreateModule(ctx context.Context, m course.Module, exec ...core.DBExecutor) (course.Module, error) {
	ex := repo.getExec(exec)
	q := ex.Rebind(`INSERT INTO modules (course_id, title, order_number) VALUES (?, ?, ?) RETURNING id`)
	if err := ex.QueryRowxContext(ctx, q, m.CourseID, m.Title, m.OrderNumber).Scan(&m.ID); err != nil {
		return course.Module{}, errors.Wrap(err, "inserting module")
	}
	return m, nil
}

func (repo courseRepository) CreateLesson(ctx context.Context, l course.Lesson, exec ...core.DBExecutor) (course.Lesson, error) {
	ex := repo.getExec(exec)
	q := ex.Rebind(`
		INSERT INTO lessons (module_id, title, type, content, video_url, duration_minutes, is_required, order_number)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	row := ex.QueryRowxContext(ctx, q, l.ModuleID, l.Title, l.Type, l.Content, l.VideoURL, l.DurationMinutes, l.IsRequired, l.OrderNumber)
	if err := row.Scan(&l.ID); err != nil {
		return course.Lesson{}, errors.Wrap(err, "inserting lesson")
	}
	return repo.GetLesson(ctx, l.ID, ex)
}

func (repo courseRepository) GetCourse(ctx context.Context, id int64, exec ...core.DBExecutor) (course.Course, error) {
	var c course.Course
	err := sqlxGet(ctx, repo.getExec(exec), &c,
		`SELECT id, title, description, instructor_id, created_at FROM courses WHERE id = ?`, id)
	if err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrCourseNotFound, "getting course")
	}
	return c, nil
}

func (repo courseRepository) GetLesson(ctx context.Context, id int64, exec ...core.DBExecutor) (course.Lesson, error) {
	var l course.Lesson
	err := sqlxGet(ctx, repo.getExec(exec), &l,
		`SELECT `+lessonColumns+` FROM lessons l JOIN modules m ON m.id = l.module_id WHERE l.id = ?`, id)
	if err != nil {
		return course.Lesson{}, trapNoRowsErr(err, course.ErrLessonNotFound, "getting lesson")
	}
	return l, nil
}

func (repo courseRepository) RequiredLessonIDs(ctx context.Context, courseID int64, exec ...core.DBExecutor) ([]int64, error) {
	ids := make([]int64, 0)
	err := sqlxSelect(ctx, repo.getExec(exec), &ids, `
		SELECT l.id FROM lessons l
		JOIN modules m ON m.id = l.module_id
		WHERE m.course_id = ? AND l.is_required = ?
		ORDER BY l.id`, courseID, true)
	if err != nil {
		return nil, errors.Wrap(err, "querying required lessons")
	}
	return ids, nil
}
