package course

import (
	"context"
	"time"

	"github.com/juniordw/rotasi-lms-sub000/core"
)

// Lesson types
const (
	LessonVideo = "video"
	LessonText  = "text"
	LessonQuiz  = "quiz"
)

var (
	// errors
	ErrCourseNotFound = core.NewNotFoundError("course not found")
	ErrLessonNotFound = core.NewNotFoundError("lesson not found")
)

type (
	Course struct {
		ID           int64     `json:"id" db:"id"`
		Title        string    `json:"title" db:"title"`
		Description  string    `json:"description" db:"description"`
		InstructorID int64     `json:"instructor_id" db:"instructor_id"`
		CreatedAt    time.Time `json:"created_at" db:"created_at"`
	}

	Module struct {
		ID          int64  `json:"id" db:"id"`
		CourseID    int64  `json:"course_id" db:"course_id"`
		Title       string `json:"title" db:"title"`
		OrderNumber int    `json:"order_number" db:"order_number"`
	}

	Lesson struct {
		ID              int64  `json:"id" db:"id"`
		ModuleID        int64  `json:"module_id" db:"module_id"`
		CourseID        int64  `json:"course_id" db:"course_id"`
		Title           string `json:"title" db:"title"`
		Type            string `json:"type" db:"type"`
		Content         string `json:"content" db:"content"`
		VideoURL        string `json:"video_url,omitempty" db:"video_url"`
		DurationMinutes int    `json:"duration_minutes" db:"duration_minutes"`
		IsRequired      bool   `json:"is_required" db:"is_required"`
		OrderNumber     int    `json:"order_number" db:"order_number"`
	}

	// Repository gives read access to the course catalog.
	// Course authoring lives elsewhere; the Create* methods only serve the admin tooling & fixtures.
	Repository interface {
		CreateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
		CreateModule(ctx context.Context, m Module, exec ...core.DBExecutor) (Module, error)
		CreateLesson(ctx context.Context, l Lesson, exec ...core.DBExecutor) (Lesson, error)
		GetCourse(ctx context.Context, id int64, exec ...core.DBExecutor) (Course, error)
		GetLesson(ctx context.Context, id int64, exec ...core.DBExecutor) (Lesson, error)
		// RequiredLessonIDs returns the ids of the lessons flagged `is_required` across all modules of the course.
		RequiredLessonIDs(ctx context.Context, courseID int64, exec ...core.DBExecutor) ([]int64, error)
	}
)
