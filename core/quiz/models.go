package quiz

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/juniordw/rotasi-lms-sub000/core"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	Essay          QuestionType = "essay"
)

// IsAutoGraded reports whether answers to this type are graded at submit time.
func (t QuestionType) IsAutoGraded() bool {
	return t == MultipleChoice || t == TrueFalse
}

type ResultStatus string

const (
	// ResultPending results still have essays waiting for a grade; their score is provisional.
	ResultPending ResultStatus = "pending"
	ResultGraded  ResultStatus = "graded"
)

var (
	// errors
	ErrQuizNotFound      = core.NewNotFoundError("quiz not found")
	ErrResultNotFound    = core.NewNotFoundError("quiz result not found")
	ErrAlreadySubmitted  = core.NewConflictError("quiz already submitted")
	ErrMalformedAnswers  = errors.New("malformed answers")
	ErrSubmissionMissing = core.NewNotFoundError("submission not found")
)

type (
	Quiz struct {
		ID               int64      `json:"id" db:"id"`
		LessonID         int64      `json:"lesson_id" db:"lesson_id"`
		CourseID         int64      `json:"course_id" db:"course_id"`
		Title            string     `json:"title" db:"title"`
		PassingScore     float64    `json:"passing_score" db:"passing_score"`
		TimeLimitMinutes null.Int   `json:"time_limit_minutes" db:"time_limit_minutes"`
		Questions        []Question `json:"questions" db:"-"`
	}

	Question struct {
		ID          int64        `json:"id" db:"id"`
		QuizID      int64        `json:"quiz_id" db:"quiz_id"`
		Text        string       `json:"text" db:"text"`
		Type        QuestionType `json:"type" db:"type"`
		Points      int          `json:"points" db:"points"`
		OrderNumber int          `json:"order_number" db:"order_number"`
		Answers     []Answer     `json:"answers" db:"-"`
	}

	Answer struct {
		ID         int64  `json:"id" db:"id"`
		QuestionID int64  `json:"question_id" db:"question_id"`
		Text       string `json:"text" db:"text"`
		IsCorrect  bool   `json:"is_correct" db:"is_correct"`
	}

	// Submission is a learner's answer to one question. IsCorrect and PointsEarned are null while
	// an essay waits for its grade.
	Submission struct {
		ID           int64        `json:"id" db:"id"`
		EnrollmentID int64        `json:"enrollment_id" db:"enrollment_id"`
		QuestionID   int64        `json:"question_id" db:"question_id"`
		AnswerID     null.Int64   `json:"answer_id" db:"answer_id"`
		TextAnswer   null.String  `json:"text_answer" db:"text_answer"`
		IsCorrect    null.Bool    `json:"is_correct" db:"is_correct"`
		PointsEarned null.Float64 `json:"points_earned" db:"points_earned"`
		SubmittedAt  time.Time    `json:"submitted_at" db:"submitted_at"`
		GradedAt     null.Time    `json:"graded_at" db:"graded_at"`
		GradedBy     null.Int64   `json:"graded_by" db:"graded_by"`
	}

	// Result is the aggregate score of an enrollment's submission set for a quiz.
	Result struct {
		ID           int64        `json:"-" db:"id"`
		EnrollmentID int64        `json:"enrollment_id" db:"enrollment_id"`
		QuizID       int64        `json:"quiz_id" db:"quiz_id"`
		TotalPoints  int          `json:"totalPoints" db:"total_points"`
		EarnedPoints float64      `json:"earnedPoints" db:"earned_points"`
		Score        float64      `json:"score" db:"score"`
		IsPassed     bool         `json:"isPassed" db:"is_passed"`
		PassingScore float64      `json:"passingScore" db:"-"`
		Status       ResultStatus `json:"status" db:"status"`
		SubmittedAt  time.Time    `json:"submitted_at" db:"submitted_at"`
		GradedAt     null.Time    `json:"graded_at" db:"graded_at"`
	}

	// AnswerInput is one answer of a submission payload.
	AnswerInput struct {
		QuestionID int64   `json:"question_id" validate:"required,gt=0"`
		AnswerID   *int64  `json:"answer_id" validate:"omitempty,gt=0"`
		TextAnswer *string `json:"text_answer" validate:"omitempty,notblank"`
	}

	Repository interface {
		CreateQuiz(ctx context.Context, q Quiz, exec ...core.DBExecutor) (Quiz, error)
		CreateQuestion(ctx context.Context, q Question, exec ...core.DBExecutor) (Question, error)
		CreateAnswer(ctx context.Context, a Answer, exec ...core.DBExecutor) (Answer, error)
		// GetQuiz returns the quiz with its questions ordered by order_number, answers included.
		GetQuiz(ctx context.Context, id int64, exec ...core.DBExecutor) (Quiz, error)

		// InsertResult stores r unless the enrollment already has a result for the quiz, which is reported by the bool.
		InsertResult(ctx context.Context, r Result, exec ...core.DBExecutor) (Result, bool, error)
		UpdateResult(ctx context.Context, r Result, exec ...core.DBExecutor) error
		GetResult(ctx context.Context, enrollmentID, quizID int64, exec ...core.DBExecutor) (Result, error)
		AverageScore(ctx context.Context, enrollmentID int64, exec ...core.DBExecutor) (null.Float64, error)

		// InsertSubmissions stores the whole set; a duplicate (enrollment, question) pair yields ErrAlreadySubmitted.
		InsertSubmissions(ctx context.Context, subs []Submission, exec ...core.DBExecutor) ([]Submission, error)
		QuerySubmissions(ctx context.Context, enrollmentID, quizID int64, exec ...core.DBExecutor) ([]Submission, error)
		GetSubmissions(ctx context.Context, ids []int64, exec ...core.DBExecutor) ([]Submission, error)
		// GradeSubmission sets the grade of an ungraded submission. It reports false when it was graded already.
		GradeSubmission(ctx context.Context, id int64, isCorrect bool, points float64, by int64, at time.Time, exec ...core.DBExecutor) (bool, error)
	}
)

// Question returns the question with the given id.
func (q Quiz) Question(id int64) (Question, bool) {
	for _, qn := range q.Questions {
		if qn.ID == id {
			return qn, true
		}
	}
	return Question{}, false
}

// Answer returns the answer with the given id.
func (q Question) Answer(id int64) (Answer, bool) {
	for _, a := range q.Answers {
		if a.ID == id {
			return a, true
		}
	}
	return Answer{}, false
}
