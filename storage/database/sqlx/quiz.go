package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/juniordw/rotasi-lms-sub000/core"
	"github.com/juniordw/rotasi-lms-sub000/core/quiz"
)

const (
	resultColumns     = `id, enrollment_id, quiz_id, total_points, earned_points, score, is_passed, status, submitted_at, graded_at`
	submissionColumns = `s.id, s.enrollment_id, s.question_id, s.answer_id, s.text_answer, s.is_correct, s.points_earned,
		s.submitted_at, s.graded_at, s.graded_by`
)

type quizRepository struct {
	base
}

var _ quiz.Repository = (*quizRepository)(nil) // interface compliance check

func NewQuizRepository(exec core.DBExecutor) *quizRepository {
	return &quizRepository{base{exec: exec}}
}

func (repo quizRepository) CreateQuiz(ctx context.Context, qz quiz.Quiz, exec ...core.DBExecutor) (quiz.Quiz, error) {
	ex := repo.getExec(exec)
	q := ex.Rebind(`INSERT INTO quizzes (lesson_id, title, passing_score, time_limit_minutes) VALUES (?, ?, ?, ?) RETURNING id`)
	if err := ex.QueryRowxContext(ctx, q, qz.LessonID, qz.Title, qz.PassingScore, qz.TimeLimitMinutes).Scan(&qz.ID); err != nil {
		if isUniqueViolation(err) {
			return quiz.Quiz{}, core.NewConflictError("lesson already has a quiz")
		}
		return quiz.Quiz{}, errors.Wrap(err, "inserting quiz")
	}
	return repo.GetQuiz(ctx, qz.ID, ex)
}

func (repo quizRepository) CreateQuestion(ctx context.Context, qn quiz.Question, exec ...core.DBExecutor) (quiz.Question, error) {
	ex := repo.getExec(exec)
	q := ex.Rebind(`INSERT INTO questions (quiz_id, text, type, points, order_number) VALUES (?, ?, ?, ?, ?) RETURNING id`)
	if err := ex.QueryRowxContext(ctx, q, qn.QuizID, qn.Text, qn.Type, qn.Points, qn.OrderNumber).Scan(&qn.ID); err != nil {
		return quiz.Question{}, errors.Wrap(err, "inserting question")
	}
	return qn, nil
}

func (repo quizRepository) CreateAnswer(ctx context.Context, a quiz.Answer, exec ...core.DBExecutor) (quiz.Answer, error) {
	ex := repo.getExec(exec)
	q := ex.Rebind(`INSERT INTO answers (question_id, text, is_correct) VALUES (?, ?, ?) RETURNING id`)
	if err := ex.QueryRowxContext(ctx, q, a.QuestionID, a.Text, a.IsCorrect).Scan(&a.ID); err != nil {
		return quiz.Answer{}, errors.Wrap(err, "inserting answer")
	}
	return a, nil
}

func (repo quizRepository) GetQuiz(ctx context.Context, id int64, exec ...core.DBExecutor) (quiz.Quiz, error) {
	ex := repo.getExec(exec)
	var qz quiz.Quiz
	err := sqlxGet(ctx, ex, &qz, `
		SELECT q.id, q.lesson_id, m.course_id, q.title, q.passing_score, q.time_limit_minutes
		FROM quizzes q
		JOIN lessons l ON l.id = q.lesson_id
		JOIN modules m ON m.id = l.module_id
		WHERE q.id = ?`, id)
	if err != nil {
		return quiz.Quiz{}, trapNoRowsErr(err, quiz.ErrQuizNotFound, "getting quiz")
	}

	questions := make([]quiz.Question, 0)
	err = sqlxSelect(ctx, ex, &questions,
		`SELECT id, quiz_id, text, type, points, order_number FROM questions WHERE quiz_id = ? ORDER BY order_number, id`, qz.ID)
	if err != nil {
		return quiz.Quiz{}, errors.Wrap(err, "querying questions")
	}

	answers := make([]quiz.Answer, 0)
	err = sqlxSelect(ctx, ex, &answers, `
		SELECT a.id, a.question_id, a.text, a.is_correct
		FROM answers a
		JOIN questions qn ON qn.id = a.question_id
		WHERE qn.quiz_id = ?
		ORDER BY a.id`, qz.ID)
	if err != nil {
		return quiz.Quiz{}, errors.Wrap(err, "querying answers")
	}

	byQuestion := make(map[int64][]quiz.Answer, len(questions))
	for _, a := range answers {
		byQuestion[a.QuestionID] = append(byQuestion[a.QuestionID], a)
	}
	for i := range questions {
		questions[i].Answers = byQuestion[questions[i].ID]
		if questions[i].Answers == nil {
			questions[i].Answers = make([]quiz.Answer, 0)
		}
	}
	qz.Questions = questions
	return qz, nil
}

func (repo quizRepository) InsertResult(ctx context.Context, r quiz.Result, exec ...core.DBExecutor) (quiz.Result, bool, error) {
	ex := repo.getExec(exec)
	q := ex.Rebind(`
		INSERT INTO quiz_results (enrollment_id, quiz_id, total_points, earned_points, score, is_passed, status, submitted_at, graded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (enrollment_id, quiz_id) DO NOTHING
		RETURNING id`)
	err := ex.QueryRowxContext(ctx, q,
		r.EnrollmentID, r.QuizID, r.TotalPoints, r.EarnedPoints, r.Score, r.IsPassed, r.Status, r.SubmittedAt, r.GradedAt,
	).Scan(&r.ID)
	switch {
	case err == sql.ErrNoRows:
		return quiz.Result{}, false, nil
	case err != nil:
		return quiz.Result{}, false, errors.Wrap(err, "inserting quiz result")
	}
	return r, true, nil
}

func (repo quizRepository) UpdateResult(ctx context.Context, r quiz.Result, exec ...core.DBExecutor) error {
	ex := repo.getExec(exec)
	q := ex.Rebind(`
		UPDATE quiz_results
		SET total_points = ?, earned_points = ?, score = ?, is_passed = ?, status = ?, graded_at = ?
		WHERE id = ?`)
	res, err := ex.ExecContext(ctx, q, r.TotalPoints, r.EarnedPoints, r.Score, r.IsPassed, r.Status, r.GradedAt, r.ID)
	if err != nil {
		return errors.Wrap(err, "updating quiz result")
	}
	if n, err := res.RowsAffected(); err != nil {
		return errors.Wrap(err, "updating quiz result")
	} else if n == 0 {
		return quiz.ErrResultNotFound
	}
	return nil
}

func (repo quizRepository) GetResult(ctx context.Context, enrollmentID, quizID int64, exec ...core.DBExecutor) (quiz.Result, error) {
	var r quiz.Result
	err := sqlxGet(ctx, repo.getExec(exec), &r,
		`SELECT `+resultColumns+` FROM quiz_results WHERE enrollment_id = ? AND quiz_id = ?`, enrollmentID, quizID)
	if err != nil {
		return quiz.Result{}, trapNoRowsErr(err, quiz.ErrResultNotFound, "getting quiz result")
	}
	return r, nil
}

func (repo quizRepository) AverageScore(ctx context.Context, enrollmentID int64, exec ...core.DBExecutor) (null.Float64, error) {
	var avg null.Float64
	err := sqlxGet(ctx, repo.getExec(exec), &avg, `SELECT AVG(score) FROM quiz_results WHERE enrollment_id = ?`, enrollmentID)
	if err != nil {
		return null.Float64{}, errors.Wrap(err, "averaging quiz scores")
	}
	return avg, nil
}

func (repo quizRepository) InsertSubmissions(ctx context.Context, subs []quiz.Submission, exec ...core.DBExecutor) ([]quiz.Submission, error) {
	ex := repo.getExec(exec)
	q := ex.Rebind(`
		INSERT INTO submissions (enrollment_id, question_id, answer_id, text_answer, is_correct, points_earned, submitted_at, graded_at, graded_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)

	stored := make([]quiz.Submission, 0, len(subs))
	for _, s := range subs {
		err := ex.QueryRowxContext(ctx, q,
			s.EnrollmentID, s.QuestionID, s.AnswerID, s.TextAnswer, s.IsCorrect, s.PointsEarned, s.SubmittedAt, s.GradedAt, s.GradedBy,
		).Scan(&s.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, quiz.ErrAlreadySubmitted
			}
			return nil, errors.Wrap(err, "inserting submission")
		}
		stored = append(stored, s)
	}
	return stored, nil
}

func (repo quizRepository) QuerySubmissions(ctx context.Context, enrollmentID, quizID int64, exec ...core.DBExecutor) ([]quiz.Submission, error) {
	subs := make([]quiz.Submission, 0)
	err := sqlxSelect(ctx, repo.getExec(exec), &subs, `
		SELECT `+submissionColumns+`
		FROM submissions s
		JOIN questions qn ON qn.id = s.question_id
		WHERE s.enrollment_id = ? AND qn.quiz_id = ?
		ORDER BY qn.order_number, qn.id`, enrollmentID, quizID)
	if err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	return subs, nil
}

func (repo quizRepository) GetSubmissions(ctx context.Context, ids []int64, exec ...core.DBExecutor) ([]quiz.Submission, error) {
	subs := make([]quiz.Submission, 0)
	if len(ids) == 0 {
		return subs, nil
	}

	ex := repo.getExec(exec)
	q, args, err := in(ex, `SELECT `+submissionColumns+` FROM submissions s WHERE s.id IN (?) ORDER BY s.id`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "building submissions query")
	}
	if err = sqlx.SelectContext(ctx, ex, &subs, q, args...); err != nil {
		return nil, errors.Wrap(err, "getting submissions")
	}
	return subs, nil
}

func (repo quizRepository) GradeSubmission(ctx context.Context, id int64, isCorrect bool, points float64, by int64, at time.Time, exec ...core.DBExecutor) (bool, error) {
	ex := repo.getExec(exec)
	q := ex.Rebind(`
		UPDATE submissions SET is_correct = ?, points_earned = ?, graded_at = ?, graded_by = ?
		WHERE id = ? AND graded_at IS NULL`)
	res, err := ex.ExecContext(ctx, q, isCorrect, points, at, by, id)
	if err != nil {
		return false, errors.Wrap(err, "grading submission")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "grading submission")
	}
	return n == 1, nil
}
