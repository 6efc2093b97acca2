package quiz

import (
	"github.com/jinzhu/copier"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
)

type (
	AnswerView struct {
		ID       int64  `json:"id"`
		Text     string `json:"text"`
		Correct  *bool  `json:"is_correct,omitempty"`
		Selected bool   `json:"selected,omitempty"`
	}

	QuestionView struct {
		ID          int64        `json:"id"`
		Text        string       `json:"text"`
		Type        QuestionType `json:"type"`
		Points      int          `json:"points"`
		OrderNumber int          `json:"order_number"`
		Answers     []AnswerView `json:"answers" copier:"-"`
		Submission  *Submission  `json:"submission,omitempty"`
	}

	// View is a quiz as shown to a caller. Correct flags are only set when the caller may see them.
	View struct {
		ID               int64          `json:"id"`
		LessonID         int64          `json:"lesson_id"`
		CourseID         int64          `json:"course_id"`
		Title            string         `json:"title"`
		PassingScore     float64        `json:"passing_score"`
		TimeLimitMinutes null.Int       `json:"time_limit_minutes"`
		Questions        []QuestionView `json:"questions" copier:"-"`
		Result           *Result        `json:"result,omitempty"`
	}
)

// newView maps the quiz to its view. Correct flags are exposed when reveal is set; own holds the
// caller's submissions, by question, to show their selections.
func newView(qz Quiz, reveal bool, own map[int64]Submission) (View, error) {
	var view View
	if err := copier.Copy(&view, &qz); err != nil {
		return View{}, errors.Wrap(err, "copying quiz")
	}

	view.Questions = make([]QuestionView, len(qz.Questions))
	for i, qn := range qz.Questions {
		qv := &view.Questions[i]
		if err := copier.Copy(qv, &qn); err != nil {
			return View{}, errors.Wrap(err, "copying question")
		}
		sub, answered := own[qn.ID]
		if answered {
			sub := sub
			qv.Submission = &sub
		}

		qv.Answers = make([]AnswerView, len(qn.Answers))
		for j, a := range qn.Answers {
			av := &qv.Answers[j]
			if err := copier.Copy(av, &a); err != nil {
				return View{}, errors.Wrap(err, "copying answer")
			}
			if reveal {
				correct := a.IsCorrect
				av.Correct = &correct
			}
			if answered && sub.AnswerID.Valid && sub.AnswerID.Int64 == a.ID {
				av.Selected = true
			}
		}
	}
	return view, nil
}
