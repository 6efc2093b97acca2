package quiz

import "math"

// GradeChoice grades a multiple_choice/true_false answer against the answers flagged correct.
func GradeChoice(q Question, answerID int64) (bool, float64) {
	for _, a := range q.Answers {
		if a.ID == answerID && a.IsCorrect {
			return true, float64(q.Points)
		}
	}
	return false, 0
}

// Tally sums the quiz points and the points earned by subs. Ungraded essays count 0 and are
// reported as pending. Unanswered questions count towards the total.
func Tally(questions []Question, subs []Submission) (total int, earned float64, pending int) {
	byQuestion := make(map[int64]Submission, len(subs))
	for _, s := range subs {
		byQuestion[s.QuestionID] = s
	}
	for _, q := range questions {
		total += q.Points
		s, ok := byQuestion[q.ID]
		if !ok {
			continue
		}
		if !s.PointsEarned.Valid {
			pending++
			continue
		}
		earned += s.PointsEarned.Float64
	}
	return total, earned, pending
}

// Score is 100·earned/total rounded to one decimal and clamped to [0, 100]; 0 when total is 0.
func Score(earned float64, total int) float64 {
	if total <= 0 {
		return 0
	}
	s := math.Round(1000*earned/float64(total)) / 10
	return math.Max(0, math.Min(100, s))
}

func IsPassed(score, passingScore float64) bool {
	return score >= passingScore
}

// Compute derives the result of a submission set.
func Compute(qz Quiz, subs []Submission) Result {
	total, earned, pending := Tally(qz.Questions, subs)
	score := Score(earned, total)
	status := ResultGraded
	if pending > 0 {
		status = ResultPending
	}
	return Result{
		QuizID:       qz.ID,
		TotalPoints:  total,
		EarnedPoints: earned,
		Score:        score,
		IsPassed:     IsPassed(score, qz.PassingScore),
		PassingScore: qz.PassingScore,
		Status:       status,
	}
}
