package services

import (
	"math"

	"elearning-platform/models"
)

// ScoreSubmission grades answers against the exercise questions. Score is a
// percentage of points earned; questions without points weigh 1. Missing or
// out-of-range answers count as wrong.
func ScoreSubmission(exercise *models.Exercise, answers []int) (results []models.AnswerResult, correct int, score float64, passed bool) {
	var earned, total float64
	results = make([]models.AnswerResult, len(exercise.Questions))

	for i, q := range exercise.Questions {
		points := q.Points
		if points <= 0 {
			points = 1
		}
		total += points

		selected := -1
		if i < len(answers) && answers[i] >= 0 && answers[i] < len(q.Options) {
			selected = answers[i]
		}

		r := models.AnswerResult{QuestionIndex: i, Selected: selected}
		if selected >= 0 && selected == q.CorrectAnswer {
			r.Correct = true
			r.Points = points
			earned += points
			correct++
		}
		results[i] = r
	}

	if total > 0 {
		score = math.Round(earned/total*10000) / 100
	}
	passed = len(exercise.Questions) > 0 && score >= exercise.PassingScore
	return results, correct, score, passed
}
