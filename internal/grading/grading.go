// Package grading scores submitted answers against the attempt's
// materialized paper. Grading reads the persisted paper, never the live
// exam document, so edits made after a student started cannot change
// their result.
package grading

import (
	"math"

	"github.com/edvigil/edvigil-backend/internal/model"
)

// Result is the outcome of grading one attempt.
type Result struct {
	Score      int
	TotalMarks int
	Percentage float64
}

// Grade scores answers against the paper. Keys in answers are positions in
// the paper; unanswered and out-of-range entries contribute zero. There is
// no negative marking.
func Grade(paper []model.PaperQuestion, answers map[int]int) Result {
	var r Result
	for i, q := range paper {
		r.TotalMarks += q.Marks
		selected, ok := answers[i]
		if !ok {
			continue
		}
		if selected == q.Correct {
			r.Score += q.Marks
		}
	}
	if r.TotalMarks > 0 {
		r.Percentage = round2(float64(r.Score) / float64(r.TotalMarks) * 100)
	}
	return r
}

// Passed applies the exam's passing threshold in absolute marks.
func Passed(r Result, passingMarks int) bool {
	return r.Score >= passingMarks
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
