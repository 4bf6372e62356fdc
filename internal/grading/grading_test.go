package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edvigil/edvigil-backend/internal/model"
)

func paper() []model.PaperQuestion {
	return []model.PaperQuestion{
		{Prompt: "Q1", Options: []string{"a", "b", "c", "d"}, Correct: 2, Marks: 5},
		{Prompt: "Q2", Options: []string{"a", "b", "c", "d"}, Correct: 0, Marks: 3},
		{Prompt: "Q3", Options: []string{"a", "b"}, Correct: 1, Marks: 2},
	}
}

func TestGradeAllCorrect(t *testing.T) {
	r := Grade(paper(), map[int]int{0: 2, 1: 0, 2: 1})
	assert.Equal(t, 10, r.Score)
	assert.Equal(t, 10, r.TotalMarks)
	assert.Equal(t, 100.0, r.Percentage)
}

func TestGradePartial(t *testing.T) {
	r := Grade(paper(), map[int]int{0: 2, 1: 3})
	assert.Equal(t, 5, r.Score)
	assert.Equal(t, 50.0, r.Percentage)
}

func TestGradeUnansweredAndOutOfRange(t *testing.T) {
	// Question index outside the paper is ignored.
	r := Grade(paper(), map[int]int{7: 0})
	assert.Equal(t, 0, r.Score)
	assert.Equal(t, 0.0, r.Percentage)

	r = Grade(paper(), nil)
	assert.Equal(t, 0, r.Score)
}

func TestGradeEmptyPaper(t *testing.T) {
	r := Grade(nil, map[int]int{0: 0})
	assert.Equal(t, 0, r.Score)
	assert.Equal(t, 0, r.TotalMarks)
	assert.Equal(t, 0.0, r.Percentage)
}

func TestGradePercentageRounding(t *testing.T) {
	p := []model.PaperQuestion{
		{Options: []string{"a", "b"}, Correct: 0, Marks: 1},
		{Options: []string{"a", "b"}, Correct: 0, Marks: 1},
		{Options: []string{"a", "b"}, Correct: 0, Marks: 1},
	}
	r := Grade(p, map[int]int{0: 0})
	assert.Equal(t, 33.33, r.Percentage)
}

func TestPassed(t *testing.T) {
	r := Result{Score: 5, TotalMarks: 10}
	assert.True(t, Passed(r, 5))
	assert.False(t, Passed(r, 6))
}
