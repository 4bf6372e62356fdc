// Package paper materializes the per-student question paper when an
// attempt starts. The materialized paper is persisted with the attempt and
// reused verbatim on resume and at grading, so shuffle order and correct
// answers stay stable for the lifetime of the attempt.
package paper

import (
	"math/rand"

	"github.com/edvigil/edvigil-backend/internal/model"
)

// Materialize builds the attempt's paper from the exam's question bank,
// applying the policy's shuffles. Source records each question's position
// in the bank so teacher views can map back to the authored order.
func Materialize(questions []model.Question, policy model.ExamPolicy, rng *rand.Rand) []model.PaperQuestion {
	paper := make([]model.PaperQuestion, len(questions))
	for i, q := range questions {
		paper[i] = model.PaperQuestion{
			Prompt:  q.Prompt,
			Options: append([]string(nil), q.Options...),
			Correct: q.CorrectOption,
			Marks:   q.Marks,
			Source:  i,
		}
	}

	if policy.ShuffleQuestions {
		rng.Shuffle(len(paper), func(i, j int) {
			paper[i], paper[j] = paper[j], paper[i]
		})
	}

	if policy.ShuffleOptions {
		for i := range paper {
			shuffleOptions(&paper[i], rng)
		}
	}
	return paper
}

// shuffleOptions permutes one question's options and remaps the correct
// index through the same permutation.
func shuffleOptions(q *model.PaperQuestion, rng *rand.Rand) {
	perm := rng.Perm(len(q.Options))
	shuffled := make([]string, len(q.Options))
	for from, to := range perm {
		shuffled[to] = q.Options[from]
	}
	q.Correct = perm[q.Correct]
	q.Options = shuffled
}
