package paper

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvigil/edvigil-backend/internal/model"
)

func bank() []model.Question {
	return []model.Question{
		{Prompt: "Q1", Options: []string{"a1", "b1", "c1", "d1"}, CorrectOption: 1, Marks: 5},
		{Prompt: "Q2", Options: []string{"a2", "b2", "c2", "d2"}, CorrectOption: 3, Marks: 3},
		{Prompt: "Q3", Options: []string{"a3", "b3", "c3", "d3"}, CorrectOption: 0, Marks: 2},
	}
}

func TestMaterializeNoShuffle(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	p := Materialize(bank(), model.ExamPolicy{}, rng)

	require.Len(t, p, 3)
	for i, q := range p {
		assert.Equal(t, i, q.Source)
		assert.Equal(t, bank()[i].Options, q.Options)
		assert.Equal(t, bank()[i].CorrectOption, q.Correct)
		assert.Equal(t, bank()[i].Marks, q.Marks)
	}
}

func TestMaterializeQuestionShuffleKeepsPairs(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	p := Materialize(bank(), model.ExamPolicy{ShuffleQuestions: true}, rng)

	require.Len(t, p, 3)
	seen := map[int]bool{}
	for _, q := range p {
		orig := bank()[q.Source]
		assert.Equal(t, orig.Prompt, q.Prompt)
		assert.Equal(t, orig.Options, q.Options)
		assert.Equal(t, orig.CorrectOption, q.Correct)
		seen[q.Source] = true
	}
	assert.Len(t, seen, 3)
}

func TestMaterializeOptionShuffleRemapsCorrect(t *testing.T) {
	// Across many seeds the correct index must always point at the same
	// option text after shuffling.
	for seed := int64(0); seed < 50; seed++ {
		rng := rand.New(rand.NewSource(seed))
		p := Materialize(bank(), model.ExamPolicy{ShuffleOptions: true}, rng)
		for _, q := range p {
			orig := bank()[q.Source]
			want := orig.Options[orig.CorrectOption]
			assert.Equal(t, want, q.Options[q.Correct], "seed %d", seed)
			assert.ElementsMatch(t, orig.Options, q.Options)
		}
	}
}

func TestMaterializeDoesNotMutateBank(t *testing.T) {
	qs := bank()
	rng := rand.New(rand.NewSource(3))
	_ = Materialize(qs, model.ExamPolicy{ShuffleQuestions: true, ShuffleOptions: true}, rng)
	assert.Equal(t, bank(), qs)
}

func TestMaterializeDeterministicForSeed(t *testing.T) {
	a := Materialize(bank(), model.ExamPolicy{ShuffleQuestions: true, ShuffleOptions: true}, rand.New(rand.NewSource(42)))
	b := Materialize(bank(), model.ExamPolicy{ShuffleQuestions: true, ShuffleOptions: true}, rand.New(rand.NewSource(42)))
	assert.Equal(t, a, b)
}
