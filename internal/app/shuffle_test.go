package app

import (
	"slices"
	"testing"

	"quiz-attempt-service/internal/domain"
)

func TestStreamIsReproducible(t *testing.T) {
	a, b := newStream(1234), newStream(1234)
	for i := 0; i < 100; i++ {
		if x, y := a.next(), b.next(); x != y {
			t.Fatalf("draw %d differs: %d vs %d", i, x, y)
		}
	}
	c := newStream(1235)
	if newStream(1234).next() == c.next() {
		t.Fatalf("neighbouring seeds should not collide on the first draw")
	}
}

func TestStreamIntnRange(t *testing.T) {
	rng := newStream(-1)
	for i := 0; i < 1000; i++ {
		if v := rng.intn(7); v < 0 || v >= 7 {
			t.Fatalf("intn out of range: %d", v)
		}
	}
}

func TestShuffleIsPermutation(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8, 9}
	shuffle(newStream(77), items)
	sorted := slices.Clone(items)
	slices.Sort(sorted)
	if !slices.Equal(sorted, []int{1, 2, 3, 4, 5, 6, 7, 8, 9}) {
		t.Fatalf("shuffle lost elements: %v", items)
	}
}

func TestSealOptionsContinueStream(t *testing.T) {
	quiz := domain.Quiz{
		ShuffleQuestions: true,
		ShuffleOptions:   true,
		Questions: []domain.QuestionRef{
			{QuestionID: "a", Points: 1, OrderIndex: 0},
			{QuestionID: "b", Points: 1, OrderIndex: 1},
			{QuestionID: "c", Points: 1, OrderIndex: 2},
		},
	}
	questions := map[string]domain.Question{}
	options := map[string][]string{}
	for _, id := range []string{"a", "b", "c"} {
		q := domain.Question{ID: id, Type: domain.MCQMulti}
		for i, suffix := range []string{"1", "2", "3", "4"} {
			q.Options = append(q.Options, domain.Option{ID: id + suffix, OrderIndex: i})
			options[id] = append(options[id], id+suffix)
		}
		questions[id] = q
	}

	// Expected: one stream, questions shuffled first, then each question's options in final order.
	rng := newStream(5)
	order := []string{"a", "b", "c"}
	shuffle(rng, order)
	want := make([][]string, 0, len(order))
	for _, id := range order {
		opts := slices.Clone(options[id])
		shuffle(rng, opts)
		want = append(want, opts)
	}

	sealed, err := Seal(quiz, questions, 5)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	for i, aq := range sealed {
		if aq.QuestionID != order[i] {
			t.Fatalf("position %d: want %s got %s", i, order[i], aq.QuestionID)
		}
		if !slices.Equal(aq.OptionOrder, want[i]) {
			t.Fatalf("question %s: want options %v got %v", aq.QuestionID, want[i], aq.OptionOrder)
		}
	}
}
