package app_test

import (
	"sync/atomic"
	"testing"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
)

var baseTime = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	catalog  *memory.Catalog
	attempts *memory.AttemptStore
	service  *app.AttemptService
	now      time.Time
}

func newFixture(t *testing.T, opts ...app.Option) *fixture {
	t.Helper()
	f := &fixture{
		catalog:  memory.NewCatalog(),
		attempts: memory.NewAttemptStore(),
		now:      baseTime,
	}
	f.catalog.PutQuestions(trueFalseQuestion(), multiQuestion())
	f.catalog.PutQuiz(exampleQuiz())

	var seq atomic.Int64
	base := []app.Option{
		app.WithClock(func() time.Time { return f.now }),
		app.WithSeedSource(func() int64 { return seq.Add(1) }),
	}
	f.service = app.NewAttemptService(memory.NewQuizRepository(f.catalog, time.Hour), f.catalog, f.catalog, f.attempts, append(base, opts...)...)
	return f
}

func student(id string) domain.Viewer {
	return domain.Viewer{UserID: "user-" + id, ProfileID: id, Roles: []domain.Role{domain.RoleStudent}}
}

func teacher() domain.Viewer {
	return domain.Viewer{UserID: "user-t1", ProfileID: "t1", Roles: []domain.Role{domain.RoleTeacher}}
}

// exampleQuiz is Q1 (TRUE_FALSE, 1 point) followed by Q2 (MCQ_MULTI, 2 points).
func exampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:           "quiz-1",
		Title:        "Science basics",
		Status:       domain.QuizPublished,
		MaxAttempts:  domain.AttemptLimit(1),
		TimeLimitSec: 600,
		Audience:     []domain.AudienceRule{{Scope: domain.AudienceAll}},
		Questions: []domain.QuestionRef{
			{QuestionID: "q1", Points: 1, OrderIndex: 0},
			{QuestionID: "q2", Points: 2, OrderIndex: 1},
		},
	}
}

func trueFalseQuestion() domain.Question {
	return domain.Question{
		ID:     "q1",
		Type:   domain.TrueFalse,
		Prompt: map[string]string{"en": "Water boils at 100C at sea level.", "id": "Air mendidih pada 100C."},
		Options: []domain.Option{
			{ID: "T", Text: map[string]string{"en": "True", "id": "Benar"}, Correct: true, OrderIndex: 0},
			{ID: "F", Text: map[string]string{"en": "False", "id": "Salah"}, OrderIndex: 1},
		},
	}
}

func multiQuestion() domain.Question {
	return domain.Question{
		ID:     "q2",
		Type:   domain.MCQMulti,
		Prompt: map[string]string{"en": "Which are noble gases?"},
		Options: []domain.Option{
			{ID: "A", Text: map[string]string{"en": "Helium"}, Correct: true, Weight: 1, OrderIndex: 0},
			{ID: "B", Text: map[string]string{"en": "Neon"}, Correct: true, Weight: 1, OrderIndex: 1},
			{ID: "C", Text: map[string]string{"en": "Oxygen"}, OrderIndex: 2},
			{ID: "D", Text: map[string]string{"en": "Nitrogen"}, OrderIndex: 3},
		},
	}
}

func submit(questionID string, selected ...string) domain.AnswerSubmission {
	return domain.AnswerSubmission{QuestionID: questionID, SelectedOptionIDs: selected}
}

func reasonOf(t *testing.T, err error) domain.Reason {
	t.Helper()
	if err == nil {
		t.Fatalf("expected an error")
	}
	return domain.ReasonOf(err)
}
