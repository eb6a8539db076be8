package app_test

import (
	"context"
	"testing"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

func TestCheckEligibilityOrder(t *testing.T) {
	past := baseTime.Add(-time.Hour)
	future := baseTime.Add(time.Hour)
	enrolled := []domain.Enrollment{{ClassSectionID: "7A", GradeLevelID: "grade-7", SubjectIDs: []string{"math", "science"}}}

	cases := []struct {
		name   string
		mutate func(*domain.Quiz)
		usage  domain.AttemptUsage
		want   domain.Reason
	}{
		{"allowed", func(*domain.Quiz) {}, domain.AttemptUsage{}, ""},
		{"draft wins over window", func(q *domain.Quiz) { q.Status = domain.QuizDraft; q.OpenAt = &future }, domain.AttemptUsage{}, domain.ReasonNotPublished},
		{"closed", func(q *domain.Quiz) { q.Status = domain.QuizClosed }, domain.AttemptUsage{}, domain.ReasonNotPublished},
		{"opens later", func(q *domain.Quiz) { q.OpenAt = &future }, domain.AttemptUsage{}, domain.ReasonOutsideWindow},
		{"already closed", func(q *domain.Quiz) { q.CloseAt = &past }, domain.AttemptUsage{}, domain.ReasonOutsideWindow},
		{"inclusive open bound", func(q *domain.Quiz) { at := baseTime; q.OpenAt = &at }, domain.AttemptUsage{}, ""},
		{"window wins over attempts", func(q *domain.Quiz) { q.OpenAt = &future }, domain.AttemptUsage{Completed: 5}, domain.ReasonOutsideWindow},
		{"grade level match", func(q *domain.Quiz) {
			q.Audience = []domain.AudienceRule{{Scope: domain.AudienceGradeLevel, ScopeID: "grade-7"}}
		}, domain.AttemptUsage{}, ""},
		{"subject match", func(q *domain.Quiz) {
			q.Audience = []domain.AudienceRule{{Scope: domain.AudienceSubject, ScopeID: "science"}}
		}, domain.AttemptUsage{}, ""},
		{"section mismatch", func(q *domain.Quiz) {
			q.Audience = []domain.AudienceRule{{Scope: domain.AudienceClassSection, ScopeID: "8B"}}
		}, domain.AttemptUsage{}, domain.ReasonAudienceMismatch},
		{"no audience", func(q *domain.Quiz) { q.Audience = nil }, domain.AttemptUsage{}, domain.ReasonAudienceMismatch},
		{"exhausted", func(*domain.Quiz) {}, domain.AttemptUsage{Completed: 1}, domain.ReasonAttemptsExhausted},
		{"in progress does not count", func(*domain.Quiz) {}, domain.AttemptUsage{InProgress: 3}, ""},
		{"unlimited", func(q *domain.Quiz) { q.MaxAttempts = nil }, domain.AttemptUsage{Completed: 10}, ""},
		{"zero attempts allowed", func(q *domain.Quiz) { q.MaxAttempts = domain.AttemptLimit(0) }, domain.AttemptUsage{}, domain.ReasonAttemptsExhausted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			quiz := exampleQuiz()
			tc.mutate(&quiz)
			got := app.CheckEligibility(quiz, enrolled, tc.usage, baseTime)
			if got.Reason != tc.want || got.Allowed != (tc.want == "") {
				t.Fatalf("expected %q, got %+v", tc.want, got)
			}
			if !got.Allowed {
				if reason := domain.ReasonOf(got.Err()); reason != tc.want {
					t.Fatalf("Err() carries %s, want %s", reason, tc.want)
				}
			}
		})
	}
}

func TestFutureQuizNeverAttemptable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	future := baseTime.Add(time.Minute)
	quiz := exampleQuiz()
	quiz.OpenAt = &future
	f.catalog.PutQuiz(quiz)

	got, err := f.service.CanAttempt(ctx, student("s1"), "quiz-1", f.now)
	if err != nil {
		t.Fatalf("can attempt: %v", err)
	}
	if got.Reason != domain.ReasonOutsideWindow {
		t.Fatalf("expected OUTSIDE_WINDOW, got %+v", got)
	}
	_, err = f.service.StartAttempt(ctx, student("s1"), "quiz-1")
	if got := reasonOf(t, err); got != domain.ReasonOutsideWindow {
		t.Fatalf("expected start to be denied with OUTSIDE_WINDOW, got %s", got)
	}
	if history, _ := f.attempts.ListAttempts(ctx, "quiz-1", "s1"); len(history) != 0 {
		t.Fatalf("denied start must not create an attempt, got %+v", history)
	}
}

func TestAudienceResolvedFromDirectory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	quiz := exampleQuiz()
	quiz.Audience = []domain.AudienceRule{{Scope: domain.AudienceClassSection, ScopeID: "7A"}}
	f.catalog.PutQuiz(quiz)
	f.catalog.Enroll("s1", domain.Enrollment{ClassSectionID: "7A", GradeLevelID: "grade-7"})
	f.catalog.Enroll("s2", domain.Enrollment{ClassSectionID: "7B", GradeLevelID: "grade-7"})

	if got, _ := f.service.CanAttempt(ctx, student("s1"), "quiz-1", f.now); !got.Allowed {
		t.Fatalf("expected s1 allowed, got %+v", got)
	}
	if got, _ := f.service.CanAttempt(ctx, student("s2"), "quiz-1", f.now); got.Reason != domain.ReasonAudienceMismatch {
		t.Fatalf("expected s2 denied, got %+v", got)
	}
}

func TestEligibilityReadsCurrentQuiz(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s1 := student("s1")

	// ListAvailable primes the quiz cache.
	if available, err := f.service.ListAvailable(ctx, s1, f.now); err != nil || len(available) != 1 {
		t.Fatalf("expected quiz listed, got %+v %v", available, err)
	}

	closed := exampleQuiz()
	closed.Status = domain.QuizClosed
	f.catalog.PutQuiz(closed)

	got, err := f.service.CanAttempt(ctx, s1, "quiz-1", f.now)
	if err != nil {
		t.Fatalf("can attempt: %v", err)
	}
	if got.Reason != domain.ReasonNotPublished {
		t.Fatalf("expected NOT_PUBLISHED after close, got %+v", got)
	}
	_, err = f.service.StartAttempt(ctx, s1, "quiz-1")
	if got := reasonOf(t, err); got != domain.ReasonNotPublished {
		t.Fatalf("expected start denied with NOT_PUBLISHED, got %s", got)
	}
}

func TestFinishReadsCurrentAttemptLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s1 := student("s1")

	attempt, err := f.service.StartAttempt(ctx, s1, "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	locked := exampleQuiz()
	locked.MaxAttempts = domain.AttemptLimit(0)
	f.catalog.PutQuiz(locked)

	_, err = f.service.FinishAttempt(ctx, s1, attempt.ID)
	if got := reasonOf(t, err); got != domain.ReasonAttemptsExhausted {
		t.Fatalf("expected finish denied with ATTEMPTS_EXHAUSTED, got %s", got)
	}
}
