package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptStore.
// A single mutex serializes every write, which trivially satisfies the
// per-(quiz, student) serialization the service relies on.
type AttemptStore struct {
	mu       sync.RWMutex
	attempts map[string]domain.Attempt
	order    []string
	sealed   map[string][]domain.AttemptQuestion
	answers  map[string]map[string]domain.Answer
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts: make(map[string]domain.Attempt),
		sealed:   make(map[string][]domain.AttemptQuestion),
		answers:  make(map[string]map[string]domain.Answer),
	}
}

var _ app.AttemptStore = (*AttemptStore)(nil)

func (s *AttemptStore) Usage(_ context.Context, quizID, studentID string) (domain.AttemptUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usageLocked(quizID, studentID), nil
}

func (s *AttemptStore) usageLocked(quizID, studentID string) domain.AttemptUsage {
	var usage domain.AttemptUsage
	for _, a := range s.attempts {
		if a.QuizID != quizID || a.StudentID != studentID {
			continue
		}
		switch {
		case a.Status.Completed():
			usage.Completed++
		case a.Status == domain.AttemptInProgress:
			usage.InProgress++
		}
	}
	return usage
}

func (s *AttemptStore) CreateAttempt(_ context.Context, attempt domain.Attempt, sealed []domain.AttemptQuestion, guard func(domain.AttemptUsage) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.attempts[attempt.ID]; exists {
		return fmt.Errorf("attempt %s already exists", attempt.ID)
	}
	if guard != nil {
		if err := guard(s.usageLocked(attempt.QuizID, attempt.StudentID)); err != nil {
			return err
		}
	}

	rows := cloneSealed(sealed)
	sort.Slice(rows, func(i, j int) bool { return rows[i].OrderIndex < rows[j].OrderIndex })
	s.attempts[attempt.ID] = attempt
	s.order = append(s.order, attempt.ID)
	s.sealed[attempt.ID] = rows
	s.answers[attempt.ID] = make(map[string]domain.Answer)
	return nil
}

func (s *AttemptStore) GetAttempt(_ context.Context, attemptID string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.AttemptNotFound(attemptID)
	}
	return attempt, nil
}

func (s *AttemptStore) ListAttempts(_ context.Context, quizID, studentID string) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Attempt, 0)
	for _, id := range s.order {
		a := s.attempts[id]
		if a.QuizID == quizID && a.StudentID == studentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *AttemptStore) SealedQuestions(_ context.Context, attemptID string) ([]domain.AttemptQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, ok := s.sealed[attemptID]
	if !ok {
		return nil, domain.AttemptNotFound(attemptID)
	}
	return cloneSealed(rows), nil
}

func (s *AttemptStore) Answers(_ context.Context, attemptID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.attempts[attemptID]; !ok {
		return nil, domain.AttemptNotFound(attemptID)
	}
	return s.answersLocked(attemptID), nil
}

// answersLocked returns answers in sealed question order.
func (s *AttemptStore) answersLocked(attemptID string) []domain.Answer {
	byQuestion := s.answers[attemptID]
	out := make([]domain.Answer, 0, len(byQuestion))
	for _, aq := range s.sealed[attemptID] {
		if a, ok := byQuestion[aq.QuestionID]; ok {
			a.SelectedIDs = slices.Clone(a.SelectedIDs)
			out = append(out, a)
		}
	}
	return out
}

func (s *AttemptStore) SaveAnswer(_ context.Context, answer domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[answer.AttemptID]
	if !ok {
		return domain.AttemptNotFound(answer.AttemptID)
	}
	if attempt.Status != domain.AttemptInProgress {
		return &domain.StateError{Reason: domain.ReasonInvalidAttemptState, Detail: string(attempt.Status)}
	}
	answer.SelectedIDs = slices.Clone(answer.SelectedIDs)
	s.answers[answer.AttemptID][answer.QuestionID] = answer
	return nil
}

func (s *AttemptStore) FinalizeAttempt(_ context.Context, attemptID string, fn app.FinalizeFunc) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.AttemptNotFound(attemptID)
	}
	usage := s.usageLocked(attempt.QuizID, attempt.StudentID)
	grade, err := fn(attempt, usage, cloneSealed(s.sealed[attemptID]), s.answersLocked(attemptID))
	if err != nil {
		return domain.Attempt{}, err
	}
	if grade == nil {
		return attempt, nil
	}

	for _, a := range grade.Answers {
		a.SelectedIDs = slices.Clone(a.SelectedIDs)
		s.answers[attemptID][a.QuestionID] = a
	}
	submittedAt := grade.SubmittedAt
	attempt.Status = domain.AttemptGraded
	attempt.SubmittedAt = &submittedAt
	attempt.Score = grade.Score
	attempt.MaxScore = grade.MaxScore
	s.attempts[attemptID] = attempt
	return attempt, nil
}

func cloneSealed(rows []domain.AttemptQuestion) []domain.AttemptQuestion {
	out := make([]domain.AttemptQuestion, len(rows))
	for i, r := range rows {
		r.OptionOrder = slices.Clone(r.OptionOrder)
		out[i] = r
	}
	return out
}
