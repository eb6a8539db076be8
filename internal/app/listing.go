package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"quiz-attempt-service/internal/domain"
)

// AvailableQuiz is a quiz the viewer may attempt right now.
type AvailableQuiz struct {
	QuizID            string     `json:"quizId"`
	Title             string     `json:"title"`
	CloseAt           *time.Time `json:"closeAt,omitempty"`
	TimeLimitSec      int        `json:"timeLimitSec"`
	QuestionCount     int        `json:"questionCount"`
	AttemptsRemaining int        `json:"attemptsRemaining"`
}

const listConcurrency = 8

// ListAvailable returns the published quizzes that pass the eligibility resolver for viewer at now,
// in the order the authoring collaborator lists them.
func (s *AttemptService) ListAvailable(ctx context.Context, viewer domain.Viewer, now time.Time) ([]AvailableQuiz, error) {
	if err := requireStudent(viewer); err != nil {
		return nil, err
	}
	ids, err := s.quizzes.ListPublishedQuizIDs(ctx)
	if err != nil {
		return nil, err
	}

	// Enrollments are fetched at most once, and only if some quiz needs them.
	enrollments := sync.OnceValues(func() ([]domain.Enrollment, error) {
		return s.directory.ActiveEnrollments(ctx, viewer.ProfileID)
	})

	results := make([]*AvailableQuiz, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			quiz, err := s.quizzes.GetQuiz(gctx, id)
			if errors.Is(err, domain.ErrQuizNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			eligibility, err := s.evaluate(gctx, viewer.ProfileID, quiz, now, enrollments)
			if err != nil {
				return err
			}
			if !eligibility.Allowed {
				return nil
			}
			results[i] = &AvailableQuiz{
				QuizID:            quiz.ID,
				Title:             quiz.Title,
				CloseAt:           quiz.CloseAt,
				TimeLimitSec:      quiz.TimeLimitSec,
				QuestionCount:     len(quiz.Questions),
				AttemptsRemaining: eligibility.AttemptsRemaining,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	available := make([]AvailableQuiz, 0, len(ids))
	for _, r := range results {
		if r != nil {
			available = append(available, *r)
		}
	}
	return available, nil
}

// ListAttempts returns the viewer's own attempts on quizID, oldest first.
func (s *AttemptService) ListAttempts(ctx context.Context, viewer domain.Viewer, quizID string) ([]domain.Attempt, error) {
	if err := requireStudent(viewer); err != nil {
		return nil, err
	}
	return s.attempts.ListAttempts(ctx, quizID, viewer.ProfileID)
}
