package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"quiz-attempt-service/internal/domain"
)

// SubmitAnswers records selections for an in-progress attempt with autosave semantics:
// a later submission for a question fully replaces the earlier one, and partial coverage is legal.
// The batch is validated as a whole; accepted answers are then written one question at a time,
// so a failure midway never discards answers already stored.
// Answers are refused with ATTEMPTS_EXHAUSTED once the attempt could no longer be finished.
func (s *AttemptService) SubmitAnswers(ctx context.Context, viewer domain.Viewer, attemptID string, submissions []domain.AnswerSubmission) error {
	attempt, err := s.ownedAttempt(ctx, viewer, attemptID)
	if err != nil {
		return err
	}
	if attempt.Status != domain.AttemptInProgress {
		return &domain.StateError{Reason: domain.ReasonInvalidAttemptState, Detail: string(attempt.Status)}
	}
	now := s.now()
	if err := s.checkTimeLimit(attempt, now); err != nil {
		return err
	}
	if err := s.checkFinishable(ctx, attempt); err != nil {
		return err
	}
	if len(submissions) == 0 {
		return nil
	}

	sealed, err := s.attempts.SealedQuestions(ctx, attemptID)
	if err != nil {
		return err
	}
	byQuestion := make(map[string]domain.AttemptQuestion, len(sealed))
	for _, aq := range sealed {
		byQuestion[aq.QuestionID] = aq
	}

	selections := make(map[string][]string, len(submissions))
	order := make([]string, 0, len(submissions))
	for _, sub := range submissions {
		aq, ok := byQuestion[sub.QuestionID]
		if !ok {
			return &domain.ValidationError{Reason: domain.ReasonUnknownQuestion, Detail: sub.QuestionID}
		}
		selected, err := normalizeSelection(aq, sub.SelectedOptionIDs)
		if err != nil {
			return err
		}
		if _, seen := selections[sub.QuestionID]; !seen {
			order = append(order, sub.QuestionID)
		}
		selections[sub.QuestionID] = selected
	}

	questions, err := s.loadQuestions(ctx, order)
	if err != nil {
		return err
	}

	for _, questionID := range order {
		selected := selections[questionID]
		answer := domain.Answer{
			AttemptID:   attemptID,
			QuestionID:  questionID,
			SelectedIDs: selected,
			IsCorrect:   sameSet(selected, questions[questionID].CorrectSet()),
			UpdatedAt:   now,
		}
		if err := s.attempts.SaveAnswer(ctx, answer); err != nil {
			return fmt.Errorf("save answer %s: %w", questionID, err)
		}
	}

	s.logger.Debug("answers saved", "attempt_id", attemptID, "count", len(order))
	return nil
}

// normalizeSelection deduplicates and sorts option ids and checks them against the sealed options.
func normalizeSelection(aq domain.AttemptQuestion, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, &domain.ValidationError{Reason: domain.ReasonEmptySelection, Detail: aq.QuestionID}
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !aq.HasOption(id) {
			return nil, &domain.ValidationError{
				Reason: domain.ReasonUnknownOption,
				Detail: fmt.Sprintf("option %q is not part of question %s", id, aq.QuestionID),
			}
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// sameSet reports exact set equality between a selection and the correct set.
func sameSet(selected []string, correct map[string]float64) bool {
	if len(selected) != len(correct) {
		return false
	}
	for _, id := range selected {
		if _, ok := correct[id]; !ok {
			return false
		}
	}
	return true
}

func (s *AttemptService) checkTimeLimit(attempt domain.Attempt, now time.Time) error {
	if !s.policy.EnforceTimeLimit || attempt.TimeLimitSec <= 0 {
		return nil
	}
	deadline := attempt.StartedAt.Add(time.Duration(attempt.TimeLimitSec)*time.Second + s.policy.TimeLimitGrace)
	if now.After(deadline) {
		return &domain.StateError{Reason: domain.ReasonTimeLimitExceeded, Detail: "deadline " + deadline.UTC().Format(time.RFC3339)}
	}
	return nil
}

// checkFinishable rejects work on an in-progress attempt whose quiz has no attempts left.
func (s *AttemptService) checkFinishable(ctx context.Context, attempt domain.Attempt) error {
	quiz, err := s.quizzes.Refresh(ctx, attempt.QuizID)
	if err != nil {
		return err
	}
	usage, err := s.attempts.Usage(ctx, attempt.QuizID, attempt.StudentID)
	if err != nil {
		return err
	}
	if usage.Remaining(quiz.MaxAttempts) == 0 {
		return domain.Denied(domain.ReasonAttemptsExhausted)
	}
	return nil
}
