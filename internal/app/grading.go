package app

import (
	"context"
	"fmt"
	"time"

	"quiz-attempt-service/internal/domain"
)

// scorer applies the scoring policy of one question type.
type scorer interface {
	score(points float64, correct map[string]float64, selected []string) (isCorrect bool, score float64)
}

// singleChoice scores TRUE_FALSE and MCQ_SINGLE: exactly one selected id, and it is correct.
type singleChoice struct{}

func (singleChoice) score(points float64, correct map[string]float64, selected []string) (bool, float64) {
	if len(selected) != 1 {
		return false, 0
	}
	if _, ok := correct[selected[0]]; !ok {
		return false, 0
	}
	return true, points
}

// multiChoice scores MCQ_MULTI: any wrong id zeroes the question, otherwise credit is
// proportional to the weight of the correct options selected.
type multiChoice struct{}

func (multiChoice) score(points float64, correct map[string]float64, selected []string) (bool, float64) {
	var got float64
	for _, id := range selected {
		w, ok := correct[id]
		if !ok {
			return false, 0
		}
		got += w
	}

	var total float64
	for _, w := range correct {
		total += w
	}
	exact := sameSet(selected, correct)
	if total <= 0 {
		if exact {
			return true, points
		}
		return false, 0
	}
	return exact, points * got / total
}

func scorerFor(t domain.QuestionType) (scorer, error) {
	switch t {
	case domain.TrueFalse, domain.MCQSingle:
		return singleChoice{}, nil
	case domain.MCQMulti:
		return multiChoice{}, nil
	}
	return nil, fmt.Errorf("unsupported question type %q", t)
}

// ScoreQuestion grades one selection against a question's answer key.
func ScoreQuestion(question domain.Question, points float64, selected []string) (bool, float64, error) {
	sc, err := scorerFor(question.Type)
	if err != nil {
		return false, 0, fmt.Errorf("question %s: %w", question.ID, err)
	}
	isCorrect, score := sc.score(points, question.CorrectSet(), selected)
	return isCorrect, score, nil
}

// Grade is a pure function of the sealed questions, the answer key and the stored selections.
// Questions without an answer row are graded as an empty selection.
func Grade(sealed []domain.AttemptQuestion, questions map[string]domain.Question, answers []domain.Answer, gradedAt time.Time) (domain.Grade, error) {
	selections := make(map[string][]string, len(answers))
	for _, a := range answers {
		selections[a.QuestionID] = a.SelectedIDs
	}

	grade := domain.Grade{
		Answers:     make([]domain.Answer, 0, len(sealed)),
		SubmittedAt: gradedAt,
	}
	for _, aq := range sealed {
		question, ok := questions[aq.QuestionID]
		if !ok {
			return domain.Grade{}, domain.QuestionNotFound(aq.QuestionID)
		}
		selected := selections[aq.QuestionID]
		isCorrect, score, err := ScoreQuestion(question, aq.Points, selected)
		if err != nil {
			return domain.Grade{}, err
		}

		grade.MaxScore += aq.Points
		grade.Score += score
		grade.Answers = append(grade.Answers, domain.Answer{
			AttemptID:   aq.AttemptID,
			QuestionID:  aq.QuestionID,
			SelectedIDs: selected,
			IsCorrect:   isCorrect,
			Score:       score,
			UpdatedAt:   gradedAt,
		})
	}
	return grade, nil
}

// FinishAttempt grades the viewer's attempt. Finishing an already graded attempt is a
// no-op that returns the stored score; use RegradeAttempt to recompute it.
func (s *AttemptService) FinishAttempt(ctx context.Context, viewer domain.Viewer, attemptID string) (domain.Result, error) {
	attempt, err := s.ownedAttempt(ctx, viewer, attemptID)
	if err != nil {
		return domain.Result{}, err
	}
	if attempt.Status == domain.AttemptGraded {
		return resultOf(attempt), nil
	}
	return s.finalize(ctx, attempt, false)
}

// RegradeAttempt recomputes the score of a graded attempt from its persisted selections,
// e.g. after a question bank correction. Only teachers and admins may regrade.
func (s *AttemptService) RegradeAttempt(ctx context.Context, viewer domain.Viewer, attemptID string) (domain.Result, error) {
	if !viewer.HasRole(domain.RoleTeacher, domain.RoleAdmin) {
		return domain.Result{}, &domain.StateError{Reason: domain.ReasonForbidden, Detail: "regrade requires a teacher or admin role"}
	}
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.Result{}, err
	}
	if attempt.Status != domain.AttemptGraded {
		return domain.Result{}, &domain.StateError{Reason: domain.ReasonInvalidAttemptState, Detail: string(attempt.Status)}
	}
	return s.finalize(ctx, attempt, true)
}

func (s *AttemptService) finalize(ctx context.Context, attempt domain.Attempt, regrade bool) (domain.Result, error) {
	loadQuiz := s.quizzes.Refresh
	if regrade {
		loadQuiz = s.quizzes.GetQuiz
	}
	quiz, err := loadQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.Result{}, err
	}
	sealed, err := s.attempts.SealedQuestions(ctx, attempt.ID)
	if err != nil {
		return domain.Result{}, err
	}
	ids := make([]string, 0, len(sealed))
	for _, aq := range sealed {
		ids = append(ids, aq.QuestionID)
	}
	questions, err := s.loadQuestions(ctx, ids)
	if err != nil {
		return domain.Result{}, err
	}

	now := s.now()
	finalized, err := s.attempts.FinalizeAttempt(ctx, attempt.ID, func(locked domain.Attempt, usage domain.AttemptUsage, sealed []domain.AttemptQuestion, answers []domain.Answer) (*domain.Grade, error) {
		gradedAt := now
		switch {
		case regrade:
			if locked.Status != domain.AttemptGraded {
				return nil, &domain.StateError{Reason: domain.ReasonInvalidAttemptState, Detail: string(locked.Status)}
			}
			if locked.SubmittedAt != nil {
				gradedAt = *locked.SubmittedAt
			}
		case locked.Status == domain.AttemptGraded:
			// Lost a race with another finish; keep the stored result.
			return nil, nil
		case locked.Status == domain.AttemptInProgress, locked.Status == domain.AttemptSubmitted:
			if locked.Status == domain.AttemptInProgress && usage.Remaining(quiz.MaxAttempts) == 0 {
				return nil, domain.Denied(domain.ReasonAttemptsExhausted)
			}
		default:
			return nil, &domain.StateError{Reason: domain.ReasonInvalidAttemptState, Detail: string(locked.Status)}
		}

		grade, err := Grade(sealed, questions, answers, gradedAt)
		if err != nil {
			return nil, err
		}
		return &grade, nil
	})
	if err != nil {
		return domain.Result{}, err
	}

	s.logger.Info("attempt graded",
		"attempt_id", finalized.ID,
		"quiz_id", finalized.QuizID,
		"student_id", finalized.StudentID,
		"score", finalized.Score,
		"max_score", finalized.MaxScore,
		"regrade", regrade,
	)
	return resultOf(finalized), nil
}

func resultOf(a domain.Attempt) domain.Result {
	return domain.Result{AttemptID: a.ID, Score: a.Score, MaxScore: a.MaxScore}
}
