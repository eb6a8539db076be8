package app

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"quiz-attempt-service/internal/domain"
)

// Seal computes the per-attempt question and option order from seed alone.
// Questions start in authored order (orderIndex ascending, ties by question id) and options
// in their authored order; shuffles draw from one continuing stream, questions first.
func Seal(quiz domain.Quiz, questions map[string]domain.Question, seed int64) ([]domain.AttemptQuestion, error) {
	refs := slices.Clone(quiz.Questions)
	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].OrderIndex != refs[j].OrderIndex {
			return refs[i].OrderIndex < refs[j].OrderIndex
		}
		return refs[i].QuestionID < refs[j].QuestionID
	})

	rng := newStream(seed)
	if quiz.ShuffleQuestions {
		shuffle(rng, refs)
	}

	sealed := make([]domain.AttemptQuestion, 0, len(refs))
	for position, ref := range refs {
		question, ok := questions[ref.QuestionID]
		if !ok {
			return nil, domain.QuestionNotFound(ref.QuestionID)
		}
		if !question.Type.Valid() {
			return nil, fmt.Errorf("question %s: unsupported type %q", question.ID, question.Type)
		}

		options := slices.Clone(question.Options)
		sort.SliceStable(options, func(i, j int) bool {
			if options[i].OrderIndex != options[j].OrderIndex {
				return options[i].OrderIndex < options[j].OrderIndex
			}
			return options[i].ID < options[j].ID
		})
		if quiz.ShuffleOptions {
			shuffle(rng, options)
		}

		order := make([]string, 0, len(options))
		for _, opt := range options {
			order = append(order, opt.ID)
		}
		sealed = append(sealed, domain.AttemptQuestion{
			QuestionID:  ref.QuestionID,
			OrderIndex:  position,
			OptionOrder: order,
			Points:      ref.Points,
		})
	}
	return sealed, nil
}

// StartAttempt seals a new attempt of quizID for the viewer.
func (s *AttemptService) StartAttempt(ctx context.Context, viewer domain.Viewer, quizID string) (domain.Attempt, error) {
	if err := requireStudent(viewer); err != nil {
		return domain.Attempt{}, err
	}
	studentID := viewer.ProfileID

	quiz, err := s.quizzes.Refresh(ctx, quizID)
	if err != nil {
		return domain.Attempt{}, err
	}

	now := s.now()
	eligibility, err := s.evaluate(ctx, studentID, quiz, now, func() ([]domain.Enrollment, error) {
		return s.directory.ActiveEnrollments(ctx, studentID)
	})
	if err != nil {
		return domain.Attempt{}, err
	}
	if !eligibility.Allowed {
		s.logger.Info("attempt start denied", "quiz_id", quizID, "student_id", studentID, "reason", eligibility.Reason)
		return domain.Attempt{}, eligibility.Err()
	}
	if err := s.checkOpenAttempts(eligibility.Usage); err != nil {
		return domain.Attempt{}, err
	}

	questions, err := s.loadQuestions(ctx, quiz.QuestionIDs())
	if err != nil {
		return domain.Attempt{}, err
	}

	seed := s.seeds()
	sealed, err := Seal(quiz, questions, seed)
	if err != nil {
		return domain.Attempt{}, err
	}

	attempt := domain.Attempt{
		ID:           s.newID(),
		QuizID:       quiz.ID,
		StudentID:    studentID,
		Status:       domain.AttemptInProgress,
		Seed:         seed,
		StartedAt:    now,
		TimeLimitSec: quiz.TimeLimitSec,
	}
	for i := range sealed {
		sealed[i].AttemptID = attempt.ID
	}

	release, err := s.locker.Acquire(ctx, quiz.ID, studentID)
	if err != nil {
		return domain.Attempt{}, err
	}
	defer release()

	// Re-validated inside the store's per-(quiz, student) serialization point.
	guard := func(usage domain.AttemptUsage) error {
		if usage.Remaining(quiz.MaxAttempts) == 0 {
			return domain.Denied(domain.ReasonAttemptsExhausted)
		}
		return s.checkOpenAttempts(usage)
	}
	if err := s.attempts.CreateAttempt(ctx, attempt, sealed, guard); err != nil {
		return domain.Attempt{}, err
	}

	s.logger.Info("attempt started",
		"attempt_id", attempt.ID,
		"quiz_id", quiz.ID,
		"student_id", studentID,
		"questions", len(sealed),
	)
	return attempt, nil
}

func (s *AttemptService) checkOpenAttempts(usage domain.AttemptUsage) error {
	if s.policy.MaxOpenAttempts > 0 && usage.InProgress >= s.policy.MaxOpenAttempts {
		return &domain.StateError{
			Reason: domain.ReasonTooManyOpenAttempts,
			Detail: fmt.Sprintf("%d attempts already in progress", usage.InProgress),
		}
	}
	return nil
}

// ReplayReport compares the stored sealed order of an attempt with one re-derived from its seed.
type ReplayReport struct {
	Attempt  domain.Attempt           `json:"attempt"`
	Stored   []domain.AttemptQuestion `json:"stored"`
	Replayed []domain.AttemptQuestion `json:"replayed"`
	Match    bool                     `json:"match"`
}

// ReplaySeal re-derives the sealed order of attemptID from its stored seed against the
// current quiz and question bank. A mismatch means the authored content changed since sealing.
func (s *AttemptService) ReplaySeal(ctx context.Context, attemptID string) (ReplayReport, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return ReplayReport{}, err
	}
	stored, err := s.attempts.SealedQuestions(ctx, attemptID)
	if err != nil {
		return ReplayReport{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return ReplayReport{}, err
	}
	questions, err := s.loadQuestions(ctx, quiz.QuestionIDs())
	if err != nil {
		return ReplayReport{}, err
	}
	replayed, err := Seal(quiz, questions, attempt.Seed)
	if err != nil {
		return ReplayReport{}, err
	}
	for i := range replayed {
		replayed[i].AttemptID = attempt.ID
	}
	return ReplayReport{
		Attempt:  attempt,
		Stored:   stored,
		Replayed: replayed,
		Match:    sameOrder(stored, replayed),
	}, nil
}

func sameOrder(a, b []domain.AttemptQuestion) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].QuestionID != b[i].QuestionID || !slices.Equal(a[i].OptionOrder, b[i].OptionOrder) {
			return false
		}
	}
	return true
}
