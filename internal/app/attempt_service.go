package app

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"quiz-attempt-service/internal/domain"
)

// QuizRepository loads quiz definitions (from cache/backing store).
// Refresh bypasses the cache and re-primes it; eligibility decisions use it.
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	Refresh(ctx context.Context, quizID string) (domain.Quiz, error)
	ListPublishedQuizIDs(ctx context.Context) ([]string, error)
}

// QuestionBank serves immutable question content and answer keys.
type QuestionBank interface {
	GetQuestions(ctx context.Context, ids []string) (map[string]domain.Question, error)
}

// Directory resolves a student's active class-section enrollments.
type Directory interface {
	ActiveEnrollments(ctx context.Context, studentID string) ([]domain.Enrollment, error)
}

// StartLocker guards attempt creation for one (quiz, student) pair across processes.
type StartLocker interface {
	Acquire(ctx context.Context, quizID, studentID string) (release func(), err error)
}

// FinalizeFunc runs inside the store's finalization transaction with the attempt row
// and its (quiz, student) pair locked. Returning a nil Grade leaves the attempt untouched.
type FinalizeFunc func(locked domain.Attempt, usage domain.AttemptUsage, sealed []domain.AttemptQuestion, answers []domain.Answer) (*domain.Grade, error)

// AttemptStore persists attempts, their sealed questions and answers.
//
// CreateAttempt and FinalizeAttempt are serialized per (quiz, student): the guard or
// finalize callback observes usage counts that cannot change until the call returns.
type AttemptStore interface {
	Usage(ctx context.Context, quizID, studentID string) (domain.AttemptUsage, error)
	CreateAttempt(ctx context.Context, attempt domain.Attempt, sealed []domain.AttemptQuestion, guard func(domain.AttemptUsage) error) error
	GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error)
	ListAttempts(ctx context.Context, quizID, studentID string) ([]domain.Attempt, error)
	SealedQuestions(ctx context.Context, attemptID string) ([]domain.AttemptQuestion, error)
	Answers(ctx context.Context, attemptID string) ([]domain.Answer, error)
	// SaveAnswer upserts by (attemptID, questionID) and fails with a StateError
	// unless the attempt is still IN_PROGRESS at write time.
	SaveAnswer(ctx context.Context, answer domain.Answer) error
	FinalizeAttempt(ctx context.Context, attemptID string, fn FinalizeFunc) (domain.Attempt, error)
}

// Policy holds the configurable attempt rules.
type Policy struct {
	// MaxOpenAttempts caps IN_PROGRESS attempts per (quiz, student); 0 means unlimited.
	MaxOpenAttempts int
	// EnforceTimeLimit rejects answers submitted after timeLimitSec + TimeLimitGrace.
	EnforceTimeLimit bool
	TimeLimitGrace   time.Duration
}

// AttemptService contains the quiz attempt use cases.
type AttemptService struct {
	quizzes   QuizRepository
	questions QuestionBank
	directory Directory
	attempts  AttemptStore
	locker    StartLocker
	policy    Policy
	logger    *slog.Logger
	now       func() time.Time
	seeds     func() int64
	newID     func() string
}

// Option customizes an AttemptService.
type Option func(*AttemptService)

// WithPolicy sets the attempt policy.
func WithPolicy(p Policy) Option {
	return func(s *AttemptService) { s.policy = p }
}

// WithStartLocker adds a cross-process lock in front of attempt creation.
func WithStartLocker(l StartLocker) Option {
	return func(s *AttemptService) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *AttemptService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *AttemptService) { s.now = now }
}

// WithSeedSource replaces the random seed source; tests use it to pin sealed orders.
func WithSeedSource(seeds func() int64) Option {
	return func(s *AttemptService) { s.seeds = seeds }
}

// WithIDGenerator replaces the attempt id generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *AttemptService) { s.newID = newID }
}

func NewAttemptService(quizzes QuizRepository, questions QuestionBank, directory Directory, attempts AttemptStore, opts ...Option) *AttemptService {
	s := &AttemptService{
		quizzes:   quizzes,
		questions: questions,
		directory: directory,
		attempts:  attempts,
		locker:    noopLocker{},
		logger:    slog.Default(),
		now:       time.Now,
		seeds:     rand.Int64,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string, string) (func(), error) {
	return func() {}, nil
}

// ownedAttempt loads an attempt and checks that viewer is its student.
func (s *AttemptService) ownedAttempt(ctx context.Context, viewer domain.Viewer, attemptID string) (domain.Attempt, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if viewer.ProfileID == "" || attempt.StudentID != viewer.ProfileID {
		return domain.Attempt{}, &domain.StateError{Reason: domain.ReasonNotAttemptOwner}
	}
	return attempt, nil
}

// loadQuestions fetches every id from the bank and fails if any is missing.
func (s *AttemptService) loadQuestions(ctx context.Context, ids []string) (map[string]domain.Question, error) {
	questions, err := s.questions.GetQuestions(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := questions[id]; !ok {
			return nil, domain.QuestionNotFound(id)
		}
	}
	return questions, nil
}

func requireStudent(viewer domain.Viewer) error {
	if viewer.ProfileID == "" {
		return &domain.ValidationError{Reason: domain.ReasonMalformed, Detail: "viewer has no profile id"}
	}
	return nil
}
