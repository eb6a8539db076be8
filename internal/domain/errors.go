package domain

import (
	"errors"
	"fmt"
)

// Reason is a machine-readable failure code surfaced to callers.
type Reason string

const (
	ReasonNotPublished      Reason = "NOT_PUBLISHED"
	ReasonOutsideWindow     Reason = "OUTSIDE_WINDOW"
	ReasonAudienceMismatch  Reason = "AUDIENCE_MISMATCH"
	ReasonAttemptsExhausted Reason = "ATTEMPTS_EXHAUSTED"

	ReasonInvalidAttemptState Reason = "INVALID_ATTEMPT_STATE"
	ReasonNotAttemptOwner     Reason = "NOT_ATTEMPT_OWNER"
	ReasonForbidden           Reason = "FORBIDDEN"
	ReasonTimeLimitExceeded   Reason = "TIME_LIMIT_EXCEEDED"
	ReasonTooManyOpenAttempts Reason = "TOO_MANY_OPEN_ATTEMPTS"

	ReasonUnknownQuestion Reason = "UNKNOWN_QUESTION"
	ReasonUnknownOption   Reason = "UNKNOWN_OPTION"
	ReasonEmptySelection  Reason = "EMPTY_SELECTION"
	ReasonMalformed       Reason = "MALFORMED"

	ReasonNotFound      Reason = "NOT_FOUND"
	ReasonAttemptRace   Reason = "ATTEMPT_RACE"
	ReasonInternalError Reason = "INTERNAL"
)

// ValidationError reports malformed client input.
type ValidationError struct {
	Reason Reason
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Reason, e.Detail)
}

// NotFoundError reports an absent quiz, attempt or question.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// Is matches another NotFoundError of the same entity; an empty target ID matches any id.
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	if !ok {
		return false
	}
	return t.Entity == e.Entity && (t.ID == "" || t.ID == e.ID)
}

// EligibilityError reports why a student may not attempt a quiz.
type EligibilityError struct {
	Reason Reason
}

func (e *EligibilityError) Error() string {
	return "not eligible: " + string(e.Reason)
}

// StateError reports an operation that is illegal for the attempt's status or caller.
type StateError struct {
	Reason Reason
	Detail string
}

func (e *StateError) Error() string {
	if e.Detail == "" {
		return "state: " + string(e.Reason)
	}
	return fmt.Sprintf("state: %s: %s", e.Reason, e.Detail)
}

// ConcurrencyError reports a lost race on the attempt-count serialization point.
type ConcurrencyError struct {
	Detail string
}

func (e *ConcurrencyError) Error() string {
	return "concurrent attempt operation: " + e.Detail
}

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = &NotFoundError{Entity: "quiz"}
	// ErrQuestionNotFound indicates a referenced question is missing from the bank.
	ErrQuestionNotFound = &NotFoundError{Entity: "question"}
	// ErrAttemptNotFound indicates the attempt id is unknown.
	ErrAttemptNotFound = &NotFoundError{Entity: "attempt"}
)

// QuizNotFound builds a NotFoundError for a quiz id.
func QuizNotFound(id string) error { return &NotFoundError{Entity: "quiz", ID: id} }

// QuestionNotFound builds a NotFoundError for a question id.
func QuestionNotFound(id string) error { return &NotFoundError{Entity: "question", ID: id} }

// AttemptNotFound builds a NotFoundError for an attempt id.
func AttemptNotFound(id string) error { return &NotFoundError{Entity: "attempt", ID: id} }

// Denied builds an EligibilityError.
func Denied(reason Reason) error { return &EligibilityError{Reason: reason} }

// ReasonOf extracts the machine-readable reason carried by err.
// Errors outside the domain taxonomy map to ReasonInternalError.
func ReasonOf(err error) Reason {
	var (
		validation  *ValidationError
		notFound    *NotFoundError
		eligibility *EligibilityError
		state       *StateError
		concurrency *ConcurrencyError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validation):
		return validation.Reason
	case errors.As(err, &notFound):
		return ReasonNotFound
	case errors.As(err, &eligibility):
		return eligibility.Reason
	case errors.As(err, &state):
		return state.Reason
	case errors.As(err, &concurrency):
		return ReasonAttemptRace
	}
	return ReasonInternalError
}
