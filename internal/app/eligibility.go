package app

import (
	"context"
	"time"

	"quiz-attempt-service/internal/domain"
)

// Eligibility is the outcome of the eligibility resolver.
type Eligibility struct {
	Allowed bool          `json:"allowed"`
	Reason  domain.Reason `json:"reason,omitempty"`
	// AttemptsRemaining is -1 for quizzes without an attempt cap.
	AttemptsRemaining int                 `json:"attemptsRemaining"`
	Usage             domain.AttemptUsage `json:"-"`
}

// Err returns the EligibilityError for a denied outcome, nil otherwise.
func (e Eligibility) Err() error {
	if e.Allowed {
		return nil
	}
	return domain.Denied(e.Reason)
}

func denied(reason domain.Reason) Eligibility {
	return Eligibility{Reason: reason}
}

// CheckEligibility runs the resolver over already-loaded inputs. Checks run in order and
// the first failure wins: publication, window, audience, attempts remaining.
func CheckEligibility(quiz domain.Quiz, enrollments []domain.Enrollment, usage domain.AttemptUsage, now time.Time) Eligibility {
	e, _ := resolveEligibility(quiz, now,
		func() ([]domain.Enrollment, error) { return enrollments, nil },
		func() (domain.AttemptUsage, error) { return usage, nil },
	)
	return e
}

// resolveEligibility loads enrollments and usage only when the earlier checks pass.
func resolveEligibility(
	quiz domain.Quiz,
	now time.Time,
	enrollments func() ([]domain.Enrollment, error),
	usage func() (domain.AttemptUsage, error),
) (Eligibility, error) {
	if quiz.Status != domain.QuizPublished {
		return denied(domain.ReasonNotPublished), nil
	}
	if !withinWindow(quiz, now) {
		return denied(domain.ReasonOutsideWindow), nil
	}
	if !audienceOpen(quiz.Audience) {
		list, err := enrollments()
		if err != nil {
			return Eligibility{}, err
		}
		if !audienceMatches(quiz.Audience, list) {
			return denied(domain.ReasonAudienceMismatch), nil
		}
	}
	u, err := usage()
	if err != nil {
		return Eligibility{}, err
	}
	remaining := u.Remaining(quiz.MaxAttempts)
	if remaining == 0 {
		e := denied(domain.ReasonAttemptsExhausted)
		e.Usage = u
		return e, nil
	}
	return Eligibility{Allowed: true, AttemptsRemaining: remaining, Usage: u}, nil
}

// withinWindow treats both bounds as inclusive and a nil bound as unbounded.
func withinWindow(quiz domain.Quiz, now time.Time) bool {
	if quiz.OpenAt != nil && now.Before(*quiz.OpenAt) {
		return false
	}
	if quiz.CloseAt != nil && now.After(*quiz.CloseAt) {
		return false
	}
	return true
}

func audienceOpen(rules []domain.AudienceRule) bool {
	for _, rule := range rules {
		if rule.Scope == domain.AudienceAll {
			return true
		}
	}
	return false
}

func audienceMatches(rules []domain.AudienceRule, enrollments []domain.Enrollment) bool {
	for _, rule := range rules {
		for _, e := range enrollments {
			if ruleMatches(rule, e) {
				return true
			}
		}
	}
	return false
}

func ruleMatches(rule domain.AudienceRule, e domain.Enrollment) bool {
	switch rule.Scope {
	case domain.AudienceAll:
		return true
	case domain.AudienceClassSection:
		return idMatches(rule.ScopeID, e.ClassSectionID)
	case domain.AudienceGradeLevel:
		return idMatches(rule.ScopeID, e.GradeLevelID)
	case domain.AudienceSubject:
		for _, subjectID := range e.SubjectIDs {
			if idMatches(rule.ScopeID, subjectID) {
				return true
			}
		}
	}
	return false
}

func idMatches(scopeID, linked string) bool {
	if linked == "" {
		return false
	}
	return scopeID == "" || scopeID == linked
}

// CanAttempt reports whether viewer may start an attempt on quizID at now. It never writes.
func (s *AttemptService) CanAttempt(ctx context.Context, viewer domain.Viewer, quizID string, now time.Time) (Eligibility, error) {
	if err := requireStudent(viewer); err != nil {
		return Eligibility{}, err
	}
	quiz, err := s.quizzes.Refresh(ctx, quizID)
	if err != nil {
		return Eligibility{}, err
	}
	return s.evaluate(ctx, viewer.ProfileID, quiz, now, func() ([]domain.Enrollment, error) {
		return s.directory.ActiveEnrollments(ctx, viewer.ProfileID)
	})
}

func (s *AttemptService) evaluate(ctx context.Context, studentID string, quiz domain.Quiz, now time.Time, enrollments func() ([]domain.Enrollment, error)) (Eligibility, error) {
	return resolveEligibility(quiz, now, enrollments, func() (domain.AttemptUsage, error) {
		return s.attempts.Usage(ctx, quiz.ID, studentID)
	})
}
