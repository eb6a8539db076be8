package domain

import "time"

// QuizStatus is the publication state owned by the authoring collaborator.
type QuizStatus string

const (
	QuizDraft     QuizStatus = "DRAFT"
	QuizPublished QuizStatus = "PUBLISHED"
	QuizClosed    QuizStatus = "CLOSED"
)

// AudienceScope selects which students a quiz is addressed to.
type AudienceScope string

const (
	AudienceAll          AudienceScope = "ALL"
	AudienceGradeLevel   AudienceScope = "GRADE_LEVEL"
	AudienceClassSection AudienceScope = "CLASS_SECTION"
	AudienceSubject      AudienceScope = "SUBJECT"
)

// AudienceRule grants access to a scope. An empty ScopeID matches any id of that scope.
type AudienceRule struct {
	Scope   AudienceScope `json:"scope"`
	ScopeID string        `json:"scopeId,omitempty"`
}

// QuestionRef places a bank question inside a quiz.
type QuestionRef struct {
	QuestionID string  `json:"questionId"`
	Points     float64 `json:"points"`
	OrderIndex int     `json:"orderIndex"`
}

// Quiz is the authored definition read from the quiz authoring collaborator.
type Quiz struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	Status           QuizStatus     `json:"status"`
	OpenAt           *time.Time     `json:"openAt,omitempty"`
	CloseAt          *time.Time     `json:"closeAt,omitempty"`
	MaxAttempts      *int           `json:"maxAttempts,omitempty"` // nil means unlimited
	ShuffleQuestions bool           `json:"shuffleQuestions"`
	ShuffleOptions   bool           `json:"shuffleOptions"`
	TimeLimitSec     int            `json:"timeLimitSec"`
	Audience         []AudienceRule `json:"audience"`
	Questions        []QuestionRef  `json:"questions"`
}

// QuestionIDs returns the ids of every referenced question in authored slice order.
func (q Quiz) QuestionIDs() []string {
	ids := make([]string, 0, len(q.Questions))
	for _, ref := range q.Questions {
		ids = append(ids, ref.QuestionID)
	}
	return ids
}

// QuestionType discriminates the scoring policy of a question.
type QuestionType string

const (
	MCQSingle QuestionType = "MCQ_SINGLE"
	MCQMulti  QuestionType = "MCQ_MULTI"
	TrueFalse QuestionType = "TRUE_FALSE"
)

// Valid reports whether t is one of the supported question types.
func (t QuestionType) Valid() bool {
	switch t {
	case MCQSingle, MCQMulti, TrueFalse:
		return true
	}
	return false
}

// Option is one selectable answer of a question.
type Option struct {
	ID         string            `json:"id"`
	Text       map[string]string `json:"text,omitempty"` // locale -> text
	Correct    bool              `json:"correct"`
	Weight     float64           `json:"weight,omitempty"` // defaults to 1 if zero
	OrderIndex int               `json:"orderIndex"`
}

// EffectiveWeight returns the partial-credit weight of the option.
func (o Option) EffectiveWeight() float64 {
	if o.Weight == 0 {
		return 1
	}
	return o.Weight
}

// Question is an immutable question bank entry.
type Question struct {
	ID      string            `json:"id"`
	Type    QuestionType      `json:"type"`
	Prompt  map[string]string `json:"prompt,omitempty"` // locale -> text
	Options []Option          `json:"options"`
}

// CorrectSet returns the correct option ids mapped to their weights.
func (q Question) CorrectSet() map[string]float64 {
	set := make(map[string]float64)
	for _, opt := range q.Options {
		if opt.Correct {
			set[opt.ID] = opt.EffectiveWeight()
		}
	}
	return set
}

// Enrollment is one active class-section enrollment with its academic links.
type Enrollment struct {
	ClassSectionID string   `json:"classSectionId"`
	GradeLevelID   string   `json:"gradeLevelId"`
	SubjectIDs     []string `json:"subjectIds"`
}

// Role is an identity role carried by the viewer.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleTeacher Role = "TEACHER"
	RoleAdmin   Role = "ADMIN"
)

// Viewer is the authenticated caller, passed explicitly into every operation.
type Viewer struct {
	UserID    string `json:"userId"`
	ProfileID string `json:"profileId"`
	Roles     []Role `json:"roles"`
}

// HasRole reports whether the viewer carries any of the given roles.
func (v Viewer) HasRole(roles ...Role) bool {
	for _, have := range v.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// AttemptStatus tracks an attempt through its lifecycle.
type AttemptStatus string

const (
	AttemptCreated    AttemptStatus = "CREATED"
	AttemptInProgress AttemptStatus = "IN_PROGRESS"
	AttemptSubmitted  AttemptStatus = "SUBMITTED"
	AttemptGraded     AttemptStatus = "GRADED"
)

// Completed reports whether the status consumes an attempt slot.
func (s AttemptStatus) Completed() bool {
	return s == AttemptSubmitted || s == AttemptGraded
}

// Attempt is one student's run through a sealed copy of a quiz.
type Attempt struct {
	ID           string        `json:"id"`
	QuizID       string        `json:"quizId"`
	StudentID    string        `json:"studentId"`
	Status       AttemptStatus `json:"status"`
	Seed         int64         `json:"seed"`
	StartedAt    time.Time     `json:"startedAt"`
	SubmittedAt  *time.Time    `json:"submittedAt,omitempty"`
	Score        float64       `json:"score"`
	MaxScore     float64       `json:"maxScore"`
	TimeLimitSec int           `json:"timeLimitSec"`
}

// AttemptQuestion is the sealed position of one question inside an attempt.
type AttemptQuestion struct {
	AttemptID   string   `json:"attemptId"`
	QuestionID  string   `json:"questionId"`
	OrderIndex  int      `json:"orderIndex"`
	OptionOrder []string `json:"optionOrder"`
	Points      float64  `json:"points"`
}

// HasOption reports whether optionID belongs to the sealed option list.
func (aq AttemptQuestion) HasOption(optionID string) bool {
	for _, id := range aq.OptionOrder {
		if id == optionID {
			return true
		}
	}
	return false
}

// Answer is the latest submission for one question of an attempt.
type Answer struct {
	AttemptID   string    `json:"attemptId"`
	QuestionID  string    `json:"questionId"`
	SelectedIDs []string  `json:"selectedOptionIds"`
	IsCorrect   bool      `json:"isCorrect"`
	Score       float64   `json:"score"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// AnswerSubmission is one client-submitted selection.
type AnswerSubmission struct {
	QuestionID        string
	SelectedOptionIDs []string
}

// AttemptUsage summarizes the attempts of one student on one quiz.
type AttemptUsage struct {
	Completed  int
	InProgress int
}

// AttemptLimit returns a maxAttempts value of n.
func AttemptLimit(n int) *int {
	return &n
}

// Remaining returns max(0, maxAttempts - completed), or -1 when maxAttempts is nil (unlimited).
func (u AttemptUsage) Remaining(maxAttempts *int) int {
	if maxAttempts == nil {
		return -1
	}
	if left := *maxAttempts - u.Completed; left > 0 {
		return left
	}
	return 0
}

// Grade is the outcome of grading a sealed attempt.
type Grade struct {
	Answers     []Answer
	Score       float64
	MaxScore    float64
	SubmittedAt time.Time
}

// Result is the aggregate returned to callers after finishing.
type Result struct {
	AttemptID string  `json:"attemptId"`
	Score     float64 `json:"score"`
	MaxScore  float64 `json:"maxScore"`
}
