package postgres

import (
	"time"

	"github.com/uptrace/bun"
	"quiz-attempt-service/internal/domain"
)

type slotRow struct {
	bun.BaseModel `bun:"table:quiz_attempt_slots"`

	QuizID    string `bun:"quiz_id,pk"`
	StudentID string `bun:"student_id,pk"`
}

type attemptRow struct {
	bun.BaseModel `bun:"table:quiz_attempts,alias:a"`

	ID           string     `bun:"id,pk"`
	QuizID       string     `bun:"quiz_id"`
	StudentID    string     `bun:"student_id"`
	Status       string     `bun:"status"`
	Seed         int64      `bun:"seed"`
	StartedAt    time.Time  `bun:"started_at"`
	SubmittedAt  *time.Time `bun:"submitted_at"`
	Score        float64    `bun:"score"`
	MaxScore     float64    `bun:"max_score"`
	TimeLimitSec int        `bun:"time_limit_sec"`
}

type sealedRow struct {
	bun.BaseModel `bun:"table:quiz_attempt_questions,alias:aq"`

	AttemptID   string   `bun:"attempt_id,pk"`
	QuestionID  string   `bun:"question_id,pk"`
	OrderIndex  int      `bun:"order_index"`
	OptionOrder []string `bun:"option_order,array"`
	Points      float64  `bun:"points"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:quiz_attempt_answers,alias:ans"`

	AttemptID  string    `bun:"attempt_id,pk"`
	QuestionID string    `bun:"question_id,pk"`
	Selected   []string  `bun:"selected,array"`
	IsCorrect  bool      `bun:"is_correct"`
	Score      float64   `bun:"score"`
	UpdatedAt  time.Time `bun:"updated_at"`
}

func attemptFromDomain(a domain.Attempt) *attemptRow {
	return &attemptRow{
		ID:           a.ID,
		QuizID:       a.QuizID,
		StudentID:    a.StudentID,
		Status:       string(a.Status),
		Seed:         a.Seed,
		StartedAt:    a.StartedAt,
		SubmittedAt:  a.SubmittedAt,
		Score:        a.Score,
		MaxScore:     a.MaxScore,
		TimeLimitSec: a.TimeLimitSec,
	}
}

func (r attemptRow) toDomain() domain.Attempt {
	return domain.Attempt{
		ID:           r.ID,
		QuizID:       r.QuizID,
		StudentID:    r.StudentID,
		Status:       domain.AttemptStatus(r.Status),
		Seed:         r.Seed,
		StartedAt:    r.StartedAt,
		SubmittedAt:  r.SubmittedAt,
		Score:        r.Score,
		MaxScore:     r.MaxScore,
		TimeLimitSec: r.TimeLimitSec,
	}
}

func (r sealedRow) toDomain() domain.AttemptQuestion {
	return domain.AttemptQuestion{
		AttemptID:   r.AttemptID,
		QuestionID:  r.QuestionID,
		OrderIndex:  r.OrderIndex,
		OptionOrder: r.OptionOrder,
		Points:      r.Points,
	}
}

func answerFromDomain(a domain.Answer) answerRow {
	selected := a.SelectedIDs
	if selected == nil {
		selected = []string{}
	}
	return answerRow{
		AttemptID:  a.AttemptID,
		QuestionID: a.QuestionID,
		Selected:   selected,
		IsCorrect:  a.IsCorrect,
		Score:      a.Score,
		UpdatedAt:  a.UpdatedAt,
	}
}

func (r answerRow) toDomain() domain.Answer {
	return domain.Answer{
		AttemptID:   r.AttemptID,
		QuestionID:  r.QuestionID,
		SelectedIDs: r.Selected,
		IsCorrect:   r.IsCorrect,
		Score:       r.Score,
		UpdatedAt:   r.UpdatedAt,
	}
}
