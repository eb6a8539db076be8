package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// AttemptStore persists attempts with bun. Creation and finalization lock the
// quiz_attempt_slots row of the (quiz, student) pair, which serializes them per pair.
type AttemptStore struct {
	db *bun.DB
}

func NewAttemptStore(db *bun.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

var _ app.AttemptStore = (*AttemptStore)(nil)

func (s *AttemptStore) Usage(ctx context.Context, quizID, studentID string) (domain.AttemptUsage, error) {
	usage, err := usageOf(ctx, s.db, quizID, studentID)
	return usage, mapErr(err)
}

func (s *AttemptStore) CreateAttempt(ctx context.Context, attempt domain.Attempt, sealed []domain.AttemptQuestion, guard func(domain.AttemptUsage) error) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockSlot(ctx, tx, attempt.QuizID, attempt.StudentID); err != nil {
			return err
		}
		if guard != nil {
			usage, err := usageOf(ctx, tx, attempt.QuizID, attempt.StudentID)
			if err != nil {
				return err
			}
			if err := guard(usage); err != nil {
				return err
			}
		}

		if _, err := tx.NewInsert().Model(attemptFromDomain(attempt)).Exec(ctx); err != nil {
			return fmt.Errorf("insert attempt: %w", err)
		}
		if len(sealed) == 0 {
			return nil
		}
		rows := make([]sealedRow, 0, len(sealed))
		for _, aq := range sealed {
			rows = append(rows, sealedRow{
				AttemptID:   attempt.ID,
				QuestionID:  aq.QuestionID,
				OrderIndex:  aq.OrderIndex,
				OptionOrder: aq.OptionOrder,
				Points:      aq.Points,
			})
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			return fmt.Errorf("insert sealed questions: %w", err)
		}
		return nil
	})
	return mapErr(err)
}

func (s *AttemptStore) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	row, err := getAttempt(ctx, s.db, attemptID, "")
	if err != nil {
		return domain.Attempt{}, mapErr(err)
	}
	return row.toDomain(), nil
}

func (s *AttemptStore) ListAttempts(ctx context.Context, quizID, studentID string) ([]domain.Attempt, error) {
	var rows []attemptRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("a.quiz_id = ? AND a.student_id = ?", quizID, studentID).
		Order("a.started_at ASC", "a.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	out := make([]domain.Attempt, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *AttemptStore) SealedQuestions(ctx context.Context, attemptID string) ([]domain.AttemptQuestion, error) {
	if _, err := getAttempt(ctx, s.db, attemptID, ""); err != nil {
		return nil, mapErr(err)
	}
	sealed, err := sealedOf(ctx, s.db, attemptID)
	return sealed, mapErr(err)
}

func (s *AttemptStore) Answers(ctx context.Context, attemptID string) ([]domain.Answer, error) {
	if _, err := getAttempt(ctx, s.db, attemptID, ""); err != nil {
		return nil, mapErr(err)
	}
	answers, err := answersOf(ctx, s.db, attemptID)
	return answers, mapErr(err)
}

func (s *AttemptStore) SaveAnswer(ctx context.Context, answer domain.Answer) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// FOR SHARE blocks a concurrent finalize until this write commits.
		row, err := getAttempt(ctx, tx, answer.AttemptID, "SHARE")
		if err != nil {
			return err
		}
		if domain.AttemptStatus(row.Status) != domain.AttemptInProgress {
			return &domain.StateError{Reason: domain.ReasonInvalidAttemptState, Detail: row.Status}
		}
		rows := []answerRow{answerFromDomain(answer)}
		return upsertAnswers(ctx, tx, rows)
	})
	return mapErr(err)
}

func (s *AttemptStore) FinalizeAttempt(ctx context.Context, attemptID string, fn app.FinalizeFunc) (domain.Attempt, error) {
	var finalized domain.Attempt
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		probe, err := getAttempt(ctx, tx, attemptID, "")
		if err != nil {
			return err
		}
		if err := lockSlot(ctx, tx, probe.QuizID, probe.StudentID); err != nil {
			return err
		}
		row, err := getAttempt(ctx, tx, attemptID, "UPDATE")
		if err != nil {
			return err
		}
		usage, err := usageOf(ctx, tx, row.QuizID, row.StudentID)
		if err != nil {
			return err
		}
		sealed, err := sealedOf(ctx, tx, attemptID)
		if err != nil {
			return err
		}
		answers, err := answersOf(ctx, tx, attemptID)
		if err != nil {
			return err
		}

		locked := row.toDomain()
		grade, err := fn(locked, usage, sealed, answers)
		if err != nil {
			return err
		}
		if grade == nil {
			finalized = locked
			return nil
		}

		if len(grade.Answers) > 0 {
			rows := make([]answerRow, 0, len(grade.Answers))
			for _, a := range grade.Answers {
				rows = append(rows, answerFromDomain(a))
			}
			if err := upsertAnswers(ctx, tx, rows); err != nil {
				return err
			}
		}

		submittedAt := grade.SubmittedAt
		row.Status = string(domain.AttemptGraded)
		row.SubmittedAt = &submittedAt
		row.Score = grade.Score
		row.MaxScore = grade.MaxScore
		if _, err := tx.NewUpdate().
			Model(row).
			Column("status", "submitted_at", "score", "max_score").
			WherePK().
			Exec(ctx); err != nil {
			return fmt.Errorf("update attempt: %w", err)
		}
		finalized = row.toDomain()
		return nil
	})
	if err != nil {
		return domain.Attempt{}, mapErr(err)
	}
	return finalized, nil
}

// lockSlot makes sure the pair's slot row exists and holds it FOR UPDATE until the tx ends.
func lockSlot(ctx context.Context, tx bun.Tx, quizID, studentID string) error {
	slot := &slotRow{QuizID: quizID, StudentID: studentID}
	if _, err := tx.NewInsert().Model(slot).On("CONFLICT DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("insert attempt slot: %w", err)
	}
	if err := tx.NewSelect().Model(slot).WherePK().For("UPDATE").Scan(ctx); err != nil {
		return fmt.Errorf("lock attempt slot: %w", err)
	}
	return nil
}

func usageOf(ctx context.Context, db bun.IDB, quizID, studentID string) (domain.AttemptUsage, error) {
	var counts []struct {
		Status string `bun:"status"`
		N      int    `bun:"n"`
	}
	err := db.NewSelect().
		TableExpr("quiz_attempts").
		ColumnExpr("status").
		ColumnExpr("count(*) AS n").
		Where("quiz_id = ? AND student_id = ?", quizID, studentID).
		Group("status").
		Scan(ctx, &counts)
	if err != nil {
		return domain.AttemptUsage{}, fmt.Errorf("count attempts: %w", err)
	}

	var usage domain.AttemptUsage
	for _, c := range counts {
		status := domain.AttemptStatus(c.Status)
		switch {
		case status.Completed():
			usage.Completed += c.N
		case status == domain.AttemptInProgress:
			usage.InProgress += c.N
		}
	}
	return usage, nil
}

// getAttempt loads one attempt, optionally with a row lock ("UPDATE" or "SHARE").
func getAttempt(ctx context.Context, db bun.IDB, attemptID, lock string) (*attemptRow, error) {
	row := new(attemptRow)
	q := db.NewSelect().Model(row).Where("a.id = ?", attemptID)
	if lock != "" {
		q = q.For(lock)
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.AttemptNotFound(attemptID)
		}
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	return row, nil
}

func sealedOf(ctx context.Context, db bun.IDB, attemptID string) ([]domain.AttemptQuestion, error) {
	var rows []sealedRow
	err := db.NewSelect().
		Model(&rows).
		Where("aq.attempt_id = ?", attemptID).
		Order("aq.order_index ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load sealed questions: %w", err)
	}
	out := make([]domain.AttemptQuestion, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// answersOf returns the stored answers in sealed question order.
func answersOf(ctx context.Context, db bun.IDB, attemptID string) ([]domain.Answer, error) {
	var rows []answerRow
	err := db.NewSelect().
		Model(&rows).
		Join("JOIN quiz_attempt_questions AS aq ON aq.attempt_id = ans.attempt_id AND aq.question_id = ans.question_id").
		Where("ans.attempt_id = ?", attemptID).
		Order("aq.order_index ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	out := make([]domain.Answer, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func upsertAnswers(ctx context.Context, tx bun.Tx, rows []answerRow) error {
	_, err := tx.NewInsert().
		Model(&rows).
		On("CONFLICT (attempt_id, question_id) DO UPDATE").
		Set("selected = EXCLUDED.selected").
		Set("is_correct = EXCLUDED.is_correct").
		Set("score = EXCLUDED.score").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert answers: %w", err)
	}
	return nil
}

// mapErr turns lock and serialization failures into domain.ConcurrencyError.
func mapErr(err error) error {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		switch pgErr.Field('C') {
		case "40001", "40P01", "55P03":
			return &domain.ConcurrencyError{Detail: pgErr.Field('M')}
		}
	}
	return err
}
