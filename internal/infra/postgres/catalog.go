package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"quiz-attempt-service/internal/domain"
)

// Catalog reads quizzes, bank questions and enrollments owned by other services.
// Quiz and question documents are stored as JSONB.
type Catalog struct {
	pool *pgxpool.Pool
}

func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

func (c *Catalog) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var raw []byte
	err := c.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.QuizNotFound(quizID)
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	quiz.ID = quizID
	return quiz, nil
}

func (c *Catalog) ListPublishedQuizIDs(ctx context.Context) ([]string, error) {
	rows, err := c.pool.Query(ctx, `SELECT id FROM quizzes WHERE data->>'status' = $1 ORDER BY id`, string(domain.QuizPublished))
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan quiz id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetQuestions returns the requested questions that exist; missing ids are absent from the map.
func (c *Catalog) GetQuestions(ctx context.Context, ids []string) (map[string]domain.Question, error) {
	out := make(map[string]domain.Question, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := c.pool.Query(ctx, `SELECT id, data FROM questions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		var q domain.Question
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, fmt.Errorf("unmarshal question %s: %w", id, err)
		}
		q.ID = id
		out[id] = q
	}
	return out, rows.Err()
}

func (c *Catalog) ActiveEnrollments(ctx context.Context, studentID string) ([]domain.Enrollment, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT e.class_section_id,
		       cs.grade_level_id,
		       COALESCE(array_agg(css.subject_id ORDER BY css.subject_id) FILTER (WHERE css.subject_id IS NOT NULL), '{}')
		FROM enrollments e
		JOIN class_sections cs ON cs.id = e.class_section_id
		LEFT JOIN class_section_subjects css ON css.class_section_id = e.class_section_id
		WHERE e.student_id = $1 AND e.active
		GROUP BY e.class_section_id, cs.grade_level_id
		ORDER BY e.class_section_id`, studentID)
	if err != nil {
		return nil, fmt.Errorf("load enrollments: %w", err)
	}
	defer rows.Close()

	var out []domain.Enrollment
	for rows.Next() {
		var e domain.Enrollment
		if err := rows.Scan(&e.ClassSectionID, &e.GradeLevelID, &e.SubjectIDs); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PutQuiz upserts a quiz document. Authoring normally owns this table; it is used for seeding.
func (c *Catalog) PutQuiz(ctx context.Context, quiz domain.Quiz) error {
	data, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	_, err = c.pool.Exec(ctx, `INSERT INTO quizzes (id, data) VALUES ($1, $2::jsonb)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`, quiz.ID, string(data))
	return err
}

// PutQuestions upserts bank questions.
func (c *Catalog) PutQuestions(ctx context.Context, questions ...domain.Question) error {
	batch := &pgx.Batch{}
	for _, q := range questions {
		data, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("marshal question %s: %w", q.ID, err)
		}
		batch.Queue(`INSERT INTO questions (id, data) VALUES ($1, $2::jsonb)
			ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`, q.ID, string(data))
	}
	br := c.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range questions {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert question: %w", err)
		}
	}
	return nil
}

// Enroll records an active enrollment, creating the class section if needed.
func (c *Catalog) Enroll(ctx context.Context, studentID string, e domain.Enrollment) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `INSERT INTO class_sections (id, grade_level_id) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET grade_level_id = EXCLUDED.grade_level_id`, e.ClassSectionID, e.GradeLevelID); err != nil {
		return fmt.Errorf("upsert class section: %w", err)
	}
	for _, subjectID := range e.SubjectIDs {
		if _, err := tx.Exec(ctx, `INSERT INTO class_section_subjects (class_section_id, subject_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, e.ClassSectionID, subjectID); err != nil {
			return fmt.Errorf("upsert class subject: %w", err)
		}
	}
	if _, err := tx.Exec(ctx, `INSERT INTO enrollments (student_id, class_section_id, active) VALUES ($1, $2, true)
		ON CONFLICT (student_id, class_section_id) DO UPDATE SET active = true`, studentID, e.ClassSectionID); err != nil {
		return fmt.Errorf("upsert enrollment: %w", err)
	}
	return tx.Commit(ctx)
}
