package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-attempt-service/internal/domain"
)

// Catalog is a map-backed stand-in for the authoring, question bank and enrollment
// collaborators (useful for tests/demos).
type Catalog struct {
	mu          sync.RWMutex
	quizzes     map[string]domain.Quiz
	questions   map[string]domain.Question
	enrollments map[string][]domain.Enrollment
}

func NewCatalog() *Catalog {
	return &Catalog{
		quizzes:     make(map[string]domain.Quiz),
		questions:   make(map[string]domain.Question),
		enrollments: make(map[string][]domain.Enrollment),
	}
}

// PutQuiz stores or replaces a quiz.
func (c *Catalog) PutQuiz(quiz domain.Quiz) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quizzes[quiz.ID] = quiz
}

// PutQuestions stores or replaces bank questions.
func (c *Catalog) PutQuestions(questions ...domain.Question) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, q := range questions {
		c.questions[q.ID] = q
	}
}

// Enroll replaces the active enrollments of a student.
func (c *Catalog) Enroll(studentID string, enrollments ...domain.Enrollment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enrollments[studentID] = enrollments
}

func (c *Catalog) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if quiz, ok := c.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.QuizNotFound(quizID)
}

func (c *Catalog) ListPublishedQuizIDs(_ context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.quizzes))
	for id, quiz := range c.quizzes {
		if quiz.Status == domain.QuizPublished {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// GetQuestions returns the requested questions that exist; missing ids are simply absent.
func (c *Catalog) GetQuestions(_ context.Context, ids []string) (map[string]domain.Question, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]domain.Question, len(ids))
	for _, id := range ids {
		if q, ok := c.questions[id]; ok {
			out[id] = q
		}
	}
	return out, nil
}

func (c *Catalog) ActiveEnrollments(_ context.Context, studentID string) ([]domain.Enrollment, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Enrollment(nil), c.enrollments[studentID]...), nil
}
