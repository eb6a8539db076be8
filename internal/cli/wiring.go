package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
	pgstore "quiz-attempt-service/internal/infra/postgres"
	redisstore "quiz-attempt-service/internal/infra/redis"
)

// dependencies are the collaborators chosen from config. With no Postgres URL the
// service runs on an in-memory demo catalog and attempt store.
type dependencies struct {
	quizzes   app.QuizRepository
	questions app.QuestionBank
	directory app.Directory
	attempts  app.AttemptStore
	locker    app.StartLocker
	closers   []func()
}

func (d *dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func buildDependencies(ctx context.Context, cfg config.Config, logger *slog.Logger) (*dependencies, error) {
	deps := &dependencies{}

	var loader memory.QuizLoader
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		deps.closers = append(deps.closers, pool.Close)

		db := openBun(cfg.Postgres.URL)
		deps.closers = append(deps.closers, func() { _ = db.Close() })

		catalog := pgstore.NewCatalog(pool)
		loader = catalog
		deps.questions = catalog
		deps.directory = catalog
		deps.attempts = pgstore.NewAttemptStore(db)
	} else {
		logger.Warn("postgres url not configured, using in-memory demo catalog")
		catalog := demoCatalog()
		loader = catalog
		deps.questions = catalog
		deps.directory = catalog
		deps.attempts = memory.NewAttemptStore()
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		deps.closers = append(deps.closers, func() { _ = client.Close() })
		deps.quizzes = redisstore.NewQuizRepository(client, loader, quizTTL)
		deps.locker = redisstore.NewStartLock(client, config.TTLDuration(cfg.Attempts.StartLockTTL, 5*time.Second))
	} else {
		deps.quizzes = memory.NewQuizRepository(loader, quizTTL)
	}
	return deps, nil
}

func newService(deps *dependencies, cfg config.Config, logger *slog.Logger) *app.AttemptService {
	return app.NewAttemptService(deps.quizzes, deps.questions, deps.directory, deps.attempts,
		app.WithLogger(logger),
		app.WithStartLocker(deps.locker),
		app.WithPolicy(app.Policy{
			MaxOpenAttempts:  cfg.Attempts.MaxOpen,
			EnforceTimeLimit: cfg.Attempts.EnforceTimeLimit,
			TimeLimitGrace:   config.TTLDuration(cfg.Attempts.TimeLimitGrace, 0),
		}),
	)
}

// demoCatalog is a minimal data set for running without Postgres.
func demoCatalog() *memory.Catalog {
	catalog := memory.NewCatalog()
	catalog.PutQuestions(
		domain.Question{
			ID:     "q1",
			Type:   domain.TrueFalse,
			Prompt: map[string]string{"en": "2 + 2 = 4", "id": "2 + 2 = 4"},
			Options: []domain.Option{
				{ID: "t", Text: map[string]string{"en": "True", "id": "Benar"}, Correct: true, OrderIndex: 0},
				{ID: "f", Text: map[string]string{"en": "False", "id": "Salah"}, OrderIndex: 1},
			},
		},
		domain.Question{
			ID:     "q2",
			Type:   domain.MCQMulti,
			Prompt: map[string]string{"en": "Which numbers are prime?"},
			Options: []domain.Option{
				{ID: "o1", Text: map[string]string{"en": "2"}, Correct: true, OrderIndex: 0},
				{ID: "o2", Text: map[string]string{"en": "3"}, Correct: true, OrderIndex: 1},
				{ID: "o3", Text: map[string]string{"en": "4"}, OrderIndex: 2},
				{ID: "o4", Text: map[string]string{"en": "9"}, OrderIndex: 3},
			},
		},
	)
	catalog.PutQuiz(domain.Quiz{
		ID:             "quiz-1",
		Title:          "Numbers warm-up",
		Status:         domain.QuizPublished,
		MaxAttempts:    domain.AttemptLimit(2),
		ShuffleOptions: true,
		TimeLimitSec:   600,
		Audience:       []domain.AudienceRule{{Scope: domain.AudienceAll}},
		Questions: []domain.QuestionRef{
			{QuestionID: "q1", Points: 1, OrderIndex: 0},
			{QuestionID: "q2", Points: 2, OrderIndex: 1},
		},
	})
	return catalog
}
