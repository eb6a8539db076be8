package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"quiz-attempt-service/internal/domain"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// StartLock serializes attempt starts for one (quiz, student) pair across instances.
// The lock is short lived; the attempt store still enforces the limits on its own.
type StartLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStartLock(client *redis.Client, ttl time.Duration) *StartLock {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &StartLock{client: client, ttl: ttl}
}

// Acquire takes the lock or fails fast with a ConcurrencyError if another start holds it.
func (l *StartLock) Acquire(ctx context.Context, quizID, studentID string) (func(), error) {
	key := l.key(quizID, studentID)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire start lock: %w", err)
	}
	if !ok {
		return nil, &domain.ConcurrencyError{Detail: "another attempt start is in progress"}
	}
	return func() {
		// best-effort; the ttl reclaims the key otherwise
		_ = releaseScript.Run(context.Background(), l.client, []string{key}, token).Err()
	}, nil
}

func (l *StartLock) key(quizID, studentID string) string {
	return "quiz:" + quizID + ":start:" + studentID
}
