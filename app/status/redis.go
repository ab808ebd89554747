package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

// RedisStore keeps run reports in Redis so every instance sees the same history.
// Keys: {prefix}run:{id}, {prefix}runs:latest and the {prefix}runs:recent list.
type RedisStore struct {
	client  redis.UniversalClient
	prefix  string
	ttl     time.Duration
	history int64
}

func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, history: DefaultHistory}
}

func (s *RedisStore) runKey(id string) string {
	return s.prefix + "run:" + id
}

func (s *RedisStore) Save(ctx context.Context, report *RunReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}

	latest, err := s.client.Get(ctx, s.prefix+"runs:latest").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to read latest run: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.runKey(report.ID), payload, s.ttl)
	pipe.Set(ctx, s.prefix+"runs:latest", report.ID, s.ttl)
	if latest != report.ID {
		pipe.LPush(ctx, s.prefix+"runs:recent", report.ID)
		pipe.LTrim(ctx, s.prefix+"runs:recent", 0, s.history-1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save run report: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*RunReport, error) {
	val, err := s.client.Get(ctx, s.runKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run report: %w", err)
	}
	return decodeReport(val)
}

func (s *RedisStore) Latest(ctx context.Context) (*RunReport, error) {
	id, err := s.client.Get(ctx, s.prefix+"runs:latest").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *RedisStore) Recent(ctx context.Context, limit int) ([]RunReport, error) {
	if limit <= 0 {
		limit = 10
	}

	ids, err := s.client.LRange(ctx, s.prefix+"runs:recent", 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list recent runs: %w", err)
	}

	reports := []RunReport{}
	for _, id := range ids {
		r, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if r != nil {
			reports = append(reports, *r)
		}
	}
	return reports, nil
}

var _ Locker = (*RedisLock)(nil)

// RedisLock is a run lock shared by all instances pointed at the same Redis.
// The key expires after ttl so a crashed holder cannot block runs forever.
type RedisLock struct {
	client redis.UniversalClient
	key    string
	token  string
	ttl    time.Duration
}

func NewRedisLock(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisLock {
	return &RedisLock{client: client, key: prefix + "runs:lock", token: uuid.NewString(), ttl: ttl}
}

func (l *RedisLock) TryLock(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	return ok, nil
}

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Refresh resets the lock ttl while this instance still holds it.
func (l *RedisLock) Refresh(ctx context.Context) error {
	n, err := refreshScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to refresh run lock: %w", err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Unlock releases the lock only if this instance still holds it.
func (l *RedisLock) Unlock(ctx context.Context) error {
	if err := unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	return nil
}
