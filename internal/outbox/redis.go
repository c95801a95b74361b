package outbox

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "groupchat:outbox:unread"

// RedisStore keeps jobs in a single hash, field = job key, value = JSON job.
// Jobs survive a process restart and are picked up by the next sweep.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, key: defaultRedisKey}
}

func (s *RedisStore) Put(ctx context.Context, jobs ...Job) error {
	if len(jobs) == 0 {
		return nil
	}
	values := make([]any, 0, len(jobs)*2)
	for _, j := range jobs {
		data, err := json.Marshal(j)
		if err != nil {
			return errors.Wrap(err, "encode outbox job")
		}
		values = append(values, j.Key(), data)
	}
	return errors.Wrap(s.client.HSet(ctx, s.key, values...).Err(), "outbox put")
}

func (s *RedisStore) List(ctx context.Context, limit int) ([]Job, error) {
	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, errors.Wrap(err, "outbox list")
	}
	out := make([]Job, 0, len(raw))
	for field, v := range raw {
		var j Job
		if err := json.Unmarshal([]byte(v), &j); err != nil {
			// A corrupt entry can never be applied; drop it.
			s.client.HDel(ctx, s.key, field)
			continue
		}
		out = append(out, j)
	}
	return oldestFirst(out, limit), nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return errors.Wrap(s.client.HDel(ctx, s.key, keys...).Err(), "outbox delete")
}

func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n, err := s.client.HLen(ctx, s.key).Result()
	if err != nil {
		return 0, errors.Wrap(err, "outbox len")
	}
	return int(n), nil
}
