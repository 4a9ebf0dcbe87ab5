package persistence

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// RedisStore persists documents as Redis strings under a configurable key
// prefix. Append pushes each update onto a separate Redis list; Fetch
// reads only the string snapshot and does not include appended updates,
// and StoreFull deletes that list.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps client; prefix namespaces keys (e.g. "ycrdt:doc:").
func NewRedisStore(client *redis.Client, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("persistence: redis client cannot be nil")
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (r *RedisStore) docKey(name string) string    { return r.prefix + name }
func (r *RedisStore) updatesKey(name string) string { return r.prefix + name + ":updates" }

func (r *RedisStore) Fetch(ctx context.Context, name string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.docKey(name)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "persistence: redis fetch %q", name)
	}
	return data, true, nil
}

func (r *RedisStore) StoreFull(ctx context.Context, name string, data []byte) error {
	if err := r.client.Set(ctx, r.docKey(name), data, 0).Err(); err != nil {
		return errors.Wrapf(err, "persistence: redis store %q", name)
	}
	// A full store supersedes any pending incremental log.
	r.client.Del(ctx, r.updatesKey(name))
	return nil
}

func (r *RedisStore) Append(ctx context.Context, name string, update []byte) error {
	if err := r.client.RPush(ctx, r.updatesKey(name), update).Err(); err != nil {
		return errors.Wrapf(err, "persistence: redis append %q", name)
	}
	return nil
}
