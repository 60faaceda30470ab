package store

import (
	"context"
	"encoding/json"

	"github.com/chrysochos/society-agent-sub001/apperr"
	"github.com/redis/go-redis/v9"
)

// RedisSnapshot is a Redis-hash-backed equivalent of Snapshot, for
// deployments where agent processes don't share a filesystem. Each
// record is a field in a single Redis hash, so Update is a single HSET
// and Read is a single HGETALL — both atomic at the Redis server without
// needing the temp-file-rename trick the filesystem variant relies on.
type RedisSnapshot struct {
	client *redis.Client
	key    string
}

// NewRedisSnapshot builds a RedisSnapshot backed by the hash at key.
func NewRedisSnapshot(client *redis.Client, key string) *RedisSnapshot {
	return &RedisSnapshot{client: client, key: key}
}

// Read decodes every field of the hash into records, keyed by id.
func (s *RedisSnapshot) Read(ctx context.Context, records map[string]json.RawMessage) error {
	all, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return apperr.Wrap(apperr.KindIO, "redis snapshot read", err)
	}
	for k, v := range all {
		records[k] = json.RawMessage(v)
	}
	return nil
}

// Update merges record under key into the hash.
func (s *RedisSnapshot) Update(ctx context.Context, key string, record json.RawMessage) error {
	if err := s.client.HSet(ctx, s.key, key, string(record)).Err(); err != nil {
		return apperr.Wrap(apperr.KindIO, "redis snapshot update", err)
	}
	return nil
}

// Delete removes key from the hash, if present.
func (s *RedisSnapshot) Delete(ctx context.Context, key string) error {
	if err := s.client.HDel(ctx, s.key, key).Err(); err != nil {
		return apperr.Wrap(apperr.KindIO, "redis snapshot delete", err)
	}
	return nil
}

// RedisAppendLog is a Redis-list-backed equivalent of AppendLog. RPUSH
// is the append; offsets are list indices rather than byte offsets.
type RedisAppendLog struct {
	client *redis.Client
	key    string
}

// NewRedisAppendLog builds a RedisAppendLog backed by the list at key.
func NewRedisAppendLog(client *redis.Client, key string) *RedisAppendLog {
	return &RedisAppendLog{client: client, key: key}
}

// Append pushes record onto the tail of the list.
func (l *RedisAppendLog) Append(ctx context.Context, record json.RawMessage) error {
	if err := l.client.RPush(ctx, l.key, string(record)).Err(); err != nil {
		return apperr.Wrap(apperr.KindIO, "redis log append", err)
	}
	return nil
}

// ReadAll returns every record in the list, in append order.
func (l *RedisAppendLog) ReadAll(ctx context.Context) ([]json.RawMessage, error) {
	records, _, err := l.ReadFrom(ctx, 0)
	return records, err
}

// ReadFrom reads records starting at list index from, returning the
// decoded records and the new index (the list length at read time).
func (l *RedisAppendLog) ReadFrom(ctx context.Context, from int64) ([]json.RawMessage, int64, error) {
	length, err := l.client.LLen(ctx, l.key).Result()
	if err != nil {
		return nil, from, apperr.Wrap(apperr.KindIO, "redis log length", err)
	}
	if from > length {
		from = 0
	}
	if from == length {
		return nil, length, nil
	}
	raw, err := l.client.LRange(ctx, l.key, from, -1).Result()
	if err != nil {
		return nil, from, apperr.Wrap(apperr.KindIO, "redis log range", err)
	}
	records := make([]json.RawMessage, 0, len(raw))
	for _, line := range raw {
		var v json.RawMessage
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			continue
		}
		records = append(records, v)
	}
	return records, length, nil
}
