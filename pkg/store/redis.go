package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/oidbt/bangumi-ani-getter/pkg/catalog"
	"github.com/oidbt/bangumi-ani-getter/pkg/logging"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis keys for record storage.
const (
	RedisKeyRecordPrefix = "bangumi:subject:"
	RedisKeyRecordIndex  = "bangumi:subjects"
)

// upsertScript writes a whole batch in one atomic script call.
// KEYS[1] is the id index, KEYS[2..n+1] the record keys; ARGV[1..n] holds the
// encoded records and ARGV[n+1..2n] their ids. Every key type is checked
// before the first write, so a batch that would fail writes nothing.
var upsertScript = redis.NewScript(`
local n = #KEYS - 1
local t = redis.call('TYPE', KEYS[1]).ok
if t ~= 'none' and t ~= 'set' then
  return redis.error_reply('WRONGTYPE index ' .. KEYS[1] .. ' holds ' .. t)
end
for i = 2, #KEYS do
  t = redis.call('TYPE', KEYS[i]).ok
  if t ~= 'none' and t ~= 'string' then
    return redis.error_reply('WRONGTYPE record ' .. KEYS[i] .. ' holds ' .. t)
  end
end
for i = 1, n do
  redis.call('SET', KEYS[i + 1], ARGV[i])
  redis.call('SADD', KEYS[1], ARGV[n + i])
end
return n
`)

// Redis is the Redis-backed store. A batch is written by a single Lua
// script, so other clients never observe part of it and a rejected batch
// leaves no trace.
type Redis struct {
	client *redis.Client
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewRedis creates a store on top of an existing client.
func NewRedis(client *redis.Client) *Redis {
	if client == nil {
		panic("redis client cannot be nil")
	}
	return &Redis{
		client: client,
		logger: logging.NewLogger(logging.ComponentStore).With().Str("backend", BackendRedis).Logger(),
	}
}

// RecordKey returns the key holding the record with the given id.
func RecordKey(id int) string {
	return RedisKeyRecordPrefix + strconv.Itoa(id)
}

// UpsertBatch overwrites every record of the batch and indexes its id.
func (s *Redis) UpsertBatch(ctx context.Context, records []catalog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	err := s.upsert(ctx, records)
	observeBatch(BackendRedis, len(records), time.Since(start).Seconds(), err)

	if err != nil {
		s.logger.Error().Err(err).Int("records", len(records)).Msg("Batch discarded")
		return &StorageError{Op: "upsert", Backend: BackendRedis, Err: err}
	}

	s.logger.Debug().Int("records", len(records)).Dur("duration", time.Since(start)).Msg("Batch committed")
	return nil
}

func (s *Redis) upsert(ctx context.Context, records []catalog.Record) error {
	if len(records) == 0 {
		return nil
	}

	// Encode everything first so a bad record aborts before the script runs.
	keys := make([]string, 0, len(records)+1)
	args := make([]any, 2*len(records))
	keys = append(keys, RedisKeyRecordIndex)
	for i, r := range records {
		r.NameAlias = normalizeAliases(r.NameAlias)
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode record %d: %w", r.ID, err)
		}
		keys = append(keys, RecordKey(r.ID))
		args[i] = data
		args[len(records)+i] = r.ID
	}

	if err := upsertScript.Run(ctx, s.client, keys, args...).Err(); err != nil {
		return fmt.Errorf("exec batch: %w", err)
	}
	return nil
}

// Count returns the number of indexed records.
func (s *Redis) Count(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, RedisKeyRecordIndex).Result()
	if err != nil {
		return 0, &StorageError{Op: "count", Backend: BackendRedis, Err: err}
	}
	return int(n), nil
}

// Get returns the record with the given id or ErrNotFound.
func (s *Redis) Get(ctx context.Context, id int) (*catalog.Record, error) {
	data, err := s.client.Get(ctx, RecordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, &StorageError{Op: "get", Backend: BackendRedis, Err: err}
	}

	record, err := decodeRecord(data)
	if err != nil {
		return nil, &StorageError{Op: "get", Backend: BackendRedis, Err: err}
	}
	return record, nil
}

// List returns every indexed record ordered by id.
func (s *Redis) List(ctx context.Context) ([]catalog.Record, error) {
	members, err := s.client.SMembers(ctx, RedisKeyRecordIndex).Result()
	if err != nil {
		return nil, &StorageError{Op: "list", Backend: BackendRedis, Err: err}
	}
	if len(members) == 0 {
		return []catalog.Record{}, nil
	}

	ids := make([]int, 0, len(members))
	for _, m := range members {
		id, err := strconv.Atoi(m)
		if err != nil {
			return nil, &StorageError{Op: "list", Backend: BackendRedis, Err: fmt.Errorf("bad index member %q: %w", m, err)}
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = RecordKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, &StorageError{Op: "list", Backend: BackendRedis, Err: err}
	}

	records := make([]catalog.Record, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			s.logger.Warn().Int("id", ids[i]).Msg("Indexed record missing")
			continue
		}
		record, err := decodeRecord([]byte(str))
		if err != nil {
			return nil, &StorageError{Op: "list", Backend: BackendRedis, Err: err}
		}
		records = append(records, *record)
	}
	return records, nil
}

// Close closes the underlying client.
func (s *Redis) Close() error {
	return s.client.Close()
}

func decodeRecord(data []byte) (*catalog.Record, error) {
	var record catalog.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	record.NameAlias = normalizeAliases(record.NameAlias)
	return &record, nil
}
