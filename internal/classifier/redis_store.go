package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix     = "insights:job:"
	redisIncompleteKey = "insights:jobs:incomplete"
	maxWatchRetries    = 5
)

func metaKey(id string) string  { return redisKeyPrefix + id }
func batchKey(id string) string { return redisKeyPrefix + id + ":batches" }

// RedisStore keeps job metadata as a JSON string and committed batches in a
// hash keyed by batch index. Reads use MULTI so metadata and batches are
// observed together. Status changes use WATCH on the metadata key; batch
// commits go through a script and leave the metadata alone.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisStore wraps an existing client. A zero ttl keeps jobs forever.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl, now: time.Now}
}

// OpenRedis parses a redis:// URL and verifies the connection.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (s *RedisStore) Create(ctx context.Context, rec JobRecord) error {
	if rec.Status == "" {
		rec.Status = StatusQueued
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, metaKey(rec.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobExists, rec.ID)
	}
	if !rec.Status.Terminal() {
		if err := s.rdb.SAdd(ctx, redisIncompleteKey, rec.ID).Err(); err != nil {
			return fmt.Errorf("index job: %w", err)
		}
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Job, error) {
	rec, batches, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return snapshot(rec, batches), nil
}

func (s *RedisStore) load(ctx context.Context, id string) (JobRecord, map[int][]ClassifiedSentence, error) {
	var (
		metaCmd  *redis.StringCmd
		batchCmd *redis.MapStringStringCmd
	)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		metaCmd = pipe.Get(ctx, metaKey(id))
		batchCmd = pipe.HGetAll(ctx, batchKey(id))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return JobRecord{}, nil, fmt.Errorf("load job: %w", err)
	}

	rec, err := decodeRecord(metaCmd)
	if err != nil {
		return JobRecord{}, nil, fmt.Errorf("%w: %s", err, id)
	}

	raw, err := batchCmd.Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return JobRecord{}, nil, fmt.Errorf("load batches: %w", err)
	}
	batches := make(map[int][]ClassifiedSentence, len(raw))
	for field, value := range raw {
		idx, err := strconv.Atoi(field)
		if err != nil {
			return JobRecord{}, nil, fmt.Errorf("job %s: bad batch field %q", id, field)
		}
		var sentences []ClassifiedSentence
		if err := json.Unmarshal([]byte(value), &sentences); err != nil {
			return JobRecord{}, nil, fmt.Errorf("job %s: decode batch %d: %w", id, idx, err)
		}
		batches[idx] = sentences
	}
	return rec, batches, nil
}

func decodeRecord(cmd *redis.StringCmd) (JobRecord, error) {
	raw, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return JobRecord{}, ErrJobNotFound
	}
	if err != nil {
		return JobRecord{}, fmt.Errorf("read job: %w", err)
	}
	var rec JobRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return JobRecord{}, fmt.Errorf("decode job: %w", err)
	}
	return rec, nil
}

func (s *RedisStore) MarkRunning(ctx context.Context, id string) error {
	return s.update(ctx, id, func(rec *JobRecord) (func(redis.Pipeliner), error) {
		return nil, rec.transition(StatusRunning, s.now())
	})
}

// appendBatchScript commits a batch without touching the metadata key, so
// concurrent workers never invalidate each other. The batch hash inherits
// the metadata key's remaining TTL the first time it is written.
//
// KEYS[1] metadata, KEYS[2] batches; ARGV[1] batch index, ARGV[2] rows.
// Returns 1 (added), 0 (already committed), -1 (missing), -2 (terminal),
// -3 (out of range).
var appendBatchScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then return -1 end
local rec = cjson.decode(raw)
if rec.status == 'completed' or rec.status == 'failed' then return -2 end
local idx = tonumber(ARGV[1])
if idx < 0 or idx >= (rec.totalBatches or 0) then return -3 end
local added = redis.call('HSETNX', KEYS[2], ARGV[1], ARGV[2])
local ttl = redis.call('PTTL', KEYS[1])
if ttl > 0 and redis.call('PTTL', KEYS[2]) == -1 then
  redis.call('PEXPIRE', KEYS[2], ttl)
end
return added
`)

func (s *RedisStore) AppendBatch(ctx context.Context, id string, batch int, sentences []ClassifiedSentence) error {
	data, err := json.Marshal(sentences)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	res, err := appendBatchScript.Run(ctx, s.rdb, []string{metaKey(id), batchKey(id)}, batch, data).Int()
	if err != nil {
		return fmt.Errorf("append batch %d: %w", batch, err)
	}
	switch res {
	case -1:
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	case -2:
		return fmt.Errorf("%w: %s", ErrJobTerminal, id)
	case -3:
		return fmt.Errorf("batch %d out of range for job %s", batch, id)
	}
	return nil
}

func (s *RedisStore) Complete(ctx context.Context, id string) error {
	return s.update(ctx, id, func(rec *JobRecord) (func(redis.Pipeliner), error) {
		if err := rec.transition(StatusCompleted, s.now()); err != nil {
			return nil, err
		}
		return s.unindex(ctx, id), nil
	})
}

func (s *RedisStore) Fail(ctx context.Context, id, reason string) error {
	return s.update(ctx, id, func(rec *JobRecord) (func(redis.Pipeliner), error) {
		if err := rec.transition(StatusFailed, s.now()); err != nil {
			return nil, err
		}
		rec.Error = reason
		return s.unindex(ctx, id), nil
	})
}

func (s *RedisStore) unindex(ctx context.Context, id string) func(redis.Pipeliner) {
	return func(pipe redis.Pipeliner) {
		pipe.SRem(ctx, redisIncompleteKey, id)
	}
}

func (s *RedisStore) ListIncomplete(ctx context.Context) ([]PendingJob, error) {
	ids, err := s.rdb.SMembers(ctx, redisIncompleteKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list incomplete jobs: %w", err)
	}

	var out []PendingJob
	for _, id := range ids {
		rec, batches, err := s.load(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			// Expired.
			s.rdb.SRem(ctx, redisIncompleteKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if rec.Status.Terminal() {
			s.rdb.SRem(ctx, redisIncompleteKey, id)
			continue
		}
		committed := make(map[int]bool, len(batches))
		for i := range batches {
			committed[i] = true
		}
		out = append(out, PendingJob{Record: rec, Committed: committed})
	}
	return out, nil
}

// update runs mutate against the current record under WATCH and writes the
// record back, together with any extra commands mutate returns, in one
// MULTI/EXEC. Concurrent modification retries the whole read-modify-write.
func (s *RedisStore) update(ctx context.Context, id string, mutate func(*JobRecord) (func(redis.Pipeliner), error)) error {
	key := metaKey(id)

	txf := func(tx *redis.Tx) error {
		rec, err := decodeRecord(tx.Get(ctx, key))
		if err != nil {
			return fmt.Errorf("%w: %s", err, id)
		}
		extra, err := mutate(&rec)
		if err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, redis.KeepTTL)
			if extra != nil {
				extra(pipe)
			}
			return nil
		})
		return err
	}

	for range maxWatchRetries {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update job %s: too much contention", id)
}
