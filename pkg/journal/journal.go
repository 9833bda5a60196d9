package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound indicates the requested run does not exist
	ErrNotFound = errors.New("run not found")

	// ErrInvalidRecord indicates a stored record could not be decoded
	ErrInvalidRecord = errors.New("invalid journal record")
)

// DefaultTTL is how long run records are kept.
const DefaultTTL = 30 * 24 * time.Hour

// Journal stores run records in Redis.
type Journal struct {
	redis *redis.Client
	ttl   time.Duration
}

// New creates a journal. A ttl <= 0 uses DefaultTTL.
func New(redisClient *redis.Client, ttl time.Duration) *Journal {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Journal{
		redis: redisClient,
		ttl:   ttl,
	}
}

// Ping checks the Redis connection.
func (j *Journal) Ping(ctx context.Context) error {
	if err := j.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// StartRun stores the run header and indexes the run by start time.
func (j *Journal) StartRun(ctx context.Context, run *Run) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := j.putRun(ctx, "start", run); err != nil {
		return err
	}

	score := float64(run.StartedAt.UnixNano())
	if err := j.redis.ZAdd(ctx, runsIndexKey, redis.Z{Score: score, Member: run.ID}).Err(); err != nil {
		JournalErrors.WithLabelValues("start").Inc()
		return fmt.Errorf("redis zadd: %w", err)
	}
	return nil
}

// FinishRun overwrites the run header with its final state.
func (j *Journal) FinishRun(ctx context.Context, run *Run) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	return j.putRun(ctx, "finish", run)
}

func (j *Journal) putRun(ctx context.Context, op string, run *Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		JournalErrors.WithLabelValues(op).Inc()
		return fmt.Errorf("marshal run: %w", err)
	}
	key := Key{Kind: KindRun, RunID: run.ID}
	if err := j.redis.Set(ctx, key.String(), data, j.ttl).Err(); err != nil {
		JournalErrors.WithLabelValues(op).Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	JournalWrites.WithLabelValues(op).Inc()
	return nil
}

// RecordItem appends an item outcome to the run.
func (j *Journal) RecordItem(ctx context.Context, runID string, rec ItemRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		JournalErrors.WithLabelValues("item").Inc()
		return fmt.Errorf("marshal item: %w", err)
	}
	return j.push(ctx, "item", Key{Kind: KindItems, RunID: runID}, data)
}

// SaveListing stores the listed ids of one direction.
func (j *Journal) SaveListing(ctx context.Context, runID, direction string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	return j.push(ctx, "listing", Key{Kind: KindListing, RunID: runID, Direction: direction}, values...)
}

func (j *Journal) push(ctx context.Context, op string, key Key, values ...any) error {
	k := key.String()
	_, err := j.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, k, values...)
		pipe.Expire(ctx, k, j.ttl)
		return nil
	})
	if err != nil {
		JournalErrors.WithLabelValues(op).Inc()
		return fmt.Errorf("redis rpush: %w", err)
	}
	JournalWrites.WithLabelValues(op).Inc()
	return nil
}

// GetRun returns the run header.
// Returns ErrNotFound if the run does not exist or has expired.
func (j *Journal) GetRun(ctx context.Context, runID string) (*Run, error) {
	data, err := j.redis.Get(ctx, Key{Kind: KindRun, RunID: runID}.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		JournalErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		JournalErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return &run, nil
}

// Items returns the recorded item outcomes in processing order.
func (j *Journal) Items(ctx context.Context, runID string) ([]ItemRecord, error) {
	raw, err := j.redis.LRange(ctx, Key{Kind: KindItems, RunID: runID}.String(), 0, -1).Result()
	if err != nil {
		JournalErrors.WithLabelValues("items").Inc()
		return nil, fmt.Errorf("redis lrange: %w", err)
	}

	items := make([]ItemRecord, 0, len(raw))
	for _, s := range raw {
		var rec ItemRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			JournalErrors.WithLabelValues("items").Inc()
			return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		items = append(items, rec)
	}
	return items, nil
}

// Listing returns the listed ids of one direction.
func (j *Journal) Listing(ctx context.Context, runID, direction string) ([]string, error) {
	key := Key{Kind: KindListing, RunID: runID, Direction: direction}
	ids, err := j.redis.LRange(ctx, key.String(), 0, -1).Result()
	if err != nil {
		JournalErrors.WithLabelValues("listing").Inc()
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	return ids, nil
}

// Latest returns the id of the most recently started run that still exists.
// Returns ErrNotFound if there is none.
func (j *Journal) Latest(ctx context.Context) (string, error) {
	ids, err := j.redis.ZRevRange(ctx, runsIndexKey, 0, -1).Result()
	if err != nil {
		JournalErrors.WithLabelValues("latest").Inc()
		return "", fmt.Errorf("redis zrevrange: %w", err)
	}

	for _, id := range ids {
		n, err := j.redis.Exists(ctx, Key{Kind: KindRun, RunID: id}.String()).Result()
		if err != nil {
			return "", fmt.Errorf("redis exists: %w", err)
		}
		if n > 0 {
			return id, nil
		}
		// Header expired; drop it from the index.
		j.redis.ZRem(ctx, runsIndexKey, id)
	}
	return "", ErrNotFound
}
