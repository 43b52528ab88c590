package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix    = "usage:"
	defaultTimeout   = 2 * time.Second
	defaultMaxEvents = 1000
)

// RedisTracker persists usage in Redis: a hash of running counters per client
// plus a capped list of recent records for inspection. State survives process
// restarts and is shared across gateway replicas.
type RedisTracker struct {
	client    *redis.Client
	prefix    string
	timeout   time.Duration
	maxEvents int64
}

// RedisOption configures a RedisTracker at construction time.
type RedisOption func(*RedisTracker)

// WithPrefix overrides the key prefix (default "usage:").
func WithPrefix(prefix string) RedisOption {
	return func(t *RedisTracker) {
		if prefix != "" {
			t.prefix = prefix
		}
	}
}

// WithTimeout caps how long a single Track or Summary call may spend talking
// to Redis, on top of whatever deadline the caller's context carries.
func WithTimeout(d time.Duration) RedisOption {
	return func(t *RedisTracker) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithMaxEvents overrides how many recent records the event list retains.
func WithMaxEvents(n int64) RedisOption {
	return func(t *RedisTracker) {
		if n > 0 {
			t.maxEvents = n
		}
	}
}

// NewRedisTracker verifies connectivity and returns a tracker using the given
// client. The client's lifecycle stays with the caller.
func NewRedisTracker(client *redis.Client, opts ...RedisOption) (*RedisTracker, error) {
	t := &RedisTracker{
		client:    client,
		prefix:    defaultPrefix,
		timeout:   defaultTimeout,
		maxEvents: defaultMaxEvents,
	}
	for _, opt := range opts {
		opt(t)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return t, nil
}

func (t *RedisTracker) clientKey(clientID string) string {
	return t.prefix + "client:" + clientID
}

func (t *RedisTracker) eventsKey() string {
	return t.prefix + "events"
}

// Track increments the client's counters and appends the record to the recent
// events list, all in one pipeline round trip.
func (t *RedisTracker) Track(ctx context.Context, rec Record) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	event, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	key := t.clientKey(rec.ClientID)

	pipe := t.client.Pipeline()
	pipe.HIncrBy(ctx, key, "requests", 1)
	pipe.HIncrBy(ctx, key, "prompt_tokens", int64(rec.PromptTokens))
	pipe.HIncrBy(ctx, key, "completion_tokens", int64(rec.CompletionTokens))
	pipe.HIncrBy(ctx, key, "characters", int64(rec.Characters))
	pipe.HIncrBy(ctx, key, "cost_micro_usd", microUSD(rec.CostUSD))
	pipe.LPush(ctx, t.eventsKey(), event)
	pipe.LTrim(ctx, t.eventsKey(), 0, t.maxEvents-1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// Summary reads the client's counters back. An unseen client gets a zero
// summary, not an error.
func (t *RedisTracker) Summary(ctx context.Context, clientID string) (Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	fields, err := t.client.HGetAll(ctx, t.clientKey(clientID)).Result()
	if err != nil {
		return Summary{}, fmt.Errorf("fetch usage: %w", err)
	}

	s := Summary{ClientID: clientID}
	s.Requests = parseCounter(fields, "requests")
	s.PromptTokens = parseCounter(fields, "prompt_tokens")
	s.CompletionTokens = parseCounter(fields, "completion_tokens")
	s.Characters = parseCounter(fields, "characters")
	s.CostUSD = float64(parseCounter(fields, "cost_micro_usd")) / 1e6

	return s, nil
}

func parseCounter(fields map[string]string, name string) int64 {
	v, err := strconv.ParseInt(fields[name], 10, 64)
	if err != nil {
		return 0
	}
	return v
}
