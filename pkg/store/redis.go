package store

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/james-livefront/ai-paywall/pkg/detect"
)

// RedisConfig holds connection and keyspace settings for the redis
// store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix namespaces all keys; defaults to "ai_paywall".
	KeyPrefix string
	// HistoryLimit caps the retained recent-result list used by
	// Export; defaults to 1000. Counters are never capped.
	HistoryLimit int64
}

// RedisStore delegates persistence to a shared redis instance:
// plain counters for stats, a hash for per-bot-type counts, and a
// trimmed list of recent results for export. Consistency is whatever
// the redis deployment provides; counters are updated in one
// transactional pipeline per record, so a recorded result is either
// fully counted or not at all.
type RedisStore struct {
	config RedisConfig
	client *redis.Client
}

// NewRedisStore connects with the given settings.
func NewRedisStore(config RedisConfig) *RedisStore {
	applyRedisDefaults(&config)
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	return &RedisStore{config: config, client: client}
}

// NewRedisStoreWithClient wraps an existing client. Used by tests and
// by embedders that manage their own connection pool.
func NewRedisStoreWithClient(client *redis.Client, config RedisConfig) *RedisStore {
	applyRedisDefaults(&config)
	return &RedisStore{config: config, client: client}
}

// NewRedisStoreFromEnv reads REDIS_ADDR, REDIS_PASSWORD, REDIS_DB and
// REDIS_KEY_PREFIX.
func NewRedisStoreFromEnv() *RedisStore {
	db := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			db = n
		}
	}
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	return NewRedisStore(RedisConfig{
		Addr:      addr,
		Password:  os.Getenv("REDIS_PASSWORD"),
		DB:        db,
		KeyPrefix: os.Getenv("REDIS_KEY_PREFIX"),
	})
}

func applyRedisDefaults(config *RedisConfig) {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "ai_paywall"
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = 1000
	}
}

func (s *RedisStore) key(suffix string) string {
	return s.config.KeyPrefix + ":" + suffix
}

func (s *RedisStore) Start(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *RedisStore) Record(ctx context.Context, res detect.Result) error {
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Incr(ctx, s.key("total"))
	if res.IsBot {
		pipe.Incr(ctx, s.key("bots"))
		pipe.HIncrBy(ctx, s.key("bot_types"), res.BotType, 1)
	}
	pipe.LPush(ctx, s.key("recent"), string(b))
	pipe.LTrim(ctx, s.key("recent"), 0, s.config.HistoryLimit-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats

	total, err := s.client.Get(ctx, s.key("total")).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Stats{}, err
	}
	stats.TotalRequests = total

	bots, err := s.client.Get(ctx, s.key("bots")).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Stats{}, err
	}
	stats.BotRequests = bots

	byType, err := s.client.HGetAll(ctx, s.key("bot_types")).Result()
	if err != nil {
		return Stats{}, err
	}
	if len(byType) > 0 {
		stats.BotTypes = make(map[string]int64, len(byType))
		for name, count := range byType {
			n, err := strconv.ParseInt(count, 10, 64)
			if err != nil {
				return Stats{}, fmt.Errorf("bot_types[%s]: %w", name, err)
			}
			stats.BotTypes[name] = n
		}
	}

	return stats, nil
}

// Export writes the retained recent history (newest results are kept,
// up to HistoryLimit) in chronological order.
func (s *RedisStore) Export(ctx context.Context, w io.Writer) error {
	lines, err := s.client.LRange(ctx, s.key("recent"), 0, -1).Result()
	if err != nil {
		return &ExportError{Store: s.Name(), Err: err}
	}

	// LPush stores newest first; walk backwards for export order.
	results := make([]detect.Result, 0, len(lines))
	for i := len(lines) - 1; i >= 0; i-- {
		var res detect.Result
		if err := json.Unmarshal([]byte(lines[i]), &res); err != nil {
			continue
		}
		results = append(results, res)
	}

	if err := writeExport(csv.NewWriter(w), results); err != nil {
		return &ExportError{Store: s.Name(), Err: err}
	}
	return nil
}

func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) Name() string { return "redis" }
