// Redis-backed ledger for deployments where several ingesters share one
// input directory.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	ierrors "github.com/auditflow/auditflow/pkg/errors"
)

// RedisConfig configures the Redis ledger backend.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string

	// Password for Redis authentication (optional)
	Password string

	// Database number to use (default: 0)
	Database int

	// Prefix is prepended to all ledger keys
	Prefix string

	// TTL is the time-to-live for entries (0 = keep forever)
	TTL time.Duration

	// Timeout for Redis operations
	Timeout time.Duration

	// PoolSize is the maximum number of connections
	PoolSize int
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address:  address,
		Prefix:   "auditflow:processed:",
		Timeout:  5 * time.Second,
		PoolSize: 10,
	}
}

// RedisLedger stores processed-file entries in Redis.
type RedisLedger struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewRedisLedger connects to Redis and verifies the connection.
func NewRedisLedger(cfg RedisConfig) (*RedisLedger, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, ierrors.Wrap(err, ierrors.CodeCheckpointFailed, "redis unreachable").
			WithContext("address", cfg.Address)
	}

	return &RedisLedger{cfg: cfg, client: client}, nil
}

func (l *RedisLedger) key(path string) string {
	return l.cfg.Prefix + sanitizeKey(path)
}

// sanitizeKey removes characters that may cause issues in Redis keys.
func sanitizeKey(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, ":", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

// IsProcessed implements Ledger.
func (l *RedisLedger) IsProcessed(ctx context.Context, path string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	n, err := l.client.Exists(ctx, l.key(path)).Result()
	if err != nil {
		return false, ierrors.Wrap(err, ierrors.CodeCheckpointFailed, "ledger lookup").
			WithContext("path", path)
	}
	return n > 0, nil
}

// Mark implements Ledger.
func (l *RedisLedger) Mark(ctx context.Context, e Entry) error {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	data, err := json.Marshal(e)
	if err != nil {
		return ierrors.Wrap(err, ierrors.CodeCheckpointFailed, "marshal entry")
	}
	if err := l.client.Set(ctx, l.key(e.Path), data, l.cfg.TTL).Err(); err != nil {
		return ierrors.Wrap(err, ierrors.CodeCheckpointFailed, "ledger write").
			WithContext("path", e.Path)
	}
	return nil
}

// List implements Ledger.
func (l *RedisLedger) List(ctx context.Context) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	var entries []Entry
	iter := l.client.Scan(ctx, 0, l.cfg.Prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := l.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue // entry expired between scan and get
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := iter.Err(); err != nil {
		return nil, ierrors.Wrap(err, ierrors.CodeCheckpointFailed, "ledger scan")
	}
	return entries, nil
}

// Ping checks the Redis connection.
func (l *RedisLedger) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()
	return l.client.Ping(ctx).Err()
}

// Close implements Ledger.
func (l *RedisLedger) Close() error {
	return l.client.Close()
}

// AcquireLock takes a short-lived exclusive claim on one input file so two
// workers sharing a directory do not ingest it twice.
func (l *RedisLedger) AcquireLock(ctx context.Context, path string, ttl time.Duration) (FileLock, error) {
	lockKey := l.cfg.Prefix + "lock:" + sanitizeKey(path)
	lockValue := fmt.Sprintf("%d", time.Now().UnixNano())

	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	ok, err := l.client.SetNX(ctx, lockKey, lockValue, ttl).Result()
	if err != nil {
		return nil, ierrors.Wrap(err, ierrors.CodeCheckpointFailed, "acquire lock").
			WithContext("path", path)
	}
	if !ok {
		return nil, ierrors.New(ierrors.CodeCheckpointFailed, "file claimed by another worker").
			WithContext("path", path)
	}
	return &Lock{ledger: l, key: lockKey, value: lockValue}, nil
}

// Lock is a held file claim.
type Lock struct {
	ledger *RedisLedger
	key    string
	value  string
}

// Release drops the claim. Only the holder's own lock is deleted.
func (k *Lock) Release(ctx context.Context) error {
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
	_, err := script.Run(ctx, k.ledger.client, []string{k.key}, k.value).Result()
	return err
}
