package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"mvrv/internal/adapters/config"
	"mvrv/pkg/errors"
	"mvrv/pkg/logger"
)

// releaseScript deletes a lock only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Client wraps Redis client
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to ping redis")
	}

	return &Client{rdb: rdb}, nil
}

// NewClientFromRDB wraps an existing go-redis client
func NewClientFromRDB(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Client returns the underlying Redis client
func (c *Client) Client() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks Redis connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Set stores a JSON-encoded value with optional TTL (0 = no expiry)
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

// Get decodes a JSON value into dest. Returns errors.ErrNotFound on a miss.
func (c *Client) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return errors.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Lock is a held distributed lock
type Lock struct {
	key   string
	token string
}

// AcquireLock tries to take a distributed lock. Returns nil without error when already held elsewhere.
func (c *Client) AcquireLock(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	lock := &Lock{key: "lock:" + key, token: uuid.NewString()}

	ok, err := c.rdb.SetNX(ctx, lock.key, lock.token, ttl).Result()
	if err != nil {
		return nil, errors.Wrap(err, "acquire lock")
	}
	if !ok {
		return nil, nil
	}
	return lock, nil
}

// ReleaseLock releases a lock acquired by this client
func (c *Client) ReleaseLock(ctx context.Context, lock *Lock) error {
	if lock == nil {
		return nil
	}
	return releaseScript.Run(ctx, c.rdb, []string{lock.key}, lock.token).Err()
}

// CycleLocker guards estimation cycles across replicas with a distributed lock
type CycleLocker struct {
	client *Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewCycleLocker creates a cycle locker. ttl bounds how long a crashed holder blocks others.
func NewCycleLocker(client *Client, ttl time.Duration) *CycleLocker {
	return &CycleLocker{
		client: client,
		ttl:    ttl,
		log:    logger.Get().With("component", "cycle_locker"),
	}
}

// TryLock takes the lock for name. ok is false when another replica holds it.
func (l *CycleLocker) TryLock(ctx context.Context, name string) (release func(), ok bool, err error) {
	lock, err := l.client.AcquireLock(ctx, "mvrv:cycle:"+name, l.ttl)
	if err != nil {
		return nil, false, err
	}
	if lock == nil {
		return nil, false, nil
	}

	return l.releaser(name, lock), true, nil
}

// releaser returns the release func for lock. A failed release is logged;
// the lock then stays held until its ttl expires.
func (l *CycleLocker) releaser(name string, lock *Lock) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.client.ReleaseLock(ctx, lock); err != nil {
			l.log.Warnw("Cycle lock release failed, held until ttl expires",
				"cycle", name,
				"key", lock.key,
				"ttl", l.ttl,
				"error", err,
			)
		}
	}
}
