package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/casedesk/pkg/auth"
	"github.com/platinummonkey/casedesk/pkg/storage"
)

const (
	sessionKeyPrefix = "casedesk:revoked:session:"
	subjectKeyPrefix = "casedesk:revoked:subject:"
)

// raiseCutoff stores ARGV[1] unless the key already holds a later cutoff
var raiseCutoff = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local cutoff = tonumber(ARGV[1])
if cutoff > current then
	redis.call("SET", KEYS[1], ARGV[1], "EX", ARGV[2])
	return 1
end
return 0
`)

// RedisClient is the shared revocation list. Entries expire on their own
// once the credentials they cover can no longer be valid.
type RedisClient struct {
	client *redis.Client
	now    func() time.Time
}

var _ auth.RevocationStore = (*RedisClient)(nil)

// NewRedisClient creates a new Redis client
func NewRedisClient(config storage.Config) (*RedisClient, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB > 0 {
		opts.DB = config.RedisDB
	}
	if config.RedisMaxRetries > 0 {
		opts.MaxRetries = config.RedisMaxRetries
	}
	if config.RedisPoolSize > 0 {
		opts.PoolSize = config.RedisPoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisRevocationStore(client), nil
}

// NewRedisRevocationStore wraps an existing client
func NewRedisRevocationStore(client *redis.Client) *RedisClient {
	return &RedisClient{client: client, now: time.Now}
}

// Client exposes the underlying client for health checks
func (c *RedisClient) Client() *redis.Client { return c.client }

func (c *RedisClient) RevokeSession(ctx context.Context, sessionID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(c.now())
	if ttl <= 0 {
		// already past expiry, the signature check rejects it
		return nil
	}
	if err := c.client.Set(ctx, sessionKeyPrefix+sessionID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *RedisClient) IsSessionRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := c.client.Exists(ctx, sessionKeyPrefix+sessionID).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists failed: %w", err)
	}
	return n > 0, nil
}

func (c *RedisClient) RevokeSubject(ctx context.Context, subjectID string, at time.Time) error {
	ttl := int64(auth.MaxSessionLifetime / time.Second)
	err := raiseCutoff.Run(ctx, c.client, []string{subjectKeyPrefix + subjectID}, at.Unix(), ttl).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis revoke subject failed: %w", err)
	}
	return nil
}

func (c *RedisClient) SubjectRevokedAt(ctx context.Context, subjectID string) (time.Time, error) {
	raw, err := c.client.Get(ctx, subjectKeyPrefix+subjectID).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("redis get failed: %w", err)
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt subject cutoff %q: %w", raw, err)
	}
	return time.Unix(secs, 0).UTC(), nil
}

// HealthCheck verifies Redis connectivity
func (c *RedisClient) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *RedisClient) Close() error {
	return c.client.Close()
}
