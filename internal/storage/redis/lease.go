// Package redis provides a Redis-backed pipeline lease for deployments
// that run more than one grantpost process against the same queue.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/grantpost/internal/common"
	"github.com/ternarybob/grantpost/internal/interfaces"
	"github.com/ternarybob/grantpost/internal/models"
)

// releaseScript deletes the key only while it still holds the caller's token
var releaseScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if not current then
	return 0
end
local lease = cjson.decode(current)
if lease.token == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lease implements interfaces.Lease using SET NX PX
type Lease struct {
	client *redis.Client
	key    string
	name   string
	logger arbor.ILogger
	now    func() time.Time
}

// NewClient creates a go-redis client from config
func NewClient(config *common.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
}

// NewLease creates a lease stored under "<prefix>:lease:<name>"
func NewLease(client *redis.Client, prefix, name string, logger arbor.ILogger) *Lease {
	return &Lease{
		client: client,
		key:    leaseKey(prefix, name),
		name:   name,
		logger: logger,
		now:    time.Now,
	}
}

func leaseKey(prefix, name string) string {
	if prefix == "" {
		return "lease:" + name
	}
	return prefix + ":lease:" + name
}

type leasePayload struct {
	Token      string    `json:"token"`
	AcquiredAt time.Time `json:"acquired_at"`
}

func encodeLease(lease *models.Lease) (string, error) {
	data, err := json.Marshal(leasePayload{Token: lease.Token, AcquiredAt: lease.AcquiredAt})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeLease(name, value string, ttl time.Duration, now time.Time) (*models.Lease, error) {
	var payload leasePayload
	if err := json.Unmarshal([]byte(value), &payload); err != nil {
		return nil, fmt.Errorf("invalid lease payload: %w", err)
	}
	return &models.Lease{
		Name:       name,
		Token:      payload.Token,
		AcquiredAt: payload.AcquiredAt,
		ExpiresAt:  now.Add(ttl),
	}, nil
}

// Acquire sets the key if absent; Redis expiry reclaims abandoned leases
func (l *Lease) Acquire(ctx context.Context, ttl time.Duration) (*models.Lease, error) {
	now := l.now()
	granted := &models.Lease{
		Name:       l.name,
		Token:      common.NewLeaseToken(),
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}

	value, err := encodeLease(granted)
	if err != nil {
		return nil, err
	}

	ok, err := l.client.SetNX(ctx, l.key, value, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lease %s: %w", l.name, err)
	}
	if !ok {
		return nil, interfaces.ErrLeaseHeld
	}

	l.logger.Debug().Str("lease", l.name).Str("key", l.key).Msg("Redis lease acquired")
	return granted, nil
}

func (l *Lease) Release(ctx context.Context, lease *models.Lease) error {
	if lease == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, lease.Token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release lease %s: %w", l.name, err)
	}
	return nil
}

func (l *Lease) ForceRelease(ctx context.Context) error {
	if err := l.client.Del(ctx, l.key).Err(); err != nil {
		return fmt.Errorf("failed to force release lease %s: %w", l.name, err)
	}
	return nil
}

// Current returns the held lease with its expiry derived from the key TTL
func (l *Lease) Current(ctx context.Context) (*models.Lease, error) {
	value, err := l.client.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read lease %s: %w", l.name, err)
	}

	ttl, err := l.client.PTTL(ctx, l.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read lease ttl %s: %w", l.name, err)
	}
	if ttl <= 0 {
		return nil, nil
	}

	return decodeLease(l.name, value, ttl, l.now())
}
