package lease

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/homeswap-backend/internal/platform/logger"
)

const defaultRedisPrefix = "homeswap:claim:"

var (
	renewScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// RedisClaimer keeps claims as redis keys holding the owner with a PX expiry.
type RedisClaimer struct {
	rdb    goredis.Cmdable
	log    *logger.Logger
	owner  string
	prefix string
}

func NewRedisClaimer(rdb goredis.Cmdable, baseLog *logger.Logger, owner, prefix string) *RedisClaimer {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisClaimer{
		rdb:    rdb,
		log:    baseLog.With("component", "RedisClaimer", "owner", owner),
		owner:  owner,
		prefix: prefix,
	}
}

func (c *RedisClaimer) Owner() string { return c.owner }

func (c *RedisClaimer) TryClaim(ctx context.Context, key string, lease time.Duration) (bool, error) {
	if err := validate(c.owner, key, lease); err != nil {
		return false, err
	}
	k := c.prefix + key
	err := c.rdb.SetArgs(ctx, k, c.owner, goredis.SetArgs{Mode: "NX", TTL: lease}).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, goredis.Nil):
		// Held already; re-claiming our own key extends it.
		return c.Renew(ctx, key, lease)
	default:
		return false, err
	}
}

func (c *RedisClaimer) Renew(ctx context.Context, key string, lease time.Duration) (bool, error) {
	if err := validate(c.owner, key, lease); err != nil {
		return false, err
	}
	n, err := renewScript.Run(ctx, c.rdb, []string{c.prefix + key}, c.owner, lease.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *RedisClaimer) Release(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return releaseScript.Run(ctx, c.rdb, []string{c.prefix + key}, c.owner).Err()
}
