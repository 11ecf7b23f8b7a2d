package lease

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/homeswap-backend/internal/data/repos/testutil"
)

func redisClient(t *testing.T) *goredis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("redis ping: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisClaimerSemantics(t *testing.T) {
	rdb := redisClient(t)
	prefix := "test:" + uuid.NewString() + ":"
	a := NewRedisClaimer(rdb, testutil.Logger(t), "worker-a", prefix)
	b := NewRedisClaimer(rdb, testutil.Logger(t), "worker-b", prefix)
	ctx := context.Background()
	key := SeekerKey(uuid.NewString())

	if ok, err := a.TryClaim(ctx, key, time.Second); err != nil || !ok {
		t.Fatalf("a claim: ok=%v err=%v", ok, err)
	}
	if ok, err := b.TryClaim(ctx, key, time.Second); err != nil || ok {
		t.Fatalf("b must not claim: ok=%v err=%v", ok, err)
	}
	if ok, err := a.Renew(ctx, key, time.Second); err != nil || !ok {
		t.Fatalf("a renew: ok=%v err=%v", ok, err)
	}
	if err := b.Release(ctx, key); err != nil {
		t.Fatalf("b release: %v", err)
	}
	if ok, _ := b.TryClaim(ctx, key, time.Second); ok {
		t.Fatalf("non-owner release must be a no-op")
	}
	if err := a.Release(ctx, key); err != nil {
		t.Fatalf("a release: %v", err)
	}
	if ok, err := b.TryClaim(ctx, key, 50*time.Millisecond); err != nil || !ok {
		t.Fatalf("b claim after release: ok=%v err=%v", ok, err)
	}
	time.Sleep(120 * time.Millisecond)
	if ok, err := a.TryClaim(ctx, key, time.Second); err != nil || !ok {
		t.Fatalf("a claim after expiry: ok=%v err=%v", ok, err)
	}
}
