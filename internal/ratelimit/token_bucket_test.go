package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newBucket(t *testing.T, capacity int, refill float64) (*TokenBucket, *time.Time) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := NewTokenBucket(client, capacity, refill, time.Minute).WithClock(func() time.Time { return clock })
	return b, &clock
}

func TestTokenBucketCapacity(t *testing.T) {
	ctx := context.Background()
	bucket, _ := newBucket(t, 2, 1)

	for i := 0; i < 2; i++ {
		d, err := bucket.Allow(ctx, "worker-a")
		if err != nil || !d.Allowed {
			t.Fatalf("expected token %d allowed got %+v err=%v", i+1, d, err)
		}
	}
	d, err := bucket.Allow(ctx, "worker-a")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if d.Allowed {
		t.Fatalf("expected third token to be rejected")
	}
}

func TestTokenBucketPerProducer(t *testing.T) {
	ctx := context.Background()
	bucket, _ := newBucket(t, 1, 1)

	if d, _ := bucket.Allow(ctx, "worker-a"); !d.Allowed {
		t.Fatalf("worker-a should get its first token")
	}
	if d, _ := bucket.Allow(ctx, "worker-b"); !d.Allowed {
		t.Fatalf("worker-b has its own bucket")
	}
	if d, _ := bucket.Allow(ctx, "worker-a"); d.Allowed {
		t.Fatalf("worker-a should be exhausted")
	}
}

func TestTokenBucketRefill(t *testing.T) {
	ctx := context.Background()
	bucket, clock := newBucket(t, 1, 2)

	if d, _ := bucket.Allow(ctx, "worker-a"); !d.Allowed {
		t.Fatalf("first token should be allowed")
	}
	if d, _ := bucket.Allow(ctx, "worker-a"); d.Allowed {
		t.Fatalf("bucket should be empty")
	}
	*clock = clock.Add(time.Second)
	if d, _ := bucket.Allow(ctx, "worker-a"); !d.Allowed {
		t.Fatalf("bucket should refill after a second")
	}
}

func TestKey(t *testing.T) {
	if Key("") != "rl:events:default" || Key("w1") != "rl:events:w1" {
		t.Fatalf("unexpected keys %q %q", Key(""), Key("w1"))
	}
}
