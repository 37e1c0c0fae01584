package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"queue-monitor/internal/listener"
)

func newQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisQueueWithClient(client, "", nil), mr
}

func notification(id string) listener.Notification {
	stamp := int64(1709283600)
	return listener.Notification{
		Event: "start",
		Message: &listener.JobMessage{
			Original: &listener.QueueMessage{MessageID: &id, Timestamp: &stamp, Body: `{}`},
			Target:   []string{"App\\Job", "run"},
		},
	}
}

func TestPublishAndDepth(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)

	for _, id := range []string{"m1", "m2"} {
		if err := q.Publish(ctx, notification(id)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	depth, err := q.Depth(ctx)
	if err != nil || depth != 2 {
		t.Fatalf("expected depth 2, got %d err=%v", depth, err)
	}

	payload, err := q.Pop(ctx, time.Second)
	if err != nil || payload == "" {
		t.Fatalf("pop: %q err=%v", payload, err)
	}
}

func TestPopEmpty(t *testing.T) {
	q, _ := newQueue(t)
	payload, err := q.Pop(context.Background(), 100*time.Millisecond)
	if err != nil || payload != "" {
		t.Fatalf("expected empty pop, got %q err=%v", payload, err)
	}
}

func TestConsumeInOrderAndParksMalformed(t *testing.T) {
	q, mr := newQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Publish(ctx, notification("m1")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := mr.RPush(q.eventsKey, "{not json"); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := q.Publish(ctx, notification("m2")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var got []string
	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, func(_ context.Context, n listener.Notification) {
			got = append(got, *n.Message.Original.MessageID)
			if len(got) == 2 {
				cancel()
			}
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected cancellation, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("consume did not stop")
	}
	if len(got) != 2 || got[0] != "m1" || got[1] != "m2" {
		t.Fatalf("unexpected consumption order %v", got)
	}

	dead, err := q.DeadPeek(context.Background(), 10)
	if err != nil || len(dead) != 1 || dead[0] != "{not json" {
		t.Fatalf("expected malformed payload parked, got %v err=%v", dead, err)
	}
}

func TestConsumeStopsWhileBackingOff(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	mr.Close()
	q := NewRedisQueueWithClient(client, "", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	started := time.Now()
	err = q.Consume(ctx, func(context.Context, listener.Notification) {
		t.Fatalf("nothing should be consumed")
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(started); elapsed >= popTimeout {
		t.Fatalf("consume waited out the retry delay: %s", elapsed)
	}
}
