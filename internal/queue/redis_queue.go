package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"queue-monitor/internal/config"
	"queue-monitor/internal/listener"
	"queue-monitor/internal/telemetry"
)

const (
	defaultEventsKey = "queue:monitor:events"
	popTimeout       = 2 * time.Second
)

// RedisQueue carries lifecycle notifications from queue workers to the
// listener process through a Redis list.
type RedisQueue struct {
	client    *redis.Client
	eventsKey string
	deadKey   string
	logger    *slog.Logger
}

// NewRedisQueue builds a queue client from config.
func NewRedisQueue(cfg config.Config, logger *slog.Logger) *RedisQueue {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return NewRedisQueueWithClient(client, cfg.EventsKey, logger)
}

func NewRedisQueueWithClient(client *redis.Client, eventsKey string, logger *slog.Logger) *RedisQueue {
	if eventsKey == "" {
		eventsKey = defaultEventsKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisQueue{
		client:    client,
		eventsKey: eventsKey,
		deadKey:   eventsKey + ":dead",
		logger:    logger,
	}
}

// Publish appends n to the events list.
func (q *RedisQueue) Publish(ctx context.Context, n listener.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return q.client.RPush(ctx, q.eventsKey, payload).Err()
}

// Pop blocks up to timeout for the next raw payload. It returns "" when the
// list stayed empty.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := q.client.BLPop(ctx, timeout, q.eventsKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if len(res) < 2 {
		return "", nil
	}
	return res[1], nil
}

// Consume hands every notification to handle until ctx is cancelled.
// Payloads that do not decode are moved to the dead list and skipped.
func (q *RedisQueue) Consume(ctx context.Context, handle func(context.Context, listener.Notification)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if depth, err := q.Depth(ctx); err == nil {
			telemetry.PendingEventsGauge.Set(float64(depth))
		}

		payload, err := q.Pop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q.logger.Error("failed to read queue monitoring events", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(popTimeout):
			}
			continue
		}
		if payload == "" {
			continue
		}

		var n listener.Notification
		if err := json.Unmarshal([]byte(payload), &n); err != nil {
			telemetry.EventsDropped.WithLabelValues("malformed").Inc()
			q.logger.Warn("dropping malformed queue monitoring event", "error", err)
			if err := q.client.RPush(ctx, q.deadKey, payload).Err(); err != nil {
				q.logger.Error("failed to park malformed event", "error", err)
			}
			continue
		}
		handle(ctx, n)
	}
}

// Depth reports how many notifications are waiting.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.eventsKey).Result()
}

// DeadPeek returns up to count parked payloads.
func (q *RedisQueue) DeadPeek(ctx context.Context, count int64) ([]string, error) {
	if count <= 0 {
		count = 10
	}
	return q.client.LRange(ctx, q.deadKey, 0, count-1).Result()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
