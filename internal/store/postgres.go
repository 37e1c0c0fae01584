package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"queue-monitor/internal/models"
)

var _ LogStore = (*Postgres)(nil)

// Postgres wraps pgxpool for Postgres persistence.
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgres creates a pooled connection to Postgres.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{pool: pool, now: time.Now}, nil
}

// WithClock overrides the write-time clock.
func (s *Postgres) WithClock(now func() time.Time) *Postgres {
	s.now = now
	return s
}

func (s *Postgres) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Append inserts one log row. The insert is a single statement, so a failed
// append leaves nothing behind.
func (s *Postgres) Append(ctx context.Context, rec models.LogRecord) (string, error) {
	rec, err := prepare(rec, s.now)
	if err != nil {
		return "", err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO queue_monitoring_logs (id, created, message_id, message_timestamp, event, job, exception, content)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, rec.Created, rec.MessageID, rec.MessageTimestamp, int16(rec.Event), rec.Job, rec.Exception, rec.Content)
	if err != nil {
		return "", persistenceErr("insert log", err)
	}
	return rec.ID, nil
}

const lastEventSelect = `
	SELECT message_id, MAX(event), MAX(created), MAX(message_timestamp)
	FROM queue_monitoring_logs
	GROUP BY message_id`

// LastEventPerMessage returns max(event) and max(created) per message id.
func (s *Postgres) LastEventPerMessage(ctx context.Context) ([]models.LastEvent, error) {
	rows, err := s.pool.Query(ctx, lastEventSelect+` ORDER BY message_id`)
	if err != nil {
		return nil, persistenceErr("query last events", err)
	}
	return scanLastEvents(rows)
}

// StuckJobs filters the last-event groups with a HAVING clause on the
// non-terminal ranks and the write-time cutoff.
func (s *Postgres) StuckJobs(ctx context.Context, olderThan time.Time) ([]models.LastEvent, error) {
	ranks := make([]int32, 0, 2)
	for _, r := range models.NonTerminalRanks() {
		ranks = append(ranks, int32(r))
	}
	rows, err := s.pool.Query(ctx, lastEventSelect+`
		HAVING MAX(event) = ANY($1) AND MAX(created) <= $2
		ORDER BY message_id`, ranks, olderThan.UTC())
	if err != nil {
		return nil, persistenceErr("query stuck jobs", err)
	}
	return scanLastEvents(rows)
}

// Purge deletes rows by message timestamp in one statement.
func (s *Postgres) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM queue_monitoring_logs WHERE message_timestamp <= $1
	`, cutoff.UTC())
	if err != nil {
		return 0, persistenceErr("purge logs", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Postgres) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM queue_monitoring_logs`).Scan(&n); err != nil {
		return 0, persistenceErr("count logs", err)
	}
	return n, nil
}

func scanLastEvents(rows pgx.Rows) ([]models.LastEvent, error) {
	defer rows.Close()
	out := make([]models.LastEvent, 0)
	for rows.Next() {
		var (
			le                 models.LastEvent
			rank               int16
			created, messageTS pgtype.Timestamptz
		)
		if err := rows.Scan(&le.MessageID, &rank, &created, &messageTS); err != nil {
			return nil, persistenceErr("scan last event", err)
		}
		le.LastEvent = models.Event(rank)
		le.LastCreated = created.Time.UTC()
		le.MessageTimestamp = messageTS.Time.UTC()
		out = append(out, le)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr("iterate last events", err)
	}
	return out, nil
}
