package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"queue-monitor/internal/models"
)

var _ LogStore = (*SQLite)(nil)

// SQLite is a single-node log store. Timestamps are kept as Unix
// microseconds.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens the database at path and applies migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", models.ErrConfiguration)
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applySQLiteMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

// WithClock overrides the write-time clock.
func (s *SQLite) WithClock(now func() time.Time) *SQLite {
	s.now = now
	return s
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) Append(ctx context.Context, rec models.LogRecord) (string, error) {
	rec, err := prepare(rec, s.now)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO queue_monitoring_logs (id, created, message_id, message_timestamp, event, job, exception, content)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Created.UnixMicro(),
		rec.MessageID,
		rec.MessageTimestamp.UnixMicro(),
		int(rec.Event),
		nullString(rec.Job),
		nullString(rec.Exception),
		rec.Content,
	)
	if err != nil {
		return "", persistenceErr("insert log", err)
	}
	return rec.ID, nil
}

const sqliteLastEventSelect = `
SELECT message_id, MAX(event), MAX(created), MAX(message_timestamp)
FROM queue_monitoring_logs
GROUP BY message_id`

func (s *SQLite) LastEventPerMessage(ctx context.Context) ([]models.LastEvent, error) {
	rows, err := s.db.QueryContext(ctx, sqliteLastEventSelect+` ORDER BY message_id`)
	if err != nil {
		return nil, persistenceErr("query last events", err)
	}
	return scanSQLiteLastEvents(rows)
}

func (s *SQLite) StuckJobs(ctx context.Context, olderThan time.Time) ([]models.LastEvent, error) {
	ranks := models.NonTerminalRanks()
	placeholders := make([]string, len(ranks))
	args := make([]any, 0, len(ranks)+1)
	for i, r := range ranks {
		placeholders[i] = "?"
		args = append(args, r)
	}
	args = append(args, olderThan.UTC().UnixMicro())

	query := sqliteLastEventSelect + `
HAVING MAX(event) IN (` + strings.Join(placeholders, ", ") + `) AND MAX(created) <= ?
ORDER BY message_id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistenceErr("query stuck jobs", err)
	}
	return scanSQLiteLastEvents(rows)
}

func (s *SQLite) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM queue_monitoring_logs WHERE message_timestamp <= ?`, cutoff.UTC().UnixMicro())
	if err != nil {
		return 0, persistenceErr("purge logs", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, persistenceErr("purge logs", err)
	}
	return n, nil
}

func (s *SQLite) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue_monitoring_logs`).Scan(&n); err != nil {
		return 0, persistenceErr("count logs", err)
	}
	return n, nil
}

func scanSQLiteLastEvents(rows *sql.Rows) ([]models.LastEvent, error) {
	defer rows.Close()
	out := make([]models.LastEvent, 0)
	for rows.Next() {
		var (
			le                 models.LastEvent
			rank               int
			created, messageTS int64
		)
		if err := rows.Scan(&le.MessageID, &rank, &created, &messageTS); err != nil {
			return nil, persistenceErr("scan last event", err)
		}
		le.LastEvent = models.Event(rank)
		le.LastCreated = time.UnixMicro(created).UTC()
		le.MessageTimestamp = time.UnixMicro(messageTS).UTC()
		out = append(out, le)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr("iterate last events", err)
	}
	return out, nil
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
