package telemetry

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink persists every record to an audit table. This is the only
// durable state the system writes: the engine itself keeps no persistent
// state, but an operator may still want a queryable history of alerts.
type PostgresSink struct {
	pool    *pgxpool.Pool
	table   string
	timeout time.Duration
}

// NewPostgresSink builds a sink writing into the given table, which must
// have columns (ts timestamptz, level text, source text, message text,
// attack text, severity text, confidence double precision).
func NewPostgresSink(pool *pgxpool.Pool, table string) *PostgresSink {
	return &PostgresSink{pool: pool, table: table, timeout: 5 * time.Second}
}

// Write inserts one row per record.
func (s *PostgresSink) Write(rec Record) error {
	var attack, severity string
	var confidence float64

	if rec.Alert != nil {
		attack = rec.Alert.Kind.String()
		severity = rec.Alert.Severity.String()
		confidence = rec.Alert.Confidence
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table+` (ts, level, source, message, attack, severity, confidence)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.Timestamp, rec.Level.String(), rec.Source, rec.Message, attack, severity, confidence)

	return err
}

// Flush is a no-op: each Write is already a committed statement.
func (s *PostgresSink) Flush() error { return nil }

// Close releases the pool back to the caller's lifecycle; the pool itself
// is owned by whoever constructed it and is not closed here.
func (s *PostgresSink) Close() error { return nil }
