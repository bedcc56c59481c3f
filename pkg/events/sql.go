package events

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // SQLite driver
)

// Dialect selects driver-specific SQL.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// insertChunk bounds the rows per INSERT so SQLite stays under its variable limit.
const insertChunk = 100

var eventColumns = []string{"run_id", "seq", "day", "type", "payload", "payload_hash", "hash"}

// SQLSink stores events in a relational table.
type SQLSink struct {
	db      *sql.DB
	dialect Dialect
	builder sq.StatementBuilderType
	owned   bool
}

// NewSQLSink wraps db and creates the events table when missing.
func NewSQLSink(db *sql.DB, dialect Dialect) (*SQLSink, error) {
	s := &SQLSink{db: db, dialect: dialect}
	switch dialect {
	case DialectSQLite:
		s.builder = sq.StatementBuilder.PlaceholderFormat(sq.Question)
	case DialectPostgres:
		s.builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	default:
		return nil, fmt.Errorf("events: unsupported dialect %q", dialect)
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("events: migrate: %w", err)
	}
	return s, nil
}

// Open builds a sink from a DSN. An empty DSN gives a MemorySink;
// "sqlite://path" and "postgres://..." open the matching database.
func Open(dsn string) (Sink, error) {
	var (
		driver  string
		source  string
		dialect Dialect
	)
	switch {
	case dsn == "" || dsn == "memory":
		return NewMemorySink(), nil
	case strings.HasPrefix(dsn, "sqlite://"):
		driver, source, dialect = "sqlite", strings.TrimPrefix(dsn, "sqlite://"), DialectSQLite
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		driver, source, dialect = "postgres", dsn, DialectPostgres
	default:
		return nil, fmt.Errorf("events: unsupported DSN %q", dsn)
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("events: open %s: %w", driver, err)
	}
	if dialect == DialectSQLite {
		// modernc serialises writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	s, err := NewSQLSink(db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

func (s *SQLSink) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS events (
        run_id TEXT NOT NULL,
        seq BIGINT NOT NULL,
        day INTEGER NOT NULL,
        type TEXT NOT NULL,
        payload TEXT NOT NULL,
        payload_hash TEXT NOT NULL,
        hash TEXT NOT NULL,
        PRIMARY KEY (run_id, seq)
    );`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Write inserts batch in one transaction.
func (s *SQLSink) Write(ctx context.Context, batch []Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for start := 0; start < len(batch); start += insertChunk {
		end := min(start+insertChunk, len(batch))
		ins := s.builder.Insert("events").Columns(eventColumns...)
		for _, ev := range batch[start:end] {
			ins = ins.Values(ev.RunID, int64(ev.Seq), ev.Day, string(ev.Type), string(ev.Payload), ev.PayloadHash, ev.Hash)
		}
		query, args, err := ins.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert events: %w", err)
		}
	}
	return tx.Commit()
}

// Truncate deletes events of runID after seq.
func (s *SQLSink) Truncate(ctx context.Context, runID string, seq uint64) error {
	query, args, err := s.builder.Delete("events").
		Where(sq.Eq{"run_id": runID}).
		Where(sq.Gt{"seq": int64(seq)}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// Events returns the events of runID in sequence order.
func (s *SQLSink) Events(ctx context.Context, runID string) ([]Event, error) {
	query, args, err := s.builder.Select(eventColumns...).
		From("events").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("seq").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Event
	for rows.Next() {
		var (
			ev      Event
			seq     int64
			typ     string
			payload string
		)
		if err := rows.Scan(&ev.RunID, &seq, &ev.Day, &typ, &payload, &ev.PayloadHash, &ev.Hash); err != nil {
			return nil, err
		}
		ev.Seq = uint64(seq)
		ev.Type = Type(typ)
		ev.Payload = []byte(payload)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Close closes the database when the sink opened it.
func (s *SQLSink) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
