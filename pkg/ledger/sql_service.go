package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Dialect selects placeholder syntax for SQLService.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLService implements Service using database/sql.
// It supports both Postgres and SQLite via standard drivers.
type SQLService struct {
	db      *sql.DB
	dialect Dialect
	clock   func() time.Time
}

func NewSQLService(db *sql.DB, dialect Dialect) *SQLService {
	return &SQLService{db: db, dialect: dialect, clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (s *SQLService) WithClock(clock func() time.Time) *SQLService {
	s.clock = clock
	return s
}

const schema = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	fingerprint TEXT PRIMARY KEY,
	reference TEXT NOT NULL UNIQUE,
	payload TEXT NOT NULL,
	reporter TEXT,
	network TEXT,
	submitted_at TEXT,
	committed_at TEXT
);
`

func (s *SQLService) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLService) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Submit appends e. The fingerprint primary key keeps the table append-only
// per observation: a conflicting insert affects no rows and yields ErrDuplicate.
func (s *SQLService) Submit(ctx context.Context, e Entry) (string, error) {
	now := s.clock()
	ref := externalReference(e, now.UnixNano())

	query := s.rebind(`
		INSERT INTO ledger_entries (fingerprint, reference, payload, reporter, network, submitted_at, committed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO NOTHING
	`)
	res, err := s.db.ExecContext(ctx, query,
		e.Fingerprint, ref, string(e.Payload), e.Reporter, e.Network, formatTime(e.SubmittedAt), formatTime(now),
	)
	if err != nil {
		return "", errors.Join(ErrUnavailable, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return "", ErrDuplicate
	}
	return ref, nil
}

func (s *SQLService) Get(ctx context.Context, fingerprint string) (Record, error) {
	query := s.rebind(`SELECT fingerprint, reference, payload, reporter, network, submitted_at, committed_at FROM ledger_entries WHERE fingerprint = ?`)
	row := s.db.QueryRowContext(ctx, query, fingerprint)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

func (s *SQLService) List(ctx context.Context) ([]Record, error) {
	query := `SELECT fingerprint, reference, payload, reporter, network, submitted_at, committed_at FROM ledger_entries ORDER BY committed_at`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(r rowScanner) (Record, error) {
	var (
		rec                    Record
		payload                string
		reporter, network      sql.NullString
		submitted, committedAt sql.NullString
	)
	if err := r.Scan(&rec.Fingerprint, &rec.Reference, &payload, &reporter, &network, &submitted, &committedAt); err != nil {
		return Record{}, err
	}
	rec.Payload = []byte(payload)
	rec.Reporter = reporter.String
	rec.Network = network.String
	rec.SubmittedAt = parseTime(submitted.String)
	rec.CommittedAt = parseTime(committedAt.String)
	return rec, nil
}

// Timestamps are stored as RFC 3339 text so both drivers round-trip them alike.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
