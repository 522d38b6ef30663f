package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)

	"github.com/longmans/prompt-agent/internal/optimizer"
)

const defaultListLimit = 50

// Version is tracked in the schema_versions table.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS runs (
    id                   TEXT PRIMARY KEY,
    role                 TEXT NOT NULL,
    model_type           TEXT NOT NULL,
    step                 TEXT NOT NULL,
    degraded             BOOLEAN NOT NULL DEFAULT 0,
    fallbacks            TEXT NOT NULL DEFAULT '[]',
    final_recommendation TEXT NOT NULL DEFAULT '',
    payload              TEXT NOT NULL,
    created_at           DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_runs_model_type ON runs(model_type, created_at DESC);
`,
	},
}

// Option configures the SQLite store.
type Option func(*sqliteStore)

// WithHistoryLimit keeps only the newest n runs; older ones are pruned on
// every save. n <= 0 keeps everything.
func WithHistoryLimit(n int) Option {
	return func(s *sqliteStore) { s.historyLimit = n }
}

// sqliteStore is the SQLite-backed implementation of Store.
type sqliteStore struct {
	db           *sql.DB
	historyLimit int
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// runs all pending schema migrations. Pass ":memory:" for an in-memory store.
func NewSQLiteStore(path string, opts ...Option) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrency and performance.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &sqliteStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *sqliteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue // already applied
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}

		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Runs ─────────────────────────────────────────────────────────────────────

func (s *sqliteStore) SaveRun(ctx context.Context, resp optimizer.Response) error {
	if resp.RunID == "" {
		return errors.New("save run: run id is required")
	}
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = time.Now()
	}
	if resp.Fallbacks == nil {
		resp.Fallbacks = []optimizer.Stage{}
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	fallbacks, err := json.Marshal(resp.Fallbacks)
	if err != nil {
		return fmt.Errorf("marshal fallbacks: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO runs(id, role, model_type, step, degraded, fallbacks, final_recommendation, payload, created_at)
        VALUES(?,?,?,?,?,?,?,?,?)
        ON CONFLICT(id) DO UPDATE SET
            role                 = excluded.role,
            model_type           = excluded.model_type,
            step                 = excluded.step,
            degraded             = excluded.degraded,
            fallbacks            = excluded.fallbacks,
            final_recommendation = excluded.final_recommendation,
            payload              = excluded.payload
    `,
		resp.RunID, resp.Role, resp.ModelType, string(resp.Step), len(resp.Fallbacks) > 0,
		string(fallbacks), resp.FinalRecommendation, string(payload), resp.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	if s.historyLimit > 0 {
		_, err = tx.ExecContext(ctx, `
            DELETE FROM runs WHERE id NOT IN (
                SELECT id FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?
            )`, s.historyLimit)
		if err != nil {
			return fmt.Errorf("prune runs: %w", err)
		}
	}

	return tx.Commit()
}

func (s *sqliteStore) GetRun(ctx context.Context, id string) (*optimizer.Response, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE id=?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}

	var resp optimizer.Response
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", id, err)
	}
	return &resp, nil
}

func (s *sqliteStore) ListRuns(ctx context.Context, limit, offset int) ([]*RunSummary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, role, model_type, step, degraded, fallbacks, final_recommendation, created_at
        FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	result := []*RunSummary{}
	for rows.Next() {
		rec, err := scanRunSummary(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *sqliteStore) CountRuns(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

func (s *sqliteStore) DeleteRun(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id=?`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRunSummary(row rowScanner) (*RunSummary, error) {
	rec := &RunSummary{}
	var step, fallbacks, createdAt string
	err := row.Scan(&rec.ID, &rec.Role, &rec.ModelType, &step, &rec.Degraded,
		&fallbacks, &rec.FinalRecommendation, &createdAt)
	if err != nil {
		return nil, err
	}
	rec.Step = optimizer.Step(step)
	if err := json.Unmarshal([]byte(fallbacks), &rec.Fallbacks); err != nil {
		return nil, fmt.Errorf("decode fallbacks of run %s: %w", rec.ID, err)
	}
	rec.CreatedAt, _ = parseTime(createdAt)
	return rec, nil
}

func parseTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999 -0700 MST",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time format: %q", s)
}
