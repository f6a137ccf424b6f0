// Package history provides a SQLite-backed log of generated recipes. Every
// recipe produced by the recommendation orchestrator is appended with the
// user, provider and meal slot it was generated for, so operators and users
// can list what was recommended recently.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Operation names the orchestrator entry point that produced an entry.
type Operation string

const (
	OpSingle       Operation = "single"
	OpDaily        Operation = "daily"
	OpWeekly       Operation = "weekly"
	OpStreamSingle Operation = "stream_single"
	OpStreamDaily  Operation = "stream_daily"
)

// Entry is one generated recipe.
type Entry struct {
	// ID is assigned by Append when empty.
	ID        string    `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	Provider  string    `json:"provider"`
	Operation Operation `json:"operation"`
	// MealType is empty for single-recipe requests without a slot.
	MealType string `json:"mealType,omitempty"`
	// Recipe is the validated recipe as JSON.
	Recipe    string    `json:"recipe"`
	CreatedAt time.Time `json:"createdAt"`
}

// Log persists and lists generated recipes. Implementations must be safe for
// concurrent use.
type Log interface {
	// Append persists e.
	Append(ctx context.Context, e Entry) error
	// Recent returns the most recent n entries for userID (all users when
	// userID is empty), ordered oldest-first.
	Recent(ctx context.Context, userID string, n int) ([]Entry, error)
	// Close releases any resources held by the log.
	Close() error
}

// SQLiteLog is a Log backed by a local SQLite database.
type SQLiteLog struct {
	db  *sql.DB
	now func() time.Time
}

var _ Log = (*SQLiteLog)(nil)

// DefaultDBPath returns the default path for the history database,
// ~/.eatwhat/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("history: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".eatwhat")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("history: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteLog at path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteLog, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// A single connection serializes writers and keeps ":memory:" databases
	// shared across calls.
	db.SetMaxOpenConns(1)

	l := &SQLiteLog{db: db, now: time.Now}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLiteLog) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS generations (
    seq          INTEGER PRIMARY KEY AUTOINCREMENT,
    id           TEXT    NOT NULL UNIQUE,
    user_id      TEXT    NOT NULL DEFAULT '',
    provider     TEXT    NOT NULL,
    operation    TEXT    NOT NULL,
    meal_type    TEXT    NOT NULL DEFAULT '',
    recipe       TEXT    NOT NULL,
    created_at   INTEGER NOT NULL  -- Unix milliseconds
);
CREATE INDEX IF NOT EXISTS idx_generations_user_created
    ON generations (user_id, created_at);
`
	if _, err := l.db.Exec(ddl); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Append implements Log.
func (l *SQLiteLog) Append(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now()
	}
	const q = `INSERT INTO generations (id, user_id, provider, operation, meal_type, recipe, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := l.db.ExecContext(ctx, q,
		e.ID, e.UserID, e.Provider, string(e.Operation), e.MealType, e.Recipe, e.CreatedAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}

// Recent implements Log. The tail is selected newest-first and re-ordered
// oldest-first.
func (l *SQLiteLog) Recent(ctx context.Context, userID string, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	const q = `
SELECT id, user_id, provider, operation, meal_type, recipe, created_at FROM (
    SELECT seq, id, user_id, provider, operation, meal_type, recipe, created_at
    FROM   generations
    WHERE  (? = '' OR user_id = ?)
    ORDER  BY created_at DESC, seq DESC
    LIMIT  ?
) ORDER BY created_at ASC, seq ASC`

	rows, err := l.db.QueryContext(ctx, q, userID, userID, n)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e  Entry
			op string
			ts int64
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Provider, &op, &e.MealType, &e.Recipe, &ts); err != nil {
			return nil, fmt.Errorf("history: recent scan: %w", err)
		}
		e.Operation = Operation(op)
		e.CreatedAt = time.UnixMilli(ts)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: recent rows: %w", err)
	}
	return out, nil
}

// Ping checks the database connection.
func (l *SQLiteLog) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// Close releases the database connection pool.
func (l *SQLiteLog) Close() error {
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("history: close: %w", err)
	}
	return nil
}

// Nop is a Log that discards entries. It is used when history is disabled.
type Nop struct{}

// Append implements Log.
func (Nop) Append(context.Context, Entry) error { return nil }

// Recent implements Log.
func (Nop) Recent(context.Context, string, int) ([]Entry, error) { return nil, nil }

// Close implements Log.
func (Nop) Close() error { return nil }

// OpenFromEnv opens the log named by EATWHAT_HISTORY_DB, or DefaultDBPath
// when unset. The value "disabled" returns Nop.
func OpenFromEnv() (Log, error) {
	path := os.Getenv("EATWHAT_HISTORY_DB")
	if path == "disabled" {
		return Nop{}, nil
	}
	if path == "" {
		p, err := DefaultDBPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return Open(path)
}
