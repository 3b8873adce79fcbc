package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/wiredraw-server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	room       TEXT    NOT NULL,
	seq        INTEGER NOT NULL,
	sender     TEXT    NOT NULL,
	payload    BLOB    NOT NULL,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (room, seq)
);
`

// SQLiteStore implements store.HistoryStore for SQLite.
type SQLiteStore struct {
	db        *sql.DB
	retention int
}

// New opens (or creates) the database at dbPath and applies the schema.
// retention bounds the number of entries kept per room; 0 keeps everything.
func New(dbPath string, retention int) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, retention, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, retention int, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db, retention: retention}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append inserts the entry and trims the room down to the retention bound.
func (s *SQLiteStore) Append(ctx context.Context, e store.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (room, seq, sender, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, e.Room, e.Seq, e.Sender, e.Payload, e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if s.retention > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE room = ? AND seq <= ?`, e.Room, e.Seq-int64(s.retention))
		if err != nil {
			return fmt.Errorf("trim history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Recent retrieves the newest messages of a room in chronological order.
func (s *SQLiteStore) Recent(ctx context.Context, room string, limit int) ([]store.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT room, seq, sender, payload, created_at
		FROM messages
		WHERE room = ?
		ORDER BY seq DESC
		LIMIT ?
	`, room, store.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	entries := make([]store.Entry, 0, store.ClampLimit(limit))
	for rows.Next() {
		var e store.Entry
		if err := rows.Scan(&e.Room, &e.Seq, &e.Sender, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// Reverse to get chronological order
	for i := range len(entries) / 2 {
		entries[i], entries[len(entries)-1-i] = entries[len(entries)-1-i], entries[i]
	}

	return entries, nil
}

// LastSeq returns the highest stored sequence number for a room.
func (s *SQLiteStore) LastSeq(ctx context.Context, room string) (int64, error) {
	var last sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM messages WHERE room = ?`, room).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return last.Int64, nil
}

var _ store.HistoryStore = (*SQLiteStore)(nil)
