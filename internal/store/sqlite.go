// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Owns the connection, schema creation and shared row helpers

package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is created if it doesn't exist; parent directories are created
// if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS accounts (
			id           TEXT PRIMARY KEY,
			external_id  TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			role         TEXT NOT NULL DEFAULT 'plain',
			created_at   TEXT NOT NULL,

			CHECK (role IN ('plain', 'admin_capable', 'main_admin'))
		);

		CREATE TABLE IF NOT EXISTS conferences (
			id          TEXT PRIMARY KEY,
			code        TEXT NOT NULL UNIQUE,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			access      TEXT NOT NULL DEFAULT 'public',
			starts_at   TEXT,
			ends_at     TEXT,
			active      INTEGER NOT NULL DEFAULT 1,
			ended       INTEGER NOT NULL DEFAULT 0,
			slide_url   TEXT,
			slide_title TEXT,
			created_by  TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL,

			CHECK (access IN ('public', 'private'))
		);

		CREATE TABLE IF NOT EXISTS conference_admins (
			conference_id TEXT NOT NULL,
			profile_id    TEXT NOT NULL,
			position      INTEGER NOT NULL,

			PRIMARY KEY (conference_id, profile_id),
			FOREIGN KEY (conference_id) REFERENCES conferences(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS profiles (
			id            TEXT PRIMARY KEY,
			account_id    TEXT NOT NULL,
			conference_id TEXT NOT NULL,
			name          TEXT NOT NULL,
			interests     TEXT NOT NULL DEFAULT '[]',
			offerings     TEXT NOT NULL DEFAULT '[]',
			looking_for   TEXT NOT NULL DEFAULT '[]',
			roles         TEXT NOT NULL DEFAULT '[]',
			onboarded     INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT NOT NULL,

			UNIQUE (account_id, conference_id),
			FOREIGN KEY (conference_id) REFERENCES conferences(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_profiles_conference ON profiles(conference_id);

		CREATE TABLE IF NOT EXISTS questions (
			id                TEXT PRIMARY KEY,
			conference_id     TEXT NOT NULL,
			author_profile_id TEXT,
			target_profile_id TEXT,
			text              TEXT NOT NULL,
			status            TEXT NOT NULL DEFAULT 'pending',
			answer            TEXT,
			answered_by       TEXT,
			answered          INTEGER NOT NULL DEFAULT 0,
			created_at        TEXT NOT NULL,

			CHECK (status IN ('pending', 'approved', 'rejected')),
			FOREIGN KEY (conference_id) REFERENCES conferences(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_questions_conf_status
			ON questions(conference_id, status, created_at);

		CREATE TABLE IF NOT EXISTS polls (
			id            TEXT PRIMARY KEY,
			conference_id TEXT NOT NULL,
			question      TEXT NOT NULL,
			active        INTEGER NOT NULL DEFAULT 1,
			created_at    TEXT NOT NULL,

			FOREIGN KEY (conference_id) REFERENCES conferences(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_polls_conference ON polls(conference_id);

		CREATE TABLE IF NOT EXISTS poll_options (
			poll_id   TEXT NOT NULL,
			option_id INTEGER NOT NULL,
			text      TEXT NOT NULL,

			PRIMARY KEY (poll_id, option_id),
			FOREIGN KEY (poll_id) REFERENCES polls(id) ON DELETE CASCADE
		);

		-- The (poll_id, account_id) primary key is the vote invariant:
		-- a voter can hold at most one row per poll, and the constraint
		-- check happens inside the INSERT itself.
		CREATE TABLE IF NOT EXISTS poll_votes (
			poll_id    TEXT NOT NULL,
			option_id  INTEGER NOT NULL,
			account_id TEXT NOT NULL,
			created_at TEXT NOT NULL,

			PRIMARY KEY (poll_id, account_id),
			FOREIGN KEY (poll_id, option_id) REFERENCES poll_options(poll_id, option_id) ON DELETE CASCADE
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isUniqueViolation detects SQLite UNIQUE/PRIMARY KEY constraint failures.
// modernc.org/sqlite does not export typed errors for this, so the message
// is the contract.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed: UNIQUE")
}

func encodeList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeList(data string) []string {
	if data == "" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		return nil
	}
	return items
}

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

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
