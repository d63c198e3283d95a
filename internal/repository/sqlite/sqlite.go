// Package sqlite implements the repository interfaces on SQLite through the
// pure-Go modernc.org/sqlite driver (no cgo).
//
// CONNECTION MODEL:
// The pool is capped at one open connection. SQLite allows a single writer
// at a time anyway, and with one connection every transaction (in particular
// the vote toggle) runs strictly after the previous one, without relying on
// busy retries. It is also what makes ":memory:" usable: each new connection
// to ":memory:" would otherwise get its own empty database.
//
// Consequence for callers inside this package: never issue a second query
// while a *sql.Rows from the same pool is still open. The second query would
// wait for the only connection forever. Read rows fully, close them, then
// query again.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/platidea/internal/repository"

	sqlitedrv "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// compile-time check that *DB bundles every repository
var _ repository.Store = (*DB)(nil)

// DB owns the connection and hands out the per-entity repositories.
type DB struct {
	conn     *sql.DB
	ideas    *IdeaDB
	users    *UserDB
	sessions *SessionDB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/platidea.db" → file-based database
//   - ":memory:"         → in-memory database, gone when closed (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	pragmas := []struct{ stmt, what string }{
		{"PRAGMA journal_mode=WAL", "setting WAL mode"},
		{"PRAGMA foreign_keys=ON", "enabling foreign keys"},
		{"PRAGMA busy_timeout=5000", "setting busy timeout"},
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p.stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p.what, err)
		}
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	db.ideas = &IdeaDB{conn: conn}
	db.users = &UserDB{conn: conn}
	db.sessions = &SessionDB{conn: conn}
	return db, nil
}

func (db *DB) Ideas() repository.IdeaRepository       { return db.ideas }
func (db *DB) Users() repository.UserRepository       { return db.users }
func (db *DB) Sessions() repository.SessionRepository { return db.sessions }

// Ping checks that the database still answers.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database. Always defer it right after New.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. Every statement is idempotent, so it runs on
// each start.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS ideas (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			description TEXT NOT NULL,
			author_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_ideas_created_at ON ideas(created_at);
		CREATE INDEX IF NOT EXISTS idx_ideas_author_id ON ideas(author_id);
	`)
	if err != nil {
		return fmt.Errorf("creating ideas table: %w", err)
	}

	// ALTER TABLE is not idempotent, so addColumnIfNotExists checks
	// pragma_table_info first.
	if err := db.addColumnIfNotExists("ideas", "category", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding category to ideas: %w", err)
	}
	if _, err := db.conn.Exec(`CREATE INDEX IF NOT EXISTS idx_ideas_category ON ideas(category)`); err != nil {
		return fmt.Errorf("creating ideas category index: %w", err)
	}

	// The voter set. The composite primary key is what guarantees that a
	// user is counted at most once per idea.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS idea_voters (
			idea_id    TEXT NOT NULL REFERENCES ideas(id) ON DELETE CASCADE,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (idea_id, user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_idea_voters_user_id ON idea_voters(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating idea_voters table: %w", err)
	}

	// Session timestamps are unix nanoseconds so expiry sweeps compare numbers.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
	`)
	if err != nil {
		return fmt.Errorf("creating sessions table: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY conflict.
func isUniqueViolation(err error) bool {
	var se *sqlitedrv.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	return code == sqlitelib.SQLITE_CONSTRAINT_UNIQUE || code == sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY
}
