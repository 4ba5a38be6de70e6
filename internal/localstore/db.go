// Package localstore is an embedded SQLite implementation of the remote
// store: accounts, profiles and notes in one database file, with per-session
// access tokens and owner checks on every row.
package localstore

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/notesapp/internal/remote"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
	password_hash TEXT NOT NULL,
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS profiles (
	id        TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
	full_name TEXT NOT NULL DEFAULT '',
	email     TEXT NOT NULL DEFAULT '',
	phone     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS notes (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	title      TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notes_user_created ON notes(user_id, created_at DESC);
`

// DefaultTokenTTL is the lifetime of an access token when none is configured.
const DefaultTokenTTL = 24 * time.Hour

// ErrNoSecret is returned by Open when no token secret was configured.
var ErrNoSecret = errors.New("localstore: token secret is required")

// Option configures a DB.
type Option func(*DB)

// WithTokenSecret sets the HMAC key used to sign access tokens.
func WithTokenSecret(secret string) Option {
	return func(db *DB) { db.secret = []byte(secret) }
}

// WithTokenTTL sets the access token lifetime.
func WithTokenTTL(ttl time.Duration) Option {
	return func(db *DB) {
		if ttl > 0 {
			db.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(db *DB) { db.now = now }
}

// DB owns the database connection and the token key.
type DB struct {
	conn   *sql.DB
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	clockMu sync.Mutex
	last    time.Time
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string, opts ...Option) (*DB, error) {
	db := &DB{ttl: DefaultTokenTTL, now: time.Now}
	for _, opt := range opts {
		opt(db)
	}
	if len(db.secret) == 0 {
		return nil, ErrNoSecret
	}

	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("localstore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("localstore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("localstore: apply schema: %w", err)
	}
	db.conn = conn
	return db, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// NewClient opens a signed-out session.
func (db *DB) NewClient() *Client {
	return &Client{db: db}
}

// Factory adapts NewClient to remote.Factory.
func (db *DB) Factory() remote.Factory {
	return func() remote.Store { return db.NewClient() }
}

// stamp returns the current UTC time, strictly after every earlier stamp.
func (db *DB) stamp() time.Time {
	db.clockMu.Lock()
	defer db.clockMu.Unlock()
	t := db.now().UTC()
	if !t.After(db.last) {
		t = db.last.Add(time.Microsecond)
	}
	db.last = t
	return t
}
