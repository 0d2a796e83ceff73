package pushdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SchemaVersion is the current sqlite schema version.
const SchemaVersion = 1

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS push_subscriptions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    endpoint TEXT NOT NULL,
    p256dh TEXT NOT NULL,
    auth TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Migration is a versioned schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations run in order on databases older than SchemaVersion.
var Migrations = []Migration{}

// SQLite is the single-file Store.
type SQLite struct {
	conn *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	conn.Exec("PRAGMA synchronous=NORMAL")

	if _, err := conn.Exec(sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	db := &SQLite{conn: conn, path: path}
	if _, err := db.RunMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// RunMigrations applies pending migrations and returns how many ran.
func (db *SQLite) RunMigrations() (int, error) {
	if _, err := db.conn.Exec(`CREATE TABLE IF NOT EXISTS schema_info (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return 0, fmt.Errorf("create schema_info: %w", err)
	}

	current := db.schemaVersion()
	if current >= SchemaVersion {
		return 0, nil
	}

	n := 0
	for _, m := range Migrations {
		if m.Version <= current {
			continue
		}
		if _, err := db.conn.Exec(m.SQL); err != nil {
			return n, fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		if err := db.setSchemaVersion(m.Version); err != nil {
			return n, fmt.Errorf("set version %d: %w", m.Version, err)
		}
		n++
	}
	if err := db.setSchemaVersion(SchemaVersion); err != nil {
		return n, err
	}
	return n, nil
}

func (db *SQLite) schemaVersion() int {
	var version string
	if err := db.conn.QueryRow("SELECT value FROM schema_info WHERE key = 'version'").Scan(&version); err != nil {
		return 0
	}
	var v int
	fmt.Sscanf(version, "%d", &v)
	return v
}

func (db *SQLite) setSchemaVersion(v int) error {
	_, err := db.conn.Exec(`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`, fmt.Sprintf("%d", v))
	return err
}

// Path returns the database file path.
func (db *SQLite) Path() string { return db.path }

func (db *SQLite) Create(ctx context.Context, sub *Subscription) (int64, error) {
	createdAt := sub.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO push_subscriptions (endpoint, p256dh, auth, created_at) VALUES (?, ?, ?, ?)`,
		sub.Endpoint, sub.P256dh, sub.Auth, createdAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("insert subscription: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("subscription id: %w", err)
	}
	sub.ID = id
	sub.CreatedAt = createdAt
	return id, nil
}

func (db *SQLite) Latest(ctx context.Context) (*Subscription, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, endpoint, p256dh, auth, created_at FROM push_subscriptions ORDER BY id DESC LIMIT 1`)
	var s Subscription
	err := row.Scan(&s.ID, &s.Endpoint, &s.P256dh, &s.Auth, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest subscription: %w", err)
	}
	return &s, nil
}

func (db *SQLite) Delete(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("subscription %d: %w", id, ErrNotFound)
	}
	return nil
}

func (db *SQLite) List(ctx context.Context) ([]Subscription, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, endpoint, p256dh, auth, created_at FROM push_subscriptions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		var s Subscription
		if err := rows.Scan(&s.ID, &s.Endpoint, &s.P256dh, &s.Auth, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (db *SQLite) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close checkpoints the WAL and closes the connection.
func (db *SQLite) Close() error {
	db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return db.conn.Close()
}
