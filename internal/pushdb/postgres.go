package pushdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const (
	postgresTableName        = "push_subscriptions"
	postgresOperationTimeout = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// Postgres is the Store for shared deployments. The connection and table
// are set up on first use.
type Postgres struct {
	dsn    string
	openDB sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

// OpenPostgres returns a Postgres store for dsn. No connection is made
// until the first operation.
func OpenPostgres(dsn string) (*Postgres, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("pushdb: empty postgres dsn")
	}
	return &Postgres{dsn: dsn, openDB: sql.Open}, nil
}

func (p *Postgres) ensureReady() error {
	p.initOnce.Do(func() {
		db, err := p.openDB("postgres", p.dsn)
		if err != nil {
			p.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		query := `
			CREATE TABLE IF NOT EXISTS ` + postgresTableName + ` (
				id BIGSERIAL PRIMARY KEY,
				endpoint TEXT NOT NULL,
				p256dh TEXT NOT NULL,
				auth TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			p.initErr = err
			return
		}
		p.db = db
	})
	return p.initErr
}

func opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, postgresOperationTimeout)
}

func (p *Postgres) Create(ctx context.Context, sub *Subscription) (int64, error) {
	if err := p.ensureReady(); err != nil {
		return 0, err
	}
	ctx, cancel := opContext(ctx)
	defer cancel()

	createdAt := sub.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	var id int64
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO `+postgresTableName+` (endpoint, p256dh, auth, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		sub.Endpoint, sub.P256dh, sub.Auth, createdAt.UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert subscription: %w", err)
	}
	sub.ID = id
	sub.CreatedAt = createdAt
	return id, nil
}

func (p *Postgres) Latest(ctx context.Context) (*Subscription, error) {
	if err := p.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := opContext(ctx)
	defer cancel()

	var s Subscription
	err := p.db.QueryRowContext(ctx,
		`SELECT id, endpoint, p256dh, auth, created_at FROM `+postgresTableName+` ORDER BY id DESC LIMIT 1`).
		Scan(&s.ID, &s.Endpoint, &s.P256dh, &s.Auth, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest subscription: %w", err)
	}
	return &s, nil
}

func (p *Postgres) Delete(ctx context.Context, id int64) error {
	if err := p.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := opContext(ctx)
	defer cancel()

	res, err := p.db.ExecContext(ctx, `DELETE FROM `+postgresTableName+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("subscription %d: %w", id, ErrNotFound)
	}
	return nil
}

func (p *Postgres) List(ctx context.Context) ([]Subscription, error) {
	if err := p.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := opContext(ctx)
	defer cancel()

	rows, err := p.db.QueryContext(ctx,
		`SELECT id, endpoint, p256dh, auth, created_at FROM `+postgresTableName+` ORDER BY id`)
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

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := opContext(ctx)
	defer cancel()
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}
