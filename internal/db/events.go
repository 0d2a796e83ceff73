package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/marcus/arcsync/internal/models"
)

// AppendEvent records a diagnostic event.
func (db *DB) AppendEvent(ctx context.Context, kind models.EventKind, message string) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO event_log (time, kind, message) VALUES (?, ?, ?)`,
		db.now().UTC().Format(time.RFC3339Nano), string(kind), message)
	if err != nil {
		return fmt.Errorf("append event %s: %w", kind, err)
	}
	return nil
}

// ListEvents returns up to limit of the most recent events, oldest first.
// A limit <= 0 returns the whole log.
func (db *DB) ListEvents(ctx context.Context, limit int) ([]models.EventLogEntry, error) {
	query := `SELECT id, time, kind, message FROM event_log ORDER BY id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []models.EventLogEntry
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// LastEvent returns the newest event, or nil if the log is empty.
func (db *DB) LastEvent(ctx context.Context) (*models.EventLogEntry, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT id, time, kind, message FROM event_log ORDER BY id DESC LIMIT 1`)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (models.EventLogEntry, error) {
	var (
		e    models.EventLogEntry
		ts   string
		kind string
	)
	if err := s.Scan(&e.ID, &ts, &kind, &e.Message); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("scan event: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return e, fmt.Errorf("parse event time %q: %w", ts, err)
	}
	e.Time = t
	e.Kind = models.EventKind(kind)
	return e, nil
}
