package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marcus/arcsync/internal/models"
)

// AppendOperation validates payload against kind's schema and durably
// appends it to the pending queue. It returns the assigned id once the
// row is committed.
func (db *DB) AppendOperation(ctx context.Context, kind models.OperationKind, payload any) (int64, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return 0, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	if err := models.ValidatePayload(kind, raw); err != nil {
		return 0, err
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO pending_operations (kind, data, timestamp) VALUES (?, ?, ?)`,
		string(kind), string(raw), db.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("insert pending operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("pending operation id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit append: %w", err)
	}
	return id, nil
}

// ListOperations returns every queued operation in insertion order.
func (db *DB) ListOperations(ctx context.Context) ([]models.PendingOperation, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, kind, data, timestamp FROM pending_operations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list pending operations: %w", err)
	}
	defer rows.Close()

	var ops []models.PendingOperation
	for rows.Next() {
		var (
			op   models.PendingOperation
			kind string
			data string
			ms   int64
		)
		if err := rows.Scan(&op.ID, &kind, &data, &ms); err != nil {
			return nil, fmt.Errorf("scan pending operation: %w", err)
		}
		op.Kind = models.OperationKind(kind)
		op.Payload = json.RawMessage(data)
		op.EnqueuedAt = time.UnixMilli(ms)
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// RemoveOperation deletes the operation with the given id.
// Returns ErrNotFound if no such operation is queued.
func (db *DB) RemoveOperation(ctx context.Context, id int64) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	res, err := db.conn.ExecContext(ctx, `DELETE FROM pending_operations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove pending operation %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove pending operation %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("pending operation %d: %w", id, ErrNotFound)
	}
	return nil
}

// CountOperations returns the number of queued operations.
func (db *DB) CountOperations(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_operations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending operations: %w", err)
	}
	return n, nil
}

func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		return p, nil
	case []byte:
		return p, nil
	default:
		return json.Marshal(payload)
	}
}
