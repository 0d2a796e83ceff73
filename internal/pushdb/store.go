// Package pushdb stores push subscriptions for the notification backend.
package pushdb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/marcus/arcsync/internal/models"
)

// ErrNotFound is returned when a subscription id does not exist.
var ErrNotFound = errors.New("subscription not found")

// Subscription is a stored push subscription.
type Subscription = models.PushSubscription

// Store persists subscriptions.
type Store interface {
	// Create inserts sub and returns its id.
	Create(ctx context.Context, sub *Subscription) (int64, error)
	// Latest returns the subscription with the highest id, or nil.
	Latest(ctx context.Context) (*Subscription, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]Subscription, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open picks a backend from dsn: postgres:// and postgresql:// URLs use
// postgres, "sqlite:<path>" or a bare path uses sqlite.
func Open(dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return nil, fmt.Errorf("pushdb: empty dsn")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return OpenPostgres(dsn)
	case strings.HasPrefix(dsn, "sqlite:"):
		return OpenSQLite(strings.TrimPrefix(strings.TrimPrefix(dsn, "sqlite:"), "//"))
	default:
		return OpenSQLite(dsn)
	}
}
