package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/cbhlc-api/pkg/cache"
	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
)

// AdvisoryLocker implements cache.Locker with PostgreSQL session advisory locks.
// The lock lives as long as the dedicated connection, so ttl is ignored.
type AdvisoryLocker struct {
	db *sqlx.DB
}

// NewAdvisoryLocker constructs a locker bound to db.
func NewAdvisoryLocker(db *sqlx.DB) *AdvisoryLocker {
	return &AdvisoryLocker{db: db}
}

// Acquire tries the lock without waiting.
func (l *AdvisoryLocker) Acquire(ctx context.Context, name string, _ time.Duration) (cache.ReleaseFunc, error) {
	conn, err := l.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("advisory lock conn: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowxContext(ctx, "SELECT pg_try_advisory_lock(hashtext($1))", name).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("advisory lock %s: %w", name, err)
	}
	if !acquired {
		_ = conn.Close()
		return nil, appErrors.Clone(appErrors.ErrLocked, fmt.Sprintf("lock %s is held by another process", name))
	}

	return func(ctx context.Context) error {
		defer conn.Close()
		if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock(hashtext($1))", name); err != nil {
			return fmt.Errorf("advisory unlock %s: %w", name, err)
		}
		return nil
	}, nil
}
