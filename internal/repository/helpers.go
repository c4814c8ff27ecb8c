package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/cbhlc-api/pkg/database"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// paging clamps page parameters and returns limit and offset.
func paging(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > maxPageSize {
		size = defaultPageSize
	}
	return size, (page - 1) * size
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint failure,
// optionally for the named constraint or index.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// IsForeignKeyViolation reports whether err is a PostgreSQL foreign key failure.
func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

// inTx runs fn in a transaction and names the failing unit of work.
func inTx(ctx context.Context, db *sqlx.DB, name string, fn func(tx *sqlx.Tx) error) error {
	if err := database.WithTx(ctx, db, fn); err != nil {
		return fmt.Errorf("%s tx: %w", name, err)
	}
	return nil
}

// ErrStaleWrite reports that a row changed between read and write.
var ErrStaleWrite = errors.New("row changed concurrently")
