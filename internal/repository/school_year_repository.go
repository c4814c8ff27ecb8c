package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/cbhlc-api/internal/models"
)

const schoolYearColumns = `id, name, start_date, end_date, is_current, created_at, updated_at`

// SchoolYearRepository handles persistence for school years.
type SchoolYearRepository struct {
	db *sqlx.DB
}

// NewSchoolYearRepository instantiates a school year repository.
func NewSchoolYearRepository(db *sqlx.DB) *SchoolYearRepository {
	return &SchoolYearRepository{db: db}
}

// List returns every school year, latest first.
func (r *SchoolYearRepository) List(ctx context.Context) ([]models.SchoolYear, error) {
	const query = `SELECT ` + schoolYearColumns + ` FROM school_years ORDER BY start_date DESC`
	var years []models.SchoolYear
	if err := r.db.SelectContext(ctx, &years, query); err != nil {
		return nil, fmt.Errorf("list school years: %w", err)
	}
	return years, nil
}

// FindByID loads a school year by identifier.
func (r *SchoolYearRepository) FindByID(ctx context.Context, id string) (*models.SchoolYear, error) {
	const query = `SELECT ` + schoolYearColumns + ` FROM school_years WHERE id = $1`
	var year models.SchoolYear
	if err := r.db.GetContext(ctx, &year, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find school year: %w", err)
	}
	return &year, nil
}

// FindCurrent returns the school year flagged as current.
func (r *SchoolYearRepository) FindCurrent(ctx context.Context) (*models.SchoolYear, error) {
	const query = `SELECT ` + schoolYearColumns + ` FROM school_years WHERE is_current = TRUE LIMIT 1`
	var year models.SchoolYear
	if err := r.db.GetContext(ctx, &year, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find current school year: %w", err)
	}
	return &year, nil
}

// Create inserts a school year. A year created as current replaces the old one.
func (r *SchoolYearRepository) Create(ctx context.Context, year *models.SchoolYear) error {
	if year.ID == "" {
		year.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	year.CreatedAt, year.UpdatedAt = now, now

	return inTx(ctx, r.db, "create school year", func(tx *sqlx.Tx) error {
		if year.IsCurrent {
			if _, err := tx.ExecContext(ctx, `UPDATE school_years SET is_current = FALSE, updated_at = $1 WHERE is_current = TRUE`, now); err != nil {
				return fmt.Errorf("clear current school year: %w", err)
			}
		}
		const query = `INSERT INTO school_years (` + schoolYearColumns + `) VALUES (:id, :name, :start_date, :end_date, :is_current, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, year); err != nil {
			return fmt.Errorf("create school year: %w", err)
		}
		return nil
	})
}

// SetCurrent marks the provided year as current and clears the flag elsewhere.
func (r *SchoolYearRepository) SetCurrent(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return inTx(ctx, r.db, "set current school year", func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE school_years SET is_current = FALSE, updated_at = $1 WHERE is_current = TRUE AND id <> $2`, now, id); err != nil {
			return fmt.Errorf("clear current school year: %w", err)
		}
		res, err := tx.ExecContext(ctx, `UPDATE school_years SET is_current = TRUE, updated_at = $2 WHERE id = $1`, id, now)
		if err != nil {
			return fmt.Errorf("set current school year: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}
