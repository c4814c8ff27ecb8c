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

const periodColumns = `ep.id, ep.school_year_id, ep.start_date, ep.end_date, ep.early_registration_deadline, ep.regular_registration_deadline, ep.late_registration_deadline, ep.status, ep.allow_new_students, ep.allow_returning_students, ep.description, ep.created_at, ep.updated_at`

const periodSelect = `SELECT ` + periodColumns + `, sy.name AS school_year_name FROM enrollment_periods ep JOIN school_years sy ON sy.id = ep.school_year_id`

// UniqueActivePeriod names the partial index allowing a single active period.
const UniqueActivePeriod = "uq_enrollment_periods_active"

// EnrollmentPeriodRepository persists enrollment periods. Every write that can
// leave a period active closes the other active periods in the same transaction.
type EnrollmentPeriodRepository struct {
	db *sqlx.DB
}

// NewEnrollmentPeriodRepository constructs the repository.
func NewEnrollmentPeriodRepository(db *sqlx.DB) *EnrollmentPeriodRepository {
	return &EnrollmentPeriodRepository{db: db}
}

// List returns periods matching filter, newest first.
func (r *EnrollmentPeriodRepository) List(ctx context.Context, filter models.EnrollmentPeriodFilter) ([]models.EnrollmentPeriodDetail, int, error) {
	where := " WHERE 1=1"
	var args []interface{}
	if filter.SchoolYearID != "" {
		args = append(args, filter.SchoolYearID)
		where += fmt.Sprintf(" AND ep.school_year_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND ep.status = $%d", len(args))
	}
	limit, offset := paging(filter.Page, filter.PageSize)

	query := fmt.Sprintf("%s%s ORDER BY ep.start_date DESC LIMIT %d OFFSET %d", periodSelect, where, limit, offset)
	var periods []models.EnrollmentPeriodDetail
	if err := r.db.SelectContext(ctx, &periods, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollment periods: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM enrollment_periods ep"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollment periods: %w", err)
	}
	return periods, total, nil
}

// ListByStatus returns every period in status ordered by start date, for the sweep.
func (r *EnrollmentPeriodRepository) ListByStatus(ctx context.Context, status models.PeriodStatus) ([]models.EnrollmentPeriodDetail, error) {
	query := periodSelect + ` WHERE ep.status = $1 ORDER BY ep.start_date ASC, ep.created_at ASC`
	var periods []models.EnrollmentPeriodDetail
	if err := r.db.SelectContext(ctx, &periods, query, status); err != nil {
		return nil, fmt.Errorf("list %s periods: %w", status, err)
	}
	return periods, nil
}

// FindByID loads a period with its school year name.
func (r *EnrollmentPeriodRepository) FindByID(ctx context.Context, id string) (*models.EnrollmentPeriodDetail, error) {
	var period models.EnrollmentPeriodDetail
	if err := r.db.GetContext(ctx, &period, periodSelect+` WHERE ep.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment period: %w", err)
	}
	return &period, nil
}

// FindActive returns the single active period.
func (r *EnrollmentPeriodRepository) FindActive(ctx context.Context) (*models.EnrollmentPeriodDetail, error) {
	var period models.EnrollmentPeriodDetail
	if err := r.db.GetContext(ctx, &period, periodSelect+` WHERE ep.status = 'active' LIMIT 1`); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find active enrollment period: %w", err)
	}
	return &period, nil
}

// FindForSchoolYear returns the period used for a school year: the active one
// when present, otherwise the latest starting.
func (r *EnrollmentPeriodRepository) FindForSchoolYear(ctx context.Context, schoolYearID string) (*models.EnrollmentPeriodDetail, error) {
	query := periodSelect + ` WHERE ep.school_year_id = $1 ORDER BY (ep.status = 'active') DESC, ep.start_date DESC LIMIT 1`
	var period models.EnrollmentPeriodDetail
	if err := r.db.GetContext(ctx, &period, query, schoolYearID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find period for school year: %w", err)
	}
	return &period, nil
}

// Create inserts a period.
func (r *EnrollmentPeriodRepository) Create(ctx context.Context, period *models.EnrollmentPeriod) error {
	if period.ID == "" {
		period.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	period.CreatedAt, period.UpdatedAt = now, now

	return inTx(ctx, r.db, "create enrollment period", func(tx *sqlx.Tx) error {
		if period.Status == models.PeriodStatusActive {
			if err := closeOtherActive(ctx, tx, period.ID, now); err != nil {
				return err
			}
		}
		const query = `INSERT INTO enrollment_periods (id, school_year_id, start_date, end_date, early_registration_deadline, regular_registration_deadline, late_registration_deadline, status, allow_new_students, allow_returning_students, description, created_at, updated_at) VALUES (:id, :school_year_id, :start_date, :end_date, :early_registration_deadline, :regular_registration_deadline, :late_registration_deadline, :status, :allow_new_students, :allow_returning_students, :description, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, period); err != nil {
			return fmt.Errorf("create enrollment period: %w", err)
		}
		return nil
	})
}

// Update saves every mutable column.
func (r *EnrollmentPeriodRepository) Update(ctx context.Context, period *models.EnrollmentPeriod) error {
	now := time.Now().UTC()
	period.UpdatedAt = now

	return inTx(ctx, r.db, "update enrollment period", func(tx *sqlx.Tx) error {
		if period.Status == models.PeriodStatusActive {
			if err := closeOtherActive(ctx, tx, period.ID, now); err != nil {
				return err
			}
		}
		const query = `UPDATE enrollment_periods SET school_year_id = :school_year_id, start_date = :start_date, end_date = :end_date, early_registration_deadline = :early_registration_deadline, regular_registration_deadline = :regular_registration_deadline, late_registration_deadline = :late_registration_deadline, status = :status, allow_new_students = :allow_new_students, allow_returning_students = :allow_returning_students, description = :description, updated_at = :updated_at WHERE id = :id`
		res, err := tx.NamedExecContext(ctx, query, period)
		if err != nil {
			return fmt.Errorf("update enrollment period: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// Activate marks the period active and closes every other active period.
// It returns the ids of the periods it closed.
func (r *EnrollmentPeriodRepository) Activate(ctx context.Context, id string) ([]string, error) {
	now := time.Now().UTC()
	var closed []string
	err := inTx(ctx, r.db, "activate enrollment period", func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, &closed, `UPDATE enrollment_periods SET status = 'closed', updated_at = $1 WHERE status = 'active' AND id <> $2 RETURNING id`, now, id); err != nil {
			return fmt.Errorf("close other active periods: %w", err)
		}
		res, err := tx.ExecContext(ctx, `UPDATE enrollment_periods SET status = 'active', updated_at = $2 WHERE id = $1`, id, now)
		if err != nil {
			return fmt.Errorf("activate enrollment period: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

// Close marks the period closed.
func (r *EnrollmentPeriodRepository) Close(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE enrollment_periods SET status = 'closed', updated_at = $2 WHERE id = $1`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("close enrollment period: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a period that is not active. Referenced periods fail with a
// foreign key violation.
func (r *EnrollmentPeriodRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM enrollment_periods WHERE id = $1 AND status <> 'active'`, id)
	if err != nil {
		return fmt.Errorf("delete enrollment period: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func closeOtherActive(ctx context.Context, tx *sqlx.Tx, id string, now time.Time) error {
	if _, err := tx.ExecContext(ctx, `UPDATE enrollment_periods SET status = 'closed', updated_at = $1 WHERE status = 'active' AND id <> $2`, now, id); err != nil {
		return fmt.Errorf("close other active periods: %w", err)
	}
	return nil
}
