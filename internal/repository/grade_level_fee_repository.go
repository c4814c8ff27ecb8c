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

const feeColumns = `f.id, f.grade_level, f.enrollment_period_id, f.tuition_fee_cents, f.miscellaneous_fee_cents, f.laboratory_fee_cents, f.library_fee_cents, f.sports_fee_cents, f.is_active, f.created_at, f.updated_at`

// GradeLevelFeeRepository persists fee schedules.
type GradeLevelFeeRepository struct {
	db *sqlx.DB
}

// NewGradeLevelFeeRepository constructs the repository.
func NewGradeLevelFeeRepository(db *sqlx.DB) *GradeLevelFeeRepository {
	return &GradeLevelFeeRepository{db: db}
}

// List returns fee rows matching filter ordered by grade level.
func (r *GradeLevelFeeRepository) List(ctx context.Context, filter models.GradeLevelFeeFilter) ([]models.GradeLevelFee, error) {
	query := `SELECT ` + feeColumns + ` FROM grade_level_fees f WHERE 1=1`
	var args []interface{}
	if filter.EnrollmentPeriodID != "" {
		args = append(args, filter.EnrollmentPeriodID)
		query += fmt.Sprintf(" AND f.enrollment_period_id = $%d", len(args))
	}
	if filter.GradeLevel != "" {
		args = append(args, filter.GradeLevel)
		query += fmt.Sprintf(" AND f.grade_level = $%d", len(args))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		query += fmt.Sprintf(" AND f.is_active = $%d", len(args))
	}
	query += " ORDER BY f.grade_level ASC, f.created_at DESC"

	var fees []models.GradeLevelFee
	if err := r.db.SelectContext(ctx, &fees, query, args...); err != nil {
		return nil, fmt.Errorf("list grade level fees: %w", err)
	}
	return fees, nil
}

// FindByID loads a fee row.
func (r *GradeLevelFeeRepository) FindByID(ctx context.Context, id string) (*models.GradeLevelFee, error) {
	var fee models.GradeLevelFee
	if err := r.db.GetContext(ctx, &fee, `SELECT `+feeColumns+` FROM grade_level_fees f WHERE f.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find grade level fee: %w", err)
	}
	return &fee, nil
}

// FindActive returns the active fee for a grade within a period.
func (r *GradeLevelFeeRepository) FindActive(ctx context.Context, gradeLevel, periodID string) (*models.GradeLevelFee, error) {
	const query = `SELECT ` + feeColumns + ` FROM grade_level_fees f WHERE f.grade_level = $1 AND f.enrollment_period_id = $2 AND f.is_active = TRUE LIMIT 1`
	var fee models.GradeLevelFee
	if err := r.db.GetContext(ctx, &fee, query, gradeLevel, periodID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find active grade level fee: %w", err)
	}
	return &fee, nil
}

// Save inserts fee, or updates it when it already has an id. An active row
// deactivates any other active row for the same grade and period.
func (r *GradeLevelFeeRepository) Save(ctx context.Context, fee *models.GradeLevelFee) error {
	now := time.Now().UTC()
	creating := fee.ID == ""
	if creating {
		fee.ID = uuid.NewString()
		fee.CreatedAt = now
	}
	fee.UpdatedAt = now

	return inTx(ctx, r.db, "save grade level fee", func(tx *sqlx.Tx) error {
		if fee.IsActive {
			if _, err := tx.ExecContext(ctx, `UPDATE grade_level_fees SET is_active = FALSE, updated_at = $1 WHERE grade_level = $2 AND enrollment_period_id = $3 AND is_active = TRUE AND id <> $4`, now, fee.GradeLevel, fee.EnrollmentPeriodID, fee.ID); err != nil {
				return fmt.Errorf("deactivate previous fee: %w", err)
			}
		}
		if creating {
			const insert = `INSERT INTO grade_level_fees (id, grade_level, enrollment_period_id, tuition_fee_cents, miscellaneous_fee_cents, laboratory_fee_cents, library_fee_cents, sports_fee_cents, is_active, created_at, updated_at) VALUES (:id, :grade_level, :enrollment_period_id, :tuition_fee_cents, :miscellaneous_fee_cents, :laboratory_fee_cents, :library_fee_cents, :sports_fee_cents, :is_active, :created_at, :updated_at)`
			if _, err := tx.NamedExecContext(ctx, insert, fee); err != nil {
				return fmt.Errorf("create grade level fee: %w", err)
			}
			return nil
		}
		const update = `UPDATE grade_level_fees SET tuition_fee_cents = :tuition_fee_cents, miscellaneous_fee_cents = :miscellaneous_fee_cents, laboratory_fee_cents = :laboratory_fee_cents, library_fee_cents = :library_fee_cents, sports_fee_cents = :sports_fee_cents, is_active = :is_active, updated_at = :updated_at WHERE id = :id`
		res, err := tx.NamedExecContext(ctx, update, fee)
		if err != nil {
			return fmt.Errorf("update grade level fee: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}
