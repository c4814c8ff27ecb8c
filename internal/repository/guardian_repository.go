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

const guardianColumns = `id, user_id, first_name, last_name, relationship, phone, email, address, occupation, created_at, updated_at, deleted_at`

// GuardianRepository persists guardian profiles. Soft deleted rows are hidden.
type GuardianRepository struct {
	db *sqlx.DB
}

// NewGuardianRepository constructs the repository.
func NewGuardianRepository(db *sqlx.DB) *GuardianRepository {
	return &GuardianRepository{db: db}
}

// FindByID loads a guardian.
func (r *GuardianRepository) FindByID(ctx context.Context, id string) (*models.Guardian, error) {
	return r.findOne(ctx, `SELECT `+guardianColumns+` FROM guardians WHERE id = $1 AND deleted_at IS NULL`, id)
}

// FindByUserID loads the guardian profile bound to a user.
func (r *GuardianRepository) FindByUserID(ctx context.Context, userID string) (*models.Guardian, error) {
	return r.findOne(ctx, `SELECT `+guardianColumns+` FROM guardians WHERE user_id = $1 AND deleted_at IS NULL LIMIT 1`, userID)
}

func (r *GuardianRepository) findOne(ctx context.Context, query string, arg string) (*models.Guardian, error) {
	var guardian models.Guardian
	if err := r.db.GetContext(ctx, &guardian, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find guardian: %w", err)
	}
	return &guardian, nil
}

// Create inserts a guardian.
func (r *GuardianRepository) Create(ctx context.Context, guardian *models.Guardian) error {
	if guardian.ID == "" {
		guardian.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	guardian.CreatedAt, guardian.UpdatedAt = now, now
	const query = `INSERT INTO guardians (id, user_id, first_name, last_name, relationship, phone, email, address, occupation, created_at, updated_at) VALUES (:id, :user_id, :first_name, :last_name, :relationship, :phone, :email, :address, :occupation, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, guardian); err != nil {
		return fmt.Errorf("create guardian: %w", err)
	}
	return nil
}

// Update saves the profile fields.
func (r *GuardianRepository) Update(ctx context.Context, guardian *models.Guardian) error {
	guardian.UpdatedAt = time.Now().UTC()
	const query = `UPDATE guardians SET first_name = :first_name, last_name = :last_name, relationship = :relationship, phone = :phone, email = :email, address = :address, occupation = :occupation, updated_at = :updated_at WHERE id = :id AND deleted_at IS NULL`
	res, err := r.db.NamedExecContext(ctx, query, guardian)
	if err != nil {
		return fmt.Errorf("update guardian: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SoftDelete hides a guardian.
func (r *GuardianRepository) SoftDelete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE guardians SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("delete guardian: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
