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

const paymentColumns = `id, enrollment_id, invoice_id, amount_cents, method, reference, receipt_number, receipt_path, notes, recorded_by, paid_at, created_at`

// PaymentRepository persists payments.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Record stores the payment and the updated enrollment and invoice in one
// transaction. The enrollment row is locked first so concurrent payments
// against the same enrollment serialize.
func (r *PaymentRepository) Record(ctx context.Context, payment *models.Payment, enrollment *models.Enrollment, invoice *models.Invoice) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	payment.CreatedAt = now
	if payment.PaidAt.IsZero() {
		payment.PaidAt = now
	}

	return inTx(ctx, r.db, "record payment", func(tx *sqlx.Tx) error {
		var locked models.Enrollment
		if err := tx.GetContext(ctx, &locked, `SELECT status, amount_paid_cents FROM enrollments WHERE id = $1 FOR UPDATE`, enrollment.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return err
			}
			return fmt.Errorf("lock enrollment: %w", err)
		}
		if !locked.IsApproved() || locked.AmountPaid+payment.Amount != enrollment.AmountPaid {
			return ErrStaleWrite
		}

		const query = `INSERT INTO payments (id, enrollment_id, invoice_id, amount_cents, method, reference, receipt_number, receipt_path, notes, recorded_by, paid_at, created_at) VALUES (:id, :enrollment_id, :invoice_id, :amount_cents, :method, :reference, :receipt_number, :receipt_path, :notes, :recorded_by, :paid_at, :created_at)`
		if _, err := tx.NamedExecContext(ctx, query, payment); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		if err := updateEnrollment(ctx, tx, enrollment); err != nil {
			return err
		}
		if invoice != nil {
			return updateInvoicePayment(ctx, tx, invoice)
		}
		return nil
	})
}

// SetReceiptPath stores where the receipt PDF was written.
func (r *PaymentRepository) SetReceiptPath(ctx context.Context, id, path string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE payments SET receipt_path = $2 WHERE id = $1`, id, path); err != nil {
		return fmt.Errorf("set receipt path: %w", err)
	}
	return nil
}

// FindByID loads a payment.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find payment: %w", err)
	}
	return &payment, nil
}

// ListByEnrollment returns payments for an enrollment, oldest first.
func (r *PaymentRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, `SELECT `+paymentColumns+` FROM payments WHERE enrollment_id = $1 ORDER BY paid_at ASC`, enrollmentID); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}
