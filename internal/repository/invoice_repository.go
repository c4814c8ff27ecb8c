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

const invoiceSelect = `SELECT i.id, i.enrollment_id, i.invoice_number, i.subtotal_cents, i.discount_cents, i.total_cents, i.amount_paid_cents, i.status, i.issued_at, i.due_date, i.created_at, i.updated_at,
	TRIM(s.first_name || ' ' || s.last_name) AS student_name,
	TRIM(g.first_name || ' ' || g.last_name) AS guardian_name,
	e.grade_level,
	sy.name AS school_year_name
FROM invoices i
JOIN enrollments e ON e.id = i.enrollment_id
JOIN students s ON s.id = e.student_id
JOIN guardians g ON g.id = e.guardian_id
JOIN school_years sy ON sy.id = e.school_year_id`

// InvoiceRepository reads invoices. Writes happen inside enrollment approval
// and payment transactions.
type InvoiceRepository struct {
	db *sqlx.DB
}

// NewInvoiceRepository constructs the repository.
func NewInvoiceRepository(db *sqlx.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// FindByID loads an invoice with its items.
func (r *InvoiceRepository) FindByID(ctx context.Context, id string) (*models.InvoiceDetail, error) {
	return r.findOne(ctx, invoiceSelect+` WHERE i.id = $1`, id)
}

// FindByEnrollment loads the invoice issued for an enrollment.
func (r *InvoiceRepository) FindByEnrollment(ctx context.Context, enrollmentID string) (*models.InvoiceDetail, error) {
	return r.findOne(ctx, invoiceSelect+` WHERE i.enrollment_id = $1`, enrollmentID)
}

func (r *InvoiceRepository) findOne(ctx context.Context, query, arg string) (*models.InvoiceDetail, error) {
	var invoice models.InvoiceDetail
	if err := r.db.GetContext(ctx, &invoice, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find invoice: %w", err)
	}
	if err := r.db.SelectContext(ctx, &invoice.Items, `SELECT id, invoice_id, description, amount_cents, position FROM invoice_items WHERE invoice_id = $1 ORDER BY position`, invoice.ID); err != nil {
		return nil, fmt.Errorf("list invoice items: %w", err)
	}
	return &invoice, nil
}

func insertInvoice(ctx context.Context, tx *sqlx.Tx, invoice *models.Invoice) error {
	if invoice.ID == "" {
		invoice.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	invoice.CreatedAt, invoice.UpdatedAt = now, now
	if invoice.IssuedAt.IsZero() {
		invoice.IssuedAt = now
	}

	const query = `INSERT INTO invoices (id, enrollment_id, invoice_number, subtotal_cents, discount_cents, total_cents, amount_paid_cents, status, issued_at, due_date, created_at, updated_at) VALUES (:id, :enrollment_id, :invoice_number, :subtotal_cents, :discount_cents, :total_cents, :amount_paid_cents, :status, :issued_at, :due_date, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, invoice); err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	for i := range invoice.Items {
		item := &invoice.Items[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.InvoiceID = invoice.ID
		const itemQuery = `INSERT INTO invoice_items (id, invoice_id, description, amount_cents, position) VALUES (:id, :invoice_id, :description, :amount_cents, :position)`
		if _, err := tx.NamedExecContext(ctx, itemQuery, item); err != nil {
			return fmt.Errorf("create invoice item: %w", err)
		}
	}
	return nil
}

func updateInvoicePayment(ctx context.Context, tx *sqlx.Tx, invoice *models.Invoice) error {
	invoice.UpdatedAt = time.Now().UTC()
	const query = `UPDATE invoices SET amount_paid_cents = :amount_paid_cents, status = :status, updated_at = :updated_at WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, query, invoice); err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	return nil
}
