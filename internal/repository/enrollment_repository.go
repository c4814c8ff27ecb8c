package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/cbhlc-api/internal/models"
)

const enrollmentColumns = `e.id, e.student_id, e.guardian_id, e.school_year_id, e.enrollment_period_id, e.quarter, e.grade_level, e.status, e.type, e.payment_plan, e.tuition_fee_cents, e.miscellaneous_fee_cents, e.laboratory_fee_cents, e.library_fee_cents, e.sports_fee_cents, e.total_amount_cents, e.discount_cents, e.net_amount_cents, e.amount_paid_cents, e.balance_cents, e.payment_status, e.remarks, e.rejection_reason, e.approved_by, e.approved_at, e.submitted_at, e.created_at, e.updated_at`

const enrollmentSelect = `SELECT ` + enrollmentColumns + `,
	TRIM(s.first_name || ' ' || s.last_name) AS student_name,
	TRIM(g.first_name || ' ' || g.last_name) AS guardian_name,
	sy.name AS school_year_name
FROM enrollments e
JOIN students s ON s.id = e.student_id
JOIN guardians g ON g.id = e.guardian_id
JOIN school_years sy ON sy.id = e.school_year_id`

// UniqueStudentYear names the constraint allowing one enrollment per student and school year.
const UniqueStudentYear = "uq_enrollments_student_year"

// EnrollmentRepository persists enrollment applications.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository creates a repository instance.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enrollments matching filter.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	where, args := enrollmentWhere(filter)

	sortBy := map[string]string{
		"submitted_at": "e.submitted_at",
		"student_name": "student_name",
		"grade_level":  "e.grade_level",
		"status":       "e.status",
		"balance":      "e.balance_cents",
	}[filter.SortBy]
	if sortBy == "" {
		sortBy = "e.submitted_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	limit, offset := paging(filter.Page, filter.PageSize)

	query := fmt.Sprintf("%s%s ORDER BY %s %s LIMIT %d OFFSET %d", enrollmentSelect, where, sortBy, order, limit, offset)
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM enrollments e JOIN students s ON s.id = e.student_id" + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// ListAll returns every enrollment matching filter without paging, for exports.
func (r *EnrollmentRepository) ListAll(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error) {
	where, args := enrollmentWhere(filter)
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, enrollmentSelect+where+" ORDER BY e.submitted_at ASC", args...); err != nil {
		return nil, fmt.Errorf("export enrollments: %w", err)
	}
	return enrollments, nil
}

func enrollmentWhere(filter models.EnrollmentFilter) (string, []interface{}) {
	where := " WHERE 1=1"
	var args []interface{}
	add := func(clause string, value interface{}) {
		args = append(args, value)
		where += fmt.Sprintf(clause, len(args))
	}
	if filter.StudentID != "" {
		add(" AND e.student_id = $%d", filter.StudentID)
	}
	if filter.GuardianID != "" {
		add(" AND e.guardian_id = $%d", filter.GuardianID)
	}
	if filter.SchoolYearID != "" {
		add(" AND e.school_year_id = $%d", filter.SchoolYearID)
	}
	if filter.GradeLevel != "" {
		add(" AND e.grade_level = $%d", filter.GradeLevel)
	}
	if filter.Status != "" {
		add(" AND e.status = $%d", filter.Status)
	}
	if filter.PaymentStatus != "" {
		add(" AND e.payment_status = $%d", filter.PaymentStatus)
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		where += fmt.Sprintf(" AND (LOWER(s.first_name) LIKE $%d OR LOWER(s.last_name) LIKE $%d)", len(args), len(args))
	}
	return where, args
}

// FindByID returns an enrollment with names attached.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	var enrollment models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &enrollment, enrollmentSelect+` WHERE e.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

// ExistsForStudentYear checks the one-enrollment-per-school-year rule.
func (r *EnrollmentRepository) ExistsForStudentYear(ctx context.Context, studentID, schoolYearID string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM enrollments WHERE student_id = $1 AND school_year_id = $2)`, studentID, schoolYearID); err != nil {
		return false, fmt.Errorf("check enrollment for school year: %w", err)
	}
	return exists, nil
}

// HasOpenForStudent reports whether the student has an enrollment that is
// neither completed nor rejected.
func (r *EnrollmentRepository) HasOpenForStudent(ctx context.Context, studentID string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM enrollments WHERE student_id = $1 AND status NOT IN ('completed', 'rejected'))`, studentID); err != nil {
		return false, fmt.Errorf("check open enrollment: %w", err)
	}
	return exists, nil
}

// Create inserts a new enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	enrollment.CreatedAt, enrollment.UpdatedAt = now, now
	if enrollment.SubmittedAt.IsZero() {
		enrollment.SubmittedAt = now
	}

	const query = `INSERT INTO enrollments (id, student_id, guardian_id, school_year_id, enrollment_period_id, quarter, grade_level, status, type, payment_plan, tuition_fee_cents, miscellaneous_fee_cents, laboratory_fee_cents, library_fee_cents, sports_fee_cents, total_amount_cents, discount_cents, net_amount_cents, amount_paid_cents, balance_cents, payment_status, remarks, submitted_at, created_at, updated_at) VALUES (:id, :student_id, :guardian_id, :school_year_id, :enrollment_period_id, :quarter, :grade_level, :status, :type, :payment_plan, :tuition_fee_cents, :miscellaneous_fee_cents, :laboratory_fee_cents, :library_fee_cents, :sports_fee_cents, :total_amount_cents, :discount_cents, :net_amount_cents, :amount_paid_cents, :balance_cents, :payment_status, :remarks, :submitted_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// UpdateStatus moves an enrollment out of status from. Payment columns are
// left alone; they belong to PaymentRepository.Record. A row that is no
// longer in status from yields ErrStaleWrite.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, enrollment *models.Enrollment, from models.EnrollmentStatus) error {
	enrollment.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `UPDATE enrollments SET status = $3, remarks = $4, rejection_reason = $5, updated_at = $6 WHERE id = $1 AND status = $2`,
		enrollment.ID, from, enrollment.Status, enrollment.Remarks, enrollment.RejectionReason, enrollment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return checkTransition(ctx, r.db, res, enrollment.ID)
}

// Approve saves the decision and discount of an enrollment still in status
// from and issues its invoice atomically.
func (r *EnrollmentRepository) Approve(ctx context.Context, enrollment *models.Enrollment, from models.EnrollmentStatus, invoice *models.Invoice) error {
	enrollment.UpdatedAt = time.Now().UTC()
	return inTx(ctx, r.db, "approve enrollment", func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE enrollments SET status = $3, discount_cents = $4, net_amount_cents = $5, balance_cents = $5 - amount_paid_cents, remarks = $6, approved_by = $7, approved_at = $8, updated_at = $9 WHERE id = $1 AND status = $2`,
			enrollment.ID, from, enrollment.Status, enrollment.Discount, enrollment.Net, enrollment.Remarks, enrollment.ApprovedBy, enrollment.ApprovedAt, enrollment.UpdatedAt)
		if err != nil {
			return fmt.Errorf("approve enrollment: %w", err)
		}
		if err := checkTransition(ctx, tx, res, enrollment.ID); err != nil {
			return err
		}
		if invoice == nil {
			return nil
		}
		return insertInvoice(ctx, tx, invoice)
	})
}

// checkTransition tells a missing row apart from one whose status moved on.
func checkTransition(ctx context.Context, db sqlx.QueryerContext, res sql.Result, id string) error {
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var exists bool
	if err := sqlx.GetContext(ctx, db, &exists, `SELECT EXISTS (SELECT 1 FROM enrollments WHERE id = $1)`, id); err != nil {
		return fmt.Errorf("check enrollment: %w", err)
	}
	if !exists {
		return sql.ErrNoRows
	}
	return ErrStaleWrite
}

func updateEnrollment(ctx context.Context, db sqlx.ExtContext, enrollment *models.Enrollment) error {
	enrollment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE enrollments SET status = :status, amount_paid_cents = :amount_paid_cents, balance_cents = :balance_cents, payment_status = :payment_status, updated_at = :updated_at WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, db, query, enrollment)
	if err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// StatusCounts groups enrollments by status, optionally within a school year.
func (r *EnrollmentRepository) StatusCounts(ctx context.Context, schoolYearID string) ([]models.StatusCount, error) {
	query := `SELECT status, COUNT(*) AS total FROM enrollments`
	var args []interface{}
	if schoolYearID != "" {
		query += ` WHERE school_year_id = $1`
		args = append(args, schoolYearID)
	}
	query += ` GROUP BY status`
	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("count enrollments by status: %w", err)
	}
	return counts, nil
}

// Totals sums billed, collected and outstanding amounts over approved enrollments.
func (r *EnrollmentRepository) Totals(ctx context.Context, schoolYearID string) (*models.EnrollmentTotals, error) {
	query := `SELECT COALESCE(SUM(net_amount_cents), 0) AS billed, COALESCE(SUM(amount_paid_cents), 0) AS collected, COALESCE(SUM(GREATEST(balance_cents, 0)), 0) AS outstanding FROM enrollments WHERE status NOT IN ('pending', 'rejected')`
	var args []interface{}
	if schoolYearID != "" {
		query += ` AND school_year_id = $1`
		args = append(args, schoolYearID)
	}
	var totals models.EnrollmentTotals
	if err := r.db.GetContext(ctx, &totals, query, args...); err != nil {
		return nil, fmt.Errorf("sum enrollment totals: %w", err)
	}
	return &totals, nil
}
