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

const studentColumns = `id, guardian_id, student_number, first_name, middle_name, last_name, gender, birth_date, birth_place, address, grade_level, previous_school, medical_notes, created_at, updated_at, deleted_at`

// StudentRepository handles persistence for students. Soft deleted rows are hidden.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository instantiates a student repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching filter.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	base := "FROM students WHERE deleted_at IS NULL"
	var args []interface{}
	if filter.GuardianID != "" {
		args = append(args, filter.GuardianID)
		base += fmt.Sprintf(" AND guardian_id = $%d", len(args))
	}
	if filter.GradeLevel != "" {
		args = append(args, filter.GradeLevel)
		base += fmt.Sprintf(" AND grade_level = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		base += fmt.Sprintf(" AND (LOWER(first_name) LIKE $%d OR LOWER(last_name) LIKE $%d)", len(args), len(args))
	}
	limit, offset := paging(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s %s ORDER BY last_name ASC, first_name ASC LIMIT %d OFFSET %d", studentColumns, base, limit, offset)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID returns a student by id.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	if err := r.db.GetContext(ctx, &student, `SELECT `+studentColumns+` FROM students WHERE id = $1 AND deleted_at IS NULL`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &student, nil
}

// Create inserts a student.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	student.CreatedAt, student.UpdatedAt = now, now
	const query = `INSERT INTO students (id, guardian_id, student_number, first_name, middle_name, last_name, gender, birth_date, birth_place, address, grade_level, previous_school, medical_notes, created_at, updated_at) VALUES (:id, :guardian_id, :student_number, :first_name, :middle_name, :last_name, :gender, :birth_date, :birth_place, :address, :grade_level, :previous_school, :medical_notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies an existing student.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET student_number = :student_number, first_name = :first_name, middle_name = :middle_name, last_name = :last_name, gender = :gender, birth_date = :birth_date, birth_place = :birth_place, address = :address, grade_level = :grade_level, previous_school = :previous_school, medical_notes = :medical_notes, updated_at = :updated_at WHERE id = :id AND deleted_at IS NULL`
	res, err := r.db.NamedExecContext(ctx, query, student)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SoftDelete hides a student.
func (r *StudentRepository) SoftDelete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE students SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
