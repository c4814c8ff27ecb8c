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

const documentColumns = `id, student_id, type, original_name, storage_path, mime_type, size_bytes, checksum, status, rejection_reason, verified_by, verified_at, uploaded_by, created_at, updated_at, deleted_at`

// DocumentRepository persists student documents. Soft deleted rows are hidden.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts document metadata.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	doc.CreatedAt, doc.UpdatedAt = now, now
	const query = `INSERT INTO documents (id, student_id, type, original_name, storage_path, mime_type, size_bytes, checksum, status, uploaded_by, created_at, updated_at) VALUES (:id, :student_id, :type, :original_name, :storage_path, :mime_type, :size_bytes, :checksum, :status, :uploaded_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// FindByID loads a document.
func (r *DocumentRepository) FindByID(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, `SELECT `+documentColumns+` FROM documents WHERE id = $1 AND deleted_at IS NULL`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return &doc, nil
}

// ListByStudent returns a student's documents, newest first.
func (r *DocumentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Document, error) {
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, `SELECT `+documentColumns+` FROM documents WHERE student_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, studentID); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// UpdateReview stores the verification outcome.
func (r *DocumentRepository) UpdateReview(ctx context.Context, doc *models.Document) error {
	doc.UpdatedAt = time.Now().UTC()
	const query = `UPDATE documents SET status = :status, rejection_reason = :rejection_reason, verified_by = :verified_by, verified_at = :verified_at, updated_at = :updated_at WHERE id = :id AND deleted_at IS NULL`
	res, err := r.db.NamedExecContext(ctx, query, doc)
	if err != nil {
		return fmt.Errorf("review document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SoftDelete hides a document.
func (r *DocumentRepository) SoftDelete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE documents SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountPending returns the number of documents awaiting review.
func (r *DocumentRepository) CountPending(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM documents WHERE status = 'pending' AND deleted_at IS NULL`); err != nil {
		return 0, fmt.Errorf("count pending documents: %w", err)
	}
	return total, nil
}
