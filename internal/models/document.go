package models

import "time"

// DocumentType enumerates the supporting documents accepted for enrollment.
type DocumentType string

const (
	DocumentTypeBirthCertificate DocumentType = "birth_certificate"
	DocumentTypeReportCard       DocumentType = "report_card"
	DocumentTypeGoodMoral        DocumentType = "good_moral"
	DocumentTypeTransferCredit   DocumentType = "transfer_credential"
	DocumentTypePhoto            DocumentType = "photo"
	DocumentTypeOther            DocumentType = "other"
)

// Valid reports whether t is a known document type.
func (t DocumentType) Valid() bool {
	switch t {
	case DocumentTypeBirthCertificate, DocumentTypeReportCard, DocumentTypeGoodMoral,
		DocumentTypeTransferCredit, DocumentTypePhoto, DocumentTypeOther:
		return true
	}
	return false
}

// VerificationStatus tracks the registrar's review of a document.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

// Document is an uploaded file attached to a student.
type Document struct {
	ID              string             `db:"id" json:"id"`
	StudentID       string             `db:"student_id" json:"student_id"`
	Type            DocumentType       `db:"type" json:"type"`
	OriginalName    string             `db:"original_name" json:"original_name"`
	StoragePath     string             `db:"storage_path" json:"-"`
	MimeType        string             `db:"mime_type" json:"mime_type"`
	SizeBytes       int64              `db:"size_bytes" json:"size_bytes"`
	Checksum        string             `db:"checksum" json:"checksum"`
	Status          VerificationStatus `db:"status" json:"status"`
	RejectionReason *string            `db:"rejection_reason" json:"rejection_reason,omitempty"`
	VerifiedBy      *string            `db:"verified_by" json:"verified_by,omitempty"`
	VerifiedAt      *time.Time         `db:"verified_at" json:"verified_at,omitempty"`
	UploadedBy      string             `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt       time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `db:"updated_at" json:"updated_at"`
	DeletedAt       *time.Time         `db:"deleted_at" json:"-"`
}

// DocumentDownload is a short lived signed link to a document.
type DocumentDownload struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
