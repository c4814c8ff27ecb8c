package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin               = "LOGIN"
	AuditActionPeriodCreate        = "PERIOD_CREATE"
	AuditActionPeriodUpdate        = "PERIOD_UPDATE"
	AuditActionPeriodActivate      = "PERIOD_ACTIVATE"
	AuditActionPeriodClose         = "PERIOD_CLOSE"
	AuditActionPeriodDelete        = "PERIOD_DELETE"
	AuditActionPeriodAutoActivated = "PERIOD_AUTO_ACTIVATED"
	AuditActionPeriodAutoClosed    = "PERIOD_AUTO_CLOSED"
	AuditActionEnrollmentSubmit    = "ENROLLMENT_SUBMIT"
	AuditActionEnrollmentApprove   = "ENROLLMENT_APPROVE"
	AuditActionEnrollmentReject    = "ENROLLMENT_REJECT"
	AuditActionEnrollmentStatus    = "ENROLLMENT_STATUS"
	AuditActionPaymentRecord       = "PAYMENT_RECORD"
	AuditActionDocumentVerify      = "DOCUMENT_VERIFY"
	AuditActionDocumentDelete      = "DOCUMENT_DELETE"
	AuditActionFeeUpsert           = "FEE_UPSERT"
	AuditActionEnrollmentExport    = "ENROLLMENT_EXPORT"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  JSONB     `db:"old_values" json:"old_values,omitempty"`
	NewValues  JSONB     `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// AuditLogFilter defines list filters.
type AuditLogFilter struct {
	Resource   string
	ResourceID string
	Action     string
	Page       int
	PageSize   int
}
