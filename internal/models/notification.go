package models

import "time"

// NotificationType categorises in-app notifications.
type NotificationType string

const (
	NotificationEnrollmentSubmitted NotificationType = "enrollment_submitted"
	NotificationEnrollmentApproved  NotificationType = "enrollment_approved"
	NotificationEnrollmentRejected  NotificationType = "enrollment_rejected"
	NotificationDocumentUploaded    NotificationType = "document_uploaded"
	NotificationDocumentReviewed    NotificationType = "document_reviewed"
	NotificationPaymentReceived     NotificationType = "payment_received"
	NotificationPeriodStatusChanged NotificationType = "period_status_changed"
)

// Notification is an in-app message for a user.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	Type      NotificationType `db:"type" json:"type"`
	Title     string           `db:"title" json:"title"`
	Message   string           `db:"message" json:"message"`
	Data      JSONB            `db:"data" json:"data,omitempty"`
	ReadAt    *time.Time       `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// NotificationFilter defines list filters.
type NotificationFilter struct {
	UserID     string
	UnreadOnly bool
	Page       int
	PageSize   int
}
