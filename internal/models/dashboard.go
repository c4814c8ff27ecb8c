package models

import (
	"time"

	"github.com/noah-isme/cbhlc-api/pkg/money"
)

// DashboardSummary aggregates enrollment and collection figures for staff.
type DashboardSummary struct {
	StatusCounts     map[EnrollmentStatus]int `json:"status_counts"`
	TotalEnrollments int                      `json:"total_enrollments"`
	TotalBilled      money.Amount             `json:"total_billed"`
	TotalCollected   money.Amount             `json:"total_collected"`
	TotalOutstanding money.Amount             `json:"total_outstanding"`
	PendingDocuments int                      `json:"pending_documents"`
	ActivePeriod     *EnrollmentPeriodDetail  `json:"active_period,omitempty"`
	GeneratedAt      time.Time                `json:"generated_at"`
}

// EnrollmentTotals is the aggregate row read from storage.
type EnrollmentTotals struct {
	Billed      money.Amount `db:"billed"`
	Collected   money.Amount `db:"collected"`
	Outstanding money.Amount `db:"outstanding"`
}

// StatusCount is one grouped count row.
type StatusCount struct {
	Status EnrollmentStatus `db:"status"`
	Total  int              `db:"total"`
}
