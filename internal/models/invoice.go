package models

import (
	"time"

	"github.com/noah-isme/cbhlc-api/pkg/money"
)

// InvoiceStatus mirrors the payment status of the billed enrollment.
type InvoiceStatus string

const (
	InvoiceStatusUnpaid    InvoiceStatus = "unpaid"
	InvoiceStatusPartial   InvoiceStatus = "partial"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// InvoiceStatusFor maps an enrollment payment status to the invoice status.
func InvoiceStatusFor(ps PaymentStatus) InvoiceStatus {
	switch ps {
	case PaymentStatusPaid:
		return InvoiceStatusPaid
	case PaymentStatusPartial:
		return InvoiceStatusPartial
	}
	return InvoiceStatusUnpaid
}

// Invoice bills an approved enrollment.
type Invoice struct {
	ID            string        `db:"id" json:"id"`
	EnrollmentID  string        `db:"enrollment_id" json:"enrollment_id"`
	InvoiceNumber string        `db:"invoice_number" json:"invoice_number"`
	Subtotal      money.Amount  `db:"subtotal_cents" json:"subtotal"`
	Discount      money.Amount  `db:"discount_cents" json:"discount"`
	Total         money.Amount  `db:"total_cents" json:"total"`
	AmountPaid    money.Amount  `db:"amount_paid_cents" json:"amount_paid"`
	Status        InvoiceStatus `db:"status" json:"status"`
	IssuedAt      time.Time     `db:"issued_at" json:"issued_at"`
	DueDate       time.Time     `db:"due_date" json:"due_date"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
	Items         []InvoiceItem `db:"-" json:"items"`
}

// Balance is what remains to be paid on the invoice.
func (i *Invoice) Balance() money.Amount {
	return i.Total - i.AmountPaid
}

// InvoiceItem is one fee line of an invoice.
type InvoiceItem struct {
	ID          string       `db:"id" json:"id"`
	InvoiceID   string       `db:"invoice_id" json:"invoice_id"`
	Description string       `db:"description" json:"description"`
	Amount      money.Amount `db:"amount_cents" json:"amount"`
	Position    int          `db:"position" json:"position"`
}

// InvoiceItemsFor lists the non-zero fee components of an enrollment.
func InvoiceItemsFor(e *Enrollment) []InvoiceItem {
	lines := []InvoiceItem{
		{Description: "Tuition Fee", Amount: e.TuitionFee},
		{Description: "Miscellaneous Fee", Amount: e.MiscellaneousFee},
		{Description: "Laboratory Fee", Amount: e.LaboratoryFee},
		{Description: "Library Fee", Amount: e.LibraryFee},
		{Description: "Sports Fee", Amount: e.SportsFee},
	}
	items := make([]InvoiceItem, 0, len(lines))
	for _, line := range lines {
		if line.Amount == 0 {
			continue
		}
		line.Position = len(items) + 1
		items = append(items, line)
	}
	return items
}

// InvoiceDetail enriches an invoice with enrollment context for rendering.
type InvoiceDetail struct {
	Invoice
	StudentName    string `db:"student_name" json:"student_name"`
	GuardianName   string `db:"guardian_name" json:"guardian_name"`
	GradeLevel     string `db:"grade_level" json:"grade_level"`
	SchoolYearName string `db:"school_year_name" json:"school_year_name"`
}
