package models

import (
	"time"

	"github.com/noah-isme/cbhlc-api/pkg/money"
)

// PaymentMethod is how a payment was tendered.
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodGCash        PaymentMethod = "gcash"
	PaymentMethodCheck        PaymentMethod = "check"
)

// Valid reports whether m is a known method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodBankTransfer, PaymentMethodGCash, PaymentMethodCheck:
		return true
	}
	return false
}

// Payment records money received against an enrollment.
type Payment struct {
	ID            string        `db:"id" json:"id"`
	EnrollmentID  string        `db:"enrollment_id" json:"enrollment_id"`
	InvoiceID     *string       `db:"invoice_id" json:"invoice_id,omitempty"`
	Amount        money.Amount  `db:"amount_cents" json:"amount"`
	Method        PaymentMethod `db:"method" json:"method"`
	Reference     string        `db:"reference" json:"reference"`
	ReceiptNumber string        `db:"receipt_number" json:"receipt_number"`
	ReceiptPath   *string       `db:"receipt_path" json:"-"`
	Notes         string        `db:"notes" json:"notes"`
	RecordedBy    string        `db:"recorded_by" json:"recorded_by"`
	PaidAt        time.Time     `db:"paid_at" json:"paid_at"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}

// PaymentResult is returned after recording a payment.
type PaymentResult struct {
	Payment    Payment    `json:"payment"`
	Enrollment Enrollment `json:"enrollment"`
	Invoice    *Invoice   `json:"invoice,omitempty"`
}
