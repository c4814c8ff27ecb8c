package models

import (
	"time"

	"github.com/noah-isme/cbhlc-api/pkg/money"
)

// EnrollmentStatus represents the lifecycle of an enrollment application.
type EnrollmentStatus string

const (
	EnrollmentStatusPending         EnrollmentStatus = "pending"
	EnrollmentStatusApproved        EnrollmentStatus = "approved"
	EnrollmentStatusRejected        EnrollmentStatus = "rejected"
	EnrollmentStatusReadyForPayment EnrollmentStatus = "ready_for_payment"
	EnrollmentStatusEnrolled        EnrollmentStatus = "enrolled"
	EnrollmentStatusPaid            EnrollmentStatus = "paid"
	EnrollmentStatusCompleted       EnrollmentStatus = "completed"
)

var enrollmentTransitions = map[EnrollmentStatus][]EnrollmentStatus{
	EnrollmentStatusPending:         {EnrollmentStatusApproved, EnrollmentStatusRejected},
	EnrollmentStatusApproved:        {EnrollmentStatusReadyForPayment, EnrollmentStatusEnrolled, EnrollmentStatusPaid, EnrollmentStatusRejected},
	EnrollmentStatusReadyForPayment: {EnrollmentStatusEnrolled, EnrollmentStatusPaid},
	EnrollmentStatusEnrolled:        {EnrollmentStatusPaid},
	EnrollmentStatusPaid:            {EnrollmentStatusCompleted},
}

// Valid reports whether s is a known status.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusPending, EnrollmentStatusApproved, EnrollmentStatusRejected,
		EnrollmentStatusReadyForPayment, EnrollmentStatusEnrolled, EnrollmentStatusPaid,
		EnrollmentStatusCompleted:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s EnrollmentStatus) IsTerminal() bool {
	return s == EnrollmentStatusCompleted || s == EnrollmentStatusRejected
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s EnrollmentStatus) CanTransitionTo(next EnrollmentStatus) bool {
	for _, allowed := range enrollmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// EnrollmentType distinguishes first-time applicants from returning students.
type EnrollmentType string

const (
	EnrollmentTypeNew        EnrollmentType = "new"
	EnrollmentTypeContinuing EnrollmentType = "continuing"
)

// Valid reports whether t is a known type.
func (t EnrollmentType) Valid() bool {
	return t == EnrollmentTypeNew || t == EnrollmentTypeContinuing
}

// PaymentPlan is how the guardian intends to settle the balance.
type PaymentPlan string

const (
	PaymentPlanAnnual    PaymentPlan = "annual"
	PaymentPlanSemestral PaymentPlan = "semestral"
	PaymentPlanQuarterly PaymentPlan = "quarterly"
	PaymentPlanMonthly   PaymentPlan = "monthly"
)

// Valid reports whether p is a known plan.
func (p PaymentPlan) Valid() bool {
	switch p {
	case PaymentPlanAnnual, PaymentPlanSemestral, PaymentPlanQuarterly, PaymentPlanMonthly:
		return true
	}
	return false
}

// PaymentStatus is derived from amount paid against the net amount.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPartial PaymentStatus = "partial"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// Quarter of the school year the enrollment starts in.
type Quarter string

const (
	QuarterFirst  Quarter = "Q1"
	QuarterSecond Quarter = "Q2"
	QuarterThird  Quarter = "Q3"
	QuarterFourth Quarter = "Q4"
)

// Enrollment is one student's admission record for one school year.
type Enrollment struct {
	ID                 string           `db:"id" json:"id"`
	StudentID          string           `db:"student_id" json:"student_id"`
	GuardianID         string           `db:"guardian_id" json:"guardian_id"`
	SchoolYearID       string           `db:"school_year_id" json:"school_year_id"`
	EnrollmentPeriodID *string          `db:"enrollment_period_id" json:"enrollment_period_id,omitempty"`
	Quarter            Quarter          `db:"quarter" json:"quarter"`
	GradeLevel         string           `db:"grade_level" json:"grade_level"`
	Status             EnrollmentStatus `db:"status" json:"status"`
	Type               EnrollmentType   `db:"type" json:"type"`
	PaymentPlan        PaymentPlan      `db:"payment_plan" json:"payment_plan"`
	TuitionFee         money.Amount     `db:"tuition_fee_cents" json:"tuition_fee"`
	MiscellaneousFee   money.Amount     `db:"miscellaneous_fee_cents" json:"miscellaneous_fee"`
	LaboratoryFee      money.Amount     `db:"laboratory_fee_cents" json:"laboratory_fee"`
	LibraryFee         money.Amount     `db:"library_fee_cents" json:"library_fee"`
	SportsFee          money.Amount     `db:"sports_fee_cents" json:"sports_fee"`
	Total              money.Amount     `db:"total_amount_cents" json:"total_amount"`
	Discount           money.Amount     `db:"discount_cents" json:"discount"`
	Net                money.Amount     `db:"net_amount_cents" json:"net_amount"`
	AmountPaid         money.Amount     `db:"amount_paid_cents" json:"amount_paid"`
	BalanceDue         money.Amount     `db:"balance_cents" json:"balance"`
	PaymentStatus      PaymentStatus    `db:"payment_status" json:"payment_status"`
	Remarks            string           `db:"remarks" json:"remarks"`
	RejectionReason    *string          `db:"rejection_reason" json:"rejection_reason,omitempty"`
	ApprovedBy         *string          `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt         *time.Time       `db:"approved_at" json:"approved_at,omitempty"`
	SubmittedAt        time.Time        `db:"submitted_at" json:"submitted_at"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
}

// ApplyFees copies the fee components of a grade level fee and recomputes totals.
func (e *Enrollment) ApplyFees(fee *GradeLevelFee) {
	e.TuitionFee = fee.TuitionFee
	e.MiscellaneousFee = fee.MiscellaneousFee
	e.LaboratoryFee = fee.LaboratoryFee
	e.LibraryFee = fee.LibraryFee
	e.SportsFee = fee.SportsFee
	e.Recalculate()
}

// TotalAmount sums the five fee components.
func (e *Enrollment) TotalAmount() money.Amount {
	return money.Sum(e.TuitionFee, e.MiscellaneousFee, e.LaboratoryFee, e.LibraryFee, e.SportsFee)
}

// NetAmount is the total less the discount. It may be negative.
func (e *Enrollment) NetAmount() money.Amount {
	return e.TotalAmount() - e.Discount
}

// Balance is the net amount less payments. A negative value is a credit.
func (e *Enrollment) Balance() money.Amount {
	return e.NetAmount() - e.AmountPaid
}

// IsFullyPaid holds when the payment status is paid or nothing is owed.
func (e *Enrollment) IsFullyPaid() bool {
	return e.PaymentStatus == PaymentStatusPaid || e.Balance() <= 0
}

// IsApproved holds for approved applications and every state downstream of approval.
func (e *Enrollment) IsApproved() bool {
	switch e.Status {
	case EnrollmentStatusApproved, EnrollmentStatusReadyForPayment, EnrollmentStatusEnrolled,
		EnrollmentStatusPaid, EnrollmentStatusCompleted:
		return true
	}
	return false
}

// Recalculate refreshes the stored totals and derives the payment status.
func (e *Enrollment) Recalculate() {
	e.Total = e.TotalAmount()
	e.Net = e.NetAmount()
	e.BalanceDue = e.Balance()
	switch {
	case e.BalanceDue <= 0:
		e.PaymentStatus = PaymentStatusPaid
	case e.AmountPaid > 0:
		e.PaymentStatus = PaymentStatusPartial
	default:
		e.PaymentStatus = PaymentStatusPending
	}
}

// ApplyPayment adds a payment, recomputes totals and advances the status:
// the first payment enrolls the student, settling the balance marks it paid.
func (e *Enrollment) ApplyPayment(amount money.Amount) {
	e.AmountPaid += amount
	e.Recalculate()
	switch {
	case e.IsFullyPaid() && e.Status.CanTransitionTo(EnrollmentStatusPaid):
		e.Status = EnrollmentStatusPaid
	case e.Status.CanTransitionTo(EnrollmentStatusEnrolled):
		e.Status = EnrollmentStatusEnrolled
	}
}

// EnrollmentDetail enriches Enrollment with student and school year names.
type EnrollmentDetail struct {
	Enrollment
	StudentName    string `db:"student_name" json:"student_name"`
	GuardianName   string `db:"guardian_name" json:"guardian_name"`
	SchoolYearName string `db:"school_year_name" json:"school_year_name"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID     string
	GuardianID    string
	SchoolYearID  string
	GradeLevel    string
	Status        EnrollmentStatus
	PaymentStatus PaymentStatus
	Search        string
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}
