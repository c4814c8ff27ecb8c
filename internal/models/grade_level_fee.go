package models

import (
	"time"

	"github.com/noah-isme/cbhlc-api/pkg/money"
)

// GradeLevelFee is the fee bundle charged for a grade level within an enrollment period.
type GradeLevelFee struct {
	ID                 string       `db:"id" json:"id"`
	GradeLevel         string       `db:"grade_level" json:"grade_level"`
	EnrollmentPeriodID string       `db:"enrollment_period_id" json:"enrollment_period_id"`
	TuitionFee         money.Amount `db:"tuition_fee_cents" json:"tuition_fee"`
	MiscellaneousFee   money.Amount `db:"miscellaneous_fee_cents" json:"miscellaneous_fee"`
	LaboratoryFee      money.Amount `db:"laboratory_fee_cents" json:"laboratory_fee"`
	LibraryFee         money.Amount `db:"library_fee_cents" json:"library_fee"`
	SportsFee          money.Amount `db:"sports_fee_cents" json:"sports_fee"`
	IsActive           bool         `db:"is_active" json:"is_active"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time    `db:"updated_at" json:"updated_at"`
}

// TotalFee sums the five fee components.
func (f *GradeLevelFee) TotalFee() money.Amount {
	return money.Sum(f.TuitionFee, f.MiscellaneousFee, f.LaboratoryFee, f.LibraryFee, f.SportsFee)
}

// GradeLevelFeeView is the JSON shape returned by the API.
type GradeLevelFeeView struct {
	GradeLevelFee
	TotalFee money.Amount `json:"total_fee"`
}

// View attaches the derived total.
func (f GradeLevelFee) View() GradeLevelFeeView {
	return GradeLevelFeeView{GradeLevelFee: f, TotalFee: f.TotalFee()}
}

// GradeLevelFeeFilter defines list filters.
type GradeLevelFeeFilter struct {
	EnrollmentPeriodID string
	GradeLevel         string
	IsActive           *bool
}

// GradeLevels lists the grade levels offered by the school.
var GradeLevels = []string{
	"Nursery", "Kinder",
	"Grade 1", "Grade 2", "Grade 3", "Grade 4", "Grade 5", "Grade 6",
}

// ValidGradeLevel reports whether level is offered.
func ValidGradeLevel(level string) bool {
	for _, g := range GradeLevels {
		if g == level {
			return true
		}
	}
	return false
}
