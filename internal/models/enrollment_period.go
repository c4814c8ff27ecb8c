package models

import (
	"math"
	"time"

	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
)

// PeriodStatus is the lifecycle state of an enrollment period.
type PeriodStatus string

const (
	PeriodStatusUpcoming PeriodStatus = "upcoming"
	PeriodStatusActive   PeriodStatus = "active"
	PeriodStatusClosed   PeriodStatus = "closed"
)

// Valid reports whether the status is a known period status.
func (s PeriodStatus) Valid() bool {
	switch s {
	case PeriodStatusUpcoming, PeriodStatusActive, PeriodStatusClosed:
		return true
	}
	return false
}

// Validation messages for period dates.
const (
	MsgEndAfterStart    = "End date must be after start date"
	MsgDeadlineInPeriod = "Registration deadline must be within period dates"
)

// EnrollmentPeriod is the admission window of a school year.
type EnrollmentPeriod struct {
	ID                          string       `db:"id" json:"id"`
	SchoolYearID                string       `db:"school_year_id" json:"school_year_id"`
	StartDate                   time.Time    `db:"start_date" json:"start_date"`
	EndDate                     time.Time    `db:"end_date" json:"end_date"`
	EarlyRegistrationDeadline   *time.Time   `db:"early_registration_deadline" json:"early_registration_deadline,omitempty"`
	RegularRegistrationDeadline time.Time    `db:"regular_registration_deadline" json:"regular_registration_deadline"`
	LateRegistrationDeadline    *time.Time   `db:"late_registration_deadline" json:"late_registration_deadline,omitempty"`
	Status                      PeriodStatus `db:"status" json:"status"`
	AllowNewStudents            bool         `db:"allow_new_students" json:"allow_new_students"`
	AllowReturningStudents      bool         `db:"allow_returning_students" json:"allow_returning_students"`
	Description                 string       `db:"description" json:"description"`
	CreatedAt                   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt                   time.Time    `db:"updated_at" json:"updated_at"`
}

// EnrollmentPeriodDetail adds school year info and the derived window state.
type EnrollmentPeriodDetail struct {
	EnrollmentPeriod
	SchoolYearName string `db:"school_year_name" json:"school_year_name"`
	IsOpen         bool   `db:"-" json:"is_open"`
	DaysRemaining  int    `db:"-" json:"days_remaining"`
}

// EnrollmentPeriodFilter defines list filters.
type EnrollmentPeriodFilter struct {
	SchoolYearID string
	Status       PeriodStatus
	Page         int
	PageSize     int
}

// Validate checks date ordering and that every deadline falls inside the period.
func (p *EnrollmentPeriod) Validate() error {
	var fields []appErrors.FieldError
	if !p.Status.Valid() {
		fields = append(fields, appErrors.FieldError{Field: "status", Message: "Must be one of: upcoming active closed"})
	}
	if !dateOf(p.EndDate).After(dateOf(p.StartDate)) {
		fields = append(fields, appErrors.FieldError{Field: "end_date", Message: MsgEndAfterStart})
		return appErrors.Validation(fields...)
	}
	deadlines := []struct {
		field string
		value *time.Time
	}{
		{"early_registration_deadline", p.EarlyRegistrationDeadline},
		{"regular_registration_deadline", &p.RegularRegistrationDeadline},
		{"late_registration_deadline", p.LateRegistrationDeadline},
	}
	for _, d := range deadlines {
		if d.value == nil {
			continue
		}
		if !p.withinPeriod(*d.value) {
			fields = append(fields, appErrors.FieldError{Field: d.field, Message: MsgDeadlineInPeriod})
		}
	}
	if len(fields) > 0 {
		return appErrors.Validation(fields...)
	}
	return nil
}

func (p *EnrollmentPeriod) withinPeriod(t time.Time) bool {
	d := dateOf(t)
	return !d.Before(dateOf(p.StartDate)) && !d.After(dateOf(p.EndDate))
}

// Covers reports whether the calendar day of now lies within [start_date, end_date].
func (p *EnrollmentPeriod) Covers(now time.Time) bool {
	return p.withinPeriod(now)
}

// Ended reports whether end_date is strictly before the calendar day of now.
func (p *EnrollmentPeriod) Ended(now time.Time) bool {
	return dateOf(p.EndDate).Before(dateOf(now))
}

// IsOpen reports whether registrations are accepted at now. The registration
// window closes at the regular deadline even if the period runs longer.
func (p *EnrollmentPeriod) IsOpen(now time.Time) bool {
	if p.Status != PeriodStatusActive {
		return false
	}
	if !p.Covers(now) {
		return false
	}
	return !dateOf(now).After(dateOf(p.RegularRegistrationDeadline))
}

// DaysRemaining counts whole days, rounded up, until the end of the regular
// registration deadline day.
func (p *EnrollmentPeriod) DaysRemaining(now time.Time) int {
	if p.Status != PeriodStatusActive {
		return 0
	}
	dl := dateOf(p.RegularRegistrationDeadline)
	end := time.Date(dl.Year(), dl.Month(), dl.Day()+1, 0, 0, 0, 0, now.Location())
	left := end.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}

// AdmitsType reports whether the period accepts applications of the given type.
func (p *EnrollmentPeriod) AdmitsType(t EnrollmentType) bool {
	switch t {
	case EnrollmentTypeNew:
		return p.AllowNewStudents
	case EnrollmentTypeContinuing:
		return p.AllowReturningStudents
	}
	return false
}

// Refresh recomputes the derived window fields at now.
func (d *EnrollmentPeriodDetail) Refresh(now time.Time) {
	d.IsOpen = d.EnrollmentPeriod.IsOpen(now)
	d.DaysRemaining = d.EnrollmentPeriod.DaysRemaining(now)
}

// dateOf drops the clock, keeping the calendar day as seen in t's location.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
