package models

import "time"

// Student is a learner registered by a guardian.
type Student struct {
	ID             string     `db:"id" json:"id"`
	GuardianID     string     `db:"guardian_id" json:"guardian_id"`
	StudentNumber  *string    `db:"student_number" json:"student_number,omitempty"`
	FirstName      string     `db:"first_name" json:"first_name"`
	MiddleName     string     `db:"middle_name" json:"middle_name"`
	LastName       string     `db:"last_name" json:"last_name"`
	Gender         string     `db:"gender" json:"gender"`
	BirthDate      time.Time  `db:"birth_date" json:"birth_date"`
	BirthPlace     string     `db:"birth_place" json:"birth_place"`
	Address        string     `db:"address" json:"address"`
	GradeLevel     string     `db:"grade_level" json:"grade_level"`
	PreviousSchool string     `db:"previous_school" json:"previous_school"`
	MedicalNotes   string     `db:"medical_notes" json:"medical_notes"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt      *time.Time `db:"deleted_at" json:"-"`
}

// FullName joins the name parts.
func (s *Student) FullName() string {
	name := s.FirstName
	if s.MiddleName != "" {
		name += " " + s.MiddleName
	}
	return name + " " + s.LastName
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	GuardianID string
	GradeLevel string
	Search     string
	Page       int
	PageSize   int
}
