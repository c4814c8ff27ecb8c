package models

import "time"

// Guardian is the parent or legal guardian profile bound to a user account.
type Guardian struct {
	ID           string     `db:"id" json:"id"`
	UserID       string     `db:"user_id" json:"user_id"`
	FirstName    string     `db:"first_name" json:"first_name"`
	LastName     string     `db:"last_name" json:"last_name"`
	Relationship string     `db:"relationship" json:"relationship"`
	Phone        string     `db:"phone" json:"phone"`
	Email        string     `db:"email" json:"email"`
	Address      string     `db:"address" json:"address"`
	Occupation   string     `db:"occupation" json:"occupation"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt    *time.Time `db:"deleted_at" json:"-"`
}

// FullName joins the name parts.
func (g *Guardian) FullName() string {
	return g.FirstName + " " + g.LastName
}
