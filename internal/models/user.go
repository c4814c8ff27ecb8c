package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPER_ADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleRegistrar  UserRole = "REGISTRAR"
	RoleGuardian   UserRole = "GUARDIAN"
	RoleStudent    UserRole = "STUDENT"
)

// Valid reports whether the role is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleRegistrar, RoleGuardian, RoleStudent:
		return true
	}
	return false
}

// IsStaff reports whether the role can process enrollments on behalf of the school.
func (r UserRole) IsStaff() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleRegistrar:
		return true
	}
	return false
}

// IsAdmin reports whether the role has administrative privileges.
func (r UserRole) IsAdmin() bool {
	return r == RoleSuperAdmin || r == RoleAdmin
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// NewPagination normalises page parameters the same way repositories do.
func NewPagination(page, size, total int) *Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return &Pagination{Page: page, PageSize: size, TotalCount: total}
}
