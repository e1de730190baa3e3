package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleStudent   UserRole = "STUDENT"
	RoleFaculty   UserRole = "FACULTY"
	RoleAuthority UserRole = "AUTHORITY"
	RoleAdmin     UserRole = "ADMIN"
)

// ValidRole reports whether the value is one of the four known roles.
func ValidRole(r UserRole) bool {
	switch r {
	case RoleStudent, RoleFaculty, RoleAuthority, RoleAdmin:
		return true
	default:
		return false
	}
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Department   string     `db:"department" json:"department,omitempty"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Actor is the resolved identity performing an operation. It is produced by
// the authentication layer and passed explicitly into every core operation;
// core code never reads an ambient "current user".
type Actor struct {
	ID   string   `json:"id"`
	Role UserRole `json:"role"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
