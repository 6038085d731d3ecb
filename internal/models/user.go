package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin    UserRole = "ADMIN"
	RoleStandard UserRole = "STANDARD"
)

// Shift partitions users and projectors into scheduling blocks.
type Shift string

const (
	ShiftMorning   Shift = "MORNING"
	ShiftAfternoon Shift = "AFTERNOON"
)

// ValidShift reports whether the given shift belongs to the known set.
func ValidShift(s Shift) bool {
	return s == ShiftMorning || s == ShiftAfternoon
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Grade        *string    `db:"grade" json:"grade,omitempty"`
	Group        *string    `db:"group_name" json:"group,omitempty"`
	Shift        *Shift     `db:"shift" json:"shift,omitempty"`
	Theme        string     `db:"theme" json:"theme"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// ProfileComplete reports whether the academic metadata has been filled in.
func (u *User) ProfileComplete() bool {
	return u.Grade != nil && u.Group != nil && u.Shift != nil
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Shift     *Shift
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
