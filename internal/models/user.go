package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleStaff   UserRole = "STAFF"
	RolePatient UserRole = "PATIENT"
)

// User represents an application user stored in the users table.
// Patients authenticate with their national identity number (DNI).
type User struct {
	ID           string     `db:"id" json:"id"`
	DNI          string     `db:"dni" json:"dni"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// AllowedPerson is a whitelist row of DNIs authorized to register.
type AllowedPerson struct {
	ID           string  `db:"id" json:"id"`
	DNI          string  `db:"dni" json:"dni"`
	FullName     *string `db:"full_name" json:"full_name,omitempty"`
	IsRegistered bool    `db:"is_registered" json:"is_registered"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
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
