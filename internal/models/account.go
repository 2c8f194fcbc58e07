package models

import (
	"strings"
	"time"
)

// Role represents the two account kinds of the platform.
type Role string

const (
	RoleStudent   Role = "student"
	RoleOrganizer Role = "organizer"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleOrganizer
}

// Account represents a registered user stored in the accounts collection.
type Account struct {
	ID           string     `doc:"id" json:"id"`
	FirstName    string     `doc:"firstName" json:"first_name"`
	LastName     string     `doc:"lastName" json:"last_name"`
	UserName     string     `doc:"userName" json:"user_name"`
	Email        string     `doc:"email" json:"email"`
	PasswordHash string     `doc:"passwordHash" json:"-"`
	Role         Role       `doc:"role" json:"role"`
	Active       bool       `doc:"active" json:"active"`
	LastLogin    *time.Time `doc:"lastLogin" json:"last_login,omitempty"`
	CreatedAt    time.Time  `doc:"createdAt" json:"created_at"`
	UpdatedAt    time.Time  `doc:"updatedAt" json:"updated_at"`
}

// FullName joins first and last name.
func (a Account) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// Fields renders the account for the document store.
func (a Account) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		FieldFirstName:    a.FirstName,
		FieldLastName:     a.LastName,
		FieldUserName:     a.UserName,
		FieldEmail:        a.Email,
		FieldPasswordHash: a.PasswordHash,
		FieldRole:         string(a.Role),
		FieldActive:       a.Active,
		FieldCreatedAt:    a.CreatedAt,
		FieldUpdatedAt:    a.UpdatedAt,
	}
	if a.LastLogin != nil {
		fields[FieldLastLogin] = *a.LastLogin
	}
	return fields
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
