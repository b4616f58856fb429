package user

import (
	"errors"
	"time"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never expose hash in JSON
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already in use")
	// ErrReferenced is returned when a record still points at the user.
	ErrReferenced = errors.New("user referenced by records")
)

// Admin accounts are seeded from config, never self-registered.
type CreateUserRequest struct {
	Name     string `json:"name" binding:"required,min=1,max=120"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Role     Role   `json:"role" binding:"required,oneof=patient doctor"`
}

// nil or empty fields are left unchanged.
type UpdateUserRequest struct {
	Name  *string `json:"name" binding:"omitempty,max=120"`
	Email *string `json:"email" binding:"omitempty,email"`
	Role  *Role   `json:"role" binding:"omitempty,oneof=patient doctor admin"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Changes is what a store applies on update. Empty fields are skipped.
type Changes struct {
	Name  string
	Email string
	Role  Role
}

func (c Changes) Empty() bool {
	return c.Name == "" && c.Email == "" && c.Role == ""
}
