package models

import (
	"time"

	"github.com/gofrs/uuid"
)

type User struct {
	ID           uuid.UUID     `json:"id"`
	Fullname     string        `json:"fullname"`
	Username     string        `json:"username"`
	Email        string        `json:"email"`
	PasswordHash string        `json:"-"` // bcrypt
	PasswordSalt string        `json:"-"`
	Birthday     *Date         `json:"birthday,omitempty"`
	LastLogin    *time.Time    `json:"last_login,omitempty"`
	Active       bool          `json:"active"`
	Blocked      bool          `json:"blocked"`
	IsAdmin      bool          `json:"is_admin"`
	CreatedAt    time.Time     `json:"created_at"`
	CreatedBy    uuid.NullUUID `json:"created_by"`
	UpdatedAt    time.Time     `json:"updated_at"`
	UpdatedBy    uuid.NullUUID `json:"updated_by"`
}

// UserFilter selects users. Zero fields are ignored; an empty filter matches
// every user.
type UserFilter struct {
	ID       uuid.UUID
	Email    string
	NonAdmin bool
}

// UserChanges is a partial update. Nil fields are left untouched.
type UserChanges struct {
	Fullname     *string
	Username     *string
	Email        *string
	PasswordHash *string
	PasswordSalt *string
	Birthday     *Date
	LastLogin    *time.Time
	Active       *bool
	Blocked      *bool
	IsAdmin      *bool
	UpdatedAt    *time.Time
	UpdatedBy    *uuid.UUID
}

func (c UserChanges) IsEmpty() bool {
	return c == UserChanges{}
}

// AccessToken is returned by a successful login.
type AccessToken struct {
	Email       string `json:"email"`
	AccessToken string `json:"access_token"`
}

type RegisterInput struct {
	Fullname string `json:"fullname"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Birthday *Date  `json:"birthday"`
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CredentialsUpdate struct {
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
}

// AdminUserInput is used by admins to create and update users. Pointer
// booleans distinguish "unset" from false.
type AdminUserInput struct {
	Fullname *string `json:"fullname"`
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Birthday *Date   `json:"birthday"`
	Active   *bool   `json:"active"`
	Blocked  *bool   `json:"blocked"`
	IsAdmin  *bool   `json:"is_admin"`
}

// AdminSeed describes the administrator account created at startup.
type AdminSeed struct {
	Email    string
	Password string
	Fullname string
}
