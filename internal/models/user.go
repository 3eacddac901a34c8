package models

import "time"

// User represents a registered user
// @Description User account information
type User struct {
	ID        int        `json:"id" db:"id" example:"1"`
	Username  string     `json:"username" db:"username" example:"vmanrique"`
	Email     string     `json:"email" db:"email" example:"user@example.com"`
	FirstName string     `json:"first_name" db:"first_name" example:"Victor"`
	LastName  string     `json:"last_name" db:"last_name" example:"Manrique"`
	Disabled  bool       `json:"disabled" db:"disabled"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt *time.Time `json:"updatedAt" db:"updated_at"`
}

// UserPatch carries the optional fields of a user update. Only non-nil
// fields are applied to the stored row.
type UserPatch struct {
	Username  *string `json:"username" validate:"omitempty,min=3"`
	Email     *string `json:"email" validate:"omitempty,email"`
	Password  *string `json:"password" validate:"omitempty,min=6"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Disabled  *bool   `json:"disabled"`
}
