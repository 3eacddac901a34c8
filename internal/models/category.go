package models

import "time"

// Category labels transactions. A category referenced by at least one
// transaction cannot be deleted.
// @Description Transaction category
type Category struct {
	ID        int        `json:"id" db:"id" example:"1"`
	UserID    int        `json:"user_id" db:"user_id" example:"1"`
	Title     string     `json:"title" db:"title" example:"Groceries"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt *time.Time `json:"updatedAt" db:"updated_at"`
}

// CategoryPatch carries the optional fields of a category update.
type CategoryPatch struct {
	Title *string `json:"title" validate:"omitempty,min=1"`
}
