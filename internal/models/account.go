package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a balance container (checking, cash, savings, ...) owned by a
// single user. Balance is the cached signed sum of the account's
// transactions on top of InitialBalance and is mutated only through the
// ledger service.
// @Description Account with cached balance
type Account struct {
	ID             int             `json:"id" db:"id" example:"1"`
	UserID         int             `json:"user_id" db:"user_id" example:"1"`
	Name           string          `json:"name" db:"name" example:"Default Account"`
	Type           string          `json:"type" db:"type" example:"checking"`
	Balance        decimal.Decimal `json:"balance" db:"balance"`
	InitialBalance decimal.Decimal `json:"initial_balance" db:"initial_balance"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt      *time.Time      `json:"updatedAt" db:"updated_at"`
}

// AccountPatch carries the optional fields of an account update. Balance is
// deliberately absent: it moves only through transaction mutations.
type AccountPatch struct {
	Name *string `json:"name" validate:"omitempty,min=1"`
	Type *string `json:"type" validate:"omitempty,min=1"`
}
