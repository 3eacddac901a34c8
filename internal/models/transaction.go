package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types. Amount is stored unsigned; the sign of its balance
// contribution is derived from Type.
const (
	TypeIncome  = "income"
	TypeExpense = "expense"
)

// Transaction is a single income or expense entry against an account.
// @Description Income or expense entry
type Transaction struct {
	ID           int             `json:"id" db:"id" example:"1"`
	UserID       int             `json:"user_id" db:"user_id" example:"1"`
	AccountID    int             `json:"account_id" db:"account_id" example:"1"`
	CategoryID   int             `json:"category_id" db:"category_id" example:"1"`
	CategoryName string          `json:"category_name,omitempty" db:"-" example:"Groceries"`
	Title        string          `json:"title" db:"title" example:"Weekly shop"`
	Description  string          `json:"description" db:"description"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	Type         string          `json:"type" db:"type" example:"expense"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt    *time.Time      `json:"updatedAt" db:"updated_at"`
}

// TransactionPatch carries the optional fields of a transaction update.
// Amount stays a raw string until the ledger service validates it, so a
// malformed value can be echoed back to the caller.
type TransactionPatch struct {
	AccountID   *int    `json:"account_id"`
	CategoryID  *int    `json:"category_id"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Amount      *string `json:"amount"`
	Type        *string `json:"type"`
}

// SignedDelta returns the balance contribution of a transaction: positive
// for income, negative for expense.
func SignedDelta(amount decimal.Decimal, txType string) decimal.Decimal {
	if txType == TypeExpense {
		return amount.Neg()
	}
	return amount
}
