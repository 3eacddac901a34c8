package services

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/financii/backend/internal/models"
)

// Reconciliation errors surfaced to the HTTP layer.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidType     = errors.New("transaction type must be either 'income' or 'expense'")
)

// InvalidAmountError reports an amount that does not parse, echoing the
// offending raw value for diagnostics.
type InvalidAmountError struct {
	Raw string
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid amount format: %q", e.Raw)
}

// LedgerService keeps each account's cached balance equal to its initial
// balance plus the signed sum of its transactions. Every adjustment is a
// single atomic increment inside the caller's database transaction, so a
// transaction row and its balance effect commit or roll back together.
type LedgerService struct {
	db *sql.DB
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{db: db}
}

// ParseAmount normalizes a raw amount string (thousands separators and
// surrounding whitespace stripped) into a decimal.
func ParseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, &InvalidAmountError{Raw: raw}
	}
	return d, nil
}

// ValidateType checks the transaction type enum.
func ValidateType(txType string) error {
	if txType != models.TypeIncome && txType != models.TypeExpense {
		return ErrInvalidType
	}
	return nil
}

// ApplyCreate applies a new transaction's signed delta to its account.
func (s *LedgerService) ApplyCreate(tx *sql.Tx, userID, accountID int, amount decimal.Decimal, txType string) error {
	return s.applyDelta(tx, userID, accountID, models.SignedDelta(amount, txType))
}

// ApplyUpdate reconciles balances for a transaction update. A move between
// accounts reverts the old delta on the old account and applies the new
// delta on the new one; an in-place update applies only the incremental
// difference, never the full new delta on top of the old.
func (s *LedgerService) ApplyUpdate(tx *sql.Tx, userID int, old *models.Transaction, newAccountID int, newAmount decimal.Decimal, newType string) error {
	oldDelta := models.SignedDelta(old.Amount, old.Type)
	newDelta := models.SignedDelta(newAmount, newType)

	if newAccountID != old.AccountID {
		if err := s.applyDelta(tx, userID, old.AccountID, oldDelta.Neg()); err != nil {
			return err
		}
		return s.applyDelta(tx, userID, newAccountID, newDelta)
	}

	diff := newDelta.Sub(oldDelta)
	if diff.IsZero() {
		return nil
	}
	return s.applyDelta(tx, userID, old.AccountID, diff)
}

// ApplyDelete reverts a transaction's signed delta from its account.
func (s *LedgerService) ApplyDelete(tx *sql.Tx, userID int, txn *models.Transaction) error {
	return s.applyDelta(tx, userID, txn.AccountID, models.SignedDelta(txn.Amount, txn.Type).Neg())
}

// applyDelta increments the account balance as one atomic statement; no
// read-modify-write, so concurrent adjustments cannot lose updates.
func (s *LedgerService) applyDelta(tx *sql.Tx, userID, accountID int, delta decimal.Decimal) error {
	result, err := tx.Exec(`
		UPDATE accounts
		SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2 AND user_id = $3`,
		delta, accountID, userID)
	if err != nil {
		return fmt.Errorf("adjusting balance for account %d: %w", accountID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}
