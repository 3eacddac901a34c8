package services

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/financii/backend/internal/models"
)

const balanceUpdateQuery = "UPDATE accounts SET balance = balance \\+ \\$1, updated_at = NOW\\(\\) WHERE id = \\$2 AND user_id = \\$3"

func TestLedgerService_ApplyCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	t.Run("income adds the full amount", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectExec(balanceUpdateQuery).
			WithArgs("100", 1, 7).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := service.ApplyCreate(tx, 7, 1, decimal.NewFromInt(100), models.TypeIncome)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("expense subtracts the amount", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectExec(balanceUpdateQuery).
			WithArgs("-30", 1, 7).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := service.ApplyCreate(tx, 7, 1, decimal.NewFromInt(30), models.TypeExpense)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing account", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectExec(balanceUpdateQuery).
			WithArgs("100", 99, 7).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := service.ApplyCreate(tx, 7, 99, decimal.NewFromInt(100), models.TypeIncome)
		assert.ErrorIs(t, err, ErrAccountNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerService_ApplyUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	t.Run("amount change on same account applies only the difference", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		old := &models.Transaction{ID: 5, AccountID: 1, Amount: decimal.NewFromInt(100), Type: models.TypeIncome}

		// 100 income -> 40 income shifts the balance by -60
		mock.ExpectExec(balanceUpdateQuery).
			WithArgs("-60", 1, 7).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := service.ApplyUpdate(tx, 7, old, 1, decimal.NewFromInt(40), models.TypeIncome)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("type flip on same account", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		old := &models.Transaction{ID: 5, AccountID: 1, Amount: decimal.NewFromInt(25), Type: models.TypeExpense}

		// -25 -> +25 shifts the balance by +50
		mock.ExpectExec(balanceUpdateQuery).
			WithArgs("50", 1, 7).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := service.ApplyUpdate(tx, 7, old, 1, decimal.NewFromInt(25), models.TypeIncome)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unchanged delta issues no update", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		old := &models.Transaction{ID: 5, AccountID: 1, Amount: decimal.NewFromInt(40), Type: models.TypeIncome}

		err := service.ApplyUpdate(tx, 7, old, 1, decimal.NewFromInt(40), models.TypeIncome)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("move between accounts reverts then reapplies", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		old := &models.Transaction{ID: 5, AccountID: 1, Amount: decimal.NewFromInt(50), Type: models.TypeExpense}

		// revert on the old account: +50
		mock.ExpectExec(balanceUpdateQuery).
			WithArgs("50", 1, 7).
			WillReturnResult(sqlmock.NewResult(0, 1))
		// apply on the new account: -50
		mock.ExpectExec(balanceUpdateQuery).
			WithArgs("-50", 2, 7).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := service.ApplyUpdate(tx, 7, old, 2, decimal.NewFromInt(50), models.TypeExpense)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("move to missing account fails after revert", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		old := &models.Transaction{ID: 5, AccountID: 1, Amount: decimal.NewFromInt(50), Type: models.TypeExpense}

		mock.ExpectExec(balanceUpdateQuery).
			WithArgs("50", 1, 7).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(balanceUpdateQuery).
			WithArgs("-50", 99, 7).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := service.ApplyUpdate(tx, 7, old, 99, decimal.NewFromInt(50), models.TypeExpense)
		assert.ErrorIs(t, err, ErrAccountNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerService_ApplyDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	t.Run("deleting an expense restores the balance", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		txn := &models.Transaction{ID: 5, AccountID: 1, Amount: decimal.NewFromInt(30), Type: models.TypeExpense}

		mock.ExpectExec(balanceUpdateQuery).
			WithArgs("30", 1, 7).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := service.ApplyDelete(tx, 7, txn)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deleting an income reverts it", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		txn := &models.Transaction{ID: 5, AccountID: 1, Amount: decimal.NewFromInt(100), Type: models.TypeIncome}

		mock.ExpectExec(balanceUpdateQuery).
			WithArgs("-100", 1, 7).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := service.ApplyDelete(tx, 7, txn)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestParseAmount(t *testing.T) {
	t.Run("plain value", func(t *testing.T) {
		d, err := ParseAmount("100.50")
		assert.NoError(t, err)
		assert.True(t, d.Equal(decimal.RequireFromString("100.50")))
	})

	t.Run("thousands separators and whitespace", func(t *testing.T) {
		d, err := ParseAmount("  1,234.56 ")
		assert.NoError(t, err)
		assert.True(t, d.Equal(decimal.RequireFromString("1234.56")))
	})

	t.Run("negative value parses", func(t *testing.T) {
		d, err := ParseAmount("-12")
		assert.NoError(t, err)
		assert.True(t, d.Equal(decimal.NewFromInt(-12)))
	})

	t.Run("garbage echoes the raw input", func(t *testing.T) {
		_, err := ParseAmount("12abc")
		assert.Error(t, err)
		var invalid *InvalidAmountError
		assert.ErrorAs(t, err, &invalid)
		assert.Equal(t, "12abc", invalid.Raw)
		assert.Contains(t, err.Error(), `"12abc"`)
	})

	t.Run("empty string fails", func(t *testing.T) {
		_, err := ParseAmount("")
		assert.Error(t, err)
	})
}

func TestValidateType(t *testing.T) {
	assert.NoError(t, ValidateType(models.TypeIncome))
	assert.NoError(t, ValidateType(models.TypeExpense))
	assert.ErrorIs(t, ValidateType("transfer"), ErrInvalidType)
	assert.ErrorIs(t, ValidateType(""), ErrInvalidType)
}

func TestSignedDelta(t *testing.T) {
	assert.True(t, models.SignedDelta(decimal.NewFromInt(100), models.TypeIncome).Equal(decimal.NewFromInt(100)))
	assert.True(t, models.SignedDelta(decimal.NewFromInt(100), models.TypeExpense).Equal(decimal.NewFromInt(-100)))
}
