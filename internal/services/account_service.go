package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/financii/backend/internal/models"
)

type AccountService struct {
	db        *sql.DB
	validator *ValidationHelper
}

// AccountRequest represents the account creation payload
// @Description Account creation structure
type AccountRequest struct {
	Name    string `json:"name" validate:"required" example:"Savings"`
	Type    string `json:"type" validate:"required" example:"checking"`
	Balance string `json:"balance" example:"0"`
}

func NewAccountService(db *sql.DB) *AccountService {
	return &AccountService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// CreateAccount creates an account for the caller
// @Summary Create account
// @Description The supplied balance is frozen as the account's initial balance
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body AccountRequest true "Account data"
// @Success 201 {object} models.Account
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Router /accounts [post]
func (s *AccountService) CreateAccount(w http.ResponseWriter, r *http.Request) {
	user, err := CurrentUser(s.db, r)
	if err != nil {
		SendAuthError(w, err)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req AccountRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if req.Balance == "" {
		req.Balance = "0"
	}
	balance, err := ParseAmount(req.Balance)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	var account models.Account
	err = s.db.QueryRow(`
		INSERT INTO accounts (user_id, name, type, balance, initial_balance)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id, user_id, name, type, balance, initial_balance, created_at, updated_at`,
		user.ID, req.Name, req.Type, balance).
		Scan(&account.ID, &account.UserID, &account.Name, &account.Type, &account.Balance,
			&account.InitialBalance, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		log.Printf("[ACCOUNT] Failed to create account for user %d: %v", user.ID, err)
		SendErrorResponse(w, "Failed to create account", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[ACCOUNT] Account %d created for user %d", account.ID, user.ID)
	SendJSON(w, http.StatusCreated, account)
}

// ListAccounts retrieves the caller's accounts
// @Summary List accounts
// @Description With startDate/endDate the balance is recomputed from initial balance plus in-range transactions instead of the cached column
// @Tags accounts
// @Produce json
// @Param startDate query string false "Range start (ISO-8601)"
// @Param endDate query string false "Range end (ISO-8601, inclusive)"
// @Success 200 {array} models.Account
// @Failure 400 {object} ErrorResponse "Invalid date format"
// @Router /accounts [get]
func (s *AccountService) ListAccounts(w http.ResponseWriter, r *http.Request) {
	user, err := CurrentUser(s.db, r)
	if err != nil {
		SendAuthError(w, err)
		return
	}

	start, end, ranged, err := parseDateRange(r)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	var rows *sql.Rows
	if ranged {
		rows, err = s.db.Query(rangedAccountsQuery+` WHERE a.user_id = $1 GROUP BY a.id ORDER BY a.id`,
			user.ID, start, end)
	} else {
		rows, err = s.db.Query(`
			SELECT id, user_id, name, type, balance, initial_balance, created_at, updated_at
			FROM accounts WHERE user_id = $1 ORDER BY id`, user.ID)
	}
	if err != nil {
		SendErrorResponse(w, "Failed to fetch accounts", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		var account models.Account
		if err := rows.Scan(&account.ID, &account.UserID, &account.Name, &account.Type,
			&account.Balance, &account.InitialBalance, &account.CreatedAt, &account.UpdatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch accounts", http.StatusInternalServerError, nil)
			return
		}
		accounts = append(accounts, account)
	}

	SendJSON(w, http.StatusOK, accounts)
}

// GetAccount retrieves one of the caller's accounts
// @Summary Get account by ID
// @Description With startDate/endDate the balance is recomputed over the range
// @Tags accounts
// @Produce json
// @Param id path int true "Account ID"
// @Param startDate query string false "Range start (ISO-8601)"
// @Param endDate query string false "Range end (ISO-8601, inclusive)"
// @Success 200 {object} models.Account
// @Failure 404 {object} ErrorResponse "Account not found"
// @Router /accounts/{id} [get]
func (s *AccountService) GetAccount(w http.ResponseWriter, r *http.Request) {
	user, err := CurrentUser(s.db, r)
	if err != nil {
		SendAuthError(w, err)
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid account ID format", http.StatusBadRequest, nil)
		return
	}

	start, end, ranged, err := parseDateRange(r)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	var account models.Account
	var row *sql.Row
	if ranged {
		// Recomputed independently of the cached balance column.
		row = s.db.QueryRow(rangedAccountsQuery+` WHERE a.id = $1 AND a.user_id = $4 GROUP BY a.id`,
			id, start, end, user.ID)
	} else {
		row = s.db.QueryRow(`
			SELECT id, user_id, name, type, balance, initial_balance, created_at, updated_at
			FROM accounts WHERE id = $1 AND user_id = $2`, id, user.ID)
	}
	err = row.Scan(&account.ID, &account.UserID, &account.Name, &account.Type,
		&account.Balance, &account.InitialBalance, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		} else {
			SendErrorResponse(w, "Failed to fetch account", http.StatusInternalServerError, nil)
		}
		return
	}

	SendJSON(w, http.StatusOK, account)
}

// UpdateAccount applies a partial update to an account
// @Summary Update account
// @Description Only supplied fields overwrite stored values; balance is not updatable here
// @Tags accounts
// @Accept json
// @Produce json
// @Param id path int true "Account ID"
// @Param request body models.AccountPatch true "Fields to update"
// @Success 200 {object} models.Account
// @Failure 404 {object} ErrorResponse "Account not found"
// @Router /accounts/{id} [put]
func (s *AccountService) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	user, err := CurrentUser(s.db, r)
	if err != nil {
		SendAuthError(w, err)
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid account ID format", http.StatusBadRequest, nil)
		return
	}

	var patch models.AccountPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&patch); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var existing models.Account
	err = s.db.QueryRow(`
		SELECT id, user_id, name, type, balance, initial_balance, created_at, updated_at
		FROM accounts WHERE id = $1 AND user_id = $2`, id, user.ID).
		Scan(&existing.ID, &existing.UserID, &existing.Name, &existing.Type,
			&existing.Balance, &existing.InitialBalance, &existing.CreatedAt, &existing.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		} else {
			SendErrorResponse(w, "Failed to fetch account", http.StatusInternalServerError, nil)
		}
		return
	}

	name := existing.Name
	if patch.Name != nil {
		name = *patch.Name
	}
	accountType := existing.Type
	if patch.Type != nil {
		accountType = *patch.Type
	}

	var account models.Account
	err = s.db.QueryRow(`
		UPDATE accounts SET name = $1, type = $2, updated_at = NOW()
		WHERE id = $3 AND user_id = $4
		RETURNING id, user_id, name, type, balance, initial_balance, created_at, updated_at`,
		name, accountType, id, user.ID).
		Scan(&account.ID, &account.UserID, &account.Name, &account.Type, &account.Balance,
			&account.InitialBalance, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		SendErrorResponse(w, "Failed to update account", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[ACCOUNT] Account %d updated for user %d", id, user.ID)
	SendJSON(w, http.StatusOK, account)
}

// DeleteAccount removes an account and its transactions
// @Summary Delete account
// @Description Deletes the account together with all transactions referencing it, as one unit
// @Tags accounts
// @Produce json
// @Param id path int true "Account ID"
// @Success 200 {object} map[string]interface{} "Account deleted"
// @Failure 404 {object} ErrorResponse "Account not found"
// @Router /accounts/{id} [delete]
func (s *AccountService) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	user, err := CurrentUser(s.db, r)
	if err != nil {
		SendAuthError(w, err)
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid account ID format", http.StatusBadRequest, nil)
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		SendErrorResponse(w, "Failed to delete account", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	txResult, err := tx.Exec(`DELETE FROM transactions WHERE account_id = $1 AND user_id = $2`, id, user.ID)
	if err != nil {
		SendErrorResponse(w, "Failed to delete account", http.StatusInternalServerError, nil)
		return
	}
	transactionsDeleted, _ := txResult.RowsAffected()

	result, err := tx.Exec(`DELETE FROM accounts WHERE id = $1 AND user_id = $2`, id, user.ID)
	if err != nil {
		SendErrorResponse(w, "Failed to delete account", http.StatusInternalServerError, nil)
		return
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		return
	}

	if err := tx.Commit(); err != nil {
		SendErrorResponse(w, "Failed to delete account", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[ACCOUNT] Account %d deleted for user %d (%d transactions removed)", id, user.ID, transactionsDeleted)
	SendJSON(w, http.StatusOK, map[string]interface{}{
		"message":              "Account and all associated transactions deleted",
		"transactions_deleted": transactionsDeleted,
	})
}

// rangedAccountsQuery recomputes the balance from the initial balance plus
// the signed sum of in-range transactions. Placeholders: the WHERE clause is
// appended by the caller; $2/$3 are always the range bounds.
const rangedAccountsQuery = `
	SELECT a.id, a.user_id, a.name, a.type,
	       a.initial_balance + COALESCE(SUM(CASE WHEN t.type = 'income' THEN t.amount ELSE -t.amount END), 0) AS balance,
	       a.initial_balance, a.created_at, a.updated_at
	FROM accounts a
	LEFT JOIN transactions t
	  ON t.account_id = a.id AND t.created_at >= $2 AND t.created_at < $3`
