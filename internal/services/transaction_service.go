package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/financii/backend/internal/models"
)

type TransactionService struct {
	db        *sql.DB
	ledger    *LedgerService
	validator *ValidationHelper
}

// TransactionRequest represents the transaction creation payload. Amount
// arrives as a string (possibly with thousands separators) and is validated
// by the ledger service.
// @Description Transaction creation structure
type TransactionRequest struct {
	Title       string `json:"title" validate:"required" example:"Weekly shop"`
	Description string `json:"description" example:"Supermarket"`
	Amount      string `json:"amount" validate:"required" example:"42.50"`
	Type        string `json:"type" validate:"required" example:"expense"`
	AccountID   int    `json:"account_id" validate:"required" example:"1"`
	CategoryID  int    `json:"category_id" validate:"required" example:"1"`
}

func NewTransactionService(db *sql.DB) *TransactionService {
	return &TransactionService{
		db:        db,
		ledger:    NewLedgerService(db),
		validator: NewValidationHelper(),
	}
}

// CreateTransaction records a transaction and adjusts the account balance
// @Summary Create a transaction
// @Description Persist an income/expense entry and apply its signed delta to the account balance
// @Tags transactions
// @Accept json
// @Produce json
// @Param request body TransactionRequest true "Transaction data"
// @Success 201 {object} models.Transaction
// @Failure 400 {object} ErrorResponse "Invalid amount or type"
// @Failure 404 {object} ErrorResponse "Account not found"
// @Router /transactions [post]
func (ts *TransactionService) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	user, err := CurrentUser(ts.db, r)
	if err != nil {
		SendAuthError(w, err)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req TransactionRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := ts.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	amount, err := ParseAmount(req.Amount)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := ValidateType(req.Type); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	dbTx, err := ts.db.Begin()
	if err != nil {
		log.Printf("[TRANSACTION] Failed to begin transaction: %v", err)
		SendErrorResponse(w, "Failed to process transaction", http.StatusInternalServerError, nil)
		return
	}
	defer dbTx.Rollback()

	var txn models.Transaction
	txn.UserID = user.ID
	txn.AccountID = req.AccountID
	txn.CategoryID = req.CategoryID
	txn.Title = req.Title
	txn.Description = req.Description
	txn.Amount = amount
	txn.Type = req.Type

	err = dbTx.QueryRow(`
		INSERT INTO transactions (user_id, account_id, category_id, title, description, amount, type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		user.ID, req.AccountID, req.CategoryID, req.Title, req.Description, amount, req.Type).
		Scan(&txn.ID, &txn.CreatedAt)
	if err != nil {
		log.Printf("[TRANSACTION] Failed to store transaction: %v", err)
		SendErrorResponse(w, "Failed to store transaction", http.StatusInternalServerError, nil)
		return
	}

	// Insert and balance adjustment commit or roll back as one unit.
	if err := ts.ledger.ApplyCreate(dbTx, user.ID, req.AccountID, amount, req.Type); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[TRANSACTION] Balance adjustment failed: %v", err)
		SendErrorResponse(w, "Failed to process transaction", http.StatusInternalServerError, nil)
		return
	}

	if err := dbTx.Commit(); err != nil {
		log.Printf("[TRANSACTION] Failed to commit transaction: %v", err)
		SendErrorResponse(w, "Failed to process transaction", http.StatusInternalServerError, nil)
		return
	}

	txn.CategoryName = ts.categoryName(txn.CategoryID)
	log.Printf("[TRANSACTION] Transaction %d created for user %d (%s %s)", txn.ID, user.ID, txn.Type, txn.Amount)
	SendJSON(w, http.StatusCreated, txn)
}

// ListTransactions retrieves the caller's transactions, optionally filtered by date range
// @Summary List transactions
// @Description Transactions ordered by creation time ascending; endDate bound is inclusive
// @Tags transactions
// @Produce json
// @Param startDate query string false "Range start (ISO-8601)"
// @Param endDate query string false "Range end (ISO-8601, inclusive)"
// @Success 200 {array} models.Transaction
// @Failure 400 {object} ErrorResponse "Invalid date format"
// @Router /transactions [get]
func (ts *TransactionService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	user, err := CurrentUser(ts.db, r)
	if err != nil {
		SendAuthError(w, err)
		return
	}

	start, end, ranged, err := parseDateRange(r)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	query := `
		SELECT t.id, t.user_id, t.account_id, t.category_id, t.title, t.description,
		       t.amount, t.type, t.created_at, t.updated_at, COALESCE(c.title, 'Unknown Category')
		FROM transactions t
		LEFT JOIN categories c ON c.id = t.category_id
		WHERE t.user_id = $1`
	args := []interface{}{user.ID}

	if ranged {
		query += ` AND t.created_at >= $2 AND t.created_at < $3`
		args = append(args, start, end)
	}
	query += ` ORDER BY t.created_at ASC`

	rows, err := ts.db.Query(query, args...)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		var txn models.Transaction
		if err := rows.Scan(&txn.ID, &txn.UserID, &txn.AccountID, &txn.CategoryID, &txn.Title,
			&txn.Description, &txn.Amount, &txn.Type, &txn.CreatedAt, &txn.UpdatedAt, &txn.CategoryName); err != nil {
			SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
			return
		}
		transactions = append(transactions, txn)
	}

	SendJSON(w, http.StatusOK, transactions)
}

// TotalTransactions sums the caller's raw transaction amounts
// @Summary Total across transactions
// @Description Sum of raw amounts (not sign-adjusted) across all of the caller's transactions
// @Tags transactions
// @Produce json
// @Success 200 {object} map[string]string
// @Router /transactions/total [get]
func (ts *TransactionService) TotalTransactions(w http.ResponseWriter, r *http.Request) {
	user, err := CurrentUser(ts.db, r)
	if err != nil {
		SendAuthError(w, err)
		return
	}

	rows, err := ts.db.Query(`SELECT amount::text FROM transactions WHERE user_id = $1`, user.ID)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
			return
		}
		// Amounts may carry formatting (thousands separators) from older
		// imports; normalize before summing.
		amount, err := ParseAmount(raw)
		if err != nil {
			log.Printf("[TRANSACTION] Skipping unparsable amount %q for user %d", raw, user.ID)
			continue
		}
		total = total.Add(amount)
	}

	SendJSON(w, http.StatusOK, map[string]decimal.Decimal{"total": total})
}

// GetTransaction retrieves one of the caller's transactions
// @Summary Get transaction by ID
// @Tags transactions
// @Produce json
// @Param id path int true "Transaction ID"
// @Success 200 {object} models.Transaction
// @Failure 404 {object} ErrorResponse "Transaction not found"
// @Router /transactions/{id} [get]
func (ts *TransactionService) GetTransaction(w http.ResponseWriter, r *http.Request) {
	user, err := CurrentUser(ts.db, r)
	if err != nil {
		SendAuthError(w, err)
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid transaction ID format", http.StatusBadRequest, nil)
		return
	}

	txn, err := ts.fetchTransaction(id, user.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
		} else {
			SendErrorResponse(w, "Failed to fetch transaction", http.StatusInternalServerError, nil)
		}
		return
	}

	SendJSON(w, http.StatusOK, txn)
}

// UpdateTransaction applies a partial update and reconciles balances
// @Summary Update a transaction
// @Description Apply supplied fields; balance deltas are reverted/applied across accounts as needed
// @Tags transactions
// @Accept json
// @Produce json
// @Param id path int true "Transaction ID"
// @Param request body models.TransactionPatch true "Fields to update"
// @Success 200 {object} models.Transaction
// @Failure 400 {object} ErrorResponse "Invalid amount or type"
// @Failure 404 {object} ErrorResponse "Transaction or account not found"
// @Router /transactions/{id} [put]
func (ts *TransactionService) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	user, err := CurrentUser(ts.db, r)
	if err != nil {
		SendAuthError(w, err)
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid transaction ID format", http.StatusBadRequest, nil)
		return
	}

	var patch models.TransactionPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	old, err := ts.fetchTransaction(id, user.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
		} else {
			SendErrorResponse(w, "Failed to fetch transaction", http.StatusInternalServerError, nil)
		}
		return
	}

	// Merge: only supplied fields overwrite stored values.
	newAccountID := old.AccountID
	if patch.AccountID != nil {
		newAccountID = *patch.AccountID
	}
	newCategoryID := old.CategoryID
	if patch.CategoryID != nil {
		newCategoryID = *patch.CategoryID
	}
	newTitle := old.Title
	if patch.Title != nil {
		newTitle = *patch.Title
	}
	newDescription := old.Description
	if patch.Description != nil {
		newDescription = *patch.Description
	}
	newAmount := old.Amount
	if patch.Amount != nil {
		newAmount, err = ParseAmount(*patch.Amount)
		if err != nil {
			SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
			return
		}
	}
	newType := old.Type
	if patch.Type != nil {
		if err := ValidateType(*patch.Type); err != nil {
			SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
			return
		}
		newType = *patch.Type
	}

	dbTx, err := ts.db.Begin()
	if err != nil {
		log.Printf("[TRANSACTION] Failed to begin transaction: %v", err)
		SendErrorResponse(w, "Failed to process transaction", http.StatusInternalServerError, nil)
		return
	}
	defer dbTx.Rollback()

	if err := ts.ledger.ApplyUpdate(dbTx, user.ID, old, newAccountID, newAmount, newType); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[TRANSACTION] Balance adjustment failed: %v", err)
		SendErrorResponse(w, "Failed to process transaction", http.StatusInternalServerError, nil)
		return
	}

	var txn models.Transaction
	err = dbTx.QueryRow(`
		UPDATE transactions
		SET account_id = $1, category_id = $2, title = $3, description = $4, amount = $5, type = $6, updated_at = NOW()
		WHERE id = $7 AND user_id = $8
		RETURNING id, user_id, account_id, category_id, title, description, amount, type, created_at, updated_at`,
		newAccountID, newCategoryID, newTitle, newDescription, newAmount, newType, id, user.ID).
		Scan(&txn.ID, &txn.UserID, &txn.AccountID, &txn.CategoryID, &txn.Title, &txn.Description,
			&txn.Amount, &txn.Type, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		log.Printf("[TRANSACTION] Failed to update transaction %d: %v", id, err)
		SendErrorResponse(w, "Failed to process transaction", http.StatusInternalServerError, nil)
		return
	}

	if err := dbTx.Commit(); err != nil {
		log.Printf("[TRANSACTION] Failed to commit transaction: %v", err)
		SendErrorResponse(w, "Failed to process transaction", http.StatusInternalServerError, nil)
		return
	}

	txn.CategoryName = ts.categoryName(txn.CategoryID)
	log.Printf("[TRANSACTION] Transaction %d updated for user %d", id, user.ID)
	SendJSON(w, http.StatusOK, txn)
}

// DeleteTransaction removes a transaction and reverts its balance delta
// @Summary Delete a transaction
// @Tags transactions
// @Produce json
// @Param id path int true "Transaction ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse "Transaction not found"
// @Router /transactions/{id} [delete]
func (ts *TransactionService) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	user, err := CurrentUser(ts.db, r)
	if err != nil {
		SendAuthError(w, err)
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid transaction ID format", http.StatusBadRequest, nil)
		return
	}

	txn, err := ts.fetchTransaction(id, user.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
		} else {
			SendErrorResponse(w, "Failed to fetch transaction", http.StatusInternalServerError, nil)
		}
		return
	}

	dbTx, err := ts.db.Begin()
	if err != nil {
		log.Printf("[TRANSACTION] Failed to begin transaction: %v", err)
		SendErrorResponse(w, "Failed to process transaction", http.StatusInternalServerError, nil)
		return
	}
	defer dbTx.Rollback()

	if err := ts.ledger.ApplyDelete(dbTx, user.ID, txn); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[TRANSACTION] Balance adjustment failed: %v", err)
		SendErrorResponse(w, "Failed to process transaction", http.StatusInternalServerError, nil)
		return
	}

	if _, err := dbTx.Exec(`DELETE FROM transactions WHERE id = $1 AND user_id = $2`, id, user.ID); err != nil {
		log.Printf("[TRANSACTION] Failed to delete transaction %d: %v", id, err)
		SendErrorResponse(w, "Failed to process transaction", http.StatusInternalServerError, nil)
		return
	}

	if err := dbTx.Commit(); err != nil {
		log.Printf("[TRANSACTION] Failed to commit transaction: %v", err)
		SendErrorResponse(w, "Failed to process transaction", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[TRANSACTION] Transaction %d deleted for user %d", id, user.ID)
	SendJSON(w, http.StatusOK, map[string]string{"message": "Transaction deleted and account balance updated"})
}

func (ts *TransactionService) fetchTransaction(id, userID int) (*models.Transaction, error) {
	var txn models.Transaction
	err := ts.db.QueryRow(`
		SELECT t.id, t.user_id, t.account_id, t.category_id, t.title, t.description,
		       t.amount, t.type, t.created_at, t.updated_at, COALESCE(c.title, 'Unknown Category')
		FROM transactions t
		LEFT JOIN categories c ON c.id = t.category_id
		WHERE t.id = $1 AND t.user_id = $2`,
		id, userID).
		Scan(&txn.ID, &txn.UserID, &txn.AccountID, &txn.CategoryID, &txn.Title, &txn.Description,
			&txn.Amount, &txn.Type, &txn.CreatedAt, &txn.UpdatedAt, &txn.CategoryName)
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (ts *TransactionService) categoryName(categoryID int) string {
	var title string
	if err := ts.db.QueryRow(`SELECT title FROM categories WHERE id = $1`, categoryID).Scan(&title); err != nil {
		return "Unknown Category"
	}
	return title
}

// parseDateRange reads startDate/endDate query parameters. The end bound is
// widened by one second so a transaction stamped exactly at the supplied end
// instant is included even when the input format truncates sub-second
// precision.
func parseDateRange(r *http.Request) (start, end time.Time, ranged bool, err error) {
	startStr := r.URL.Query().Get("startDate")
	endStr := r.URL.Query().Get("endDate")
	if startStr == "" || endStr == "" {
		return time.Time{}, time.Time{}, false, nil
	}

	start, err = parseQueryTime(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("invalid startDate: %q", startStr)
	}
	end, err = parseQueryTime(endStr)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("invalid endDate: %q", endStr)
	}

	return start, end.Add(time.Second), true, nil
}

func parseQueryTime(s string) (time.Time, error) {
	// The Z suffix normalizes to +00:00.
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", s)
}
