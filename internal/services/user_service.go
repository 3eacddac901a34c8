package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/financii/backend/internal/models"
)

// Provisioned for every new user.
var (
	defaultAccountName = "Default Account"
	defaultAccountType = "checking"
	defaultCategories  = []string{"Groceries", "Utilities", "Rent", "Entertainment", "Transportation"}
)

type UserService struct {
	db        *sql.DB
	validator *validator.Validate
}

// CreateUserRequest represents the signup payload
// @Description Signup request structure
type CreateUserRequest struct {
	Username  string `json:"username" validate:"required,min=3" example:"vmanrique"`
	Email     string `json:"email" validate:"required,email" example:"user@example.com"`
	Password  string `json:"password" validate:"required,min=6" example:"password123"`
	FirstName string `json:"first_name" example:"Victor"`
	LastName  string `json:"last_name" example:"Manrique"`
}

func NewUserService(db *sql.DB) *UserService {
	return &UserService{
		db:        db,
		validator: validator.New(),
	}
}

// CreateUser handles signup
// @Summary Register a new user
// @Description Create a user plus a default checking account and the default categories
// @Tags users
// @Accept json
// @Produce json
// @Param request body CreateUserRequest true "Signup request"
// @Success 201 {object} models.User "User created"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 409 {object} ErrorResponse "Username or email already taken"
// @Router /users [post]
func (s *UserService) CreateUser(w http.ResponseWriter, r *http.Request) {
	log.Printf("[USER] Signup attempt from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req CreateUserRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	// Duplicate check before insert so the caller learns which field clashed.
	var existingUsername, existingEmail string
	err := s.db.QueryRow(`SELECT username, email FROM users WHERE username = $1 OR email = $2 LIMIT 1`,
		req.Username, strings.ToLower(req.Email)).Scan(&existingUsername, &existingEmail)
	if err == nil {
		message := "Username already taken"
		if strings.EqualFold(existingEmail, req.Email) {
			message = "Email already taken"
		}
		log.Printf("[USER] Signup conflict for username %s: %s", req.Username, message)
		SendErrorResponse(w, message, http.StatusConflict, nil)
		return
	}

	digest, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[USER] Password hashing failed for %s: %v", req.Username, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("[USER] Transaction start failed for %s: %v", req.Username, err)
		SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	var user models.User
	err = tx.QueryRow(`
		INSERT INTO users (username, email, password, first_name, last_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, username, email, first_name, last_name, disabled, created_at, updated_at`,
		req.Username, strings.ToLower(req.Email), digest, req.FirstName, req.LastName).
		Scan(&user.ID, &user.Username, &user.Email, &user.FirstName, &user.LastName,
			&user.Disabled, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		log.Printf("[USER] User creation failed for %s: %v", req.Username, err)
		SendErrorResponse(w, "Failed to create user", http.StatusConflict, nil)
		return
	}

	// Default account with a zero starting balance.
	_, err = tx.Exec(`
		INSERT INTO accounts (user_id, name, type, balance, initial_balance)
		VALUES ($1, $2, $3, 0, 0)`,
		user.ID, defaultAccountName, defaultAccountType)
	if err != nil {
		log.Printf("[USER] Default account creation failed for user %d: %v", user.ID, err)
		SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}

	for _, title := range defaultCategories {
		if _, err := tx.Exec(`INSERT INTO categories (user_id, title) VALUES ($1, $2)`, user.ID, title); err != nil {
			log.Printf("[USER] Default category creation failed for user %d: %v", user.ID, err)
			SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[USER] Transaction commit failed for %s: %v", req.Username, err)
		SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[USER] User created successfully - ID: %d, Username: %s", user.ID, user.Username)
	SendJSON(w, http.StatusCreated, user)
}

// GetUser retrieves a user by id
// @Summary Get user by ID
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} models.User
// @Failure 404 {object} ErrorResponse "User not found"
// @Router /users/{id} [get]
func (s *UserService) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid user ID format", http.StatusBadRequest, nil)
		return
	}

	var user models.User
	err = s.db.QueryRow(`
		SELECT id, username, email, first_name, last_name, disabled, created_at, updated_at
		FROM users WHERE id = $1`, id).
		Scan(&user.ID, &user.Username, &user.Email, &user.FirstName, &user.LastName,
			&user.Disabled, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		} else {
			SendErrorResponse(w, "Failed to fetch user", http.StatusInternalServerError, nil)
		}
		return
	}

	SendJSON(w, http.StatusOK, user)
}

// ListUsers retrieves all users
// @Summary List users
// @Tags users
// @Produce json
// @Success 200 {array} models.User
// @Router /users [get]
func (s *UserService) ListUsers(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Query(`
		SELECT id, username, email, first_name, last_name, disabled, created_at, updated_at
		FROM users ORDER BY id`)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch users", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Username, &user.Email, &user.FirstName, &user.LastName,
			&user.Disabled, &user.CreatedAt, &user.UpdatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch users", http.StatusInternalServerError, nil)
			return
		}
		users = append(users, user)
	}

	SendJSON(w, http.StatusOK, users)
}

// UpdateUser applies a partial update to the caller's own user record
// @Summary Update user (self only)
// @Tags users
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param request body models.UserPatch true "Fields to update"
// @Success 200 {object} models.User
// @Failure 403 {object} ErrorResponse "Not the authenticated user"
// @Failure 404 {object} ErrorResponse "User not found"
// @Router /users/{id} [put]
func (s *UserService) UpdateUser(w http.ResponseWriter, r *http.Request) {
	current, err := CurrentUser(s.db, r)
	if err != nil {
		SendAuthError(w, err)
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid user ID format", http.StatusBadRequest, nil)
		return
	}

	if current.ID != id {
		SendErrorResponse(w, "Unauthorized to update this user", http.StatusForbidden, nil)
		return
	}

	var patch models.UserPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&patch); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	username := current.Username
	if patch.Username != nil {
		username = *patch.Username
	}
	email := current.Email
	if patch.Email != nil {
		email = strings.ToLower(*patch.Email)
	}
	firstName := current.FirstName
	if patch.FirstName != nil {
		firstName = *patch.FirstName
	}
	lastName := current.LastName
	if patch.LastName != nil {
		lastName = *patch.LastName
	}
	disabled := current.Disabled
	if patch.Disabled != nil {
		disabled = *patch.Disabled
	}

	var user models.User
	if patch.Password != nil {
		digest, err := hashPassword(*patch.Password)
		if err != nil {
			SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
			return
		}
		err = s.db.QueryRow(`
			UPDATE users
			SET username = $1, email = $2, first_name = $3, last_name = $4, disabled = $5, password = $6, updated_at = NOW()
			WHERE id = $7
			RETURNING id, username, email, first_name, last_name, disabled, created_at, updated_at`,
			username, email, firstName, lastName, disabled, digest, id).
			Scan(&user.ID, &user.Username, &user.Email, &user.FirstName, &user.LastName,
				&user.Disabled, &user.CreatedAt, &user.UpdatedAt)
		if err != nil {
			SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
			return
		}
	} else {
		err = s.db.QueryRow(`
			UPDATE users
			SET username = $1, email = $2, first_name = $3, last_name = $4, disabled = $5, updated_at = NOW()
			WHERE id = $6
			RETURNING id, username, email, first_name, last_name, disabled, created_at, updated_at`,
			username, email, firstName, lastName, disabled, id).
			Scan(&user.ID, &user.Username, &user.Email, &user.FirstName, &user.LastName,
				&user.Disabled, &user.CreatedAt, &user.UpdatedAt)
		if err != nil {
			SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
			return
		}
	}

	log.Printf("[USER] User %d updated", id)
	SendJSON(w, http.StatusOK, user)
}

// DeleteUser removes a user and everything they own
// @Summary Delete user
// @Description Delete a user together with their accounts, categories and transactions
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} map[string]string "User deleted"
// @Failure 404 {object} ErrorResponse "User not found"
// @Router /users/{id} [delete]
func (s *UserService) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid user ID format", http.StatusBadRequest, nil)
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		SendErrorResponse(w, "Failed to delete user", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	// Owned rows go with the user so no orphaned balances survive.
	if _, err := tx.Exec(`DELETE FROM transactions WHERE user_id = $1`, id); err != nil {
		SendErrorResponse(w, "Failed to delete user", http.StatusInternalServerError, nil)
		return
	}
	if _, err := tx.Exec(`DELETE FROM categories WHERE user_id = $1`, id); err != nil {
		SendErrorResponse(w, "Failed to delete user", http.StatusInternalServerError, nil)
		return
	}
	if _, err := tx.Exec(`DELETE FROM accounts WHERE user_id = $1`, id); err != nil {
		SendErrorResponse(w, "Failed to delete user", http.StatusInternalServerError, nil)
		return
	}

	result, err := tx.Exec(`DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		SendErrorResponse(w, "Failed to delete user", http.StatusInternalServerError, nil)
		return
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		return
	}

	if err := tx.Commit(); err != nil {
		SendErrorResponse(w, "Failed to delete user", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[USER] User %d deleted with owned records", id)
	SendJSON(w, http.StatusOK, map[string]string{"message": "User successfully deleted"})
}
