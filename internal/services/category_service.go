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

type CategoryService struct {
	db        *sql.DB
	validator *ValidationHelper
}

// CategoryRequest represents the category creation payload
// @Description Category creation structure
type CategoryRequest struct {
	Title string `json:"title" validate:"required" example:"Groceries"`
}

func NewCategoryService(db *sql.DB) *CategoryService {
	return &CategoryService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// CreateCategory creates a category for the caller
// @Summary Create category
// @Tags categories
// @Accept json
// @Produce json
// @Param request body CategoryRequest true "Category data"
// @Success 201 {object} models.Category
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Router /categories [post]
func (s *CategoryService) CreateCategory(w http.ResponseWriter, r *http.Request) {
	user, err := CurrentUser(s.db, r)
	if err != nil {
		SendAuthError(w, err)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req CategoryRequest
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

	var category models.Category
	err = s.db.QueryRow(`
		INSERT INTO categories (user_id, title)
		VALUES ($1, $2)
		RETURNING id, user_id, title, created_at, updated_at`,
		user.ID, req.Title).
		Scan(&category.ID, &category.UserID, &category.Title, &category.CreatedAt, &category.UpdatedAt)
	if err != nil {
		log.Printf("[CATEGORY] Failed to create category for user %d: %v", user.ID, err)
		SendErrorResponse(w, "Failed to create category", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[CATEGORY] Category %d created for user %d", category.ID, user.ID)
	SendJSON(w, http.StatusCreated, category)
}

// ListCategories retrieves the caller's categories
// @Summary List categories
// @Tags categories
// @Produce json
// @Param startDate query string false "Range start (ISO-8601)"
// @Param endDate query string false "Range end (ISO-8601, inclusive)"
// @Success 200 {array} models.Category
// @Failure 400 {object} ErrorResponse "Invalid date format"
// @Router /categories [get]
func (s *CategoryService) ListCategories(w http.ResponseWriter, r *http.Request) {
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

	query := `
		SELECT id, user_id, title, created_at, updated_at
		FROM categories WHERE user_id = $1`
	args := []interface{}{user.ID}
	if ranged {
		query += ` AND created_at >= $2 AND created_at < $3`
		args = append(args, start, end)
	}
	query += ` ORDER BY id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch categories", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		var category models.Category
		if err := rows.Scan(&category.ID, &category.UserID, &category.Title,
			&category.CreatedAt, &category.UpdatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch categories", http.StatusInternalServerError, nil)
			return
		}
		categories = append(categories, category)
	}

	SendJSON(w, http.StatusOK, categories)
}

// GetCategory retrieves one of the caller's categories
// @Summary Get category by ID
// @Tags categories
// @Produce json
// @Param id path int true "Category ID"
// @Success 200 {object} models.Category
// @Failure 404 {object} ErrorResponse "Category not found"
// @Router /categories/{id} [get]
func (s *CategoryService) GetCategory(w http.ResponseWriter, r *http.Request) {
	user, err := CurrentUser(s.db, r)
	if err != nil {
		SendAuthError(w, err)
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid category ID format", http.StatusBadRequest, nil)
		return
	}

	var category models.Category
	err = s.db.QueryRow(`
		SELECT id, user_id, title, created_at, updated_at
		FROM categories WHERE id = $1 AND user_id = $2`, id, user.ID).
		Scan(&category.ID, &category.UserID, &category.Title, &category.CreatedAt, &category.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Category not found", http.StatusNotFound, nil)
		} else {
			SendErrorResponse(w, "Failed to fetch category", http.StatusInternalServerError, nil)
		}
		return
	}

	SendJSON(w, http.StatusOK, category)
}

// UpdateCategory applies a partial update to a category
// @Summary Update category
// @Tags categories
// @Accept json
// @Produce json
// @Param id path int true "Category ID"
// @Param request body models.CategoryPatch true "Fields to update"
// @Success 200 {object} models.Category
// @Failure 404 {object} ErrorResponse "Category not found"
// @Router /categories/{id} [put]
func (s *CategoryService) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	user, err := CurrentUser(s.db, r)
	if err != nil {
		SendAuthError(w, err)
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid category ID format", http.StatusBadRequest, nil)
		return
	}

	var patch models.CategoryPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&patch); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var existing models.Category
	err = s.db.QueryRow(`
		SELECT id, user_id, title, created_at, updated_at
		FROM categories WHERE id = $1 AND user_id = $2`, id, user.ID).
		Scan(&existing.ID, &existing.UserID, &existing.Title, &existing.CreatedAt, &existing.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Category not found", http.StatusNotFound, nil)
		} else {
			SendErrorResponse(w, "Failed to fetch category", http.StatusInternalServerError, nil)
		}
		return
	}

	title := existing.Title
	if patch.Title != nil {
		title = *patch.Title
	}

	var category models.Category
	err = s.db.QueryRow(`
		UPDATE categories SET title = $1, updated_at = NOW()
		WHERE id = $2 AND user_id = $3
		RETURNING id, user_id, title, created_at, updated_at`,
		title, id, user.ID).
		Scan(&category.ID, &category.UserID, &category.Title, &category.CreatedAt, &category.UpdatedAt)
	if err != nil {
		SendErrorResponse(w, "Failed to update category", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[CATEGORY] Category %d updated for user %d", id, user.ID)
	SendJSON(w, http.StatusOK, category)
}

// DeleteCategory removes a category with no referencing transactions
// @Summary Delete category
// @Description A category still referenced by transactions cannot be deleted
// @Tags categories
// @Produce json
// @Param id path int true "Category ID"
// @Success 200 {object} map[string]string "Category deleted"
// @Failure 404 {object} ErrorResponse "Category not found"
// @Failure 409 {object} ErrorResponse "Category still referenced"
// @Router /categories/{id} [delete]
func (s *CategoryService) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	user, err := CurrentUser(s.db, r)
	if err != nil {
		SendAuthError(w, err)
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid category ID format", http.StatusBadRequest, nil)
		return
	}

	// Referential-integrity guard: the store has no foreign key from
	// transactions to categories, so the check lives here.
	var referencing int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM transactions WHERE category_id = $1`, id).Scan(&referencing); err != nil {
		SendErrorResponse(w, "Failed to delete category", http.StatusInternalServerError, nil)
		return
	}
	if referencing > 0 {
		log.Printf("[CATEGORY] Delete blocked for category %d: %d referencing transactions", id, referencing)
		SendErrorResponse(w, "Cannot delete category with associated transactions. Please reassign or remove the transactions first.", http.StatusConflict, nil)
		return
	}

	result, err := s.db.Exec(`DELETE FROM categories WHERE id = $1 AND user_id = $2`, id, user.ID)
	if err != nil {
		SendErrorResponse(w, "Failed to delete category", http.StatusInternalServerError, nil)
		return
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		SendErrorResponse(w, "Category not found", http.StatusNotFound, nil)
		return
	}

	log.Printf("[CATEGORY] Category %d deleted for user %d", id, user.ID)
	SendJSON(w, http.StatusOK, map[string]string{"message": "Category deleted"})
}
