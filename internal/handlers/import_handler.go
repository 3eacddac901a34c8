package handlers

import (
	"database/sql"
	"net/http"

	"github.com/financii/backend/internal/services"
)

type ImportHandler struct {
	db             *sql.DB
	service        *services.ImportService
	maxUploadBytes int64
}

func NewImportHandler(db *sql.DB, service *services.ImportService, maxUploadBytes int64) *ImportHandler {
	return &ImportHandler{
		db:             db,
		service:        service,
		maxUploadBytes: maxUploadBytes,
	}
}

// UploadCSV parses an uploaded bank-export CSV into draft transactions
// @Summary Upload transactions CSV
// @Description Parse a CSV export into draft rows for review. Nothing is persisted.
// @Tags File
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "CSV file"
// @Success 200 {array} services.DraftTransaction
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /file/upload-csv [post]
func (h *ImportHandler) UploadCSV(w http.ResponseWriter, r *http.Request) {
	user, err := services.CurrentUser(h.db, r)
	if err != nil {
		services.SendAuthError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		services.SendErrorResponse(w, "Invalid multipart form", http.StatusBadRequest, nil)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		services.SendErrorResponse(w, "Missing file field", http.StatusBadRequest, nil)
		return
	}
	defer file.Close()

	drafts, err := h.service.ParseCSV(user.ID, file)
	if err != nil {
		services.SendErrorResponse(w, "Failed to parse CSV file", http.StatusBadRequest, nil)
		return
	}

	services.SendJSON(w, http.StatusOK, drafts)
}
