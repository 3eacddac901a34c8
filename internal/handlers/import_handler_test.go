package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/financii/backend/internal/middleware"
	"github.com/financii/backend/internal/services"
)

func multipartCSV(t *testing.T, field, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, "export.csv")
	assert.NoError(t, err)
	_, err = part.Write([]byte(content))
	assert.NoError(t, err)
	assert.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func expectUser(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("SELECT id, username, email, first_name, last_name, disabled, created_at, updated_at FROM users WHERE username = \\$1").
		WithArgs("vmanrique").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "first_name", "last_name", "disabled", "created_at", "updated_at"}).
			AddRow(7, "vmanrique", "v@example.com", "Victor", "Manrique", false, time.Now(), nil))
}

func TestImportHandler_UploadCSV(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	handler := NewImportHandler(db, services.NewImportService(), 10_485_760)

	t.Run("upload returns draft rows", func(t *testing.T) {
		expectUser(mock)

		body, contentType := multipartCSV(t, "file",
			"Description,Date,Amount,Currency\nCoffee,\"02 Jan, 2024\",3.50,EUR\n")

		r := httptest.NewRequest("POST", "/file/upload-csv", body)
		r.Header.Set("Content-Type", contentType)
		r = r.WithContext(context.WithValue(r.Context(), middleware.CtxUsername, "vmanrique"))

		w := httptest.NewRecorder()
		handler.UploadCSV(w, r)

		assert.Equal(t, http.StatusOK, w.Code)

		var drafts []services.DraftTransaction
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &drafts))
		assert.Len(t, drafts, 1)
		assert.Equal(t, "Coffee", drafts[0].Description)
		assert.Equal(t, "3.50", drafts[0].Amount)
		assert.NotEmpty(t, drafts[0].DraftID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing file field", func(t *testing.T) {
		expectUser(mock)

		body, contentType := multipartCSV(t, "attachment", "Description\nCoffee\n")

		r := httptest.NewRequest("POST", "/file/upload-csv", body)
		r.Header.Set("Content-Type", contentType)
		r = r.WithContext(context.WithValue(r.Context(), middleware.CtxUsername, "vmanrique"))

		w := httptest.NewRecorder()
		handler.UploadCSV(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Missing file field")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unauthenticated request rejected", func(t *testing.T) {
		body, contentType := multipartCSV(t, "file", "Description\nCoffee\n")

		r := httptest.NewRequest("POST", "/file/upload-csv", body)
		r.Header.Set("Content-Type", contentType)

		w := httptest.NewRecorder()
		handler.UploadCSV(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
