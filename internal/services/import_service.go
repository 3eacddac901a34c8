package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

const importDateLayout = "02 Jan, 2006"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DraftTransaction is a parsed CSV row awaiting user review. Drafts are
// never persisted and never touch account balances.
type DraftTransaction struct {
	DraftID     string  `json:"draftId"`
	Description string  `json:"description"`
	Date        *string `json:"date"`
	Amount      string  `json:"amount"`
	Currency    string  `json:"currency"`
	Status      string  `json:"status,omitempty"`
}

type ImportService struct{}

func NewImportService() *ImportService {
	return &ImportService{}
}

// ParseCSV reads a bank-export CSV and maps its rows to draft transactions.
// Expected columns: Description, Date, Amount, Currency and optionally
// Status. Unknown columns are ignored, missing ones come back empty.
func (s *ImportService) ParseCSV(userID int, r io.Reader) ([]DraftTransaction, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []DraftTransaction{}, nil
		}
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}

	drafts := []DraftTransaction{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}

		draft := DraftTransaction{
			DraftID:     uuid.NewString(),
			Description: field(record, columns, "Description"),
			Date:        normalizeDate(field(record, columns, "Date")),
			Amount:      field(record, columns, "Amount"),
			Currency:    field(record, columns, "Currency"),
			Status:      field(record, columns, "Status"),
		}
		drafts = append(drafts, draft)
	}

	log.Printf("[IMPORT] Parsed %d draft rows for user %d", len(drafts), userID)
	return drafts, nil
}

func field(record []string, columns map[string]int, name string) string {
	i, ok := columns[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// normalizeDate converts a bank-export date ("02 Jan, 2006") to RFC 3339.
// Rows with unparsable dates are still imported, just without one.
func normalizeDate(raw string) *string {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(importDateLayout, raw)
	if err != nil {
		return nil
	}
	normalized := t.UTC().Format(time.RFC3339)
	return &normalized
}
