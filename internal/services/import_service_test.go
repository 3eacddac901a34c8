package services

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestImportService_ParseCSV(t *testing.T) {
	service := NewImportService()

	t.Run("header-mapped rows become drafts", func(t *testing.T) {
		input := "Description,Date,Amount,Currency\n" +
			"Coffee,\"02 Jan, 2024\",3.50,EUR\n" +
			"Salary,\"31 Jan, 2024\",2500,EUR\n"

		drafts, err := service.ParseCSV(7, strings.NewReader(input))
		assert.NoError(t, err)
		assert.Len(t, drafts, 2)

		assert.Equal(t, "Coffee", drafts[0].Description)
		assert.Equal(t, "3.50", drafts[0].Amount)
		assert.Equal(t, "EUR", drafts[0].Currency)
		assert.NotNil(t, drafts[0].Date)
		assert.Equal(t, "2024-01-02T00:00:00Z", *drafts[0].Date)

		assert.Equal(t, "Salary", drafts[1].Description)
		assert.Equal(t, "2024-01-31T00:00:00Z", *drafts[1].Date)

		_, err = uuid.Parse(drafts[0].DraftID)
		assert.NoError(t, err)
		assert.NotEqual(t, drafts[0].DraftID, drafts[1].DraftID)
	})

	t.Run("UTF-8 BOM is stripped from the header", func(t *testing.T) {
		input := "\xEF\xBB\xBFDescription,Date,Amount,Currency\n" +
			"Coffee,\"02 Jan, 2024\",3.50,EUR\n"

		drafts, err := service.ParseCSV(7, strings.NewReader(input))
		assert.NoError(t, err)
		assert.Len(t, drafts, 1)
		assert.Equal(t, "Coffee", drafts[0].Description)
	})

	t.Run("unparsable date leaves the row with a null date", func(t *testing.T) {
		input := "Description,Date,Amount,Currency\n" +
			"Mystery,yesterday,9.99,EUR\n"

		drafts, err := service.ParseCSV(7, strings.NewReader(input))
		assert.NoError(t, err)
		assert.Len(t, drafts, 1)
		assert.Nil(t, drafts[0].Date)
		assert.Equal(t, "9.99", drafts[0].Amount)
	})

	t.Run("optional status column carried through", func(t *testing.T) {
		input := "Description,Date,Amount,Currency,Status\n" +
			"Coffee,\"02 Jan, 2024\",3.50,EUR,settled\n"

		drafts, err := service.ParseCSV(7, strings.NewReader(input))
		assert.NoError(t, err)
		assert.Equal(t, "settled", drafts[0].Status)
	})

	t.Run("missing columns come back empty", func(t *testing.T) {
		input := "Description,Amount\n" +
			"Coffee,3.50\n"

		drafts, err := service.ParseCSV(7, strings.NewReader(input))
		assert.NoError(t, err)
		assert.Len(t, drafts, 1)
		assert.Nil(t, drafts[0].Date)
		assert.Empty(t, drafts[0].Currency)
	})

	t.Run("empty file yields an empty slice", func(t *testing.T) {
		drafts, err := service.ParseCSV(7, strings.NewReader(""))
		assert.NoError(t, err)
		assert.Empty(t, drafts)
	})

	t.Run("header only yields an empty slice", func(t *testing.T) {
		drafts, err := service.ParseCSV(7, strings.NewReader("Description,Date,Amount,Currency\n"))
		assert.NoError(t, err)
		assert.Empty(t, drafts)
	})
}
