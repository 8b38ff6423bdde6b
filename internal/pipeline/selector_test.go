package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/docuvault/docuvault/internal/models"
)

func TestKeywordSelector(t *testing.T) {
	selector := KeywordSelector{}

	t.Run("form-like filenames select the form parser", func(t *testing.T) {
		assert.Equal(t, models.ProcessorFormParser, selector.Select("w9-form-acme.pdf"))
		assert.Equal(t, models.ProcessorFormParser, selector.Select("Invoice_2024_031.pdf"))
		assert.Equal(t, models.ProcessorFormParser, selector.Select("vendor-application.pdf"))
	})

	t.Run("narrative filenames select OCR", func(t *testing.T) {
		assert.Equal(t, models.ProcessorOCR, selector.Select("master-services-agreement.pdf"))
		assert.Equal(t, models.ProcessorOCR, selector.Select("Quarterly_Report.pdf"))
	})

	t.Run("OCR is the fallback", func(t *testing.T) {
		assert.Equal(t, models.ProcessorOCR, selector.Select("scan0001.pdf"))
	})

	t.Run("matching is case-insensitive", func(t *testing.T) {
		assert.Equal(t, models.ProcessorFormParser, selector.Select("INVOICE.PDF"))
	})
}
