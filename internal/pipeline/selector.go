package pipeline

import (
	"strings"

	"github.com/docuvault/docuvault/internal/models"
)

// ProcessorSelector chooses the extraction processor variant for a document.
// The default is a filename-keyword heuristic; it is deliberately pluggable
// because the heuristic is approximate and may be replaced without touching
// the pipeline's state machine.
type ProcessorSelector interface {
	Select(filename string) string
}

// KeywordSelector selects the form parser for filenames that look like
// structured forms and general OCR for narrative documents. OCR is the
// default when nothing matches.
type KeywordSelector struct{}

var formKeywords = []string{
	"form", "application", "questionnaire", "invoice", "w-9", "w9", "certificate",
}

var narrativeKeywords = []string{
	"agreement", "contract", "disclosure", "amendment", "report", "statement", "memo",
}

func (KeywordSelector) Select(filename string) string {
	name := strings.ToLower(filename)
	for _, kw := range formKeywords {
		if strings.Contains(name, kw) {
			return models.ProcessorFormParser
		}
	}
	for _, kw := range narrativeKeywords {
		if strings.Contains(name, kw) {
			return models.ProcessorOCR
		}
	}
	return models.ProcessorOCR
}
