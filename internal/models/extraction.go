package models

// ExtractionResult is the normalized output of the extraction service,
// produced by either a synchronous call or a completed batch operation.
type ExtractionResult struct {
	Text      string
	Pages     []PageText
	Fields    map[string]string
	PageCount int
}

// PageText is the extracted text of a single page. Number is 1-based.
type PageText struct {
	Number int
	Text   string
}

// Batch operation states as reported by PollBatch.
const (
	BatchStateRunning   = "running"
	BatchStateSucceeded = "succeeded"
	BatchStateFailed    = "failed"
)

// BatchStatus is one observation of a long-running batch operation.
type BatchStatus struct {
	State   string
	Message string
}
