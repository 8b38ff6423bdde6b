package models

// These structs define the JSON payloads for the HTTP entry points invoked by
// Cloud Scheduler and the dashboard.

// TickResponse summarizes the work performed by one pipeline tick.
type TickResponse struct {
	Claimed   int `json:"claimed"`
	Submitted int `json:"submitted"`
	Polled    int `json:"polled"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// RepairRequest is the input for the metadata-repair endpoint. An empty
// DocumentID requests a bulk run over all completed documents that carry
// business metadata.
type RepairRequest struct {
	DocumentID string `json:"documentId,omitempty"`
}

// RepairSummary reports the outcome of a metadata-repair run.
type RepairSummary struct {
	DocumentsProcessed int      `json:"documentsProcessed"`
	DocumentsFailed    int      `json:"documentsFailed"`
	VectorsUpserted    int      `json:"vectorsUpserted"`
	VectorsFailed      int      `json:"vectorsFailed"`
	Errors             []string `json:"errors,omitempty"`
}
