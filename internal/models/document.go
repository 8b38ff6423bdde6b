package models

import (
	"fmt"
	"time"
)

// Document lifecycle statuses. A document only moves forward through these,
// except that any state may drop to StatusError.
const (
	DocStatusUploading  = "uploading"
	DocStatusQueued     = "queued"
	DocStatusProcessing = "processing"
	DocStatusCompleted  = "completed"
	DocStatusError      = "error"
)

// DocumentJob statuses.
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Processing methods chosen by the extraction router.
const (
	MethodSync  = "sync"
	MethodBatch = "batch"
)

// Extraction processor variants.
const (
	ProcessorFormParser = "form_parser"
	ProcessorOCR        = "ocr"
)

// Document is the master record for one uploaded file in Firestore.
// BusinessMetadata is an open-ended mapping of attributes supplied by the
// dashboard (counterparty, jurisdiction, category, ...); new keys may appear
// at any time, so nothing here enumerates them.
type Document struct {
	ID                string            `firestore:"-"`
	Owner             string            `firestore:"owner,omitempty"`
	OriginalFilename  string            `firestore:"originalFilename,omitempty"`
	StorageBucket     string            `firestore:"storageBucket,omitempty"`
	StorageObject     string            `firestore:"storageObject,omitempty"`
	ByteSize          int64             `firestore:"byteSize,omitempty"`
	PageCount         int               `firestore:"pageCount,omitempty"`
	Status            string            `firestore:"status,omitempty"`
	ExtractedText     string            `firestore:"extractedText,omitempty"`
	ExtractedFields   map[string]string `firestore:"extractedFields,omitempty"`
	BusinessMetadata  map[string]string `firestore:"businessMetadata,omitempty"`
	EmbeddingsSkipped int               `firestore:"embeddingsSkipped,omitempty"`
	EmbeddingsError   string            `firestore:"embeddingsError,omitempty"`
	ErrorDetails      string            `firestore:"errorDetails,omitempty"`
	CreatedAt         time.Time         `firestore:"createdAt,omitempty"`
	UpdatedAt         time.Time         `firestore:"updatedAt,omitempty"`
}

// DocumentJob tracks one processing attempt for a document.
// BatchOperationID is set if and only if the job was routed to batch and the
// submission was durably recorded; a job without a handle is never considered
// in flight.
type DocumentJob struct {
	ID               string    `firestore:"-"`
	DocumentID       string    `firestore:"documentId,omitempty"`
	Status           string    `firestore:"status,omitempty"`
	ProcessingMethod string    `firestore:"processingMethod,omitempty"`
	Attempts         int       `firestore:"attempts"`
	MaxAttempts      int       `firestore:"maxAttempts,omitempty"`
	BatchOperationID string    `firestore:"batchOperationId,omitempty"`
	InputURI         string    `firestore:"inputUri,omitempty"`
	OutputPrefix     string    `firestore:"outputPrefix,omitempty"`
	Processor        string    `firestore:"processor,omitempty"`
	OperationStatus  string    `firestore:"operationStatus,omitempty"`
	ErrorMessage     string    `firestore:"errorMessage,omitempty"`
	CreatedAt        time.Time `firestore:"createdAt,omitempty"`
	StartedAt        time.Time `firestore:"startedAt,omitempty"`
	CompletedAt      time.Time `firestore:"completedAt,omitempty"`
}

// DocumentEmbedding is one indexed text chunk. The Firestore document ID is
// the vector key, so re-indexing a chunk overwrites the prior row.
type DocumentEmbedding struct {
	DocumentID string    `firestore:"documentId,omitempty"`
	VectorKey  string    `firestore:"vectorKey,omitempty"`
	Vector     []float32 `firestore:"vector,omitempty"`
	ChunkText  string    `firestore:"chunkText,omitempty"`
	ChunkIndex int       `firestore:"chunkIndex"`
	PageNumber int       `firestore:"pageNumber,omitempty"`
}

// VectorKey returns the deterministic vector-index key for a chunk of a
// document. Determinism is what makes re-indexing overwrite instead of
// duplicate.
func VectorKey(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s-%04d", documentID, chunkIndex)
}
