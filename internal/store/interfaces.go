package store

import (
	"context"

	"github.com/docuvault/docuvault/internal/models"
)

// DocumentStore provides the document fields the pipeline reads and writes.
// Dashboard CRUD beyond these operations lives elsewhere.
type DocumentStore interface {
	// GetDocument retrieves a document by ID. Returns ErrNotFound if missing.
	GetDocument(ctx context.Context, id string) (*models.Document, error)

	// CreateDocument creates a document under doc.ID.
	// Returns ErrAlreadyExists if a document with that ID exists, which is how
	// redelivered upload events are deduplicated.
	CreateDocument(ctx context.Context, doc *models.Document) error

	// SetDocumentStatus writes the lifecycle status.
	SetDocumentStatus(ctx context.Context, id, status string) error

	// SetDocumentPageCount records a page count learned from the extraction
	// service.
	SetDocumentPageCount(ctx context.Context, id string, pageCount int) error

	// MarkDocumentCompleted writes extraction output and flips the document to
	// completed. skipped/embedErr record per-chunk embedding failures.
	MarkDocumentCompleted(ctx context.Context, id, text string, fields map[string]string, skipped int, embedErr string) error

	// MarkDocumentError flips the document to error with a human-readable
	// message for the dashboard.
	MarkDocumentError(ctx context.Context, id, message string) error

	// ListCompletedWithMetadata returns completed documents carrying at least
	// one business-metadata field. Used by the bulk metadata repair.
	ListCompletedWithMetadata(ctx context.Context) ([]*models.Document, error)
}

// JobStore provides job persistence and the conditional state transitions the
// whole pipeline arbitrates through. Transitions guarded by an expected
// current state report a lost race by returning false, never an error.
type JobStore interface {
	// CreateJob creates a job under job.ID.
	CreateJob(ctx context.Context, job *models.DocumentJob) error

	// GetJob retrieves a job by ID. Returns ErrNotFound if missing.
	GetJob(ctx context.Context, id string) (*models.DocumentJob, error)

	// ListQueuedJobs returns up to limit jobs in the queued state.
	ListQueuedJobs(ctx context.Context, limit int) ([]*models.DocumentJob, error)

	// ListProcessingBatchJobs returns processing jobs with a recorded batch
	// operation handle.
	ListProcessingBatchJobs(ctx context.Context) ([]*models.DocumentJob, error)

	// ClaimJob transitions queued -> processing, stamps StartedAt and records
	// the processing method the router chose for this attempt.
	// Returns false if the job was not queued (claimed by an overlapping tick).
	ClaimJob(ctx context.Context, id, method string) (bool, error)

	// RequeueJob transitions processing -> queued for a retry, recording the
	// attempt count and error, and clearing any batch operation handle so a
	// later tick resubmits from scratch.
	RequeueJob(ctx context.Context, id string, attempts int, errMsg string) (bool, error)

	// CompleteJob transitions processing -> completed and stamps CompletedAt.
	// Returns false if the job was no longer processing, which makes a
	// concurrent reconciliation of the same operation a no-op.
	CompleteJob(ctx context.Context, id string) (bool, error)

	// FailJob transitions processing -> failed terminally.
	FailJob(ctx context.Context, id string, attempts int, errMsg string) (bool, error)

	// RecordBatchSubmission persists the operation handle, artifact locations
	// and processor variant of a successful batch submission. The job stays
	// processing; recording the handle is what marks the submission in flight.
	RecordBatchSubmission(ctx context.Context, id, operationID, inputURI, outputPrefix, processor string) error

	// RecordOperationStatus stores the raw state reported by the extraction
	// service for a still-running operation.
	RecordOperationStatus(ctx context.Context, id, state string) error

	// RecordReconcileFailure bumps the attempt counter while keeping the job
	// processing, so reconciliation of a completed operation is retried from
	// the same output without resubmitting.
	RecordReconcileFailure(ctx context.Context, id string, attempts int, errMsg string) error
}

// EmbeddingStore persists indexed chunks.
type EmbeddingStore interface {
	// SaveEmbeddings upserts rows keyed by vector key, so re-running a
	// reconciliation overwrites instead of duplicating.
	SaveEmbeddings(ctx context.Context, embeddings []*models.DocumentEmbedding) error

	// DeleteEmbeddings removes all of a document's rows. Reconciliation calls
	// this before saving so a retry that produces fewer chunks leaves no
	// stale high-index rows behind.
	DeleteEmbeddings(ctx context.Context, documentID string) error

	// GetEmbeddings returns a document's embeddings ordered by chunk index.
	GetEmbeddings(ctx context.Context, documentID string) ([]*models.DocumentEmbedding, error)
}
