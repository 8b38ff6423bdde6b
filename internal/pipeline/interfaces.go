package pipeline

import (
	"context"

	"github.com/docuvault/docuvault/internal/models"
)

// Extractor is the document-extraction service. A synchronous call returns
// text and fields immediately; a batch submission returns an operation handle
// that is polled across scheduler ticks.
type Extractor interface {
	Process(ctx context.Context, data []byte, processor string) (*models.ExtractionResult, error)
	SubmitBatch(ctx context.Context, inputURI, outputPrefix, processor string) (operationID string, err error)
	PollBatch(ctx context.Context, operationID string) (*models.BatchStatus, error)
	FetchBatchResult(ctx context.Context, outputPrefix string) (*models.ExtractionResult, error)
}

// Embedder generates a vector embedding for one chunk of text.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the external similarity-search store. Keys are deterministic
// per (document, chunk), so an upsert overwrites rather than duplicates.
// Metadata is flat key-value; implementations must never write empty values.
type VectorIndex interface {
	Upsert(ctx context.Context, key string, vector []float32, metadata map[string]string) error
}

// ObjectStore is the object-storage collaborator holding uploaded documents
// and the per-document batch artifacts.
type ObjectStore interface {
	Read(ctx context.Context, bucket, object string) ([]byte, error)
	Write(ctx context.Context, bucket, object string, data []byte) error
	DeletePrefix(ctx context.Context, bucket, prefix string) error
}
