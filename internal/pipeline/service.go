package pipeline

import (
	"fmt"
	"time"

	"github.com/docuvault/docuvault/internal/store"
)

// Config holds the pipeline's tuning knobs.
type Config struct {
	// ArtifactBucket receives the temporary input/ and output/ objects of
	// batch operations.
	ArtifactBucket string

	// ClaimLimit bounds how many queued jobs one tick claims.
	ClaimLimit int

	// MaxAttempts is the default attempt budget stamped onto new jobs.
	MaxAttempts int

	// MaxPollDuration bounds how long a batch job may stay processing before
	// it is forced to failed.
	MaxPollDuration time.Duration

	// Chunking policy for extracted text.
	ChunkSize    int
	ChunkOverlap int
}

func (c Config) withDefaults() Config {
	if c.ClaimLimit <= 0 {
		c.ClaimLimit = 10
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.MaxPollDuration <= 0 {
		c.MaxPollDuration = 6 * time.Hour
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1500
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = 0
	}
	return c
}

// Service is the document-processing pipeline. It owns no in-memory job
// state: every invocation claims work through conditional updates against the
// job store, so overlapping scheduler ticks and multiple processes are safe.
type Service struct {
	documents  store.DocumentStore
	jobs       store.JobStore
	embeddings store.EmbeddingStore
	extractor  Extractor
	embedder   Embedder
	index      VectorIndex
	objects    ObjectStore
	selector   ProcessorSelector
	config     Config
}

// NewService wires the pipeline from its collaborators. A nil selector falls
// back to the filename-keyword heuristic.
func NewService(
	documents store.DocumentStore,
	jobs store.JobStore,
	embeddings store.EmbeddingStore,
	extractor Extractor,
	embedder Embedder,
	index VectorIndex,
	objects ObjectStore,
	selector ProcessorSelector,
	config Config,
) *Service {
	if selector == nil {
		selector = KeywordSelector{}
	}
	return &Service{
		documents:  documents,
		jobs:       jobs,
		embeddings: embeddings,
		extractor:  extractor,
		embedder:   embedder,
		index:      index,
		objects:    objects,
		selector:   selector,
		config:     config.withDefaults(),
	}
}

// Artifact locations are deterministic per document id, so retried
// submissions overwrite rather than duplicate.

func inputObject(documentID string) string {
	return fmt.Sprintf("input/%s/source.pdf", documentID)
}

func inputPrefix(documentID string) string {
	return fmt.Sprintf("input/%s/", documentID)
}

func outputPrefix(documentID string) string {
	return fmt.Sprintf("output/%s/", documentID)
}

func (s *Service) inputURI(documentID string) string {
	return fmt.Sprintf("gs://%s/%s", s.config.ArtifactBucket, inputObject(documentID))
}

func (s *Service) outputURI(documentID string) string {
	return fmt.Sprintf("gs://%s/%s", s.config.ArtifactBucket, outputPrefix(documentID))
}
