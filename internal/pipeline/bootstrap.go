package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/docuvault/docuvault/internal/gcp"
	"github.com/docuvault/docuvault/internal/store"
)

// NewFromEnv assembles the full pipeline from environment configuration.
// Called once per process from the function entry points.
func NewFromEnv(ctx context.Context) (*Service, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	artifactBucket := gcp.GetEnv("ARTIFACT_BUCKET", "")
	if artifactBucket == "" {
		return nil, fmt.Errorf("ARTIFACT_BUCKET environment variable must be set")
	}
	formProcessor := gcp.GetEnv("DOCAI_FORM_PROCESSOR", "")
	ocrProcessor := gcp.GetEnv("DOCAI_OCR_PROCESSOR", "")
	if formProcessor == "" || ocrProcessor == "" {
		return nil, fmt.Errorf("DOCAI_FORM_PROCESSOR and DOCAI_OCR_PROCESSOR environment variables must be set")
	}
	indexName := gcp.GetEnv("VECTOR_INDEX", "")
	if indexName == "" {
		return nil, fmt.Errorf("VECTOR_INDEX environment variable must be set")
	}

	config := Config{
		ArtifactBucket:  artifactBucket,
		ClaimLimit:      intEnv("CLAIM_LIMIT", 10),
		MaxAttempts:     intEnv("MAX_ATTEMPTS", 3),
		MaxPollDuration: durationEnv("MAX_POLL_DURATION", 6*time.Hour),
		ChunkSize:       intEnv("CHUNK_SIZE", 1500),
		ChunkOverlap:    intEnv("CHUNK_OVERLAP", 150),
	}

	fsClient, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	records := store.NewFirestoreStore(fsClient)

	objects, err := gcp.NewObjectStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	extractor, err := gcp.NewDocAIExtractor(ctx, objects, gcp.DocAIConfig{
		Location:      gcp.GetEnv("DOCAI_LOCATION", "us"),
		FormProcessor: formProcessor,
		OCRProcessor:  ocrProcessor,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction client: %w", err)
	}

	embedder, err := gcp.NewGenAIEmbedder(ctx, gcp.EmbedderConfig{
		ProjectID: projectID,
		Location:  gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		Model:     gcp.GetEnv("EMBED_MODEL", ""),
		Dimension: intEnv("EMBED_DIMENSION", 0),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	index, err := gcp.NewVertexVectorIndex(ctx, gcp.VectorIndexConfig{
		Location:  gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		IndexName: indexName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vector index client: %w", err)
	}

	return NewService(records, records, records, extractor, embedder, index, objects, KeywordSelector{}, config), nil
}

func intEnv(key string, fallback int) int {
	raw := gcp.GetEnv(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("Invalid integer environment variable. Using fallback.", "key", key, "value", raw, "fallback", fallback)
		return fallback
	}
	return n
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := gcp.GetEnv(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("Invalid duration environment variable. Using fallback.", "key", key, "value", raw, "fallback", fallback)
		return fallback
	}
	return d
}
