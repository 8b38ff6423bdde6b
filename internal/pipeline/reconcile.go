package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/docuvault/docuvault/internal/models"
)

// reconcile turns an extraction result into persisted state: chunked and
// embedded text, vector index entries, the completed document, and finally
// the conditional job completion. Everything before the job transition is
// idempotent (writes are keyed deterministically), so re-running after a
// partial failure or in an overlapping tick converges on the same state and
// only one invocation wins the completion.
func (s *Service) reconcile(ctx context.Context, logCtx *slog.Logger, job *models.DocumentJob, doc *models.Document, result *models.ExtractionResult) error {
	chunks, err := ChunkResult(result, s.config.ChunkSize, s.config.ChunkOverlap)
	if err != nil {
		return err
	}

	// Chunks whose embedding fails are skipped, not fatal; indices are
	// assigned after the filter so the stored sequence stays contiguous.
	var (
		embedded []*models.DocumentEmbedding
		skipped  int
		embedErr string
	)
	for _, chunk := range chunks {
		vector, err := s.embedder.EmbedText(ctx, chunk.Text)
		if err != nil {
			skipped++
			embedErr = err.Error()
			logCtx.Warn("Failed to embed chunk. Skipping.", "page", chunk.Page, "error", err)
			continue
		}
		index := len(embedded)
		embedded = append(embedded, &models.DocumentEmbedding{
			DocumentID: doc.ID,
			VectorKey:  models.VectorKey(doc.ID, index),
			Vector:     vector,
			ChunkText:  chunk.Text,
			ChunkIndex: index,
			PageNumber: chunk.Page,
		})
	}
	if len(chunks) > 0 && len(embedded) == 0 {
		return fmt.Errorf("all %d embedding requests failed, last error: %s", len(chunks), embedErr)
	}

	// A prior attempt may have persisted more rows than this one produces;
	// clearing first keeps the stored sequence exactly [0..N-1].
	if err := s.embeddings.DeleteEmbeddings(ctx, doc.ID); err != nil {
		return fmt.Errorf("failed to clear prior embeddings: %w", err)
	}

	if len(embedded) > 0 {
		if err := s.embeddings.SaveEmbeddings(ctx, embedded); err != nil {
			return fmt.Errorf("failed to save embeddings: %w", err)
		}
		for _, emb := range embedded {
			if err := s.index.Upsert(ctx, emb.VectorKey, emb.Vector, s.chunkMetadata(doc, emb)); err != nil {
				return fmt.Errorf("failed to upsert vector %s: %w", emb.VectorKey, err)
			}
		}
	}

	if err := s.documents.MarkDocumentCompleted(ctx, doc.ID, result.Text, result.Fields, skipped, embedErr); err != nil {
		return fmt.Errorf("failed to mark document completed: %w", err)
	}

	done, err := s.jobs.CompleteJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if !done {
		logCtx.Info("Job was already completed by an overlapping tick.")
		return nil
	}

	logCtx.Info("Document processed.", "chunks", len(embedded), "skippedChunks", skipped)
	s.cleanupArtifacts(ctx, logCtx, job, doc)
	return nil
}

// chunkMetadata builds the flat metadata attached to one vector. Business
// metadata rides along so index-side filters can use it; empty keys or values
// are dropped rather than written.
func (s *Service) chunkMetadata(doc *models.Document, emb *models.DocumentEmbedding) map[string]string {
	md := map[string]string{
		"document_id": doc.ID,
		"chunk_index": strconv.Itoa(emb.ChunkIndex),
		"chunk_text":  emb.ChunkText,
	}
	if emb.PageNumber > 0 {
		md["page_number"] = strconv.Itoa(emb.PageNumber)
	}
	for key, value := range doc.BusinessMetadata {
		if key == "" || value == "" {
			continue
		}
		md[key] = value
	}
	return md
}

// cleanupArtifacts removes the temporary batch input and output objects after
// a successful completion. Failures are logged and swallowed; an orphaned
// temporary object is acceptable, losing a processed document is not.
func (s *Service) cleanupArtifacts(ctx context.Context, logCtx *slog.Logger, job *models.DocumentJob, doc *models.Document) {
	if job.ProcessingMethod != models.MethodBatch && job.BatchOperationID == "" {
		return
	}
	for _, prefix := range []string{inputPrefix(doc.ID), outputPrefix(doc.ID)} {
		if err := s.objects.DeletePrefix(ctx, s.config.ArtifactBucket, prefix); err != nil {
			logCtx.Warn("Failed to delete temporary batch artifacts.", "prefix", prefix, "error", err)
		}
	}
}
