package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docuvault/docuvault/internal/models"
)

// submitBatch stages the source document into the artifact bucket and starts
// a batch extraction operation. The job only counts as in flight once the
// operation handle is durably recorded; any failure before that point
// requeues the job, and the deterministic artifact paths make the retried
// submission overwrite its own leftovers. Returns (submitted, failed).
func (s *Service) submitBatch(ctx context.Context, logCtx *slog.Logger, job *models.DocumentJob, doc *models.Document) (bool, bool) {
	data, err := s.objects.Read(ctx, doc.StorageBucket, doc.StorageObject)
	if err != nil {
		return false, s.failOrRequeue(ctx, logCtx, job, fmt.Errorf("failed to read source document: %w", err))
	}

	if err := s.objects.Write(ctx, s.config.ArtifactBucket, inputObject(doc.ID), data); err != nil {
		return false, s.failOrRequeue(ctx, logCtx, job, fmt.Errorf("failed to stage batch input: %w", err))
	}

	inputURI := s.inputURI(doc.ID)
	outputURI := s.outputURI(doc.ID)
	processor := s.selector.Select(doc.OriginalFilename)
	logCtx.Info("Submitting batch extraction.", "processor", processor, "inputUri", inputURI)

	operationID, err := s.extractor.SubmitBatch(ctx, inputURI, outputURI, processor)
	if err != nil {
		return false, s.failOrRequeue(ctx, logCtx, job, fmt.Errorf("failed to submit batch operation: %w", err))
	}

	if err := s.jobs.RecordBatchSubmission(ctx, job.ID, operationID, inputURI, outputURI, processor); err != nil {
		// The operation is running but its handle is lost, so the job must go
		// around again and resubmit from scratch.
		return false, s.failOrRequeue(ctx, logCtx, job, fmt.Errorf("failed to record batch operation handle: %w", err))
	}

	logCtx.Info("Batch operation submitted.", "operationId", operationID)
	return true, false
}
