package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/docuvault/docuvault/internal/models"
)

// pollJob checks one in-flight batch operation and advances the job. A poll
// RPC failure costs nothing: the operation keeps running server-side and the
// next tick polls again. An operation-reported failure or an expired polling
// deadline consumes an attempt. Returns (completed, failed).
func (s *Service) pollJob(ctx context.Context, logCtx *slog.Logger, job *models.DocumentJob) (bool, bool) {
	doc, err := s.documents.GetDocument(ctx, job.DocumentID)
	if err != nil {
		logCtx.Error("Failed to load document for in-flight job.", "error", err)
		return false, false
	}

	if !job.StartedAt.IsZero() && time.Since(job.StartedAt) > s.config.MaxPollDuration {
		cause := fmt.Errorf("batch operation exceeded the maximum polling duration of %s", s.config.MaxPollDuration)
		logCtx.Error("Abandoning batch operation.", "startedAt", job.StartedAt, "error", cause)
		if _, err := s.jobs.FailJob(ctx, job.ID, job.Attempts+1, cause.Error()); err != nil {
			logCtx.Error("Failed to record terminal job failure.", "error", err)
		}
		if err := s.documents.MarkDocumentError(ctx, doc.ID, cause.Error()); err != nil {
			logCtx.Error("Failed to mark document errored.", "error", err)
		}
		return false, true
	}

	status, err := s.extractor.PollBatch(ctx, job.BatchOperationID)
	if err != nil {
		logCtx.Warn("Failed to poll batch operation. Will retry next tick.", "error", err)
		return false, false
	}

	switch status.State {
	case models.BatchStateRunning:
		logCtx.Info("Batch operation still running.", "operationStatus", status.Message)
		if err := s.jobs.RecordOperationStatus(ctx, job.ID, status.Message); err != nil {
			logCtx.Warn("Failed to record operation status.", "error", err)
		}
		return false, false

	case models.BatchStateFailed:
		// Requeueing clears the operation handle, so a retry submits a fresh
		// operation rather than re-polling a dead one.
		return false, s.failOrRequeue(ctx, logCtx, job, fmt.Errorf("extraction service reported operation failure: %s", status.Message))

	default:
		result, err := s.extractor.FetchBatchResult(ctx, job.OutputPrefix)
		if err != nil {
			return false, s.retryReconcile(ctx, logCtx, job, fmt.Errorf("failed to fetch batch output: %w", err))
		}
		if result.PageCount > 0 && result.PageCount != doc.PageCount {
			doc.PageCount = result.PageCount
			if err := s.documents.SetDocumentPageCount(ctx, doc.ID, result.PageCount); err != nil {
				logCtx.Warn("Failed to record corrected page count.", "error", err)
			}
		}
		if err := s.reconcile(ctx, logCtx, job, doc, result); err != nil {
			return false, s.retryReconcile(ctx, logCtx, job, fmt.Errorf("failed to reconcile batch result: %w", err))
		}
		return true, false
	}
}

// retryReconcile handles a failure after the batch operation itself
// succeeded. The output in the artifact bucket is still valid, so the job
// stays processing and the next tick retries reconciliation from the same
// output instead of resubmitting the extraction. Returns true when the
// attempt budget ran out and the job went terminal.
func (s *Service) retryReconcile(ctx context.Context, logCtx *slog.Logger, job *models.DocumentJob, cause error) bool {
	attempts := job.Attempts + 1

	if attempts >= job.MaxAttempts {
		logCtx.Error("Reconciliation failed permanently.", "attempts", attempts, "error", cause)
		if _, err := s.jobs.FailJob(ctx, job.ID, attempts, cause.Error()); err != nil {
			logCtx.Error("Failed to record terminal job failure.", "error", err)
		}
		if err := s.documents.MarkDocumentError(ctx, job.DocumentID, cause.Error()); err != nil {
			logCtx.Error("Failed to mark document errored.", "error", err)
		}
		return true
	}

	logCtx.Warn("Reconciliation failed. Will retry from the same output.", "attempts", attempts, "error", cause)
	if err := s.jobs.RecordReconcileFailure(ctx, job.ID, attempts, cause.Error()); err != nil {
		logCtx.Error("Failed to record reconciliation failure.", "error", err)
	}
	return false
}
