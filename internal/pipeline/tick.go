package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docuvault/docuvault/internal/models"
)

// RunTick drives one scheduler tick. It claims queued jobs up to the claim
// limit, routes each to synchronous or batch extraction, then polls every
// in-flight batch operation. Overlapping ticks are safe: claiming and
// completion are conditional updates, so a lost race is a logged skip, not an
// error.
func (s *Service) RunTick(ctx context.Context) (*models.TickResponse, error) {
	resp := &models.TickResponse{}

	queued, err := s.jobs.ListQueuedJobs(ctx, s.config.ClaimLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list queued jobs: %w", err)
	}

	for _, job := range queued {
		logCtx := slog.With("jobId", job.ID, "documentId", job.DocumentID)

		doc, err := s.documents.GetDocument(ctx, job.DocumentID)
		if err != nil {
			logCtx.Error("Failed to load document for queued job.", "error", err)
			continue
		}

		method := Route(doc.PageCount, doc.ByteSize)
		// A job that already went to batch stays batch, even if a corrected
		// page count would now fit the synchronous path.
		if job.ProcessingMethod == models.MethodBatch {
			method = models.MethodBatch
		}

		claimed, err := s.jobs.ClaimJob(ctx, job.ID, method)
		if err != nil {
			logCtx.Error("Failed to claim job.", "error", err)
			continue
		}
		if !claimed {
			logCtx.Info("Job was claimed by an overlapping tick. Skipping.")
			continue
		}
		job.ProcessingMethod = method
		resp.Claimed++

		if err := s.documents.SetDocumentStatus(ctx, doc.ID, models.DocStatusProcessing); err != nil {
			logCtx.Warn("Failed to mark document processing.", "error", err)
		}

		switch method {
		case models.MethodSync:
			completed, failed := s.runSync(ctx, logCtx, job, doc)
			if completed {
				resp.Completed++
			}
			if failed {
				resp.Failed++
			}
		default:
			submitted, failed := s.submitBatch(ctx, logCtx, job, doc)
			if submitted {
				resp.Submitted++
			}
			if failed {
				resp.Failed++
			}
		}
	}

	inflight, err := s.jobs.ListProcessingBatchJobs(ctx)
	if err != nil {
		return resp, fmt.Errorf("failed to list in-flight batch jobs: %w", err)
	}

	for _, job := range inflight {
		logCtx := slog.With("jobId", job.ID, "documentId", job.DocumentID, "operationId", job.BatchOperationID)
		resp.Polled++
		completed, failed := s.pollJob(ctx, logCtx, job)
		if completed {
			resp.Completed++
		}
		if failed {
			resp.Failed++
		}
	}

	return resp, nil
}

// failOrRequeue applies the retry policy after a processing failure. The
// failure consumes one attempt; when the budget is exhausted the job and its
// document become terminal, otherwise the job returns to the queue for a
// later tick. Returns true when the job went terminal.
func (s *Service) failOrRequeue(ctx context.Context, logCtx *slog.Logger, job *models.DocumentJob, cause error) bool {
	attempts := job.Attempts + 1
	message := cause.Error()

	if attempts >= job.MaxAttempts {
		logCtx.Error("Job failed permanently.", "attempts", attempts, "error", cause)
		if _, err := s.jobs.FailJob(ctx, job.ID, attempts, message); err != nil {
			logCtx.Error("Failed to record terminal job failure.", "error", err)
		}
		if err := s.documents.MarkDocumentError(ctx, job.DocumentID, message); err != nil {
			logCtx.Error("Failed to mark document errored.", "error", err)
		}
		return true
	}

	// The document stays processing across retries; its status only moves
	// forward, except to error.
	logCtx.Warn("Job attempt failed. Requeueing.", "attempts", attempts, "maxAttempts", job.MaxAttempts, "error", cause)
	if _, err := s.jobs.RequeueJob(ctx, job.ID, attempts, message); err != nil {
		logCtx.Error("Failed to requeue job.", "error", err)
	}
	return false
}
