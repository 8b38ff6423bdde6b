package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docuvault/docuvault/internal/models"
)

// runSync performs the whole extract-and-reconcile sequence inside one tick.
// Returns (completed, failed); (false, false) means the job was requeued.
func (s *Service) runSync(ctx context.Context, logCtx *slog.Logger, job *models.DocumentJob, doc *models.Document) (bool, bool) {
	data, err := s.objects.Read(ctx, doc.StorageBucket, doc.StorageObject)
	if err != nil {
		return false, s.failOrRequeue(ctx, logCtx, job, fmt.Errorf("failed to read source document: %w", err))
	}

	processor := s.selector.Select(doc.OriginalFilename)
	logCtx.Info("Running synchronous extraction.", "processor", processor, "bytes", len(data))

	result, err := s.extractor.Process(ctx, data, processor)
	if err != nil {
		return false, s.failOrRequeue(ctx, logCtx, job, fmt.Errorf("synchronous extraction failed: %w", err))
	}

	// The authoritative page count comes back with the result. A count that
	// would have routed the document to batch does not discard a result
	// already in hand.
	if result.PageCount > 0 && result.PageCount != doc.PageCount {
		doc.PageCount = result.PageCount
		if err := s.documents.SetDocumentPageCount(ctx, doc.ID, result.PageCount); err != nil {
			logCtx.Warn("Failed to record corrected page count.", "error", err)
		}
	}

	if err := s.reconcile(ctx, logCtx, job, doc, result); err != nil {
		return false, s.failOrRequeue(ctx, logCtx, job, fmt.Errorf("failed to reconcile extraction result: %w", err))
	}
	return true, false
}
