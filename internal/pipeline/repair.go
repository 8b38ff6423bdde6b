package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/docuvault/docuvault/internal/models"
)

const repairConcurrency = 4

// RepairDocument re-pushes every stored vector of one document to the index
// with metadata recomputed from the document's current business fields. Used
// after metadata edits to bring the index back in line with the record store.
func (s *Service) RepairDocument(ctx context.Context, documentID string) (*models.RepairSummary, error) {
	doc, err := s.documents.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", documentID, err)
	}

	summary := &models.RepairSummary{}
	s.repairOne(ctx, doc, summary, &sync.Mutex{})
	return summary, nil
}

// RepairAll repairs every completed document that carries business metadata.
// Documents are processed with bounded concurrency; per-document failures are
// collected into the summary instead of aborting the sweep.
func (s *Service) RepairAll(ctx context.Context) (*models.RepairSummary, error) {
	docs, err := s.documents.ListCompletedWithMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents for repair: %w", err)
	}
	slog.Info("Starting bulk metadata repair.", "documents", len(docs))

	summary := &models.RepairSummary{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(repairConcurrency)
	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			s.repairOne(gctx, doc, summary, &mu)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	slog.Info("Bulk metadata repair finished.",
		"documentsProcessed", summary.DocumentsProcessed,
		"documentsFailed", summary.DocumentsFailed,
		"vectorsUpserted", summary.VectorsUpserted,
		"vectorsFailed", summary.VectorsFailed)
	return summary, nil
}

// repairOne upserts all of one document's vectors and folds the outcome into
// the shared summary. A document counts as failed if its embeddings cannot be
// loaded or any of its vectors fails to upsert.
func (s *Service) repairOne(ctx context.Context, doc *models.Document, summary *models.RepairSummary, mu *sync.Mutex) {
	logCtx := slog.With("documentId", doc.ID)

	embeddings, err := s.embeddings.GetEmbeddings(ctx, doc.ID)
	if err != nil {
		logCtx.Error("Failed to load embeddings for repair.", "error", err)
		mu.Lock()
		summary.DocumentsFailed++
		summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", doc.ID, err))
		mu.Unlock()
		return
	}

	var upserted, failed int
	var errs []string
	for _, emb := range embeddings {
		if err := s.index.Upsert(ctx, emb.VectorKey, emb.Vector, s.chunkMetadata(doc, emb)); err != nil {
			logCtx.Warn("Failed to upsert vector during repair.", "vectorKey", emb.VectorKey, "error", err)
			failed++
			errs = append(errs, fmt.Sprintf("%s: %v", emb.VectorKey, err))
			continue
		}
		upserted++
	}

	mu.Lock()
	defer mu.Unlock()
	summary.VectorsUpserted += upserted
	summary.VectorsFailed += failed
	summary.Errors = append(summary.Errors, errs...)
	if failed > 0 {
		summary.DocumentsFailed++
		return
	}
	summary.DocumentsProcessed++
	logCtx.Info("Repaired document metadata.", "vectors", upserted)
}
