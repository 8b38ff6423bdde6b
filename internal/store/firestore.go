package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/docuvault/docuvault/internal/models"
)

// Firestore collection names.
const (
	documentsCollection  = "documents"
	jobsCollection       = "document_jobs"
	embeddingsCollection = "document_embeddings"
)

// FirestoreStore implements DocumentStore, JobStore and EmbeddingStore on
// Firestore. State-conditioned transitions run inside transactions that
// re-read the record, which is what makes overlapping scheduler ticks safe.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore wraps an existing Firestore client.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

var _ DocumentStore = (*FirestoreStore)(nil)
var _ JobStore = (*FirestoreStore)(nil)
var _ EmbeddingStore = (*FirestoreStore)(nil)

// --- DocumentStore ---

func (s *FirestoreStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	snap, err := s.client.Collection(documentsCollection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	var doc models.Document
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	doc.ID = snap.Ref.ID
	return &doc, nil
}

func (s *FirestoreStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	_, err := s.client.Collection(documentsCollection).Doc(doc.ID).Create(ctx, doc)
	if status.Code(err) == codes.AlreadyExists {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *FirestoreStore) SetDocumentStatus(ctx context.Context, id, docStatus string) error {
	return s.updateDocument(ctx, id, []firestore.Update{
		{Path: "status", Value: docStatus},
	})
}

func (s *FirestoreStore) SetDocumentPageCount(ctx context.Context, id string, pageCount int) error {
	return s.updateDocument(ctx, id, []firestore.Update{
		{Path: "pageCount", Value: pageCount},
	})
}

func (s *FirestoreStore) MarkDocumentCompleted(ctx context.Context, id, text string, fields map[string]string, skipped int, embedErr string) error {
	updates := []firestore.Update{
		{Path: "status", Value: models.DocStatusCompleted},
		{Path: "extractedText", Value: text},
		{Path: "errorDetails", Value: firestore.Delete},
	}
	if len(fields) > 0 {
		updates = append(updates, firestore.Update{Path: "extractedFields", Value: fields})
	}
	if skipped > 0 {
		updates = append(updates,
			firestore.Update{Path: "embeddingsSkipped", Value: skipped},
			firestore.Update{Path: "embeddingsError", Value: embedErr},
		)
	}
	return s.updateDocument(ctx, id, updates)
}

func (s *FirestoreStore) MarkDocumentError(ctx context.Context, id, message string) error {
	return s.updateDocument(ctx, id, []firestore.Update{
		{Path: "status", Value: models.DocStatusError},
		{Path: "errorDetails", Value: message},
	})
}

func (s *FirestoreStore) ListCompletedWithMetadata(ctx context.Context) ([]*models.Document, error) {
	snaps, err := s.client.Collection(documentsCollection).
		Where("status", "==", models.DocStatusCompleted).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query completed documents: %w", err)
	}
	docs := make([]*models.Document, 0, len(snaps))
	for _, snap := range snaps {
		var doc models.Document
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", snap.Ref.ID, err)
		}
		doc.ID = snap.Ref.ID
		// Firestore cannot filter on "map is non-empty"; do it here.
		if len(doc.BusinessMetadata) == 0 {
			continue
		}
		docs = append(docs, &doc)
	}
	return docs, nil
}

func (s *FirestoreStore) updateDocument(ctx context.Context, id string, updates []firestore.Update) error {
	updates = append(updates, firestore.Update{Path: "updatedAt", Value: time.Now().UTC()})
	_, err := s.client.Collection(documentsCollection).Doc(id).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update document %s: %w", id, err)
	}
	return nil
}

// --- JobStore ---

func (s *FirestoreStore) CreateJob(ctx context.Context, job *models.DocumentJob) error {
	_, err := s.client.Collection(jobsCollection).Doc(job.ID).Create(ctx, job)
	if status.Code(err) == codes.AlreadyExists {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", job.ID, err)
	}
	return nil
}

func (s *FirestoreStore) GetJob(ctx context.Context, id string) (*models.DocumentJob, error) {
	snap, err := s.client.Collection(jobsCollection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return jobFromSnapshot(snap)
}

func (s *FirestoreStore) ListQueuedJobs(ctx context.Context, limit int) ([]*models.DocumentJob, error) {
	snaps, err := s.client.Collection(jobsCollection).
		Where("status", "==", models.JobStatusQueued).
		Limit(limit).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query queued jobs: %w", err)
	}
	return jobsFromSnapshots(snaps)
}

func (s *FirestoreStore) ListProcessingBatchJobs(ctx context.Context) ([]*models.DocumentJob, error) {
	snaps, err := s.client.Collection(jobsCollection).
		Where("status", "==", models.JobStatusProcessing).
		Where("processingMethod", "==", models.MethodBatch).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query in-flight batch jobs: %w", err)
	}
	jobs, err := jobsFromSnapshots(snaps)
	if err != nil {
		return nil, err
	}
	// A batch job without a handle never had its submission recorded; it is
	// not in flight and will be requeued by its own claim path.
	inFlight := jobs[:0]
	for _, job := range jobs {
		if job.BatchOperationID != "" {
			inFlight = append(inFlight, job)
		}
	}
	return inFlight, nil
}

func (s *FirestoreStore) ClaimJob(ctx context.Context, id, method string) (bool, error) {
	return s.transitionJob(ctx, id, models.JobStatusQueued, []firestore.Update{
		{Path: "status", Value: models.JobStatusProcessing},
		{Path: "processingMethod", Value: method},
		{Path: "startedAt", Value: time.Now().UTC()},
	})
}

func (s *FirestoreStore) RequeueJob(ctx context.Context, id string, attempts int, errMsg string) (bool, error) {
	return s.transitionJob(ctx, id, models.JobStatusProcessing, []firestore.Update{
		{Path: "status", Value: models.JobStatusQueued},
		{Path: "attempts", Value: attempts},
		{Path: "errorMessage", Value: errMsg},
		{Path: "batchOperationId", Value: firestore.Delete},
		{Path: "operationStatus", Value: firestore.Delete},
	})
}

func (s *FirestoreStore) CompleteJob(ctx context.Context, id string) (bool, error) {
	return s.transitionJob(ctx, id, models.JobStatusProcessing, []firestore.Update{
		{Path: "status", Value: models.JobStatusCompleted},
		{Path: "completedAt", Value: time.Now().UTC()},
	})
}

func (s *FirestoreStore) FailJob(ctx context.Context, id string, attempts int, errMsg string) (bool, error) {
	return s.transitionJob(ctx, id, models.JobStatusProcessing, []firestore.Update{
		{Path: "status", Value: models.JobStatusFailed},
		{Path: "attempts", Value: attempts},
		{Path: "errorMessage", Value: errMsg},
		{Path: "completedAt", Value: time.Now().UTC()},
	})
}

func (s *FirestoreStore) RecordBatchSubmission(ctx context.Context, id, operationID, inputURI, outputPrefix, processor string) error {
	_, err := s.client.Collection(jobsCollection).Doc(id).Update(ctx, []firestore.Update{
		{Path: "processingMethod", Value: models.MethodBatch},
		{Path: "batchOperationId", Value: operationID},
		{Path: "inputUri", Value: inputURI},
		{Path: "outputPrefix", Value: outputPrefix},
		{Path: "processor", Value: processor},
	})
	if err != nil {
		return fmt.Errorf("failed to record batch submission for job %s: %w", id, err)
	}
	return nil
}

func (s *FirestoreStore) RecordOperationStatus(ctx context.Context, id, state string) error {
	_, err := s.client.Collection(jobsCollection).Doc(id).Update(ctx, []firestore.Update{
		{Path: "operationStatus", Value: state},
	})
	if err != nil {
		return fmt.Errorf("failed to record operation status for job %s: %w", id, err)
	}
	return nil
}

func (s *FirestoreStore) RecordReconcileFailure(ctx context.Context, id string, attempts int, errMsg string) error {
	_, err := s.client.Collection(jobsCollection).Doc(id).Update(ctx, []firestore.Update{
		{Path: "attempts", Value: attempts},
		{Path: "errorMessage", Value: errMsg},
	})
	if err != nil {
		return fmt.Errorf("failed to record reconcile failure for job %s: %w", id, err)
	}
	return nil
}

// transitionJob performs a compare-and-swap style state transition: the
// transaction re-reads the job and applies updates only when the status still
// matches expected. A lost race reports false rather than an error.
func (s *FirestoreStore) transitionJob(ctx context.Context, id, expected string, updates []firestore.Update) (bool, error) {
	ref := s.client.Collection(jobsCollection).Doc(id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		job, err := jobFromSnapshot(snap)
		if err != nil {
			return err
		}
		if job.Status != expected {
			return errWrongState
		}
		return tx.Update(ref, updates)
	})
	if errors.Is(err, errWrongState) {
		return false, nil
	}
	if status.Code(err) == codes.NotFound {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to transition job %s: %w", id, err)
	}
	return true, nil
}

func jobFromSnapshot(snap *firestore.DocumentSnapshot) (*models.DocumentJob, error) {
	var job models.DocumentJob
	if err := snap.DataTo(&job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", snap.Ref.ID, err)
	}
	job.ID = snap.Ref.ID
	return &job, nil
}

func jobsFromSnapshots(snaps []*firestore.DocumentSnapshot) ([]*models.DocumentJob, error) {
	jobs := make([]*models.DocumentJob, 0, len(snaps))
	for _, snap := range snaps {
		job, err := jobFromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// --- EmbeddingStore ---

func (s *FirestoreStore) SaveEmbeddings(ctx context.Context, embeddings []*models.DocumentEmbedding) error {
	for _, emb := range embeddings {
		ref := s.client.Collection(embeddingsCollection).Doc(emb.VectorKey)
		if _, err := ref.Set(ctx, emb); err != nil {
			return fmt.Errorf("failed to save embedding %s: %w", emb.VectorKey, err)
		}
	}
	return nil
}

func (s *FirestoreStore) DeleteEmbeddings(ctx context.Context, documentID string) error {
	snaps, err := s.client.Collection(embeddingsCollection).
		Where("documentId", "==", documentID).
		Documents(ctx).GetAll()
	if err != nil {
		return fmt.Errorf("failed to query embeddings for document %s: %w", documentID, err)
	}
	for _, snap := range snaps {
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return fmt.Errorf("failed to delete embedding %s: %w", snap.Ref.ID, err)
		}
	}
	return nil
}

func (s *FirestoreStore) GetEmbeddings(ctx context.Context, documentID string) ([]*models.DocumentEmbedding, error) {
	snaps, err := s.client.Collection(embeddingsCollection).
		Where("documentId", "==", documentID).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings for document %s: %w", documentID, err)
	}
	embeddings := make([]*models.DocumentEmbedding, 0, len(snaps))
	for _, snap := range snaps {
		var emb models.DocumentEmbedding
		if err := snap.DataTo(&emb); err != nil {
			return nil, fmt.Errorf("failed to decode embedding %s: %w", snap.Ref.ID, err)
		}
		embeddings = append(embeddings, &emb)
	}
	sort.Slice(embeddings, func(i, j int) bool { return embeddings[i].ChunkIndex < embeddings[j].ChunkIndex })
	return embeddings, nil
}
