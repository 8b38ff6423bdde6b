package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/docuvault/docuvault/internal/models"
	"github.com/docuvault/docuvault/internal/store"
)

// QueueUpload registers a newly uploaded object and queues its first
// processing job. Both the document id and the job id are derived
// deterministically from the object location, so a redelivered upload event
// collides with the existing records instead of spawning duplicates, and a
// delivery that died between the two creates is healed by the redelivery.
func (s *Service) QueueUpload(ctx context.Context, bucket, object string, size int64) error {
	logCtx := slog.With("bucket", bucket, "object", object)

	if !strings.HasSuffix(strings.ToLower(object), ".pdf") {
		logCtx.Info("Ignoring non-PDF upload.")
		return nil
	}

	data, err := s.objects.Read(ctx, bucket, object)
	if err != nil {
		return fmt.Errorf("failed to read uploaded object: %w", err)
	}
	if size <= 0 {
		size = int64(len(data))
	}

	// A page count known up front lets the router skip the optimistic
	// size-only decision. Counting can fail on odd PDFs; routing then falls
	// back to size until extraction reports the real count.
	pageCount := 0
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	if n, err := api.PageCount(bytes.NewReader(data), cfg); err != nil {
		logCtx.Warn("Failed to count pages. Routing by size only.", "error", err)
	} else {
		pageCount = n
	}

	docID := documentIDFor(bucket, object)
	now := time.Now().UTC()
	doc := &models.Document{
		ID:               docID,
		OriginalFilename: path.Base(object),
		StorageBucket:    bucket,
		StorageObject:    object,
		ByteSize:         size,
		PageCount:        pageCount,
		Status:           models.DocStatusQueued,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.documents.CreateDocument(ctx, doc); err != nil {
		if !errors.Is(err, store.ErrAlreadyExists) {
			return fmt.Errorf("failed to create document record: %w", err)
		}
		// Fall through to the job create: an earlier delivery may have
		// crashed after the document write, leaving it queued with no job.
		logCtx.Info("Upload already registered.", "documentId", docID)
	}

	job := &models.DocumentJob{
		ID:          jobIDFor(docID),
		DocumentID:  docID,
		Status:      models.JobStatusQueued,
		MaxAttempts: s.config.MaxAttempts,
		CreatedAt:   now,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			logCtx.Info("Job already queued. Skipping duplicate event.", "documentId", docID, "jobId", job.ID)
			return nil
		}
		return fmt.Errorf("failed to queue processing job: %w", err)
	}

	logCtx.Info("Queued document for processing.", "documentId", docID, "jobId", job.ID, "pages", pageCount, "bytes", size)
	return nil
}

// documentIDFor derives a stable id from the object location.
func documentIDFor(bucket, object string) string {
	sum := sha256.Sum256([]byte(bucket + "/" + object))
	return hex.EncodeToString(sum[:])[:20]
}

// jobIDFor derives the ingress job's id from the document id (name-based
// UUID), so retried event deliveries collide instead of double-queueing.
func jobIDFor(documentID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("docuvault/jobs/"+documentID)).String()
}
