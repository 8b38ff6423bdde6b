package gcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// ObjectStore wraps the GCS client with the small surface the pipeline needs.
// All artifact paths are namespaced per document id, so a retried write
// overwrites the same object instead of duplicating it.
type ObjectStore struct {
	client *storage.Client
}

// NewObjectStore creates a GCS-backed object store.
func NewObjectStore(ctx context.Context) (*ObjectStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &ObjectStore{client: client}, nil
}

// Read downloads an object fully into memory.
func (s *ObjectStore) Read(ctx context.Context, bucket, object string) ([]byte, error) {
	reader, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", bucket, object, err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, object, err)
	}
	return data, nil
}

// Write uploads an object, retrying transient failures with exponential
// backoff. Overwrites any existing object at the same path.
func (s *ObjectStore) Write(ctx context.Context, bucket, object string, data []byte) error {
	const maxRetries = 4
	backoff := 1 * time.Second
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		err := func() error {
			writeCtx, cancel := context.WithTimeout(ctx, time.Second*50)
			defer cancel()

			writer := s.client.Bucket(bucket).Object(object).NewWriter(writeCtx)
			if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
				_ = writer.Close()
				return fmt.Errorf("io.Copy to GCS failed: %w", err)
			}
			if err := writer.Close(); err != nil {
				return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
			}
			return nil
		}()

		if err == nil {
			return nil
		}

		lastErr = err
		slog.Warn("Upload failed, will retry.",
			"gcsObject", object,
			"attempt", i+1,
			"maxRetries", maxRetries,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("upload for gs://%s/%s failed after all retries: %w", bucket, object, lastErr)
}

// ListPrefix returns the names of all objects under a prefix.
func (s *ObjectStore) ListPrefix(ctx context.Context, bucket, prefix string) ([]string, error) {
	it := s.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s: %w", bucket, prefix, err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

// DeletePrefix removes every object under a prefix. The first failure is
// returned, but remaining objects are still attempted.
func (s *ObjectStore) DeletePrefix(ctx context.Context, bucket, prefix string) error {
	names, err := s.ListPrefix(ctx, bucket, prefix)
	if err != nil {
		return err
	}
	var firstErr error
	for _, name := range names {
		if err := s.client.Bucket(bucket).Object(name).Delete(ctx); err != nil {
			slog.Warn("Failed to delete object.", "gcsBucket", bucket, "gcsObject", name, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to delete gs://%s/%s: %w", bucket, name, err)
			}
		}
	}
	return firstErr
}
