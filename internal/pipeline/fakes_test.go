package pipeline

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docuvault/docuvault/internal/models"
	"github.com/docuvault/docuvault/internal/store"
)

// In-memory fakes implementing the pipeline's collaborators. The job fake
// reproduces the conditional-transition semantics of the real store, which is
// what the tick tests exercise.

type fakeDocStore struct {
	mu   sync.Mutex
	docs map[string]*models.Document
}

func newFakeDocStore(docs ...*models.Document) *fakeDocStore {
	s := &fakeDocStore{docs: make(map[string]*models.Document)}
	for _, doc := range docs {
		cp := *doc
		s.docs[doc.ID] = &cp
	}
	return s
}

func (s *fakeDocStore) GetDocument(_ context.Context, id string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (s *fakeDocStore) CreateDocument(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; ok {
		return store.ErrAlreadyExists
	}
	cp := *doc
	s.docs[doc.ID] = &cp
	return nil
}

func (s *fakeDocStore) SetDocumentStatus(_ context.Context, id, status string) error {
	return s.update(id, func(doc *models.Document) { doc.Status = status })
}

func (s *fakeDocStore) SetDocumentPageCount(_ context.Context, id string, pageCount int) error {
	return s.update(id, func(doc *models.Document) { doc.PageCount = pageCount })
}

func (s *fakeDocStore) MarkDocumentCompleted(_ context.Context, id, text string, fields map[string]string, skipped int, embedErr string) error {
	return s.update(id, func(doc *models.Document) {
		doc.Status = models.DocStatusCompleted
		doc.ExtractedText = text
		doc.ExtractedFields = fields
		doc.EmbeddingsSkipped = skipped
		doc.EmbeddingsError = embedErr
		doc.ErrorDetails = ""
	})
}

func (s *fakeDocStore) MarkDocumentError(_ context.Context, id, message string) error {
	return s.update(id, func(doc *models.Document) {
		doc.Status = models.DocStatusError
		doc.ErrorDetails = message
	})
}

func (s *fakeDocStore) ListCompletedWithMetadata(_ context.Context) ([]*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Document
	for _, doc := range s.docs {
		if doc.Status == models.DocStatusCompleted && len(doc.BusinessMetadata) > 0 {
			cp := *doc
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeDocStore) update(id string, apply func(*models.Document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return store.ErrNotFound
	}
	apply(doc)
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *fakeDocStore) get(id string) *models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.docs[id]
	cp := *doc
	return &cp
}

type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[string]*models.DocumentJob
}

func newFakeJobStore(jobs ...*models.DocumentJob) *fakeJobStore {
	s := &fakeJobStore{jobs: make(map[string]*models.DocumentJob)}
	for _, job := range jobs {
		cp := *job
		s.jobs[job.ID] = &cp
	}
	return s
}

func (s *fakeJobStore) CreateJob(_ context.Context, job *models.DocumentJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return store.ErrAlreadyExists
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *fakeJobStore) GetJob(_ context.Context, id string) (*models.DocumentJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *fakeJobStore) ListQueuedJobs(_ context.Context, limit int) ([]*models.DocumentJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.DocumentJob
	for _, job := range s.jobs {
		if job.Status == models.JobStatusQueued {
			cp := *job
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeJobStore) ListProcessingBatchJobs(_ context.Context) ([]*models.DocumentJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.DocumentJob
	for _, job := range s.jobs {
		if job.Status == models.JobStatusProcessing && job.ProcessingMethod == models.MethodBatch && job.BatchOperationID != "" {
			cp := *job
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeJobStore) ClaimJob(_ context.Context, id, method string) (bool, error) {
	return s.transition(id, models.JobStatusQueued, func(job *models.DocumentJob) {
		job.Status = models.JobStatusProcessing
		job.ProcessingMethod = method
		job.StartedAt = time.Now().UTC()
	})
}

func (s *fakeJobStore) RequeueJob(_ context.Context, id string, attempts int, errMsg string) (bool, error) {
	return s.transition(id, models.JobStatusProcessing, func(job *models.DocumentJob) {
		job.Status = models.JobStatusQueued
		job.Attempts = attempts
		job.ErrorMessage = errMsg
		job.BatchOperationID = ""
		job.OperationStatus = ""
	})
}

func (s *fakeJobStore) CompleteJob(_ context.Context, id string) (bool, error) {
	return s.transition(id, models.JobStatusProcessing, func(job *models.DocumentJob) {
		job.Status = models.JobStatusCompleted
		job.CompletedAt = time.Now().UTC()
	})
}

func (s *fakeJobStore) FailJob(_ context.Context, id string, attempts int, errMsg string) (bool, error) {
	return s.transition(id, models.JobStatusProcessing, func(job *models.DocumentJob) {
		job.Status = models.JobStatusFailed
		job.Attempts = attempts
		job.ErrorMessage = errMsg
		job.CompletedAt = time.Now().UTC()
	})
}

func (s *fakeJobStore) RecordBatchSubmission(_ context.Context, id, operationID, inputURI, outputPrefix, processor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	job.ProcessingMethod = models.MethodBatch
	job.BatchOperationID = operationID
	job.InputURI = inputURI
	job.OutputPrefix = outputPrefix
	job.Processor = processor
	return nil
}

func (s *fakeJobStore) RecordOperationStatus(_ context.Context, id, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	job.OperationStatus = state
	return nil
}

func (s *fakeJobStore) RecordReconcileFailure(_ context.Context, id string, attempts int, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	job.Attempts = attempts
	job.ErrorMessage = errMsg
	return nil
}

func (s *fakeJobStore) transition(id, expected string, apply func(*models.DocumentJob)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if job.Status != expected {
		return false, nil
	}
	apply(job)
	return true, nil
}

func (s *fakeJobStore) get(id string) *models.DocumentJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[id]
	cp := *job
	return &cp
}

type fakeEmbStore struct {
	mu   sync.Mutex
	rows map[string]*models.DocumentEmbedding
}

func newFakeEmbStore() *fakeEmbStore {
	return &fakeEmbStore{rows: make(map[string]*models.DocumentEmbedding)}
}

func (s *fakeEmbStore) SaveEmbeddings(_ context.Context, embeddings []*models.DocumentEmbedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, emb := range embeddings {
		cp := *emb
		s.rows[emb.VectorKey] = &cp
	}
	return nil
}

func (s *fakeEmbStore) DeleteEmbeddings(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, emb := range s.rows {
		if emb.DocumentID == documentID {
			delete(s.rows, key)
		}
	}
	return nil
}

func (s *fakeEmbStore) GetEmbeddings(_ context.Context, documentID string) ([]*models.DocumentEmbedding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.DocumentEmbedding
	for _, emb := range s.rows {
		if emb.DocumentID == documentID {
			cp := *emb
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

type fakeExtractor struct {
	mu           sync.Mutex
	processCalls int
	submitCalls  int
	pollCalls    int
	fetchCalls   int

	processFn func(data []byte, processor string) (*models.ExtractionResult, error)
	submitFn  func(inputURI, outputPrefix, processor string) (string, error)
	pollFn    func(operationID string) (*models.BatchStatus, error)
	fetchFn   func(outputPrefix string) (*models.ExtractionResult, error)
}

func (e *fakeExtractor) Process(_ context.Context, data []byte, processor string) (*models.ExtractionResult, error) {
	e.mu.Lock()
	e.processCalls++
	e.mu.Unlock()
	if e.processFn == nil {
		return &models.ExtractionResult{}, nil
	}
	return e.processFn(data, processor)
}

func (e *fakeExtractor) SubmitBatch(_ context.Context, inputURI, outputPrefix, processor string) (string, error) {
	e.mu.Lock()
	e.submitCalls++
	e.mu.Unlock()
	if e.submitFn == nil {
		return "operations/op-1", nil
	}
	return e.submitFn(inputURI, outputPrefix, processor)
}

func (e *fakeExtractor) PollBatch(_ context.Context, operationID string) (*models.BatchStatus, error) {
	e.mu.Lock()
	e.pollCalls++
	e.mu.Unlock()
	if e.pollFn == nil {
		return &models.BatchStatus{State: models.BatchStateRunning, Message: "RUNNING"}, nil
	}
	return e.pollFn(operationID)
}

func (e *fakeExtractor) FetchBatchResult(_ context.Context, outputPrefix string) (*models.ExtractionResult, error) {
	e.mu.Lock()
	e.fetchCalls++
	e.mu.Unlock()
	if e.fetchFn == nil {
		return &models.ExtractionResult{}, nil
	}
	return e.fetchFn(outputPrefix)
}

// fakeEmbedder returns small deterministic vectors derived from the text, so
// assertions can match vectors to chunks. Chunks containing failSubstr fail.
type fakeEmbedder struct {
	mu         sync.Mutex
	calls      int
	failSubstr string
}

func (e *fakeEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.failSubstr != "" && strings.Contains(text, e.failSubstr) {
		return nil, errors.New("embedding backend unavailable")
	}
	h := fnv.New32a()
	h.Write([]byte(text))
	v := float32(h.Sum32() % 1000)
	return []float32{v, v + 1, v + 2}, nil
}

type indexEntry struct {
	vector   []float32
	metadata map[string]string
}

type fakeIndex struct {
	mu       sync.Mutex
	entries  map[string]indexEntry
	upserts  int
	failKeys map[string]bool
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{entries: make(map[string]indexEntry), failKeys: make(map[string]bool)}
}

func (i *fakeIndex) Upsert(_ context.Context, key string, vector []float32, metadata map[string]string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.upserts++
	if i.failKeys[key] {
		return fmt.Errorf("upsert rejected for %s", key)
	}
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	i.entries[key] = indexEntry{vector: append([]float32(nil), vector...), metadata: md}
	return nil
}

func (i *fakeIndex) get(key string) (indexEntry, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	entry, ok := i.entries[key]
	return entry, ok
}

type fakeObjects struct {
	mu      sync.Mutex
	data    map[string][]byte
	deletes int
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{data: make(map[string][]byte)}
}

func objectKey(bucket, object string) string { return bucket + "/" + object }

func (o *fakeObjects) put(bucket, object string, data []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.data[objectKey(bucket, object)] = append([]byte(nil), data...)
}

func (o *fakeObjects) Read(_ context.Context, bucket, object string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.data[objectKey(bucket, object)]
	if !ok {
		return nil, fmt.Errorf("object %s/%s does not exist", bucket, object)
	}
	return append([]byte(nil), data...), nil
}

func (o *fakeObjects) Write(_ context.Context, bucket, object string, data []byte) error {
	o.put(bucket, object, data)
	return nil
}

func (o *fakeObjects) DeletePrefix(_ context.Context, bucket, prefix string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	full := objectKey(bucket, prefix)
	for key := range o.data {
		if strings.HasPrefix(key, full) {
			delete(o.data, key)
			o.deletes++
		}
	}
	return nil
}

func (o *fakeObjects) has(bucket, object string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.data[objectKey(bucket, object)]
	return ok
}

func (o *fakeObjects) countPrefix(bucket, prefix string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	full := objectKey(bucket, prefix)
	n := 0
	for key := range o.data {
		if strings.HasPrefix(key, full) {
			n++
		}
	}
	return n
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv bundles a service with its fakes.
type testEnv struct {
	service   *Service
	docs      *fakeDocStore
	jobs      *fakeJobStore
	emb       *fakeEmbStore
	extractor *fakeExtractor
	embedder  *fakeEmbedder
	index     *fakeIndex
	objects   *fakeObjects
}

const testArtifactBucket = "artifacts"

func newTestEnv(docs []*models.Document, jobs []*models.DocumentJob) *testEnv {
	env := &testEnv{
		docs:      newFakeDocStore(docs...),
		jobs:      newFakeJobStore(jobs...),
		emb:       newFakeEmbStore(),
		extractor: &fakeExtractor{},
		embedder:  &fakeEmbedder{},
		index:     newFakeIndex(),
		objects:   newFakeObjects(),
	}
	env.service = NewService(env.docs, env.jobs, env.emb, env.extractor, env.embedder, env.index, env.objects, nil, Config{
		ArtifactBucket:  testArtifactBucket,
		ClaimLimit:      10,
		MaxAttempts:     3,
		MaxPollDuration: time.Hour,
		ChunkSize:       200,
		ChunkOverlap:    20,
	})
	return env
}
