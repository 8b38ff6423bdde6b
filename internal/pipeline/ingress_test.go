package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuvault/docuvault/internal/models"
)

func TestQueueUpload_RegistersDocumentAndJob(t *testing.T) {
	env := newTestEnv(nil, nil)
	env.objects.put("uploads", "u1/contract.pdf", []byte("not a real pdf"))

	err := env.service.QueueUpload(context.Background(), "uploads", "u1/contract.pdf", 14)
	require.NoError(t, err)

	docID := documentIDFor("uploads", "u1/contract.pdf")
	doc, err := env.docs.GetDocument(context.Background(), docID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusQueued, doc.Status)
	assert.Equal(t, "contract.pdf", doc.OriginalFilename)
	assert.Equal(t, "uploads", doc.StorageBucket)
	assert.Equal(t, "u1/contract.pdf", doc.StorageObject)
	assert.Equal(t, int64(14), doc.ByteSize)
	// Unparseable content leaves the count unknown; routing falls back to
	// size until extraction reports the real number.
	assert.Equal(t, 0, doc.PageCount)

	jobs, err := env.jobs.ListQueuedJobs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, docID, jobs[0].DocumentID)
	assert.Equal(t, 3, jobs[0].MaxAttempts)
}

func TestQueueUpload_RedeliveredEventIsDeduplicated(t *testing.T) {
	env := newTestEnv(nil, nil)
	env.objects.put("uploads", "u1/contract.pdf", []byte("not a real pdf"))

	require.NoError(t, env.service.QueueUpload(context.Background(), "uploads", "u1/contract.pdf", 14))
	require.NoError(t, env.service.QueueUpload(context.Background(), "uploads", "u1/contract.pdf", 14))

	jobs, err := env.jobs.ListQueuedJobs(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 1, "a redelivered event must not queue a second job")
}

func TestQueueUpload_RedeliveryHealsDocumentWithoutJob(t *testing.T) {
	// An earlier delivery created the document and then died before queueing
	// the job. The redelivered event must queue it, not skip as a duplicate.
	docID := documentIDFor("uploads", "u1/contract.pdf")
	stranded := &models.Document{
		ID:            docID,
		StorageBucket: "uploads",
		StorageObject: "u1/contract.pdf",
		Status:        models.DocStatusQueued,
	}
	env := newTestEnv([]*models.Document{stranded}, nil)
	env.objects.put("uploads", "u1/contract.pdf", []byte("not a real pdf"))

	require.NoError(t, env.service.QueueUpload(context.Background(), "uploads", "u1/contract.pdf", 14))

	jobs, err := env.jobs.ListQueuedJobs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, docID, jobs[0].DocumentID)
}

func TestJobIDFor_IsStable(t *testing.T) {
	assert.Equal(t, jobIDFor("doc-1"), jobIDFor("doc-1"))
	assert.NotEqual(t, jobIDFor("doc-1"), jobIDFor("doc-2"))
}

func TestQueueUpload_IgnoresNonPDFObjects(t *testing.T) {
	env := newTestEnv(nil, nil)
	env.objects.put("uploads", "u1/notes.txt", []byte("plain text"))

	require.NoError(t, env.service.QueueUpload(context.Background(), "uploads", "u1/notes.txt", 10))

	jobs, err := env.jobs.ListQueuedJobs(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestQueueUpload_MissingObjectIsRetryable(t *testing.T) {
	env := newTestEnv(nil, nil)
	err := env.service.QueueUpload(context.Background(), "uploads", "u1/ghost.pdf", 10)
	require.Error(t, err)
}

func TestDocumentIDFor_IsStable(t *testing.T) {
	a := documentIDFor("uploads", "u1/contract.pdf")
	b := documentIDFor("uploads", "u1/contract.pdf")
	c := documentIDFor("uploads", "u2/contract.pdf")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 20)
}
