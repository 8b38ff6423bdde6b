package pipeline

import "github.com/docuvault/docuvault/internal/models"

// Synchronous extraction limits. Documents beyond either bound must go
// through a batch operation.
const (
	maxSyncPages = 30
	maxSyncBytes = 2 << 20 // 2MB
)

// Route decides the processing method for a document. It is a pure function
// of its inputs so replays are idempotent. A page count of zero means the
// count is not yet known and the decision is an optimistic pre-check by size;
// the router is re-evaluated once the page count is learned, which may
// upgrade sync to batch but never downgrades an in-flight batch operation
// (enforced by the caller).
func Route(pageCount int, byteSize int64) string {
	if pageCount > maxSyncPages || byteSize > maxSyncBytes {
		return models.MethodBatch
	}
	return models.MethodSync
}
