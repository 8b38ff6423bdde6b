package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/docuvault/docuvault/internal/pipeline"
)

var (
	serviceInstance *pipeline.Service
	once            sync.Once
	initErr         error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Fires on object finalization in the upload bucket.
	functions.CloudEvent("HandleUploadEvent", handleUploadEvent)
}

// main is required by the Go Functions Framework.
func main() {}

// gcsEvent is the subset of the storage object payload the trigger needs.
// Size arrives as a decimal string in the JSON payload.
type gcsEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
	Size   string `json:"size"`
}

func handleUploadEvent(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		serviceInstance, initErr = pipeline.NewFromEnv(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var event gcsEvent
	if err := json.Unmarshal(e.Data(), &event); err != nil {
		slog.Error("Failed to unmarshal event data.", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	size, err := strconv.ParseInt(event.Size, 10, 64)
	if err != nil {
		size = 0
	}

	return serviceInstance.QueueUpload(ctx, event.Bucket, event.Name, size)
}
