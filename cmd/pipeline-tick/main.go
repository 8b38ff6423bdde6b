package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

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

	// "HandlePipelineTick" is the entry point name registered in GCP.
	// Cloud Scheduler invokes it on a fixed cadence.
	functions.HTTP("HandlePipelineTick", handlePipelineTick)
}

// main is required by the Go Functions Framework.
func main() {}

func handlePipelineTick(w http.ResponseWriter, r *http.Request) {
	// One-time initialization of clients, shared across invocations.
	once.Do(func() {
		serviceInstance, initErr = pipeline.NewFromEnv(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	resp, err := serviceInstance.RunTick(r.Context())
	if err != nil {
		slog.Error("Tick failed.", "error", err)
		http.Error(w, "Internal Server Error: tick failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to write response.", "error", err)
		http.Error(w, "Internal Server Error: failed to encode response", http.StatusInternalServerError)
	}
}
