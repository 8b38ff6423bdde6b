package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/docuvault/docuvault/internal/models"
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

	// Operator-invoked: re-syncs vector index metadata from the record store,
	// for one document or for every completed document with metadata.
	functions.HTTP("HandleMetadataRepair", handleMetadataRepair)
}

// main is required by the Go Functions Framework.
func main() {}

func handleMetadataRepair(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		serviceInstance, initErr = pipeline.NewFromEnv(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.RepairRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Error("Could not decode request body.", "error", err)
			http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
			return
		}
	}

	var (
		summary *models.RepairSummary
		err     error
	)
	if req.DocumentID != "" {
		summary, err = serviceInstance.RepairDocument(r.Context(), req.DocumentID)
	} else {
		summary, err = serviceInstance.RepairAll(r.Context())
	}
	if err != nil {
		slog.Error("Metadata repair failed.", "error", err)
		http.Error(w, "Internal Server Error: repair failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		slog.Error("Failed to write response.", "error", err)
		http.Error(w, "Internal Server Error: failed to encode response", http.StatusInternalServerError)
	}
}
