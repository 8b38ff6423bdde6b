package gcp

import (
	"context"
	"fmt"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"google.golang.org/api/option"
)

// VectorIndexConfig identifies the Vertex AI Vector Search index datapoints
// are upserted into. IndexName is the full resource name
// (projects/{p}/locations/{l}/indexes/{id}).
type VectorIndexConfig struct {
	Location  string
	IndexName string
}

// VertexVectorIndex mirrors chunk metadata into Vertex AI Vector Search.
// Every metadata field becomes a restrict namespace, which is what similarity
// search later filters on; empty values are never written.
type VertexVectorIndex struct {
	client *aiplatform.IndexClient
	config VectorIndexConfig
}

// NewVertexVectorIndex creates an index client pinned to the configured
// regional endpoint.
func NewVertexVectorIndex(ctx context.Context, config VectorIndexConfig) (*VertexVectorIndex, error) {
	if config.IndexName == "" {
		return nil, fmt.Errorf("NewVertexVectorIndex: index name must be set")
	}
	endpoint := fmt.Sprintf("%s-aiplatform.googleapis.com:443", config.Location)
	client, err := aiplatform.NewIndexClient(ctx, option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create index client: %w", err)
	}
	return &VertexVectorIndex{client: client, config: config}, nil
}

// Upsert writes one datapoint under the given key, replacing any existing
// datapoint and its metadata mirror.
func (v *VertexVectorIndex) Upsert(ctx context.Context, key string, vector []float32, metadata map[string]string) error {
	restricts := make([]*aiplatformpb.IndexDatapoint_Restriction, 0, len(metadata))
	for name, value := range metadata {
		if value == "" {
			continue
		}
		restricts = append(restricts, &aiplatformpb.IndexDatapoint_Restriction{
			Namespace: name,
			AllowList: []string{value},
		})
	}

	req := &aiplatformpb.UpsertDatapointsRequest{
		Index: v.config.IndexName,
		Datapoints: []*aiplatformpb.IndexDatapoint{
			{
				DatapointId:   key,
				FeatureVector: vector,
				Restricts:     restricts,
			},
		},
	}
	if _, err := v.client.UpsertDatapoints(ctx, req); err != nil {
		return fmt.Errorf("failed to upsert datapoint %s: %w", key, err)
	}
	return nil
}
