package gcp

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// EmbedderConfig configures the Vertex-backed embedding model.
type EmbedderConfig struct {
	ProjectID string
	Location  string
	Model     string
	Dimension int
}

// GenAIEmbedder generates embedding vectors with the Gemini embedding model
// through the Vertex AI backend.
type GenAIEmbedder struct {
	client *genai.Client
	config EmbedderConfig
}

// NewGenAIEmbedder creates an embedder. Model defaults to
// gemini-embedding-001 and dimension to 768.
func NewGenAIEmbedder(ctx context.Context, config EmbedderConfig) (*GenAIEmbedder, error) {
	if config.ProjectID == "" || config.Location == "" {
		return nil, fmt.Errorf("NewGenAIEmbedder: project and location cannot be empty")
	}
	if config.Model == "" {
		config.Model = "gemini-embedding-001"
	}
	if config.Dimension == 0 {
		config.Dimension = 768
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  config.ProjectID,
		Location: config.Location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GenAIEmbedder{client: client, config: config}, nil
}

// EmbedText generates an embedding vector for a single chunk of text.
func (e *GenAIEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	outputDim := int32(e.config.Dimension)
	embeddingConfig := &genai.EmbedContentConfig{
		OutputDimensionality: &outputDim,
	}

	result, err := e.client.Models.EmbedContent(ctx, e.config.Model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, embeddingConfig)
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}

	var embedding []float32
	if result != nil && len(result.Embeddings) > 0 {
		embedding = result.Embeddings[0].Values
	}
	if embedding == nil {
		return nil, fmt.Errorf("no embedding returned from API")
	}
	if len(embedding) != e.config.Dimension {
		return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d", e.config.Dimension, len(embedding))
	}
	return embedding, nil
}
