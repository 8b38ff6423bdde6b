package pipeline

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/docuvault/docuvault/internal/models"
)

// Chunk is a bounded-length slice of extracted text. Page is 1-based and zero
// when the extraction output carried no page association.
type Chunk struct {
	Text string
	Page int
}

// ChunkResult splits extraction output into bounded chunks. When the result
// carries per-page text, splitting happens page by page so every chunk keeps
// its page number; otherwise the full text is split without page association.
// Whitespace-only chunks are dropped. Chunk indices are assigned later by the
// reconciler, after embedding, so they stay contiguous.
func ChunkResult(result *models.ExtractionResult, chunkSize, chunkOverlap int) ([]Chunk, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)

	var chunks []Chunk
	appendSplit := func(text string, page int) error {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		parts, err := splitter.SplitText(text)
		if err != nil {
			return fmt.Errorf("failed to split text: %w", err)
		}
		for _, part := range parts {
			if strings.TrimSpace(part) == "" {
				continue
			}
			chunks = append(chunks, Chunk{Text: part, Page: page})
		}
		return nil
	}

	pagedText := false
	for _, page := range result.Pages {
		if strings.TrimSpace(page.Text) != "" {
			pagedText = true
			break
		}
	}

	if pagedText {
		for _, page := range result.Pages {
			if err := appendSplit(page.Text, page.Number); err != nil {
				return nil, err
			}
		}
		return chunks, nil
	}

	if err := appendSplit(result.Text, 0); err != nil {
		return nil, err
	}
	return chunks, nil
}
