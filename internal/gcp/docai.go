package gcp

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/docuvault/docuvault/internal/models"
)

// DocAIConfig identifies the Document AI processors the pipeline submits to.
// Processor values are full resource names
// (projects/{p}/locations/{l}/processors/{id}).
type DocAIConfig struct {
	Location      string
	FormProcessor string
	OCRProcessor  string
}

// DocAIExtractor calls Document AI for synchronous extraction and for
// long-running batch operations whose output lands in GCS.
type DocAIExtractor struct {
	client  *documentai.DocumentProcessorClient
	objects *ObjectStore
	config  DocAIConfig
}

// NewDocAIExtractor creates a Document AI client pinned to the configured
// regional endpoint.
func NewDocAIExtractor(ctx context.Context, objects *ObjectStore, config DocAIConfig) (*DocAIExtractor, error) {
	if config.FormProcessor == "" || config.OCRProcessor == "" {
		return nil, fmt.Errorf("NewDocAIExtractor: form and OCR processor names must be set")
	}
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", config.Location)
	client, err := documentai.NewDocumentProcessorClient(ctx, option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create Document AI client: %w", err)
	}
	return &DocAIExtractor{client: client, objects: objects, config: config}, nil
}

func (e *DocAIExtractor) processorName(variant string) string {
	if variant == models.ProcessorFormParser {
		return e.config.FormProcessor
	}
	return e.config.OCRProcessor
}

// Process runs a synchronous extraction and blocks until the service returns.
func (e *DocAIExtractor) Process(ctx context.Context, data []byte, processor string) (*models.ExtractionResult, error) {
	req := &documentaipb.ProcessRequest{
		Name: e.processorName(processor),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: "application/pdf",
			},
		},
	}
	resp, err := e.client.ProcessDocument(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("synchronous extraction failed: %w", err)
	}
	result := &models.ExtractionResult{}
	mergeDocument(result, resp.GetDocument(), 0)
	return result, nil
}

// SubmitBatch starts a long-running extraction over the uploaded input and
// returns the operation name as the durable handle.
func (e *DocAIExtractor) SubmitBatch(ctx context.Context, inputURI, outputPrefix, processor string) (string, error) {
	req := &documentaipb.BatchProcessRequest{
		Name: e.processorName(processor),
		InputDocuments: &documentaipb.BatchDocumentsInputConfig{
			Source: &documentaipb.BatchDocumentsInputConfig_GcsDocuments{
				GcsDocuments: &documentaipb.GcsDocuments{
					Documents: []*documentaipb.GcsDocument{
						{GcsUri: inputURI, MimeType: "application/pdf"},
					},
				},
			},
		},
		DocumentOutputConfig: &documentaipb.DocumentOutputConfig{
			Destination: &documentaipb.DocumentOutputConfig_GcsOutputConfig_{
				GcsOutputConfig: &documentaipb.DocumentOutputConfig_GcsOutputConfig{
					GcsUri: outputPrefix,
				},
			},
		},
	}
	op, err := e.client.BatchProcessDocuments(ctx, req)
	if err != nil {
		return "", fmt.Errorf("batch submission failed: %w", err)
	}
	return op.Name(), nil
}

// PollBatch checks a long-running operation exactly once. A returned error
// means the poll itself failed; a failed operation is reported through the
// status so the caller can apply its retry policy.
func (e *DocAIExtractor) PollBatch(ctx context.Context, operationID string) (*models.BatchStatus, error) {
	op := e.client.BatchProcessDocumentsOperation(operationID)
	_, err := op.Poll(ctx)
	if err != nil {
		if op.Done() {
			// The operation itself finished with an error.
			return &models.BatchStatus{State: models.BatchStateFailed, Message: err.Error()}, nil
		}
		return nil, fmt.Errorf("failed to poll operation %s: %w", operationID, err)
	}
	if !op.Done() {
		state := "RUNNING"
		if meta, err := op.Metadata(); err == nil && meta != nil {
			state = meta.GetState().String()
		}
		return &models.BatchStatus{State: models.BatchStateRunning, Message: state}, nil
	}
	return &models.BatchStatus{State: models.BatchStateSucceeded}, nil
}

// FetchBatchResult reads the Document JSON shards a completed batch operation
// wrote under the output prefix and merges them into one result. Shard order
// follows object-name order, which is how the service numbers them.
func (e *DocAIExtractor) FetchBatchResult(ctx context.Context, outputPrefix string) (*models.ExtractionResult, error) {
	bucket, prefix, err := parseGCSURI(outputPrefix)
	if err != nil {
		return nil, err
	}
	names, err := e.objects.ListPrefix(ctx, bucket, prefix)
	if err != nil {
		return nil, err
	}
	var shards []string
	for _, name := range names {
		if strings.HasSuffix(name, ".json") {
			shards = append(shards, name)
		}
	}
	if len(shards) == 0 {
		return nil, fmt.Errorf("no output documents found under %s", outputPrefix)
	}
	sortShards(shards)

	result := &models.ExtractionResult{}
	for _, name := range shards {
		data, err := e.objects.Read(ctx, bucket, name)
		if err != nil {
			return nil, err
		}
		var doc documentaipb.Document
		unmarshal := protojson.UnmarshalOptions{DiscardUnknown: true}
		if err := unmarshal.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode output shard %s: %w", name, err)
		}
		mergeDocument(result, &doc, result.PageCount)
	}
	return result, nil
}

// sortShards orders shard names by their numeric suffix. The service numbers
// shards without zero-padding, so a lexicographic sort would place shard 10
// before shard 2 and scramble the page numbering.
func sortShards(shards []string) {
	sort.Slice(shards, func(i, j int) bool {
		ni, oki := shardNumber(shards[i])
		nj, okj := shardNumber(shards[j])
		if oki && okj && ni != nj {
			return ni < nj
		}
		return shards[i] < shards[j]
	})
}

// shardNumber extracts the numeric suffix from a shard object name like
// .../output-processor-3.json.
func shardNumber(name string) (int, bool) {
	base := strings.TrimSuffix(name, ".json")
	idx := strings.LastIndexAny(base, "-_/")
	if idx < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(base[idx+1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// mergeDocument appends one extraction Document into the accumulated result.
// pageBase offsets page numbers so that shards number pages continuously.
func mergeDocument(result *models.ExtractionResult, doc *documentaipb.Document, pageBase int) {
	if doc == nil {
		return
	}
	text := doc.GetText()
	if result.Text != "" && text != "" {
		result.Text += "\n"
	}
	result.Text += text

	for _, page := range doc.GetPages() {
		number := pageBase + int(page.GetPageNumber())
		result.Pages = append(result.Pages, models.PageText{
			Number: number,
			Text:   anchorText(text, page.GetLayout().GetTextAnchor()),
		})
		if number > result.PageCount {
			result.PageCount = number
		}
	}

	for _, entity := range doc.GetEntities() {
		if entity.GetType() == "" {
			continue
		}
		if result.Fields == nil {
			result.Fields = make(map[string]string)
		}
		result.Fields[entity.GetType()] = entity.GetMentionText()
	}
}

// anchorText resolves a text anchor's segments against the document text.
func anchorText(text string, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil {
		return ""
	}
	var sb strings.Builder
	for _, segment := range anchor.GetTextSegments() {
		start, end := segment.GetStartIndex(), segment.GetEndIndex()
		if start < 0 || end > int64(len(text)) || start >= end {
			continue
		}
		sb.WriteString(text[start:end])
	}
	return sb.String()
}

// parseGCSURI splits gs://bucket/path into bucket and path.
func parseGCSURI(uri string) (bucket, object string, err error) {
	trimmed := strings.TrimPrefix(uri, "gs://")
	if trimmed == uri {
		return "", "", fmt.Errorf("not a gs:// URI: %s", uri)
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", "", fmt.Errorf("malformed gs:// URI: %s", uri)
	}
	return parts[0], parts[1], nil
}
