// Package embedder produces vector embeddings for tool catalog sync
// (C6) and SEARCH_TOOLS query intents, backed by Amazon Bedrock Titan
// embeddings.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"mcpgate/internal/config"
)

// Embedder turns text into a fixed-dimension vector for pgvector
// columns.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// NewFromConfig constructs the configured embedder; an unrecognized
// Type fails fast at startup rather than silently degrading
// SEARCH_TOOLS to fuzzy-only.
func NewFromConfig(cfg config.EmbedderConfig) (Embedder, error) {
	switch cfg.Type {
	case "bedrock", "":
		return NewBedrockEmbedder(cfg)
	case "openai":
		return NewOpenAIEmbedder(cfg), nil
	default:
		return nil, fmt.Errorf("embedder: unsupported type %q", cfg.Type)
	}
}

// titanEmbedRequest is the request body for amazon.titan-embed-text-v2:0.
type titanEmbedRequest struct {
	InputText string `json:"inputText"`
}

type titanEmbedResponse struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

// BedrockEmbedder calls a Titan text-embedding model via
// bedrockruntime.InvokeModel (non-streaming; embeddings are a single
// request/response, unlike streaming chat-completion clients).
type BedrockEmbedder struct {
	client *bedrockruntime.Client
	modelID string
	dims    int
}

func NewBedrockEmbedder(cfg config.EmbedderConfig) (*BedrockEmbedder, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("embedder: load aws config: %w", err)
	}

	modelID := cfg.Model
	if modelID == "" {
		modelID = "amazon.titan-embed-text-v2:0"
	}

	return &BedrockEmbedder{
		client:  bedrockruntime.NewFromConfig(awsCfg),
		modelID: modelID,
		dims:    1536,
	}, nil
}

func (e *BedrockEmbedder) Dimensions() int { return e.dims }

func (e *BedrockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(titanEmbedRequest{InputText: text})
	if err != nil {
		return nil, fmt.Errorf("embedder: marshal request: %w", err)
	}

	contentType := "application/json"
	out, err := e.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &e.modelID,
		ContentType: &contentType,
		Accept:      &contentType,
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("embedder: invoke titan model: %w", err)
	}

	var resp titanEmbedResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("embedder: decode titan response: %w", err)
	}
	return resp.Embedding, nil
}

const openAIEmbeddingsURL = "https://api.openai.com/v1/embeddings"

// OpenAIEmbedder calls OpenAI's embeddings endpoint directly over
// net/http, matching the hand-rolled REST client style of
// billing.StripeClient rather than pulling in an OpenAI SDK for one
// endpoint.
type OpenAIEmbedder struct {
	apiKey     string
	model      string
	dims       int
	httpClient *http.Client
}

func NewOpenAIEmbedder(cfg config.EmbedderConfig) *OpenAIEmbedder {
	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &OpenAIEmbedder{
		apiKey:     cfg.APIKey,
		model:      model,
		dims:       1536,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (e *OpenAIEmbedder) Dimensions() int { return e.dims }

type openAIEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(openAIEmbedRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("embedder: marshal openai request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openAIEmbeddingsURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedder: build openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedder: openai request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embedder: read openai response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedder: openai returned %d: %s", resp.StatusCode, respBody)
	}

	var out openAIEmbedResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("embedder: decode openai response: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("embedder: openai response contained no embeddings")
	}
	return out.Data[0].Embedding, nil
}
