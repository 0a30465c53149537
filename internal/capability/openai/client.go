// Package openai implements the capability caller contracts against any
// OpenAI-compatible API (OpenAI, Nebius, Ollama, vLLM).
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tripmatch/internal/capability"
	"github.com/kailas-cloud/tripmatch/internal/domain"
)

// Client is a capability provider endpoint using the OpenAI-compatible API.
// One Client serves every model hosted at its base URL; the model and
// call limits arrive per attempt via capability.Provider.
type Client struct {
	api    *openai.Client
	name   string
	logger *zap.Logger
}

// Config holds the provider endpoint settings.
type Config struct {
	Name    string
	APIKey  string
	BaseURL string
	Logger  *zap.Logger
}

// Compile-time checks: Client implements all caller contracts.
var (
	_ capability.ChatCaller    = (*Client)(nil)
	_ capability.StreamCaller  = (*Client)(nil)
	_ capability.EmbedCaller   = (*Client)(nil)
	_ capability.HealthChecker = (*Client)(nil)
)

// NewClient creates an OpenAI-compatible capability client.
func NewClient(cfg *Config) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		api:    openai.NewClientWithConfig(clientCfg),
		name:   cfg.Name,
		logger: logger,
	}
}

// Chat implements capability.ChatCaller.
func (c *Client) Chat(ctx context.Context, p capability.Provider, req capability.ChatRequest) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, c.buildRequest(p, req, false))
	if err != nil {
		return "", parseAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response: %w", domain.ErrMalformedCapabilityResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// ChatStream implements capability.StreamCaller. Fragments are emitted
// as they arrive; emit returning an error aborts the stream.
func (c *Client) ChatStream(
	ctx context.Context, p capability.Provider, req capability.ChatRequest,
	emit func(fragment string) error,
) error {
	stream, err := c.api.CreateChatCompletionStream(ctx, c.buildRequest(p, req, true))
	if err != nil {
		return parseAPIError(err)
	}
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return parseAPIError(err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			if err := emit(delta); err != nil {
				return fmt.Errorf("emit fragment: %w", err)
			}
		}
	}
}

// Embed implements capability.EmbedCaller.
func (c *Client) Embed(ctx context.Context, p capability.Provider, text string) (domain.EmbeddingResult, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          openai.EmbeddingModel(p.Model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if p.Dimensions > 0 {
		req.Dimensions = p.Dimensions
	}

	resp, err := c.api.CreateEmbeddings(ctx, req)
	if err != nil {
		return domain.EmbeddingResult{}, parseAPIError(err)
	}
	if len(resp.Data) == 0 {
		return domain.EmbeddingResult{}, fmt.Errorf("empty embedding response: %w", domain.ErrMalformedCapabilityResponse)
	}

	return domain.EmbeddingResult{
		Embedding:    resp.Data[0].Embedding,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func (c *Client) buildRequest(p capability.Provider, req capability.ChatRequest, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.User,
	})

	out := openai.ChatCompletionRequest{
		Model:       p.Model,
		Messages:    messages,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		Stream:      stream,
	}
	if req.JSONMode {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return out
}

// parseAPIError extracts a human-readable error from the API response.
// Context deadline errors pass through unwrapped so the chain can
// classify them as timeouts.
func parseAPIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("capability API error %d: %s: %w",
			reqErr.HTTPStatusCode, detail, domain.ErrCapabilityUnavailable)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("capability API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, domain.ErrCapabilityUnavailable)
	}

	return fmt.Errorf("capability request failed: %v: %w", err, domain.ErrCapabilityUnavailable)
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
