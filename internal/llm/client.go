// Package llm wraps the OpenAI-compatible chat completion API used for
// planning, translation, and answer generation. One Client is constructed in
// main and shared across requests; it is safe for concurrent use.
package llm

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ShayFeldboy1010/tripay-sub000/internal/observability/metrics"
)

// Request is a single chat completion call.
type Request struct {
	System      string
	User        string
	JSONOnly    bool
	Temperature float32
}

// Response carries the completion text and the model that actually answered,
// which may be the fallback model.
type Response struct {
	Content string
	Model   string
}

// Config configures the shared client.
type Config struct {
	APIKey        string
	BaseURL       string
	Provider      string
	Model         string
	FallbackModel string
}

// Client is a process-wide chat completion client with a single model-level
// fallback: "model not found / bad request" class errors on the primary model
// are retried once against the configured fallback model.
type Client struct {
	api    *openai.Client
	cfg    Config
	logger *log.Logger
}

// NewClient constructs a Client.
func NewClient(cfg Config, logger *log.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: api key required")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm: model required")
	}
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	return &Client{api: openai.NewClientWithConfig(apiCfg), cfg: cfg, logger: logger}, nil
}

// Provider reports the configured provider name.
func (c *Client) Provider() string { return c.cfg.Provider }

// Model reports the primary model name.
func (c *Client) Model() string { return c.cfg.Model }

// Complete performs a single-shot completion with the model-level fallback.
func (c *Client) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := c.completeOnce(ctx, c.cfg.Model, req)
	if err != nil && c.cfg.FallbackModel != "" && IsModelUnavailable(err) {
		if c.logger != nil {
			c.logger.Printf("llm: model %s unavailable, retrying on %s: %v", c.cfg.Model, c.cfg.FallbackModel, err)
		}
		return c.completeOnce(ctx, c.cfg.FallbackModel, req)
	}
	return resp, err
}

func (c *Client) completeOnce(ctx context.Context, model string, req Request) (Response, error) {
	resp, err := c.api.CreateChatCompletion(ctx, c.buildRequest(model, req))
	if err != nil {
		return Response{}, err
	}
	if len(resp.Choices) == 0 {
		return Response{}, errors.New("llm: empty completion")
	}
	metrics.AddLLMTokens("completion", resp.Usage.TotalTokens)
	return Response{Content: resp.Choices[0].Message.Content, Model: model}, nil
}

// Stream performs a streaming completion, invoking onToken for every content
// delta as it arrives and returning the accumulated text. The model-level
// fallback applies only when the primary model fails before any token was
// emitted; a mid-stream failure is returned as-is.
func (c *Client) Stream(ctx context.Context, req Request, onToken func(token string) error) (Response, error) {
	resp, emitted, err := c.streamOnce(ctx, c.cfg.Model, req, onToken)
	if err != nil && !emitted && c.cfg.FallbackModel != "" && IsModelUnavailable(err) {
		if c.logger != nil {
			c.logger.Printf("llm: model %s unavailable, streaming on %s: %v", c.cfg.Model, c.cfg.FallbackModel, err)
		}
		resp, _, err = c.streamOnce(ctx, c.cfg.FallbackModel, req, onToken)
	}
	return resp, err
}

func (c *Client) streamOnce(ctx context.Context, model string, req Request, onToken func(token string) error) (Response, bool, error) {
	stream, err := c.api.CreateChatCompletionStream(ctx, c.buildRequest(model, req))
	if err != nil {
		return Response{}, false, err
	}
	defer stream.Close()

	// Chunked responses carry no usage block, so each content delta is
	// counted as one token. Close enough for capacity dashboards.
	deltas := 0
	defer func() { metrics.AddLLMTokens("stream", deltas) }()

	var full []byte
	emitted := false
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Response{Content: string(full), Model: model}, emitted, err
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		emitted = true
		deltas++
		full = append(full, delta...)
		if onToken != nil {
			if err := onToken(delta); err != nil {
				return Response{Content: string(full), Model: model}, emitted, err
			}
		}
	}
	return Response{Content: string(full), Model: model}, emitted, nil
}

func (c *Client) buildRequest(model string, req Request) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: req.Temperature,
	}
	if req.System != "" {
		out.Messages = append(out.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	out.Messages = append(out.Messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.User,
	})
	if req.JSONOnly {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return out
}

// Ping verifies the provider is reachable with the configured credentials.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.ListModels(ctx)
	return err
}

// IsModelUnavailable reports whether err belongs to the "model not found /
// bad request" class that warrants one retry against the fallback model.
func IsModelUnavailable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusNotFound || apiErr.HTTPStatusCode == http.StatusBadRequest
	}
	return false
}
