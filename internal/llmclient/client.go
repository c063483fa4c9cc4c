// File: internal/llmclient/client.go
package llmclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/deskpilot/deskpilot-cli/api/schemas"
	"github.com/deskpilot/deskpilot-cli/internal/config"
)

// Client implements schemas.LLMClient against an OpenAI-compatible
// chat-completions endpoint, with vision attachments, a request rate limit,
// and bounded retry on transient failures.
type Client struct {
	cfg        config.LLMConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// -- Chat-completions wire structures (internal to this file) --

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []chatContentPart
}

type chatResponseFormat struct {
	Type string `json:"type"`
}

type chatRequestPayload struct {
	Model          string              `json:"model"`
	Messages       []chatMessage       `json:"messages"`
	Temperature    float64             `json:"temperature"`
	TopP           float64             `json:"top_p,omitempty"`
	TopK           int                 `json:"top_k,omitempty"`
	MaxTokens      int                 `json:"max_tokens,omitempty"`
	ResponseFormat *chatResponseFormat `json:"response_format,omitempty"`
}

type chatResponsePayload struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewClient initializes the client.
func NewClient(cfg config.LLMConfig, logger *zap.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("LLM endpoint is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("LLM API key is required")
	}

	limit := rate.Inf
	if cfg.RateLimitRPS > 0 {
		limit = rate.Limit(cfg.RateLimitRPS)
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.APITimeout,
		},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.Named("llm_client"),
	}, nil
}

// Generate sends the prompts (and any attached screenshots) to the model and
// returns the generated text together with token usage, cost, and elapsed
// time. Transient failures are retried with exponential backoff.
func (c *Client) Generate(ctx context.Context, req schemas.GenerationRequest) (*schemas.GenerationResult, error) {
	body, err := json.Marshal(c.buildRequestPayload(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	var result *schemas.GenerationResult

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("rate limiter aborted: %w", err))
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

		startTime := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		duration := time.Since(startTime)

		if err != nil {
			c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return c.handleAPIError(resp.StatusCode, respBody)
		}

		var payload chatResponsePayload
		if err := json.Unmarshal(respBody, &payload); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}
		if len(payload.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("model returned no choices"))
		}

		usage := payload.Usage
		result = &schemas.GenerationResult{
			Text:             payload.Choices[0].Message.Content,
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			Cost:             c.cost(usage.PromptTokens, usage.CompletionTokens),
			ElapsedSeconds:   duration.Seconds(),
		}

		c.logger.Info("LLM generation complete",
			zap.Duration("duration", duration),
			zap.Int("prompt_tokens", usage.PromptTokens),
			zap.Int("completion_tokens", usage.CompletionTokens),
			zap.Int("total_tokens", usage.TotalTokens),
		)
		return nil
	}

	if err = backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return result, nil
}

// Close releases client resources. The shared HTTP transport needs no
// teardown beyond idle-connection cleanup.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) buildRequestPayload(req schemas.GenerationRequest) chatRequestPayload {
	userContent := any(req.UserPrompt)
	if len(req.Images) > 0 {
		parts := make([]chatContentPart, 0, len(req.Images)+1)
		parts = append(parts, chatContentPart{Type: "text", Text: req.UserPrompt})
		for _, img := range req.Images {
			parts = append(parts, chatContentPart{
				Type:     "image_url",
				ImageURL: &chatImageURL{URL: "data:image/png;base64," + img},
			})
		}
		userContent = parts
	}

	payload := chatRequestPayload{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: userContent},
		},
		Temperature: c.cfg.Temperature,
		TopP:        c.cfg.TopP,
		TopK:        c.cfg.TopK,
		MaxTokens:   c.cfg.MaxTokens,
	}
	if req.Options.ForceJSONFormat {
		payload.ResponseFormat = &chatResponseFormat{Type: "json_object"}
	}
	return payload
}

func (c *Client) handleAPIError(statusCode int, body []byte) error {
	c.logger.Error("LLM API returned error status", zap.Int("status", statusCode), zap.String("response", string(body)))
	err := fmt.Errorf("llm API error: status %d, body: %s", statusCode, string(body))

	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError:
		return err // Transient errors, retry.
	default:
		return backoff.Permanent(err) // Permanent errors.
	}
}

// cost converts token usage to dollars using the configured per-1K prices.
func (c *Client) cost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1000*c.cfg.PromptCostPer1K +
		float64(completionTokens)/1000*c.cfg.CompletionCostPer1K
}

var _ schemas.LLMClient = (*Client)(nil)
