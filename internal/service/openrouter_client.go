package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"tapachat/internal/model"
)

// ErrCatalogUnavailable wraps every failure mode of a catalog fetch: transport
// errors, non-2xx responses and payloads missing the expected data list.
var ErrCatalogUnavailable = errors.New("model catalog unavailable")

// ChatCompletionMessage is one turn of the upstream completion request.
type ChatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResult is the decoded outcome of a completion call.
type ChatCompletionResult struct {
	Content        string
	TokensUsed     int
	ResponseTimeMs int64
}

// OpenRouterClient talks to the OpenRouter HTTP API.
type OpenRouterClient interface {
	ListModels(ctx context.Context) ([]model.AIModel, error)
	CreateChatCompletion(ctx context.Context, modelID string, messages []ChatCompletionMessage) (*ChatCompletionResult, error)
}

type openRouterClient struct {
	client      *http.Client
	baseURL     string
	apiKey      string
	temperature float64
	maxTokens   int
}

// NewOpenRouterClient creates a client for the OpenRouter API. Completion
// calls get a generous timeout because model inference is slow; the catalog
// endpoint shares it.
func NewOpenRouterClient(baseURL, apiKey string, temperature float64, maxTokens int) OpenRouterClient {
	return &openRouterClient{
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL:     baseURL,
		apiKey:      apiKey,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

type modelsResponse struct {
	Data []model.AIModel `json:"data"`
}

// ListModels fetches the model catalog. Any failure is wrapped in
// ErrCatalogUnavailable with a human-readable cause.
func (c *openRouterClient) ListModels(ctx context.Context) ([]model.AIModel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrCatalogUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: OpenRouter API request failed: %d %s",
			ErrCatalogUnavailable, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var result modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: invalid response format from OpenRouter API: %v", ErrCatalogUnavailable, err)
	}
	if result.Data == nil {
		return nil, fmt.Errorf("%w: invalid response format from OpenRouter API: missing data list", ErrCatalogUnavailable)
	}

	return result.Data, nil
}

type chatCompletionRequest struct {
	Model       string                  `json:"model"`
	Messages    []ChatCompletionMessage `json:"messages"`
	Temperature float64                 `json:"temperature"`
	MaxTokens   int                     `json:"max_tokens"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// CreateChatCompletion sends the conversation to the given model and returns
// the assistant reply with token usage and measured wall-clock latency.
func (c *openRouterClient) CreateChatCompletion(ctx context.Context, modelID string, messages []ChatCompletionMessage) (*ChatCompletionResult, error) {
	start := time.Now()

	bodyJSON, err := json.Marshal(chatCompletionRequest{
		Model:       modelID,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create completion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send message to model: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read completion response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OpenRouter API request failed: %d %s - %s",
			resp.StatusCode, http.StatusText(resp.StatusCode), string(body))
	}

	var result chatCompletionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode completion response: %w", err)
	}

	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return nil, errors.New("no response content received from the model")
	}

	return &ChatCompletionResult{
		Content:        result.Choices[0].Message.Content,
		TokensUsed:     result.Usage.TotalTokens,
		ResponseTimeMs: time.Since(start).Milliseconds(),
	}, nil
}
