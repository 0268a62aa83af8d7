// Package perplexity is a small client for the Perplexity chat completions API.
package perplexity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	DefaultBaseURL = "https://api.perplexity.ai"
	defaultTimeout = 120 * time.Second
	maxErrorBody   = 4096
)

// ErrEmptyResponse is returned when the API answers 2xx without any choices.
var ErrEmptyResponse = errors.New("perplexity: response has no choices")

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("perplexity: unexpected status %d: %s", e.StatusCode, e.Body)
}

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	Logger     *slog.Logger
}

// Client is safe for concurrent use.
type Client struct {
	apiKey  string
	baseURL string
	http    *retryablehttp.Client
}

// NewClient creates a client. 429 and 5xx responses are retried with
// exponential backoff up to opts.MaxRetries times.
func NewClient(apiKey string, opts Options) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.MaxRetries
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 10 * time.Second
	rc.HTTPClient.Timeout = opts.Timeout
	if rc.HTTPClient.Timeout <= 0 {
		rc.HTTPClient.Timeout = defaultTimeout
	}
	rc.Logger = nil
	if opts.Logger != nil {
		rc.Logger = opts.Logger
	}
	// Hand the final response back instead of a generic "giving up" error so
	// the caller sees the real status code.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    rc,
	}
}

// Complete sends a non-streaming chat completion request.
func (c *Client) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	return &out, nil
}

// Ping sends a minimal request to verify the API key and connectivity.
func (c *Client) Ping(ctx context.Context, model string) error {
	_, err := c.Complete(ctx, ChatRequest{
		Model:     model,
		Messages:  []Message{{Role: RoleUser, Content: "Hello"}},
		MaxTokens: 10,
	})
	return err
}
