package aianalysis

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// ModelInvoker is the external model-inference collaborator.
type ModelInvoker interface {
	Invoke(ctx context.Context, modelID, systemPrompt, userPrompt string) (string, error)
}

// AnthropicClient invokes a Claude-style messages API over HTTP.
type AnthropicClient struct {
	apiKey     string
	apiURL     string
	maxTokens  int
	httpClient *http.Client
}

func NewAnthropicClient(apiURL, apiKey string, callTimeout time.Duration) (*AnthropicClient, error) {
	if apiURL == "" {
		return nil, errors.New("invalid configuration: missing api_url")
	}
	if apiKey == "" {
		return nil, errors.New("invalid configuration: missing api_key")
	}
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &AnthropicClient{
		apiKey:     apiKey,
		apiURL:     apiURL,
		maxTokens:  2000,
		httpClient: &http.Client{Timeout: callTimeout},
	}, nil
}

// Invoke sends one chat-style request with a top-level system prompt and a
// single user message, and extracts the response text. Throttling and
// 5xx-class responses are distinguishable from permanent failures so the
// retrier can act on them.
func (c *AnthropicClient) Invoke(ctx context.Context, modelID, systemPrompt, userPrompt string) (string, error) {
	requestBody := map[string]interface{}{
		"model":       modelID,
		"system":      systemPrompt,
		"messages":    []map[string]string{{"role": "user", "content": userPrompt}},
		"max_tokens":  c.maxTokens,
		"temperature": 0.5,
	}
	bodyBytes, err := json.Marshal(requestBody)
	if err != nil {
		return "", errors.Wrap(err, "error marshaling request body")
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.apiURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", errors.Wrap(err, "error creating HTTP request")
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	req.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrapf(ErrModelUnavailable, "request failed: %v", err)
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrapf(ErrModelUnavailable, "error reading response body: %v", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to parsing
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", errors.Wrapf(ErrThrottled, "status %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return "", errors.Wrapf(ErrModelUnavailable, "status %d: %s", resp.StatusCode, string(respData))
	default:
		return "", &APIError{Code: resp.StatusCode, Message: string(respData)}
	}

	text := gjson.GetBytes(respData, "content.0.text")
	if !text.Exists() || text.String() == "" {
		return "", errors.Wrapf(ErrInvalidResponse, "missing content[0].text in model response")
	}
	return text.String(), nil
}
