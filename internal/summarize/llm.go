package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
)

// CompletionRequest is a single deterministic chat-completion call.
type CompletionRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// LLMClient performs one completion call against an OpenAI-compatible
// chat API.
type LLMClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// HTTPLLMClient is a gjson-parsed client for an OpenAI-compatible
// /v1/chat/completions endpoint.
type HTTPLLMClient struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
	Model      string
}

func (c *HTTPLLMClient) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *HTTPLLMClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	model := c.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	payload := map[string]interface{}{
		"model":       model,
		"temperature": req.Temperature,
		"max_tokens":  req.MaxTokens,
		"messages": []map[string]string{
			{"role": "system", "content": req.System},
			{"role": "user", "content": req.User},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &Error{Kind: ErrorKindRateLimited, Retryable: true, Message: "llm rate limited"}
	}
	if resp.StatusCode >= 500 {
		return "", &Error{Kind: ErrorKindLLM, Retryable: true, Message: fmt.Sprintf("llm server error %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &Error{Kind: ErrorKindLLM, Retryable: false, Message: fmt.Sprintf("llm returned status %d: %s", resp.StatusCode, string(respBody))}
	}

	content := gjson.GetBytes(respBody, "choices.0.message.content").String()
	if content == "" {
		return "", &Error{Kind: ErrorKindInvalidOutput, Retryable: false, Message: "llm response missing choices.0.message.content"}
	}
	return content, nil
}
