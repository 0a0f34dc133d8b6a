package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/originpress/inkwell/pkg/apierr"
)

// HTTPClient calls an OpenAI-compatible chat-completions endpoint. It is
// the default Client implementation; tests substitute a fake Client
// instead of standing up a real endpoint.
type HTTPClient struct {
	Endpoint   string
	Model      string
	APIKey     string
	HTTPClient *http.Client
}

// NewHTTPClient builds an HTTPClient with a bounded-timeout *http.Client
// when none is supplied.
func NewHTTPClient(endpoint, model, apiKey string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPClient{Endpoint: endpoint, Model: model, APIKey: apiKey, HTTPClient: httpClient}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete implements Client.
func (c *HTTPClient) Complete(ctx context.Context, prompt string, timeout time.Duration) (Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(chatRequest{
		Model:    c.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return Response{}, apierr.Permanent("llm:marshal_request", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return Response{}, apierr.Permanent("llm:build_request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Response{}, apierr.Transient("llm:call", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, apierr.Transient("llm:read_response", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return Response{}, apierr.Transient("llm:call", fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}
	if resp.StatusCode >= 400 {
		return Response{}, apierr.Permanent("llm:call", fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Response{}, apierr.Permanent("llm:decode_response", err)
	}
	if len(parsed.Choices) == 0 {
		return Response{}, apierr.Permanent("llm:decode_response", fmt.Errorf("no choices returned"))
	}

	return Response{Text: parsed.Choices[0].Message.Content, Raw: string(body)}, nil
}
