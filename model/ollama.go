package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OllamaGenerator calls the Ollama /api/generate endpoint.
type OllamaGenerator struct {
	apiURL string
	model  string
	client *http.Client
	retry  RetryPolicy
}

type OllamaGenerateRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system,omitempty"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type OllamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func NewOllamaGenerator(apiURL, model string, retry RetryPolicy) *OllamaGenerator {
	return &OllamaGenerator{
		apiURL: apiURL,
		model:  model,
		client: &http.Client{},
		retry:  retry,
	}
}

func (g *OllamaGenerator) Complete(ctx context.Context, p Prompt) (string, error) {
	body, err := json.Marshal(OllamaGenerateRequest{
		Model:   g.model,
		System:  p.System,
		Prompt:  p.User,
		Options: map[string]any{"temperature": 0},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	return Retry(ctx, g.retry, "ollama generate", func(ctx context.Context) (string, error) {
		return g.generate(ctx, body)
	})
}

func (g *OllamaGenerator) generate(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	// a streamed reply is a sequence of JSON objects; a single object is the same case
	decoder := json.NewDecoder(resp.Body)
	var b strings.Builder
	for {
		var chunk OllamaGenerateResponse
		if err := decoder.Decode(&chunk); err == io.EOF {
			break
		} else if err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		if chunk.Error != "" {
			return "", fmt.Errorf("ollama: %s", chunk.Error)
		}
		b.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", fmt.Errorf("ollama returned an empty response")
	}
	return out, nil
}
