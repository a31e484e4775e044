package genai

import (
	"context"
	"strings"
	"time"

	httpclient "nlquery-agent/internal/common/http"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3"
)

// OllamaClient calls a local Ollama server's non-streaming generate endpoint.
type OllamaClient struct {
	baseURL string
	model   string
	http    *httpclient.Client
}

func NewOllamaClient(baseURL, model string, timeout time.Duration) *OllamaClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if strings.TrimSpace(model) == "" {
		model = defaultOllamaModel
	}
	return &OllamaClient{
		baseURL: baseURL,
		model:   model,
		http:    httpclient.NewClient(timeout),
	}
}

type ollamaRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (c *OllamaClient) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	model := opts.Model
	if model == "" {
		model = c.model
	}

	req := ollamaRequest{
		Model:   model,
		Prompt:  prompt,
		Stream:  false,
		Options: map[string]interface{}{"temperature": opts.Temperature},
	}

	var resp ollamaResponse
	if err := c.http.PostJSON(ctx, c.baseURL+"/api/generate", nil, req, &resp); err != nil {
		return "", unavailable(err)
	}
	return resp.Response, nil
}
