// Package ragindex chunks, embeds and indexes operational documents
// (runbooks, postmortems) for retrieval.
package ragindex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// EmbeddingProvider produces vector representations for text.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OllamaProvider calls a local Ollama embeddings API.
type OllamaProvider struct {
	client *resty.Client
	model  string
}

// NewOllamaProvider builds a provider against baseURL (e.g.
// http://localhost:11434).
func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(5 * time.Minute)
	return &OllamaProvider{client: c, model: model}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
	Error     string    `json:"error"`
}

// Embed generates a dense vector for the given text. On a non-200 it attempts
// a best-effort model pull and retries once.
func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}
	reqBody := embedRequest{Model: p.model, Prompt: text}

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(&reqBody).
		Post("/api/embeddings")
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		_ = p.pullModel(ctx)
		resp, err = p.client.R().SetContext(ctx).SetBody(&reqBody).Post("/api/embeddings")
		if err != nil {
			return nil, fmt.Errorf("ollama request after pull: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("ollama status %d: %s", resp.StatusCode(), resp.String())
		}
	}

	var er embedResponse
	if err := json.Unmarshal(resp.Body(), &er); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}
	if er.Error != "" {
		return nil, fmt.Errorf("ollama embeddings error: %s", er.Error)
	}
	vec := make([]float32, len(er.Embedding))
	for i, v := range er.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// pullModel tries to pull the model via the Ollama API; best-effort.
func (p *OllamaProvider) pullModel(ctx context.Context) error {
	body := map[string]string{"name": p.model}
	_, _ = p.client.R().SetContext(ctx).SetBody(body).Post("/api/pull")
	return nil
}
