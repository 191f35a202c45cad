package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ragassist/config"
	"ragassist/types"
)

// OllamaEmbedder creates embeddings through the Ollama /api/embeddings endpoint.
type OllamaEmbedder struct {
	client    *http.Client
	apiURL    string
	model     string
	normalize bool
	logger    *slog.Logger
}

type OllamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type OllamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

func NewOllamaEmbedder(cfg config.OllamaConfig, logger *slog.Logger) *OllamaEmbedder {
	model := cfg.EmbeddingModel
	if model == "" {
		model = cfg.Model
	}
	logger = orDefault(logger)
	logger.Info("uses local ollama for embeddings", "model", model, "normalize", cfg.NormalizeVectors)

	return &OllamaEmbedder{
		client:    &http.Client{Timeout: cfg.Timeout},
		apiURL:    strings.TrimRight(cfg.BaseURL, "/") + "/api/embeddings",
		model:     model,
		normalize: cfg.NormalizeVectors,
		logger:    logger,
	}
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp OllamaEmbeddingResponse
	if err := postJSON(ctx, e.client, e.apiURL, OllamaEmbeddingRequest{Model: e.model, Prompt: text}, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrEmbedding, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: ollama: %s", types.ErrEmbedding, resp.Error)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding returned by model %s", types.ErrEmbedding, e.model)
	}

	vec := resp.Embedding
	if e.normalize {
		vec = normalize64(vec)
	}

	embedding := make([]float32, len(vec))
	for i, v := range vec {
		embedding[i] = float32(v)
	}
	return embedding, nil
}

// OllamaGenerator completes prompts through the Ollama /api/generate endpoint.
type OllamaGenerator struct {
	client *http.Client
	apiURL string
	model  string
	logger *slog.Logger
}

type OllamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type OllamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func NewOllamaGenerator(cfg config.OllamaConfig, logger *slog.Logger) *OllamaGenerator {
	return &OllamaGenerator{
		client: &http.Client{Timeout: cfg.Timeout},
		apiURL: strings.TrimRight(cfg.BaseURL, "/") + "/api/generate",
		model:  cfg.Model,
		logger: orDefault(logger),
	}
}

// Generate asks for a non-streamed answer, but also accepts a body of
// newline-delimited fragments and joins them.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(OllamaGenerateRequest{Model: g.model, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %w", types.ErrGeneration, err)
	}

	start := time.Now()
	defer func() {
		g.logger.Debug("llm answer", "model", g.model, "took", time.Since(start))
	}()

	resp, err := do(ctx, g.client, g.apiURL, body)
	if err != nil {
		return "", fmt.Errorf("%w: %w", types.ErrGeneration, err)
	}
	defer resp.Body.Close()

	decoder := json.NewDecoder(resp.Body)

	var b strings.Builder
	for {
		var part OllamaGenerateResponse

		if err := decoder.Decode(&part); err == io.EOF {
			break
		} else if err != nil {
			return "", fmt.Errorf("%w: decode response: %w", types.ErrGeneration, err)
		}
		if part.Error != "" {
			return "", fmt.Errorf("%w: ollama: %s", types.ErrGeneration, part.Error)
		}

		b.WriteString(part.Response)

		if part.Done {
			break
		}
	}

	return b.String(), nil
}

func postJSON(ctx context.Context, client *http.Client, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := do(ctx, client, url, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// do sends a JSON POST and returns the response when its status is 200.
func do(ctx context.Context, client *http.Client, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama API error: status %d, body: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}
