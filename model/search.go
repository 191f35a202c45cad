package model

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"ragassist/config"
	"ragassist/types"
)

// NotFoundSnippet is returned when the search API has nothing for a query.
const NotFoundSnippet = "No search results found."

// DuckDuckGo queries the DuckDuckGo Instant Answer API.
type DuckDuckGo struct {
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
	logger  *slog.Logger
}

type duckDuckGoResponse struct {
	Abstract      string `json:"Abstract"`
	RelatedTopics []struct {
		Text string `json:"Text"`
	} `json:"RelatedTopics"`
}

func NewDuckDuckGo(cfg config.WebSearchConfig, logger *slog.Logger) *DuckDuckGo {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &DuckDuckGo{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.URL,
		limiter: rate.NewLimiter(limit, 1),
		logger:  orDefault(logger),
	}
}

// Search returns the abstract of the instant answer, else the text of the
// first related topic, else NotFoundSnippet. Only transport failures, non-2xx
// statuses and undecodable bodies are errors.
func (d *DuckDuckGo) Search(ctx context.Context, query string) (string, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: rate limit: %w", types.ErrSearch, err)
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", types.ErrSearch, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", types.ErrSearch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w: status %d", types.ErrSearch, resp.StatusCode)
	}

	var result duckDuckGoResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", types.ErrSearch, err)
	}

	if abstract := strings.TrimSpace(result.Abstract); abstract != "" {
		return abstract, nil
	}
	// category groups carry no Text of their own
	for _, topic := range result.RelatedTopics {
		if text := strings.TrimSpace(topic.Text); text != "" {
			return text, nil
		}
	}

	d.logger.Debug("web search found nothing", "query", query)
	return NotFoundSnippet, nil
}
