package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"ragassist/types"
)

const maxPageSize = 10 << 20

// URLLoader fetches a web page. HTML bodies are reduced to their visible
// text; anything else is kept as is.
type URLLoader struct {
	client *http.Client
}

func NewURLLoader(timeout time.Duration) *URLLoader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &URLLoader{client: &http.Client{Timeout: timeout}}
}

func (l *URLLoader) Load(ctx context.Context, url string) ([]types.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrLoad, err)
	}
	req.Header.Set("User-Agent", "ragassist/1.0")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrLoad, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: GET %s: status %d", types.ErrLoad, url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", types.ErrLoad, err)
	}

	title, text := url, string(body)
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		t, extracted, err := extractHTML(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		text = extracted
		if t != "" {
			title = t
		}
	}
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "\uFFFD")
	}
	return []types.Document{document(text, url, title, KindURL)}, nil
}
