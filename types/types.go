package types

import (
	"time"

	"github.com/google/uuid"
)

// Source labels attached to chunks for provenance.
const (
	SourcePDF  = "pdf"
	SourceText = "text"
	SourceHTML = "html"
	SourceWeb  = "web"
)

// Chunk is the unit of retrieval: a bounded piece of a document and its embedding.
type Chunk struct {
	ID        uuid.UUID `json:"id"`
	Content   string    `json:"content"`
	Source    string    `json:"source"` // pdf, text, html, web
	Title     string    `json:"title"`  // file path, URL or page title
	Embedding []float32 `json:"-"`
	Seq       int64     `json:"seq"`
	Distance  float64   `json:"distance"`
	CreatedAt time.Time `json:"created_at"`
}

// Document is what a loader produces. It only lives for the duration of one
// indexing call.
type Document struct {
	Text     string
	Metadata map[string]any
}

// Title returns the document's provenance title, falling back to its source.
func (d Document) Title() string {
	for _, key := range []string{"title", "source"} {
		if v, ok := d.Metadata[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
