// Package loader turns files and web pages into plain-text documents.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"ragassist/config"
	"ragassist/types"
)

// Kind names a document type a Loader understands.
type Kind string

const (
	KindPDF  Kind = "pdf"
	KindText Kind = "text"
	KindHTML Kind = "html"
	KindURL  Kind = "url"
)

// SourceLabel is the label stored with every chunk of a document of kind k.
func (k Kind) SourceLabel() string {
	switch k {
	case KindPDF:
		return types.SourcePDF
	case KindHTML:
		return types.SourceHTML
	case KindURL:
		return types.SourceWeb
	default:
		return types.SourceText
	}
}

// Loader acquires the documents behind a locator (a file path or a URL).
type Loader interface {
	Load(ctx context.Context, locator string) ([]types.Document, error)
}

// Registry dispatches locators to loaders by kind or file extension.
type Registry struct {
	loaders map[Kind]Loader
	exts    map[string]Kind
}

func NewRegistry() *Registry {
	return &Registry{
		loaders: make(map[Kind]Loader),
		exts:    make(map[string]Kind),
	}
}

// DefaultRegistry wires the built-in loaders.
func DefaultRegistry(cfg config.LoaderConfig, logger *slog.Logger) *Registry {
	r := NewRegistry()
	r.Register(KindPDF, NewPDFLoader(cfg.PDF, logger), ".pdf")
	r.Register(KindText, TextLoader{}, ".txt", ".md", ".text")
	r.Register(KindHTML, HTMLLoader{}, ".html", ".htm")
	r.Register(KindURL, NewURLLoader(0))
	return r
}

// Register binds a loader to kind and to the given file extensions.
func (r *Registry) Register(kind Kind, l Loader, exts ...string) {
	r.loaders[kind] = l
	for _, ext := range exts {
		r.exts[strings.ToLower(ext)] = kind
	}
}

func (r *Registry) Loader(kind Kind) (Loader, error) {
	l, ok := r.loaders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnsupportedKind, kind)
	}
	return l, nil
}

// KindFor reports the kind registered for the extension of path.
func (r *Registry) KindFor(path string) (Kind, bool) {
	kind, ok := r.exts[strings.ToLower(filepath.Ext(path))]
	return kind, ok
}

// Load runs the loader of kind on locator. An empty kind is inferred from
// the file extension.
func (r *Registry) Load(ctx context.Context, locator string, kind Kind) ([]types.Document, error) {
	if kind == "" {
		k, ok := r.KindFor(locator)
		if !ok {
			return nil, fmt.Errorf("%w: no loader for %s", types.ErrUnsupportedKind, locator)
		}
		kind = k
	}
	l, err := r.Loader(kind)
	if err != nil {
		return nil, err
	}
	return l.Load(ctx, locator)
}

// Entry is a file found by Walk.
type Entry struct {
	Path string
	Kind Kind
}

// Walk lists the files under root whose extension has a registered kind.
// Directories are visited with an explicit stack; files come out in lexical
// order within each directory.
func (r *Registry) Walk(ctx context.Context, root string) ([]Entry, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrLoad, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", types.ErrLoad, root)
	}

	var (
		entries []Entry
		stack   = []string{root}
	)
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		items, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrLoad, err)
		}

		var subdirs []string
		for _, item := range items {
			path := filepath.Join(dir, item.Name())
			if item.IsDir() {
				subdirs = append(subdirs, path)
				continue
			}
			if kind, ok := r.KindFor(path); ok {
				entries = append(entries, Entry{Path: path, Kind: kind})
			}
		}
		slices.Reverse(subdirs)
		stack = append(stack, subdirs...)
	}
	return entries, nil
}

func document(text, source, title string, kind Kind) types.Document {
	return types.Document{
		Text: text,
		Metadata: map[string]any{
			"source": source,
			"title":  title,
			"kind":   string(kind),
		},
	}
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrLoad, err)
	}
	return data, nil
}
