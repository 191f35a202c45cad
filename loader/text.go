package loader

import (
	"context"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"ragassist/types"
)

// TextLoader reads a plain-text or markdown file as a single document.
type TextLoader struct{}

func (TextLoader) Load(ctx context.Context, path string) ([]types.Document, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	return []types.Document{document(text, path, path, KindText)}, nil
}

// generateTitle derives a readable title from a file name.
func generateTitle(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return name
}
