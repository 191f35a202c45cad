package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"ragassist/types"
)

// HTMLLoader reads an HTML file and keeps its visible text.
type HTMLLoader struct{}

func (HTMLLoader) Load(ctx context.Context, path string) ([]types.Document, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	title, text, err := extractHTML(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = generateTitle(path)
	}
	return []types.Document{document(text, path, title, KindHTML)}, nil
}

// extractHTML returns the page title and the visible text, one line per
// text node. Script, style and noscript contents are dropped.
func extractHTML(r io.Reader) (string, string, error) {
	root, err := html.Parse(r)
	if err != nil {
		return "", "", fmt.Errorf("%w: parse html: %w", types.ErrLoad, err)
	}

	var (
		title string
		lines []string
	)
	var walk func(n *html.Node, inHead bool)
	walk = func(n *html.Node, inHead bool) {
		switch n.Type {
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			case atom.Title:
				if title == "" {
					title = nodeText(n)
				}
				return
			case atom.Head:
				inHead = true
			}
		case html.TextNode:
			if inHead {
				return
			}
			if s := strings.Join(strings.Fields(n.Data), " "); s != "" {
				lines = append(lines, s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inHead)
		}
	}
	walk(root, false)

	return title, strings.Join(lines, "\n"), nil
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
