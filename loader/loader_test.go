package loader

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragassist/config"
	"ragassist/types"
)

const page = `<!DOCTYPE html>
<html>
<head>
  <title> Capital   cities </title>
  <style>body { color: red; }</style>
  <script>var x = "hidden";</script>
</head>
<body>
  <h1>France</h1>
  <p>Paris is the   capital of France.</p>
  <noscript>Enable JavaScript</noscript>
  <script>console.log("also hidden")</script>
</body>
</html>`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestTextLoader(t *testing.T) {
	path := writeFile(t, t.TempDir(), "notes.txt", "line one\nline two\n")

	docs, err := TextLoader{}.Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "line one\nline two\n", docs[0].Text)
	assert.Equal(t, path, docs[0].Title())

	_, err = TextLoader{}.Load(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, types.ErrLoad)
}

func TestHTMLLoader(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "page.html", page)

	docs, err := HTMLLoader{}.Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "France\nParis is the capital of France.", docs[0].Text)
	assert.Equal(t, "Capital cities", docs[0].Title())

	untitled := writeFile(t, dir, "my_home-page.htm", "<p>hello</p>")
	docs, err = HTMLLoader{}.Load(context.Background(), untitled)
	require.NoError(t, err)
	assert.Equal(t, "my home page", docs[0].Title())
	assert.Equal(t, "hello", docs[0].Text)
}

func TestURLLoader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, page)
		case "/plain":
			w.Header().Set("Content-Type", "text/plain")
			fmt.Fprint(w, "just text")
		case "/latin1":
			w.Header().Set("Content-Type", "text/plain; charset=iso-8859-1")
			fmt.Fprint(w, "caf\xe9 cr\xe8me")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	l := NewURLLoader(0)
	ctx := context.Background()

	docs, err := l.Load(ctx, srv.URL+"/page")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "France\nParis is the capital of France.", docs[0].Text)
	assert.Equal(t, "Capital cities", docs[0].Title())
	assert.Equal(t, srv.URL+"/page", docs[0].Metadata["source"])

	docs, err = l.Load(ctx, srv.URL+"/plain")
	require.NoError(t, err)
	assert.Equal(t, "just text", docs[0].Text)
	assert.Equal(t, srv.URL+"/plain", docs[0].Title())

	docs, err = l.Load(ctx, srv.URL+"/latin1")
	require.NoError(t, err)
	assert.Equal(t, "caf\uFFFD cr\uFFFDme", docs[0].Text)
	assert.True(t, utf8.ValidString(docs[0].Text))

	_, err = l.Load(ctx, srv.URL+"/missing")
	assert.ErrorIs(t, err, types.ErrLoad)
}

func TestPDFLoader_InvalidFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "broken.pdf", "this is not a pdf")

	_, err := NewPDFLoader(config.PDFConfig{}, nil).Load(context.Background(), path)
	assert.ErrorIs(t, err, types.ErrLoad)
}

func TestCleanMarkdown(t *testing.T) {
	md := "# Manual\n\n![logo](data:image/png;base64,iVBORw0KGgo=)\n\n\n\n" +
		"| Key | Value |\n|-----|-------|\n| Port | 3000 |\n| Host | localhost |\n\nEnd."

	assert.Equal(t, "# Manual\n\nKey: Value\nPort: 3000\nHost: localhost\n\nEnd.", cleanMarkdown(md))
}

func TestKindSourceLabel(t *testing.T) {
	assert.Equal(t, types.SourcePDF, KindPDF.SourceLabel())
	assert.Equal(t, types.SourceText, KindText.SourceLabel())
	assert.Equal(t, types.SourceHTML, KindHTML.SourceLabel())
	assert.Equal(t, types.SourceWeb, KindURL.SourceLabel())
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry(config.Default().Loader, nil)

	for path, want := range map[string]Kind{
		"a.pdf":     KindPDF,
		"b.TXT":     KindText,
		"c.md":      KindText,
		"d.htm":     KindHTML,
		"e.html":    KindHTML,
		"dir/f.txt": KindText,
	} {
		kind, ok := r.KindFor(path)
		assert.True(t, ok, path)
		assert.Equal(t, want, kind, path)
	}
	_, ok := r.KindFor("image.png")
	assert.False(t, ok)

	_, err := r.Loader("docx")
	assert.ErrorIs(t, err, types.ErrUnsupportedKind)

	_, err = r.Load(context.Background(), "archive.zip", "")
	assert.ErrorIs(t, err, types.ErrUnsupportedKind)
}

func TestRegistry_LoadInfersKind(t *testing.T) {
	path := writeFile(t, t.TempDir(), "readme.md", "# hi")
	r := DefaultRegistry(config.Default().Loader, nil)

	docs, err := r.Load(context.Background(), path, "")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "# hi", docs[0].Text)
}

func TestRegistry_Walk(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.txt", "b")
	writeFile(t, root, "a.html", "<p>a</p>")
	writeFile(t, root, "skip.png", "png")
	writeFile(t, root, "sub/c.md", "c")
	writeFile(t, root, "sub/deeper/d.pdf", "d")
	writeFile(t, root, "zz/e.txt", "e")

	r := DefaultRegistry(config.Default().Loader, nil)
	entries, err := r.Walk(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []Entry{
		{Path: filepath.Join(root, "a.html"), Kind: KindHTML},
		{Path: filepath.Join(root, "b.txt"), Kind: KindText},
		{Path: filepath.Join(root, "sub", "c.md"), Kind: KindText},
		{Path: filepath.Join(root, "sub", "deeper", "d.pdf"), Kind: KindPDF},
		{Path: filepath.Join(root, "zz", "e.txt"), Kind: KindText},
	}, entries)

	_, err = r.Walk(context.Background(), filepath.Join(root, "b.txt"))
	assert.ErrorIs(t, err, types.ErrLoad)
}
