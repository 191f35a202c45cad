package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	pdftypes "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"ragassist/config"
	"ragassist/types"
)

// PDFLoader validates a PDF with pdfcpu, optionally crops page headers and
// footers, and converts it to markdown through a docling-serve endpoint.
type PDFLoader struct {
	client     *http.Client
	doclingURL string
	cropTop    float64
	cropBottom float64
	logger     *slog.Logger
}

type doclingResponse struct {
	Document struct {
		MdContent string `json:"md_content"`
	} `json:"document"`
}

func NewPDFLoader(cfg config.PDFConfig, logger *slog.Logger) *PDFLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFLoader{
		client:     &http.Client{},
		doclingURL: cfg.DoclingURL,
		cropTop:    cfg.CropTop,
		cropBottom: cfg.CropBottom,
		logger:     logger,
	}
}

func (l *PDFLoader) Load(ctx context.Context, path string) ([]types.Document, error) {
	conf := model.NewDefaultConfiguration()
	if err := api.ValidateFile(path, conf); err != nil {
		return nil, fmt.Errorf("%w: invalid pdf %s: %w", types.ErrLoad, path, err)
	}
	pages, err := api.PageCountFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: page count %s: %w", types.ErrLoad, path, err)
	}
	l.logger.Info("loading pdf", "path", path, "pages", pages)

	src := path
	if l.cropTop > 0 || l.cropBottom > 0 {
		tmp, err := os.CreateTemp("", "crop-*.pdf")
		if err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrLoad, err)
		}
		tmp.Close()
		defer os.Remove(tmp.Name())

		if err := RemoveHeaderFooterCrop(path, tmp.Name(), l.cropTop, l.cropBottom); err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrLoad, err)
		}
		src = tmp.Name()
	}

	md, err := l.convertPDFToMD(ctx, src, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("%w: convert %s: %w", types.ErrLoad, path, err)
	}

	doc := document(cleanMarkdown(md), path, generateTitle(path), KindPDF)
	doc.Metadata["pages"] = pages
	return []types.Document{doc}, nil
}

// RemoveHeaderFooterCrop crops top and bottom points (1 pt = 1/72 inch) off
// every page of inputPath and writes the result to outputPath.
func RemoveHeaderFooterCrop(inputPath, outputPath string, top, bottom float64) error {
	conf := api.LoadConfiguration()

	box, err := model.ParseBox(fmt.Sprintf("%.2f 0 %.2f 0", top, bottom), pdftypes.POINTS)
	if err != nil {
		return fmt.Errorf("failed to parse crop box: %w", err)
	}

	if err := api.CropFile(inputPath, outputPath, []string{"1-"}, box, conf); err != nil {
		return fmt.Errorf("failed to crop PDF: %w", err)
	}
	return nil
}

func (l *PDFLoader) convertPDFToMD(ctx context.Context, path, name string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("files", name)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.doclingURL, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("docling: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var d doclingResponse
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return "", err
	}
	return d.Document.MdContent, nil
}

var (
	imgRegex = regexp.MustCompile(
		`!\[[^\]]*\]\(data:image\/[a-zA-Z]+;base64,([^)]+)\)`,
	)
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// cleanMarkdown drops inline base64 images and rewrites two-column tables
// as "key: value" lines, which embed better than pipe rows.
func cleanMarkdown(md string) string {
	md = imgRegex.ReplaceAllString(md, "")

	lines := strings.Split(md, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if isSeparatorRow(line) {
			continue
		}
		if isTableRow(line) {
			cells := splitRow(line)
			switch len(cells) {
			case 0:
				continue
			case 2:
				out = append(out, cells[0]+": "+cells[1])
			default:
				out = append(out, strings.Join(cells, " | "))
			}
			continue
		}
		out = append(out, line)
	}

	md = blankLines.ReplaceAllString(strings.Join(out, "\n"), "\n\n")
	return strings.TrimSpace(md)
}

func isTableRow(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "|") && strings.Count(line, "|") >= 2
}

func isSeparatorRow(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "|") && strings.Contains(line, "---")
}

func splitRow(line string) []string {
	var cells []string
	for _, p := range strings.Split(line, "|") {
		if p = strings.TrimSpace(p); p != "" {
			cells = append(cells, p)
		}
	}
	return cells
}
