package api

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"

	"ragassist/app/agent"
	"ragassist/loader"
	"ragassist/types"
)

type Indexer interface {
	IndexLocator(ctx context.Context, locator string, kind loader.Kind) (int, error)
	IndexDirectory(ctx context.Context, root string, kinds ...loader.Kind) (int, error)
}

type Answerer interface {
	QueryRAG(ctx context.Context, query string) (agent.Answer, error)
	QueryWithWebSearch(ctx context.Context, query string) (agent.WebAnswer, error)
	SearchWeb(ctx context.Context, query string) (string, error)
	CompleteCode(ctx context.Context, code, language string) (string, error)
	SuggestImprovements(ctx context.Context, code, language string) (string, error)
	GenerateCode(ctx context.Context, description, language string) (string, error)
}

type RAGHandler struct {
	indexer   Indexer
	answerer  Answerer
	uploadDir string
	logger    *slog.Logger
}

func NewRAGHandler(ix Indexer, a Answerer, uploadDir string, logger *slog.Logger) *RAGHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RAGHandler{indexer: ix, answerer: a, uploadDir: uploadDir, logger: logger}
}

// Register mounts the handler routes on r.
func (h *RAGHandler) Register(r fiber.Router) {
	r.Post("/index", h.HandleIndex)
	r.Post("/index-pdf", h.indexFile(loader.KindPDF))
	r.Post("/index-text", h.indexFile(loader.KindText))
	r.Post("/index-html", h.indexFile(loader.KindHTML))
	r.Post("/index-url", h.HandleIndexURL)
	r.Post("/index-directory", h.indexDirectory())
	r.Post("/index-pdfs", h.indexDirectory(loader.KindPDF))
	r.Post("/upload", h.HandleUpload)

	r.Get("/query", h.HandleQuery)
	r.Get("/query-with-web-search", h.HandleQueryWithWebSearch)
	r.Get("/search", h.HandleSearch)

	r.Post("/complete-code", h.HandleCompleteCode)
	r.Post("/suggest-improvements", h.HandleSuggestImprovements)
	r.Post("/generate-code", h.HandleGenerateCode)
}

func (h *RAGHandler) HandleIndex(c *fiber.Ctx) error {
	var params types.IndexParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	var (
		n   int
		err error
	)
	if params.Kind == "directory" {
		n, err = h.indexer.IndexDirectory(c.UserContext(), params.Locator)
	} else {
		n, err = h.indexer.IndexLocator(c.UserContext(), params.Locator, loader.Kind(params.Kind))
	}
	if err != nil {
		return err
	}
	return c.JSON(indexed(n, params.Locator))
}

func (h *RAGHandler) indexFile(kind loader.Kind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var params types.FileParams
		if c.BodyParser(&params) != nil {
			return ErrBadRequest()
		}
		if errors := types.Validate(&params); len(errors) > 0 {
			return NewValidationError(errors)
		}

		n, err := h.indexer.IndexLocator(c.UserContext(), params.FilePath, kind)
		if err != nil {
			return err
		}
		return c.JSON(indexed(n, params.FilePath))
	}
}

func (h *RAGHandler) HandleIndexURL(c *fiber.Ctx) error {
	var params types.URLParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	n, err := h.indexer.IndexLocator(c.UserContext(), params.URL, loader.KindURL)
	if err != nil {
		return err
	}
	return c.JSON(indexed(n, params.URL))
}

func (h *RAGHandler) indexDirectory(kinds ...loader.Kind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var params types.DirectoryParams
		if c.BodyParser(&params) != nil {
			return ErrBadRequest()
		}
		if errors := types.Validate(&params); len(errors) > 0 {
			return NewValidationError(errors)
		}

		n, err := h.indexer.IndexDirectory(c.UserContext(), params.DirectoryPath, kinds...)
		if err != nil {
			return err
		}
		return c.JSON(indexed(n, params.DirectoryPath))
	}
}

// HandleUpload stores the multipart "file" in the upload directory. Files
// dropped there are picked up by the folder watcher when it runs.
func (h *RAGHandler) HandleUpload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return ErrMissingFile("file")
	}
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return err
	}

	dst := filepath.Join(h.uploadDir, filepath.Base(fh.Filename))
	if err := c.SaveFile(fh, dst); err != nil {
		return err
	}
	h.logger.Info("file uploaded", "path", dst, "size", fh.Size)
	return c.Status(fiber.StatusCreated).JSON(types.ResultResponse{Result: dst})
}

func (h *RAGHandler) HandleQuery(c *fiber.Ctx) error {
	var params types.QueryParams
	if c.QueryParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	answer, err := h.answerer.QueryRAG(c.UserContext(), params.Query)
	if err != nil {
		return err
	}

	sources := make([]types.Source, len(answer.Sources))
	for i, chunk := range answer.Sources {
		sources[i] = types.Source{
			ChunkID:   chunk.ID.String(),
			Title:     chunk.Title,
			Source:    chunk.Source,
			ChunkText: chunk.Content,
			Distance:  chunk.Distance,
		}
	}
	return c.JSON(&types.SearchResponse{
		Answer:    answer.Text,
		Sources:   sources,
		Timestamp: time.Now(),
	})
}

func (h *RAGHandler) HandleQueryWithWebSearch(c *fiber.Ctx) error {
	var params types.QueryParams
	if c.QueryParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	out, err := h.answerer.QueryWithWebSearch(c.UserContext(), params.Query)
	if err != nil {
		return err
	}

	states := make([]string, len(out.States))
	for i, s := range out.States {
		states[i] = string(s)
	}
	return c.JSON(&types.WebSearchResponse{
		Answer:        out.Text,
		LowConfidence: out.LowConfidence,
		WebSearchUsed: out.WebSearchUsed(),
		States:        states,
		Timestamp:     time.Now(),
	})
}

func (h *RAGHandler) HandleSearch(c *fiber.Ctx) error {
	var params types.QueryParams
	if c.QueryParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	snippet, err := h.answerer.SearchWeb(c.UserContext(), params.Query)
	if err != nil {
		return err
	}
	return c.JSON(types.ResultResponse{Result: snippet})
}

func (h *RAGHandler) HandleCompleteCode(c *fiber.Ctx) error {
	var params types.CompleteCodeParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}
	return h.result(c, func(ctx context.Context) (string, error) {
		return h.answerer.CompleteCode(ctx, params.Context, params.Language)
	})
}

func (h *RAGHandler) HandleSuggestImprovements(c *fiber.Ctx) error {
	var params types.SuggestParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}
	return h.result(c, func(ctx context.Context) (string, error) {
		return h.answerer.SuggestImprovements(ctx, params.Code, params.Language)
	})
}

func (h *RAGHandler) HandleGenerateCode(c *fiber.Ctx) error {
	var params types.GenerateCodeParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}
	return h.result(c, func(ctx context.Context) (string, error) {
		return h.answerer.GenerateCode(ctx, params.Description, params.Language)
	})
}

func (h *RAGHandler) result(c *fiber.Ctx, fn func(context.Context) (string, error)) error {
	out, err := fn(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(types.ResultResponse{Result: out})
}

func indexed(n int, locator string) types.IndexResponse {
	return types.IndexResponse{
		Message: fmt.Sprintf("indexed %d chunks from %s", n, locator),
		Chunks:  n,
	}
}
