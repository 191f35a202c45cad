package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"ragassist/app/agent"
	"ragassist/app/api"
	"ragassist/app/middleware"
	"ragassist/config"
	"ragassist/indexer"
	"ragassist/loader/service"
	"ragassist/model"
	"ragassist/retriever"
	"ragassist/store"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg    *config.AppConfig
	logger *slog.Logger

	app     *fiber.App
	chunks  store.ChunkStore
	watcher *service.Service

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer connects the chunk store and wires every component behind the
// fiber app. Nothing listens until Run.
func NewServer(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	chunks, err := store.New(ctx, cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("error to open chunk store: %w", err)
	}

	var (
		embedder  = model.NewOllamaEmbedder(cfg.Ollama, logger)
		generator = model.NewOllamaGenerator(cfg.Ollama, logger)
		searcher  = model.NewDuckDuckGo(cfg.WebSearch, logger)
	)
	ix, err := indexer.FromConfig(cfg, embedder, chunks, logger)
	if err != nil {
		chunks.Close()
		return nil, err
	}
	ag := agent.New(retriever.New(embedder, chunks, cfg.Retrieval.TopK), generator, searcher, logger)

	app := fiber.New(fiber.Config{
		ErrorHandler:          api.ErrorHandler,
		DisableStartupMessage: true,
	})
	app.Use(middleware.RequestLogger(logger))

	var (
		checkHandler = api.NewCheckHandler()
		ragHandler   = api.NewRAGHandler(ix, ag, cfg.Loader.SourceDir, logger)
		check        = app.Group("/check")
		apiv1        = app.Group("/api/v1")
	)
	check.Get("/healthy", checkHandler.HandleHealthy)
	ragHandler.Register(apiv1.Group("/rag"))

	s := &Server{cfg: cfg, logger: logger, app: app, chunks: chunks}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	if cfg.Loader.Watch {
		s.watcher = service.New(cfg.Loader, ix, service.WithLogger(logger))
	}
	return s, nil
}

// App exposes the fiber app, mostly for app.Test.
func (s *Server) App() *fiber.App { return s.app }

// Run starts the folder watcher, when enabled, and blocks serving HTTP until
// Stop is called or the listener fails.
func (s *Server) Run() error {
	if s.watcher != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.watcher.Run(s.ctx); err != nil {
				s.logger.Error("folder watcher failed", "error", err)
			}
		}()
	}

	s.logger.Info("server started", "addr", s.cfg.Server.Addr, "store", s.cfg.Store.Type)
	if err := s.app.Listen(s.cfg.Server.Addr); err != nil {
		s.logger.Error("error to start server", "error", err.Error())
		return err
	}
	return nil
}

// Stop drains in-flight requests, waits for the watcher and closes the
// store.
func (s *Server) Stop() error {
	s.cancel()
	err := s.app.ShutdownWithTimeout(shutdownTimeout)
	s.wg.Wait()
	err = errors.Join(err, s.chunks.Close())
	s.logger.Info("server stopped")
	return err
}
