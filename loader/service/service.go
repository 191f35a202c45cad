// Package service watches the source folder and indexes files once they stop
// changing. Indexed files are moved to the archive folder, failed ones to
// the bad folder, both under a per-day subdirectory.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ragassist/config"
	"ragassist/loader"
)

const defaultPollInterval = time.Second

type Indexer interface {
	IndexLocator(ctx context.Context, locator string, kind loader.Kind) (int, error)
}

// fileState is what a scan remembers about a file between ticks.
type fileState struct {
	firstSeen time.Time
	size      int64
	modTime   time.Time
}

type Service struct {
	cfg          config.LoaderConfig
	indexer      Indexer
	logger       *slog.Logger
	pollInterval time.Duration
	now          func() time.Time

	mu         sync.Mutex
	seen       map[string]fileState
	processing map[string]bool
}

type Option func(*Service)

func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(cfg config.LoaderConfig, ix Indexer, opts ...Option) *Service {
	s := &Service{
		cfg:          cfg,
		indexer:      ix,
		logger:       slog.Default(),
		pollInterval: defaultPollInterval,
		now:          time.Now,
		seen:         make(map[string]fileState),
		processing:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run polls the source folder until ctx is cancelled. One goroutine watches
// and another indexes, so a slow file never delays detection of the next.
func (s *Service) Run(ctx context.Context) error {
	if err := createDirectories(s.cfg.SourceDir, s.cfg.ArchiveDir, s.cfg.BadDir); err != nil {
		return err
	}
	s.logger.Info("watching folder", "dir", s.cfg.SourceDir, "monitoring_time", s.cfg.MonitoringTime)

	fileChan := make(chan string, 10)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(fileChan)
		s.watch(ctx, fileChan)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for path := range fileChan {
			s.Process(ctx, path)
		}
	}()

	wg.Wait()
	s.logger.Info("folder watcher stopped")
	return nil
}

func (s *Service) watch(ctx context.Context, fileChan chan<- string) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ready, err := s.Scan()
			if err != nil {
				s.logger.Error("reading source folder", "error", err)
				continue
			}
			for _, path := range ready {
				select {
				case fileChan <- path:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// Scan reads the source folder once and returns the files that have not
// changed for the monitoring time. Returned files are marked as in progress
// until Process is done with them.
func (s *Service) Scan() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.SourceDir)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	current := make(map[string]bool, len(entries))
	var ready []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}

		path := filepath.Join(s.cfg.SourceDir, e.Name())
		current[path] = true
		if s.processing[path] {
			continue
		}

		st, ok := s.seen[path]
		if !ok || st.size != info.Size() || !st.modTime.Equal(info.ModTime()) {
			if !ok {
				s.logger.Info("new file detected", "path", path)
			}
			s.seen[path] = fileState{firstSeen: now, size: info.Size(), modTime: info.ModTime()}
			continue
		}

		if now.Sub(st.firstSeen) >= s.cfg.MonitoringTime {
			s.processing[path] = true
			ready = append(ready, path)
		}
	}

	for path := range s.seen {
		if !current[path] {
			delete(s.seen, path)
			delete(s.processing, path)
		}
	}
	return ready, nil
}

// Process indexes one file and moves it to the archive or bad folder. When
// ctx is cancelled mid-way the file stays in the source folder. A file that
// cannot be moved is not handed out by Scan again while it stays there.
func (s *Service) Process(ctx context.Context, path string) {
	n, err := s.indexer.IndexLocator(ctx, path, "")
	if ctx.Err() != nil {
		s.logger.Warn("indexing interrupted", "path", path)
		s.forget(path)
		return
	}

	dest := s.cfg.ArchiveDir
	if err != nil {
		s.logger.Error("indexing file", "path", path, "error", err)
		dest = s.cfg.BadDir
	} else {
		s.logger.Info("file indexed", "path", path, "chunks", n)
	}

	moved, merr := MoveToDir(path, dest, s.now())
	if merr != nil {
		// stays marked in progress until it leaves the source folder,
		// otherwise every scan would index it again
		s.logger.Error("moving file, skipping it until removed", "path", path, "error", merr)
		return
	}
	s.logger.Debug("file moved", "from", path, "to", moved)
	s.forget(path)
}

func (s *Service) forget(path string) {
	s.mu.Lock()
	delete(s.seen, path)
	delete(s.processing, path)
	s.mu.Unlock()
}

// MoveToDir moves path into dir/<YYYY-MM-DD>/ and returns the new path. Name
// collisions get a numeric suffix: report.pdf, report_1.pdf, report_2.pdf.
func MoveToDir(path, dir string, day time.Time) (string, error) {
	destDir := filepath.Join(dir, day.Format("2006-01-02"))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", destDir, err)
	}

	base := filepath.Base(path)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	destPath := filepath.Join(destDir, base)
	for i := 1; ; i++ {
		if _, err := os.Stat(destPath); errors.Is(err, os.ErrNotExist) {
			break
		}
		destPath = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", name, i, ext))
	}

	if err := os.Rename(path, destPath); err == nil {
		return destPath, nil
	}
	// rename fails across filesystems
	if err := copyFile(path, destPath); err != nil {
		return "", err
	}
	return destPath, os.Remove(path)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func createDirectories(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
