// Package config loads the process-wide settings shared by the server and
// the loader. Values come from built-in defaults, then an optional YAML file
// (CONFIG_FILE), then environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

// OllamaConfig configures both the embedding and the generation client.
type OllamaConfig struct {
	BaseURL          string        `yaml:"base_url"`
	Model            string        `yaml:"model"`
	EmbeddingModel   string        `yaml:"embedding_model"`
	NormalizeVectors bool          `yaml:"normalize_vectors"`
	Timeout          time.Duration `yaml:"timeout"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"db_name"`
}

// ConnString returns a libpq style connection string.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		p.Host, p.Port, p.User, p.Password, p.DBName)
}

type ChromemConfig struct {
	Path       string `yaml:"path"` // empty keeps the collection in memory
	Compress   bool   `yaml:"compress"`
	Collection string `yaml:"collection"`
}

type StoreConfig struct {
	Type      string         `yaml:"type"`   // memory, postgres, chromem
	Metric    string         `yaml:"metric"` // cosine, euclidean
	Dimension int            `yaml:"dimension"`
	Postgres  PostgresConfig `yaml:"postgres"`
	Chromem   ChromemConfig  `yaml:"chromem"`
}

type IndexConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	Concurrency  int `yaml:"concurrency"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

type WebSearchConfig struct {
	URL               string        `yaml:"url"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

type PDFConfig struct {
	DoclingURL string  `yaml:"docling_url"`
	CropTop    float64 `yaml:"crop_top"`
	CropBottom float64 `yaml:"crop_bottom"`
}

type LoaderConfig struct {
	Watch          bool          `yaml:"watch"`
	SourceDir      string        `yaml:"source_dir"`
	ArchiveDir     string        `yaml:"archive_dir"`
	BadDir         string        `yaml:"bad_dir"`
	MonitoringTime time.Duration `yaml:"monitoring_time"`
	PDF            PDFConfig     `yaml:"pdf"`
}

// AppConfig is the root configuration.
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Ollama    OllamaConfig    `yaml:"ollama"`
	Store     StoreConfig     `yaml:"store"`
	Index     IndexConfig     `yaml:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	WebSearch WebSearchConfig `yaml:"web_search"`
	Loader    LoaderConfig    `yaml:"loader"`
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{Addr: ":3000"},
		Log:    LogConfig{Level: "info", Format: "json"},
		Ollama: OllamaConfig{
			BaseURL:          "http://localhost:11434",
			Model:            "llama3.2",
			NormalizeVectors: true,
			Timeout:          120 * time.Second,
		},
		Store: StoreConfig{
			Type:      "memory",
			Metric:    "cosine",
			Dimension: 768,
			Postgres:  PostgresConfig{Host: "localhost", Port: 5432, User: "postgres", DBName: "rag"},
			Chromem:   ChromemConfig{Collection: "chunks"},
		},
		Index:     IndexConfig{ChunkSize: 1000, ChunkOverlap: 200, Concurrency: 4},
		Retrieval: RetrievalConfig{TopK: 5},
		WebSearch: WebSearchConfig{
			URL:               "https://api.duckduckgo.com/",
			Timeout:           15 * time.Second,
			RequestsPerSecond: 1,
		},
		Loader: LoaderConfig{
			SourceDir:      "./data/source",
			ArchiveDir:     "./data/archive",
			BadDir:         "./data/bad",
			MonitoringTime: 5 * time.Second,
			PDF:            PDFConfig{DoclingURL: "http://localhost:5001/v1/convert/file"},
		},
	}
}

// Load builds the configuration from defaults, the optional CONFIG_FILE and
// the environment, then validates it.
func Load() (*AppConfig, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if cfg.Ollama.EmbeddingModel == "" {
		cfg.Ollama.EmbeddingModel = cfg.Ollama.Model
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile overlays a YAML file on cfg. A missing file is not an error.
func loadFile(path string, cfg *AppConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *AppConfig) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("SERVER_ADDR", &cfg.Server.Addr)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	str("OLLAMA_BASE_URL", &cfg.Ollama.BaseURL)
	str("OLLAMA_MODEL", &cfg.Ollama.Model)
	str("OLLAMA_EMBEDDING_MODEL", &cfg.Ollama.EmbeddingModel)
	boolean("OLLAMA_NORMALIZE_VECTORS", &cfg.Ollama.NormalizeVectors)
	duration("OLLAMA_TIMEOUT", &cfg.Ollama.Timeout)

	str("VECTOR_STORE", &cfg.Store.Type)
	str("DISTANCE_METRIC", &cfg.Store.Metric)
	num("EMBEDDING_DIM", &cfg.Store.Dimension)
	str("PG_HOST", &cfg.Store.Postgres.Host)
	num("PG_PORT", &cfg.Store.Postgres.Port)
	str("PG_USER", &cfg.Store.Postgres.User)
	str("PG_PASS", &cfg.Store.Postgres.Password)
	str("PG_DB_NAME", &cfg.Store.Postgres.DBName)
	str("CHROMEM_PATH", &cfg.Store.Chromem.Path)
	boolean("CHROMEM_COMPRESS", &cfg.Store.Chromem.Compress)
	str("CHROMEM_COLLECTION", &cfg.Store.Chromem.Collection)

	num("CHUNK_SIZE", &cfg.Index.ChunkSize)
	num("CHUNK_OVERLAP", &cfg.Index.ChunkOverlap)
	num("INDEX_CONCURRENCY", &cfg.Index.Concurrency)
	num("RETRIEVAL_TOP_K", &cfg.Retrieval.TopK)

	str("WEB_SEARCH_URL", &cfg.WebSearch.URL)
	duration("WEB_SEARCH_TIMEOUT", &cfg.WebSearch.Timeout)
	float("WEB_SEARCH_RPS", &cfg.WebSearch.RequestsPerSecond)

	boolean("LOADER_WATCH", &cfg.Loader.Watch)
	str("LOADER_SOURCE_DIR", &cfg.Loader.SourceDir)
	str("LOADER_ARCHIVE_DIR", &cfg.Loader.ArchiveDir)
	str("LOADER_BAD_DIR", &cfg.Loader.BadDir)
	duration("LOADER_MONITORING_TIME", &cfg.Loader.MonitoringTime)
	str("DOCLING_URL", &cfg.Loader.PDF.DoclingURL)
	float("PDF_CROP_TOP", &cfg.Loader.PDF.CropTop)
	float("PDF_CROP_BOTTOM", &cfg.Loader.PDF.CropBottom)

	return errors.Join(errs...)
}

// Validate checks the configuration and fails fast on the first class of
// problems it finds. Chunking parameters are never clamped.
func (c *AppConfig) Validate() error {
	switch c.Store.Type {
	case "memory", "postgres", "chromem":
	default:
		return fmt.Errorf("%w: unknown vector store %q", ErrInvalidConfig, c.Store.Type)
	}
	switch c.Store.Metric {
	case "cosine", "euclidean":
	default:
		return fmt.Errorf("%w: unknown distance metric %q", ErrInvalidConfig, c.Store.Metric)
	}
	if c.Store.Type == "chromem" && c.Store.Metric != "cosine" {
		return fmt.Errorf("%w: chromem store supports cosine distance only", ErrInvalidConfig)
	}
	if c.Store.Dimension < 0 {
		return fmt.Errorf("%w: embedding dimension must not be negative", ErrInvalidConfig)
	}
	if (c.Store.Type == "postgres" || c.Store.Type == "chromem") && c.Store.Dimension == 0 {
		return fmt.Errorf("%w: %s store needs EMBEDDING_DIM", ErrInvalidConfig, c.Store.Type)
	}
	if c.Index.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalidConfig)
	}
	if c.Index.ChunkOverlap < 0 || c.Index.ChunkOverlap >= c.Index.ChunkSize {
		return fmt.Errorf("%w: chunk overlap must be in [0, chunk size)", ErrInvalidConfig)
	}
	if c.Index.Concurrency <= 0 {
		return fmt.Errorf("%w: index concurrency must be positive", ErrInvalidConfig)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("%w: retrieval top k must be positive", ErrInvalidConfig)
	}
	if c.Ollama.BaseURL == "" || c.Ollama.Model == "" {
		return fmt.Errorf("%w: ollama base url and model are required", ErrInvalidConfig)
	}
	if c.WebSearch.URL == "" {
		return fmt.Errorf("%w: web search url is required", ErrInvalidConfig)
	}
	return nil
}

// NewLogger builds the process logger from the log section.
func NewLogger(c LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(c.Format) == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
