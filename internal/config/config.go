package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultSystemPrompt is the base instruction sent with every chat turn.
const DefaultSystemPrompt = "You are a helpful assistant. Use the retrieved documents when answering. Be concise."

// ProjectFileName is the per-directory configuration file.
const ProjectFileName = ".docchat.yaml"

// Config represents the complete docchat configuration.
type Config struct {
	DataDir    string           `yaml:"data_dir" json:"data_dir"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Completion CompletionConfig `yaml:"completion" json:"completion"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" json:"rate_limit"`
	Inbox      InboxConfig      `yaml:"inbox" json:"inbox"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	CORSOrigins     []string      `yaml:"cors_origins" json:"cors_origins"`
	MaxUploadMB     int           `yaml:"max_upload_mb" json:"max_upload_mb"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// MaxUploadBytes returns the upload cap in bytes.
func (s ServerConfig) MaxUploadBytes() int64 {
	return int64(s.MaxUploadMB) * 1024 * 1024
}

// ChunkingConfig configures the word-window chunker.
type ChunkingConfig struct {
	Size    int `yaml:"size" json:"size"`
	Overlap int `yaml:"overlap" json:"overlap"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is one of fastembed, ollama, static.
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	// CacheDir holds downloaded fastembed models. Empty means <data_dir>/models.
	CacheDir   string `yaml:"cache_dir" json:"cache_dir"`
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	// CacheSize is the number of query embeddings kept in memory.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
	// FallbackStatic switches to the static embedder when the provider is unavailable.
	FallbackStatic bool `yaml:"fallback_static" json:"fallback_static"`
}

// IndexConfig selects the vector index backend.
type IndexConfig struct {
	Backend      string `yaml:"backend" json:"backend"`
	HNSWM        int    `yaml:"hnsw_m" json:"hnsw_m"`
	HNSWEfSearch int    `yaml:"hnsw_ef_search" json:"hnsw_ef_search"`
}

// RetrievalConfig configures grounding context assembly.
type RetrievalConfig struct {
	TopK          int    `yaml:"top_k" json:"top_k"`
	ContextBudget int    `yaml:"context_budget" json:"context_budget"`
	SystemPrompt  string `yaml:"system_prompt" json:"system_prompt"`
}

// CompletionConfig configures the OpenAI-compatible completion endpoint.
type CompletionConfig struct {
	BaseURL           string        `yaml:"base_url" json:"base_url"`
	Model             string        `yaml:"model" json:"model"`
	MaxTokens         int           `yaml:"max_tokens" json:"max_tokens"`
	Temperature       float64       `yaml:"temperature" json:"temperature"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`

	// APIKey is read from the environment only.
	APIKey string `yaml:"-" json:"-"`
}

// RateLimitConfig configures per-client request limits of the HTTP API.
// Rules are written as "<count>/<unit>" with unit second, minute, hour or day.
type RateLimitConfig struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Default []string `yaml:"default" json:"default"`
	Upload  []string `yaml:"upload" json:"upload"`
	Chat    []string `yaml:"chat" json:"chat"`
}

// InboxConfig configures the watched drop folder.
type InboxConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Dir      string        `yaml:"dir" json:"dir"`
	Debounce time.Duration `yaml:"debounce" json:"debounce"`
}

// LoggingConfig configures the slog output.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig returns a Config with default values.
func NewConfig() *Config {
	return &Config{
		DataDir: ".docchat",
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            5000,
			CORSOrigins:     []string{"*"},
			MaxUploadMB:     12,
			ShutdownTimeout: 10 * time.Second,
		},
		Chunking: ChunkingConfig{
			Size:    600,
			Overlap: 100,
		},
		Embeddings: EmbeddingsConfig{
			Provider:       "fastembed",
			Model:          "sentence-transformers/all-MiniLM-L6-v2",
			Dimensions:     384,
			OllamaHost:     "http://localhost:11434",
			BatchSize:      32,
			CacheSize:      1000,
			FallbackStatic: true,
		},
		Index: IndexConfig{
			Backend:      "flat",
			HNSWM:        16,
			HNSWEfSearch: 64,
		},
		Retrieval: RetrievalConfig{
			TopK:          5,
			ContextBudget: 4000,
			SystemPrompt:  DefaultSystemPrompt,
		},
		Completion: CompletionConfig{
			BaseURL:           "https://api.openai.com",
			Model:             "gpt-4o-mini",
			MaxTokens:         400,
			Temperature:       0.2,
			Timeout:           60 * time.Second,
			MaxRetries:        2,
			RequestsPerSecond: 2,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Default: []string{"500/day", "200/hour"},
			Upload:  []string{"20/hour"},
			Chat:    []string{"200/hour"},
		},
		Inbox: InboxConfig{
			Enabled:  false,
			Dir:      "inbox",
			Debounce: 500 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file:
// $XDG_CONFIG_HOME/docchat/config.yaml, else ~/.config/docchat/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "docchat", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "docchat", "config.yaml")
	}
	return filepath.Join(home, ".config", "docchat", "config.yaml")
}

// loadUserConfig loads the user configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}
	var parsed Config
	if err := parseYAML(path, &parsed); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", path, err)
	}
	return &parsed, nil
}

// Load loads configuration for the working directory dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. .env in dir (never overrides variables already set)
//  3. User config (~/.config/docchat/config.yaml)
//  4. Project config (.docchat.yaml in dir)
//  5. Environment variables (DOCCHAT_*, OPENAI_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := loadDotEnv(dir); err != nil {
		return nil, err
	}

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if !fileExists(path) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// loadFromFile merges .docchat.yaml (or .docchat.yml) from dir, if present.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{ProjectFileName, ".docchat.yml"} {
		path := filepath.Join(dir, name)
		if !fileExists(path) {
			continue
		}
		var parsed Config
		if err := parseYAML(path, &parsed); err != nil {
			return err
		}
		c.mergeWith(&parsed)
		return nil
	}
	return nil
}

func parseYAML(path string, out *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// mergeWith merges non-zero values from other into c. Booleans are merged only
// when their section carries some other explicit value, since yaml leaves an
// absent bool false.
func (c *Config) mergeWith(other *Config) {
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}

	// Server
	if other.Server.Host != "" {
		c.Server.Host = other.Server.Host
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if len(other.Server.CORSOrigins) > 0 {
		c.Server.CORSOrigins = other.Server.CORSOrigins
	}
	if other.Server.MaxUploadMB != 0 {
		c.Server.MaxUploadMB = other.Server.MaxUploadMB
	}
	if other.Server.ShutdownTimeout != 0 {
		c.Server.ShutdownTimeout = other.Server.ShutdownTimeout
	}

	// Chunking. Overlap 0 is meaningful, so it follows an explicit size.
	if other.Chunking.Size != 0 {
		c.Chunking.Size = other.Chunking.Size
		c.Chunking.Overlap = other.Chunking.Overlap
	} else if other.Chunking.Overlap != 0 {
		c.Chunking.Overlap = other.Chunking.Overlap
	}

	// Embeddings
	e := other.Embeddings
	if e.Provider != "" {
		c.Embeddings.Provider = e.Provider
		c.Embeddings.FallbackStatic = e.FallbackStatic
	}
	if e.Model != "" {
		c.Embeddings.Model = e.Model
	}
	if e.Dimensions != 0 {
		c.Embeddings.Dimensions = e.Dimensions
	}
	if e.CacheDir != "" {
		c.Embeddings.CacheDir = e.CacheDir
	}
	if e.OllamaHost != "" {
		c.Embeddings.OllamaHost = e.OllamaHost
	}
	if e.BatchSize != 0 {
		c.Embeddings.BatchSize = e.BatchSize
	}
	if e.CacheSize != 0 {
		c.Embeddings.CacheSize = e.CacheSize
	}

	// Index
	if other.Index.Backend != "" {
		c.Index.Backend = other.Index.Backend
	}
	if other.Index.HNSWM != 0 {
		c.Index.HNSWM = other.Index.HNSWM
	}
	if other.Index.HNSWEfSearch != 0 {
		c.Index.HNSWEfSearch = other.Index.HNSWEfSearch
	}

	// Retrieval
	if other.Retrieval.TopK != 0 {
		c.Retrieval.TopK = other.Retrieval.TopK
	}
	if other.Retrieval.ContextBudget != 0 {
		c.Retrieval.ContextBudget = other.Retrieval.ContextBudget
	}
	if other.Retrieval.SystemPrompt != "" {
		c.Retrieval.SystemPrompt = other.Retrieval.SystemPrompt
	}

	// Completion
	cc := other.Completion
	if cc.BaseURL != "" {
		c.Completion.BaseURL = cc.BaseURL
	}
	if cc.Model != "" {
		c.Completion.Model = cc.Model
	}
	if cc.MaxTokens != 0 {
		c.Completion.MaxTokens = cc.MaxTokens
	}
	if cc.Temperature != 0 {
		c.Completion.Temperature = cc.Temperature
	}
	if cc.Timeout != 0 {
		c.Completion.Timeout = cc.Timeout
	}
	if cc.MaxRetries != 0 {
		c.Completion.MaxRetries = cc.MaxRetries
	}
	if cc.RequestsPerSecond != 0 {
		c.Completion.RequestsPerSecond = cc.RequestsPerSecond
	}

	// Rate limits
	rl := other.RateLimit
	if len(rl.Default) > 0 || len(rl.Upload) > 0 || len(rl.Chat) > 0 || rl.Enabled {
		c.RateLimit.Enabled = rl.Enabled
	}
	if len(rl.Default) > 0 {
		c.RateLimit.Default = rl.Default
	}
	if len(rl.Upload) > 0 {
		c.RateLimit.Upload = rl.Upload
	}
	if len(rl.Chat) > 0 {
		c.RateLimit.Chat = rl.Chat
	}

	// Inbox
	if other.Inbox.Enabled {
		c.Inbox.Enabled = true
	}
	if other.Inbox.Dir != "" {
		c.Inbox.Dir = other.Inbox.Dir
	}
	if other.Inbox.Debounce != 0 {
		c.Inbox.Debounce = other.Inbox.Debounce
	}

	// Logging
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
}

// applyEnvOverrides applies DOCCHAT_* and OPENAI_* environment variables.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCCHAT_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("DOCCHAT_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("DOCCHAT_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("DOCCHAT_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("DOCCHAT_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("DOCCHAT_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("DOCCHAT_INDEX_BACKEND"); v != "" {
		c.Index.Backend = v
	}
	if v := os.Getenv("DOCCHAT_COMPLETION_MODEL"); v != "" {
		c.Completion.Model = v
	}
	if v := os.Getenv("DOCCHAT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DOCCHAT_RATE_LIMIT_ENABLED"); v != "" {
		c.RateLimit.Enabled = strings.EqualFold(v, "true") || v == "1"
	}

	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.Completion.BaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Completion.APIKey = v
	}
	// DOCCHAT_COMPLETION_API_KEY wins over OPENAI_API_KEY
	if v := os.Getenv("DOCCHAT_COMPLETION_API_KEY"); v != "" {
		c.Completion.APIKey = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must be set")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server.max_upload_mb must be positive, got %d", c.Server.MaxUploadMB)
	}

	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap must be >= 0 and < chunking.size (%d), got %d",
			c.Chunking.Size, c.Chunking.Overlap)
	}

	validProviders := map[string]bool{"fastembed": true, "ollama": true, "static": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'fastembed', 'ollama', or 'static', got %s", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}
	if c.Embeddings.CacheSize < 0 {
		return fmt.Errorf("embeddings.cache_size must be non-negative, got %d", c.Embeddings.CacheSize)
	}

	switch strings.ToLower(c.Index.Backend) {
	case "flat", "hnsw":
	default:
		return fmt.Errorf("index.backend must be 'flat' or 'hnsw', got %s", c.Index.Backend)
	}
	if c.Index.HNSWM < 2 {
		return fmt.Errorf("index.hnsw_m must be at least 2, got %d", c.Index.HNSWM)
	}
	if c.Index.HNSWEfSearch <= 0 {
		return fmt.Errorf("index.hnsw_ef_search must be positive, got %d", c.Index.HNSWEfSearch)
	}

	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.ContextBudget < 0 {
		return fmt.Errorf("retrieval.context_budget must be non-negative, got %d", c.Retrieval.ContextBudget)
	}

	if c.Completion.BaseURL == "" {
		return fmt.Errorf("completion.base_url must be set")
	}
	if c.Completion.MaxTokens <= 0 {
		return fmt.Errorf("completion.max_tokens must be positive, got %d", c.Completion.MaxTokens)
	}
	if c.Completion.Temperature < 0 || c.Completion.Temperature > 2 {
		return fmt.Errorf("completion.temperature must be between 0 and 2, got %g", c.Completion.Temperature)
	}
	if c.Completion.MaxRetries < 0 {
		return fmt.Errorf("completion.max_retries must be non-negative, got %d", c.Completion.MaxRetries)
	}

	for name, rules := range map[string][]string{
		"rate_limit.default": c.RateLimit.Default,
		"rate_limit.upload":  c.RateLimit.Upload,
		"rate_limit.chat":    c.RateLimit.Chat,
	} {
		for _, r := range rules {
			if _, err := ParseRateLimit(r); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	return nil
}

// ResolvePath returns p relative to the data directory unless it is absolute.
func (c *Config) ResolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
