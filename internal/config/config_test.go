package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the user config at an empty dir and clears docchat env vars.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, k := range []string{
		"DOCCHAT_DATA_DIR", "DOCCHAT_HOST", "DOCCHAT_PORT", "DOCCHAT_EMBEDDINGS_PROVIDER",
		"DOCCHAT_EMBEDDINGS_MODEL", "DOCCHAT_OLLAMA_HOST", "DOCCHAT_INDEX_BACKEND",
		"DOCCHAT_COMPLETION_MODEL", "DOCCHAT_LOG_LEVEL", "DOCCHAT_RATE_LIMIT_ENABLED",
		"OPENAI_BASE_URL", "OPENAI_API_KEY", "DOCCHAT_COMPLETION_API_KEY",
	} {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, ".docchat", cfg.DataDir)
	assert.Equal(t, "127.0.0.1:5000", cfg.Server.Addr())
	assert.Equal(t, int64(12*1024*1024), cfg.Server.MaxUploadBytes())
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 600, cfg.Chunking.Size)
	assert.Equal(t, 100, cfg.Chunking.Overlap)
	assert.Equal(t, "fastembed", cfg.Embeddings.Provider)
	assert.Equal(t, 384, cfg.Embeddings.Dimensions)
	assert.True(t, cfg.Embeddings.FallbackStatic)
	assert.Equal(t, "flat", cfg.Index.Backend)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 4000, cfg.Retrieval.ContextBudget)
	assert.Equal(t, DefaultSystemPrompt, cfg.Retrieval.SystemPrompt)
	assert.Equal(t, "gpt-4o-mini", cfg.Completion.Model)
	assert.Equal(t, 400, cfg.Completion.MaxTokens)
	assert.InDelta(t, 0.2, cfg.Completion.Temperature, 1e-9)
	assert.Equal(t, []string{"500/day", "200/hour"}, cfg.RateLimit.Default)
	assert.Equal(t, []string{"20/hour"}, cfg.RateLimit.Upload)
	assert.Equal(t, []string{"200/hour"}, cfg.RateLimit.Chat)
	assert.False(t, cfg.Inbox.Enabled)
	assert.Equal(t, 500*time.Millisecond, cfg.Inbox.Debounce)

	require.NoError(t, cfg.Validate())
}

func TestLoad_NoFilesUsesDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, NewConfig().Chunking, cfg.Chunking)
	assert.Empty(t, cfg.Completion.APIKey)
}

func TestLoad_ProjectFileOverridesUserFile(t *testing.T) {
	isolate(t)

	// Given: a user config and a project config that disagree
	userPath := GetUserConfigPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(userPath), 0o755))
	require.NoError(t, os.WriteFile(userPath, []byte("completion:\n  model: user-model\nretrieval:\n  top_k: 3\n"), 0o644))

	dir := t.TempDir()
	project := "completion:\n  model: project-model\nindex:\n  backend: hnsw\nchunking:\n  size: 200\n  overlap: 0\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectFileName), []byte(project), 0o644))

	// When: I load
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: project wins, untouched user values survive
	assert.Equal(t, "project-model", cfg.Completion.Model)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, "hnsw", cfg.Index.Backend)
	assert.Equal(t, 200, cfg.Chunking.Size)
	assert.Equal(t, 0, cfg.Chunking.Overlap)
}

func TestLoad_YmlFallback(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".docchat.yml"), []byte("data_dir: elsewhere\n"), 0o644))

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, "elsewhere", cfg.DataDir)
}

func TestLoad_DotEnvAndEnvOverrides(t *testing.T) {
	isolate(t)

	// Given: a .env with the API key and an explicit env override for the model
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("OPENAI_API_KEY=sk-from-dotenv\nOPENAI_BASE_URL=http://localhost:9999\n"), 0o644))
	t.Setenv("DOCCHAT_COMPLETION_MODEL", "env-model")
	t.Setenv("DOCCHAT_PORT", "6001")
	t.Cleanup(func() {
		_ = os.Unsetenv("OPENAI_API_KEY")
		_ = os.Unsetenv("OPENAI_BASE_URL")
	})

	// When: I load
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: all layers are applied
	assert.Equal(t, "sk-from-dotenv", cfg.Completion.APIKey)
	assert.Equal(t, "http://localhost:9999", cfg.Completion.BaseURL)
	assert.Equal(t, "env-model", cfg.Completion.Model)
	assert.Equal(t, 6001, cfg.Server.Port)
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("OPENAI_API_KEY=from-file\n"), 0o644))
	t.Setenv("OPENAI_API_KEY", "from-env")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Completion.APIKey)
}

func TestLoad_InvalidYAML(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectFileName), []byte("server: [unclosed"), 0o644))

	_, err := Load(dir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"overlap equal to size", func(c *Config) { c.Chunking.Overlap = c.Chunking.Size }, "chunking.overlap"},
		{"negative overlap", func(c *Config) { c.Chunking.Overlap = -1 }, "chunking.overlap"},
		{"zero chunk size", func(c *Config) { c.Chunking.Size = 0 }, "chunking.size"},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "llama" }, "embeddings.provider"},
		{"unknown backend", func(c *Config) { c.Index.Backend = "ivf" }, "index.backend"},
		{"zero top_k", func(c *Config) { c.Retrieval.TopK = 0 }, "retrieval.top_k"},
		{"bad rate rule", func(c *Config) { c.RateLimit.Chat = []string{"lots"} }, "rate_limit.chat"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"temperature too high", func(c *Config) { c.Completion.Temperature = 3 }, "completion.temperature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWriteYAML_RoundTripsThroughLoad(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Completion.APIKey = "secret"
	cfg.Retrieval.TopK = 7

	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ProjectFileName)))

	data, err := os.ReadFile(filepath.Join(dir, ProjectFileName))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Retrieval.TopK)
}

func TestResolvePath(t *testing.T) {
	cfg := NewConfig()
	cfg.DataDir = "/var/docchat"

	assert.Equal(t, filepath.Join("/var/docchat", "inbox"), cfg.ResolvePath("inbox"))
	assert.Equal(t, "/abs/inbox", cfg.ResolvePath("/abs/inbox"))
}

func TestParseRateLimit(t *testing.T) {
	tests := []struct {
		in    string
		count int
		per   time.Duration
	}{
		{"200/hour", 200, time.Hour},
		{"500/day", 500, 24 * time.Hour},
		{"5 per minute", 5, time.Minute},
		{"10/seconds", 10, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			rule, err := ParseRateLimit(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.count, rule.Count)
			assert.Equal(t, tt.per, rule.Per)
		})
	}

	for _, bad := range []string{"", "hour", "0/hour", "-1/day", "3/fortnight"} {
		_, err := ParseRateLimit(bad)
		assert.Error(t, err, bad)
	}
}

func TestBackupFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ProjectFileName)

	// Missing file: nothing to back up
	got, err := BackupFile(path)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, os.WriteFile(path, []byte("data_dir: x\n"), 0o644))
	for i := 0; i < MaxBackups+2; i++ {
		got, err = BackupFile(path)
		require.NoError(t, err)
		require.NotEmpty(t, got)
		time.Sleep(2 * time.Millisecond)
	}

	backups, err := ListBackups(path)
	require.NoError(t, err)
	assert.Len(t, backups, MaxBackups)
	assert.Equal(t, got, backups[0])
}
