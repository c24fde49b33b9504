package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_WritesJSONToFileAndStderr(t *testing.T) {
	// Given: a log file in a temp dir and a captured stderr
	path := filepath.Join(t.TempDir(), "logs", "docchat.log")
	var stderr bytes.Buffer
	cfg := Config{Level: "debug", FilePath: path, WriteToStderr: true}

	// When: I log a record
	logger, cleanup, err := setup(cfg, &stderr)
	require.NoError(t, err)
	logger.Debug("document_ingested", slog.String("file", "a.txt"), slog.Int("chunks", 3))
	cleanup()

	// Then: both sinks receive the JSON record
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &rec))
	assert.Equal(t, "document_ingested", rec["msg"])
	assert.Equal(t, "a.txt", rec["file"])
	assert.Equal(t, float64(3), rec["chunks"])
	assert.Contains(t, stderr.String(), "document_ingested")
}

func TestSetup_ForStdioNeverWritesStderr(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docchat.log")
	var stderr bytes.Buffer

	cfg := DefaultConfig()
	cfg.FilePath = path

	logger, cleanup, err := setup(cfg.ForStdio(), &stderr)
	require.NoError(t, err)
	defer cleanup()

	logger.Info("hello")
	assert.Empty(t, stderr.String())
}

func TestSetup_LevelFilters(t *testing.T) {
	var stderr bytes.Buffer
	logger, cleanup, err := setup(Config{Level: "warn", WriteToStderr: true, Format: "text"}, &stderr)
	require.NoError(t, err)
	defer cleanup()

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, stderr.String(), "hidden")
	assert.Contains(t, stderr.String(), "msg=shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestRotatingWriter_Rotates(t *testing.T) {
	// Given: a writer with a 1 MB limit and two kept files
	path := filepath.Join(t.TempDir(), "docchat.log")
	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	line := []byte(strings.Repeat("x", 400*1024) + "\n")

	// When: I write enough to rotate several times
	for i := 0; i < 9; i++ {
		_, err := w.Write(line)
		require.NoError(t, err)
	}

	// Then: the live file and at most two rotations exist
	assert.FileExists(t, path)
	assert.FileExists(t, path+".1")
	assert.FileExists(t, path+".2")
	assert.NoFileExists(t, path+".3")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.LessOrEqual(t, info.Size(), int64(1024*1024))
}
