package preflight

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckStatus_String(t *testing.T) {
	tests := []struct {
		status CheckStatus
		want   string
	}{
		{StatusPass, "PASS"},
		{StatusWarn, "WARN"},
		{StatusFail, "FAIL"},
		{CheckStatus(9), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestCheckResult_IsCritical(t *testing.T) {
	tests := []struct {
		name     string
		result   CheckResult
		expected bool
	}{
		{"required pass is not critical", CheckResult{Status: StatusPass, Required: true}, false},
		{"required fail is critical", CheckResult{Status: StatusFail, Required: true}, true},
		{"optional fail is not critical", CheckResult{Status: StatusFail, Required: false}, false},
		{"required warn is not critical", CheckResult{Status: StatusWarn, Required: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.result.IsCritical())
		})
	}
}

func TestRunAll_FreshDataDir(t *testing.T) {
	// Given: a data directory that does not exist yet
	dataDir := filepath.Join(t.TempDir(), ".docchat")
	checker := New(WithOutput(&bytes.Buffer{}))

	// When
	results := checker.RunAll(context.Background(), Target{
		DataDir:            dataDir,
		EmbeddingsProvider: "static",
		CompletionModel:    "gpt-4o-mini",
		HasAPIKey:          true,
	})

	// Then: the directory is created and every check passes
	require.Len(t, results, 4)
	assert.DirExists(t, dataDir)
	for _, r := range results {
		assert.Equal(t, StatusPass, r.Status, r.Name)
	}
	assert.False(t, checker.HasCriticalFailures(results))
	assert.Equal(t, "ready", checker.SummaryStatus(results))
	_, err := os.Stat(filepath.Join(dataDir, ".docchat-preflight-test"))
	assert.True(t, os.IsNotExist(err), "probe file is removed")
}

func TestRunAll_MissingKeyIsWarning(t *testing.T) {
	checker := New()

	results := checker.RunAll(context.Background(), Target{
		DataDir:            t.TempDir(),
		EmbeddingsProvider: "ollama",
	})

	assert.False(t, checker.HasCriticalFailures(results))
	assert.Equal(t, "ready_with_warnings", checker.SummaryStatus(results))
}

func TestCheckWritePermissions_Unwritable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	result := New().CheckWritePermissions(dir)

	assert.Equal(t, StatusFail, result.Status)
	assert.True(t, result.IsCritical())
}

func TestCheckEmbedderModel(t *testing.T) {
	checker := New()

	t.Run("missing cache dir warns", func(t *testing.T) {
		r := checker.CheckEmbedderModel("fastembed", filepath.Join(t.TempDir(), "models"))
		assert.Equal(t, StatusWarn, r.Status)
		assert.Contains(t, r.Message, "will download on first use")
	})

	t.Run("empty cache dir warns", func(t *testing.T) {
		r := checker.CheckEmbedderModel("fastembed", t.TempDir())
		assert.Equal(t, StatusWarn, r.Status)
		assert.Contains(t, r.Details, "(empty)")
	})

	t.Run("downloaded model passes", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "fast-all-MiniLM-L6-v2"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "fast-all-MiniLM-L6-v2", "model.onnx"), make([]byte, 2048), 0o644))

		r := checker.CheckEmbedderModel("fastembed", dir)
		assert.Equal(t, StatusPass, r.Status)
		assert.Equal(t, "Model downloaded (2.0 KB)", r.Message)
	})

	t.Run("static needs no model", func(t *testing.T) {
		r := checker.CheckEmbedderModel("static", "")
		assert.Equal(t, StatusPass, r.Status)
	})
}

func TestPrintResults(t *testing.T) {
	var buf bytes.Buffer
	checker := New(WithOutput(&buf), WithVerbose(true))

	checker.PrintResults([]CheckResult{
		{Name: "write_permissions", Status: StatusPass, Message: "OK", Details: "Data directory: .docchat", Required: true},
		{Name: "disk_space", Status: StatusFail, Message: "50.0 MB free (minimum: 100 MB)", Required: true},
		{Name: "completion_api_key", Status: StatusWarn, Message: "OPENAI_API_KEY is not set"},
	})

	out := buf.String()
	assert.Contains(t, out, "[PASS] write_permissions: OK")
	assert.Contains(t, out, "      Data directory: .docchat")
	assert.Contains(t, out, "Status: FAILED")
	assert.Contains(t, out, "1 error(s):\n  - disk_space: 50.0 MB free (minimum: 100 MB)")
	assert.Contains(t, out, "1 warning(s):\n  - completion_api_key: OPENAI_API_KEY is not set")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 bytes", formatBytes(512))
	assert.Equal(t, "1.5 MB", formatBytes(1536*1024))
	assert.Equal(t, "2.0 KB", formatBytes(2048))
}

func TestCheckDiskSpace_CountsIndexHeadroom(t *testing.T) {
	// Given: a data dir with a 4 KB index generation
	dir := t.TempDir()
	gen := filepath.Join(dir, "index", "gen-00000001")
	require.NoError(t, os.MkdirAll(gen, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(gen, "vectors.bin"), make([]byte, 4096), 0o644))

	// When
	result := New().CheckDiskSpace(dir)

	// Then: the required space includes twice the index
	assert.Equal(t, uint64(8192), 2*dirBytes(filepath.Join(dir, "index")))
	assert.Contains(t, result.Message, "need 100.0 MB")
	assert.Equal(t, uint64(0), dirBytes(filepath.Join(dir, "missing")))
}

func TestCheckResult_JSONStatusByName(t *testing.T) {
	data, err := json.Marshal(CheckResult{Name: "disk_space", Status: StatusWarn})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"WARN"`)
}
