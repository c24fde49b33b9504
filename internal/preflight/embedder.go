package preflight

import (
	"fmt"
	"os"
	"path/filepath"
)

// CheckEmbedderModel reports whether the fastembed model is already in the
// cache directory. Other providers need no local model.
func (c *Checker) CheckEmbedderModel(provider, cacheDir string) CheckResult {
	result := CheckResult{
		Name:     "embedder_model",
		Required: false, // the factory can fall back to static
	}

	switch provider {
	case "static":
		result.Status = StatusPass
		result.Message = "static embedder, no model needed"
		return result
	case "ollama":
		result.Status = StatusPass
		result.Message = "served by ollama"
		return result
	}

	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		result.Status = StatusWarn
		if os.IsNotExist(err) {
			result.Message = "Model not downloaded (will download on first use)"
		} else {
			result.Message = fmt.Sprintf("Cannot access model directory: %v", err)
		}
		result.Details = "Model directory: " + cacheDir
		return result
	}

	if len(entries) == 0 {
		result.Status = StatusWarn
		result.Message = "Model not downloaded (will download on first use)"
		result.Details = fmt.Sprintf("Model directory: %s (empty)", cacheDir)
		return result
	}

	var totalSize int64
	_ = filepath.Walk(cacheDir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	result.Status = StatusPass
	if totalSize > 0 {
		result.Message = fmt.Sprintf("Model downloaded (%s)", formatBytes(uint64(totalSize)))
	} else {
		result.Message = "Model downloaded and ready"
	}
	result.Details = "Model directory: " + cacheDir
	return result
}
