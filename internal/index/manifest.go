package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Aman-CERP/docchat/internal/store"
)

// On-disk layout under the index directory:
//
//	CURRENT                   name of the live generation, e.g. "gen-00000003"
//	gen-00000003/vectors.bin  vector blob (+ vectors.bin.graph for hnsw)
//	gen-00000003/slots.json   slot -> {chunk_id, file_name}
//	gen-00000003/manifest.json
//	.lock                     writer lock
const (
	currentFile   = "CURRENT"
	lockFile      = ".lock"
	vectorsFile   = "vectors.bin"
	slotsFile     = "slots.json"
	manifestFile  = "manifest.json"
	genPrefix     = "gen-"
	stagingPrefix = ".staging-"

	// FormatVersion is bumped when the generation layout changes.
	FormatVersion = 1
)

// Manifest describes one generation.
type Manifest struct {
	FormatVersion int           `json:"format_version"`
	Generation    uint64        `json:"generation"`
	Model         string        `json:"model"`
	Dimensions    int           `json:"dimensions"`
	Backend       store.Backend `json:"backend"`
	Count         int           `json:"count"`
	CreatedAt     time.Time     `json:"created_at"`
}

func genName(gen uint64) string {
	return fmt.Sprintf("%s%08d", genPrefix, gen)
}

func parseGenName(name string) (uint64, bool) {
	if !strings.HasPrefix(name, genPrefix) {
		return 0, false
	}
	gen, err := strconv.ParseUint(strings.TrimPrefix(name, genPrefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return gen, true
}

// readCurrent returns the live generation, or 0 when no generation exists.
func readCurrent(dir string) (uint64, error) {
	data, err := os.ReadFile(filepath.Join(dir, currentFile))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", currentFile, err)
	}
	name := strings.TrimSpace(string(data))
	gen, ok := parseGenName(name)
	if !ok || gen == 0 {
		return 0, fmt.Errorf("%s names invalid generation %q", currentFile, name)
	}
	return gen, nil
}

func writeCurrent(dir string, gen uint64) error {
	return store.WriteFileAtomic(filepath.Join(dir, currentFile), func(w io.Writer) error {
		_, err := io.WriteString(w, genName(gen)+"\n")
		return err
	})
}

func readManifest(genDir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(genDir, manifestFile))
	if err != nil {
		return m, fmt.Errorf("failed to read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return m, nil
}

// ReadLive returns the manifest of the live generation in dir without
// opening the corpus. ok is false when nothing has been committed yet.
func ReadLive(dir string) (m Manifest, ok bool, err error) {
	gen, err := readCurrent(dir)
	if err != nil {
		return m, false, err
	}
	if gen == 0 {
		return m, false, nil
	}
	m, err = readManifest(filepath.Join(dir, genName(gen)))
	if err != nil {
		return m, false, err
	}
	return m, true, nil
}

func writeManifest(genDir string, m Manifest) error {
	return store.WriteFileAtomic(filepath.Join(genDir, manifestFile), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	})
}
