package preflight

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"syscall"
)

// MinDiskSpaceBytes is the free space required on top of the index headroom.
const MinDiskSpaceBytes = 100 * 1024 * 1024

// CheckDiskSpace checks the volume holding dataDir. Every commit stages a full
// copy of the live index generation, so the index size counts twice.
func (c *Checker) CheckDiskSpace(dataDir string) CheckResult {
	result := CheckResult{Name: "disk_space", Required: true}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(dataDir, &stat); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check disk space: %v", err)
		return result
	}

	free := stat.Bavail * uint64(stat.Bsize)
	needed := uint64(MinDiskSpaceBytes) + 2*dirBytes(filepath.Join(dataDir, "index"))
	result.Message = fmt.Sprintf("%s free (need %s)", formatBytes(free), formatBytes(needed))
	if free < needed {
		result.Status = StatusFail
		return result
	}
	result.Status = StatusPass
	return result
}

// dirBytes sums regular file sizes under dir; a missing dir is 0.
func dirBytes(dir string) uint64 {
	var total uint64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += uint64(info.Size())
		}
		return nil
	})
	return total
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d bytes", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit && exp < 3; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}
