package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// MinDiskSpaceBytes is the free space floor for the log directory.
// Rotated server logs plus a pprof dump fit comfortably under this.
const MinDiskSpaceBytes = 100 * 1024 * 1024

// CheckLogDir verifies the log directory exists and is writable.
func CheckLogDir(dir string) Result {
	r := Result{Name: "log_dir", Required: false}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.Status = StatusWarn
		r.Message = fmt.Sprintf("cannot create %s: %v", dir, err)
		r.Details = "Server logs will be lost. Point logging.file somewhere writable."
		return r
	}

	probe := filepath.Join(dir, ".vitrina-doctor")
	f, err := os.Create(probe)
	if err != nil {
		r.Status = StatusWarn
		r.Message = fmt.Sprintf("not writable: %v", err)
		r.Details = "Server logs will be lost. Point logging.file somewhere writable."
		return r
	}
	_ = f.Close()
	_ = os.Remove(probe)

	r.Status = StatusPass
	r.Message = dir
	return r
}

// CheckDiskSpace verifies there is room for logs and profiles at path.
func CheckDiskSpace(path string) Result {
	r := Result{Name: "disk_space", Required: true}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("failed to check disk space: %v", err)
		return r
	}

	available := stat.Bavail * uint64(stat.Bsize)
	r.Message = fmt.Sprintf("%s free (minimum: %s)",
		formatBytes(available), formatBytes(MinDiskSpaceBytes))

	if available < MinDiskSpaceBytes {
		r.Status = StatusFail
		return r
	}

	r.Status = StatusPass
	return r
}

// formatBytes renders a byte count in human units.
func formatBytes(bytes uint64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
		tb = 1024 * gb
	)

	switch {
	case bytes >= tb:
		return fmt.Sprintf("%.1f TB", float64(bytes)/tb)
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/gb)
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/mb)
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/kb)
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
