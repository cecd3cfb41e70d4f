package disk

import (
	"errors"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Usage describes the filesystem holding a path
type Usage struct {
	Path        string  `json:"path"`
	UsedPercent float64 `json:"used_percent"`
	FreeBytes   int64   `json:"free_bytes"`
	TotalBytes  int64   `json:"total_bytes"`
}

// GetDiskUsage returns the usage of the filesystem holding path
func GetDiskUsage(path string) (Usage, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Usage{}, err
	}

	// Calculate total and free bytes
	u := Usage{Path: path}
	u.TotalBytes = int64(stat.Blocks) * int64(stat.Bsize)
	u.FreeBytes = int64(stat.Bavail) * int64(stat.Bsize)
	usedBytes := u.TotalBytes - u.FreeBytes

	if u.TotalBytes > 0 {
		u.UsedPercent = (float64(usedBytes) / float64(u.TotalBytes)) * 100.0
	}
	return u, nil
}

// IsNFSStale checks if a path is on a stale NFS mount by attempting a quick stat
// with timeout. Returns true if the operation times out or fails with NFS-specific errors.
func IsNFSStale(path string, timeout time.Duration) bool {
	done := make(chan error, 1)

	go func() {
		_, err := os.Stat(path)
		done <- err
	}()

	select {
	case err := <-done:
		// Common NFS errors: EIO, ESTALE, ENXIO
		return err != nil && (os.IsTimeout(err) ||
			errors.Is(err, unix.EIO) ||
			errors.Is(err, unix.ESTALE) ||
			errors.Is(err, unix.ENXIO))
	case <-time.After(timeout):
		// Operation timed out - likely stale NFS
		return true
	}
}
