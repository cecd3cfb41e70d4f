package deletion

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/maruaican/Quick-Folder-Deleter/internal/fsops"
)

var ErrSweepAborted = errors.New("sweep aborted")

// SweepResult summarises the fallback sweep
type SweepResult struct {
	Removed int
	Retried int
	Failed  int
}

// Sweeper force-removes whatever is left of a tree after the primary walk
type Sweeper struct {
	fs     afero.Fs
	logger Logger
}

// NewSweeper creates a sweeper on fsys
func NewSweeper(fsys afero.Fs, logger Logger) *Sweeper {
	if logger == nil {
		logger = newStdLogger(nil)
	}
	return &Sweeper{fs: fsys, logger: logger}
}

// Sweep removes root and everything below it, depth first. A failed removal
// or listing is retried exactly once after clearing blocking attributes; a
// failed retry is logged and the sweep moves on. The only error returned is
// for a root that cannot even be inspected. A root that is already gone is
// not an error.
func (s *Sweeper) Sweep(root string) (SweepResult, error) {
	var res SweepResult

	fi, err := fsops.Lstat(s.fs, root)
	if err != nil {
		if fsops.IsNotExist(err) {
			return res, nil
		}
		return res, fmt.Errorf("%w: %s: %v", ErrSweepAborted, root, err)
	}

	s.sweep(root, fi, true, &res)
	return res, nil
}

func (s *Sweeper) sweep(path string, fi os.FileInfo, isRoot bool, res *SweepResult) {
	if fi.IsDir() {
		for _, entry := range s.list(path, res) {
			s.sweep(filepath.Join(path, entry.Name()), entry, false, res)
		}
	}
	s.remove(path, isRoot, res)
}

func (s *Sweeper) list(dir string, res *SweepResult) []os.FileInfo {
	entries, err := afero.ReadDir(s.fs, dir)
	if err == nil || fsops.IsNotExist(err) {
		return entries
	}

	res.Retried++
	if cerr := fsops.ClearBlockingAttrs(s.fs, dir); cerr != nil {
		s.logger.Warn("Sweep could not clear attributes", "path", dir, "error", cerr)
	}
	entries, err = afero.ReadDir(s.fs, dir)
	if err != nil && !fsops.IsNotExist(err) {
		res.Failed++
		s.logger.Error("Sweep retry failed", "op", "list", "path", dir, "error", err)
	}
	return entries
}

func (s *Sweeper) remove(path string, isRoot bool, res *SweepResult) {
	err := s.fs.Remove(path)
	if err == nil {
		res.Removed++
		return
	}
	if fsops.IsNotExist(err) {
		return
	}

	res.Retried++
	// Never touch anything above the target: for the root only its own attributes are cleared.
	clearAttrs := fsops.ClearForRemoval
	if isRoot {
		clearAttrs = fsops.ClearBlockingAttrs
	}
	if cerr := clearAttrs(s.fs, path); cerr != nil {
		s.logger.Warn("Sweep could not clear attributes", "path", path, "error", cerr)
	}

	err = s.fs.Remove(path)
	if err == nil {
		res.Removed++
		return
	}
	if fsops.IsNotExist(err) {
		return
	}
	res.Failed++
	s.logger.Error("Sweep retry failed", "op", "remove", "path", path, "error", err)
}
