package scan

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/maruaican/Quick-Folder-Deleter/internal/fsops"
)

var (
	ErrNotFound = errors.New("scan root does not exist")
	ErrNotDir   = errors.New("scan root is not a directory")
)

// Stats is the result of counting a tree. The root itself is not counted.
type Stats struct {
	Items      int   // Files + Dirs: the progress denominator
	Files      int   // regular files, symlinks and any other non-directory entry
	Dirs       int   // directories below the root
	Bytes      int64 // apparent size of regular files
	Unreadable int   // directories whose contents could not be listed
}

// Count walks root recursively without following symlinks and counts every
// file and directory below it. Only a failure on the root itself is an error;
// directories that cannot be listed are counted once and reported in
// Stats.Unreadable, matching what the deletion walk will be able to see.
func Count(fsys afero.Fs, root string) (Stats, error) {
	var st Stats

	fi, err := fsops.Lstat(fsys, root)
	if err != nil {
		if fsops.IsNotExist(err) {
			return st, fmt.Errorf("%w: %s", ErrNotFound, root)
		}
		return st, fmt.Errorf("stat %s: %w", root, err)
	}
	if !fi.IsDir() {
		return st, fmt.Errorf("%w: %s", ErrNotDir, root)
	}

	err = afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			st.Unreadable++
			return nil
		}
		if path == root {
			return nil
		}
		if info.IsDir() {
			st.Dirs++
			return nil
		}
		st.Files++
		if info.Mode().IsRegular() {
			st.Bytes += info.Size()
		}
		return nil
	})
	st.Items = st.Files + st.Dirs
	if err != nil {
		return st, fmt.Errorf("walk %s: %w", root, err)
	}
	return st, nil
}
