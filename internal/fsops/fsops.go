package fsops

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"
)

// NewOsFs returns the filesystem used outside of tests
func NewOsFs() afero.Fs {
	return afero.NewOsFs()
}

// IsDeferrable reports whether a directory removal failed only because the
// directory is still populated or temporarily locked. Such directories are left
// for the final sweep rather than reported as failures.
func IsDeferrable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, syscall.ENOTEMPTY),
		errors.Is(err, syscall.EEXIST),
		errors.Is(err, syscall.EBUSY),
		errors.Is(err, fs.ErrPermission):
		return true
	}
	return false
}

// IsNotExist reports whether err means the path is already gone
func IsNotExist(err error) bool {
	return err != nil && errors.Is(err, fs.ErrNotExist)
}

// Exists reports whether path is still present, without following a final symlink.
// Errors other than non-existence count as present: the caller cannot prove
// the path is gone.
func Exists(fsys afero.Fs, path string) bool {
	_, err := lstat(fsys, path)
	return !IsNotExist(err)
}

// Lstat stats path without following a final symlink when the filesystem supports it
func Lstat(fsys afero.Fs, path string) (os.FileInfo, error) {
	return lstat(fsys, path)
}

func lstat(fsys afero.Fs, path string) (os.FileInfo, error) {
	if l, ok := fsys.(afero.Lstater); ok {
		fi, _, err := l.LstatIfPossible(path)
		return fi, err
	}
	return fsys.Stat(path)
}

// ClearBlockingAttrs makes path removable: it grants the owner write
// permission (full access for directories, so they can be listed too) and,
// on the real filesystem, drops the immutable and append-only inode flags
// where the platform has them.
func ClearBlockingAttrs(fsys afero.Fs, path string) error {
	fi, err := lstat(fsys, path)
	if err != nil {
		return err
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		// chmod would follow the link; the link itself carries no permission bits
		return nil
	}

	if isOsFs(fsys) {
		// best-effort: most filesystems and unprivileged users reject flag changes
		_ = clearInodeFlags(path)
	}

	want := os.FileMode(0o200)
	if fi.IsDir() {
		want = 0o700
	}
	if fi.Mode().Perm()&want == want {
		return nil
	}
	keep := fi.Mode() & (os.ModePerm | os.ModeSetuid | os.ModeSetgid | os.ModeSticky)
	return fsys.Chmod(path, keep|want)
}

// ClearForRemoval clears blocking attributes on path and on its parent
// directory, since on POSIX systems the parent's permissions govern unlinking.
func ClearForRemoval(fsys afero.Fs, path string) error {
	parentErr := ClearBlockingAttrs(fsys, filepath.Dir(path))
	if err := ClearBlockingAttrs(fsys, path); err != nil {
		return err
	}
	return parentErr
}

func isOsFs(fsys afero.Fs) bool {
	_, ok := fsys.(*afero.OsFs)
	return ok
}
