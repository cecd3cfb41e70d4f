package safety

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maruaican/Quick-Folder-Deleter/internal/disk"
)

var (
	ErrEmptyPath      = errors.New("path is required")
	ErrNotAbsolute    = errors.New("absolute path required")
	ErrTraversal      = errors.New("path traversal detected")
	ErrNotFound       = errors.New("path does not exist")
	ErrSymlink        = errors.New("path is a symbolic link")
	ErrNotDirectory   = errors.New("path is not a directory")
	ErrProtectedPath  = errors.New("protected path")
	ErrOutsideAllowed = errors.New("outside allowed roots")
	ErrSymlinkEscape  = errors.New("symlink escape detected")
	ErrStaleMount     = errors.New("path is on an unresponsive mount")
)

// Validator enforces the safety contract for all delete operations
type Validator struct {
	AllowedRoots   []string
	ProtectedPaths []string
	NFSTimeout     time.Duration

	isStale func(path string, timeout time.Duration) bool
}

// NewValidator creates a validator with allowed roots and optional additional protected paths
func NewValidator(allowed []string, extraProtected []string) *Validator {
	return &Validator{
		AllowedRoots:   normalizeRoots(allowed),
		ProtectedPaths: defaultProtected(normalizeRoots(extraProtected)),
		NFSTimeout:     5 * time.Second,
		isStale:        disk.IsNFSStale,
	}
}

// ValidateTarget is the single source of truth for delete authorization.
// It returns the cleaned absolute path, or an error wrapping one of the
// sentinel errors above together with the offending path.
func (v *Validator) ValidateTarget(raw string) (string, error) {
	// 1. Required
	path := strings.TrimSpace(raw)
	if path == "" {
		return "", ErrEmptyPath
	}

	// 2. Absolute only; relative input is never resolved against the cwd
	if !filepath.IsAbs(path) {
		return "", fmt.Errorf("%w: %s", ErrNotAbsolute, path)
	}

	// 3. Detect path traversal in raw input
	if DetectTraversal(path) {
		return "", fmt.Errorf("%w: %s", ErrTraversal, path)
	}
	p := filepath.Clean(path)

	// 4. Must exist; lstat so a dangling link still counts as present
	fi, err := os.Lstat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return "", fmt.Errorf("inspect %s: %w", p, err)
	}

	// 5. The target itself must not be a link
	if fi.Mode()&os.ModeSymlink != 0 {
		return "", fmt.Errorf("%w: %s", ErrSymlink, p)
	}

	// 6. Directories only
	if !fi.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotDirectory, p)
	}

	// 7. Block protected paths, by name and after resolving parent links
	resolved, err := resolve(p)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	for _, candidate := range []string{p, resolved} {
		if IsProtectedPath(candidate, v.ProtectedPaths) || ContainsProtectedPath(candidate, v.ProtectedPaths) {
			return "", fmt.Errorf("%w: %s", ErrProtectedPath, candidate)
		}
	}

	// 8. Ensure within allowed roots
	if len(v.AllowedRoots) > 0 {
		if !IsWithinAllowedRoots(p, v.AllowedRoots) {
			return "", fmt.Errorf("%w: %s", ErrOutsideAllowed, p)
		}
		if !IsWithinAllowedRoots(resolved, v.AllowedRoots) {
			return "", fmt.Errorf("%w: %s -> %s", ErrSymlinkEscape, p, resolved)
		}
	}

	// 9. Refuse to start on a hung network mount
	if v.isStale != nil && v.NFSTimeout > 0 && v.isStale(p, v.NFSTimeout) {
		return "", fmt.Errorf("%w: %s", ErrStaleMount, p)
	}

	return p, nil
}

// IsValidationError reports whether err came from ValidateTarget's checks
// rather than from an unexpected filesystem failure
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrEmptyPath, ErrNotAbsolute, ErrTraversal, ErrNotFound, ErrSymlink,
		ErrNotDirectory, ErrProtectedPath, ErrOutsideAllowed, ErrSymlinkEscape, ErrStaleMount,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// resolve follows links in every component of an existing path
func resolve(cleanAbs string) (string, error) {
	resolved, err := filepath.EvalSymlinks(cleanAbs)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// DetectTraversal blocks any ".." segment in raw input
func DetectTraversal(raw string) bool {
	parts := strings.Split(filepath.ToSlash(raw), "/")
	for _, p := range parts {
		if p == ".." {
			return true
		}
	}
	return false
}

// IsWithinAllowedRoots checks if path is within any allowed root
func IsWithinAllowedRoots(path string, allowedRoots []string) bool {
	p := filepath.Clean(path)
	for _, r := range allowedRoots {
		if hasPathPrefix(p, r) {
			return true
		}
	}
	return false
}

// IsProtectedPath checks if path matches or lies below a protected path
func IsProtectedPath(path string, protected []string) bool {
	p := filepath.Clean(path)

	// Hard block: "/" exact
	if p == string(os.PathSeparator) {
		return true
	}

	for _, prot := range protected {
		prot = filepath.Clean(prot)
		if p == prot || hasPathPrefix(p, prot) {
			return true
		}
	}
	return false
}

// ContainsProtectedPath checks if deleting path would also delete a
// protected path below it
func ContainsProtectedPath(path string, protected []string) bool {
	p := filepath.Clean(path)
	for _, prot := range protected {
		prot = filepath.Clean(prot)
		if prot == string(os.PathSeparator) {
			continue
		}
		if hasPathPrefix(prot, p) {
			return true
		}
	}
	return false
}

// hasPathPrefix checks if path has the given prefix
func hasPathPrefix(path, prefix string) bool {
	path = filepath.Clean(path)
	prefix = filepath.Clean(prefix)

	if prefix == string(os.PathSeparator) {
		return path == "/"
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+string(os.PathSeparator))
}

// normalizeRoots converts slice of roots to absolute, cleaned paths
func normalizeRoots(roots []string) []string {
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		if strings.TrimSpace(r) == "" {
			continue
		}
		abs, err := filepath.Abs(r)
		if err != nil {
			continue
		}
		out = append(out, filepath.Clean(abs))
	}
	return out
}

// defaultProtected returns the base set of protected paths plus any extras
func defaultProtected(extra []string) []string {
	base := []string{
		"/",
		"/etc",
		"/bin",
		"/usr",
		"/boot",
		"/lib",
		"/lib64",
		"/sbin",
		"/proc",
		"/sys",
		"/dev",
	}
	return append(base, extra...)
}
