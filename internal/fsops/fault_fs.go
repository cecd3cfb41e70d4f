package fsops

import (
	"os"
	"sync"

	"github.com/spf13/afero"
)

// FaultFs wraps a filesystem and makes Remove fail for selected paths.
// Every removal attempt is recorded, so tests can prove what was touched.
type FaultFs struct {
	afero.Fs

	mu     sync.Mutex
	faults map[string]*fault
	Calls  []string
}

type fault struct {
	err       error
	remaining int // negative: fail forever
}

// NewFaultFs wraps base
func NewFaultFs(base afero.Fs) *FaultFs {
	return &FaultFs{
		Fs:     base,
		faults: make(map[string]*fault),
	}
}

// FailRemove makes the next times removals of path fail with err.
// A negative times fails every attempt.
func (f *FaultFs) FailRemove(path string, err error, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[path] = &fault{err: err, remaining: times}
}

func (f *FaultFs) Remove(name string) error {
	if err := f.attempt("rm:", name); err != nil {
		return err
	}
	return f.Fs.Remove(name)
}

func (f *FaultFs) RemoveAll(name string) error {
	if err := f.attempt("rmall:", name); err != nil {
		return err
	}
	return f.Fs.RemoveAll(name)
}

// LstatIfPossible keeps symlink-aware stat working through the wrapper
func (f *FaultFs) LstatIfPossible(name string) (os.FileInfo, bool, error) {
	if l, ok := f.Fs.(afero.Lstater); ok {
		return l.LstatIfPossible(name)
	}
	fi, err := f.Fs.Stat(name)
	return fi, false, err
}

// Attempts returns how many times path was passed to Remove
func (f *FaultFs) Attempts(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == "rm:"+path {
			n++
		}
	}
	return n
}

func (f *FaultFs) attempt(prefix, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, prefix+name)
	ft, ok := f.faults[name]
	if !ok || ft.remaining == 0 {
		return nil
	}
	if ft.remaining > 0 {
		ft.remaining--
	}
	return &os.PathError{Op: "remove", Path: name, Err: ft.err}
}
