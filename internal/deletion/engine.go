package deletion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/maruaican/Quick-Folder-Deleter/internal/events"
	"github.com/maruaican/Quick-Folder-Deleter/internal/fsops"
	"github.com/maruaican/Quick-Folder-Deleter/internal/limiter"
)

// Emitter receives the engine's events in order
type Emitter interface {
	Emit(ctx context.Context, e events.Event) error
}

// WalkResult summarises the primary walk
type WalkResult struct {
	Deleted    int
	Skipped    int
	Failed     int
	Unreadable int // directories whose entries could not be listed
}

// Attempts is the number of items the walk acted on
func (r WalkResult) Attempts() int {
	return r.Deleted + r.Skipped + r.Failed
}

// Engine performs the bottom-up deletion walk of one tree
type Engine struct {
	fs     afero.Fs
	pacer  *limiter.Pacer
	logger Logger
}

// NewEngine creates an engine on fsys. A nil pacer uses the default pause.
func NewEngine(fsys afero.Fs, pacer *limiter.Pacer, logger Logger) *Engine {
	if pacer == nil {
		pacer = limiter.NewPacer(limiter.DefaultPause)
	}
	if logger == nil {
		logger = newStdLogger(nil)
	}
	return &Engine{fs: fsys, pacer: pacer, logger: logger}
}

// Walk deletes everything below root, children before parents, and emits one
// event per attempted item. The root directory itself is never removed here.
// Per-item failures are reported and never stop the walk; the only error
// returned is a failure to index root or to emit.
func (e *Engine) Walk(ctx context.Context, root string, progress *Progress, out Emitter) (WalkResult, error) {
	var res WalkResult

	dirs, err := e.index(root)
	if err != nil {
		return res, err
	}

	// Pre-order reversed: every directory comes after all of its descendants.
	for i := len(dirs) - 1; i >= 0; i-- {
		if err := e.visit(ctx, dirs[i], progress, out, &res); err != nil {
			return res, err
		}
	}
	return res, nil
}

// index lists root and every directory below it in pre-order
func (e *Engine) index(root string) ([]string, error) {
	var dirs []string
	err := afero.Walk(e.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			e.logger.Warn("Cannot index path, leaving it to the sweep", "path", path, "error", err)
			return nil
		}
		if info.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", root, err)
	}
	return dirs, nil
}

// visit handles the direct entries of dir: files first, then subdirectories
func (e *Engine) visit(ctx context.Context, dir string, progress *Progress, out Emitter, res *WalkResult) error {
	entries, err := afero.ReadDir(e.fs, dir)
	if err != nil {
		res.Unreadable++
		e.logger.Warn("Cannot list directory, leaving it to the sweep", "path", dir, "error", err)
		return nil
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := e.removeFile(ctx, filepath.Join(dir, entry.Name()), progress, out, res); err != nil {
			return err
		}
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := e.removeDir(ctx, filepath.Join(dir, entry.Name()), progress, out, res); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) removeFile(ctx context.Context, path string, progress *Progress, out Emitter, res *WalkResult) error {
	var ev events.Event
	if err := e.fs.Remove(path); err != nil {
		res.Failed++
		ev = events.Event{
			Kind:     events.KindError,
			Message:  fmt.Sprintf("[ERROR] file removal failed: %s => %v", path, err),
			Progress: progress.Advance(),
		}
	} else {
		res.Deleted++
		ev = events.Event{
			Kind:     events.KindDel,
			Message:  fmt.Sprintf("[DEL FILE] %s", path),
			Progress: progress.Advance(),
		}
	}
	return e.emit(ctx, out, ev)
}

func (e *Engine) removeDir(ctx context.Context, path string, progress *Progress, out Emitter, res *WalkResult) error {
	var ev events.Event
	err := e.fs.Remove(path)
	switch {
	case err == nil:
		res.Deleted++
		ev = events.Event{
			Kind:     events.KindDel,
			Message:  fmt.Sprintf("[DEL DIR] %s", path),
			Progress: progress.Advance(),
		}
	case fsops.IsDeferrable(err):
		res.Skipped++
		ev = events.Event{
			Kind:     events.KindSkip,
			Message:  fmt.Sprintf("[SKIP DIR] deferred to sweep: %s", path),
			Progress: progress.Advance(),
		}
	default:
		res.Failed++
		ev = events.Event{
			Kind:     events.KindError,
			Message:  fmt.Sprintf("[ERROR] directory removal failed: %s => %v", path, err),
			Progress: progress.Advance(),
		}
	}
	return e.emit(ctx, out, ev)
}

// emit hands the event to the consumer, then pauses so it can be flushed
func (e *Engine) emit(ctx context.Context, out Emitter, ev events.Event) error {
	if err := out.Emit(ctx, ev); err != nil {
		return err
	}
	e.pacer.Pace()
	return nil
}
