package deletion

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maruaican/Quick-Folder-Deleter/internal/events"
	"github.com/maruaican/Quick-Folder-Deleter/internal/fsops"
	"github.com/maruaican/Quick-Folder-Deleter/internal/limiter"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func testOptions(fsys afero.Fs) Options {
	return Options{
		Fs:     fsys,
		Pacer:  limiter.NewPacer(0),
		Logger: quietLogger(),
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// runAndCollect runs op to completion and returns every event it produced
func runAndCollect(t *testing.T, op *Operation) ([]events.Event, Result) {
	t.Helper()
	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := op.Run(context.Background())
		done <- outcome{res, err}
	}()

	var got []events.Event
	for e := range op.Events() {
		got = append(got, e)
	}
	out := <-done
	require.NoError(t, out.err)
	return got, out.res
}

func kinds(evs []events.Event) []events.Kind {
	out := make([]events.Kind, len(evs))
	for i, e := range evs {
		out[i] = e.Kind
	}
	return out
}

func progresses(evs []events.Event) []int {
	out := make([]int, len(evs))
	for i, e := range evs {
		out[i] = e.Progress
	}
	return out
}

func assertTerminal(t *testing.T, evs []events.Event) {
	t.Helper()
	ends := 0
	for _, e := range evs {
		if e.Kind == events.KindEnd {
			ends++
		}
	}
	require.Equal(t, 1, ends, "exactly one end event")
	assert.Equal(t, events.KindEnd, evs[len(evs)-1].Kind, "end is last")
}

func assertMonotonic(t *testing.T, evs []events.Event) {
	t.Helper()
	for i := 1; i < len(evs); i++ {
		assert.GreaterOrEqual(t, evs[i].Progress, evs[i-1].Progress,
			"progress decreased at event %d: %v", i, progresses(evs))
	}
}

func TestOperationSmallTree(t *testing.T) {
	root := filepath.Join(t.TempDir(), "x")
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	writeFile(t, filepath.Join(root, "b", "c.txt"), "c")

	op := New(root, testOptions(fsops.NewOsFs()))
	evs, res := runAndCollect(t, op)

	assert.Equal(t, []events.Kind{
		events.KindInfo, events.KindInfo,
		events.KindDel, events.KindDel, events.KindDel,
		events.KindSuccess, events.KindEnd,
	}, kinds(evs))
	assert.Equal(t, []int{0, 0, 33, 67, 100, 100, 100}, progresses(evs))

	assert.Contains(t, evs[1].Message, "items to delete: 3")
	assert.Equal(t, "[DEL FILE] "+filepath.Join(root, "b", "c.txt"), evs[2].Message)
	assert.Equal(t, "[DEL FILE] "+filepath.Join(root, "a.txt"), evs[3].Message)
	assert.Equal(t, "[DEL DIR] "+filepath.Join(root, "b"), evs[4].Message)

	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, int64(2), res.Bytes)
	assert.NoDirExists(t, root)
}

func TestOperationEmptyTarget(t *testing.T) {
	root := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.Mkdir(root, 0o755))

	evs, res := runAndCollect(t, New(root, testOptions(fsops.NewOsFs())))

	assert.Equal(t, []events.Kind{
		events.KindInfo, events.KindInfo, events.KindSuccess, events.KindEnd,
	}, kinds(evs))
	assert.Equal(t, 100, evs[1].Progress)
	assert.Equal(t, 100, evs[3].Progress)
	assert.Zero(t, res.Total)
	assert.Equal(t, 1, res.Sweep.Removed, "the sweep removes the root")
	assert.NoDirExists(t, root)
}

func TestOperationScanFailure(t *testing.T) {
	root := filepath.Join(t.TempDir(), "missing")

	evs, res := runAndCollect(t, New(root, testOptions(fsops.NewOsFs())))

	require.Equal(t, []events.Kind{events.KindInfo, events.KindError, events.KindEnd}, kinds(evs))
	assert.Contains(t, evs[1].Message, "scan of target failed")
	assert.Zero(t, evs[1].Progress)
	assert.Zero(t, evs[2].Progress)
	assert.Equal(t, OutcomeScanFailed, res.Outcome)
	assert.Zero(t, res.Processed)
}

func TestOperationLockedFileLeavesTreeIncomplete(t *testing.T) {
	root := filepath.Join(t.TempDir(), "x")
	locked := filepath.Join(root, "keep", "locked.txt")
	writeFile(t, locked, "l")
	writeFile(t, filepath.Join(root, "other.txt"), "o")

	fsys := fsops.NewFaultFs(fsops.NewOsFs())
	fsys.FailRemove(locked, syscall.EACCES, -1)

	evs, res := runAndCollect(t, New(root, testOptions(fsys)))

	assert.Equal(t, []events.Kind{
		events.KindInfo, events.KindInfo,
		events.KindError, // keep/locked.txt
		events.KindDel,   // other.txt
		events.KindSkip,  // keep/ still populated
		events.KindError, // still exists
		events.KindEnd,
	}, kinds(evs))
	assert.Contains(t, evs[2].Message, locked)
	assert.Contains(t, evs[5].Message, "still exists after deletion")
	assert.Equal(t, "[END] done (incomplete)", evs[6].Message)
	assert.Equal(t, evs[5].Progress, evs[6].Progress)

	assert.Equal(t, OutcomeIncomplete, res.Outcome)
	assert.Equal(t, 1, res.Walk.Failed)
	assert.Equal(t, 1, res.Walk.Skipped)
	assert.GreaterOrEqual(t, res.Sweep.Failed, 1)
	assert.FileExists(t, locked)
	assertTerminal(t, evs)
}

func TestOperationSweepRetriesAfterTransientFailure(t *testing.T) {
	root := filepath.Join(t.TempDir(), "x")
	sticky := filepath.Join(root, "sticky.txt")
	writeFile(t, sticky, "s")

	fsys := fsops.NewFaultFs(fsops.NewOsFs())
	// fails in the walk and on the sweep's first attempt, then clears
	fsys.FailRemove(sticky, syscall.EPERM, 2)

	evs, res := runAndCollect(t, New(root, testOptions(fsys)))

	assert.Equal(t, []events.Kind{
		events.KindInfo, events.KindInfo, events.KindError, events.KindSuccess, events.KindEnd,
	}, kinds(evs))
	assert.Equal(t, 3, fsys.Attempts(sticky))
	assert.GreaterOrEqual(t, res.Sweep.Retried, 1)
	assert.Zero(t, res.Sweep.Failed)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.NoDirExists(t, root)
}

func TestOperationReadOnlyDirectoryResolvedBySweep(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits do not block root")
	}
	root := filepath.Join(t.TempDir(), "x")
	ro := filepath.Join(root, "ro")
	writeFile(t, filepath.Join(ro, "f.txt"), "f")
	require.NoError(t, os.Chmod(ro, 0o500))
	t.Cleanup(func() { _ = os.Chmod(ro, 0o755) })

	evs, res := runAndCollect(t, New(root, testOptions(fsops.NewOsFs())))

	assert.Equal(t, []events.Kind{
		events.KindInfo, events.KindInfo, events.KindError, events.KindSkip, events.KindSuccess, events.KindEnd,
	}, kinds(evs))
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.NoDirExists(t, root)
}

func TestOperationWalkAccounting(t *testing.T) {
	root := filepath.Join(t.TempDir(), "tree")
	for _, d := range []string{"a", "a/b", "a/b/c", "d", "e/f/g"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0o755))
	}
	for _, f := range []string{"1.txt", "a/2.txt", "a/b/3.txt", "a/b/c/4.txt", "a/b/c/5.txt", "d/6.txt", "e/f/g/7.txt"} {
		writeFile(t, filepath.Join(root, f), f)
	}
	require.NoError(t, os.Symlink(filepath.Join(root, "1.txt"), filepath.Join(root, "d", "link")))

	fsys := fsops.NewFaultFs(fsops.NewOsFs())
	fsys.FailRemove(filepath.Join(root, "a", "b", "3.txt"), syscall.EIO, 1)

	evs, res := runAndCollect(t, New(root, testOptions(fsys)))

	walkEvents := 0
	for _, e := range evs {
		if e.Kind == events.KindDel || e.Kind == events.KindSkip {
			walkEvents++
		}
		if e.Kind == events.KindError && !strings.Contains(e.Message, "still exists") {
			walkEvents++
		}
	}
	assert.Equal(t, res.Processed, walkEvents)
	assert.Equal(t, res.Walk.Attempts(), res.Processed)
	assert.LessOrEqual(t, res.Processed, res.Total)
	assert.Equal(t, 15, res.Total, "7 files, 1 link, 7 directories")
	assertMonotonic(t, evs)
	assertTerminal(t, evs)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
}

func TestOperationRunsOnce(t *testing.T) {
	root := t.TempDir()
	op := New(root, testOptions(fsops.NewOsFs()))
	_, _ = runAndCollect(t, op)

	_, err := op.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestOperationsAreIsolated(t *testing.T) {
	a := New(t.TempDir(), testOptions(fsops.NewOsFs()))
	b := New(t.TempDir(), testOptions(fsops.NewOsFs()))
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestOperationContinuesWhenConsumerLeaves(t *testing.T) {
	root := filepath.Join(t.TempDir(), "x")
	for i := 0; i < 20; i++ {
		writeFile(t, filepath.Join(root, "sub", strings.Repeat("f", i+1)), "x")
	}

	var observed []events.Envelope
	opts := testOptions(fsops.NewOsFs())
	opts.Observers = []events.Observer{events.ObserverFunc(func(env events.Envelope) {
		observed = append(observed, env)
	})}
	op := New(root, opts)

	ctx, cancel := context.WithCancel(context.Background())
	ch := op.Start(ctx)
	<-ch // consumer reads one event, then disconnects
	cancel()
	for range ch {
		// drain whatever was already in flight until the stream closes
	}

	assert.NoDirExists(t, root, "deletion completes without a consumer")
	require.NotEmpty(t, observed)
	assert.Equal(t, events.KindEnd, observed[len(observed)-1].Event.Kind)
}

type collectingEmitter struct {
	evs []events.Event
}

func (c *collectingEmitter) Emit(_ context.Context, e events.Event) error {
	c.evs = append(c.evs, e)
	return nil
}

func TestEngineVisitsChildrenBeforeParents(t *testing.T) {
	root := t.TempDir()
	for _, f := range []string{"p/q/r/leaf.txt", "p/q/mid.txt", "p/top.txt", "s/t.txt"} {
		writeFile(t, filepath.Join(root, f), "x")
	}

	eng := NewEngine(fsops.NewOsFs(), limiter.NewPacer(0), newStdLogger(quietLogger()))
	out := &collectingEmitter{}
	res, err := eng.Walk(context.Background(), root, NewProgress(8), out)
	require.NoError(t, err)
	assert.Equal(t, 8, res.Deleted)

	position := make(map[string]int)
	for i, e := range out.evs {
		path := e.Message[strings.Index(e.Message, "] ")+2:]
		position[path] = i
	}
	for path, idx := range position {
		parent := filepath.Dir(path)
		if pidx, ok := position[parent]; ok {
			assert.Less(t, idx, pidx, "%s must be handled before %s", path, parent)
		}
	}
	assert.DirExists(t, root, "the walk never removes the root")
}

func TestEngineSkipsNonEmptyDirectory(t *testing.T) {
	root := t.TempDir()
	stuck := filepath.Join(root, "d", "stuck.txt")
	writeFile(t, stuck, "x")

	fsys := fsops.NewFaultFs(fsops.NewOsFs())
	fsys.FailRemove(stuck, syscall.EBUSY, -1)

	eng := NewEngine(fsys, limiter.NewPacer(0), newStdLogger(quietLogger()))
	out := &collectingEmitter{}
	res, err := eng.Walk(context.Background(), root, NewProgress(2), out)
	require.NoError(t, err)

	require.Len(t, out.evs, 2)
	assert.Equal(t, events.KindError, out.evs[0].Kind)
	assert.Equal(t, events.KindSkip, out.evs[1].Kind)
	assert.Equal(t, "[SKIP DIR] deferred to sweep: "+filepath.Join(root, "d"), out.evs[1].Message)
	assert.Equal(t, WalkResult{Skipped: 1, Failed: 1}, res)
}

func TestEngineDirectoryHardFailure(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "d")
	require.NoError(t, os.Mkdir(dir, 0o755))

	fsys := fsops.NewFaultFs(fsops.NewOsFs())
	fsys.FailRemove(dir, syscall.EIO, 1)

	eng := NewEngine(fsys, limiter.NewPacer(0), newStdLogger(quietLogger()))
	out := &collectingEmitter{}
	res, err := eng.Walk(context.Background(), root, NewProgress(1), out)
	require.NoError(t, err)

	require.Len(t, out.evs, 1)
	assert.Equal(t, events.KindError, out.evs[0].Kind)
	assert.Contains(t, out.evs[0].Message, "directory removal failed")
	assert.Equal(t, 100, out.evs[0].Progress)
	assert.Equal(t, 1, res.Failed)
}

func TestEnginePacesEveryItem(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a"), "a")
	writeFile(t, filepath.Join(root, "b"), "b")

	pacer := limiter.NewPacer(0)
	eng := NewEngine(fsops.NewOsFs(), pacer, newStdLogger(quietLogger()))
	_, err := eng.Walk(context.Background(), root, NewProgress(2), &collectingEmitter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), pacer.Calls())
}
