package deletion

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maruaican/Quick-Folder-Deleter/internal/fsops"
)

func TestPercent(t *testing.T) {
	tests := []struct {
		name      string
		processed int
		total     int
		want      int
	}{
		{"empty tree", 0, 0, 100},
		{"nothing yet", 0, 3, 0},
		{"one third rounds down", 1, 3, 33},
		{"two thirds rounds up", 2, 3, 67},
		{"half", 1, 2, 50},
		{"done", 3, 3, 100},
		{"over total is clamped", 5, 3, 100},
		{"negative total", 1, -1, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Percent(tt.processed, tt.total))
		})
	}
}

func TestProgressAdvance(t *testing.T) {
	p := NewProgress(4)
	assert.Equal(t, 0, p.Percent())
	assert.Equal(t, 25, p.Advance())
	assert.Equal(t, 50, p.Advance())
	assert.Equal(t, 2, p.Processed())
	assert.Equal(t, 4, p.Total())
}

func TestSweepRemovesWholeTree(t *testing.T) {
	root := filepath.Join(t.TempDir(), "x")
	writeFile(t, filepath.Join(root, "a", "b", "c.txt"), "c")
	writeFile(t, filepath.Join(root, "d.txt"), "d")

	res, err := NewSweeper(fsops.NewOsFs(), newStdLogger(quietLogger())).Sweep(root)
	require.NoError(t, err)

	assert.Equal(t, SweepResult{Removed: 5}, res)
	assert.NoDirExists(t, root)
}

func TestSweepMissingRootIsNotAnError(t *testing.T) {
	res, err := NewSweeper(fsops.NewOsFs(), nil).Sweep(filepath.Join(t.TempDir(), "gone"))
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res)
}

func TestSweepRetriesOnceThenMovesOn(t *testing.T) {
	root := filepath.Join(t.TempDir(), "x")
	stuck := filepath.Join(root, "stuck.txt")
	writeFile(t, stuck, "s")
	writeFile(t, filepath.Join(root, "free.txt"), "f")

	fsys := fsops.NewFaultFs(fsops.NewOsFs())
	fsys.FailRemove(stuck, syscall.EPERM, -1)

	res, err := NewSweeper(fsys, newStdLogger(quietLogger())).Sweep(root)
	require.NoError(t, err)

	assert.Equal(t, 2, fsys.Attempts(stuck), "one attempt plus exactly one retry")
	assert.NoFileExists(t, filepath.Join(root, "free.txt"))
	assert.FileExists(t, stuck)
	// stuck.txt and the root that still holds it
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 1, res.Removed)
}

func TestSweepClearsReadOnlyParent(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits do not block root")
	}
	root := filepath.Join(t.TempDir(), "x")
	locked := filepath.Join(root, "locked")
	writeFile(t, filepath.Join(locked, "f.txt"), "f")
	require.NoError(t, os.Chmod(locked, 0o555))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	res, err := NewSweeper(fsops.NewOsFs(), newStdLogger(quietLogger())).Sweep(root)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Retried)
	assert.Zero(t, res.Failed)
	assert.NoDirExists(t, root)
}

func TestSweepLeavesRootParentAlone(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "x")
	require.NoError(t, os.Mkdir(root, 0o755))
	before, err := os.Stat(parent)
	require.NoError(t, err)

	fsys := fsops.NewFaultFs(fsops.NewOsFs())
	fsys.FailRemove(root, syscall.EPERM, 1)

	res, err := NewSweeper(fsys, newStdLogger(quietLogger())).Sweep(root)
	require.NoError(t, err)

	after, err := os.Stat(parent)
	require.NoError(t, err)
	assert.Equal(t, before.Mode(), after.Mode())
	assert.Equal(t, 1, res.Retried)
	assert.NoDirExists(t, root)
}
