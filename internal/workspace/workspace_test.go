package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mpataki/dchgen/internal/models"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	ts := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	return func() time.Time { return ts }
}

func TestName(t *testing.T) {
	require.Equal(t, "run_500.0", Name(models.ModeLocal, 500))
	require.Equal(t, "batch_700.0", Name(models.ModeBatch, 700))
}

func TestCreateFresh(t *testing.T) {
	base := t.TempDir()

	ws, err := Create(base, "run_500.0", fixedClock())
	require.NoError(t, err)
	require.Equal(t, filepath.Join(base, "run_500.0"), ws.Path)
	require.DirExists(t, ws.Path)
}

func TestCreateCollisionAppendsTimestamp(t *testing.T) {
	base := t.TempDir()
	first := filepath.Join(base, "run_500.0")
	require.NoError(t, os.Mkdir(first, 0755))
	marker := filepath.Join(first, "keep")
	require.NoError(t, os.WriteFile(marker, []byte("x"), 0644))

	ws, err := Create(base, "run_500.0", fixedClock())
	require.NoError(t, err)
	require.Equal(t, "run_500.0_2024-03-09_14.05.07", ws.Name)
	require.NotEqual(t, first, ws.Path)
	require.FileExists(t, marker)
}

func TestCreateSameSecondCollision(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(base, "run_500.0"), 0755))
	require.NoError(t, os.Mkdir(filepath.Join(base, "run_500.0_2024-03-09_14.05.07"), 0755))

	ws, err := Create(base, "run_500.0", fixedClock())
	require.NoError(t, err)
	require.Equal(t, "run_500.0_2024-03-09_14.05.07_2024-03-09_14.05.07", ws.Name)
}

func TestCreateGivesUp(t *testing.T) {
	base := t.TempDir()
	name := "run_1.0"
	candidate := name
	for i := 0; i < MaxAttempts; i++ {
		require.NoError(t, os.Mkdir(filepath.Join(base, candidate), 0755))
		candidate += "_2024-03-09_14.05.07"
	}

	_, err := Create(base, name, fixedClock())
	require.True(t, errors.Is(err, ErrNoUniqueName))
}

func TestCreateMissingBase(t *testing.T) {
	_, err := Create(filepath.Join(t.TempDir(), "missing"), "run_1.0", fixedClock())
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrNoUniqueName))
}

func TestStage(t *testing.T) {
	src := t.TempDir()
	staging := filepath.Join(t.TempDir(), "home")

	script := filepath.Join(src, "run_generation.sh")
	submit := filepath.Join(src, "htc_generation.submit")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/bash\n"), 0755))
	require.NoError(t, os.WriteFile(submit, []byte("executable = run_generation.sh\n"), 0644))

	staged, err := Stage(staging, script, submit)
	require.NoError(t, err)
	require.Len(t, staged, 2)

	data, err := os.ReadFile(filepath.Join(staging, "run_generation.sh"))
	require.NoError(t, err)
	require.Equal(t, "#!/bin/bash\n", string(data))
	require.FileExists(t, filepath.Join(staging, "htc_generation.submit"))
}

func TestStageMissingSource(t *testing.T) {
	_, err := Stage(t.TempDir(), filepath.Join(t.TempDir(), "absent.submit"))
	require.Error(t, err)
}

func TestOpen(t *testing.T) {
	base := t.TempDir()
	ws, err := Open(base)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(ws.Path, "x.log"), ws.File("x.log"))

	_, err = Open(filepath.Join(base, "nope"))
	require.Error(t, err)
}
