package runner

import (
	"bytes"
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRunCapturesCombinedOutput(t *testing.T) {
	requireShell(t)

	var out bytes.Buffer
	code, err := NewExecRunner().Run(context.Background(), Command{
		Name:   "sh",
		Args:   []string{"-c", "echo out; echo err 1>&2"},
		Output: &out,
	})
	require.NoError(t, err)
	require.Equal(t, 0, code)
	require.Contains(t, out.String(), "out\n")
	require.Contains(t, out.String(), "err\n")
}

func TestRunReportsExitCode(t *testing.T) {
	requireShell(t)

	code, err := NewExecRunner().Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "exit 3"},
	})
	require.NoError(t, err)
	require.Equal(t, 3, code)
}

func TestRunUsesDir(t *testing.T) {
	requireShell(t)

	dir := t.TempDir()
	var out bytes.Buffer
	_, err := NewExecRunner().Run(context.Background(), Command{
		Name:   "sh",
		Args:   []string{"-c", "pwd"},
		Dir:    dir,
		Output: &out,
	})
	require.NoError(t, err)
	require.Contains(t, out.String(), dir)
}

func TestRunMissingBinary(t *testing.T) {
	_, err := NewExecRunner().Run(context.Background(), Command{Name: "definitely-not-a-real-binary-dchgen"})
	require.Error(t, err)

	require.Error(t, NewExecRunner().Check("definitely-not-a-real-binary-dchgen"))
}

func TestCommandString(t *testing.T) {
	c := Command{Name: "python2", Args: []string{"mg5_aMC", "mc.txt"}}
	require.Equal(t, "python2 mg5_aMC mc.txt", c.String())
}
