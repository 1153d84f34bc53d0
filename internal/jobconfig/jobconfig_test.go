package jobconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mpataki/dchgen/internal/models"
	"github.com/stretchr/testify/require"
)

func TestGenerateIsDeterministic(t *testing.T) {
	dir := t.TempDir()

	path, err := Generate(dir, 700, "out_700")
	require.NoError(t, err)
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	path2, err := Generate(dir, 700, "out_700")
	require.NoError(t, err)
	require.Equal(t, path, path2)
	second, err := os.ReadFile(path2)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, filepath.Join(dir, FileName), path)
}

func TestRenderDirectives(t *testing.T) {
	for _, m := range []models.Mass{300, 700, 1250.5} {
		label := OutputLabel(m)
		text := Render(m, label)

		require.Contains(t, text, "set MHPPR "+m.String()+"\n")
		require.Equal(t, 1, strings.Count(text, label))
		require.Contains(t, text, "output "+label+"\n")
	}
}

func TestRenderOrder(t *testing.T) {
	text := Render(700, "lbl")
	order := []string{
		"import model lrsm_1_3_2_UFO_DCH",
		"define h++ hl++ hr++",
		"generate p p > h++ h--, h++ > l+ l+, h-- > l- l- / rm",
		"output lbl",
		"shower=pythia8",
		"launch",
		"set MHPPR 700.0",
		"set WHPPL auto",
		"set WHPPR auto",
	}
	last := -1
	for _, line := range order {
		i := strings.Index(text, line)
		require.Greater(t, i, last, "directive %q out of order", line)
		last = i
	}
}

func TestRenderExactText(t *testing.T) {
	want := "\n" +
		"import model lrsm_1_3_2_UFO_DCH\n" +
		"define rm h h2 hp2 hm2 n1 n2 n3\n" +
		"define h++ hl++ hr++\n" +
		"define h-- hl-- hr--\n" +
		"define l+ e+ mu+ ta+\n" +
		"define l- e- mu- ta-\n" +
		"generate p p > h++ h--, h++ > l+ l+, h-- > l- l- / rm \n" +
		"output MG5aMC_SSmumujj_MHPPR_700.0\n" +
		"shower=pythia8\n" +
		"launch\n" +
		"set MHPPR 700.0\n" +
		"set WHPPL auto\n" +
		"set WHPPR auto\n"
	require.Equal(t, want, Render(700, OutputLabel(700)))
}

func TestGenerateOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0644))

	_, err := Generate(dir, 500, OutputLabel(500))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "stale")
	require.Contains(t, string(data), "set MHPPR 500.0")
}

func TestGenerateRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	_, err := Generate(dir, 700, "")
	require.ErrorIs(t, err, ErrInvalidLabel)

	_, err = Generate(dir, 700, "a b")
	require.ErrorIs(t, err, ErrInvalidLabel)

	_, err = Generate(dir, 700, "../escape")
	require.ErrorIs(t, err, ErrInvalidLabel)

	_, err = Generate(dir, -1, "ok")
	require.ErrorIs(t, err, models.ErrInvalidMass)

	_, err = os.Stat(filepath.Join(dir, FileName))
	require.True(t, os.IsNotExist(err))
}

func TestGenerateMissingDir(t *testing.T) {
	_, err := Generate(filepath.Join(t.TempDir(), "nope"), 700, "ok")
	require.Error(t, err)
}

func TestOutputLabel(t *testing.T) {
	require.Equal(t, "MG5aMC_SSmumujj_MHPPR_700.0", OutputLabel(700))
	require.NoError(t, ValidateLabel(OutputLabel(700)))
}
