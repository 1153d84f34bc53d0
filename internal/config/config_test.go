package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv("DCHGEN_DATA_DIR", t.TempDir())

	cfg, err := New()
	require.NoError(t, err)
	require.Equal(t, "MG5_aMC_v3_1_1", cfg.Generator.Dir)
	require.Equal(t, "python2", cfg.Generator.Interpreter)
	require.Equal(t, "htc_generation.submit", cfg.Batch.SubmitFile)
	require.Equal(t, "python3 generate_MLRSM_DCH.py", cfg.Batch.Driver)
	require.Equal(t, filepath.Join(cfg.DataDir, "dchgen.db"), cfg.DBPath)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("DCHGEN_DATA_DIR", t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, "info", cfg.LogLevel)
	require.True(t, filepath.IsAbs(cfg.RunsDir))
}

func TestLoadYAMLThenEnv(t *testing.T) {
	t.Setenv("DCHGEN_DATA_DIR", "")
	dir := t.TempDir()
	data := filepath.Join(dir, "data")
	yamlPath := filepath.Join(dir, "dchgen.yaml")

	content := `
data_dir: ` + data + `
runs_dir: ` + dir + `
generator:
  interpreter: python3
batch:
  driver: ./dchgen
  source_glob: dchgen
  staging_dir: ` + filepath.Join(dir, "stage") + `
log_level: debug
`
	require.NoError(t, os.WriteFile(yamlPath, []byte(content), 0644))
	t.Setenv("DCHGEN_LOG_LEVEL", "warn")

	cfg, err := Load(yamlPath)
	require.NoError(t, err)
	require.Equal(t, data, cfg.DataDir)
	require.Equal(t, filepath.Join(data, "dchgen.db"), cfg.DBPath)
	require.Equal(t, filepath.Join(data, "scans"), cfg.UserScanDir)
	require.Equal(t, "python3", cfg.Generator.Interpreter)
	require.Equal(t, "MG5_aMC_v3_1_1", cfg.Generator.Dir)
	require.Equal(t, "./dchgen", cfg.Batch.Driver)
	require.Equal(t, filepath.Join(dir, "stage"), cfg.Batch.StagingDir)
	require.Equal(t, "warn", cfg.LogLevel)
}

func TestEnvDataDirOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	envData := filepath.Join(dir, "env")
	t.Setenv("DCHGEN_DATA_DIR", envData)

	yamlPath := filepath.Join(dir, "dchgen.yaml")
	content := "data_dir: " + filepath.Join(dir, "yaml") + "\n"
	require.NoError(t, os.WriteFile(yamlPath, []byte(content), 0644))

	cfg, err := Load(yamlPath)
	require.NoError(t, err)
	require.Equal(t, envData, cfg.DataDir)
	require.Equal(t, filepath.Join(envData, "dchgen.db"), cfg.DBPath)
	require.Equal(t, filepath.Join(envData, "scans"), cfg.UserScanDir)
}

func TestExplicitDBPathSurvivesDataDirMove(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DCHGEN_DATA_DIR", filepath.Join(dir, "env"))

	yamlPath := filepath.Join(dir, "dchgen.yaml")
	content := "data_dir: " + filepath.Join(dir, "yaml") + "\ndb_path: " + filepath.Join(dir, "ledger.db") + "\n"
	require.NoError(t, os.WriteFile(yamlPath, []byte(content), 0644))

	cfg, err := Load(yamlPath)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "ledger.db"), cfg.DBPath)
	require.Equal(t, filepath.Join(dir, "env", "scans"), cfg.UserScanDir)
}

func TestLoadBadYAML(t *testing.T) {
	t.Setenv("DCHGEN_DATA_DIR", t.TempDir())
	path := filepath.Join(t.TempDir(), "dchgen.yaml")
	require.NoError(t, os.WriteFile(path, []byte("generator: [oops"), 0644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateEmpty(t *testing.T) {
	t.Setenv("DCHGEN_DATA_DIR", t.TempDir())
	cfg, err := New()
	require.NoError(t, err)

	cfg.Batch.Driver = ""
	require.ErrorContains(t, cfg.Validate(), "batch.driver")
}

func TestPaths(t *testing.T) {
	t.Setenv("DCHGEN_DATA_DIR", t.TempDir())
	cfg, err := New()
	require.NoError(t, err)
	cfg.SourceDir = "/work"

	require.Equal(t, "/work/MG5_aMC_v3_1_1/bin/mg5_aMC", cfg.GeneratorPath())
	require.Equal(t, "/work/htc_generation.submit", cfg.SubmitFilePath())

	cfg.Generator.Dir = "/opt/mg5"
	require.Equal(t, "/opt/mg5/bin/mg5_aMC", cfg.GeneratorPath())
}

func TestEnsureDataDir(t *testing.T) {
	data := filepath.Join(t.TempDir(), "nested")
	t.Setenv("DCHGEN_DATA_DIR", data)
	cfg, err := New()
	require.NoError(t, err)

	require.NoError(t, cfg.EnsureDataDir())
	require.DirExists(t, cfg.UserScanDir)
}
