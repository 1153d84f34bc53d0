package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mpataki/dchgen/internal/batch"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read from the working directory when present.
const DefaultConfigFile = "dchgen.yaml"

type Config struct {
	DataDir        string `yaml:"data_dir"`
	DBPath         string `yaml:"db_path"`
	UserScanDir    string `yaml:"user_scan_dir"`
	ProjectScanDir string `yaml:"project_scan_dir"`

	// RunsDir is where run_<mass> and batch_<mass> directories are created.
	RunsDir string `yaml:"runs_dir"`
	// SourceDir holds the generator installation, the submit description
	// and the driver copied into batch jobs.
	SourceDir string `yaml:"source_dir"`

	Generator Generator `yaml:"generator"`
	Batch     Batch     `yaml:"batch"`

	LogLevel string `yaml:"log_level"`
}

type Generator struct {
	Dir         string `yaml:"dir"`
	Interpreter string `yaml:"interpreter"`
	Binary      string `yaml:"binary"`
}

type Batch struct {
	SubmitFile string `yaml:"submit_file"`
	StagingDir string `yaml:"staging_dir"`
	Driver     string `yaml:"driver"`
	SourceGlob string `yaml:"source_glob"`
}

func New() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	dataDir := getEnv("DCHGEN_DATA_DIR", filepath.Join(homeDir, ".dchgen"))

	c := &Config{
		DataDir:        dataDir,
		DBPath:         filepath.Join(dataDir, "dchgen.db"),
		UserScanDir:    filepath.Join(dataDir, "scans"),
		ProjectScanDir: ".dchgen/scans",
		RunsDir:        cwd,
		SourceDir:      cwd,
		Generator: Generator{
			Dir:         "MG5_aMC_v3_1_1",
			Interpreter: "python2",
			Binary:      filepath.Join("bin", "mg5_aMC"),
		},
		Batch: Batch{
			SubmitFile: "htc_generation.submit",
			StagingDir: homeDir,
			Driver:     batch.DefaultDriver,
			SourceGlob: batch.DefaultSourceGlob,
		},
		LogLevel: "info",
	}

	return c, nil
}

// Load builds the config from defaults, then the YAML file at path (if it
// exists), then DCHGEN_* environment variables.
func Load(path string) (*Config, error) {
	c, err := New()
	if err != nil {
		return nil, err
	}

	if err := c.loadYAML(path); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}
	c.loadEnv()

	if err := c.resolve(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}
	return c, nil
}

func (c *Config) loadYAML(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	dataDir := c.DataDir
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	relocated := c.DataDir
	c.DataDir = dataDir
	c.setDataDir(relocated)
	return nil
}

// setDataDir moves the data dir. Derived paths follow unless they were set
// explicitly.
func (c *Config) setDataDir(dir string) {
	if dir == "" || dir == c.DataDir {
		return
	}
	if c.DBPath == filepath.Join(c.DataDir, "dchgen.db") {
		c.DBPath = filepath.Join(dir, "dchgen.db")
	}
	if c.UserScanDir == filepath.Join(c.DataDir, "scans") {
		c.UserScanDir = filepath.Join(dir, "scans")
	}
	c.DataDir = dir
}

func (c *Config) loadEnv() {
	c.setDataDir(os.Getenv("DCHGEN_DATA_DIR"))
	setString(&c.DBPath, "DCHGEN_DB_PATH")
	setString(&c.RunsDir, "DCHGEN_RUNS_DIR")
	setString(&c.SourceDir, "DCHGEN_SOURCE_DIR")
	setString(&c.Generator.Dir, "DCHGEN_GENERATOR_DIR")
	setString(&c.Generator.Interpreter, "DCHGEN_GENERATOR_INTERPRETER")
	setString(&c.Generator.Binary, "DCHGEN_GENERATOR_BINARY")
	setString(&c.Batch.SubmitFile, "DCHGEN_SUBMIT_FILE")
	setString(&c.Batch.StagingDir, "DCHGEN_STAGING_DIR")
	setString(&c.Batch.Driver, "DCHGEN_BATCH_DRIVER")
	setString(&c.Batch.SourceGlob, "DCHGEN_BATCH_SOURCE_GLOB")
	setString(&c.LogLevel, "DCHGEN_LOG_LEVEL")
}

func (c *Config) resolve() error {
	for _, p := range []*string{&c.RunsDir, &c.SourceDir, &c.Batch.StagingDir} {
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", *p, err)
		}
		*p = abs
	}
	return nil
}

func (c *Config) Validate() error {
	required := []struct {
		key, value string
	}{
		{"data_dir", c.DataDir},
		{"db_path", c.DBPath},
		{"runs_dir", c.RunsDir},
		{"source_dir", c.SourceDir},
		{"generator.dir", c.Generator.Dir},
		{"generator.interpreter", c.Generator.Interpreter},
		{"generator.binary", c.Generator.Binary},
		{"batch.submit_file", c.Batch.SubmitFile},
		{"batch.staging_dir", c.Batch.StagingDir},
		{"batch.driver", c.Batch.Driver},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s must not be empty", r.key)
		}
	}
	return nil
}

func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	if err := os.MkdirAll(c.UserScanDir, 0755); err != nil {
		return err
	}
	return nil
}

// GeneratorPath is the absolute path of the mg5_aMC entry point.
func (c *Config) GeneratorPath() string {
	dir := c.Generator.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(c.SourceDir, dir)
	}
	return filepath.Join(dir, c.Generator.Binary)
}

// SubmitFilePath is the absolute path of the HTCondor submit description.
func (c *Config) SubmitFilePath() string {
	if filepath.IsAbs(c.Batch.SubmitFile) {
		return c.Batch.SubmitFile
	}
	return filepath.Join(c.SourceDir, c.Batch.SubmitFile)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
