// Package batch renders the shell wrapper an HTCondor job executes to
// reproduce a local run on the worker node.
package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mpataki/dchgen/internal/models"
)

// ScriptName is the wrapper file name the submit description points at.
const ScriptName = "run_generation.sh"

const (
	DefaultDriver     = "python3 generate_MLRSM_DCH.py"
	DefaultSourceGlob = "*.py"
)

// Script holds everything the wrapper needs. SourceDir holds the driver and
// the generator installation; RunDir is where results are synced back.
type Script struct {
	SourceDir    string
	SourceGlob   string
	GeneratorDir string
	Driver       string
	RunDir       string
	Mass         models.Mass
}

// Render returns the wrapper text. HTCondor rejects wrappers that open
// with a block comment, so the script is plain commands after the shebang.
func (s *Script) Render() string {
	driver := s.Driver
	if driver == "" {
		driver = DefaultDriver
	}
	glob := s.SourceGlob
	if glob == "" {
		glob = DefaultSourceGlob
	}
	mass := s.Mass.String()

	generator := s.GeneratorDir
	if !filepath.IsAbs(generator) {
		generator = filepath.Join(s.SourceDir, generator)
	}

	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	fmt.Fprintf(&b, "cp -r %s .\n", filepath.Join(s.SourceDir, glob))
	fmt.Fprintf(&b, "cp -r %s .\n", generator)
	fmt.Fprintf(&b, "%s %s | tee %s.log\n", driver, mass, mass)
	fmt.Fprintf(&b, "rsync -av --progress * %s --exclude %s\n", s.RunDir, filepath.Base(generator))
	return b.String()
}

// Write renders the wrapper into dir as an executable file and returns its path.
func (s *Script) Write(dir string) (string, error) {
	if s.GeneratorDir == "" {
		return "", fmt.Errorf("generator directory is required")
	}
	path := filepath.Join(dir, ScriptName)
	if err := os.WriteFile(path, []byte(s.Render()), 0755); err != nil {
		return "", fmt.Errorf("failed to write batch script: %w", err)
	}
	return path, nil
}
