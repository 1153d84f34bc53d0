package workspace

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/mpataki/dchgen/internal/models"
)

// TimestampLayout is the suffix appended to a run directory name that
// already exists.
const TimestampLayout = "2006-01-02_15.04.05"

// MaxAttempts bounds the number of names tried by Create.
const MaxAttempts = 8

var ErrNoUniqueName = errors.New("no unused run directory name")

type Workspace struct {
	Path string
	Name string
}

// Name returns the preferred directory name for a run.
func Name(mode models.Mode, mass models.Mass) string {
	return mode.DirPrefix() + "_" + mass.String()
}

// Create makes a fresh directory called name under baseDir. An existing
// entry is never reused: on collision the current time (from now) is
// appended as "_YYYY-MM-DD_HH.MM.SS" and creation is retried.
//
// Two callers colliding within the same second still race for the suffixed
// name; the loser appends a second suffix and tries again.
func Create(baseDir, name string, now func() time.Time) (*Workspace, error) {
	if now == nil {
		now = time.Now
	}

	candidate := name
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		path := filepath.Join(baseDir, candidate)
		err := os.Mkdir(path, 0755)
		if err == nil {
			return &Workspace{Path: path, Name: candidate}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("failed to create run directory: %w", err)
		}
		candidate = candidate + "_" + now().Format(TimestampLayout)
	}

	return nil, fmt.Errorf("%w: %s after %d attempts", ErrNoUniqueName, name, MaxAttempts)
}

func Open(path string) (*Workspace, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("run directory %s does not exist", path)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", path)
	}
	return &Workspace{Path: path, Name: filepath.Base(path)}, nil
}

// File returns the path of name inside the workspace.
func (w *Workspace) File(name string) string {
	return filepath.Join(w.Path, name)
}

// CreateLog opens (truncating) a log file inside the workspace.
func (w *Workspace) CreateLog(name string) (*os.File, error) {
	f, err := os.Create(w.File(name))
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	return f, nil
}

// Stage copies each file into stagingDir, overwriting what is there. The
// staging directory is shared and unlocked; concurrent stagers race.
func Stage(stagingDir string, files ...string) ([]string, error) {
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	staged := make([]string, 0, len(files))
	for _, src := range files {
		dst := filepath.Join(stagingDir, filepath.Base(src))
		if err := copyFile(src, dst); err != nil {
			return staged, fmt.Errorf("failed to stage %s: %w", src, err)
		}
		staged = append(staged, dst)
	}
	return staged, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
