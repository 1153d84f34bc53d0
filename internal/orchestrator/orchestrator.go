package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/mpataki/dchgen/internal/batch"
	"github.com/mpataki/dchgen/internal/config"
	"github.com/mpataki/dchgen/internal/jobconfig"
	"github.com/mpataki/dchgen/internal/models"
	"github.com/mpataki/dchgen/internal/runner"
	"github.com/mpataki/dchgen/internal/spec"
	"github.com/mpataki/dchgen/internal/storage"
	"github.com/mpataki/dchgen/internal/workspace"
)

type Orchestrator struct {
	storage *storage.Storage
	cfg     *config.Config
	runner  runner.Runner
	log     *zap.Logger

	// Stdout receives the generator output alongside the log file.
	Stdout io.Writer
	// Now is the clock used for run directory suffixes and ledger times.
	Now func() time.Time
	// StagePerRun stages each batch job into its own subdirectory of the
	// staging dir, named after the run directory. Scans always do this.
	StagePerRun bool
}

func New(store *storage.Storage, cfg *config.Config, r runner.Runner, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		storage: store,
		cfg:     cfg,
		runner:  r,
		log:     log,
		Stdout:  os.Stdout,
		Now:     time.Now,
	}
}

// LogFileName is the generator log kept in a local run directory.
func LogFileName(mass models.Mass) string {
	return mass.String() + "_generation.log"
}

// Orchestrate creates a fresh run directory for mass and either runs the
// generator there (local) or stages a batch job for it (batch). The returned
// run reflects what was recorded in the ledger; a generator exiting
// non-zero is reported through Run.ExitCode, not as an error.
func (o *Orchestrator) Orchestrate(ctx context.Context, mass models.Mass, mode models.Mode) (*models.Run, error) {
	return o.orchestrate(ctx, mass, mode, o.StagePerRun)
}

func (o *Orchestrator) orchestrate(ctx context.Context, mass models.Mass, mode models.Mode, perRun bool) (*models.Run, error) {
	if err := models.ValidateMass(mass); err != nil {
		return nil, err
	}
	if mode != models.ModeLocal && mode != models.ModeBatch {
		return nil, fmt.Errorf("unknown mode %q", mode)
	}

	ws, err := workspace.Create(o.cfg.RunsDir, workspace.Name(mode, mass), o.Now)
	if err != nil {
		return nil, err
	}
	o.log.Info("created run directory", zap.String("dir", ws.Path), zap.Stringer("mass", mass), zap.String("mode", string(mode)))

	run := &models.Run{
		CreatedAt: o.Now(),
		Mass:      mass,
		Mode:      mode,
		Dir:       ws.Path,
		Status:    models.RunStatusPending,
	}
	runID, err := o.storage.CreateRun(run)
	if err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	run.ID = runID

	if mode == models.ModeBatch {
		err = o.stage(run, ws, perRun)
	} else {
		err = o.runLocal(ctx, run, ws)
	}
	if err != nil {
		return run, o.failRun(run, err)
	}
	return run, nil
}

func (o *Orchestrator) stage(run *models.Run, ws *workspace.Workspace, perRun bool) error {
	script := &batch.Script{
		SourceDir:    o.cfg.SourceDir,
		SourceGlob:   o.cfg.Batch.SourceGlob,
		GeneratorDir: o.cfg.Generator.Dir,
		Driver:       o.cfg.Batch.Driver,
		RunDir:       ws.Path,
		Mass:         run.Mass,
	}
	scriptPath, err := script.Write(ws.Path)
	if err != nil {
		return err
	}
	run.ScriptPath = scriptPath

	stagingDir := o.cfg.Batch.StagingDir
	if perRun {
		stagingDir = filepath.Join(stagingDir, ws.Name)
	}
	staged, err := workspace.Stage(stagingDir, scriptPath, o.cfg.SubmitFilePath())
	if err != nil {
		return err
	}
	run.StagingDir = stagingDir

	// Submission is left to the user (condor_submit from the staging dir).
	o.log.Info("staged batch job", zap.Strings("files", staged), zap.String("staging", run.StagingDir))

	now := o.Now()
	run.Status = models.RunStatusStaged
	run.CompletedAt = &now
	return o.storage.UpdateRun(run)
}

func (o *Orchestrator) runLocal(ctx context.Context, run *models.Run, ws *workspace.Workspace) error {
	configPath, err := jobconfig.Generate(ws.Path, run.Mass, jobconfig.OutputLabel(run.Mass))
	if err != nil {
		return err
	}
	run.ConfigPath = configPath

	logFile, err := ws.CreateLog(LogFileName(run.Mass))
	if err != nil {
		return err
	}
	defer logFile.Close()
	run.LogPath = logFile.Name()

	run.Status = models.RunStatusRunning
	if err := o.storage.UpdateRun(run); err != nil {
		return err
	}

	var out io.Writer = logFile
	if o.Stdout != nil {
		out = io.MultiWriter(o.Stdout, logFile)
	}

	cmd := runner.Command{
		Name:   o.cfg.Generator.Interpreter,
		Args:   []string{o.cfg.GeneratorPath(), configPath},
		Dir:    ws.Path,
		Output: out,
	}
	o.log.Info("starting generator", zap.String("cmd", cmd.String()), zap.String("log", run.LogPath))

	exitCode, err := o.runner.Run(ctx, cmd)
	if err != nil {
		return err
	}

	now := o.Now()
	run.ExitCode = &exitCode
	run.CompletedAt = &now
	run.Status = models.RunStatusComplete
	if exitCode != 0 {
		run.Status = models.RunStatusFailed
		o.log.Warn("generator exited non-zero", zap.Int("exitCode", exitCode), zap.String("log", run.LogPath))
	} else {
		o.log.Info("generator finished", zap.String("dir", run.Dir))
	}
	return o.storage.UpdateRun(run)
}

// failRun records err on the run and returns it. A ledger failure while
// doing so is logged, the original error wins.
func (o *Orchestrator) failRun(run *models.Run, err error) error {
	now := o.Now()
	run.Status = models.RunStatusFailed
	run.CompletedAt = &now
	run.Error = err.Error()
	if uerr := o.storage.UpdateRun(run); uerr != nil {
		o.log.Error("failed to record run failure", zap.Int64("run", run.ID), zap.Error(uerr))
	}
	return err
}

// Scan orchestrates every mass of a validated scan in order. Batch runs are
// staged per run so later masses do not overwrite earlier wrappers. It
// stops at the first orchestration error and returns the runs recorded so
// far.
func (o *Orchestrator) Scan(ctx context.Context, scan *models.ScanSpec) ([]*models.Run, error) {
	if err := spec.Validate(scan); err != nil {
		return nil, err
	}

	masses := spec.Masses(scan)
	o.log.Info("starting scan", zap.String("scan", scan.Name), zap.Int("points", len(masses)), zap.String("mode", string(scan.Mode)))

	runs := make([]*models.Run, 0, len(masses))
	for _, m := range masses {
		if err := ctx.Err(); err != nil {
			return runs, err
		}
		run, err := o.orchestrate(ctx, m, scan.Mode, true)
		if run != nil {
			runs = append(runs, run)
		}
		if err != nil {
			return runs, fmt.Errorf("scan %s at %s GeV: %w", scan.Name, m, err)
		}
	}
	return runs, nil
}

// Read methods for the CLI and TUI

func (o *Orchestrator) ListRuns(limit int) ([]*models.Run, error) {
	return o.storage.ListRuns(limit)
}

func (o *Orchestrator) GetRun(id int64) (*models.Run, error) {
	return o.storage.GetRun(id)
}

// ReadLog returns the tail of a run's generator log, at most maxBytes long.
func (o *Orchestrator) ReadLog(run *models.Run, maxBytes int64) (string, error) {
	if run.LogPath == "" {
		return "", fmt.Errorf("run #%d has no log file", run.ID)
	}
	f, err := os.Open(run.LogPath)
	if err != nil {
		return "", fmt.Errorf("failed to open log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		if _, err := f.Seek(info.Size()-maxBytes, io.SeekStart); err != nil {
			return "", err
		}
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
