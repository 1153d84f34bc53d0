package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mpataki/dchgen/internal/config"
	"github.com/mpataki/dchgen/internal/logger"
	scanLua "github.com/mpataki/dchgen/internal/lua"
	"github.com/mpataki/dchgen/internal/models"
	"github.com/mpataki/dchgen/internal/orchestrator"
	"github.com/mpataki/dchgen/internal/runner"
	"github.com/mpataki/dchgen/internal/spec"
	"github.com/mpataki/dchgen/internal/storage"
	"github.com/mpataki/dchgen/internal/tui"
	"github.com/mpataki/dchgen/internal/workspace"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dchgen [mass]",
		Short: "Generate doubly-charged Higgs samples with MadGraph",
		Long: `dchgen writes the MadGraph steering script for a right-handed
doubly-charged Higgs of the given mass (GeV) and runs the generator in a
fresh run_<mass> directory. With --batch it instead prepares batch_<mass>
and stages run_generation.sh plus the HTCondor submit file for submission.

Without arguments it opens a browser over previous runs.`,
		Example:      "  dchgen 700\n  dchgen 700 --batch",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runTUI(cmd, args)
			}
			return runGenerate(cmd, args)
		},
	}

	rootCmd.Flags().BoolP("batch", "b", false, "Stage an HTCondor batch job instead of running locally")
	rootCmd.PersistentFlags().String("config", config.DefaultConfigFile, "Path to the YAML config file")

	rootCmd.AddCommand(newScanCommand())
	rootCmd.AddCommand(newScansCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newListCommand())

	return rootCmd
}

// env bundles what every command needs.
type env struct {
	cfg   *config.Config
	log   *zap.Logger
	store *storage.Storage
	orch  *orchestrator.Orchestrator
}

func (e *env) Close() {
	e.store.Close()
	e.log.Sync()
}

func setup(cmd *cobra.Command) (*env, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	log := logger.New(cfg.LogLevel)
	orch := orchestrator.New(store, cfg, runner.NewExecRunner(), log)

	return &env{cfg: cfg, log: log, store: store, orch: orch}, nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	app := tui.NewApp(e.orch)
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(cmd.Context()))

	_, err = p.Run()
	return err
}

func runGenerate(cmd *cobra.Command, args []string) error {
	mass, err := models.ParseMass(args[0])
	if err != nil {
		cmd.PrintErrln(cmd.UsageString())
		return err
	}

	mode := models.ModeLocal
	if batch, _ := cmd.Flags().GetBool("batch"); batch {
		mode = models.ModeBatch
	}

	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	if mode == models.ModeLocal {
		if err := runner.NewExecRunner().Check(e.cfg.Generator.Interpreter); err != nil {
			return err
		}
	}

	run, err := e.orch.Orchestrate(cmd.Context(), mass, mode)
	if err != nil {
		return err
	}

	return report(run, e.cfg)
}

// report prints where the run ended up. A non-zero generator exit becomes
// the command's error so the shell sees a failure.
func report(run *models.Run, cfg *config.Config) error {
	switch run.Status {
	case models.RunStatusStaged:
		fmt.Fprintf(os.Stderr, "Staged run #%d in %s\n", run.ID, run.StagingDir)
		fmt.Fprintf(os.Stderr, "Submit with: cd %s && condor_submit %s\n", run.StagingDir, filepath.Base(cfg.SubmitFilePath()))
	default:
		fmt.Fprintf(os.Stderr, "Run #%d finished in %s\n", run.ID, run.Dir)
		if run.ExitCode != nil && *run.ExitCode != 0 {
			return fmt.Errorf("generator exited with status %d, see %s", *run.ExitCode, run.LogPath)
		}
	}
	return nil
}

func newScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <file>",
		Short: "Run a mass scan from a YAML or Lua definition",
		Long: `Runs one orchestration per mass, in order. <file> is a path or the name
of a scan in .dchgen/scans or the user scan directory.

YAML scans list "masses" and/or a "range" (start, stop, step).
Lua scans call generate(mass [, mode]) or define scan() returning masses.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			mode := models.ModeLocal
			if batch, _ := cmd.Flags().GetBool("batch"); batch {
				mode = models.ModeBatch
			}

			var runs []*models.Run
			path := findScan(args[0], e.cfg)
			if scanLua.IsLuaScan(path) {
				e.orch.StagePerRun = true
				rt := scanLua.NewRuntime(cmd.Context(), e.orch, mode, e.log)
				runs, err = rt.Execute(path)
			} else {
				var s *models.ScanSpec
				s, err = loadScan(args[0], path, e.cfg)
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("batch") {
					s.Mode = mode
				}
				runs, err = e.orch.Scan(cmd.Context(), s)
			}

			for _, run := range runs {
				fmt.Println(tui.FormatRunLine(run))
			}
			return err
		},
	}

	cmd.Flags().BoolP("batch", "b", false, "Stage batch jobs instead of running locally")
	return cmd
}

// loadScan parses the YAML scan at path, or when no file matched, looks the
// scan up by its declared name across the scan directories.
func loadScan(name, path string, cfg *config.Config) (*models.ScanSpec, error) {
	if path != "" {
		return spec.Parse(path)
	}

	scans, err := spec.LoadAll([]string{cfg.ProjectScanDir, cfg.UserScanDir})
	if err != nil {
		return nil, err
	}
	s, ok := scans[name]
	if !ok {
		return nil, fmt.Errorf("scan %q not found", name)
	}
	return s, nil
}

// findScan resolves a scan argument to a file, checking the project scan
// directory before the user one.
func findScan(name string, cfg *config.Config) string {
	if _, err := os.Stat(name); err == nil {
		return name
	}

	for _, dir := range []string{cfg.ProjectScanDir, cfg.UserScanDir} {
		if scanLua.IsLuaScan(name) || spec.IsYAML(name) {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
			continue
		}

		for _, ext := range []string{".lua", ".yaml", ".yml"} {
			path := filepath.Join(dir, name+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	return ""
}

func newScansCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scans",
		Short: "List available scans",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return printScans(os.Stdout, cfg)
		},
	}
}

func printScans(w io.Writer, cfg *config.Config) error {
	dirs := []string{cfg.ProjectScanDir, cfg.UserScanDir}
	scans, err := spec.LoadAll(dirs)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(scans))
	for name := range scans {
		names = append(names, name)
	}
	sort.Strings(names)

	var lines []string
	for _, name := range names {
		s := scans[name]
		line := fmt.Sprintf("%-20s %-5s %4d masses", name, s.Mode, len(spec.Masses(s)))
		if s.Description != "" {
			line += "  " + s.Description
		}
		lines = append(lines, line)
	}
	for _, dir := range dirs {
		matches, _ := filepath.Glob(filepath.Join(dir, "*.lua"))
		for _, m := range matches {
			lines = append(lines, fmt.Sprintf("%-20s lua   %s", strings.TrimSuffix(filepath.Base(m), ".lua"), m))
		}
	}

	if len(lines) == 0 {
		fmt.Fprintln(w, "No scans found.")
		return nil
	}
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	return nil
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show run status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid run ID: %w", err)
			}

			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			run, err := e.store.GetRun(runID)
			if err != nil {
				return fmt.Errorf("failed to get run: %w", err)
			}

			fmt.Printf("Run #%d: MHPPR = %s GeV\n", run.ID, run.Mass)
			fmt.Printf("Mode: %s\n", run.Mode)
			fmt.Printf("Status: %s\n", run.Status)
			if _, err := workspace.Open(run.Dir); err != nil {
				fmt.Printf("Directory: %s (%v)\n", run.Dir, err)
			} else {
				fmt.Printf("Directory: %s\n", run.Dir)
			}
			fmt.Printf("Created: %s\n", storage.FormatTimeAgo(run.CreatedAt))
			if run.ConfigPath != "" {
				fmt.Printf("Steering script: %s\n", run.ConfigPath)
			}
			if run.LogPath != "" {
				fmt.Printf("Log: %s\n", run.LogPath)
			}
			if run.ScriptPath != "" {
				fmt.Printf("Wrapper: %s\n", run.ScriptPath)
				fmt.Printf("Staged in: %s\n", run.StagingDir)
			}
			if run.ExitCode != nil {
				fmt.Printf("Exit code: %d\n", *run.ExitCode)
			}
			if run.Error != "" {
				fmt.Printf("Error: %s\n", run.Error)
			}

			others, err := e.store.ListRunsForMass(run.Mass)
			if err != nil {
				return err
			}
			for _, other := range others {
				if other.ID == run.ID {
					continue
				}
				fmt.Printf("Also at %s GeV: #%d %s %s\n", run.Mass, other.ID, other.Status, filepath.Base(other.Dir))
			}

			return nil
		},
	}
}

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := e.store.ListRuns(limit)
			if err != nil {
				return err
			}

			if len(runs) == 0 {
				fmt.Println("No runs found.")
				return nil
			}

			for _, run := range runs {
				line := fmt.Sprintf("#%d %s GeV [%s] %s %s %s", run.ID, run.Mass, run.Mode, run.Status, filepath.Base(run.Dir), storage.FormatTimeAgo(run.CreatedAt))
				if run.ExitCode != nil && *run.ExitCode != 0 {
					line += fmt.Sprintf(" (exit %d)", *run.ExitCode)
				}
				fmt.Println(strings.TrimSpace(line))
			}

			return nil
		},
	}

	cmd.Flags().IntP("limit", "n", 20, "Number of runs to show")
	return cmd
}
