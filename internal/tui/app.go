package tui

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mpataki/dchgen/internal/models"
	"github.com/mpataki/dchgen/internal/storage"
)

// logTailBytes bounds how much of a generator log the viewer loads.
const logTailBytes = 256 * 1024

type View int

const (
	ViewRunList View = iota
	ViewRunDetail
	ViewLog
)

// Source is what the browser reads runs and logs from.
type Source interface {
	ListRuns(limit int) ([]*models.Run, error)
	GetRun(id int64) (*models.Run, error)
	ReadLog(run *models.Run, maxBytes int64) (string, error)
}

type App struct {
	source Source

	view        View
	runs        []*models.Run
	selectedIdx int
	selectedRun *models.Run
	logView     viewport.Model

	width  int
	height int
	err    error
}

func NewApp(source Source) *App {
	return &App{
		source:  source,
		view:    ViewRunList,
		logView: viewport.New(80, 20),
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.loadRuns, a.tickCmd())
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a *App) hasRunningRuns() bool {
	for _, run := range a.runs {
		if run.Status == models.RunStatusRunning {
			return true
		}
	}
	return false
}

type tickMsg time.Time

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.logView.Width = msg.Width
		a.logView.Height = max(msg.Height-4, 1)
		return a, nil

	case runsLoadedMsg:
		a.runs = msg.runs
		a.err = msg.err
		if a.selectedIdx >= len(a.runs) {
			a.selectedIdx = max(len(a.runs)-1, 0)
		}
		return a, nil

	case tickMsg:
		// Refresh while a generator is running so status and exit codes appear.
		if a.view == ViewRunList && a.hasRunningRuns() {
			return a, tea.Batch(a.loadRuns, a.tickCmd())
		}
		return a, a.tickCmd()

	case runDetailMsg:
		a.selectedRun = msg.run
		a.err = msg.err
		if a.err == nil {
			a.view = ViewRunDetail
		}
		return a, nil

	case logLoadedMsg:
		if msg.err != nil {
			a.err = msg.err
			return a, nil
		}
		a.err = nil
		content := msg.content
		if content == "" {
			content = "(empty log)"
		}
		a.logView.SetContent(content)
		a.logView.GotoBottom()
		a.view = ViewLog
		return a, nil
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.view {
	case ViewRunList:
		return a.handleRunListKey(msg)
	case ViewRunDetail:
		return a.handleRunDetailKey(msg)
	case ViewLog:
		return a.handleLogKey(msg)
	}
	return a, nil
}

func (a *App) handleRunListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "up", "k":
		if a.selectedIdx > 0 {
			a.selectedIdx--
		}

	case "down", "j":
		if a.selectedIdx < len(a.runs)-1 {
			a.selectedIdx++
		}

	case "enter":
		if len(a.runs) > 0 && a.selectedIdx < len(a.runs) {
			return a, a.loadRunDetail(a.runs[a.selectedIdx].ID)
		}

	case "l":
		if len(a.runs) > 0 && a.selectedIdx < len(a.runs) {
			return a, a.loadLog(a.runs[a.selectedIdx])
		}

	case "r":
		return a, a.loadRuns
	}

	return a, nil
}

func (a *App) handleRunDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		a.view = ViewRunList
		a.selectedRun = nil
		a.err = nil

	case "ctrl+c":
		return a, tea.Quit

	case "l":
		if a.selectedRun != nil {
			return a, a.loadLog(a.selectedRun)
		}
	}

	return a, nil
}

func (a *App) handleLogKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		if a.selectedRun != nil {
			a.view = ViewRunDetail
		} else {
			a.view = ViewRunList
		}
		return a, nil

	case "ctrl+c":
		return a, tea.Quit
	}

	var cmd tea.Cmd
	a.logView, cmd = a.logView.Update(msg)
	return a, cmd
}

func (a *App) View() string {
	switch a.view {
	case ViewRunList:
		return a.viewRunList()
	case ViewRunDetail:
		return a.viewRunDetail()
	case ViewLog:
		return a.viewLog()
	}
	return ""
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	statusRunning  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	statusComplete = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusFailed   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusStaged   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

func (a *App) viewRunList() string {
	s := titleStyle.Render("dchgen") + "\n\n"

	if a.err != nil {
		s += fmt.Sprintf("Error: %v\n", a.err)
	}

	if len(a.runs) == 0 {
		s += "No runs yet. Start one with `dchgen <mass>`.\n"
	} else {
		s += "Recent Runs\n"
		s += "───────────\n"

		for i, run := range a.runs {
			line := FormatRunLine(run)
			if i == a.selectedIdx {
				line = selectedStyle.Render("▶ " + line)
			} else if run.Status != models.RunStatusRunning {
				line = "  " + dimStyle.Render(line)
			} else {
				line = "  " + line
			}
			s += line + "\n"
		}
	}

	s += "\n" + helpStyle.Render("[enter] view  [l] log  [r] refresh  [q] quit")

	return s
}

// FormatRunLine renders a one-line summary of a run.
func FormatRunLine(run *models.Run) string {
	return fmt.Sprintf("#%-4d %9s GeV  %-5s  %s  %-8s  %s",
		run.ID, run.Mass, run.Mode, FormatStatus(run.Status), storage.FormatTimeAgo(run.CreatedAt), filepath.Base(run.Dir))
}

func FormatStatus(status models.RunStatus) string {
	switch status {
	case models.RunStatusRunning:
		return statusRunning.Render("● running ")
	case models.RunStatusComplete:
		return statusComplete.Render("✓ complete")
	case models.RunStatusFailed:
		return statusFailed.Render("✗ failed  ")
	case models.RunStatusStaged:
		return statusStaged.Render("↑ staged  ")
	default:
		return fmt.Sprintf("%-10s", status)
	}
}

func (a *App) viewRunDetail() string {
	if a.selectedRun == nil {
		return "No run selected"
	}

	run := a.selectedRun

	header := fmt.Sprintf("Run #%d: MHPPR = %s GeV (%s)", run.ID, run.Mass, run.Mode)
	s := titleStyle.Render(header) + "  " + FormatStatus(run.Status) + "\n\n"

	field := func(label, value string) {
		if value == "" {
			return
		}
		s += labelStyle.Render(fmt.Sprintf("%-12s", label)) + value + "\n"
	}

	field("Directory:", run.Dir)
	field("Steering:", run.ConfigPath)
	field("Log:", run.LogPath)
	field("Wrapper:", run.ScriptPath)
	field("Staged in:", run.StagingDir)
	field("Created:", run.CreatedAt.Format("2006-01-02 15:04:05"))
	if run.CompletedAt != nil {
		field("Duration:", formatDuration(run.CompletedAt.Sub(run.CreatedAt)))
	}
	if run.ExitCode != nil {
		if *run.ExitCode == 0 {
			field("Exit:", dimStyle.Render("0"))
		} else {
			field("Exit:", statusFailed.Render(fmt.Sprintf("%d", *run.ExitCode)))
		}
	}
	if run.Error != "" {
		field("Error:", statusFailed.Render(run.Error))
	}
	if run.Status == models.RunStatusStaged {
		s += "\n" + dimStyle.Render("Submit from "+run.StagingDir+" with condor_submit.") + "\n"
	}
	if a.err != nil {
		s += "\n" + statusFailed.Render(fmt.Sprintf("Error: %v", a.err)) + "\n"
	}

	help := "[esc] back  [ctrl+c] quit"
	if run.LogPath != "" {
		help = "[l] log  " + help
	}
	s += "\n" + helpStyle.Render(help)

	return s
}

func (a *App) viewLog() string {
	title := "Log"
	if a.selectedRun != nil {
		title = "Log: " + filepath.Base(a.selectedRun.LogPath)
	}
	s := titleStyle.Render(title) + "\n"
	s += a.logView.View() + "\n"
	s += helpStyle.Render(fmt.Sprintf("%3.0f%%  [↑/↓] scroll  [esc] back", a.logView.ScrollPercent()*100))
	return s
}

// Messages

type runsLoadedMsg struct {
	runs []*models.Run
	err  error
}

type runDetailMsg struct {
	run *models.Run
	err error
}

type logLoadedMsg struct {
	content string
	err     error
}

// Commands

func (a *App) loadRuns() tea.Msg {
	runs, err := a.source.ListRuns(50)
	return runsLoadedMsg{runs: runs, err: err}
}

func (a *App) loadRunDetail(id int64) tea.Cmd {
	return func() tea.Msg {
		run, err := a.source.GetRun(id)
		return runDetailMsg{run: run, err: err}
	}
}

func (a *App) loadLog(run *models.Run) tea.Cmd {
	return func() tea.Msg {
		content, err := a.source.ReadLog(run, logTailBytes)
		return logLoadedMsg{content: content, err: err}
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
