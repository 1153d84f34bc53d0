package models

import (
	"fmt"
	"strings"
	"time"
)

type RunStatus string

const (
	RunStatusPending  RunStatus = "pending"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
	RunStatusStaged   RunStatus = "staged"
)

// Mode selects how a run is executed.
type Mode string

const (
	ModeLocal Mode = "local"
	ModeBatch Mode = "batch"
)

// ParseMode accepts "local" or "batch" (case-insensitive). Empty means local.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "local":
		return ModeLocal, nil
	case "batch":
		return ModeBatch, nil
	}
	return "", fmt.Errorf("unknown mode %q (want local or batch)", s)
}

// DirPrefix is the run directory prefix for the mode.
func (m Mode) DirPrefix() string {
	if m == ModeBatch {
		return "batch"
	}
	return "run"
}

type Run struct {
	ID          int64
	CreatedAt   time.Time
	CompletedAt *time.Time
	Mass        Mass
	Mode        Mode
	Dir         string
	ConfigPath  string
	LogPath     string
	ScriptPath  string
	StagingDir  string
	Status      RunStatus
	ExitCode    *int
	Error       string
}
