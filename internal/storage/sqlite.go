package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mpataki/dchgen/internal/models"
	_ "modernc.org/sqlite"
)

var ErrRunNotFound = errors.New("run not found")

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP,
		mass REAL NOT NULL,
		mode TEXT NOT NULL,
		dir TEXT NOT NULL DEFAULT '',
		config_path TEXT NOT NULL DEFAULT '',
		log_path TEXT NOT NULL DEFAULT '',
		script_path TEXT NOT NULL DEFAULT '',
		staging_dir TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		exit_code INTEGER,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	CREATE INDEX IF NOT EXISTS idx_runs_mass ON runs(mass);
	`

	_, err := s.db.Exec(schema)
	return err
}

const runColumns = `id, created_at, completed_at, mass, mode, dir, config_path, log_path, script_path, staging_dir, status, exit_code, error`

func (s *Storage) CreateRun(run *models.Run) (int64, error) {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	result, err := s.db.Exec(
		`INSERT INTO runs (created_at, completed_at, mass, mode, dir, config_path, log_path, script_path, staging_dir, status, exit_code, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.CreatedAt, run.CompletedAt, float64(run.Mass), run.Mode, run.Dir, run.ConfigPath,
		run.LogPath, run.ScriptPath, run.StagingDir, run.Status, run.ExitCode, run.Error,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *Storage) UpdateRun(run *models.Run) error {
	_, err := s.db.Exec(
		`UPDATE runs SET completed_at = ?, dir = ?, config_path = ?, log_path = ?, script_path = ?,
		 staging_dir = ?, status = ?, exit_code = ?, error = ? WHERE id = ?`,
		run.CompletedAt, run.Dir, run.ConfigPath, run.LogPath, run.ScriptPath,
		run.StagingDir, run.Status, run.ExitCode, run.Error, run.ID,
	)
	return err
}

func (s *Storage) GetRun(id int64) (*models.Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: #%d", ErrRunNotFound, id)
	}
	return run, err
}

func (s *Storage) ListRuns(limit int) ([]*models.Run, error) {
	return s.queryRuns(`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
}

// ListRunsForMass returns every run recorded for mass, newest first.
func (s *Storage) ListRunsForMass(mass models.Mass) ([]*models.Run, error) {
	return s.queryRuns(`SELECT `+runColumns+` FROM runs WHERE mass = ? ORDER BY created_at DESC, id DESC`, float64(mass))
}

func (s *Storage) queryRuns(query string, args ...any) ([]*models.Run, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.Run, error) {
	var run models.Run
	var mass float64
	var completedAt sql.NullTime
	var exitCode sql.NullInt64

	err := row.Scan(
		&run.ID, &run.CreatedAt, &completedAt, &mass, &run.Mode, &run.Dir,
		&run.ConfigPath, &run.LogPath, &run.ScriptPath, &run.StagingDir,
		&run.Status, &exitCode, &run.Error,
	)
	if err != nil {
		return nil, err
	}

	run.Mass = models.Mass(mass)
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		run.ExitCode = &code
	}

	return &run, nil
}

// FormatTimeAgo renders t relative to now for run listings.
func FormatTimeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("Jan 2")
	}
}
