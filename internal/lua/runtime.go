package lua

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/mpataki/dchgen/internal/models"
)

// Orchestrator is the part of the run orchestrator a scan script drives.
type Orchestrator interface {
	Orchestrate(ctx context.Context, mass models.Mass, mode models.Mode) (*models.Run, error)
}

// Runtime executes Lua scan scripts in a sandboxed environment
type Runtime struct {
	ctx         context.Context
	orch        Orchestrator
	log         *zap.Logger
	defaultMode models.Mode
	scanName    string

	runs []*models.Run
}

// NewRuntime creates a runtime whose generate() calls default to mode.
func NewRuntime(ctx context.Context, orch Orchestrator, mode models.Mode, log *zap.Logger) *Runtime {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if mode == "" {
		mode = models.ModeLocal
	}
	return &Runtime{
		ctx:         ctx,
		orch:        orch,
		log:         log,
		defaultMode: mode,
	}
}

// Execute runs the scan script. A script either calls generate() itself or
// defines a scan() function returning a list of masses.
func (r *Runtime) Execute(scriptPath string) ([]*models.Run, error) {
	script, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	r.scanName = trimExt(filepath.Base(scriptPath))
	return r.ExecuteString(string(script))
}

func (r *Runtime) ExecuteString(script string) ([]*models.Run, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true, // Don't load any libraries by default
	})
	defer L.Close()
	L.SetContext(r.ctx)

	r.openSafeLibs(L)
	r.registerAPI(L)

	if err := L.DoString(script); err != nil {
		return r.runs, fmt.Errorf("scan script failed: %w", err)
	}

	scan := L.GetGlobal("scan")
	if scan == lua.LNil {
		return r.runs, nil
	}
	if scan.Type() != lua.LTFunction {
		return r.runs, fmt.Errorf("'scan' must be a function")
	}

	L.Push(scan)
	if err := L.PCall(0, 1, nil); err != nil {
		return r.runs, fmt.Errorf("scan() failed: %w", err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		if ret == lua.LNil {
			return r.runs, nil
		}
		return r.runs, fmt.Errorf("scan() must return a list of masses, got %s", ret.Type())
	}

	var masses []models.Mass
	var convErr error
	tbl.ForEach(func(_, v lua.LValue) {
		n, ok := v.(lua.LNumber)
		if !ok {
			if convErr == nil {
				convErr = fmt.Errorf("scan() returned non-numeric mass %s", v.String())
			}
			return
		}
		masses = append(masses, models.Mass(n))
	})
	if convErr != nil {
		return r.runs, convErr
	}

	for _, m := range masses {
		if _, err := r.generate(m, r.defaultMode); err != nil {
			return r.runs, err
		}
	}
	return r.runs, nil
}

// openSafeLibs loads only the safe standard libraries
func (r *Runtime) openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)

	// Remove base functions that reach the filesystem or load code
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)
	L.SetGlobal("print", lua.LNil) // Use log() instead

	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// Scans must be reproducible
	math := L.GetGlobal("math")
	if tbl, ok := math.(*lua.LTable); ok {
		L.SetField(tbl, "random", lua.LNil)
		L.SetField(tbl, "randomseed", lua.LNil)
	}
}

func (r *Runtime) registerAPI(L *lua.LState) {
	L.SetGlobal("generate", L.NewFunction(r.luaGenerate))
	L.SetGlobal("context", L.NewFunction(r.luaContext))
	L.SetGlobal("log", L.NewFunction(r.luaLog))
}

// luaGenerate implements generate(mass, mode?) and returns the run as a table.
func (r *Runtime) luaGenerate(L *lua.LState) int {
	mass := models.Mass(L.CheckNumber(1))
	mode := r.defaultMode
	if L.GetTop() >= 2 {
		m, err := models.ParseMode(L.CheckString(2))
		if err != nil {
			L.ArgError(2, err.Error())
			return 0
		}
		mode = m
	}

	run, err := r.generate(mass, mode)
	if err != nil {
		L.RaiseError("generate(%s) failed: %v", mass, err)
		return 0
	}

	L.Push(r.runToTable(L, run))
	return 1
}

func (r *Runtime) generate(mass models.Mass, mode models.Mode) (*models.Run, error) {
	run, err := r.orch.Orchestrate(r.ctx, mass, mode)
	if run != nil {
		r.runs = append(r.runs, run)
	}
	return run, err
}

func (r *Runtime) runToTable(L *lua.LState, run *models.Run) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "id", lua.LNumber(run.ID))
	L.SetField(tbl, "mass", lua.LNumber(run.Mass))
	L.SetField(tbl, "mode", lua.LString(run.Mode))
	L.SetField(tbl, "dir", lua.LString(run.Dir))
	L.SetField(tbl, "status", lua.LString(run.Status))
	if run.ExitCode != nil {
		L.SetField(tbl, "exit_code", lua.LNumber(*run.ExitCode))
	}
	return tbl
}

// luaContext implements the context() API
func (r *Runtime) luaContext(L *lua.LState) int {
	tbl := L.NewTable()
	L.SetField(tbl, "scan", lua.LString(r.scanName))
	L.SetField(tbl, "mode", lua.LString(r.defaultMode))
	L.SetField(tbl, "runs", lua.LNumber(len(r.runs)))
	L.Push(tbl)
	return 1
}

// luaLog implements the log(message) API
func (r *Runtime) luaLog(L *lua.LState) int {
	message := L.CheckString(1)
	r.log.Info(message, zap.String("scan", r.scanName))
	return 0
}

// IsLuaScan checks if a file is a Lua scan script
func IsLuaScan(path string) bool {
	return filepath.Ext(path) == ".lua"
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
