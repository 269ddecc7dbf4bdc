// Package process runs the external commands of a build: it streams their
// output to the terminal, records both streams in a per-command log file and
// honours the pretend, quiet and verbose modes.
package process

import (
	"path/filepath"
	"time"
)

// State is the lifecycle of one invocation.
type State int

const (
	Created State = iota
	Running
	Completed
	Failed
	TimedOut
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed out"
	}
	return "unknown"
}

// Invocation describes one external command. After Run returns it is a
// record of what happened and must not be reused.
type Invocation struct {
	Argv []string
	Dir  string
	// Env is overlaid on the current environment.
	Env map[string]string

	// LogPath is the log file. When empty, LogName (without extension) is
	// placed in Dir; when both are empty the program name is used.
	LogPath string
	LogName string
	// AppendLog keeps an existing log and adds this command after a blank line.
	AppendLog bool

	// Timeout overrides the runner's default. Zero means the runner default.
	Timeout time.Duration

	State    State
	ExitCode int
	Duration time.Duration
}

// NewInvocation returns an invocation of argv in dir.
func NewInvocation(dir string, argv ...string) *Invocation {
	return &Invocation{Argv: argv, Dir: dir}
}

// WithLog sets the log name and returns inv.
func (inv *Invocation) WithLog(name string, appendLog bool) *Invocation {
	inv.LogName = name
	inv.AppendLog = appendLog
	return inv
}

// WithEnv overlays env and returns inv.
func (inv *Invocation) WithEnv(env map[string]string) *Invocation {
	if inv.Env == nil {
		inv.Env = make(map[string]string, len(env))
	}
	for k, v := range env {
		inv.Env[k] = v
	}
	return inv
}

func (inv *Invocation) logPath() string {
	if inv.LogPath != "" {
		return inv.LogPath
	}
	name := inv.LogName
	if name == "" && len(inv.Argv) > 0 {
		name = filepath.Base(inv.Argv[0])
	}
	return filepath.Join(inv.Dir, name+".log")
}
