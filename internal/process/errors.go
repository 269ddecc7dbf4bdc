package process

import (
	"fmt"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
)

// CommandFailedError is returned when a command exits non-zero or cannot be
// started.
type CommandFailedError struct {
	Argv     []string
	Dir      string
	ExitCode int
	LogPath  string
	Err      error
}

func (e *CommandFailedError) Error() string {
	var b strings.Builder
	if e.Err != nil && e.ExitCode < 0 {
		fmt.Fprintf(&b, "could not run %s: %v", shellquote.Join(e.Argv...), e.Err)
	} else {
		fmt.Fprintf(&b, "command `%s` failed with exit code %d", shellquote.Join(e.Argv...), e.ExitCode)
	}
	if e.Dir != "" {
		fmt.Fprintf(&b, " (working directory %s)", e.Dir)
	}
	if e.LogPath != "" {
		fmt.Fprintf(&b, ". See %s for details", e.LogPath)
	}
	return b.String()
}

func (e *CommandFailedError) Unwrap() error { return e.Err }

// CommandTimedOutError is returned when a command was killed after exceeding
// its timeout. Output holds the last lines captured before the kill.
type CommandTimedOutError struct {
	Argv    []string
	Timeout time.Duration
	LogPath string
	Output  []string
}

func (e *CommandTimedOutError) Error() string {
	msg := fmt.Sprintf("command `%s` timed out after %s", shellquote.Join(e.Argv...), e.Timeout)
	if e.LogPath != "" {
		msg += ". See " + e.LogPath
	}
	return msg
}
