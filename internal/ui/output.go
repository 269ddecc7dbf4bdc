package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/gookit/color"
	"github.com/kballard/go-shellquote"
)

// color helpers
var (
	colInfo    = color.Info // style provided by gookit/color
	colWarn    = color.Warn
	colDanger  = color.Danger
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
	colCommand = color.Yellow
	colEnv     = color.Cyan
)

// Printer writes the status, warning and command lines the user sees while a
// build runs. Quiet suppresses everything except warnings and fatal errors.
type Printer struct {
	mu      sync.Mutex
	Out     io.Writer
	Err     io.Writer
	Verbose bool
	Quiet   bool
}

var std = &Printer{Out: os.Stdout, Err: os.Stderr}

// Default returns the process wide printer.
func Default() *Printer { return std }

// SetVerbosity updates the process wide printer once the global flags are resolved.
func SetVerbosity(verbose, quiet bool) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.Verbose = verbose
	std.Quiet = quiet
}

// SetOutput redirects the process wide printer (used by tests).
func SetOutput(out, errOut io.Writer) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.Out = out
	std.Err = errOut
}

func (p *Printer) out() io.Writer {
	if p.Out == nil {
		return os.Stdout
	}
	return p.Out
}

func (p *Printer) err() io.Writer {
	if p.Err == nil {
		return os.Stderr
	}
	return p.Err
}

// Status prints "-> message" unless quiet.
func (p *Printer) Status(a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Quiet {
		return
	}
	fmt.Fprint(p.out(), colArrow.Sprint("-> "))
	fmt.Fprintln(p.out(), colSuccess.Sprint(joinArgs(a)))
}

// Info prints an informational line unless quiet.
func (p *Printer) Info(a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Quiet {
		return
	}
	fmt.Fprintln(p.out(), colInfo.Sprint(joinArgs(a)))
}

// Warning is always shown and goes to stderr.
func (p *Printer) Warning(a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.err(), colArrow.Sprint("-> "))
	fmt.Fprintln(p.err(), colWarn.Sprint("Warning: "+joinArgs(a)))
}

// Fatal prints the single line summary of a fatal error.
func (p *Printer) Fatal(a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.err(), colArrow.Sprint("-> "))
	fmt.Fprintln(p.err(), colDanger.Sprint("Fatal error: "+joinArgs(a)))
}

// Debugf prints only in verbose mode.
func (p *Printer) Debugf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.Verbose || p.Quiet {
		return
	}
	fmt.Fprintf(p.out(), format, args...)
}

// PrintCommand echoes a command line the way a user would type it:
// cd <dir> && env K=V <argv...>. verboseOnly commands are hidden unless
// --verbose was given.
func (p *Printer) PrintCommand(argv []string, dir string, env map[string]string, verboseOnly bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Quiet || (verboseOnly && !p.Verbose) {
		return
	}
	var b strings.Builder
	if dir != "" {
		b.WriteString(colCommand.Sprint("cd " + shellquote.Join(dir) + " && "))
	}
	if changed := ChangedEnv(env); len(changed) > 0 {
		b.WriteString(colCommand.Sprint("env "))
		b.WriteString(colEnv.Sprint(shellquote.Join(changed...)))
		b.WriteString(" ")
	}
	b.WriteString(colCommand.Sprint(shellquote.Join(argv...)))
	fmt.Fprintln(p.out(), b.String())
}

// ChangedEnv returns the K=V entries of env that differ from the current
// process environment, sorted by key.
func ChangedEnv(env map[string]string) []string {
	var result []string
	for _, k := range sortedKeys(env) {
		if cur, ok := os.LookupEnv(k); ok && cur == env[k] {
			continue
		}
		result = append(result, k+"="+env[k])
	}
	return result
}

func Status(a ...any)                   { std.Status(a...) }
func Info(a ...any)                     { std.Info(a...) }
func Warning(a ...any)                  { std.Warning(a...) }
func Fatal(a ...any)                    { std.Fatal(a...) }
func Debugf(format string, args ...any) { std.Debugf(format, args...) }
func PrintCommand(argv []string, dir string, env map[string]string, verboseOnly bool) {
	std.PrintCommand(argv, dir, env, verboseOnly)
}

func joinArgs(a []any) string {
	parts := make([]string, 0, len(a))
	for _, v := range a {
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, " ")
}
