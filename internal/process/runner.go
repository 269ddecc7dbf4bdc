package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/kballard/go-shellquote"
	"golang.org/x/sys/unix"

	"cheribuild/internal/config"
	"cheribuild/internal/ui"
)

// tailLines is how much output a timeout error keeps.
const tailLines = 20

// Runner executes invocations. A Runner may be shared by sequential callers;
// one Run call at a time is expected.
type Runner struct {
	Pretend      bool
	Quiet        bool
	Verbose      bool
	NoLogfile    bool
	CompressLogs bool
	// Timeout applies to invocations that don't set their own.
	Timeout time.Duration

	Printer *ui.Printer
	Out     io.Writer
	Err     io.Writer

	// serialises writes to the log file between the stdout and stderr readers
	logMu sync.Mutex

	logsMu  sync.Mutex
	written map[string]struct{}
}

// NewRunner builds a runner from the resolved global settings.
func NewRunner(s config.Settings, p *ui.Printer) *Runner {
	if p == nil {
		p = ui.Default()
	}
	return &Runner{
		Pretend:      s.Pretend,
		Quiet:        s.Quiet,
		Verbose:      s.Verbose,
		NoLogfile:    s.NoLogfile,
		CompressLogs: s.CompressLogs,
		Timeout:      s.CommandTimeout,
		Printer:      p,
		Out:          os.Stdout,
		Err:          os.Stderr,
	}
}

func (r *Runner) printer() *ui.Printer {
	if r.Printer == nil {
		return ui.Default()
	}
	return r.Printer
}

func (r *Runner) stdout() io.Writer {
	if r.Out == nil {
		return os.Stdout
	}
	return r.Out
}

func (r *Runner) stderr() io.Writer {
	if r.Err == nil {
		return os.Stderr
	}
	return r.Err
}

// Run executes inv and returns its exit code. filter controls how stdout
// lines are shown; nil selects an overwrite-line filter. In verbose mode
// output is shown raw and in quiet mode stdout is not shown at all.
func (r *Runner) Run(ctx context.Context, inv *Invocation, filter Filter) (int, error) {
	if len(inv.Argv) == 0 {
		return -1, errors.New("process: empty command")
	}
	r.printer().PrintCommand(inv.Argv, inv.Dir, inv.Env, false)
	if r.Pretend {
		inv.State = Completed
		inv.ExitCode = 0
		return 0, nil
	}

	timeout := inv.Timeout
	if timeout == 0 {
		timeout = r.Timeout
	}
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	var logFile *os.File
	logPath := ""
	if !r.NoLogfile {
		var err error
		logPath = inv.logPath()
		logFile, err = r.openLog(inv, logPath)
		if err != nil {
			return -1, err
		}
		defer logFile.Close()
	}

	cmd := exec.Command(inv.Argv[0], inv.Argv[1:]...)
	cmd.Dir = inv.Dir
	cmd.Env = mergeEnv(os.Environ(), inv.Env)
	cmd.Stdin = nil
	// own process group so a kill reaches make's children too
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return -1, fmt.Errorf("process: stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return -1, fmt.Errorf("process: stderr pipe: %w", err)
	}

	start := time.Now()
	inv.State = Running
	if err := cmd.Start(); err != nil {
		inv.State = Failed
		inv.ExitCode = -1
		return -1, &CommandFailedError{Argv: inv.Argv, Dir: inv.Dir, ExitCode: -1, LogPath: logPath, Err: err}
	}

	pgid := cmd.Process.Pid
	done := make(chan struct{})
	killed := make(chan struct{})
	go func() {
		select {
		case <-runCtx.Done():
			_ = unix.Kill(-pgid, unix.SIGKILL)
			close(killed)
		case <-done:
		}
	}()

	tail := &tailBuffer{max: tailLines}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.pumpStderr(stderrPipe, logFile, tail)
	}()
	r.pumpStdout(stdoutPipe, logFile, tail, filter)
	wg.Wait()

	waitErr := cmd.Wait()
	close(done)
	inv.Duration = time.Since(start)
	r.remember(logPath)

	select {
	case <-killed:
		if ctx.Err() != nil {
			inv.State = Failed
			inv.ExitCode = -1
			return -1, fmt.Errorf("%s: %w", shellquote.Join(inv.Argv...), ctx.Err())
		}
		inv.State = TimedOut
		inv.ExitCode = -1
		return -1, &CommandTimedOutError{Argv: inv.Argv, Timeout: timeout, LogPath: logPath, Output: tail.lines()}
	default:
	}

	if waitErr != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		inv.State = Failed
		inv.ExitCode = code
		failed := &CommandFailedError{Argv: inv.Argv, Dir: inv.Dir, ExitCode: code, LogPath: logPath}
		if code < 0 {
			failed.Err = waitErr
		}
		return code, failed
	}
	inv.State = Completed
	inv.ExitCode = 0
	return 0, nil
}

// Output runs argv and returns its stdout. It runs even in pretend mode
// since it is only used for read-only queries such as tool versions.
func (r *Runner) Output(ctx context.Context, argv ...string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, errors.New("process: empty command")
	}
	r.printer().PrintCommand(argv, "", nil, true)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return out, &CommandFailedError{Argv: argv, ExitCode: code, Err: err}
	}
	return out, nil
}

func (r *Runner) openLog(inv *Invocation, path string) (*os.File, error) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if inv.AppendLog {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("process: opening log file: %w", err)
	}
	if inv.AppendLog {
		if info, err := f.Stat(); err == nil && info.Size() > 0 {
			io.WriteString(f, "\n")
		}
	}
	header := shellquote.Join(inv.Argv...)
	if inv.Dir != "" {
		header = "cd " + shellquote.Join(inv.Dir) + " && " + header
	}
	if changed := ui.ChangedEnv(inv.Env); len(changed) > 0 {
		header = "env " + shellquote.Join(changed...) + " " + header
	}
	if _, err := io.WriteString(f, header+"\n\n"); err != nil {
		f.Close()
		return nil, fmt.Errorf("process: writing log header: %w", err)
	}
	return f, nil
}

func (r *Runner) writeLog(log *os.File, line []byte) {
	if log == nil {
		return
	}
	r.logMu.Lock()
	log.Write(line)
	r.logMu.Unlock()
}

func (r *Runner) pumpStderr(pipe io.Reader, log *os.File, tail *tailBuffer) {
	reader := bufio.NewReader(pipe)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			line = terminate(line)
			tail.add(line)
			// stderr is always shown, even in quiet mode
			r.logMu.Lock()
			if log != nil {
				log.Write(line)
			}
			r.stderr().Write(line)
			r.logMu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

func (r *Runner) pumpStdout(pipe io.Reader, log *os.File, tail *tailBuffer, filter Filter) {
	if filter == nil {
		filter = &OverwriteFilter{Width: ui.Width(r.stdout())}
	}
	out := r.stdout()
	reader := bufio.NewReader(pipe)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			line = terminate(line)
			tail.add(line)
			r.writeLog(log, line)
			switch {
			case r.Quiet:
			case r.Verbose:
				out.Write(line)
			default:
				filter.Line(out, string(bytes.TrimRight(line, "\r\n")))
			}
		}
		if err != nil {
			break
		}
	}
	if f, ok := filter.(Finisher); ok && !r.Quiet && !r.Verbose {
		f.Finish(out)
	}
}

func (r *Runner) remember(path string) {
	if path == "" {
		return
	}
	r.logsMu.Lock()
	defer r.logsMu.Unlock()
	if r.written == nil {
		r.written = make(map[string]struct{})
	}
	r.written[path] = struct{}{}
}

// FinishLogs compresses every log written since the last call when
// compression is enabled, and forgets them.
func (r *Runner) FinishLogs() error {
	r.logsMu.Lock()
	paths := make([]string, 0, len(r.written))
	for p := range r.written {
		paths = append(paths, p)
	}
	r.written = nil
	r.logsMu.Unlock()
	if !r.CompressLogs || r.Pretend {
		return nil
	}
	sort.Strings(paths)
	var errs []error
	for _, p := range paths {
		if _, err := CompressLog(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func terminate(line []byte) []byte {
	if len(line) == 0 || line[len(line)-1] != '\n' {
		return append(line, '\n')
	}
	return line
}

func mergeEnv(base []string, overlay map[string]string) []string {
	if len(overlay) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(overlay))
	for _, kv := range base {
		key := kv
		if i := bytes.IndexByte([]byte(kv), '='); i >= 0 {
			key = kv[:i]
		}
		if _, replaced := overlay[key]; replaced {
			continue
		}
		out = append(out, kv)
	}
	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+overlay[k])
	}
	return out
}

type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []string
}

func (t *tailBuffer) add(line []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, string(bytes.TrimRight(line, "\n")))
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
}

func (t *tailBuffer) lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.buf...)
}
