package process

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"cheribuild/internal/ui"
)

func newTestRunner(t *testing.T) (*Runner, *bytes.Buffer, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var stdout, stderr, status bytes.Buffer
	p := &ui.Printer{Out: &status, Err: &status}
	return &Runner{Printer: p, Out: &stdout, Err: &stderr}, &stdout, &stderr, &status
}

func sh(dir, script string) *Invocation {
	return NewInvocation(dir, "/bin/sh", "-c", script)
}

func TestRunWritesLogWithHeader(t *testing.T) {
	dir := t.TempDir()
	r, stdout, stderr, _ := newTestRunner(t)
	r.Verbose = true

	inv := sh(dir, "echo out1; echo err1 >&2; echo out2").WithLog("make.install", false)
	code, err := r.Run(context.Background(), inv, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, Completed, inv.State)

	data, err := os.ReadFile(filepath.Join(dir, "make.install.log"))
	require.NoError(t, err)
	log := string(data)
	assert.True(t, strings.HasPrefix(log, "cd "+dir+" && /bin/sh -c "), log)
	assert.Contains(t, log, "\n\n")
	for _, line := range []string{"out1\n", "out2\n", "err1\n"} {
		assert.Contains(t, log, line)
	}
	assert.Equal(t, "out1\nout2\n", stdout.String())
	assert.Equal(t, "err1\n", stderr.String())
}

func TestQuietModeShowsOnlyStatus(t *testing.T) {
	dir := t.TempDir()
	r, stdout, stderr, status := newTestRunner(t)
	r.Quiet = true
	r.Printer.Quiet = true

	inv := sh(dir, "echo hello").WithLog("quiet", false)
	_, err := r.Run(context.Background(), inv, nil)
	require.NoError(t, err)
	assert.Empty(t, stdout.String())
	assert.Empty(t, stderr.String())
	assert.Empty(t, status.String())

	data, err := os.ReadFile(filepath.Join(dir, "quiet.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "/bin/sh -c 'echo hello'")
	assert.Contains(t, string(data), "hello\n")
}

func TestPretendHasNoSideEffects(t *testing.T) {
	dir := t.TempDir()
	r, stdout, _, status := newTestRunner(t)
	r.Pretend = true

	marker := filepath.Join(dir, "marker")
	inv := sh(dir, "touch "+marker).WithLog("pretend", false)
	code, err := r.Run(context.Background(), inv, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no log file and no process")
	assert.Empty(t, stdout.String())
	assert.Contains(t, status.String(), "touch")

	require.NoError(t, r.RemoveAll(dir))
	assert.DirExists(t, dir)
}

func TestFailedCommand(t *testing.T) {
	dir := t.TempDir()
	r, _, _, _ := newTestRunner(t)

	inv := sh(dir, "echo broken >&2; exit 3").WithLog("fail", false)
	code, err := r.Run(context.Background(), inv, nil)
	assert.Equal(t, 3, code)
	var failed *CommandFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, 3, failed.ExitCode)
	assert.Equal(t, filepath.Join(dir, "fail.log"), failed.LogPath)
	assert.Equal(t, Failed, inv.State)
	assert.Contains(t, err.Error(), "fail.log")
}

func TestMissingProgram(t *testing.T) {
	r, _, _, _ := newTestRunner(t)
	r.NoLogfile = true
	_, err := r.Run(context.Background(), NewInvocation(t.TempDir(), "/nonexistent/tool"), nil)
	var failed *CommandFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, -1, failed.ExitCode)
}

func TestTimeoutKillsProcessGroup(t *testing.T) {
	dir := t.TempDir()
	r, _, _, _ := newTestRunner(t)

	inv := sh(dir, "echo started; sleep 30 & sleep 30").WithLog("slow", false)
	inv.Timeout = 300 * time.Millisecond
	start := time.Now()
	_, err := r.Run(context.Background(), inv, nil)
	assert.Less(t, time.Since(start), 10*time.Second)

	var timedOut *CommandTimedOutError
	require.ErrorAs(t, err, &timedOut)
	assert.Equal(t, TimedOut, inv.State)
	assert.Contains(t, timedOut.Output, "started")
}

func TestCancelledContext(t *testing.T) {
	r, _, _, _ := newTestRunner(t)
	r.NoLogfile = true
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()
	_, err := r.Run(ctx, sh(t.TempDir(), "sleep 30"), nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestAppendLog(t *testing.T) {
	dir := t.TempDir()
	r, _, _, _ := newTestRunner(t)
	r.Quiet = true

	_, err := r.Run(context.Background(), sh(dir, "echo first").WithLog("build", false), nil)
	require.NoError(t, err)
	_, err = r.Run(context.Background(), sh(dir, "echo second").WithLog("build", true), nil)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "build.log"))
	require.NoError(t, err)
	log := string(data)
	assert.Less(t, strings.Index(log, "first"), strings.Index(log, "second"))
	assert.Contains(t, log, "first\n\ncd ")

	_, err = r.Run(context.Background(), sh(dir, "echo third").WithLog("build", false), nil)
	require.NoError(t, err)
	data, err = os.ReadFile(filepath.Join(dir, "build.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "first")
}

func TestEnvOverlay(t *testing.T) {
	r, stdout, _, _ := newTestRunner(t)
	r.Verbose = true
	r.NoLogfile = true
	inv := sh(t.TempDir(), `echo "$CHERI_TEST_VALUE"`).WithEnv(map[string]string{"CHERI_TEST_VALUE": "riscv64"})
	_, err := r.Run(context.Background(), inv, nil)
	require.NoError(t, err)
	assert.Equal(t, "riscv64\n", stdout.String())
}

func TestFilters(t *testing.T) {
	var buf bytes.Buffer
	f := &OverwriteFilter{Width: 10}
	f.Line(&buf, "a very long line")
	f.Line(&buf, "short")
	f.Finish(&buf)
	assert.Equal(t, clearLine+"a very lo"+clearLine+"short"+clearLine, buf.String())

	buf.Reset()
	install := &CMakeInstallFilter{}
	install.Line(&buf, "-- Up-to-date: /usr/bin/clang")
	assert.Empty(t, buf.String())
	install.Line(&buf, "-- Installing: /usr/bin/clang")
	assert.Contains(t, buf.String(), "Installing")

	buf.Reset()
	m := MatchFilter(0, "warning:")
	m.Line(&buf, "CC foo.o")
	m.Line(&buf, "foo.c:1: warning: unused")
	assert.Equal(t, clearLine+"CC foo.o"+clearLine+"foo.c:1: warning: unused\n", buf.String())
}

func TestOverwriteFilterCountsCells(t *testing.T) {
	var buf bytes.Buffer
	f := &OverwriteFilter{Width: 6}
	f.Line(&buf, "ビルド中です")
	shown := strings.TrimPrefix(buf.String(), clearLine)
	assert.True(t, utf8.ValidString(shown))
	assert.Equal(t, "ビル", shown)
	assert.LessOrEqual(t, runewidth.StringWidth(shown), 5)

	buf.Reset()
	f.Line(&buf, "héllo")
	assert.Equal(t, clearLine+"héllo", buf.String())
}

func TestDefaultFilterOverwrites(t *testing.T) {
	r, stdout, _, _ := newTestRunner(t)
	r.NoLogfile = true
	_, err := r.Run(context.Background(), sh(t.TempDir(), "echo a; echo b"), nil)
	require.NoError(t, err)
	assert.Equal(t, clearLine+"a"+clearLine+"b"+clearLine, stdout.String())
}

func TestInterleavedOutputKeepsLinesWhole(t *testing.T) {
	const n = 20000
	dir := t.TempDir()
	r, _, stderr, _ := newTestRunner(t)
	r.Quiet = true

	script := `i=0; while [ $i -lt ` + strconv.Itoa(n) + ` ]; do echo "out line $i"; echo "err line $i" >&2; i=$((i+1)); done`
	_, err := r.Run(context.Background(), sh(dir, script).WithLog("flood", false), nil)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "flood.log"))
	require.NoError(t, err)
	_, body, ok := strings.Cut(string(data), "\n\n")
	require.True(t, ok)
	lines := strings.Split(strings.TrimSuffix(body, "\n"), "\n")
	require.Len(t, lines, 2*n)

	valid := regexp.MustCompile(`^(out|err) line \d+$`)
	counts := map[string]int{}
	for _, line := range lines {
		require.Regexp(t, valid, line)
		counts[line[:3]]++
	}
	assert.Equal(t, n, counts["out"])
	assert.Equal(t, n, counts["err"])
	assert.Equal(t, n, strings.Count(stderr.String(), "\n"))
}

func TestCompressLogs(t *testing.T) {
	dir := t.TempDir()
	r, _, _, _ := newTestRunner(t)
	r.Quiet = true
	r.CompressLogs = true

	_, err := r.Run(context.Background(), sh(dir, "echo compressed").WithLog("configure", false), nil)
	require.NoError(t, err)
	require.NoError(t, r.FinishLogs())

	assert.NoFileExists(t, filepath.Join(dir, "configure.log"))
	f, err := os.Open(filepath.Join(dir, "configure.log.xz"))
	require.NoError(t, err)
	defer f.Close()
	reader, err := xz.NewReader(f)
	require.NoError(t, err)
	var out bytes.Buffer
	_, err = out.ReadFrom(reader)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "compressed\n")
}

func TestOutput(t *testing.T) {
	r, _, _, _ := newTestRunner(t)
	r.Pretend = true
	out, err := r.Output(context.Background(), "/bin/sh", "-c", "echo 3.20.1")
	require.NoError(t, err)
	assert.Equal(t, "3.20.1\n", string(out))
}
