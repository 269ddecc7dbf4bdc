package ui

import (
	"bytes"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

var ansi = regexp.MustCompile("\x1b\\[[0-9;]*m")

func plain(s string) string { return ansi.ReplaceAllString(s, "") }

func TestQuietSuppressesStatus(t *testing.T) {
	var out, errOut bytes.Buffer
	p := &Printer{Out: &out, Err: &errOut, Quiet: true}
	p.Status("Building", "llvm")
	p.Info("info")
	p.Debugf("debug %d\n", 1)
	p.PrintCommand([]string{"make"}, "/tmp", nil, false)
	assert.Empty(t, out.String())

	p.Warning("careful")
	p.Fatal("broken")
	assert.Contains(t, errOut.String(), "careful")
	assert.Contains(t, errOut.String(), "Fatal error: broken")
}

func TestPrintCommand(t *testing.T) {
	var out bytes.Buffer
	p := &Printer{Out: &out}
	p.PrintCommand([]string{"cmake", "-G", "Unix Makefiles", "../llvm"}, "/build/llvm", map[string]string{"CHERI_UI_TEST": "1"}, false)
	line := plain(out.String())
	assert.Contains(t, line, "cd /build/llvm && ")
	assert.Contains(t, line, "env CHERI_UI_TEST=1 ")
	assert.Contains(t, line, "cmake -G 'Unix Makefiles' ../llvm")

	out.Reset()
	p.PrintCommand([]string{"ls"}, "", nil, true)
	assert.Empty(t, out.String())
	p.Verbose = true
	p.PrintCommand([]string{"ls"}, "", nil, true)
	assert.Contains(t, out.String(), "ls")
}

func TestChangedEnv(t *testing.T) {
	t.Setenv("CHERI_UI_SAME", "x")
	changed := ChangedEnv(map[string]string{"CHERI_UI_SAME": "x", "CHERI_UI_NEW": "y"})
	assert.Equal(t, []string{"CHERI_UI_NEW=y"}, changed)
}

func TestConfirm(t *testing.T) {
	old := In
	t.Cleanup(func() { In = old })
	var out bytes.Buffer
	p := &Printer{Out: &out}

	In = strings.NewReader("maybe\nn\n")
	assert.False(t, p.Confirm("Clone llvm?", true, false))

	In = strings.NewReader("\n")
	assert.True(t, p.Confirm("Clone llvm?", true, false))

	In = strings.NewReader("")
	assert.False(t, p.Confirm("Delete?", false, false))

	assert.True(t, p.Confirm("Clone?", true, true), "force answers with the default")
}

func TestWidthOfNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, 0, Width(&buf))
	assert.False(t, IsTerminal(&buf))
}
