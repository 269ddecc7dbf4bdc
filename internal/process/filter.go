package process

import (
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

const clearLine = "\x1b[2K\r"

// Filter decides how a line of child stdout is shown. line has no trailing
// newline.
type Filter interface {
	Line(w io.Writer, line string)
}

// Finisher is implemented by filters that leave the cursor mid-line.
type Finisher interface {
	Finish(w io.Writer)
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(w io.Writer, line string)

func (f FilterFunc) Line(w io.Writer, line string) { f(w, line) }

// ShowLine prints every line unchanged.
var ShowLine = FilterFunc(func(w io.Writer, line string) {
	io.WriteString(w, line+"\n")
})

// OverwriteFilter keeps high volume output on a single terminal line by
// clearing it before each write.
type OverwriteFilter struct {
	// Width truncates lines to fewer terminal cells so they never wrap.
	// Zero disables truncation.
	Width   int
	pending bool
}

func (f *OverwriteFilter) Line(w io.Writer, line string) {
	if f.Width > 0 {
		line = runewidth.Truncate(line, f.Width-1, "")
	}
	io.WriteString(w, clearLine+line)
	f.pending = true
}

func (f *OverwriteFilter) Finish(w io.Writer) {
	if f.pending {
		io.WriteString(w, clearLine)
		f.pending = false
	}
}

// CMakeInstallFilter hides "-- Up-to-date:" lines and overwrites the rest.
type CMakeInstallFilter struct {
	OverwriteFilter
}

func (f *CMakeInstallFilter) Line(w io.Writer, line string) {
	if strings.HasPrefix(line, "-- Up-to-date:") {
		return
	}
	f.OverwriteFilter.Line(w, line)
}

// MatchFilter shows lines containing any of the given substrings on their own
// line and overwrites everything else. Used for make output where warnings
// and errors should stay visible.
func MatchFilter(width int, keep ...string) Filter {
	over := &OverwriteFilter{Width: width}
	return &matchFilter{over: over, keep: keep}
}

type matchFilter struct {
	over *OverwriteFilter
	keep []string
}

func (f *matchFilter) Line(w io.Writer, line string) {
	for _, k := range f.keep {
		if strings.Contains(line, k) {
			f.over.Finish(w)
			io.WriteString(w, line+"\n")
			return
		}
	}
	f.over.Line(w, line)
}

func (f *matchFilter) Finish(w io.Writer) { f.over.Finish(w) }
