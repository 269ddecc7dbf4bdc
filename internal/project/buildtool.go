package project

import (
	"context"
	"path/filepath"
	"strconv"

	"cheribuild/internal/process"
	"cheribuild/internal/ui"
)

// BuildTool is the configure/compile/install strategy of a project.
type BuildTool interface {
	Name() string
	Required() []RequiredTool
	// ConfigureCommand is the configure argv, or nil when the tool has no
	// configure step. It feeds the configure fingerprint.
	ConfigureCommand(p *Project) []string
	NeedsConfigure(p *Project) bool
	Configure(ctx context.Context, p *Project) error
	Compile(ctx context.Context, p *Project) error
	Install(ctx context.Context, p *Project) error
}

// makeCommand builds a parallel make or ninja invocation honouring
// --make-jobs, --make-without-nice and --pass-k-to-make.
func makeCommand(p *Project, tool string, args []string, targets ...string) []string {
	s := p.env.Settings
	var argv []string
	if !s.MakeWithoutNice {
		argv = append(argv, "nice")
	}
	argv = append(argv, tool)
	if s.MakeJobs > 0 {
		argv = append(argv, "-j"+strconv.Itoa(s.MakeJobs))
	}
	if s.PassKToMake {
		if tool == "ninja" {
			argv = append(argv, "-k", "50")
		} else {
			argv = append(argv, "-k")
		}
	}
	argv = append(argv, args...)
	return append(argv, targets...)
}

func makeFilter(p *Project) process.Filter {
	return process.MatchFilter(ui.Width(p.env.Runner.Out), "warning:", "error:", "Error ")
}

// CMake configures with cmake and builds with the generator's tool.
type CMake struct {
	// Generator is "Ninja" (default) or "Unix Makefiles".
	Generator string
	BuildType string
	Options   []string
	// MinVersion of cmake, default 3.13.4.
	MinVersion string
	// SourceSubdir holds the top-level CMakeLists.txt, relative to the
	// source directory.
	SourceSubdir string
}

func (c *CMake) generator() string {
	if c.Generator == "" {
		return "Ninja"
	}
	return c.Generator
}

func (c *CMake) buildTool() string {
	if c.generator() == "Ninja" {
		return "ninja"
	}
	return "make"
}

func (c *CMake) Name() string { return c.buildTool() }

func (c *CMake) Required() []RequiredTool {
	min := c.MinVersion
	if min == "" {
		min = "3.13.4"
	}
	tools := []RequiredTool{{Name: "cmake", MinVersion: min, Hint: "Install cmake from your package manager or https://cmake.org/download/"}}
	return append(tools, RequiredTool{Name: c.buildTool()})
}

func (c *CMake) ConfigureCommand(p *Project) []string {
	argv := []string{"cmake", "-G", c.generator()}
	if c.BuildType != "" {
		argv = append(argv, "-DCMAKE_BUILD_TYPE="+c.BuildType)
	}
	if p.InstallDir != "" {
		argv = append(argv, "-DCMAKE_INSTALL_PREFIX="+p.InstallDir)
	}
	argv = append(argv, c.Options...)
	return append(argv, filepath.Join(p.SourceDir, c.SourceSubdir))
}

func (c *CMake) NeedsConfigure(p *Project) bool {
	if !exists(filepath.Join(p.BuildDir, "CMakeCache.txt")) {
		return true
	}
	if c.buildTool() == "ninja" {
		return !exists(filepath.Join(p.BuildDir, "build.ninja"))
	}
	return !exists(filepath.Join(p.BuildDir, "Makefile"))
}

func (c *CMake) Configure(ctx context.Context, p *Project) error {
	if p.env.Settings.Reconfigure {
		if err := p.env.Runner.RemoveAll(filepath.Join(p.BuildDir, "CMakeCache.txt")); err != nil {
			return err
		}
	}
	return p.run(ctx, "cmake", false, process.ShowLine, c.ConfigureCommand(p)...)
}

func (c *CMake) Compile(ctx context.Context, p *Project) error {
	return p.run(ctx, logName(c.buildTool(), "build"), false, makeFilter(p), makeCommand(p, c.buildTool(), nil)...)
}

func (c *CMake) Install(ctx context.Context, p *Project) error {
	return p.run(ctx, logName(c.buildTool(), "install"), false, &process.CMakeInstallFilter{}, makeCommand(p, c.buildTool(), nil, "install")...)
}

// Autotools runs a configure script in the build directory and then make.
type Autotools struct {
	// Script is relative to the source directory, default "configure".
	Script  string
	Options []string
	// Make is the make flavour, default "make".
	Make string
}

func (a *Autotools) makeTool() string {
	if a.Make == "" {
		return "make"
	}
	return a.Make
}

func (a *Autotools) Name() string { return a.makeTool() }

func (a *Autotools) Required() []RequiredTool {
	return []RequiredTool{{Name: a.makeTool()}}
}

func (a *Autotools) ConfigureCommand(p *Project) []string {
	script := a.Script
	if script == "" {
		script = "configure"
	}
	argv := []string{filepath.Join(p.SourceDir, script)}
	if p.InstallDir != "" {
		argv = append(argv, "--prefix="+p.InstallDir)
	}
	return append(argv, a.Options...)
}

func (a *Autotools) NeedsConfigure(p *Project) bool {
	return !exists(filepath.Join(p.BuildDir, "Makefile"))
}

func (a *Autotools) Configure(ctx context.Context, p *Project) error {
	return p.run(ctx, "configure", false, process.ShowLine, a.ConfigureCommand(p)...)
}

func (a *Autotools) Compile(ctx context.Context, p *Project) error {
	return p.run(ctx, logName(a.makeTool(), "build"), false, makeFilter(p), makeCommand(p, a.makeTool(), nil)...)
}

func (a *Autotools) Install(ctx context.Context, p *Project) error {
	return p.run(ctx, logName(a.makeTool(), "install"), false, makeFilter(p), makeCommand(p, a.makeTool(), nil, "install")...)
}

// Make drives a plain Makefile (or build.ninja) without a configure step.
type Make struct {
	// Tool is "make" (default), "gmake" or "ninja".
	Tool           string
	Args           []string
	CompileTargets []string
	// InstallTargets default to "install". Set SkipInstall for projects
	// that have nothing to install.
	InstallTargets []string
	SkipInstall    bool
}

// logName names a compile or install log after the tool, e.g. "ninja.build".
func logName(tool, action string) string {
	return filepath.Base(tool) + "." + action
}

// Ninja returns a Make strategy using ninja.
func Ninja(args ...string) *Make {
	return &Make{Tool: "ninja", Args: args}
}

func (m *Make) tool() string {
	if m.Tool == "" {
		return "make"
	}
	return m.Tool
}

func (m *Make) Name() string { return m.tool() }

// Required is empty for a Tool given as a path: that script lives in the
// source tree, which may not be checked out yet.
func (m *Make) Required() []RequiredTool {
	if filepath.IsAbs(m.tool()) {
		return nil
	}
	return []RequiredTool{{Name: m.tool()}}
}

func (m *Make) ConfigureCommand(*Project) []string        { return nil }
func (m *Make) NeedsConfigure(*Project) bool              { return false }
func (m *Make) Configure(context.Context, *Project) error { return nil }

func (m *Make) Compile(ctx context.Context, p *Project) error {
	return p.run(ctx, logName(m.tool(), "build"), false, makeFilter(p), makeCommand(p, m.tool(), m.Args, m.CompileTargets...)...)
}

func (m *Make) Install(ctx context.Context, p *Project) error {
	if m.SkipInstall {
		return nil
	}
	targets := m.InstallTargets
	if len(targets) == 0 {
		targets = []string{"install"}
	}
	return p.run(ctx, logName(m.tool(), "install"), false, makeFilter(p), makeCommand(p, m.tool(), m.Args, targets...)...)
}

// Step is one action of a Script. Either Argv runs as a command or Func is
// called; Func must itself respect pretend mode.
type Step struct {
	Name string
	Argv []string
	Func func(ctx context.Context, p *Project) error
}

// Script is a build made of explicit steps, for projects that don't use a
// standard build system (disk images, archives, launchers).
type Script struct {
	Label  string
	Tools  []RequiredTool
	Setup  []Step
	Build  []Step
	Deploy []Step
	// Configured reports whether Setup already ran; nil means Setup is
	// needed whenever it is non-empty.
	Configured func(p *Project) bool
}

func (s *Script) Name() string {
	if s.Label == "" {
		return "script"
	}
	return s.Label
}

func (s *Script) Required() []RequiredTool           { return s.Tools }
func (s *Script) ConfigureCommand(*Project) []string { return nil }

func (s *Script) NeedsConfigure(p *Project) bool {
	if len(s.Setup) == 0 {
		return false
	}
	if s.Configured != nil {
		return !s.Configured(p)
	}
	return true
}

func (s *Script) Configure(ctx context.Context, p *Project) error { return s.runSteps(ctx, p, s.Setup) }
func (s *Script) Compile(ctx context.Context, p *Project) error   { return s.runSteps(ctx, p, s.Build) }
func (s *Script) Install(ctx context.Context, p *Project) error   { return s.runSteps(ctx, p, s.Deploy) }

func (s *Script) runSteps(ctx context.Context, p *Project, steps []Step) error {
	for i, step := range steps {
		if step.Func != nil {
			if err := step.Func(ctx, p); err != nil {
				return err
			}
			continue
		}
		name := step.Name
		if name == "" {
			name = s.Name()
		}
		// steps sharing a log name append to it
		appendLog := false
		for _, prev := range steps[:i] {
			if prev.Name == step.Name && prev.Func == nil {
				appendLog = true
			}
		}
		if err := p.run(ctx, name, appendLog, process.ShowLine, step.Argv...); err != nil {
			return err
		}
	}
	return nil
}
