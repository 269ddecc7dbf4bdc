package project

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"

	"cheribuild/internal/config"
	"cheribuild/internal/process"
	"cheribuild/internal/ui"
)

// Env is the run-wide state a project needs.
type Env struct {
	Settings config.Settings
	Runner   *process.Runner
	Printer  *ui.Printer
}

// Project is the one concrete Unit implementation.
type Project struct {
	name string
	Arch string

	SourceDir  string
	BuildDir   string
	InstallDir string

	Source   *GitSource
	Tool     BuildTool
	Required []RequiredTool
	// CommandEnv is added to the environment of every command.
	CommandEnv map[string]string

	env *Env
}

var _ Unit = (*Project)(nil)

// New returns a project building with tool. Directories are set by the
// caller, usually from ResolveOptions.
func New(name string, env *Env, tool BuildTool) *Project {
	return &Project{name: name, env: env, Tool: tool}
}

func (p *Project) Name() string { return p.name }

// BuildDirectory is locked by the orchestrator while the project builds.
func (p *Project) BuildDirectory() string { return p.BuildDir }

// Settings returns the global settings of the run.
func (p *Project) Settings() config.Settings { return p.env.Settings }

// Runner returns the command runner.
func (p *Project) Runner() *process.Runner { return p.env.Runner }

func (p *Project) printer() *ui.Printer { return p.env.printer() }

func (e *Env) printer() *ui.Printer {
	if e.Printer == nil {
		return ui.Default()
	}
	return e.Printer
}

func (p *Project) Update(ctx context.Context) error {
	if p.Source == nil {
		return nil
	}
	return p.Source.Sync(ctx, p.env)
}

func (p *Project) CheckSystemDependencies(ctx context.Context) error {
	var tools []RequiredTool
	if p.Tool != nil {
		tools = append(tools, p.Tool.Required()...)
	}
	tools = append(tools, p.Required...)
	for _, rt := range tools {
		if err := rt.Check(ctx, p.name, p.env.Runner); err != nil {
			return err
		}
	}
	return nil
}

// Clean removes build state. A build directory that is itself a git
// checkout is cleaned in place; anything else is deleted and recreated.
func (p *Project) Clean(ctx context.Context) error {
	if p.BuildDir == "" {
		return nil
	}
	if _, err := git.PlainOpen(p.BuildDir); err == nil {
		if exists(filepath.Join(p.BuildDir, "GNUmakefile")) {
			return p.run(ctx, "clean", false, process.ShowLine, "make", "distclean")
		}
		return p.run(ctx, "clean", false, process.ShowLine, "git", "clean", "-dfx")
	} else if !errors.Is(err, git.ErrRepositoryNotExists) {
		return fmt.Errorf("%s: inspecting build directory: %w", p.name, err)
	}
	return p.env.Runner.CleanDirectory(p.BuildDir)
}

func (p *Project) NeedsConfigure() bool {
	if p.Tool == nil {
		return false
	}
	if p.Tool.NeedsConfigure(p) {
		return true
	}
	if argv := p.Tool.ConfigureCommand(p); argv != nil {
		return !stampMatches(p.BuildDir, configureFingerprint(argv, p.CommandEnv))
	}
	return false
}

func (p *Project) Configure(ctx context.Context) error {
	if p.Tool == nil {
		return nil
	}
	if err := p.ensureBuildDir(); err != nil {
		return err
	}
	if err := p.Tool.Configure(ctx, p); err != nil {
		return err
	}
	if argv := p.Tool.ConfigureCommand(p); argv != nil {
		return p.env.Runner.WriteFile(stampPath(p.BuildDir), []byte(configureFingerprint(argv, p.CommandEnv)+"\n"))
	}
	return nil
}

func (p *Project) Compile(ctx context.Context) error {
	if p.Tool == nil {
		return nil
	}
	if err := p.ensureBuildDir(); err != nil {
		return err
	}
	start := time.Now()
	if err := p.Tool.Compile(ctx, p); err != nil {
		return err
	}
	if !p.env.Settings.Pretend {
		p.printer().Status(fmt.Sprintf("Running %s took %d seconds", p.Tool.Name(), int(time.Since(start).Seconds())))
	}
	return nil
}

func (p *Project) Install(ctx context.Context) error {
	if p.Tool == nil {
		return nil
	}
	if p.InstallDir != "" {
		if err := p.env.Runner.MkdirAll(p.InstallDir); err != nil {
			return err
		}
	}
	return p.Tool.Install(ctx, p)
}

func (p *Project) ensureBuildDir() error {
	if p.BuildDir == "" {
		return fmt.Errorf("%s: no build directory", p.name)
	}
	return p.env.Runner.MkdirAll(p.BuildDir)
}

// run executes argv in the build directory with a log named logName.
func (p *Project) run(ctx context.Context, logName string, appendLog bool, filter process.Filter, argv ...string) error {
	inv := process.NewInvocation(p.BuildDir, argv...).WithLog(logName, appendLog).WithEnv(p.CommandEnv)
	_, err := p.env.Runner.Run(ctx, inv, filter)
	return err
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
