// Package build runs execution plans. All units of a plan are created and
// have their host tools checked first; then each goes through update,
// clean, configure, compile and install, strictly one target after the
// other.
package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"cheribuild/internal/config"
	"cheribuild/internal/process"
	"cheribuild/internal/project"
	"cheribuild/internal/target"
	"cheribuild/internal/ui"
)

// UnitState is how far a unit got in this run.
type UnitState int

const (
	Created UnitState = iota
	Updated
	Configured
	Compiled
	Installed
)

func (s UnitState) String() string {
	return [...]string{"created", "updated", "configured", "compiled", "installed"}[s]
}

// buildDirUnit is implemented by units with a build directory to lock.
type buildDirUnit interface {
	BuildDirectory() string
}

// Orchestrator executes plans. The completed set lives as long as the
// Orchestrator, so a target shared by several requests runs once.
type Orchestrator struct {
	Graph    *target.Graph
	Store    *config.Store
	Settings config.Settings
	Runner   *process.Runner
	Printer  *ui.Printer

	// ShowProgress draws a progress bar over the plan (quiet runs on a terminal).
	ShowProgress bool

	completed map[string]bool
	states    map[string]UnitState
	trace     []string
}

// New returns an orchestrator for one process run.
func New(g *target.Graph, s *config.Store, settings config.Settings, r *process.Runner, p *ui.Printer) *Orchestrator {
	if p == nil {
		p = ui.Default()
	}
	return &Orchestrator{
		Graph:        g,
		Store:        s,
		Settings:     settings,
		Runner:       r,
		Printer:      p,
		ShowProgress: settings.Quiet && !settings.Pretend && ui.IsTerminal(os.Stderr),
		completed:    make(map[string]bool),
		states:       make(map[string]UnitState),
	}
}

// Plan resolves the requested names honouring --include-dependencies.
func (o *Orchestrator) Plan(requested []string) (target.Plan, error) {
	return o.Graph.Plan(requested, o.Settings.IncludeDependencies, o.Store)
}

// Run plans and executes requested. It returns the targets completed in
// this call even when it fails.
func (o *Orchestrator) Run(ctx context.Context, requested []string) ([]string, error) {
	plan, err := o.Plan(requested)
	if err != nil {
		return nil, err
	}
	return o.Execute(ctx, plan)
}

// Execute runs plan in order and stops at the first fatal error. Every unit
// is created and has its host tools checked before the first one runs, so
// configuration mistakes surface before any command was spawned.
func (o *Orchestrator) Execute(ctx context.Context, plan target.Plan) ([]string, error) {
	start := len(o.trace)
	names := plan.Names()
	o.Printer.Status(fmt.Sprintf("Will execute the following %d targets: %v", len(names), names))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	units, err := o.prepare(ctx, plan)
	if err != nil {
		return nil, err
	}

	var bar *progressbar.ProgressBar
	if o.ShowProgress {
		bar = progressbar.NewOptions(len(plan),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("building"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
	}

	for i, t := range plan {
		if err := ctx.Err(); err != nil {
			return o.trace[start:], err
		}
		ui.SetTerminalTitle(fmt.Sprintf("cheribuild: %s (%d/%d)", t.Name, i+1, len(plan)))
		if bar != nil {
			bar.Describe(t.Name)
		}
		if err := o.runTarget(ctx, t, units[t.Name]); err != nil {
			done := append([]string(nil), o.trace[start:]...)
			var re *RunError
			if errors.As(err, &re) {
				re.Completed = done
			}
			return done, err
		}
		if bar != nil {
			bar.Add(1)
		}
	}
	return append([]string(nil), o.trace[start:]...), nil
}

// prepare creates the unit of every target that has not run yet, then
// checks the host tools of all of them.
func (o *Orchestrator) prepare(ctx context.Context, plan target.Plan) (map[string]project.Unit, error) {
	units := make(map[string]project.Unit, len(plan))
	for _, t := range plan {
		if o.completed[t.Name] {
			continue
		}
		unit, err := t.NewUnit(o.Store)
		if err != nil {
			return nil, &RunError{Target: t.Name, Step: StepSetup, Err: err}
		}
		units[t.Name] = unit
	}
	for _, t := range plan {
		unit := units[t.Name]
		if unit == nil {
			continue
		}
		if err := o.check(t.Name, StepCheckDependencies, unit.CheckSystemDependencies(ctx)); err != nil {
			return nil, err
		}
	}
	return units, nil
}

// State returns how far name got in this run.
func (o *Orchestrator) State(name string) UnitState { return o.states[name] }

func (o *Orchestrator) runTarget(ctx context.Context, t *target.Target, unit project.Unit) error {
	if o.completed[t.Name] {
		o.Printer.Warning(fmt.Sprintf("Already built %s, skipping", t.Name))
		return nil
	}
	if unit == nil {
		o.finish(t.Name)
		return nil
	}

	if bd, ok := unit.(buildDirUnit); ok && !o.Settings.Pretend && bd.BuildDirectory() != "" {
		lock, err := lockBuildDir(bd.BuildDirectory())
		if err != nil {
			return &RunError{Target: t.Name, Step: StepSetup, Err: err}
		}
		defer lock.unlock()
	}

	started := time.Now()
	o.states[t.Name] = Created
	if err := o.lifecycle(ctx, t.Name, unit); err != nil {
		return err
	}
	if o.Runner != nil {
		if err := o.Runner.FinishLogs(); err != nil {
			o.Printer.Warning("could not compress logs:", err)
		}
	}
	o.finish(t.Name)
	if !o.Settings.Pretend {
		o.Printer.Status(fmt.Sprintf("Built target '%s' in %d seconds", t.Name, int(time.Since(started).Seconds())))
	}
	return nil
}

func (o *Orchestrator) finish(name string) {
	o.completed[name] = true
	o.trace = append(o.trace, name)
}

func (o *Orchestrator) lifecycle(ctx context.Context, name string, unit project.Unit) error {
	s := o.Settings
	step := func(st Step, fn func(context.Context) error) error {
		return o.check(name, st, fn(ctx))
	}

	if !s.SkipUpdate {
		o.Printer.Status("Updating", name)
		if err := step(StepUpdate, unit.Update); err != nil {
			return err
		}
	}
	o.states[name] = Updated

	if s.Clean {
		o.Printer.Status("Cleaning", name)
		if err := step(StepClean, unit.Clean); err != nil {
			return err
		}
	}

	if !s.SkipConfigure && (s.Reconfigure || unit.NeedsConfigure()) {
		o.Printer.Status("Configuring", name)
		if err := step(StepConfigure, unit.Configure); err != nil {
			return err
		}
	}
	o.states[name] = Configured
	if s.ConfigureOnly {
		return nil
	}

	o.Printer.Status("Building", name)
	if err := step(StepCompile, unit.Compile); err != nil {
		return err
	}
	o.states[name] = Compiled

	if !s.SkipInstall {
		o.Printer.Status("Installing", name)
		if err := step(StepInstall, unit.Install); err != nil {
			return err
		}
		o.states[name] = Installed
	}
	return nil
}

// check wraps a failed step. In pretend mode a failing command only warns.
func (o *Orchestrator) check(name string, st Step, err error) error {
	if err == nil {
		return nil
	}
	if o.Settings.Pretend && isCommandFailure(err) {
		o.Printer.Warning(fmt.Sprintf("%s %s failed in pretend mode: %v", name, st, err))
		return nil
	}
	return &RunError{Target: name, Step: st, Err: err}
}
