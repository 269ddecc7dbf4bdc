// Package cheribuild is the command line front end.
package cheribuild

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gookit/color"

	"cheribuild/internal/build"
	"cheribuild/internal/config"
	"cheribuild/internal/process"
	"cheribuild/internal/project"
	"cheribuild/internal/projects"
	"cheribuild/internal/target"
	"cheribuild/internal/ui"
)

var errInterrupted = errors.New("interrupted")

// App is one invocation: the option store, the target graph and the
// catalogue that populates it.
type App struct {
	Store     *config.Store
	Globals   *config.Globals
	Graph     *target.Graph
	Catalogue *projects.Catalogue

	Out io.Writer
	Err io.Writer
}

// NewApp registers the global options and every target.
func NewApp(out, errOut io.Writer) (*App, error) {
	s := config.NewStore()
	s.Warn = ui.Warning
	s.Debugf = ui.Debugf
	globals := config.RegisterGlobals(s)
	g := target.NewGraph()
	cat := projects.New(globals)
	if err := cat.Register(g); err != nil {
		return nil, err
	}
	if err := g.DeclareOptions(s); err != nil {
		return nil, err
	}
	return &App{Store: s, Globals: globals, Graph: g, Catalogue: cat, Out: out, Err: errOut}, nil
}

// Run parses argv, then either performs one of the query actions or builds
// the requested targets.
func (a *App) Run(ctx context.Context, argv []string, jsonPath string) error {
	targets, err := a.Store.Load(argv, jsonPath)
	if errors.Is(err, config.ErrHelp) {
		a.Store.PrintUsage(a.Out, hasArg(argv, "--help-all"))
		return nil
	}
	if err != nil {
		return err
	}
	settings, err := a.Globals.Resolve(a.Store)
	if err != nil {
		return err
	}
	ui.SetVerbosity(settings.Verbose, settings.Quiet)
	if path := a.Store.LoadedConfigPath(); path != "" {
		ui.Debugf("Configuration file: %s\n", path)
	}

	switch {
	case settings.ListTargets:
		return a.listTargets()
	case settings.DumpConfiguration:
		return a.dumpConfiguration()
	case settings.GetConfigOption != "":
		return a.getConfigOption(settings.GetConfigOption)
	}

	if len(targets) == 0 {
		ui.Info("No targets given, building all")
		targets = []string{"all"}
	}
	printer := ui.Default()
	runner := process.NewRunner(settings, printer)
	a.Catalogue.Env = &project.Env{Settings: settings, Runner: runner, Printer: printer}

	o := build.New(a.Graph, a.Store, settings, runner, printer)
	done, err := o.Run(ctx, targets)
	if err != nil {
		return err
	}
	printer.Status("Completed build of", strings.Join(done, " "))
	return nil
}

func hasArg(argv []string, arg string) bool {
	for _, a := range argv {
		if a == "--" {
			return false
		}
		if a == arg {
			return true
		}
	}
	return false
}

func (a *App) listTargets() error {
	var lines []string
	for _, name := range a.Graph.Names() {
		line := color.Bold.Sprint(name)
		if t, ok := a.Graph.Lookup(name); ok {
			if alias, isAlias := a.Graph.Alias(name); isAlias {
				line += color.Cyan.Sprint(" -> " + alias.Default)
			} else if help := t.Descriptor().Help; help != "" {
				line += "  " + help
			}
		}
		lines = append(lines, line)
	}
	return ui.RunPager("Available targets", lines)
}

func (a *App) dumpConfiguration() error {
	values, err := a.Store.Dump()
	if err != nil {
		return err
	}
	// encoding/json sorts map keys
	data, err := json.MarshalIndent(values, "", "    ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.Out, string(data))
	return err
}

func (a *App) getConfigOption(key string) error {
	h, ok := a.Store.Lookup(key)
	if !ok {
		return &config.UnknownOptionError{Key: key}
	}
	v, err := a.Store.Resolve(h)
	if err != nil {
		return err
	}
	switch v := v.(type) {
	case string:
		_, err = fmt.Fprintln(a.Out, v)
	case []string:
		_, err = fmt.Fprintln(a.Out, strings.Join(v, " "))
	default:
		_, err = fmt.Fprintln(a.Out, v)
	}
	return err
}

// Main is the CLI entrypoint.
func Main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupted := make(chan struct{})
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigs:
			close(interrupted)
			// the runner kills the running command's process group
			cancel()
			<-sigs
			ui.Fatal("Second interrupt received, exiting immediately")
			os.Exit(130)
		case <-ctx.Done():
		}
	}()

	app, err := NewApp(os.Stdout, os.Stderr)
	if err == nil {
		err = app.Run(ctx, os.Args[1:], config.DefaultConfigPath())
	}
	select {
	case <-interrupted:
		err = errInterrupted
	default:
	}
	if errors.Is(err, errInterrupted) {
		ui.SetTerminalTitle("")
		ui.Fatal("Exiting due to interrupt")
		os.Exit(130)
	}
	if err != nil {
		ui.Fatal(err)
		os.Exit(1)
	}
}
