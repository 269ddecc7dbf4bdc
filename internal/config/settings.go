package config

import (
	"path/filepath"
	"runtime"
	"time"
)

// Settings are the resolved global options.
type Settings struct {
	Pretend             bool
	Quiet               bool
	Verbose             bool
	Clean               bool
	Force               bool
	SkipUpdate          bool
	SkipConfigure       bool
	Reconfigure         bool
	ConfigureOnly       bool
	SkipInstall         bool
	IncludeDependencies bool
	ListTargets         bool
	DumpConfiguration   bool
	GetConfigOption     string
	NoLogfile           bool
	CompressLogs        bool
	MakeJobs            int
	MakeWithoutNice     bool
	PassKToMake         bool
	SourceRoot          string
	OutputRoot          string
	BuildRoot           string
	CommandTimeout      time.Duration
	ConfigFile          string
}

// Globals holds the handles of the global options.
type Globals struct {
	Pretend, Quiet, Verbose, Clean, Force                     *Handle
	SkipUpdate, SkipConfigure, Reconfigure, ConfigureOnly     *Handle
	SkipInstall, IncludeDependencies, ListTargets, DumpConfig *Handle
	GetConfigOption, NoLogfile, CompressLogs, MakeJobs        *Handle
	MakeWithoutNice, PassKToMake, SourceRoot, OutputRoot      *Handle
	BuildRoot, CommandTimeout, ConfigFile                     *Handle
}

// DefaultMakeJobs is the CPU count, capped at 16 on machines with more
// than 24 CPUs.
func DefaultMakeJobs(cpus int) int {
	if cpus > 24 {
		return 16
	}
	if cpus < 1 {
		return 1
	}
	return cpus
}

// RegisterGlobals declares the options every run understands.
func RegisterGlobals(s *Store) *Globals {
	g := &Globals{}
	g.Pretend = s.AddBool("pretend", "p", "Only print the commands instead of running them")
	g.Quiet = s.AddBool("quiet", "q", "Don't show stdout of the commands that are executed")
	g.Verbose = s.AddBool("verbose", "v", "Print all commands that are executed and their unfiltered output")
	g.Clean = s.AddBool("clean", "c", "Remove the build directory before building")
	g.Force = s.AddBool("force", "f", "Don't prompt for user input but use the default action")
	g.SkipUpdate = s.AddBool("skip-update", "", "Skip the git pull step")
	g.SkipConfigure = s.AddBool("skip-configure", "", "Skip the configure step")
	g.Reconfigure = s.AddBool("reconfigure", "", "Always run the configure step, even if it is not needed")
	g.ConfigureOnly = s.AddBool("configure-only", "", "Only run the configure step (skip build and install)")
	g.SkipInstall = s.AddBool("skip-install", "", "Skip the install step (only do the build)")
	g.IncludeDependencies = s.AddBool("include-dependencies", "d", "Also build the dependencies of the requested targets")
	g.ListTargets = s.AddOption(Option{Key: "list-targets", Kind: KindBool, Default: false, CommandLineOnly: true,
		Help: "List all available targets and exit"})
	g.DumpConfig = s.AddOption(Option{Key: "dump-configuration", Kind: KindBool, Default: false, CommandLineOnly: true,
		Help: "Print the current configuration as JSON"})
	g.GetConfigOption = s.AddOption(Option{Key: "get-config-option", Kind: KindString, Default: "", CommandLineOnly: true,
		Help: "Print the value of the given option and exit"})
	g.NoLogfile = s.AddBool("no-logfile", "", "Don't write a log file for the executed commands")
	g.CompressLogs = s.AddBool("compress-logs", "", "Compress finished log files with xz")
	g.MakeJobs = s.AddOption(Option{Key: "make-jobs", Short: "j", Kind: KindInt,
		Help:        "Number of jobs to use for compiling",
		DefaultHelp: "number of CPUs, at most 16 above 24 CPUs",
		ComputeDefault: func(*Store) (any, error) {
			return DefaultMakeJobs(runtime.NumCPU()), nil
		}})
	g.MakeWithoutNice = s.AddBool("make-without-nice", "", "Run make/ninja without nice(1)")
	g.PassKToMake = s.AddBool("pass-k-to-make", "", "Pass -k to make/ninja to continue after errors")
	g.SourceRoot = s.AddOption(Option{Key: "source-root", Kind: KindPath,
		Help:        "The directory to store all sources",
		DefaultHelp: "~/cheri",
		ComputeDefault: func(*Store) (any, error) {
			return "~/cheri", nil
		}})
	g.OutputRoot = s.AddOption(Option{Key: "output-root", Kind: KindPath,
		Help:           "The directory to install all outputs to",
		DefaultHelp:    "<SOURCE_ROOT>/output",
		ComputeDefault: underRoot(g, "output"),
	})
	g.BuildRoot = s.AddOption(Option{Key: "build-root", Kind: KindPath,
		Help:           "The directory for all the builds",
		DefaultHelp:    "<SOURCE_ROOT>/build",
		ComputeDefault: underRoot(g, "build"),
	})
	g.CommandTimeout = s.AddOption(Option{Key: "command-timeout", Kind: KindInt, Default: 0, Hidden: true,
		Help: "Kill commands that run longer than this many seconds (0 disables the timeout)"})
	g.ConfigFile = s.AddOption(Option{Key: ConfigFileKey, Kind: KindPath, CommandLineOnly: true,
		Help:        "The config file that is used to load the default settings",
		DefaultHelp: DefaultConfigPath(),
		ComputeDefault: func(st *Store) (any, error) {
			if st.jsonPath != "" {
				return st.jsonPath, nil
			}
			return DefaultConfigPath(), nil
		}})
	return g
}

func underRoot(g *Globals, dir string) DefaultFunc {
	return func(s *Store) (any, error) {
		root, err := Value[string](s, g.SourceRoot)
		if err != nil {
			return nil, err
		}
		return filepath.Join(root, dir), nil
	}
}

// Resolve reads every global option.
func (g *Globals) Resolve(s *Store) (Settings, error) {
	var out Settings
	var firstErr error
	boolean := func(h *Handle, dst *bool) {
		v, err := Value[bool](s, h)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		*dst = v
	}
	str := func(h *Handle, dst *string) {
		v, err := Value[string](s, h)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		*dst = v
	}
	integer := func(h *Handle) int {
		v, err := Value[int](s, h)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return v
	}
	boolean(g.Pretend, &out.Pretend)
	boolean(g.Quiet, &out.Quiet)
	boolean(g.Verbose, &out.Verbose)
	boolean(g.Clean, &out.Clean)
	boolean(g.Force, &out.Force)
	boolean(g.SkipUpdate, &out.SkipUpdate)
	boolean(g.SkipConfigure, &out.SkipConfigure)
	boolean(g.Reconfigure, &out.Reconfigure)
	boolean(g.ConfigureOnly, &out.ConfigureOnly)
	boolean(g.SkipInstall, &out.SkipInstall)
	boolean(g.IncludeDependencies, &out.IncludeDependencies)
	boolean(g.ListTargets, &out.ListTargets)
	boolean(g.DumpConfig, &out.DumpConfiguration)
	str(g.GetConfigOption, &out.GetConfigOption)
	boolean(g.NoLogfile, &out.NoLogfile)
	boolean(g.CompressLogs, &out.CompressLogs)
	out.MakeJobs = integer(g.MakeJobs)
	boolean(g.MakeWithoutNice, &out.MakeWithoutNice)
	boolean(g.PassKToMake, &out.PassKToMake)
	str(g.SourceRoot, &out.SourceRoot)
	str(g.OutputRoot, &out.OutputRoot)
	str(g.BuildRoot, &out.BuildRoot)
	out.CommandTimeout = time.Duration(integer(g.CommandTimeout)) * time.Second
	str(g.ConfigFile, &out.ConfigFile)
	if firstErr != nil {
		return Settings{}, firstErr
	}
	if out.DumpConfiguration || out.GetConfigOption != "" {
		out.Pretend = true
		out.Quiet = true
	}
	if out.Verbose {
		out.Quiet = false
	}
	if out.MakeJobs < 1 {
		out.MakeJobs = 1
	}
	return out, nil
}
