package project

import (
	"path/filepath"

	"cheribuild/internal/config"
)

// OptionDefaults describes the per-target options of one project.
type OptionDefaults struct {
	Repository string
	Revision   string
	// SourceSubdir is the checkout directory below --source-root, default
	// the target's base name.
	SourceSubdir string
	// InstallDir computes the default install directory from the output
	// root and the architecture ("" for single-architecture targets).
	InstallDir func(outputRoot, arch string) string
	// BuildInSource builds inside the source directory.
	BuildInSource bool

	CMake     bool
	BuildType string
	Autotools bool
}

// Options are the resolved per-target options.
type Options struct {
	SourceDir        string
	BuildDir         string
	InstallDir       string
	Repository       string
	Revision         string
	BuildType        string
	CMakeOptions     []string
	ConfigureOptions []string
}

// DeclareOptions registers the standard per-target options in sc. base is
// the descriptor name shared by all architecture variants.
func DeclareOptions(sc *config.Scope, g *config.Globals, base, arch string, d OptionDefaults) {
	subdir := d.SourceSubdir
	if subdir == "" {
		subdir = base
	}
	sourceDefault := config.DefaultFunc(func(s *config.Store) (any, error) {
		root, err := config.Value[string](s, g.SourceRoot)
		if err != nil {
			return nil, err
		}
		return filepath.Join(root, subdir), nil
	})
	sc.Add(config.Option{Key: "source-directory", Kind: config.KindPath, ComputeDefault: sourceDefault,
		Help: "Override the default source directory for " + sc.Target()})

	buildDefault := config.DefaultFunc(func(s *config.Store) (any, error) {
		if d.BuildInSource {
			return sourceDefault(s)
		}
		root, err := config.Value[string](s, g.BuildRoot)
		if err != nil {
			return nil, err
		}
		return filepath.Join(root, sc.Target()+"-build"), nil
	})
	sc.Add(config.Option{Key: "build-directory", Kind: config.KindPath, ComputeDefault: buildDefault,
		Help: "Override the default build directory for " + sc.Target()})

	sc.Add(config.Option{Key: "install-directory", Kind: config.KindPath,
		Help: "Override the default install directory for " + sc.Target(),
		ComputeDefault: func(s *config.Store) (any, error) {
			root, err := config.Value[string](s, g.OutputRoot)
			if err != nil {
				return nil, err
			}
			if d.InstallDir != nil {
				return d.InstallDir(root, arch), nil
			}
			return filepath.Join(root, "sdk"), nil
		}})

	sc.AddString("repository", d.Repository, "The git repository URL for "+sc.Target())
	sc.AddString("git-revision", d.Revision, "The git branch or commit to check out")

	if d.CMake {
		buildType := d.BuildType
		if buildType == "" {
			buildType = "Release"
		}
		sc.AddString("build-type", buildType, "CMAKE_BUILD_TYPE for "+sc.Target())
		sc.AddList("cmake-options", nil, "Additional command line options to pass to CMake")
	}
	if d.Autotools {
		sc.AddList("configure-options", nil, "Additional command line options to pass to configure")
	}
}

// ResolveOptions reads the options declared by DeclareOptions.
func ResolveOptions(sc *config.Scope) (Options, error) {
	var o Options
	s := sc.Store()
	type field struct {
		name string
		str  *string
		list *[]string
	}
	fields := []field{
		{name: "source-directory", str: &o.SourceDir},
		{name: "build-directory", str: &o.BuildDir},
		{name: "install-directory", str: &o.InstallDir},
		{name: "repository", str: &o.Repository},
		{name: "git-revision", str: &o.Revision},
		{name: "build-type", str: &o.BuildType},
		{name: "cmake-options", list: &o.CMakeOptions},
		{name: "configure-options", list: &o.ConfigureOptions},
	}
	for _, f := range fields {
		h, ok := sc.Get(f.name)
		if !ok {
			continue
		}
		var err error
		if f.str != nil {
			*f.str, err = config.Value[string](s, h)
		} else {
			*f.list, err = config.Value[[]string](s, h)
		}
		if err != nil {
			return Options{}, err
		}
	}
	return o, nil
}

// Apply sets the directories and git source of p from o.
func (o Options) Apply(p *Project) {
	p.SourceDir = o.SourceDir
	p.BuildDir = o.BuildDir
	p.InstallDir = o.InstallDir
	if o.Repository != "" {
		p.Source = &GitSource{URL: o.Repository, Revision: o.Revision, Dir: o.SourceDir}
	}
}
