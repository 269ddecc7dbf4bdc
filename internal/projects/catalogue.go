// Package projects registers the buildable targets.
package projects

import (
	"errors"
	"fmt"
	"path/filepath"

	"cheribuild/internal/config"
	"cheribuild/internal/project"
	"cheribuild/internal/target"
	"cheribuild/internal/ui"
)

const githubBase = "https://github.com/CTSRD-CHERI/"

var errNoEnv = errors.New("project environment not initialised")

// Catalogue holds what the target factories need at build time. Env is
// filled in once the global settings have been resolved.
type Catalogue struct {
	Globals *config.Globals
	Env     *project.Env

	graph *target.Graph
}

// New returns a catalogue whose options hang off globals.
func New(globals *config.Globals) *Catalogue {
	return &Catalogue{Globals: globals}
}

// Register adds every known target to g.
func (c *Catalogue) Register(g *target.Graph) error {
	c.graph = g
	for _, d := range c.Descriptors() {
		if err := g.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// Descriptors lists the targets in registration order.
func (c *Catalogue) Descriptors() []target.Descriptor {
	var descs []target.Descriptor
	descs = append(descs, c.toolchain()...)
	descs = append(descs, c.cheribsd()...)
	return append(descs, c.sdk()...)
}

func (c *Catalogue) printer() *ui.Printer {
	if c.Env == nil || c.Env.Printer == nil {
		return ui.Default()
	}
	return c.Env.Printer
}

// options declares the standard per-target options plus whatever extra
// declares.
func (c *Catalogue) options(base string, d project.OptionDefaults, extra ...target.OptionsFunc) target.OptionsFunc {
	return func(sc *config.Scope, arch target.Arch) {
		project.DeclareOptions(sc, c.Globals, base, string(arch), d)
		for _, f := range extra {
			f(sc, arch)
		}
	}
}

// resolve reads the per-target options of t.
func (c *Catalogue) resolve(t *target.Target) (project.Options, error) {
	if c.Env == nil {
		return project.Options{}, errNoEnv
	}
	if t.Scope() == nil {
		return project.Options{}, fmt.Errorf("%s: options were never declared", t.Name)
	}
	return project.ResolveOptions(t.Scope())
}

func (c *Catalogue) newProject(t *target.Target, o project.Options, tool project.BuildTool) *project.Project {
	p := project.New(t.Name, c.Env, tool)
	p.Arch = string(t.Arch)
	o.Apply(p)
	return p
}

// installDir returns the resolved install directory of another target.
func installDir(s *config.Store, name string) (string, error) {
	return config.ValueOf[string](s, name+"/install-directory")
}

func llvmBin(s *config.Store) (string, error) {
	dir, err := installDir(s, "llvm-native")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "bin"), nil
}

// dependency returns the concrete dependency of t built from base.
func (c *Catalogue) dependency(t *target.Target, s *config.Store, base string) (*target.Target, error) {
	deps, err := c.graph.ResolveDependencies(t, s)
	if err != nil {
		return nil, err
	}
	for _, name := range deps {
		dep, ok := c.graph.Lookup(name)
		if ok && dep.Base == base {
			return dep, nil
		}
	}
	return nil, fmt.Errorf("%s does not depend on %s", t.Name, base)
}

// archInfo describes how to build for one architecture.
type archInfo struct {
	// bare-metal triple for newlib and compiler-rt
	triple string
	cflags string
	// FreeBSD TARGET and TARGET_ARCH
	machine, machineArch string
	kernel               string
	qemu                 string
	qemuMachine          []string
}

var archs = map[target.Arch]archInfo{
	target.RISCV64Purecap: {
		triple: "riscv64-unknown-elf", cflags: "-march=rv64imafdcxcheri -mabi=l64pc128d",
		machine: "riscv", machineArch: "riscv64c", kernel: "CHERI-QEMU",
		qemu: "qemu-system-riscv64cheri", qemuMachine: []string{"-M", "virt", "-bios", "default"},
	},
	target.RISCV64: {
		triple: "riscv64-unknown-elf", cflags: "-march=rv64imafdc -mabi=lp64d",
		machine: "riscv", machineArch: "riscv64", kernel: "QEMU",
		qemu: "qemu-system-riscv64cheri", qemuMachine: []string{"-M", "virt", "-bios", "default"},
	},
	target.MorelloPurecap: {
		triple: "aarch64-unknown-elf", cflags: "-march=morello+c64 -mabi=purecap",
		machine: "arm64", machineArch: "aarch64c", kernel: "GENERIC-MORELLO",
		qemu: "qemu-system-morello", qemuMachine: []string{"-M", "virt,gic-version=3", "-cpu", "morello"},
	},
	target.AArch64: {
		triple: "aarch64-unknown-elf", cflags: "-march=armv8-a",
		machine: "arm64", machineArch: "aarch64", kernel: "GENERIC",
		qemu: "qemu-system-aarch64", qemuMachine: []string{"-M", "virt,gic-version=3", "-cpu", "max"},
	},
}

func infoFor(a target.Arch) (archInfo, error) {
	info, ok := archs[a]
	if !ok {
		return archInfo{}, fmt.Errorf("no build settings for architecture %q", a)
	}
	return info, nil
}
