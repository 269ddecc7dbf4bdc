// Package target holds the registry of named build targets, expands
// multi-architecture targets into concrete per-architecture variants and
// computes execution plans.
package target

import (
	"cheribuild/internal/config"
	"cheribuild/internal/project"
)

// Arch names a build architecture. Concrete variants of a multi-arch target
// are named "<base>-<arch>".
type Arch string

const (
	Native         Arch = "native"
	RISCV64        Arch = "riscv64"
	RISCV64Purecap Arch = "riscv64-purecap"
	AArch64        Arch = "aarch64"
	MorelloPurecap Arch = "morello-purecap"
	MIPS64         Arch = "mips64"
	MIPS64Purecap  Arch = "mips64-purecap"
	X86_64         Arch = "amd64"
)

// IsNative reports whether a is the build host.
func (a Arch) IsNative() bool { return a == Native }

// Factory creates the unit for t. It runs after the configuration was
// loaded, so options may be resolved.
type Factory func(t *Target, s *config.Store) (project.Unit, error)

// DependencyFunc computes dependencies from the resolved configuration.
type DependencyFunc func(t *Target, s *config.Store) ([]string, error)

// OptionsFunc declares per-target options in sc. arch is empty for the
// option scope shared by all variants of a multi-arch target.
type OptionsFunc func(sc *config.Scope, arch Arch)

// Descriptor is registered once per logical target.
type Descriptor struct {
	Name string
	Help string

	// Architectures, when set, expand the descriptor into one target per
	// architecture plus an alias named Name.
	Architectures []Arch
	// DefaultArch selects the alias's default variant. Defaults to the
	// first architecture.
	DefaultArch Arch

	Dependencies     []string
	DependenciesFunc DependencyFunc

	// AlwaysBuildDependencies marks pseudo targets such as "all" whose
	// dependencies are built even without --include-dependencies.
	AlwaysBuildDependencies bool

	Factory Factory
	Options OptionsFunc
}

// Target is a concrete buildable target.
type Target struct {
	Name string
	// Base is the descriptor name; equal to Name for single-arch targets.
	Base string
	// Arch is empty for targets without architecture variants.
	Arch Arch

	desc  *Descriptor
	scope *config.Scope
}

// Descriptor returns the descriptor t was expanded from.
func (t *Target) Descriptor() *Descriptor { return t.desc }

// Scope returns the option scope of t. It is nil until DeclareOptions ran.
func (t *Target) Scope() *config.Scope { return t.scope }

// IsPseudo reports whether t exists only to pull in its dependencies.
func (t *Target) IsPseudo() bool { return t.desc.AlwaysBuildDependencies }

// NewUnit runs the factory. Pseudo targets without a factory return nil.
func (t *Target) NewUnit(s *config.Store) (project.Unit, error) {
	if t.desc.Factory == nil {
		return nil, nil
	}
	return t.desc.Factory(t, s)
}

func (t *Target) String() string { return t.Name }

// Alias stands for the variants of a multi-arch target. It never builds
// anything itself.
type Alias struct {
	Name     string
	Default  string
	Variants map[Arch]string
}
