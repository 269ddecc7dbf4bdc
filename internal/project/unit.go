// Package project implements the buildable units driven by the orchestrator:
// a single Project type whose configure, compile and install steps are
// delegated to a BuildTool strategy (CMake, Autotools, Make, Ninja or a
// custom script).
package project

import "context"

// Unit is the lifecycle of one buildable target. Every step must be safe
// to repeat: a cancelled run restarts from the first step.
type Unit interface {
	Name() string
	// Update synchronises the sources. It must be a no-op on a current checkout.
	Update(ctx context.Context) error
	// CheckSystemDependencies returns a *MissingDependencyError when a
	// required host tool is absent or too old.
	CheckSystemDependencies(ctx context.Context) error
	// Clean removes build state so the next configure starts fresh.
	Clean(ctx context.Context) error
	// NeedsConfigure reports whether the build directory lacks configure state.
	NeedsConfigure() bool
	Configure(ctx context.Context) error
	Compile(ctx context.Context) error
	Install(ctx context.Context) error
}
