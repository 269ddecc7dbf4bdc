package project

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"

	"github.com/Masterminds/semver/v3"

	"cheribuild/internal/process"
)

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

// RequiredTool is a host program a project needs before it can build.
type RequiredTool struct {
	Name string
	// MinVersion is the oldest acceptable version, e.g. "3.13.4". Empty
	// skips the version query.
	MinVersion  string
	VersionArgs []string
	Hint        string
}

func (rt RequiredTool) hint() string {
	if rt.Hint != "" {
		return rt.Hint
	}
	return fmt.Sprintf("Try installing %s with your system package manager", rt.Name)
}

// Check looks the tool up on PATH and compares its version.
func (rt RequiredTool) Check(ctx context.Context, project string, r *process.Runner) error {
	path, err := exec.LookPath(rt.Name)
	if err != nil {
		return &MissingDependencyError{Project: project, Tool: rt.Name, Hint: rt.hint()}
	}
	if rt.MinVersion == "" {
		return nil
	}
	constraint, err := semver.NewConstraint(">= " + rt.MinVersion)
	if err != nil {
		return fmt.Errorf("invalid minimum version %q for %s: %w", rt.MinVersion, rt.Name, err)
	}
	args := rt.VersionArgs
	if len(args) == 0 {
		args = []string{"--version"}
	}
	out, err := r.Output(ctx, append([]string{path}, args...)...)
	if err != nil {
		return fmt.Errorf("querying %s version: %w", rt.Name, err)
	}
	found, err := ParseVersion(string(out))
	if err != nil {
		return fmt.Errorf("%s: %w", rt.Name, err)
	}
	if !constraint.Check(found) {
		return &MissingDependencyError{Project: project, Tool: rt.Name, Found: found.String(), Minimum: rt.MinVersion, Hint: rt.hint()}
	}
	return nil
}

// ParseVersion extracts the first dotted version number from a --version
// banner such as "cmake version 3.20.1".
func ParseVersion(banner string) (*semver.Version, error) {
	m := versionPattern.FindString(banner)
	if m == "" {
		return nil, fmt.Errorf("no version number in %q", banner)
	}
	return semver.NewVersion(m)
}
