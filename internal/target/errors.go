package target

import (
	"fmt"
	"strings"
)

// DuplicateTargetError reports a name registered twice. Architecture
// variants and aliases share the namespace with plain targets.
type DuplicateTargetError struct {
	Name string
}

func (e *DuplicateTargetError) Error() string {
	return fmt.Sprintf("target %q registered twice", e.Name)
}

// UnknownTargetError reports a name that is neither a target nor an alias.
// RequestedBy is set when the name came from a dependency list.
type UnknownTargetError struct {
	Name        string
	RequestedBy string
	Available   []string
}

func (e *UnknownTargetError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "target %q does not exist", e.Name)
	if e.RequestedBy != "" {
		fmt.Fprintf(&b, " (dependency of %s)", e.RequestedBy)
	}
	if len(e.Available) > 0 {
		fmt.Fprintf(&b, ". Available targets: %s", strings.Join(e.Available, ", "))
	}
	return b.String()
}

// CyclicDependencyError is returned when the requested targets can't be
// ordered. Remaining lists every target that could not be placed and Cycle
// the ones that lie on a dependency cycle.
type CyclicDependencyError struct {
	Remaining []string
	Cycle     []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic dependency between targets %s (unresolved: %s)",
		strings.Join(e.Cycle, ", "), strings.Join(e.Remaining, ", "))
}
