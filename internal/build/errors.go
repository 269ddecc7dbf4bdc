package build

import (
	"errors"
	"fmt"

	"cheribuild/internal/process"
)

// Step is one stage of a unit's lifecycle.
type Step int

const (
	// StepSetup covers creating the unit and locking its build directory.
	StepSetup Step = iota
	StepUpdate
	StepCheckDependencies
	StepClean
	StepConfigure
	StepCompile
	StepInstall
)

func (s Step) String() string {
	switch s {
	case StepSetup:
		return "setup"
	case StepUpdate:
		return "update"
	case StepCheckDependencies:
		return "dependency check"
	case StepClean:
		return "clean"
	case StepConfigure:
		return "configure"
	case StepCompile:
		return "compile"
	case StepInstall:
		return "install"
	}
	return "unknown step"
}

// RunError is returned when a target fails. Completed lists the targets that
// finished before the failure, in order.
type RunError struct {
	Target    string
	Step      Step
	Err       error
	Completed []string
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s failed during %s: %v", e.Target, e.Step, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// isCommandFailure reports whether err came from an external command.
func isCommandFailure(err error) bool {
	var failed *process.CommandFailedError
	var timedOut *process.CommandTimedOutError
	return errors.As(err, &failed) || errors.As(err, &timedOut)
}
