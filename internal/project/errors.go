package project

import "fmt"

// MissingDependencyError reports a host tool a project needs but that is
// absent or older than required.
type MissingDependencyError struct {
	Project string
	Tool    string
	Found   string // version found, empty when the tool is missing
	Minimum string
	Hint    string
}

func (e *MissingDependencyError) Error() string {
	msg := fmt.Sprintf("%s: required program %s", e.Project, e.Tool)
	if e.Found != "" {
		msg += fmt.Sprintf(" is version %s but at least %s is needed", e.Found, e.Minimum)
	} else {
		msg += " is missing"
	}
	if e.Hint != "" {
		msg += ". " + e.Hint
	}
	return msg
}
