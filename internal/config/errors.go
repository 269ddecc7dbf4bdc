package config

import (
	"errors"
	"fmt"
)

// ErrFrozen is returned when options are declared after the store was
// loaded, or when Load is called after a value was already resolved.
var ErrFrozen = errors.New("config: store is frozen")

// ErrHelp is returned by Load when -h/--help/--help-all was requested.
var ErrHelp = errors.New("config: help requested")

// DuplicateOptionError reports a second registration of the same key.
type DuplicateOptionError struct {
	Key string
}

func (e *DuplicateOptionError) Error() string {
	return fmt.Sprintf("config option %q registered twice", e.Key)
}

// UnknownOptionError reports a lookup of an unregistered key.
type UnknownOptionError struct {
	Key string
}

func (e *UnknownOptionError) Error() string {
	return fmt.Sprintf("unknown config option %q", e.Key)
}

// ConfigFileWarning describes a config file that could not be used. It is
// never fatal: loading continues with command line values and defaults.
type ConfigFileWarning struct {
	Path string
	Err  error
}

func (w *ConfigFileWarning) Error() string {
	return fmt.Sprintf("could not load config file %s: %v", w.Path, w.Err)
}

func (w *ConfigFileWarning) Unwrap() error { return w.Err }

// InvalidValueError reports a value that cannot be converted to the option's kind.
type InvalidValueError struct {
	Key    string
	Kind   Kind
	Value  any
	Source Source
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid %s value %v for %s (from %s)", e.Kind, e.Value, e.Key, e.Source)
}
