package config

import "fmt"

// Kind is the semantic type of an option value.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindString
	KindPath
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindPath:
		return "path"
	case KindList:
		return "list"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Source records which layer produced a resolved value.
type Source int

const (
	SourceUnresolved Source = iota
	SourceDefault
	SourceFallback
	SourceJSON
	SourceCommandLine
)

func (s Source) String() string {
	switch s {
	case SourceDefault:
		return "default"
	case SourceFallback:
		return "fallback"
	case SourceJSON:
		return "json"
	case SourceCommandLine:
		return "command line"
	}
	return "unresolved"
}

// DefaultFunc computes a default from other (already resolvable) options.
type DefaultFunc func(s *Store) (any, error)

// Option declares one tunable value.
type Option struct {
	Key   string // globally unique, "<target>/<name>" for per-target options
	Kind  Kind
	Short string // single letter alias, e.g. "p" for --pretend
	Help  string

	Default        any
	ComputeDefault DefaultFunc
	// DefaultHelp describes a computed default in --help output.
	DefaultHelp string

	// Fallback names an option whose explicitly set value is inherited
	// when this option was set neither on the command line nor in JSON.
	Fallback string

	// CommandLineOnly options are never read from the JSON file and are
	// skipped by --dump-configuration.
	CommandLineOnly bool
	// Hidden options are only listed by --help-all.
	Hidden bool
}

// Handle refers to a registered option.
type Handle struct {
	opt *option
}

// Key returns the option key.
func (h *Handle) Key() string { return h.opt.Key }

// Kind returns the option's semantic type.
func (h *Handle) Kind() Kind { return h.opt.Kind }

type option struct {
	Option

	cliRaw string
	cliSet bool

	resolving bool
	resolved  bool
	value     any
	source    Source
}
