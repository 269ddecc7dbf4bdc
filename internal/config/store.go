// Package config holds every tunable value of a build run. Options are
// declared up front, the command line and JSON file are loaded once, and each
// option is then resolved lazily through the precedence chain
// command line > JSON > fallback option > default. A resolved value is
// memoized and never changes afterwards.
package config

import (
	"fmt"
	"sort"

	"cheribuild/internal/ui"
)

// Store is the option registry and resolver. It is not safe for concurrent
// use; only the control goroutine touches it.
type Store struct {
	options map[string]*option
	order   []string
	short   map[string]*option

	loaded   bool
	frozen   bool
	json     map[string]any
	jsonPath string
	err      error

	// Warn reports non-fatal problems such as an unreadable config file.
	Warn func(a ...any)
	// Debugf reports where values came from in verbose runs.
	Debugf func(format string, args ...any)
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		options: make(map[string]*option),
		short:   make(map[string]*option),
		json:    make(map[string]any),
		Warn:    ui.Warning,
		Debugf:  ui.Debugf,
	}
}

// Register declares an option.
func (s *Store) Register(opt Option) (*Handle, error) {
	if s.loaded || s.frozen {
		return nil, fmt.Errorf("%w: %s", ErrFrozen, opt.Key)
	}
	if opt.Key == "" {
		return nil, fmt.Errorf("config: empty option key")
	}
	if _, exists := s.options[opt.Key]; exists {
		return nil, &DuplicateOptionError{Key: opt.Key}
	}
	if opt.Short != "" {
		if _, exists := s.short[opt.Short]; exists {
			return nil, &DuplicateOptionError{Key: "-" + opt.Short}
		}
	}
	o := &option{Option: opt}
	s.options[opt.Key] = o
	s.order = append(s.order, opt.Key)
	if opt.Short != "" {
		s.short[opt.Short] = o
	}
	return &Handle{opt: o}, nil
}

// add registers opt and remembers the first failure; see Err.
func (s *Store) add(opt Option) *Handle {
	h, err := s.Register(opt)
	if err != nil {
		if s.err == nil {
			s.err = err
		}
		// keep callers usable; the error surfaces from Err/Load
		return &Handle{opt: &option{Option: opt}}
	}
	return h
}

// Err returns the first error recorded by the Add* helpers.
func (s *Store) Err() error { return s.err }

func (s *Store) AddBool(key, short, help string) *Handle {
	return s.add(Option{Key: key, Kind: KindBool, Short: short, Help: help, Default: false})
}

func (s *Store) AddInt(key, short string, def any, help string) *Handle {
	return s.add(withDefault(Option{Key: key, Kind: KindInt, Short: short, Help: help}, def))
}

func (s *Store) AddString(key string, def any, help string) *Handle {
	return s.add(withDefault(Option{Key: key, Kind: KindString, Help: help}, def))
}

func (s *Store) AddPath(key string, def any, help string) *Handle {
	return s.add(withDefault(Option{Key: key, Kind: KindPath, Help: help}, def))
}

func (s *Store) AddList(key string, def any, help string) *Handle {
	return s.add(withDefault(Option{Key: key, Kind: KindList, Help: help}, def))
}

// AddOption registers a fully specified option through the sticky error path.
func (s *Store) AddOption(opt Option) *Handle { return s.add(opt) }

func withDefault(opt Option, def any) Option {
	if fn, ok := def.(DefaultFunc); ok {
		opt.ComputeDefault = fn
	} else if fn, ok := def.(func(*Store) (any, error)); ok {
		opt.ComputeDefault = fn
	} else {
		opt.Default = def
	}
	return opt
}

// Lookup returns the handle for key.
func (s *Store) Lookup(key string) (*Handle, bool) {
	o, ok := s.options[key]
	if !ok {
		return nil, false
	}
	return &Handle{opt: o}, true
}

// Keys returns every registered key in registration order.
func (s *Store) Keys() []string {
	return append([]string(nil), s.order...)
}

// Resolve returns the value of h, applying the precedence chain on first
// use and memoizing the result.
func (s *Store) Resolve(h *Handle) (any, error) {
	s.frozen = true
	o := h.opt
	if o.resolved {
		return o.value, nil
	}
	if o.resolving {
		return nil, fmt.Errorf("config: computed default of %s depends on itself", o.Key)
	}
	o.resolving = true
	defer func() { o.resolving = false }()

	raw, src, err := s.lookup(o)
	if err != nil {
		return nil, err
	}
	value, err := s.convert(o, raw, src)
	if err != nil {
		return nil, err
	}
	o.value = value
	o.source = src
	o.resolved = true
	return value, nil
}

// Source reports which layer h was resolved from (resolving it if needed).
func (s *Store) Source(h *Handle) (Source, error) {
	if _, err := s.Resolve(h); err != nil {
		return SourceUnresolved, err
	}
	return h.opt.source, nil
}

// Value resolves h and asserts its Go type: bool, int, string (also for
// paths) or []string.
func Value[T any](s *Store, h *Handle) (T, error) {
	var zero T
	v, err := s.Resolve(h)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("config: %s is a %s, not %T", h.Key(), h.Kind(), zero)
	}
	return typed, nil
}

// ValueOf resolves key. It is a convenience for code that only knows names.
func ValueOf[T any](s *Store, key string) (T, error) {
	var zero T
	h, ok := s.Lookup(key)
	if !ok {
		return zero, &UnknownOptionError{Key: key}
	}
	return Value[T](s, h)
}

func (s *Store) lookup(o *option) (any, Source, error) {
	if o.cliSet {
		return o.cliRaw, SourceCommandLine, nil
	}
	if !o.CommandLineOnly {
		if v, ok := s.lookupJSON(o.Key); ok {
			s.Debugf("Overriding default value for %s with value from JSON: %v\n", o.Key, v)
			return v, SourceJSON, nil
		}
	}
	if v, ok := s.explicitFallback(o, map[string]bool{o.Key: true}); ok {
		s.Debugf("Using fallback value %s=%v for %s\n", o.Fallback, v, o.Key)
		return v, SourceFallback, nil
	}
	if o.ComputeDefault != nil {
		v, err := o.ComputeDefault(s)
		if err != nil {
			return nil, SourceDefault, fmt.Errorf("computing default for %s: %w", o.Key, err)
		}
		return v, SourceDefault, nil
	}
	return o.Default, SourceDefault, nil
}

// explicitFallback walks the fallback chain looking for a value that was set
// on the command line or in JSON. Defaults of fallback options are ignored.
func (s *Store) explicitFallback(o *option, seen map[string]bool) (any, bool) {
	if o.Fallback == "" || seen[o.Fallback] {
		return nil, false
	}
	seen[o.Fallback] = true
	fb, ok := s.options[o.Fallback]
	if !ok {
		return nil, false
	}
	if fb.cliSet {
		return fb.cliRaw, true
	}
	if !fb.CommandLineOnly {
		if v, ok := s.lookupJSON(fb.Key); ok {
			return v, true
		}
	}
	return s.explicitFallback(fb, seen)
}

// Dump resolves every option that may appear in a config file and returns
// the values keyed by option name.
func (s *Store) Dump() (map[string]any, error) {
	result := make(map[string]any, len(s.order))
	keys := s.Keys()
	sort.Strings(keys)
	for _, key := range keys {
		o := s.options[key]
		if o.CommandLineOnly {
			continue
		}
		v, err := s.Resolve(&Handle{opt: o})
		if err != nil {
			return nil, err
		}
		result[key] = v
	}
	return result, nil
}
