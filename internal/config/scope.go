package config

// Scope declares options under "<target>/<name>". When a fallback target is
// given, each option inherits the explicitly set value of
// "<fallback>/<name>".
type Scope struct {
	store    *Store
	target   string
	fallback string
}

// Scope returns a declaration helper for target. fallbackTarget may be empty.
func (s *Store) Scope(target, fallbackTarget string) *Scope {
	return &Scope{store: s, target: target, fallback: fallbackTarget}
}

// Target returns the scope's target name.
func (sc *Scope) Target() string { return sc.target }

// Store returns the underlying store.
func (sc *Scope) Store() *Store { return sc.store }

// Key returns the full key for name.
func (sc *Scope) Key(name string) string { return sc.target + "/" + name }

// Add declares opt with its Key interpreted relative to the scope.
func (sc *Scope) Add(opt Option) *Handle {
	opt.Key = sc.Key(opt.Key)
	if opt.Fallback == "" && sc.fallback != "" {
		opt.Fallback = sc.fallback + "/" + opt.Key[len(sc.target)+1:]
	}
	// per-target options would swamp --help
	opt.Hidden = true
	return sc.store.AddOption(opt)
}

func (sc *Scope) AddBool(name, help string) *Handle {
	return sc.Add(Option{Key: name, Kind: KindBool, Help: help, Default: false})
}

func (sc *Scope) AddString(name string, def any, help string) *Handle {
	return sc.Add(withDefault(Option{Key: name, Kind: KindString, Help: help}, def))
}

func (sc *Scope) AddPath(name string, def any, help string) *Handle {
	return sc.Add(withDefault(Option{Key: name, Kind: KindPath, Help: help}, def))
}

func (sc *Scope) AddList(name string, def any, help string) *Handle {
	return sc.Add(withDefault(Option{Key: name, Kind: KindList, Help: help}, def))
}

// Get returns the handle for name within the scope.
func (sc *Scope) Get(name string) (*Handle, bool) {
	return sc.store.Lookup(sc.Key(name))
}
