package target

import (
	"errors"
	"fmt"
	"sort"

	"cheribuild/internal/config"
)

// Graph is the registry of all targets. It is filled once at startup and
// read-only afterwards.
type Graph struct {
	targets map[string]*Target
	aliases map[string]*Alias
	descs   []*Descriptor
}

// NewGraph returns an empty registry.
func NewGraph() *Graph {
	return &Graph{
		targets: make(map[string]*Target),
		aliases: make(map[string]*Alias),
	}
}

// Register adds d, expanding architecture variants. Nothing is registered
// when any of the resulting names is already taken.
func (g *Graph) Register(d Descriptor) error {
	if d.Name == "" {
		return errors.New("target: descriptor without a name")
	}
	desc := &d
	if len(d.Architectures) == 0 {
		if g.taken(d.Name) {
			return &DuplicateTargetError{Name: d.Name}
		}
		g.targets[d.Name] = &Target{Name: d.Name, Base: d.Name, desc: desc}
		g.descs = append(g.descs, desc)
		return nil
	}

	if desc.DefaultArch == "" {
		desc.DefaultArch = d.Architectures[0]
	}
	alias := &Alias{Name: d.Name, Variants: make(map[Arch]string, len(d.Architectures))}
	names := []string{d.Name}
	for _, arch := range d.Architectures {
		if _, dup := alias.Variants[arch]; dup {
			return fmt.Errorf("target %s lists architecture %s twice", d.Name, arch)
		}
		alias.Variants[arch] = VariantName(d.Name, arch)
		names = append(names, alias.Variants[arch])
	}
	def, ok := alias.Variants[desc.DefaultArch]
	if !ok {
		return fmt.Errorf("target %s: default architecture %s is not one of its architectures", d.Name, desc.DefaultArch)
	}
	alias.Default = def
	for _, name := range names {
		if g.taken(name) {
			return &DuplicateTargetError{Name: name}
		}
	}
	for _, arch := range d.Architectures {
		name := alias.Variants[arch]
		g.targets[name] = &Target{Name: name, Base: d.Name, Arch: arch, desc: desc}
	}
	g.aliases[d.Name] = alias
	g.descs = append(g.descs, desc)
	return nil
}

// MustRegister is Register for the built-in catalogue.
func (g *Graph) MustRegister(descs ...Descriptor) {
	for _, d := range descs {
		if err := g.Register(d); err != nil {
			panic(err)
		}
	}
}

func (g *Graph) taken(name string) bool {
	_, isTarget := g.targets[name]
	_, isAlias := g.aliases[name]
	return isTarget || isAlias
}

// VariantName is "<base>-<arch>".
func VariantName(base string, arch Arch) string {
	return base + "-" + string(arch)
}

// DeclareOptions declares the per-target options of every target in s. It
// must run before s is loaded. Variants fall back to the options of their
// alias, so "--cheribsd/build-type" applies to every cheribsd variant that
// was not configured individually.
func (g *Graph) DeclareOptions(s *config.Store) error {
	for _, d := range g.descs {
		alias, multi := g.aliases[d.Name]
		if !multi {
			t := g.targets[d.Name]
			t.scope = s.Scope(t.Name, "")
			if d.Options != nil {
				d.Options(t.scope, t.Arch)
			}
			continue
		}
		base := s.Scope(d.Name, "")
		if d.Options != nil {
			d.Options(base, "")
		}
		for _, arch := range d.Architectures {
			t := g.targets[alias.Variants[arch]]
			t.scope = s.Scope(t.Name, d.Name)
			if d.Options != nil {
				d.Options(t.scope, arch)
			}
		}
	}
	return s.Err()
}

// Lookup returns the target called name. An alias yields its default variant.
func (g *Graph) Lookup(name string) (*Target, bool) {
	if t, ok := g.targets[name]; ok {
		return t, true
	}
	if a, ok := g.aliases[name]; ok {
		return g.targets[a.Default], true
	}
	return nil, false
}

// Alias returns the alias called name.
func (g *Graph) Alias(name string) (*Alias, bool) {
	a, ok := g.aliases[name]
	return a, ok
}

// Names returns every target and alias name, sorted.
func (g *Graph) Names() []string {
	names := make([]string, 0, len(g.targets)+len(g.aliases))
	for n := range g.targets {
		names = append(names, n)
	}
	for n := range g.aliases {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Targets returns every concrete target sorted by name.
func (g *Graph) Targets() []*Target {
	out := make([]*Target, 0, len(g.targets))
	for _, t := range g.targets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (g *Graph) unknown(name, requestedBy string) error {
	return &UnknownTargetError{Name: name, RequestedBy: requestedBy, Available: g.Names()}
}

// ResolveDependencies returns the direct dependencies of t as concrete
// target names. A dependency on an alias becomes the variant for t's own
// architecture when the alias has one, and the alias's default otherwise.
func (g *Graph) ResolveDependencies(t *Target, s *config.Store) ([]string, error) {
	names := t.desc.Dependencies
	if t.desc.DependenciesFunc != nil {
		var err error
		names, err = t.desc.DependenciesFunc(t, s)
		if err != nil {
			return nil, fmt.Errorf("dependencies of %s: %w", t.Name, err)
		}
	}
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		resolved, err := g.substitute(name, t)
		if err != nil {
			return nil, err
		}
		if !seen[resolved] {
			seen[resolved] = true
			out = append(out, resolved)
		}
	}
	return out, nil
}

func (g *Graph) substitute(name string, requester *Target) (string, error) {
	if alias, ok := g.aliases[name]; ok {
		if requester.Arch != "" {
			if variant, ok := alias.Variants[requester.Arch]; ok {
				return variant, nil
			}
		}
		return alias.Default, nil
	}
	if _, ok := g.targets[name]; ok {
		return name, nil
	}
	return "", g.unknown(name, requester.Name)
}
