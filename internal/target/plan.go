package target

import (
	"sort"

	"cheribuild/internal/config"
)

// Plan is an execution order: every target comes after its dependencies and
// appears once.
type Plan []*Target

// Names returns the target names in order.
func (p Plan) Names() []string {
	out := make([]string, len(p))
	for i, t := range p {
		out[i] = t.Name
	}
	return out
}

// Plan resolves the requested names into an execution order. Without
// includeTransitive the requested targets run in the given order, except
// that pseudo targets such as "all" are replaced by their ordered
// dependency closure. With includeTransitive the full closure of every
// requested target is ordered layer by layer, each layer sorted by name.
func (g *Graph) Plan(requested []string, includeTransitive bool, s *config.Store) (Plan, error) {
	roots := make([]*Target, 0, len(requested))
	for _, name := range requested {
		t, ok := g.Lookup(name)
		if !ok {
			return nil, g.unknown(name, "")
		}
		roots = append(roots, t)
	}

	if includeTransitive {
		return g.ordered(roots, s)
	}

	var plan Plan
	placed := make(map[string]bool)
	for _, t := range roots {
		if t.IsPseudo() {
			sub, err := g.ordered([]*Target{t}, s)
			if err != nil {
				return nil, err
			}
			for _, st := range sub {
				if !placed[st.Name] {
					placed[st.Name] = true
					plan = append(plan, st)
				}
			}
			continue
		}
		if !placed[t.Name] {
			placed[t.Name] = true
			plan = append(plan, t)
		}
	}
	return plan, nil
}

// ordered collects the transitive closure of roots and sorts it.
func (g *Graph) ordered(roots []*Target, s *config.Store) (Plan, error) {
	deps := make(map[string][]string)
	queue := make([]*Target, 0, len(roots))
	for _, t := range roots {
		if _, seen := deps[t.Name]; !seen {
			deps[t.Name] = nil
			queue = append(queue, t)
		}
	}
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]
		direct, err := g.ResolveDependencies(t, s)
		if err != nil {
			return nil, err
		}
		deps[t.Name] = direct
		for _, d := range direct {
			if _, seen := deps[d]; !seen {
				deps[d] = nil
				queue = append(queue, g.targets[d])
			}
		}
	}

	order, err := layeredSort(deps)
	if err != nil {
		return nil, err
	}
	plan := make(Plan, len(order))
	for i, name := range order {
		plan[i] = g.targets[name]
	}
	return plan, nil
}

// layeredSort repeatedly takes every node whose dependencies are all
// placed, sorts that layer and appends it.
func layeredSort(deps map[string][]string) ([]string, error) {
	placed := make(map[string]bool, len(deps))
	remaining := make(map[string]bool, len(deps))
	for n := range deps {
		remaining[n] = true
	}
	order := make([]string, 0, len(deps))
	for len(remaining) > 0 {
		var layer []string
		for n := range remaining {
			ready := true
			for _, d := range deps[n] {
				if !placed[d] {
					ready = false
					break
				}
			}
			if ready {
				layer = append(layer, n)
			}
		}
		if len(layer) == 0 {
			return nil, cycleError(deps, remaining)
		}
		sort.Strings(layer)
		for _, n := range layer {
			placed[n] = true
			delete(remaining, n)
		}
		order = append(order, layer...)
	}
	return order, nil
}

func cycleError(deps map[string][]string, remaining map[string]bool) error {
	rest := make([]string, 0, len(remaining))
	for n := range remaining {
		rest = append(rest, n)
	}
	sort.Strings(rest)

	var cycle []string
	for _, n := range rest {
		if reaches(deps, remaining, n, n) {
			cycle = append(cycle, n)
		}
	}
	return &CyclicDependencyError{Remaining: rest, Cycle: cycle}
}

// reaches reports whether to is reachable from from through at least one
// edge, staying inside remaining.
func reaches(deps map[string][]string, remaining map[string]bool, from, to string) bool {
	seen := make(map[string]bool)
	stack := append([]string(nil), deps[from]...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		if seen[n] || !remaining[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, deps[n]...)
	}
	return false
}
