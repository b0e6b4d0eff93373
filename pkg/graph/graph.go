// Package graph turns a unit's reactive field declarations into a named
// DAG: per-field dependency lists and a deterministic topological
// recomputation order. The same graph is used to order server
// recomputation and is embedded in generated client artifacts as the
// incremental recomputation plan.
package graph

import (
	"sort"
	"strings"

	"github.com/mirageui/mirage/internal/errors"
	"github.com/mirageui/mirage/pkg/decl"
	"github.com/mirageui/mirage/pkg/expr"
)

// Entry is one node of the dependency graph.
type Entry struct {
	Name string
	Deps []string

	// Kind and Expr carry through from the declaration so the server
	// recompute loop and the artifact generator need only the graph.
	Kind decl.Kind
	Expr *expr.Rx

	declIndex int
}

// Graph is the built, validated DAG for one unit.
type Graph struct {
	unit    string
	entries map[string]*Entry
	order   []string // topological, declaration-order tie-break
}

// Build validates the field set and produces the graph. Each animated-field
// configuration contributes two mechanically derived entries, the phase and
// the ghost; the caller never declares those by hand.
//
// Errors: E102 for a reference to an undeclared field, E101 for a cycle,
// both carrying the unit and field identity.
func Build(unit *decl.Unit) (*Graph, error) {
	fields := unit.Fields()
	g := &Graph{
		unit:    unit.Name,
		entries: make(map[string]*Entry, len(fields)+2*len(unit.AnimatedConfigs())),
	}

	for _, f := range fields {
		e := &Entry{Name: f.Name, Kind: f.Kind, declIndex: f.DeclIndex}
		if f.Expr != nil {
			e.Deps = dedupe(f.Expr.Deps)
			e.Expr = f.Expr
		}
		g.entries[f.Name] = e
	}

	// Mechanically derived entries for animated fields: the phase depends
	// on its gating field, and on the async companion when one is
	// configured, so recomputation reaches the phase after both; the ghost
	// tracks the phase, carrying the retained exit content.
	nextIndex := len(fields)
	for _, cfg := range unit.AnimatedConfigs() {
		deps := []string{cfg.Field}
		if cfg.AsyncCompanion != "" {
			deps = append(deps, cfg.AsyncCompanion)
		}
		g.entries[cfg.PhaseField()] = &Entry{
			Name:      cfg.PhaseField(),
			Kind:      decl.KindDerived,
			Deps:      deps,
			declIndex: nextIndex,
		}
		g.entries[cfg.GhostField()] = &Entry{
			Name:      cfg.GhostField(),
			Kind:      decl.KindDerived,
			Deps:      []string{cfg.PhaseField()},
			declIndex: nextIndex + 1,
		}
		nextIndex += 2
	}

	// Dangling references.
	for _, e := range sortedEntries(g.entries) {
		for _, dep := range e.Deps {
			if _, ok := g.entries[dep]; !ok {
				return nil, errors.New("E102").
					WithUnit(unit.Name).
					WithField(e.Name).
					WithDetailf("expression reads undeclared field %q", dep)
			}
		}
	}

	order, cycle := topoSort(g.entries)
	if cycle != nil {
		return nil, errors.New("E101").
			WithUnit(unit.Name).
			WithField(cycle[0]).
			WithDetailf("cycle: %s", strings.Join(append(cycle, cycle[0]), " -> "))
	}
	g.order = order
	return g, nil
}

// Unit returns the owning unit's name.
func (g *Graph) Unit() string { return g.unit }

// Entry returns the named entry, or nil.
func (g *Graph) Entry(name string) *Entry { return g.entries[name] }

// Len returns the number of entries.
func (g *Graph) Len() int { return len(g.entries) }

// Order returns a valid topological recomputation order: every field
// appears after all of its dependencies, ties broken by declaration order
// so generated artifacts are diff-stable.
func (g *Graph) Order() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Names returns all entry names in declaration order.
func (g *Graph) Names() []string {
	entries := sortedEntries(g.entries)
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

// Dependents returns the names of entries that directly depend on name,
// in declaration order.
func (g *Graph) Dependents(name string) []string {
	var out []string
	for _, e := range sortedEntries(g.entries) {
		for _, dep := range e.Deps {
			if dep == name {
				out = append(out, e.Name)
				break
			}
		}
	}
	return out
}

// dedupe keeps the first occurrence of each name.
func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	var out []string
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func sortedEntries(entries map[string]*Entry) []*Entry {
	out := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].declIndex < out[j].declIndex })
	return out
}

// topoSort is Kahn's algorithm with a declaration-ordered ready queue.
// On a cycle it returns nil and the cycle path, canonicalized to start at
// its lexicographically smallest member so the error is deterministic.
func topoSort(entries map[string]*Entry) ([]string, []string) {
	indegree := make(map[string]int, len(entries))
	for name := range entries {
		indegree[name] = 0
	}
	for _, e := range entries {
		for range e.Deps {
			indegree[e.Name]++
		}
	}

	var ready []*Entry
	for _, e := range sortedEntries(entries) {
		if indegree[e.Name] == 0 {
			ready = append(ready, e)
		}
	}

	var order []string
	for len(ready) > 0 {
		e := ready[0]
		ready = ready[1:]
		order = append(order, e.Name)

		// Release dependents in declaration order.
		for _, dep := range sortedEntries(entries) {
			for _, d := range dep.Deps {
				if d == e.Name {
					indegree[dep.Name]--
					if indegree[dep.Name] == 0 {
						ready = insertByDecl(ready, dep)
					}
					break
				}
			}
		}
	}

	if len(order) == len(entries) {
		return order, nil
	}
	return nil, findCycle(entries, order)
}

func insertByDecl(ready []*Entry, e *Entry) []*Entry {
	i := sort.Search(len(ready), func(i int) bool { return ready[i].declIndex > e.declIndex })
	ready = append(ready, nil)
	copy(ready[i+1:], ready[i:])
	ready[i] = e
	return ready
}

// findCycle walks the unresolved remainder to extract one concrete cycle.
func findCycle(entries map[string]*Entry, resolved []string) []string {
	done := make(map[string]bool, len(resolved))
	for _, n := range resolved {
		done[n] = true
	}

	var remaining []string
	for name := range entries {
		if !done[name] {
			remaining = append(remaining, name)
		}
	}
	sort.Strings(remaining)

	// Follow unresolved dependency links until a name repeats.
	start := remaining[0]
	seen := map[string]int{}
	var path []string
	cur := start
	for {
		if at, ok := seen[cur]; ok {
			return canonicalCycle(path[at:])
		}
		seen[cur] = len(path)
		path = append(path, cur)

		next := ""
		for _, dep := range entries[cur].Deps {
			if !done[dep] {
				next = dep
				break
			}
		}
		if next == "" {
			return canonicalCycle(path)
		}
		cur = next
	}
}

// canonicalCycle rotates the cycle so its smallest member comes first.
func canonicalCycle(cycle []string) []string {
	if len(cycle) == 0 {
		return cycle
	}
	min := 0
	for i, n := range cycle {
		if n < cycle[min] {
			min = i
		}
	}
	out := make([]string, 0, len(cycle))
	out = append(out, cycle[min:]...)
	out = append(out, cycle[:min]...)
	return out
}
