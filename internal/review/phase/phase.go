// Package phase implements the Phase Registry from spec.md §4.6: a
// declarative table of phase definitions, their dependency edges, and
// dependency-ordered traversal (Kahn's algorithm with a stable tie-break).
package phase

import (
	"context"
	"fmt"

	"github.com/danshapiro/litreview/internal/review/config"
)

// Handler runs one phase's work. state carries every payload produced by
// prior phases in the chain (string phase name -> decoded payload; unlike
// state.Store.LoadChain's flat field merge, each phase keeps its own key),
// and the handler returns its own output payload to be checkpointed by the
// executor.
type Handler func(ctx context.Context, state map[string]any) (payload any, err error)

// Definition is one entry in the Phase Registry (spec.md §3 PhaseDefinition).
// Definitions are immutable once registered.
type Definition struct {
	Name             string
	Ordinal          int
	Dependencies     []string
	Handler          Handler
	Checkpoint       bool
	Required         bool
	EnabledPredicate func(*config.ReviewConfig) bool
}

// Enabled reports whether this phase should run for cfg. A nil predicate
// means always enabled.
func (d Definition) Enabled(cfg *config.ReviewConfig) bool {
	if d.EnabledPredicate == nil {
		return true
	}
	return d.EnabledPredicate(cfg)
}

// CycleError reports that the dependency graph contains a cycle; Remaining
// lists the phases that could not be ordered.
type CycleError struct {
	Remaining []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("phase: circular dependency detected among phases: %v", e.Remaining)
}

// MissingDependencyError reports a phase that depends on an unregistered
// phase name.
type MissingDependencyError struct {
	Phase      string
	Dependency string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("phase: %q depends on unregistered phase %q", e.Phase, e.Dependency)
}

// Registry holds the set of registered phase definitions.
type Registry struct {
	phases map[string]Definition
	order  []string // insertion order, for deterministic iteration independent of map order
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{phases: make(map[string]Definition)}
}

// Register adds or replaces a phase definition.
func (r *Registry) Register(def Definition) *Registry {
	if _, exists := r.phases[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	r.phases[def.Name] = def
	return r
}

// Get returns the named phase definition.
func (r *Registry) Get(name string) (Definition, bool) {
	d, ok := r.phases[name]
	return d, ok
}

// Len reports the number of registered phases.
func (r *Registry) Len() int {
	return len(r.phases)
}

// ValidateDependencies returns one MissingDependencyError per dependency
// edge pointing at an unregistered phase.
func (r *Registry) ValidateDependencies() []error {
	var errs []error
	for _, name := range r.order {
		def := r.phases[name]
		for _, dep := range def.Dependencies {
			if _, ok := r.phases[dep]; !ok {
				errs = append(errs, &MissingDependencyError{Phase: name, Dependency: dep})
			}
		}
	}
	return errs
}

// ExecutionOrder returns every registered phase name in dependency order:
// Kahn's algorithm over the dependency DAG, with the ready queue re-sorted
// by Ordinal before each pop so that independent phases come out in a
// stable, deterministic order. Returns a CycleError if the graph has a
// cycle (or an edge to a missing phase prevents full resolution).
func (r *Registry) ExecutionOrder() ([]string, error) {
	inDegree := make(map[string]int, len(r.phases))
	graph := make(map[string][]string, len(r.phases))
	for name := range r.phases {
		inDegree[name] = 0
		graph[name] = nil
	}
	for _, name := range r.order {
		def := r.phases[name]
		for _, dep := range def.Dependencies {
			if _, ok := r.phases[dep]; !ok {
				continue // reported separately by ValidateDependencies
			}
			graph[dep] = append(graph[dep], name)
			inDegree[name]++
		}
	}

	var queue []string
	for _, name := range r.order {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	var result []string
	for len(queue) > 0 {
		sortByOrdinal(queue, r.phases)
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		for _, dependent := range graph[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(r.phases) {
		seen := make(map[string]struct{}, len(result))
		for _, n := range result {
			seen[n] = struct{}{}
		}
		var remaining []string
		for name := range r.phases {
			if _, ok := seen[name]; !ok {
				remaining = append(remaining, name)
			}
		}
		sortByOrdinal(remaining, r.phases)
		return nil, &CycleError{Remaining: remaining}
	}
	return result, nil
}

func sortByOrdinal(names []string, phases map[string]Definition) {
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && phases[names[j-1]].Ordinal > phases[names[j]].Ordinal; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
}

// TransitiveDeps returns the full transitive closure of name's dependencies,
// deduplicated, in no particular guaranteed order. Cycles are broken rather
// than looped forever.
func (r *Registry) TransitiveDeps(name string) []string {
	visited := make(map[string]struct{})
	var out []string
	var walk func(string)
	walk = func(n string) {
		def, ok := r.phases[n]
		if !ok {
			return
		}
		for _, dep := range def.Dependencies {
			if _, seen := visited[dep]; seen {
				continue
			}
			visited[dep] = struct{}{}
			out = append(out, dep)
			walk(dep)
		}
	}
	walk(name)
	return out
}
