package phase

import (
	"context"
	"errors"
	"testing"
	"time"
)

func noopHandler(context.Context, map[string]any) (any, error) { return nil, nil }

func TestExecutionOrder_RespectsDependencies(t *testing.T) {
	r := NewRegistry()
	r.Register(Definition{Name: "search_databases", Ordinal: 1, Handler: noopHandler})
	r.Register(Definition{Name: "deduplication", Ordinal: 2, Dependencies: []string{"search_databases"}, Handler: noopHandler})
	r.Register(Definition{Name: "title_abstract_screening", Ordinal: 3, Dependencies: []string{"deduplication"}, Handler: noopHandler})

	order, err := r.ExecutionOrder()
	if err != nil {
		t.Fatalf("ExecutionOrder: %v", err)
	}
	want := []string{"search_databases", "deduplication", "title_abstract_screening"}
	if len(order) != len(want) {
		t.Fatalf("got %v want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v want %v", order, want)
		}
	}
}

func TestExecutionOrder_TiesBrokenByOrdinal(t *testing.T) {
	r := NewRegistry()
	r.Register(Definition{Name: "z_phase", Ordinal: 1, Handler: noopHandler})
	r.Register(Definition{Name: "a_phase", Ordinal: 0, Handler: noopHandler})

	order, err := r.ExecutionOrder()
	if err != nil {
		t.Fatalf("ExecutionOrder: %v", err)
	}
	if order[0] != "a_phase" || order[1] != "z_phase" {
		t.Fatalf("expected ordinal tie-break, got %v", order)
	}
}

func TestExecutionOrder_DetectsCycle(t *testing.T) {
	r := NewRegistry()
	r.Register(Definition{Name: "a", Ordinal: 1, Dependencies: []string{"b"}, Handler: noopHandler})
	r.Register(Definition{Name: "b", Ordinal: 2, Dependencies: []string{"a"}, Handler: noopHandler})

	_, err := r.ExecutionOrder()
	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	if len(cycleErr.Remaining) != 2 {
		t.Fatalf("expected both phases reported as unresolved, got %v", cycleErr.Remaining)
	}
}

func TestValidateDependencies_ReportsMissing(t *testing.T) {
	r := NewRegistry()
	r.Register(Definition{Name: "deduplication", Ordinal: 1, Dependencies: []string{"search_databases"}, Handler: noopHandler})

	errs := r.ValidateDependencies()
	if len(errs) != 1 {
		t.Fatalf("expected exactly one missing-dependency error, got %v", errs)
	}
	var missing *MissingDependencyError
	if !errors.As(errs[0], &missing) {
		t.Fatalf("expected MissingDependencyError, got %T", errs[0])
	}
	if missing.Dependency != "search_databases" {
		t.Fatalf("unexpected dependency name: %q", missing.Dependency)
	}
}

func TestTransitiveDeps_WalksFullChain(t *testing.T) {
	r := NewRegistry()
	r.Register(Definition{Name: "search_databases", Ordinal: 1, Handler: noopHandler})
	r.Register(Definition{Name: "deduplication", Ordinal: 2, Dependencies: []string{"search_databases"}, Handler: noopHandler})
	r.Register(Definition{Name: "screening", Ordinal: 3, Dependencies: []string{"deduplication"}, Handler: noopHandler})

	deps := r.TransitiveDeps("screening")
	seen := map[string]bool{}
	for _, d := range deps {
		seen[d] = true
	}
	if !seen["deduplication"] || !seen["search_databases"] {
		t.Fatalf("expected transitive closure to include both ancestors, got %v", deps)
	}
}

func TestTransitiveDeps_BreaksSelfReferentialCycle(t *testing.T) {
	r := NewRegistry()
	r.Register(Definition{Name: "a", Ordinal: 1, Dependencies: []string{"b"}, Handler: noopHandler})
	r.Register(Definition{Name: "b", Ordinal: 2, Dependencies: []string{"a"}, Handler: noopHandler})

	done := make(chan []string, 1)
	go func() { done <- r.TransitiveDeps("a") }()
	select {
	case deps := <-done:
		if len(deps) == 0 {
			t.Fatalf("expected at least one dependency reported before the cycle was cut")
		}
	case <-time.After(time.Second):
		t.Fatalf("TransitiveDeps did not terminate on a cyclic graph")
	}
}

func TestRegister_OverwritesExistingDefinition(t *testing.T) {
	r := NewRegistry()
	r.Register(Definition{Name: "x", Ordinal: 1, Handler: noopHandler})
	r.Register(Definition{Name: "x", Ordinal: 5, Handler: noopHandler})

	if r.Len() != 1 {
		t.Fatalf("expected overwrite not duplicate, got len=%d", r.Len())
	}
	def, _ := r.Get("x")
	if def.Ordinal != 5 {
		t.Fatalf("expected overwritten ordinal 5, got %d", def.Ordinal)
	}
}
