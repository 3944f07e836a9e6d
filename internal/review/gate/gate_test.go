package gate

import (
	"testing"

	"github.com/danshapiro/litreview/internal/review/review"
)

func completeState() FinalState {
	return FinalState{
		PRISMADiagramPath:        "/runs/run-1/prisma.svg",
		CitationValidationPassed: true,
		CheckpointResumeEnabled:  true,
		ManuscriptSections: review.ManuscriptSections{
			Introduction: "intro", Methods: "methods", Results: "results",
			Discussion: "discussion", Abstract: "abstract",
		},
		InvalidCitationCount: 1,
		TotalCitationCount:   200,
		ObservedCostUSD:      4.50,
	}
}

func TestValidateContract_AllPresentPasses(t *testing.T) {
	v := ValidateContract(completeState(), DefaultContract())
	if !v.Valid {
		t.Fatalf("expected valid contract, missing: %v", v.MissingCapabilities)
	}
}

func TestValidateContract_ReportsEveryMissingCapability(t *testing.T) {
	state := FinalState{} // nothing set
	v := ValidateContract(state, DefaultContract())
	if v.Valid {
		t.Fatalf("expected invalid contract")
	}
	want := map[string]bool{
		"prisma_diagram": true, "citation_validation": true,
		"checkpoint_resume": true, "required_sections": true,
	}
	if len(v.MissingCapabilities) != len(want) {
		t.Fatalf("expected all 4 missing capabilities, got %v", v.MissingCapabilities)
	}
	for _, m := range v.MissingCapabilities {
		if !want[m] {
			t.Fatalf("unexpected missing capability: %q", m)
		}
	}
}

func TestValidateContract_BlankSectionCountsAsMissing(t *testing.T) {
	state := completeState()
	state.ManuscriptSections.Abstract = "   "
	v := ValidateContract(state, DefaultContract())
	if v.Valid {
		t.Fatalf("expected whitespace-only abstract to fail the contract")
	}
}

func TestGatesRun_AllPassOnHealthyState(t *testing.T) {
	budget := 100.0
	results := Run(completeState(), Thresholds{MaxInvalidCitationRatio: 0.01, MaxCostUSD: &budget})
	for _, r := range results {
		if !r.Passed {
			t.Fatalf("expected gate %q to pass: %s", r.Name, r.Details)
		}
	}
}

func TestCitationGate_FailsAboveThreshold(t *testing.T) {
	state := completeState()
	state.InvalidCitationCount = 10
	state.TotalCitationCount = 100 // 10% >> 1%
	results := Run(state, Thresholds{MaxInvalidCitationRatio: 0.01})
	failed := FailedNames(results)
	if len(failed) != 1 || failed[0] != "citation_quality" {
		t.Fatalf("expected only citation_quality to fail, got %v", failed)
	}
}

func TestCitationGate_ZeroTotalCitationsDoesNotDivideByZero(t *testing.T) {
	state := completeState()
	state.InvalidCitationCount = 0
	state.TotalCitationCount = 0
	results := Run(state, Thresholds{MaxInvalidCitationRatio: 0.01})
	if !results[1].Passed {
		t.Fatalf("expected citation gate to pass with zero total citations, got %s", results[1].Details)
	}
}

func TestCostGate_DisabledWhenNoBudgetSet(t *testing.T) {
	state := completeState()
	state.ObservedCostUSD = 1_000_000
	results := Run(state, Thresholds{})
	if !results[2].Passed {
		t.Fatalf("expected cost gate to pass when no budget configured, got %s", results[2].Details)
	}
}

func TestCostGate_FailsOverBudget(t *testing.T) {
	budget := 1.0
	state := completeState()
	state.ObservedCostUSD = 5.0
	results := Run(state, Thresholds{MaxCostUSD: &budget})
	if results[2].Passed {
		t.Fatalf("expected cost gate to fail when over budget")
	}
}

func TestCheckpointGate_FailsWhenDisabled(t *testing.T) {
	state := completeState()
	state.CheckpointResumeEnabled = false
	results := Run(state, Thresholds{})
	if results[0].Passed {
		t.Fatalf("expected checkpoint_resume gate to fail")
	}
}
