package gate

import "fmt"

// Result is the outcome of one reliability gate (spec.md §4.11), grounded
// on original_source/src/restart/reliability_gates.py's GateResult.
type Result struct {
	Name    string
	Passed  bool
	Details string
}

// Thresholds configures the Reliability Gates.
type Thresholds struct {
	MaxInvalidCitationRatio float64 // default 0.01
	MaxCostUSD              *float64 // nil disables the cost gate
}

// Run evaluates checkpoint_resume, citation_quality, and cost_budget
// against state, returning one Result per gate in that order.
func Run(state FinalState, thresholds Thresholds) []Result {
	return []Result{
		checkpointGate(state),
		citationGate(state, thresholds),
		costGate(state, thresholds),
	}
}

func checkpointGate(state FinalState) Result {
	if state.CheckpointResumeEnabled {
		return Result{Name: "checkpoint_resume", Passed: true, Details: "checkpoint resume is enabled"}
	}
	return Result{Name: "checkpoint_resume", Passed: false, Details: "checkpoint resume is disabled"}
}

func citationGate(state FinalState, thresholds Thresholds) Result {
	ratio := 0.0
	if state.TotalCitationCount > 0 {
		ratio = float64(state.InvalidCitationCount) / float64(state.TotalCitationCount)
	}
	threshold := thresholds.MaxInvalidCitationRatio
	if threshold == 0 {
		threshold = 0.01
	}
	passed := ratio <= threshold
	return Result{
		Name:    "citation_quality",
		Passed:  passed,
		Details: fmt.Sprintf("invalid_ratio=%.4f threshold=%.4f", ratio, threshold),
	}
}

func costGate(state FinalState, thresholds Thresholds) Result {
	if thresholds.MaxCostUSD == nil {
		return Result{Name: "cost_budget", Passed: true, Details: "cost gate disabled"}
	}
	budget := *thresholds.MaxCostUSD
	passed := state.ObservedCostUSD <= budget
	return Result{
		Name:    "cost_budget",
		Passed:  passed,
		Details: fmt.Sprintf("observed=%.4f budget=%.4f", state.ObservedCostUSD, budget),
	}
}

// FailedNames returns the Name of every failing result, in order.
func FailedNames(results []Result) []string {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r.Name)
		}
	}
	return failed
}
