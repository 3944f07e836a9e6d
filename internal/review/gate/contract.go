// Package gate implements the Capability Contract and Reliability Gates
// from spec.md §4.11, grounded on
// original_source/src/restart/capability_contract.py and
// original_source/src/restart/reliability_gates.py.
package gate

import (
	"fmt"
	"strings"

	"github.com/danshapiro/litreview/internal/review/review"
)

// Contract is the fixed set of non-negotiable capabilities a completed run
// must exhibit.
type Contract struct {
	RequiresPRISMA             bool
	RequiresCitationValidation bool
	RequiresCheckpointResume   bool
	RequiresSectionedWriting   bool
	RequiredSections           []string
}

// DefaultContract mirrors CapabilityContract's Python dataclass defaults.
func DefaultContract() Contract {
	return Contract{
		RequiresPRISMA:             true,
		RequiresCitationValidation: true,
		RequiresCheckpointResume:   true,
		RequiresSectionedWriting:   true,
		RequiredSections:           []string{"introduction", "methods", "results", "discussion", "abstract"},
	}
}

// FinalState is the subset of accumulated run state the contract and gates
// inspect at export time.
type FinalState struct {
	PRISMADiagramPath        string
	CitationValidationPassed bool
	CheckpointResumeEnabled  bool
	ManuscriptSections       review.ManuscriptSections
	InvalidCitationCount     int
	TotalCitationCount       int
	ObservedCostUSD          float64
}

// ContractValidation is the outcome of checking FinalState against a
// Contract.
type ContractValidation struct {
	Valid               bool
	MissingCapabilities []string
}

// ValidateContract checks state against contract, collecting every missing
// capability rather than stopping at the first (so callers can report the
// full gap in one pass).
func ValidateContract(state FinalState, contract Contract) ContractValidation {
	var missing []string

	if contract.RequiresPRISMA && strings.TrimSpace(state.PRISMADiagramPath) == "" {
		missing = append(missing, "prisma_diagram")
	}
	if contract.RequiresCitationValidation && !state.CitationValidationPassed {
		missing = append(missing, "citation_validation")
	}
	if contract.RequiresCheckpointResume && !state.CheckpointResumeEnabled {
		missing = append(missing, "checkpoint_resume")
	}
	if contract.RequiresSectionedWriting && !hasSections(state.ManuscriptSections, contract.RequiredSections) {
		missing = append(missing, "required_sections")
	}

	return ContractValidation{Valid: len(missing) == 0, MissingCapabilities: missing}
}

func hasSections(sections review.ManuscriptSections, required []string) bool {
	values := map[string]string{
		"introduction": sections.Introduction,
		"methods":      sections.Methods,
		"results":      sections.Results,
		"discussion":   sections.Discussion,
		"abstract":     sections.Abstract,
	}
	for _, name := range required {
		if strings.TrimSpace(values[name]) == "" {
			return false
		}
	}
	return true
}

func (v ContractValidation) String() string {
	if v.Valid {
		return "capability contract satisfied"
	}
	return fmt.Sprintf("capability contract missing: %s", strings.Join(v.MissingCapabilities, ", "))
}
