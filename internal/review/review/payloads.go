// Package review defines the typed, per-phase payload records carried
// through the pipeline (spec.md §3 PhaseCheckpoint data, supplemented from
// original_source/src/orchestration/workflow_state.py's WorkflowState).
// Where the original keeps one untyped dict threaded through every phase,
// here each phase gets its own record; the executor keeps them in a map
// keyed by phase name rather than a single shared mutable bag.
package review

import "encoding/json"

// Paper is a single bibliographic record as returned by a search provider
// and carried through dedup/screening/extraction.
type Paper struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	Year        int      `json:"year"`
	Venue       string   `json:"venue,omitempty"`
	DOI         string   `json:"doi,omitempty"`
	Abstract    string   `json:"abstract,omitempty"`
	Source      string   `json:"source"` // originating database, e.g. "pubmed"
	PDFURL      string   `json:"pdf_url,omitempty"`

	Extra map[string]json.RawMessage `json:"extra,omitempty"`
}

// SearchPayload is the search_databases phase's output.
type SearchPayload struct {
	Papers            []Paper        `json:"papers"`
	DatabaseBreakdown map[string]int `json:"database_breakdown"`
}

// DeduplicationPayload is the deduplication phase's output.
type DeduplicationPayload struct {
	UniquePapers      []Paper `json:"unique_papers"`
	DuplicatesRemoved int     `json:"duplicates_removed"`
}

// ScreeningDecision records one title/abstract or full-text screening
// verdict for a single paper.
type ScreeningDecision struct {
	PaperID   string `json:"paper_id"`
	Included  bool   `json:"included"`
	Reason    string `json:"reason,omitempty"`
}

// TitleAbstractScreeningPayload is the title_abstract_screening phase's
// output.
type TitleAbstractScreeningPayload struct {
	ScreenedPapers []Paper             `json:"screened_papers"`
	Excluded       int                 `json:"excluded"`
	Decisions      []ScreeningDecision `json:"decisions"`
}

// FullTextScreeningPayload is the fulltext_screening phase's output.
type FullTextScreeningPayload struct {
	EligiblePapers      []Paper             `json:"eligible_papers"`
	Excluded            int                 `json:"excluded"`
	Decisions           []ScreeningDecision `json:"decisions"`
	AvailableCount      int                 `json:"fulltext_available_count"`
	UnavailableCount    int                 `json:"fulltext_unavailable_count"`
}

// ExtractedData is the structured record pulled from one included study's
// full text, supplementing spec.md's "extracts structured data" purpose
// statement (the original data_extractor_agent.ExtractedData).
type ExtractedData struct {
	PaperID      string            `json:"paper_id"`
	StudyDesign  string            `json:"study_design,omitempty"`
	SampleSize   int               `json:"sample_size,omitempty"`
	Outcomes     []string          `json:"outcomes,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
}

// ExtractionPayload is the data_extraction phase's output.
type ExtractionPayload struct {
	ExtractedData []ExtractedData `json:"extracted_data"`
}

// QualityPayload is the quality_assessment phase's output: one risk-of-bias
// or quality score per included paper.
type QualityPayload struct {
	Scores map[string]float64 `json:"scores"` // paper_id -> composite quality score
	Notes  map[string]string  `json:"notes,omitempty"`
}

// ManuscriptSections holds the five required sections a gate.Contract
// checks for (spec.md §4.11), plus an optional assembled manuscript.
type ManuscriptSections struct {
	Introduction string `json:"introduction"`
	Methods      string `json:"methods"`
	Results      string `json:"results"`
	Discussion   string `json:"discussion"`
	Abstract     string `json:"abstract"`
	Manuscript   string `json:"manuscript,omitempty"`
}

// WritingPayload is the article_writing phase's output.
type WritingPayload struct {
	Sections      ManuscriptSections `json:"sections"`
	CitationCount int                `json:"citation_count"`
}

// SynthesisPayload is the evidence-synthesis phase's output (qualitative
// and, when meta-analysis applies, quantitative pooled results).
type SynthesisPayload struct {
	QualitativeSummary string   `json:"qualitative_summary,omitempty"`
	QuantitativePapers []string `json:"quantitative_paper_ids,omitempty"`
}
