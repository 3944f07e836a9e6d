package state

import (
	"time"

	"github.com/danshapiro/litreview/internal/review/prisma"
)

// Checkpoint is the durable envelope written once per successfully completed
// phase (spec.md §3 PhaseCheckpoint). Data holds the phase-specific payload,
// already serialized by a Serializer.
type Checkpoint struct {
	Phase             string            `json:"phase"`
	RunID             string            `json:"run_id"`
	Timestamp         time.Time         `json:"timestamp"`
	Dependencies      []string          `json:"dependencies"`
	TopicContext      TopicContext      `json:"topic_context"`
	Data              []byte            `json:"data"`
	PrismaCounts      prisma.State      `json:"prisma_counts"`
	DatabaseBreakdown map[string]int    `json:"database_breakdown"`
	Extra             map[string]string `json:"extra,omitempty"`
}

// TopicContext mirrors spec.md §3's immutable per-run research question and
// eligibility criteria; carried in every checkpoint so find_by_topic can
// match without consulting the Run Registry.
type TopicContext struct {
	Topic             string   `json:"topic"`
	ResearchQuestion  string   `json:"research_question"`
	InclusionCriteria []string `json:"inclusion_criteria"`
	ExclusionCriteria []string `json:"exclusion_criteria"`
	DateRangeStart    string   `json:"date_range_start,omitempty"`
	DateRangeEnd      string   `json:"date_range_end,omitempty"`
	Keywords          []string `json:"keywords"`
}

// RunSummary is the small top-level manifest written once at run creation
// (spec.md §4.7, run_summary.json); heartbeats and status changes go to the
// Run Registry, not to this file.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	Topic       string    `json:"topic"`
	Fingerprint string    `json:"fingerprint"`
	StartTime   time.Time `json:"start_time"`
	LogDir      string    `json:"log_dir"`
}
