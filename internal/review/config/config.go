// Package config loads and validates the ReviewConfig that parameterizes an
// entire run: topic, eligibility criteria, target databases, model tiers,
// and reliability-gate thresholds (spec.md §3 TopicContext and
// ConfigFingerprint).
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DateRange bounds publication dates eligible for inclusion.
type DateRange struct {
	Start string `json:"start,omitempty" yaml:"start,omitempty"`
	End   string `json:"end,omitempty" yaml:"end,omitempty"`
}

// GateThresholds configures the Reliability Gates (spec.md §4.11).
type GateThresholds struct {
	MinCitationCoverage float64 `json:"min_citation_coverage" yaml:"min_citation_coverage"`
	MaxCostUSD          float64 `json:"max_cost_usd" yaml:"max_cost_usd"`
	StrictMode          bool    `json:"strict_mode" yaml:"strict_mode"`
}

// ReviewConfig is the effective, validated configuration for one review run.
type ReviewConfig struct {
	Topic              string            `json:"topic" yaml:"topic"`
	ResearchQuestion    string            `json:"research_question" yaml:"research_question"`
	InclusionCriteria  []string          `json:"inclusion_criteria" yaml:"inclusion_criteria"`
	ExclusionCriteria  []string          `json:"exclusion_criteria" yaml:"exclusion_criteria"`
	Keywords           []string          `json:"keywords" yaml:"keywords"`
	DateRange          DateRange         `json:"date_range" yaml:"date_range"`
	Databases          []string          `json:"databases" yaml:"databases"`
	ModelTiers         map[string]int    `json:"model_tiers" yaml:"model_tiers"` // tier name -> requests per minute
	Gates              GateThresholds    `json:"gates" yaml:"gates"`
	RunRoot            string            `json:"run_root" yaml:"run_root"`
	EnabledOptions     map[string]bool   `json:"enabled_options,omitempty" yaml:"enabled_options,omitempty"`
}

// Load reads a ReviewConfig from path, dispatching on extension (.json vs.
// anything else treated as YAML), rejecting unknown fields and trailing
// content, then applies defaults and validates required fields.
func Load(path string) (*ReviewConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg ReviewConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := decodeJSONStrict(b, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := decodeYAMLStrict(b, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeJSONStrict(b []byte, cfg *ReviewConfig) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return fmt.Errorf("multiple top-level JSON values are not allowed")
		}
		return err
	}
	return nil
}

func decodeYAMLStrict(b []byte, cfg *ReviewConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return fmt.Errorf("multiple YAML documents are not allowed")
		}
		return err
	}
	return nil
}

func applyDefaults(cfg *ReviewConfig) {
	if cfg.RunRoot == "" {
		cfg.RunRoot = "data/runs"
	}
	if cfg.ModelTiers == nil {
		cfg.ModelTiers = map[string]int{}
	}
	if cfg.Gates.MinCitationCoverage == 0 {
		cfg.Gates.MinCitationCoverage = 0.95
	}
}

func validate(cfg *ReviewConfig) error {
	if strings.TrimSpace(cfg.Topic) == "" {
		return fmt.Errorf("config: topic is required")
	}
	if len(cfg.Databases) == 0 {
		return fmt.Errorf("config: at least one database is required")
	}
	if len(cfg.InclusionCriteria) == 0 {
		return fmt.Errorf("config: at least one inclusion criterion is required")
	}
	return nil
}
