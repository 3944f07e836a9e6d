package config

import (
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// canonical is the subset of ReviewConfig that determines whether two runs
// are resumable into one another (spec.md §3 ConfigFingerprint): topic,
// criteria, date range, target databases, model tiers. Anything else (gate
// thresholds, run root, ...) can change across resumes without forcing a
// fresh run.
type canonical struct {
	Topic              string         `json:"topic"`
	InclusionCriteria  []string       `json:"inclusion_criteria"`
	ExclusionCriteria  []string       `json:"exclusion_criteria"`
	DateRange          DateRange      `json:"date_range"`
	Databases          []string       `json:"databases"`
	ModelTiers         map[string]int `json:"model_tiers"`
}

// Fingerprint computes a deterministic blake3 hash over the canonical form
// of cfg, hex-encoded. Field order within slices is normalized first so
// equivalent configs expressed in different orders still fingerprint
// identically.
func Fingerprint(cfg *ReviewConfig) (string, error) {
	c := canonical{
		Topic:             strings.ToLower(strings.TrimSpace(cfg.Topic)),
		InclusionCriteria: sortedCopy(cfg.InclusionCriteria),
		ExclusionCriteria: sortedCopy(cfg.ExclusionCriteria),
		DateRange:         cfg.DateRange,
		Databases:         sortedCopy(cfg.Databases),
		ModelTiers:        cfg.ModelTiers,
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	h := blake3.New()
	if _, err := h.Write(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
