package registry

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// runSummary mirrors state.RunSummary's on-disk shape without importing the
// state package, since a run_summary.json may be read by recovery tooling
// standing alone from a blown-away registry.
type runSummary struct {
	RunID       string `json:"run_id"`
	Topic       string `json:"topic"`
	Fingerprint string `json:"fingerprint"`
}

// FindByRunIDWithFallback behaves like FindByRunID, but if the registry has
// no row for runID, it looks for "<runRoot>/<runID>/run_summary.json" on
// disk and synthesizes an entry from it (spec.md §4.8: "if the registry row
// is missing but a run_summary.json exists... synthesize an entry").
func (r *Registry) FindByRunIDWithFallback(runRoot, runID string) (Entry, bool, error) {
	entry, ok, err := r.FindByRunID(runID)
	if err != nil {
		return Entry{}, false, err
	}
	if ok {
		return entry, true, nil
	}

	storePath := filepath.Join(runRoot, runID)
	summaryPath := filepath.Join(storePath, "run_summary.json")
	b, err := os.ReadFile(summaryPath)
	if errors.Is(err, os.ErrNotExist) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var summary runSummary
	if err := json.Unmarshal(b, &summary); err != nil {
		return Entry{}, false, err
	}

	return Entry{
		RunID:       runID,
		Topic:       summary.Topic,
		Fingerprint: summary.Fingerprint,
		StorePath:   storePath,
		Status:      StatusRunning,
	}, true, nil
}
