package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrNotFound is returned by Load when no checkpoint exists for the given
// run/phase pair.
var ErrNotFound = errors.New("state: checkpoint not found")

// Store is the file-backed Checkpoint Store from spec.md §4.7: one
// directory per run under RunRoot, one "<phase>_state.json" file per
// checkpointed phase, plus a "run_summary.json" manifest.
type Store struct {
	RunRoot    string
	Serializer Serializer
}

// NewStore returns a Store rooted at runRoot, using JSONSerializer.
func NewStore(runRoot string) *Store {
	return &Store{RunRoot: runRoot, Serializer: JSONSerializer{}}
}

func (s *Store) runDir(runID string) string {
	return filepath.Join(s.RunRoot, runID)
}

func (s *Store) phasePath(runID, phase string) string {
	return filepath.Join(s.runDir(runID), phase+"_state.json")
}

func (s *Store) summaryPath(runID string) string {
	return filepath.Join(s.runDir(runID), "run_summary.json")
}

// SaveSummary writes (or rewrites) the run's top-level manifest atomically.
func (s *Store) SaveSummary(summary RunSummary) error {
	b, err := s.Serializer.Marshal(summary)
	if err != nil {
		return fmt.Errorf("state: marshal run summary: %w", err)
	}
	return writeFileAtomic(s.summaryPath(summary.RunID), b)
}

// LoadSummary reads a run's manifest.
func (s *Store) LoadSummary(runID string) (RunSummary, error) {
	var out RunSummary
	b, err := os.ReadFile(s.summaryPath(runID))
	if errors.Is(err, os.ErrNotExist) {
		return out, ErrNotFound
	}
	if err != nil {
		return out, err
	}
	if err := s.Serializer.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("state: unmarshal run summary: %w", err)
	}
	return out, nil
}

// Save writes a phase's checkpoint, deps, and PRISMA snapshot to
// "<run_id>/<phase>_state.json" atomically (spec.md §4.7 save). Re-running a
// phase overwrites its checkpoint in place.
func (s *Store) Save(runID, phase string, payload any, snapshot Checkpoint) error {
	data, err := s.Serializer.Marshal(payload)
	if err != nil {
		return fmt.Errorf("state: marshal payload for phase %q: %w", phase, err)
	}
	cp := snapshot
	cp.Phase = phase
	cp.RunID = runID
	cp.Timestamp = time.Now().UTC()
	cp.Data = data

	b, err := s.Serializer.Marshal(cp)
	if err != nil {
		return fmt.Errorf("state: marshal checkpoint for phase %q: %w", phase, err)
	}
	return writeFileAtomic(s.phasePath(runID, phase), b)
}

// Load reads a single phase's checkpoint and unmarshals its payload into
// out. Returns ErrNotFound if no checkpoint exists for this run/phase.
func (s *Store) Load(runID, phase string, out any) (Checkpoint, error) {
	var cp Checkpoint
	b, err := os.ReadFile(s.phasePath(runID, phase))
	if errors.Is(err, os.ErrNotExist) {
		return cp, ErrNotFound
	}
	if err != nil {
		return cp, err
	}
	if err := s.Serializer.Unmarshal(b, &cp); err != nil {
		return cp, fmt.Errorf("state: unmarshal checkpoint for phase %q: %w", phase, err)
	}
	if out != nil {
		if err := s.Serializer.Unmarshal(cp.Data, out); err != nil {
			return cp, fmt.Errorf("state: unmarshal payload for phase %q: %w", phase, err)
		}
	}
	return cp, nil
}

// LoadChain loads each named phase's checkpoint in order and merges their
// raw data fields into one map, duplicate keys resolved last-writer-wins;
// the returned Checkpoint's metadata (PRISMA counts, topic context,
// dependencies) comes from the latest phase present in the chain, per
// spec.md §4.7 load_chain.
func (s *Store) LoadChain(runID string, phases []string) (Checkpoint, map[string]any, error) {
	merged := map[string]any{}
	var latest Checkpoint
	found := false

	for _, phase := range phases {
		var fields map[string]any
		cp, err := s.Load(runID, phase, &fields)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return Checkpoint{}, nil, err
		}
		for k, v := range fields {
			merged[k] = v
		}
		latest = cp
		found = true
	}
	if !found {
		return Checkpoint{}, nil, ErrNotFound
	}
	return latest, merged, nil
}

// completeness counts the distinct checkpointed phases present for one run
// directory.
func completeness(runDir string) (int, error) {
	matches, err := doublestar.Glob(os.DirFS(runDir), "*_state.json")
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}

// topicCandidate is one run directory considered by FindByTopic.
type topicCandidate struct {
	summary      RunSummary
	completeness int
	mtime        time.Time
}

// betterThan reports whether c should be preferred over other: highest
// completeness score wins, ties broken by most recent manifest mtime.
func (c topicCandidate) betterThan(other topicCandidate) bool {
	if c.completeness != other.completeness {
		return c.completeness > other.completeness
	}
	return c.mtime.After(other.mtime)
}

// FindByTopic scans every run directory under RunRoot, reads its manifest,
// and returns the run whose normalized topic matches, breaking ties by
// highest completeness score then most recent manifest mtime (spec.md §4.7
// find_by_topic).
func (s *Store) FindByTopic(topic string) (RunSummary, bool, error) {
	normalized := strings.ToLower(strings.TrimSpace(topic))

	matches, err := doublestar.Glob(os.DirFS(s.RunRoot), "*/run_summary.json")
	if errors.Is(err, os.ErrNotExist) {
		return RunSummary{}, false, nil
	}
	if err != nil {
		return RunSummary{}, false, err
	}

	var best *topicCandidate
	for _, rel := range matches {
		summaryPath := filepath.Join(s.RunRoot, filepath.FromSlash(rel))
		info, err := os.Stat(summaryPath)
		if err != nil {
			continue
		}
		b, err := os.ReadFile(summaryPath)
		if err != nil {
			continue
		}
		var summary RunSummary
		if err := s.Serializer.Unmarshal(b, &summary); err != nil {
			continue
		}
		if strings.ToLower(strings.TrimSpace(summary.Topic)) != normalized {
			continue
		}
		score, err := completeness(filepath.Dir(summaryPath))
		if err != nil {
			continue
		}
		c := topicCandidate{summary: summary, completeness: score, mtime: info.ModTime()}
		if best == nil || c.betterThan(*best) {
			best = &c
		}
	}
	if best == nil {
		return RunSummary{}, false, nil
	}
	return best.summary, true, nil
}

// ListRunDirs returns every run_id directory present under RunRoot, sorted.
func (s *Store) ListRunDirs() ([]string, error) {
	entries, err := os.ReadDir(s.RunRoot)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
