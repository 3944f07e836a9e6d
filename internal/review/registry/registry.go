// Package registry implements the Run Registry from spec.md §4.8: a
// central, file-backed index mapping run identity to checkpoint storage
// location, with topic/fingerprint lookup and heartbeat tracking so crashed
// runs can be told apart from live ones.
package registry

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Status is a RunRegistryEntry's lifecycle state (spec.md §3).
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusAborted   Status = "aborted"
)

// Entry is one row of the Run Registry (spec.md §3 RunRegistryEntry).
type Entry struct {
	RunID       string    `json:"run_id"`
	Topic       string    `json:"topic"`
	Fingerprint string    `json:"config_fingerprint"`
	StorePath   string    `json:"store_path"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	HeartbeatAt time.Time `json:"heartbeat_at"`
}

// Registry is a single-host, file-backed index over run entries, held in
// memory and persisted to "<run_root>/registry.json" on every mutation.
type Registry struct {
	path string
	now  func() time.Time

	mu      sync.RWMutex
	entries map[string]Entry
}

// Open loads (or lazily initializes) the registry rooted at runRoot.
func Open(runRoot string) (*Registry, error) {
	r := &Registry{
		path:    filepath.Join(runRoot, "registry.json"),
		now:     time.Now,
		entries: map[string]Entry{},
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) load() error {
	b, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var entries map[string]Entry
	if err := json.Unmarshal(b, &entries); err != nil {
		return err
	}
	r.entries = entries
	return nil
}

func (r *Registry) persistLocked() error {
	b, err := json.MarshalIndent(r.entries, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(r.path, b)
}

// Register upserts a run entry, setting CreatedAt only the first time a
// run_id is seen (idempotent upsert, spec.md §4.8 register).
func (r *Registry) Register(runID, topic, fingerprint, storePath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	existing, ok := r.entries[runID]
	entry := Entry{
		RunID:       runID,
		Topic:       topic,
		Fingerprint: fingerprint,
		StorePath:   storePath,
		Status:      StatusRunning,
		CreatedAt:   now,
		UpdatedAt:   now,
		HeartbeatAt: now,
	}
	if ok {
		entry.CreatedAt = existing.CreatedAt
		entry.Status = existing.Status
		entry.HeartbeatAt = existing.HeartbeatAt
	}
	r.entries[runID] = entry
	return r.persistLocked()
}

// FindByRunID returns the entry for runID, or (false, nil) if absent, or if
// its StorePath no longer exists on disk (spec.md §4.8: "returns entry if
// store_path still exists; else None").
func (r *Registry) FindByRunID(runID string) (Entry, bool, error) {
	r.mu.RLock()
	entry, ok := r.entries[runID]
	r.mu.RUnlock()
	if !ok {
		return Entry{}, false, nil
	}
	if _, err := os.Stat(entry.StorePath); errors.Is(err, os.ErrNotExist) {
		return Entry{}, false, nil
	} else if err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

// FindByTopic returns every entry whose topic matches (case-insensitive),
// optionally filtered by fingerprint, newest (CreatedAt) first, excluding
// entries whose StorePath no longer exists.
func (r *Registry) FindByTopic(topic string, fingerprint string) ([]Entry, error) {
	normalized := strings.ToLower(strings.TrimSpace(topic))

	r.mu.RLock()
	var candidates []Entry
	for _, e := range r.entries {
		if strings.ToLower(strings.TrimSpace(e.Topic)) != normalized {
			continue
		}
		if fingerprint != "" && e.Fingerprint != fingerprint {
			continue
		}
		candidates = append(candidates, e)
	}
	r.mu.RUnlock()

	var out []Entry
	for _, e := range candidates {
		if _, err := os.Stat(e.StorePath); err == nil {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// UpdateStatus transitions a run's lifecycle status.
func (r *Registry) UpdateStatus(runID string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[runID]
	if !ok {
		return ErrNotFound
	}
	entry.Status = status
	entry.UpdatedAt = r.now().UTC()
	r.entries[runID] = entry
	return r.persistLocked()
}

// UpdateHeartbeat stamps a run's heartbeat_at to now, so observers can tell
// a live run from one whose process crashed mid-phase (spec.md §3: "the
// Orchestrator emits a heartbeat every ≈60s").
func (r *Registry) UpdateHeartbeat(runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[runID]
	if !ok {
		return ErrNotFound
	}
	entry.HeartbeatAt = r.now().UTC()
	r.entries[runID] = entry
	return r.persistLocked()
}

// ErrNotFound is returned by mutating operations on an unregistered run_id.
var ErrNotFound = errors.New("registry: run not found")
