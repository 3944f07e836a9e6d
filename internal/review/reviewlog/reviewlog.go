// Package reviewlog is the run's ambient activity feed: an append-only
// NDJSON progress log plus an in-memory warnings ring, grounded on the
// teacher's Engine.Warn/appendProgress and runstate.LoadSnapshot's
// last-line-of-progress.ndjson read pattern. There is no structured logging
// library in play here because the teacher itself has none for this
// concern — it writes plain NDJSON event lines directly with
// encoding/json, which this package reproduces.
package reviewlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Event is one line of the progress feed.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	RunID     string         `json:"run_id,omitempty"`
	Phase     string         `json:"phase,omitempty"`
	Kind      string         `json:"event"`
	Message   string         `json:"message,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Log appends progress events to "<logs_root>/progress.ndjson" and keeps an
// in-memory ring of recent warnings, mirroring the teacher's
// Engine.Warnings / Warn pairing.
type Log struct {
	path string
	now  func() time.Time

	mu         sync.Mutex
	f          *os.File
	warnings   []string
	maxWarnings int
}

// Open creates (or appends to) the progress log under logsRoot.
func Open(logsRoot string) (*Log, error) {
	if err := os.MkdirAll(logsRoot, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(logsRoot, "progress.ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Log{path: path, now: time.Now, f: f, maxWarnings: 1000}, nil
}

// Close closes the underlying file handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

func (l *Log) append(ev Event) error {
	ev.Timestamp = l.now().UTC()
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.f.Write(b)
	return err
}

// Progress appends a generic progress event for phase.
func (l *Log) Progress(runID, phase, kind string, fields map[string]any) error {
	return l.append(Event{RunID: runID, Phase: phase, Kind: kind, Fields: fields})
}

// Warn records a warning both into the progress feed and into the
// in-memory warnings ring, mirroring Engine.Warn.
func (l *Log) Warn(runID, phase, msg string) error {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return nil
	}
	l.mu.Lock()
	l.warnings = append(l.warnings, msg)
	if len(l.warnings) > l.maxWarnings {
		l.warnings = l.warnings[len(l.warnings)-l.maxWarnings:]
	}
	l.mu.Unlock()

	return l.append(Event{RunID: runID, Phase: phase, Kind: "warning", Message: msg})
}

// Warnings returns a copy of the recorded warnings, at most the most recent
// maxWarnings (1000) of them.
func (l *Log) Warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.warnings...)
}

// ErrNoEvents is returned by LastEvent when the progress log has no lines.
var ErrNoEvents = errors.New("reviewlog: no events recorded")

// LastEvent scans "<logs_root>/progress.ndjson" and returns the final line,
// for crash-recovery snapshotting of "what was this run last doing."
// Mirrors runstate.readLastProgressEvent.
func LastEvent(logsRoot string) (Event, error) {
	path := filepath.Join(logsRoot, "progress.ndjson")
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Event{}, ErrNoEvents
	}
	if err != nil {
		return Event{}, err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	last := ""
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			last = line
		}
	}
	if err := sc.Err(); err != nil {
		return Event{}, err
	}
	if last == "" {
		return Event{}, ErrNoEvents
	}

	var ev Event
	if err := json.Unmarshal([]byte(last), &ev); err != nil {
		return Event{}, fmt.Errorf("reviewlog: decode last event: %w", err)
	}
	return ev, nil
}
