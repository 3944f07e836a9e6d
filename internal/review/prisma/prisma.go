// Package prisma implements the invariant-preserving PRISMA flow counter
// described in spec.md §3/§4.5: a set of monotone counters tracking
// identified -> deduplicated -> screened -> included papers, validated on
// every mutation.
package prisma

import (
	"errors"
	"fmt"
	"maps"
	"sync"
)

// PrismaInvariantViolation is returned by a setter when the proposed update
// would break one of the invariants below; the counter's live state is left
// unchanged (fail-closed).
type PrismaInvariantViolation struct {
	Rule    string
	Message string
}

func (e *PrismaInvariantViolation) Error() string {
	return fmt.Sprintf("prisma invariant violated (%s): %s", e.Rule, e.Message)
}

// State is an immutable snapshot of the PRISMA counters, safe to embed in a
// PhaseCheckpoint.
type State struct {
	Found                map[string]int `json:"found"`
	NoDupes              int            `json:"no_dupes"`
	Screened             int            `json:"screened"`
	ScreenExclusions     int            `json:"screen_exclusions"`
	FulltextSought       int            `json:"fulltext_sought"`
	FulltextNotRetrieved int            `json:"fulltext_not_retrieved"`
	FulltextAssessed     int            `json:"fulltext_assessed"`
	FulltextExclusions   int            `json:"fulltext_exclusions"`
	Qualitative          int            `json:"qualitative"`
	Quantitative         int            `json:"quantitative"`
}

func (s State) clone() State {
	out := s
	out.Found = maps.Clone(s.Found)
	if out.Found == nil {
		out.Found = map[string]int{}
	}
	return out
}

func (s State) foundTotal() int {
	total := 0
	for _, n := range s.Found {
		total += n
	}
	return total
}

// validate checks every invariant in spec.md §3 against a candidate state.
func (s State) validate() error {
	if s.foundTotal() < s.NoDupes {
		return &PrismaInvariantViolation{"sum(found) >= no_dupes", fmt.Sprintf("sum(found)=%d no_dupes=%d", s.foundTotal(), s.NoDupes)}
	}
	if s.NoDupes < s.Screened {
		return &PrismaInvariantViolation{"no_dupes >= screened", fmt.Sprintf("no_dupes=%d screened=%d", s.NoDupes, s.Screened)}
	}
	if s.Screened-s.ScreenExclusions != s.FulltextSought {
		return &PrismaInvariantViolation{
			"screened - screen_exclusions = fulltext_sought",
			fmt.Sprintf("screened=%d screen_exclusions=%d fulltext_sought=%d", s.Screened, s.ScreenExclusions, s.FulltextSought),
		}
	}
	if s.FulltextSought < s.FulltextNotRetrieved {
		return &PrismaInvariantViolation{"fulltext_sought >= fulltext_not_retrieved", fmt.Sprintf("fulltext_sought=%d fulltext_not_retrieved=%d", s.FulltextSought, s.FulltextNotRetrieved)}
	}
	if s.FulltextAssessed != s.FulltextSought-s.FulltextNotRetrieved {
		return &PrismaInvariantViolation{
			"fulltext_assessed = fulltext_sought - fulltext_not_retrieved",
			fmt.Sprintf("fulltext_assessed=%d fulltext_sought=%d fulltext_not_retrieved=%d", s.FulltextAssessed, s.FulltextSought, s.FulltextNotRetrieved),
		}
	}
	if s.FulltextAssessed < s.FulltextExclusions {
		return &PrismaInvariantViolation{"fulltext_assessed >= fulltext_exclusions", fmt.Sprintf("fulltext_assessed=%d fulltext_exclusions=%d", s.FulltextAssessed, s.FulltextExclusions)}
	}
	included := s.FulltextAssessed - s.FulltextExclusions
	if s.Qualitative < s.Quantitative {
		return &PrismaInvariantViolation{"qualitative >= quantitative", fmt.Sprintf("qualitative=%d quantitative=%d", s.Qualitative, s.Quantitative)}
	}
	if s.Qualitative > included {
		return &PrismaInvariantViolation{"qualitative <= fulltext_assessed - fulltext_exclusions", fmt.Sprintf("qualitative=%d included=%d", s.Qualitative, included)}
	}
	if s.Quantitative > included {
		return &PrismaInvariantViolation{"quantitative <= fulltext_assessed - fulltext_exclusions", fmt.Sprintf("quantitative=%d included=%d", s.Quantitative, included)}
	}
	return nil
}

// Counter owns the live PRISMA state behind a mutex; every setter
// copy-validates the proposed state before swapping it in, so a rejected
// update never leaves partial writes visible to a concurrent reader.
type Counter struct {
	mu    sync.Mutex
	state State
}

// NewCounter returns a zeroed, invariant-satisfying counter.
func NewCounter() *Counter {
	return &Counter{state: State{Found: map[string]int{}}}
}

// Counts returns a snapshot of the current state.
func (c *Counter) Counts() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// ByDatabase returns a copy of the per-database "found" breakdown.
func (c *Counter) ByDatabase() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.state.Found)
}

func (c *Counter) apply(mutate func(*State)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	candidate := c.state.clone()
	mutate(&candidate)
	if err := candidate.validate(); err != nil {
		return err
	}
	c.state = candidate
	return nil
}

// SetFound replaces the per-database identified counts.
func (c *Counter) SetFound(byDB map[string]int) error {
	return c.apply(func(s *State) { s.Found = maps.Clone(byDB) })
}

// AddFound increments the identified count for a single database.
func (c *Counter) AddFound(db string, n int) error {
	return c.apply(func(s *State) {
		if s.Found == nil {
			s.Found = map[string]int{}
		}
		s.Found[db] += n
	})
}

func (c *Counter) SetNoDupes(n int) error {
	return c.apply(func(s *State) { s.NoDupes = n })
}

func (c *Counter) SetScreened(n int) error {
	return c.apply(func(s *State) { s.Screened = n })
}

func (c *Counter) SetScreenExclusions(n int) error {
	return c.apply(func(s *State) { s.ScreenExclusions = n })
}

func (c *Counter) SetFulltextSought(n int) error {
	return c.apply(func(s *State) { s.FulltextSought = n })
}

func (c *Counter) SetFulltextNotRetrieved(n int) error {
	return c.apply(func(s *State) { s.FulltextNotRetrieved = n })
}

func (c *Counter) SetFulltextAssessed(n int) error {
	return c.apply(func(s *State) { s.FulltextAssessed = n })
}

func (c *Counter) SetFulltextExclusions(n int) error {
	return c.apply(func(s *State) { s.FulltextExclusions = n })
}

func (c *Counter) SetQualitative(n int) error {
	return c.apply(func(s *State) { s.Qualitative = n })
}

func (c *Counter) SetQuantitative(n int) error {
	return c.apply(func(s *State) { s.Quantitative = n })
}

// ApplyScreening atomically sets screened and screen_exclusions together,
// and derives fulltext_sought = screened - screen_exclusions (and with it
// fulltext_assessed = fulltext_sought - fulltext_not_retrieved), since the
// invariants tie these together and setting them one at a time would
// transiently violate them.
func (c *Counter) ApplyScreening(screened, exclusions int) error {
	return c.apply(func(s *State) {
		s.Screened = screened
		s.ScreenExclusions = exclusions
		s.FulltextSought = screened - exclusions
		s.FulltextAssessed = s.FulltextSought - s.FulltextNotRetrieved
	})
}

// ApplyFullText atomically sets the full-text retrieval/assessment counts.
func (c *Counter) ApplyFullText(notRetrieved, exclusions int) error {
	return c.apply(func(s *State) {
		s.FulltextNotRetrieved = notRetrieved
		s.FulltextAssessed = s.FulltextSought - notRetrieved
		s.FulltextExclusions = exclusions
	})
}

// ApplySynthesis atomically sets the qualitative/quantitative synthesis
// counts.
func (c *Counter) ApplySynthesis(qualitative, quantitative int) error {
	return c.apply(func(s *State) {
		s.Qualitative = qualitative
		s.Quantitative = quantitative
	})
}

// Restore replaces the live state wholesale from a loaded checkpoint
// snapshot, without invariant re-validation bypass: it still refuses a
// snapshot that is internally inconsistent (e.g. a hand-edited checkpoint).
func (c *Counter) Restore(s State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cloned := s.clone()
	if err := cloned.validate(); err != nil {
		return err
	}
	c.state = cloned
	return nil
}

// IsInvariantViolation reports whether err is a PrismaInvariantViolation.
func IsInvariantViolation(err error) bool {
	var v *PrismaInvariantViolation
	return errors.As(err, &v)
}
