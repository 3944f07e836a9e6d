package executor

import (
	"context"
	"fmt"

	"github.com/danshapiro/litreview/internal/review/config"
	"github.com/danshapiro/litreview/internal/review/phase"
	"github.com/danshapiro/litreview/internal/review/prisma"
	"github.com/danshapiro/litreview/internal/review/reviewlog"
	"github.com/danshapiro/litreview/internal/review/state"
)

// Executor runs a Registry's phases in dependency order against a Store and
// a PRISMA Counter, checkpointing each successful, checkpointable phase.
type Executor struct {
	Registry *phase.Registry
	Store    *state.Store
	Counter  *prisma.Counter
	Log      *reviewlog.Log
}

// New builds an Executor over the given registry/store/counter.
func New(reg *phase.Registry, store *state.Store, counter *prisma.Counter, log *reviewlog.Log) *Executor {
	return &Executor{Registry: reg, Store: store, Counter: counter, Log: log}
}

// Preload seeds a resumed run. State is the blackboard, keyed by phase name,
// holding each already-checkpointed phase's decoded payload. Completed names
// exactly those phases, independently of State's keys: a phase only counts
// as already done if its name appears here, so a resume that (for whatever
// reason) hydrated no usable payload for a phase still re-runs it rather
// than silently treating it as satisfied.
type Preload struct {
	State     map[string]any
	Completed []string
}

// Run executes every registered phase in dependency order (spec.md §4.9).
// runID and cfg parameterize checkpointing and EnabledPredicate evaluation;
// preload seeds the blackboard/completed set from a resumed run (the zero
// Preload for a fresh run); startFromOrdinal, if > 0, skips phases whose
// Ordinal is below it (their preload state/completion must already be
// present for anything that depends on them).
//
// Returns the final accumulated state (phase name -> payload) and, if a
// required phase failed or a KindData error occurred anywhere, the error
// that aborted the run.
func (e *Executor) Run(ctx context.Context, runID string, cfg *config.ReviewConfig, startFromOrdinal int, preload Preload) (map[string]any, error) {
	order, err := e.Registry.ExecutionOrder()
	if err != nil {
		return nil, err
	}

	accumulated := make(map[string]any, len(preload.State))
	for k, v := range preload.State {
		accumulated[k] = v
	}
	completed := make(map[string]struct{}, len(preload.Completed))
	for _, name := range preload.Completed {
		completed[name] = struct{}{}
	}

	tc := topicContextFromConfig(cfg)

	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return accumulated, err
		}

		def, _ := e.Registry.Get(name)

		if _, already := completed[name]; already {
			continue
		}
		if def.Ordinal < startFromOrdinal {
			// Resume is expected to have preloaded this phase's state; if it
			// didn't, downstream dependency checks will catch the gap.
			continue
		}

		missing := unmetDependencies(def.Dependencies, completed)
		if len(missing) > 0 {
			return accumulated, &DependencyUnmetError{Phase: name, Missing: missing}
		}

		if !def.Enabled(cfg) {
			e.logEvent(runID, name, "phase_skipped", nil)
			completed[name] = struct{}{}
			continue
		}

		e.logEvent(runID, name, "phase_started", nil)
		result := e.runWithBoundary(ctx, def, accumulated)

		switch result.Status {
		case ResultCompleted:
			accumulated[name] = result.Payload
			completed[name] = struct{}{}
			if def.Checkpoint {
				if err := e.checkpoint(runID, name, result.Payload, def.Dependencies, tc); err != nil {
					return accumulated, fmt.Errorf("executor: checkpoint phase %q: %w", name, err)
				}
			}
			e.logEvent(runID, name, "phase_completed", nil)

		case ResultSkipped:
			e.logEvent(runID, name, "phase_skipped", map[string]any{"reason": result.Reason})
			completed[name] = struct{}{}

		case ResultFailed:
			e.logEvent(runID, name, "phase_failed", map[string]any{"error": result.Err.Error(), "kind": string(result.Kind)})
			if def.Required || result.Kind.fatal() {
				return accumulated, result.Err
			}
			if e.Log != nil {
				_ = e.Log.Warn(runID, name, fmt.Sprintf("optional phase failed, continuing: %v", result.Err))
			}
			completed[name] = struct{}{}
		}
	}

	return accumulated, nil
}

func unmetDependencies(deps []string, completed map[string]struct{}) []string {
	var missing []string
	for _, d := range deps {
		if _, ok := completed[d]; !ok {
			missing = append(missing, d)
		}
	}
	return missing
}

// runWithBoundary invokes def.Handler inside the Error Boundary (spec.md
// §4.10): a recovered panic becomes a KindUnknown Failed result, and any
// returned error is classified via classify.
func (e *Executor) runWithBoundary(ctx context.Context, def phase.Definition, state map[string]any) (result PhaseResult) {
	defer func() {
		if r := recover(); r != nil {
			result = PhaseResult{Status: ResultFailed, Err: fmt.Errorf("panic in phase %q: %v", def.Name, r), Kind: KindUnknown}
		}
	}()

	payload, err := def.Handler(ctx, state)
	if err != nil {
		return PhaseResult{Status: ResultFailed, Err: err, Kind: classify(err)}
	}
	return PhaseResult{Status: ResultCompleted, Payload: payload}
}

func (e *Executor) checkpoint(runID, phaseName string, payload any, deps []string, tc state.TopicContext) error {
	snapshot := state.Checkpoint{
		Dependencies:      deps,
		TopicContext:      tc,
		PrismaCounts:      e.Counter.Counts(),
		DatabaseBreakdown: e.Counter.ByDatabase(),
	}
	return e.Store.Save(runID, phaseName, payload, snapshot)
}

// topicContextFromConfig carries the run's immutable research question and
// eligibility criteria into every checkpoint (spec.md §3 TopicContext), so
// Store.FindByTopic can match on it without consulting the Run Registry.
func topicContextFromConfig(cfg *config.ReviewConfig) state.TopicContext {
	return state.TopicContext{
		Topic:             cfg.Topic,
		ResearchQuestion:  cfg.ResearchQuestion,
		InclusionCriteria: cfg.InclusionCriteria,
		ExclusionCriteria: cfg.ExclusionCriteria,
		DateRangeStart:    cfg.DateRange.Start,
		DateRangeEnd:      cfg.DateRange.End,
		Keywords:          cfg.Keywords,
	}
}

func (e *Executor) logEvent(runID, phaseName, kind string, fields map[string]any) {
	if e.Log == nil {
		return
	}
	_ = e.Log.Progress(runID, phaseName, kind, fields)
}
