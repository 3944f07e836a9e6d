// Package orchestrator ties config, registry, state, phase, executor, and
// gate together into the single top-level operation described by spec.md
// §4.12: run(config) -> RunResult.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/danshapiro/litreview/internal/review/config"
	"github.com/danshapiro/litreview/internal/review/executor"
	"github.com/danshapiro/litreview/internal/review/gate"
	"github.com/danshapiro/litreview/internal/review/phase"
	"github.com/danshapiro/litreview/internal/review/prisma"
	"github.com/danshapiro/litreview/internal/review/registry"
	"github.com/danshapiro/litreview/internal/review/reviewlog"
	"github.com/danshapiro/litreview/internal/review/state"
)

// defaultHeartbeatInterval matches spec.md §4.12 step 4 and
// original_source/src/db/workflow_registry.py's update_heartbeat docstring
// ("called every 60 seconds... so /api/history can detect workflows stuck
// as 'running' after a hard crash").
const defaultHeartbeatInterval = 60 * time.Second

// RunOptions parameterizes one invocation of Orchestrator.Run.
type RunOptions struct {
	// ResumeRunID, if set, resolves the run directly via the Run Registry
	// (falling back to an orphaned run_summary.json) instead of matching on
	// topic+fingerprint.
	ResumeRunID string

	// StrictGates forces strict Reliability Gate enforcement even if
	// cfg.Gates.StrictMode is false.
	StrictGates bool

	GateThresholds gate.Thresholds
	Contract       gate.Contract

	// FinalState builds the gate.FinalState snapshot from the executor's
	// accumulated phase outputs and the run's PRISMA counts. Left nil, an
	// empty FinalState is used: every capability check and the
	// checkpoint_resume gate fail, while citation_quality (zero citations)
	// and cost_budget (zero observed cost) pass.
	FinalState func(accumulated map[string]any, counts prisma.State) gate.FinalState

	// HeartbeatInterval overrides defaultHeartbeatInterval; tests shrink
	// this to avoid a 60s sleep.
	HeartbeatInterval time.Duration
}

// RunResult is the top-level outcome of Orchestrator.Run (spec.md §4.12).
type RunResult struct {
	RunID              string
	Status             registry.Status
	State              map[string]any
	GateResults        []gate.Result
	ContractValidation gate.ContractValidation
}

// Orchestrator wires together the components a single review run needs.
type Orchestrator struct {
	Phases   *phase.Registry
	Registry *registry.Registry
	Store    *state.Store
	Log      *reviewlog.Log
}

// New builds an Orchestrator over the given phase registry, run registry,
// checkpoint store, and progress log.
func New(phases *phase.Registry, reg *registry.Registry, store *state.Store, log *reviewlog.Log) *Orchestrator {
	return &Orchestrator{Phases: phases, Registry: reg, Store: store, Log: log}
}

// Run executes the 7-step sequence from spec.md §4.12: fingerprint the
// config, resolve an existing run or allocate a fresh one, run phases to
// completion under a heartbeat, then evaluate the Reliability Gates.
func (o *Orchestrator) Run(ctx context.Context, cfg *config.ReviewConfig, opts RunOptions) (*RunResult, error) {
	fingerprint, err := config.Fingerprint(cfg)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: fingerprint config: %w", err)
	}

	runID, preload, counts, err := o.resolveRun(cfg, opts, fingerprint)
	if err != nil {
		return nil, err
	}

	counter := prisma.NewCounter()
	if err := counter.Restore(counts); err != nil {
		return nil, fmt.Errorf("orchestrator: restore prisma counts for run %q: %w", runID, err)
	}

	interval := opts.HeartbeatInterval
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	stopHeartbeat := o.startHeartbeat(runID, interval)
	defer stopHeartbeat()

	ex := executor.New(o.Phases, o.Store, counter, o.Log)
	accumulated, runErr := ex.Run(ctx, runID, cfg, 0, preload)
	if runErr != nil {
		_ = o.Registry.UpdateStatus(runID, registry.StatusFailed)
		return &RunResult{RunID: runID, Status: registry.StatusFailed, State: accumulated}, runErr
	}

	var finalState gate.FinalState
	if opts.FinalState != nil {
		finalState = opts.FinalState(accumulated, counter.Counts())
	}

	contract := opts.Contract
	if len(contract.RequiredSections) == 0 {
		contract = gate.DefaultContract()
	}
	validation := gate.ValidateContract(finalState, contract)
	results := gate.Run(finalState, opts.GateThresholds)
	failed := gate.FailedNames(results)

	strict := opts.StrictGates || cfg.Gates.StrictMode
	status := registry.StatusCompleted
	var finalErr error
	if len(failed) > 0 && strict {
		status = registry.StatusFailed
		finalErr = &executor.GateFailedError{Failures: failed}
	}
	if !validation.Valid && strict {
		status = registry.StatusFailed
		if finalErr == nil {
			finalErr = &executor.GateFailedError{Failures: validation.MissingCapabilities}
		}
	}

	if err := o.Registry.UpdateStatus(runID, status); err != nil {
		return nil, fmt.Errorf("orchestrator: finalize registry status for run %q: %w", runID, err)
	}

	return &RunResult{
		RunID:              runID,
		Status:             status,
		State:              accumulated,
		GateResults:        results,
		ContractValidation: validation,
	}, finalErr
}

// resolveRun implements spec.md §4.12 steps 2-3: locate an existing run via
// ResumeRunID or topic+fingerprint, hydrating its checkpoint chain; else
// allocate a fresh RunID and register it as running.
func (o *Orchestrator) resolveRun(cfg *config.ReviewConfig, opts RunOptions, fingerprint string) (runID string, preload executor.Preload, counts prisma.State, err error) {
	if opts.ResumeRunID != "" {
		entry, ok, ferr := o.Registry.FindByRunIDWithFallback(cfg.RunRoot, opts.ResumeRunID)
		if ferr != nil {
			return "", executor.Preload{}, prisma.State{}, fmt.Errorf("orchestrator: resolve resume id %q: %w", opts.ResumeRunID, ferr)
		}
		if ok {
			// Re-register so an entry synthesized from run_summary.json has a
			// registry row for the heartbeat and the final status update.
			if rerr := o.Registry.Register(entry.RunID, entry.Topic, entry.Fingerprint, entry.StorePath); rerr != nil {
				return "", executor.Preload{}, prisma.State{}, fmt.Errorf("orchestrator: register resumed run %q: %w", entry.RunID, rerr)
			}
			return o.hydrate(entry.RunID)
		}
		return "", executor.Preload{}, prisma.State{}, fmt.Errorf("orchestrator: no run found for resume id %q", opts.ResumeRunID)
	}

	entries, ferr := o.Registry.FindByTopic(cfg.Topic, fingerprint)
	if ferr != nil {
		return "", executor.Preload{}, prisma.State{}, fmt.Errorf("orchestrator: find existing run for topic %q: %w", cfg.Topic, ferr)
	}
	if len(entries) > 0 {
		return o.hydrate(entries[0].RunID)
	}

	return o.startFresh(cfg, fingerprint)
}

// hydrate loads each checkpointed phase for an existing run individually, so
// that a phase only counts as already-done when its own checkpoint file was
// found: used both for an explicit resume and an automatic topic+fingerprint
// match. It never relies on Store.LoadChain's flat, last-writer-wins field
// merge to decide completion, since that merge tracks payload keys, not
// phase names, and a phase can checkpoint a payload with no fields at all.
func (o *Orchestrator) hydrate(runID string) (string, executor.Preload, prisma.State, error) {
	allPhases, err := o.Phases.ExecutionOrder()
	if err != nil {
		return "", executor.Preload{}, prisma.State{}, fmt.Errorf("orchestrator: compute execution order: %w", err)
	}

	blackboard := map[string]any{}
	var completed []string
	var latest state.Checkpoint
	found := false

	for _, phaseName := range allPhases {
		var payload any
		cp, err := o.Store.Load(runID, phaseName, &payload)
		if errors.Is(err, state.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", executor.Preload{}, prisma.State{}, fmt.Errorf("orchestrator: hydrate run %q phase %q: %w", runID, phaseName, err)
		}
		blackboard[phaseName] = payload
		completed = append(completed, phaseName)
		latest = cp
		found = true
	}
	if !found {
		return runID, executor.Preload{}, prisma.State{}, nil
	}
	return runID, executor.Preload{State: blackboard, Completed: completed}, latest.PrismaCounts, nil
}

// startFresh implements spec.md §4.12 step 3: allocate a new RunID, create a
// fresh store directory, and register the run as running.
func (o *Orchestrator) startFresh(cfg *config.ReviewConfig, fingerprint string) (string, executor.Preload, prisma.State, error) {
	runID := ulid.Make().String()
	storePath := filepath.Join(o.Store.RunRoot, runID)

	summary := state.RunSummary{
		RunID:       runID,
		Topic:       cfg.Topic,
		Fingerprint: fingerprint,
		StartTime:   time.Now().UTC(),
		LogDir:      storePath,
	}
	if err := o.Store.SaveSummary(summary); err != nil {
		return "", executor.Preload{}, prisma.State{}, fmt.Errorf("orchestrator: initialize run %q: %w", runID, err)
	}
	if err := o.Registry.Register(runID, cfg.Topic, fingerprint, storePath); err != nil {
		return "", executor.Preload{}, prisma.State{}, fmt.Errorf("orchestrator: register run %q: %w", runID, err)
	}
	return runID, executor.Preload{}, prisma.State{}, nil
}

// startHeartbeat runs registry.UpdateHeartbeat every interval until the
// returned stop function is called, matching spec.md §4.12 step 4.
func (o *Orchestrator) startHeartbeat(runID string, interval time.Duration) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = o.Registry.UpdateHeartbeat(runID)
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
