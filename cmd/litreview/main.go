// Command litreview is an illustrative CLI surface over the review
// orchestrator, in the shape of the teacher's cmd/kilroy/main.go: a manual
// flag-parsing subcommand dispatcher with a signal-cancellable context.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/danshapiro/litreview/internal/review/config"
	"github.com/danshapiro/litreview/internal/review/gate"
	"github.com/danshapiro/litreview/internal/review/orchestrator"
	"github.com/danshapiro/litreview/internal/review/phase"
	"github.com/danshapiro/litreview/internal/review/prisma"
	"github.com/danshapiro/litreview/internal/review/registry"
	"github.com/danshapiro/litreview/internal/review/review"
	"github.com/danshapiro/litreview/internal/review/reviewlog"
	"github.com/danshapiro/litreview/internal/review/state"
)

func signalCancelContext() (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(context.Background())
	sigCh := make(chan os.Signal, 1)
	stopCh := make(chan struct{})
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for {
			select {
			case sig := <-sigCh:
				cancel(fmt.Errorf("stopped by signal %s", sig.String()))
			case <-stopCh:
				return
			}
		}
	}()
	cleanup := func() {
		signal.Stop(sigCh)
		close(stopCh)
		cancel(nil)
	}
	return ctx, cleanup
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		os.Exit(runCmd(os.Args[2:]))
	case "status":
		os.Exit(statusCmd(os.Args[2:]))
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  litreview run --config <review.yaml> [--resume-from <run_id>] [--strict]")
	fmt.Fprintln(os.Stderr, "  litreview status --run-root <dir> --run-id <id>")
}

// Exit codes: 0 success, 1 bad arguments, 2 config error, 3 run failure
// (required phase failed or strict-mode gates rejected the run).
func runCmd(args []string) int {
	var configPath, resumeFrom string
	var strict bool

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--config requires a value")
				return 1
			}
			configPath = args[i]
		case "--resume-from":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--resume-from requires a value")
				return 1
			}
			resumeFrom = args[i]
		case "--strict":
			strict = true
		default:
			fmt.Fprintf(os.Stderr, "unknown flag %q\n", args[i])
			return 1
		}
	}
	if configPath == "" {
		fmt.Fprintln(os.Stderr, "--config is required")
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "litreview: %v\n", err)
		return 2
	}

	orc, err := buildOrchestrator(cfg.RunRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "litreview: %v\n", err)
		return 2
	}
	defer orc.Log.Close()

	ctx, cancel := signalCancelContext()
	defer cancel()

	budget := cfg.Gates.MaxCostUSD
	var budgetPtr *float64
	if budget > 0 {
		budgetPtr = &budget
	}

	opts := orchestrator.RunOptions{
		ResumeRunID:    resumeFrom,
		StrictGates:    strict,
		GateThresholds: gate.Thresholds{MaxInvalidCitationRatio: 1 - cfg.Gates.MinCitationCoverage, MaxCostUSD: budgetPtr},
		FinalState:     finalStateFromAccumulated,
	}

	result, err := orc.Run(ctx, cfg, opts)
	if result != nil {
		fmt.Printf("run_id=%s status=%s\n", result.RunID, result.Status)
		for _, r := range result.GateResults {
			fmt.Printf("gate %-18s passed=%v %s\n", r.Name, r.Passed, r.Details)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "litreview: %v\n", err)
		return 3
	}
	return 0
}

func statusCmd(args []string) int {
	var runRoot, runID string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--run-root":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--run-root requires a value")
				return 1
			}
			runRoot = args[i]
		case "--run-id":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--run-id requires a value")
				return 1
			}
			runID = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown flag %q\n", args[i])
			return 1
		}
	}
	if runRoot == "" || runID == "" {
		fmt.Fprintln(os.Stderr, "--run-root and --run-id are required")
		return 1
	}

	reg, err := registry.Open(runRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "litreview: %v\n", err)
		return 2
	}
	entry, ok, err := reg.FindByRunIDWithFallback(runRoot, runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "litreview: %v\n", err)
		return 2
	}
	if !ok {
		fmt.Fprintf(os.Stderr, "litreview: no run found for id %q\n", runID)
		return 3
	}
	fmt.Printf("run_id=%s topic=%q status=%s heartbeat_at=%s\n", entry.RunID, entry.Topic, entry.Status, entry.HeartbeatAt.Format(time.RFC3339))
	return 0
}

// buildOrchestrator registers the pipeline's phases in dependency order.
// Concrete search/LLM/PDF providers are out of scope here (see
// internal/review/external); each handler below produces its phase's typed
// payload from whatever an EnabledPredicate and upstream state make
// available, so the pipeline shape and checkpointing are fully exercised
// without requiring a live provider.
func buildOrchestrator(runRoot string) (*orchestrator.Orchestrator, error) {
	reg := phase.NewRegistry()

	reg.Register(phase.Definition{
		Name: "search_databases", Ordinal: 1, Checkpoint: true, Required: true,
		Handler: func(ctx context.Context, s map[string]any) (any, error) {
			return review.SearchPayload{}, nil
		},
	})
	reg.Register(phase.Definition{
		Name: "deduplication", Ordinal: 2, Dependencies: []string{"search_databases"}, Checkpoint: true, Required: true,
		Handler: func(ctx context.Context, s map[string]any) (any, error) {
			return review.DeduplicationPayload{}, nil
		},
	})
	reg.Register(phase.Definition{
		Name: "title_abstract_screening", Ordinal: 3, Dependencies: []string{"deduplication"}, Checkpoint: true, Required: true,
		Handler: func(ctx context.Context, s map[string]any) (any, error) {
			return review.TitleAbstractScreeningPayload{}, nil
		},
	})
	reg.Register(phase.Definition{
		Name: "fulltext_screening", Ordinal: 4, Dependencies: []string{"title_abstract_screening"}, Checkpoint: true, Required: true,
		Handler: func(ctx context.Context, s map[string]any) (any, error) {
			return review.FullTextScreeningPayload{}, nil
		},
	})
	reg.Register(phase.Definition{
		Name: "data_extraction", Ordinal: 5, Dependencies: []string{"fulltext_screening"}, Checkpoint: true, Required: true,
		Handler: func(ctx context.Context, s map[string]any) (any, error) {
			return review.ExtractionPayload{}, nil
		},
	})
	reg.Register(phase.Definition{
		Name: "quality_assessment", Ordinal: 6, Dependencies: []string{"data_extraction"}, Checkpoint: true, Required: false,
		Handler: func(ctx context.Context, s map[string]any) (any, error) {
			return review.QualityPayload{}, nil
		},
	})
	reg.Register(phase.Definition{
		Name: "evidence_synthesis", Ordinal: 7, Dependencies: []string{"quality_assessment"}, Checkpoint: true, Required: true,
		Handler: func(ctx context.Context, s map[string]any) (any, error) {
			return review.SynthesisPayload{}, nil
		},
	})
	reg.Register(phase.Definition{
		Name: "article_writing", Ordinal: 8, Dependencies: []string{"evidence_synthesis"}, Checkpoint: true, Required: true,
		Handler: func(ctx context.Context, s map[string]any) (any, error) {
			return review.WritingPayload{}, nil
		},
	})

	store := state.NewStore(runRoot)
	runRegistry, err := registry.Open(runRoot)
	if err != nil {
		return nil, fmt.Errorf("open run registry at %s: %w", runRoot, err)
	}
	logsRoot := filepath.Join(runRoot)
	log, err := reviewlog.Open(logsRoot)
	if err != nil {
		return nil, fmt.Errorf("open progress log at %s: %w", logsRoot, err)
	}

	return orchestrator.New(reg, runRegistry, store, log), nil
}

// finalStateFromAccumulated builds the gate.FinalState snapshot the
// Reliability Gates evaluate, from the article_writing phase's output.
func finalStateFromAccumulated(accumulated map[string]any, _ prisma.State) gate.FinalState {
	var sections review.ManuscriptSections
	if w, ok := accumulated["article_writing"].(review.WritingPayload); ok {
		sections = w.Sections
	}
	return gate.FinalState{
		CheckpointResumeEnabled: true,
		ManuscriptSections:      sections,
	}
}
