// Package executor implements the Phase Executor and its Error Boundary
// from spec.md §4.9/§4.10: dependency-ordered phase execution with
// checkpointing, panic recovery, and error-kind classification, grounded on
// original_source/src/orchestration/phase_executor.py and the teacher's
// runtime.Outcome/StageStatus enum shape plus engine/failure_policy.go's
// failure-class classification.
package executor

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a phase failure for the Error Boundary (spec.md
// §4.10).
type ErrorKind string

const (
	// KindValidation means the phase's inputs were malformed; never retried.
	KindValidation ErrorKind = "validation"
	// KindExternal means an LLM/database transport failure; retried, if at
	// all, by the handler's own retry policy rather than the boundary.
	KindExternal ErrorKind = "external"
	// KindData means accumulated state is corrupt; fatal even for
	// required=false phases.
	KindData ErrorKind = "data"
	// KindUnknown is treated the same as KindExternal.
	KindUnknown ErrorKind = "unknown"
)

// PhaseError wraps a handler error with its classification. Handlers that
// want a kind other than the default (Unknown) should return one of these
// directly, e.g. &PhaseError{Kind: KindValidation, Err: err}.
type PhaseError struct {
	Kind ErrorKind
	Err  error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// classify extracts the ErrorKind from err, defaulting to KindUnknown if
// err is not a *PhaseError.
func classify(err error) ErrorKind {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// fatal reports whether a failure of this kind must abort the run
// regardless of the phase's Required flag (spec.md §4.10: "Data ... fatal
// even for required=false phases").
func (k ErrorKind) fatal() bool {
	return k == KindData
}

// ResultStatus is the normalized outcome of one phase execution attempt.
type ResultStatus string

const (
	ResultCompleted ResultStatus = "completed"
	ResultFailed    ResultStatus = "failed"
	ResultSkipped   ResultStatus = "skipped"
)

// PhaseResult is the Error Boundary's normalized PhaseResult enum (spec.md
// §4.10): exactly one of Payload (Completed), Err (Failed), or Reason
// (Skipped) is meaningful, selected by Status.
type PhaseResult struct {
	Status  ResultStatus
	Payload any
	Reason  string
	Err     error
	Kind    ErrorKind
}

// DependencyUnmetError reports that a phase was reached before all of its
// declared dependencies had produced a Completed result.
type DependencyUnmetError struct {
	Phase   string
	Missing []string
}

func (e *DependencyUnmetError) Error() string {
	return fmt.Sprintf("executor: phase %q has unmet dependencies: %v", e.Phase, e.Missing)
}

// GateFailedError reports that one or more Reliability Gates failed in
// strict mode (spec.md §4.11).
type GateFailedError struct {
	Failures []string
}

func (e *GateFailedError) Error() string {
	return fmt.Sprintf("executor: reliability gates failed: %v", e.Failures)
}
