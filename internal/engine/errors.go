package engine

import "fmt"

// FailureKind classifies request-level failures per the error taxonomy:
// configuration errors abort before any scenario runs, scenario errors abort
// the whole request mid-flight. Curve coverage gaps and numeric degeneracies
// are defined behavior, never failures.
type FailureKind string

const (
	FailureConfig   FailureKind = "configuration"
	FailureScenario FailureKind = "scenario"
)

// Failure is the single structured error a calculation surfaces to the
// caller: its kind plus the offending contract and/or scenario identifier,
// enough context to reproduce. A request never returns partial results
// alongside one.
type Failure struct {
	Kind       FailureKind
	ScenarioID string
	ContractID string
	Err        error
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("%s error", f.Kind)
	if f.ScenarioID != "" {
		msg += fmt.Sprintf(" (scenario %s)", f.ScenarioID)
	}
	if f.ContractID != "" {
		msg += fmt.Sprintf(" (contract %s)", f.ContractID)
	}
	return msg + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

func configFailure(contractID string, err error) *Failure {
	return &Failure{Kind: FailureConfig, ContractID: contractID, Err: err}
}

func scenarioFailure(scenarioID string, err error) *Failure {
	return &Failure{Kind: FailureScenario, ScenarioID: scenarioID, Err: err}
}
