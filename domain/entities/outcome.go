package entities

import "fmt"

// OutcomeKind classifies how a guest invocation ended.
type OutcomeKind string

const (
	// OutcomeReturned means the entry point returned normally.
	OutcomeReturned OutcomeKind = "returned"
	// OutcomeExit means the guest called exit or exit_group.
	OutcomeExit OutcomeKind = "exit"
	// OutcomeAbort means the guest sent SIGABRT to itself.
	OutcomeAbort OutcomeKind = "abort"
	// OutcomeNotImplemented means the guest reached an import that is never emulated.
	OutcomeNotImplemented OutcomeKind = "not_implemented"
)

// NotImplementedExitCode is the process status reported for OutcomeNotImplemented.
const NotImplementedExitCode = 70

// Outcome is the result of one top-level guest invocation.
type Outcome struct {
	Kind OutcomeKind `json:"kind"`

	// Code is the entry point's return value or the exit code.
	Code int32 `json:"code"`

	// Feature names the missing import for OutcomeNotImplemented.
	Feature string `json:"feature,omitempty"`
}

// ExitCode maps the outcome to a host process exit status.
func (o Outcome) ExitCode() int {
	switch o.Kind {
	case OutcomeNotImplemented:
		return NotImplementedExitCode
	default:
		return int(o.Code)
	}
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeReturned:
		return fmt.Sprintf("returned %d", o.Code)
	case OutcomeExit:
		return fmt.Sprintf("exit(%d)", o.Code)
	case OutcomeAbort:
		return "aborted (SIGABRT)"
	case OutcomeNotImplemented:
		return fmt.Sprintf("not implemented: %s", o.Feature)
	default:
		return string(o.Kind)
	}
}
