package projector

import "fmt"

// DiagnosticKind classifies a recoverable projection problem.
type DiagnosticKind int

const (
	// MissingCountColumn means a batch had no `count` column and was skipped.
	MissingCountColumn DiagnosticKind = iota

	// RowDropped means a value in a row could not be read.
	RowDropped
)

func (k DiagnosticKind) String() string {
	switch k {
	case MissingCountColumn:
		return "missing count column"
	case RowDropped:
		return "row dropped"
	default:
		return fmt.Sprintf("diagnostic(%d)", int(k))
	}
}

// Diagnostic describes one recoverable problem. Row is -1 for batch-level
// diagnostics.
type Diagnostic struct {
	Kind  DiagnosticKind
	Batch int
	Row   int
	Err   error
}

// DiagnosticFunc receives diagnostics as they occur.
type DiagnosticFunc func(Diagnostic)
