package gauge

import "fmt"

// Stage names the step of a gauge evaluation that failed.
type Stage string

const (
	StageSession  Stage = "session"
	StageOpen     Stage = "open table"
	StageRegister Stage = "register table"
	StageCompile  Stage = "compile query"
	StageCount    Stage = "count rows"
	StageCollect  Stage = "collect batches"
	StageProject  Stage = "project"
)

// Error is a failure that aborts a single gauge.
type Error struct {
	Group  string
	Metric string
	Stage  Stage
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("gauge %s/%s: %s: %v", e.Group, e.Metric, e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
