// Package reconcile runs the per-feed reconciliation tick and its scheduler.
package reconcile

import "fmt"

// Stage names a step of the tick.
type Stage string

const (
	StageLoading     Stage = "loading"
	StageEvaluating  Stage = "evaluating"
	StageDiscovering Stage = "discovering"
	StagePromoting   Stage = "promoting"
	StagePersisting  Stage = "persisting"
	StagePublishing  Stage = "publishing"
)

// StageError attributes a failure to the stage it happened in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
