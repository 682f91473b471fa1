package stage

import (
	"context"

	"loom/internal/queue"
	"loom/internal/results"
)

// Exchange carries everything a stage execution may read or emit: the
// workflow item, the accumulated outputs of every earlier stage, and a
// progress callback for long-running work.
type Exchange struct {
	Item        *queue.Item
	Accumulated map[string]results.Payload
	Progress    func(percent float64, message string)
}

// Output returns an earlier stage's payload, or nil when that stage has not
// produced one.
func (e *Exchange) Output(stageName string) results.Payload {
	if e == nil || e.Accumulated == nil {
		return nil
	}
	return e.Accumulated[stageName]
}

// Report invokes the progress callback if one is attached.
func (e *Exchange) Report(percent float64, message string) {
	if e != nil && e.Progress != nil {
		e.Progress(percent, message)
	}
}

// Handler describes the contract the workflow manager needs from each stage.
// Execute returns the stage's payload, which the manager saves to the result
// accumulator before advancing the item.
type Handler interface {
	Prepare(context.Context, *queue.Item) error
	Execute(context.Context, *Exchange) (results.Payload, error)
	HealthCheck(context.Context) Health
}

// Skippable is implemented by optional stages that can decide per item
// whether they should run at all.
type Skippable interface {
	ShouldRun(context.Context, *queue.Item) (bool, error)
}
