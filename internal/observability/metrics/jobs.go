// Package metrics standardises the metric names and tags emitted for job
// lifecycle events.
package metrics

import (
	"time"

	"github.com/wanderplan/planner-api/internal/domain/model"
	"github.com/wanderplan/planner-api/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Transition names for job lifecycle metrics.
const (
	TransitionEnqueue  = "enqueue"
	TransitionDispatch = "dispatch"
	TransitionCallback = "callback"
	TransitionRetry    = "retry"
	TransitionReap     = "reap"
)

// JobEvent captures one job lifecycle event for metric emission.
type JobEvent struct {
	Kind       model.JobKind
	Transition string
	Result     string
	Duration   time.Duration
}

// EmitJobEvent emits the standard counter (and timing, when a duration is
// known) for one job lifecycle event.
func EmitJobEvent(sink statsd.Sink, ev JobEvent) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"kind":       string(ev.Kind),
		"transition": ev.Transition,
		"result":     ev.Result,
	}

	sink.Count("job.transition", 1, tags)
	if ev.Duration > 0 {
		sink.Timing("job.duration", ev.Duration, tags)
	}
}
