package metrics

import (
	"testing"
	"time"

	"github.com/wanderplan/planner-api/internal/domain/model"
)

type recordedMetric struct {
	name string
	tags map[string]string
}

type sinkRecorder struct {
	counts  []recordedMetric
	timings []recordedMetric
}

func (r *sinkRecorder) Count(name string, _ int64, tags map[string]string) {
	r.counts = append(r.counts, recordedMetric{name: name, tags: tags})
}

func (r *sinkRecorder) Gauge(string, float64, map[string]string) {}

func (r *sinkRecorder) Timing(name string, _ time.Duration, tags map[string]string) {
	r.timings = append(r.timings, recordedMetric{name: name, tags: tags})
}

func TestEmitJobEvent(t *testing.T) {
	rec := &sinkRecorder{}
	EmitJobEvent(rec, JobEvent{
		Kind:       model.JobKindGeneration,
		Transition: TransitionCallback,
		Result:     ResultSuccess,
		Duration:   125 * time.Millisecond,
	})

	if len(rec.counts) != 1 || rec.counts[0].name != "job.transition" {
		t.Fatalf("unexpected counts: %+v", rec.counts)
	}
	tags := rec.counts[0].tags
	if tags["kind"] != "generation" || tags["transition"] != "callback" || tags["result"] != "success" {
		t.Fatalf("unexpected tags: %v", tags)
	}
	if len(rec.timings) != 1 || rec.timings[0].name != "job.duration" {
		t.Fatalf("unexpected timings: %+v", rec.timings)
	}
}

func TestEmitJobEventWithoutDuration(t *testing.T) {
	rec := &sinkRecorder{}
	EmitJobEvent(rec, JobEvent{
		Kind:       model.JobKindRecommendation,
		Transition: TransitionEnqueue,
		Result:     ResultError,
	})

	if len(rec.counts) != 1 {
		t.Fatalf("unexpected counts: %+v", rec.counts)
	}
	if len(rec.timings) != 0 {
		t.Fatalf("expected no timing without duration, got %+v", rec.timings)
	}
}

func TestEmitJobEventNilSink(t *testing.T) {
	EmitJobEvent(nil, JobEvent{Kind: model.JobKindGeneration})
}
