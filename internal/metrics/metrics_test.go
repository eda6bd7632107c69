package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.MessageProcessed()
	m.MessageProcessed()
	m.EventsWritten(3)
	m.Duplicate("local")
	m.Classified(OutcomeUnparsable)
	m.WriteFailed("events")
	m.SourceDone(SourceSynced)
	m.RunFinished(2*time.Second, time.Unix(1700000000, 0))

	if got := testutil.ToFloat64(m.messages); got != 2 {
		t.Errorf("expected 2 messages, got %v", got)
	}
	if got := testutil.ToFloat64(m.eventsWritten); got != 3 {
		t.Errorf("expected 3 events, got %v", got)
	}
	if got := testutil.ToFloat64(m.duplicates.WithLabelValues("local")); got != 1 {
		t.Errorf("expected 1 local duplicate, got %v", got)
	}
	if got := testutil.ToFloat64(m.classified.WithLabelValues(OutcomeUnparsable)); got != 1 {
		t.Errorf("expected 1 unparsable reply, got %v", got)
	}
	if got := testutil.ToFloat64(m.lastRunSuccess); got != 1700000000 {
		t.Errorf("unexpected last run timestamp %v", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.MessageProcessed()
	m.EventsWritten(1)
	m.Duplicate("remote")
	m.Classified(OutcomeOK)
	m.ClassifierRetry()
	m.WriteFailed("posts")
	m.SourceDone(SourceFailed)
	m.RunFinished(time.Second, time.Now())
}

func TestRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	if len(families) == 0 {
		t.Error("expected registered metric families")
	}
}
