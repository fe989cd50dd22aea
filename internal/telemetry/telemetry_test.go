package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromRecorderCounts(t *testing.T) {
	rec := NewPromRecorder()

	rec.CheckStarted(false)
	rec.CheckStarted(false)
	rec.CheckStarted(true)
	rec.CheckFinished("no-update")
	rec.CheckFailed("fetch")
	rec.TrustVerdict("verified")
	rec.DownloadFinished(1024, 0.5)

	if got := testutil.ToFloat64(rec.checksStarted.WithLabelValues("normal")); got != 2 {
		t.Errorf("normal checks = %v, want 2", got)
	}
	if got := testutil.ToFloat64(rec.checksStarted.WithLabelValues("forced")); got != 1 {
		t.Errorf("forced checks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.checkOutcomes.WithLabelValues("no-update")); got != 1 {
		t.Errorf("no-update outcomes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.checkFailures.WithLabelValues("fetch")); got != 1 {
		t.Errorf("fetch failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.trustVerdicts.WithLabelValues("verified")); got != 1 {
		t.Errorf("verified verdicts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.downloadBytes); got != 1024 {
		t.Errorf("download bytes = %v, want 1024", got)
	}
}

func TestPromRecorderRegistry(t *testing.T) {
	rec := NewPromRecorder()
	rec.CheckStarted(false)

	families, err := rec.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	found := false
	for _, mf := range families {
		if mf.GetName() == "upcast_checks_started_total" {
			found = true
		}
	}
	if !found {
		t.Error("registry should expose upcast_checks_started_total")
	}
}

func TestTwoRecordersDoNotCollide(t *testing.T) {
	a := NewPromRecorder()
	b := NewPromRecorder()

	a.CheckStarted(false)

	if got := testutil.ToFloat64(b.checksStarted.WithLabelValues("normal")); got != 0 {
		t.Errorf("second recorder should be independent, got %v", got)
	}
}

func TestNopRecorder(t *testing.T) {
	var rec Recorder = Nop{}

	// All methods must be safe on the zero value
	rec.CheckStarted(true)
	rec.CheckFinished("no-update")
	rec.CheckFailed("parse")
	rec.DownloadFinished(1, 1)
	rec.TrustVerdict("verified")
}
